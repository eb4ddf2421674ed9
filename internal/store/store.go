// Package store declares the record-store contracts the engine consumes.
// Membership, link and message records are owned by the application's CRUD layer;
// chunks, conversation summaries and facts are owned by the engine.
package store

import (
	"context"
	"errors"

	"github.com/agenthands/keepsake/internal/core/model"
)

// ErrRangeSummarized is returned when a conversation chunk for the same message range already exists.
var ErrRangeSummarized = errors.New("message range already summarized")

// MembershipReader looks up a user's membership. A missing membership is (nil, nil).
type MembershipReader interface {
	GetMembership(ctx context.Context, legacyID, userID string) (*model.Membership, error)
}

type LinkReader interface {
	// ListActiveLinks returns active links where legacyID is either the requester or the target.
	ListActiveLinks(ctx context.Context, legacyID string) ([]model.LegacyLink, error)
	// ListLinkShares returns the share grants of a link for one resource type.
	ListLinkShares(ctx context.Context, linkID, resourceType string) ([]model.LinkShare, error)
}

type MessageReader interface {
	// ListMessagesAfter returns messages with Seq > afterSeq ordered by Seq.
	ListMessagesAfter(ctx context.Context, conversationID string, afterSeq int) ([]model.Message, error)
}

type ChunkStore interface {
	// ReplaceChunks atomically swaps every chunk of parentID for chunks.
	ReplaceChunks(ctx context.Context, parentID string, chunks []model.Chunk) (int, error)
	DeleteChunks(ctx context.Context, parentID string) (int, error)
	// SearchChunks ranks permitted chunks by cosine similarity, newest first on ties.
	SearchChunks(ctx context.Context, q model.ChunkQuery) ([]model.ScoredChunk, error)
}

type MemoryStore interface {
	// LastSummarizedSeq returns the highest summarized message seq, or 0 when nothing is summarized.
	LastSummarizedSeq(ctx context.Context, conversationID string) (int, error)
	HasConversationChunk(ctx context.Context, conversationID string, start, end int) (bool, error)
	SearchConversationChunks(ctx context.Context, legacyID, userID string, vector []float32, k int) ([]model.ScoredConversationChunk, error)
	// ListVisibleFacts returns userID's own facts plus shared facts of other members.
	ListVisibleFacts(ctx context.Context, legacyID, userID string) ([]model.Fact, error)
	// WithinTx runs fn in one transaction; any error rolls back every write made through tx.
	WithinTx(ctx context.Context, fn func(tx MemoryTx) error) error
}

type MemoryTx interface {
	// InsertConversationChunk fails with ErrRangeSummarized on a duplicate range.
	InsertConversationChunk(ctx context.Context, c model.ConversationChunk) error
	ListFacts(ctx context.Context, legacyID, userID string) ([]model.Fact, error)
	InsertFacts(ctx context.Context, facts []model.Fact) error
}
