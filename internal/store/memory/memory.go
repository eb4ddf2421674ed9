// Package memory is an in-process implementation of every store contract,
// used for local development and tests.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/agenthands/keepsake/internal/core/model"
	"github.com/agenthands/keepsake/internal/store"
)

type Store struct {
	mu          sync.RWMutex
	memberships map[string]model.Membership
	links       []model.LegacyLink
	shares      []model.LinkShare
	messages    map[string][]model.Message
	chunks      map[string][]model.Chunk
	convChunks  []model.ConversationChunk
	facts       []model.Fact
}

var (
	_ store.MembershipReader = (*Store)(nil)
	_ store.LinkReader       = (*Store)(nil)
	_ store.MessageReader    = (*Store)(nil)
	_ store.ChunkStore       = (*Store)(nil)
	_ store.MemoryStore      = (*Store)(nil)
)

func New() *Store {
	return &Store{
		memberships: make(map[string]model.Membership),
		messages:    make(map[string][]model.Message),
		chunks:      make(map[string][]model.Chunk),
	}
}

func membershipKey(legacyID, userID string) string {
	return legacyID + "/" + userID
}

// Seeding helpers for the CRUD-owned records.

func (s *Store) PutMembership(m model.Membership) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberships[membershipKey(m.LegacyID, m.UserID)] = m
}

func (s *Store) PutLink(l model.LegacyLink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links = append(s.links, l)
}

func (s *Store) PutShare(sh model.LinkShare) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shares = append(s.shares, sh)
}

func (s *Store) AppendMessage(m model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[m.ConversationID] = append(s.messages[m.ConversationID], m)
}

// Chunks returns the stored chunks of a parent in index order.
func (s *Store) Chunks(parentID string) []model.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.chunks[parentID])
}

func (s *Store) ConversationChunks(conversationID string) []model.ConversationChunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.ConversationChunk
	for _, c := range s.convChunks {
		if c.ConversationID == conversationID {
			out = append(out, c)
		}
	}
	return out
}

func (s *Store) Facts(legacyID, userID string) []model.Fact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.factsLocked(legacyID, userID)
}

func (s *Store) factsLocked(legacyID, userID string) []model.Fact {
	var out []model.Fact
	for _, f := range s.facts {
		if f.LegacyID == legacyID && f.UserID == userID {
			out = append(out, f)
		}
	}
	return out
}

func (s *Store) GetMembership(ctx context.Context, legacyID, userID string) (*model.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memberships[membershipKey(legacyID, userID)]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *Store) ListActiveLinks(ctx context.Context, legacyID string) ([]model.LegacyLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.LegacyLink
	for _, l := range s.links {
		if l.Status != model.LinkActive {
			continue
		}
		if l.RequesterLegacyID == legacyID || l.TargetLegacyID == legacyID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *Store) ListLinkShares(ctx context.Context, linkID, resourceType string) ([]model.LinkShare, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.LinkShare
	for _, sh := range s.shares {
		if sh.LinkID == linkID && sh.ResourceType == resourceType {
			out = append(out, sh)
		}
	}
	return out, nil
}

func (s *Store) ListMessagesAfter(ctx context.Context, conversationID string, afterSeq int) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Message
	for _, m := range s.messages[conversationID] {
		if m.Seq > afterSeq {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (s *Store) ReplaceChunks(ctx context.Context, parentID string, chunks []model.Chunk) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(chunks) == 0 {
		delete(s.chunks, parentID)
		return 0, nil
	}
	s.chunks[parentID] = slices.Clone(chunks)
	return len(chunks), nil
}

func (s *Store) DeleteChunks(ctx context.Context, parentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.chunks[parentID])
	delete(s.chunks, parentID)
	return n, nil
}

func (s *Store) SearchChunks(ctx context.Context, q model.ChunkQuery) ([]model.ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []model.ScoredChunk
	for _, chunks := range s.chunks {
		for _, c := range chunks {
			if !q.Permits(c) {
				continue
			}
			out = append(out, model.ScoredChunk{
				Chunk:      c,
				Similarity: store.Cosine(q.Vector, c.Embedding),
				Linked:     c.LegacyID != q.Scope.Filter.LegacyID,
			})
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if q.K > 0 && len(out) > q.K {
		out = out[:q.K]
	}
	return out, nil
}

func (s *Store) LastSummarizedSeq(ctx context.Context, conversationID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	last := 0
	for _, c := range s.convChunks {
		if c.ConversationID == conversationID && c.MessageRangeEnd > last {
			last = c.MessageRangeEnd
		}
	}
	return last, nil
}

func (s *Store) HasConversationChunk(ctx context.Context, conversationID string, start, end int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overlapsLocked(s.convChunks, conversationID, start, end), nil
}

func (s *Store) overlapsLocked(chunks []model.ConversationChunk, conversationID string, start, end int) bool {
	for _, c := range chunks {
		if c.ConversationID == conversationID && c.MessageRangeStart <= end && start <= c.MessageRangeEnd {
			return true
		}
	}
	return false
}

func (s *Store) SearchConversationChunks(ctx context.Context, legacyID, userID string, vector []float32, k int) ([]model.ScoredConversationChunk, error) {
	s.mu.RLock()
	var out []model.ScoredConversationChunk
	for _, c := range s.convChunks {
		if c.LegacyID != legacyID || c.UserID != userID {
			continue
		}
		out = append(out, model.ScoredConversationChunk{ConversationChunk: c, Similarity: store.Cosine(vector, c.Embedding)})
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (s *Store) ListVisibleFacts(ctx context.Context, legacyID, userID string) ([]model.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Fact
	for _, f := range s.facts {
		if f.LegacyID != legacyID {
			continue
		}
		if f.UserID == userID || f.Visibility == model.FactShared {
			out = append(out, f)
		}
	}
	return out, nil
}

// WithinTx stages writes and applies them only if fn succeeds and the staged ranges
// still do not collide with committed ones.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.MemoryTx) error) error {
	tx := &memTx{s: s}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range tx.chunks {
		if s.overlapsLocked(s.convChunks, c.ConversationID, c.MessageRangeStart, c.MessageRangeEnd) {
			return store.ErrRangeSummarized
		}
	}
	s.convChunks = append(s.convChunks, tx.chunks...)
	s.facts = append(s.facts, tx.facts...)
	return nil
}

type memTx struct {
	s      *Store
	chunks []model.ConversationChunk
	facts  []model.Fact
}

func (t *memTx) InsertConversationChunk(ctx context.Context, c model.ConversationChunk) error {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	if t.s.overlapsLocked(t.s.convChunks, c.ConversationID, c.MessageRangeStart, c.MessageRangeEnd) ||
		t.s.overlapsLocked(t.chunks, c.ConversationID, c.MessageRangeStart, c.MessageRangeEnd) {
		return store.ErrRangeSummarized
	}
	t.chunks = append(t.chunks, c)
	return nil
}

func (t *memTx) ListFacts(ctx context.Context, legacyID, userID string) ([]model.Fact, error) {
	t.s.mu.RLock()
	out := t.s.factsLocked(legacyID, userID)
	t.s.mu.RUnlock()
	for _, f := range t.facts {
		if f.LegacyID == legacyID && f.UserID == userID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (t *memTx) InsertFacts(ctx context.Context, facts []model.Fact) error {
	t.facts = append(t.facts, facts...)
	return nil
}
