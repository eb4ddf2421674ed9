package model

import "time"

type FactVisibility string

const (
	FactPrivate FactVisibility = "private"
	FactShared  FactVisibility = "shared"
)

// ConversationChunk is the embedded summary of a contiguous message range.
type ConversationChunk struct {
	ID                string    `json:"id"`
	ConversationID    string    `json:"conversation_id"`
	LegacyID          string    `json:"legacy_id"`
	UserID            string    `json:"user_id"`
	MessageRangeStart int       `json:"message_range_start"`
	MessageRangeEnd   int       `json:"message_range_end"`
	Summary           string    `json:"summary"`
	Embedding         []float32 `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
}

type ScoredConversationChunk struct {
	ConversationChunk
	Similarity float64 `json:"similarity"`
}

// Fact is an atomic piece of knowledge distilled from a conversation, owned by a (legacy, user) pair.
type Fact struct {
	ID                   string         `json:"id"`
	LegacyID             string         `json:"legacy_id"`
	UserID               string         `json:"user_id"`
	Category             string         `json:"category"`
	Content              string         `json:"content"`
	Visibility           FactVisibility `json:"visibility"`
	SourceConversationID string         `json:"source_conversation_id,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
}
