package model

import "time"

// Chunk is an embedded slice of a parent resource (a story). Chunks are never edited;
// re-indexing replaces the full set for the parent.
type Chunk struct {
	ID         string     `json:"id"`
	ParentID   string     `json:"parent_id"`
	LegacyID   string     `json:"legacy_id"`
	Index      int        `json:"index"`
	Text       string     `json:"text"`
	Embedding  []float32  `json:"-"`
	OwnerID    string     `json:"owner_id"`
	Visibility Visibility `json:"visibility"`
	CreatedAt  time.Time  `json:"created_at"`
}

type ScoredChunk struct {
	Chunk
	Similarity float64 `json:"similarity"`
	// Linked is true when the chunk came from a federated legacy.
	Linked bool `json:"linked"`
}

// ChunkQuery is a nearest-neighbour request bounded by a visibility scope.
type ChunkQuery struct {
	Vector []float32
	Scope  Scope
	K      int
}

// Permits reports whether c may be returned for this query.
func (q ChunkQuery) Permits(c Chunk) bool {
	return q.Scope.Permits(c.LegacyID, c.Visibility, c.OwnerID, c.ParentID)
}
