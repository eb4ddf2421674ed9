package postgres

import "fmt"

// engineSchema creates the tables the engine owns. %d is the embedding dimension.
const engineSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS story_chunks (
    id          TEXT PRIMARY KEY,
    parent_id   TEXT NOT NULL,
    legacy_id   TEXT NOT NULL,
    chunk_index INT  NOT NULL,
    content     TEXT NOT NULL,
    embedding   vector(%[1]d) NOT NULL,
    owner_id    TEXT NOT NULL,
    visibility  TEXT NOT NULL CHECK (visibility IN ('public', 'private', 'personal')),
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (parent_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_story_chunks_legacy ON story_chunks(legacy_id);
CREATE INDEX IF NOT EXISTS idx_story_chunks_embedding ON story_chunks USING hnsw (embedding vector_cosine_ops);

CREATE TABLE IF NOT EXISTS conversation_chunks (
    id                  TEXT PRIMARY KEY,
    conversation_id     TEXT NOT NULL,
    legacy_id           TEXT NOT NULL,
    user_id             TEXT NOT NULL,
    message_range_start INT  NOT NULL,
    message_range_end   INT  NOT NULL,
    summary             TEXT NOT NULL,
    embedding           vector(%[1]d) NOT NULL,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT uq_conversation_chunks_range UNIQUE (conversation_id, message_range_start)
);

CREATE INDEX IF NOT EXISTS idx_conversation_chunks_scope ON conversation_chunks(legacy_id, user_id);

CREATE TABLE IF NOT EXISTS memory_facts (
    id                     TEXT PRIMARY KEY,
    legacy_id              TEXT NOT NULL,
    user_id                TEXT NOT NULL,
    category               TEXT NOT NULL,
    content                TEXT NOT NULL,
    content_key            TEXT NOT NULL,
    visibility             TEXT NOT NULL CHECK (visibility IN ('private', 'shared')),
    source_conversation_id TEXT,
    created_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);

ALTER TABLE memory_facts ADD COLUMN IF NOT EXISTS content_key TEXT;
CREATE INDEX IF NOT EXISTS idx_memory_facts_scope ON memory_facts(legacy_id, user_id);
CREATE UNIQUE INDEX IF NOT EXISTS uq_memory_facts_key ON memory_facts(legacy_id, user_id, category, content_key);
`

// Schema returns the engine DDL for the given embedding dimension.
func Schema(dimensions int) string {
	return fmt.Sprintf(engineSchema, dimensions)
}
