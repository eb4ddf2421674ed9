package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/agenthands/keepsake/internal/core/dedupe"
	"github.com/agenthands/keepsake/internal/core/model"
	"github.com/agenthands/keepsake/internal/store"
)

const (
	lastSummarizedQuery = `
		SELECT COALESCE(MAX(message_range_end), 0) FROM conversation_chunks WHERE conversation_id = $1`

	rangeExistsQuery = `
		SELECT EXISTS (
			SELECT 1 FROM conversation_chunks
			WHERE conversation_id = $1 AND message_range_start <= $3 AND message_range_end >= $2
		)`

	insertConversationChunkQuery = `
		INSERT INTO conversation_chunks
			(id, conversation_id, legacy_id, user_id, message_range_start, message_range_end, summary, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	searchConversationChunksQuery = `
		SELECT id, conversation_id, legacy_id, user_id, message_range_start, message_range_end, summary, created_at,
		       1 - (embedding <=> $3) AS similarity
		FROM conversation_chunks
		WHERE legacy_id = $1 AND user_id = $2
		ORDER BY embedding <=> $3, created_at DESC
		LIMIT $4`

	factColumns = `id, legacy_id, user_id, category, content, visibility, COALESCE(source_conversation_id, ''), created_at`

	listFactsQuery = `SELECT ` + factColumns + ` FROM memory_facts WHERE legacy_id = $1 AND user_id = $2 ORDER BY created_at`

	listVisibleFactsQuery = `
		SELECT ` + factColumns + ` FROM memory_facts
		WHERE legacy_id = $1 AND (user_id = $2 OR visibility = 'shared')
		ORDER BY created_at DESC`

	insertFactQuery = `
		INSERT INTO memory_facts (id, legacy_id, user_id, category, content, content_key, visibility, source_conversation_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)
		ON CONFLICT (legacy_id, user_id, category, content_key) DO NOTHING`
)

func (s *Store) LastSummarizedSeq(ctx context.Context, conversationID string) (int, error) {
	var last int
	if err := s.conn.QueryRow(ctx, lastSummarizedQuery, conversationID).Scan(&last); err != nil {
		return 0, fmt.Errorf("last summarized seq: %w", err)
	}
	return last, nil
}

func (s *Store) HasConversationChunk(ctx context.Context, conversationID string, start, end int) (bool, error) {
	var exists bool
	if err := s.conn.QueryRow(ctx, rangeExistsQuery, conversationID, start, end).Scan(&exists); err != nil {
		return false, fmt.Errorf("check summarized range: %w", err)
	}
	return exists, nil
}

func (s *Store) SearchConversationChunks(ctx context.Context, legacyID, userID string, vector []float32, k int) ([]model.ScoredConversationChunk, error) {
	if k <= 0 {
		k = 5
	}
	rows, err := s.conn.Query(ctx, searchConversationChunksQuery, legacyID, userID, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("search conversation chunks: %w", err)
	}
	defer rows.Close()

	var out []model.ScoredConversationChunk
	for rows.Next() {
		var c model.ScoredConversationChunk
		if err := rows.Scan(&c.ID, &c.ConversationID, &c.LegacyID, &c.UserID,
			&c.MessageRangeStart, &c.MessageRangeEnd, &c.Summary, &c.CreatedAt, &c.Similarity); err != nil {
			return nil, fmt.Errorf("scan conversation chunk: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) ListVisibleFacts(ctx context.Context, legacyID, userID string) ([]model.Fact, error) {
	return queryFacts(ctx, s.conn, listVisibleFactsQuery, legacyID, userID)
}

type queryer interface {
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgx.Rows, error)
}

func queryFacts(ctx context.Context, q queryer, sql string, args ...any) ([]model.Fact, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}
	defer rows.Close()

	var out []model.Fact
	for rows.Next() {
		var (
			f   model.Fact
			vis string
		)
		if err := rows.Scan(&f.ID, &f.LegacyID, &f.UserID, &f.Category, &f.Content, &vis,
			&f.SourceConversationID, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		f.Visibility = model.FactVisibility(vis)
		out = append(out, f)
	}
	return out, rows.Err()
}

// WithinTx runs fn in a transaction that is rolled back unless fn returns nil.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.MemoryTx) error) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin memory tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&memoryTx{tx: tx, log: s.log}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return store.ErrRangeSummarized
		}
		return fmt.Errorf("commit memory tx: %w", err)
	}
	return nil
}

type memoryTx struct {
	tx  pgx.Tx
	log *zap.Logger
}

func (t *memoryTx) InsertConversationChunk(ctx context.Context, c model.ConversationChunk) error {
	_, err := t.tx.Exec(ctx, insertConversationChunkQuery,
		c.ID, c.ConversationID, c.LegacyID, c.UserID, c.MessageRangeStart, c.MessageRangeEnd,
		c.Summary, pgvector.NewVector(c.Embedding), c.CreatedAt,
	)
	if isUniqueViolation(err) {
		t.log.Info("conversation range already summarized",
			zap.String("conversation_id", c.ConversationID),
			zap.Int("start", c.MessageRangeStart),
		)
		return store.ErrRangeSummarized
	}
	if err != nil {
		return fmt.Errorf("insert conversation chunk: %w", err)
	}
	return nil
}

func (t *memoryTx) ListFacts(ctx context.Context, legacyID, userID string) ([]model.Fact, error) {
	return queryFacts(ctx, t.tx, listFactsQuery, legacyID, userID)
}

func (t *memoryTx) InsertFacts(ctx context.Context, facts []model.Fact) error {
	if len(facts) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, f := range facts {
		category := dedupe.NormalizeCategory(f.Category)
		batch.Queue(insertFactQuery, f.ID, f.LegacyID, f.UserID, category, f.Content,
			dedupe.NormalizeContent(f.Content), string(f.Visibility), f.SourceConversationID, f.CreatedAt)
	}
	br := t.tx.SendBatch(ctx, batch)
	for range facts {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert fact: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close fact batch: %w", err)
	}
	return nil
}
