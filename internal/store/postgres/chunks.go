package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/agenthands/keepsake/internal/core/model"
)

const (
	deleteChunksQuery = `DELETE FROM story_chunks WHERE parent_id = $1`

	insertChunkQuery = `
		INSERT INTO story_chunks (id, parent_id, legacy_id, chunk_index, content, embedding, owner_id, visibility, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
)

// ReplaceChunks deletes every chunk of parentID and inserts the new set in one transaction.
func (s *Store) ReplaceChunks(ctx context.Context, parentID string, chunks []model.Chunk) (int, error) {
	s.log.Debug("replacing chunks", zap.String("parent_id", parentID), zap.Int("chunks", len(chunks)))

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin replace chunks: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, deleteChunksQuery, parentID); err != nil {
		return 0, fmt.Errorf("delete stale chunks: %w", err)
	}

	if len(chunks) > 0 {
		batch := &pgx.Batch{}
		for _, c := range chunks {
			batch.Queue(insertChunkQuery,
				c.ID, parentID, c.LegacyID, c.Index, c.Text,
				pgvector.NewVector(c.Embedding), c.OwnerID, string(c.Visibility), c.CreatedAt,
			)
		}
		br := tx.SendBatch(ctx, batch)
		for range chunks {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return 0, fmt.Errorf("insert chunk: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return 0, fmt.Errorf("close chunk batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit replace chunks: %w", err)
	}
	return len(chunks), nil
}

func (s *Store) DeleteChunks(ctx context.Context, parentID string) (int, error) {
	tag, err := s.conn.Exec(ctx, deleteChunksQuery, parentID)
	if err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) SearchChunks(ctx context.Context, q model.ChunkQuery) ([]model.ScoredChunk, error) {
	sql, args := buildChunkSearch(q)

	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var out []model.ScoredChunk
	for rows.Next() {
		var (
			sc  model.ScoredChunk
			vis string
		)
		if err := rows.Scan(&sc.ID, &sc.ParentID, &sc.LegacyID, &sc.Index, &sc.Text,
			&sc.OwnerID, &vis, &sc.CreatedAt, &sc.Similarity); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		sc.Visibility = model.Visibility(vis)
		sc.Linked = sc.LegacyID != q.Scope.Filter.LegacyID
		out = append(out, sc)
	}
	return out, rows.Err()
}

// buildChunkSearch renders the scope as SQL. The primary legacy uses the visibility
// filter; linked legacies contribute public rows only.
func buildChunkSearch(q model.ChunkQuery) (string, []any) {
	args := []any{pgvector.NewVector(q.Vector)}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	f := q.Scope.Filter
	allowed := make([]string, 0, len(f.AllowedVisibility))
	for _, v := range f.AllowedVisibility {
		allowed = append(allowed, string(v))
	}

	clauses := []string{fmt.Sprintf(
		"(legacy_id = %s AND visibility = ANY(%s) AND (visibility <> 'personal' OR owner_id = %s))",
		arg(f.LegacyID), arg(allowed), arg(f.PersonalScopeOwner),
	)}
	for _, l := range q.Scope.Linked {
		switch l.ShareMode {
		case model.ShareModeAll:
			clauses = append(clauses, fmt.Sprintf(
				"(legacy_id = %s AND visibility = 'public')", arg(l.LinkedLegacyID)))
		case model.ShareModeSelective:
			if len(l.IncludedResourceIDs) == 0 {
				continue
			}
			clauses = append(clauses, fmt.Sprintf(
				"(legacy_id = %s AND visibility = 'public' AND parent_id = ANY(%s))",
				arg(l.LinkedLegacyID), arg(l.IncludedResourceIDs)))
		}
	}

	k := q.K
	if k <= 0 {
		k = 10
	}

	var sb strings.Builder
	sb.WriteString(`
		SELECT id, parent_id, legacy_id, chunk_index, content, owner_id, visibility, created_at,
		       1 - (embedding <=> $1) AS similarity
		FROM story_chunks
		WHERE `)
	sb.WriteString(strings.Join(clauses, "\n\t\t   OR "))
	sb.WriteString(`
		ORDER BY embedding <=> $1, created_at DESC
		LIMIT `)
	sb.WriteString(arg(k))
	return sb.String(), args
}
