// Package retrieval indexes story text as embedded chunks and runs scoped
// nearest-neighbour queries over them.
package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agenthands/keepsake/internal/apperr"
	"github.com/agenthands/keepsake/internal/chunker"
	"github.com/agenthands/keepsake/internal/core/model"
	"github.com/agenthands/keepsake/internal/llm"
	"github.com/agenthands/keepsake/internal/retry"
	"github.com/agenthands/keepsake/internal/store"
)

const (
	defaultBatchSize   = 32
	maxParallelBatches = 4
)

type Options struct {
	ChunkMaxTokens int
	BatchSize      int
	Retry          retry.Policy
}

type Service struct {
	store    store.ChunkStore
	embedder llm.Embedder
	opts     Options
	log      *zap.Logger
	now      func() time.Time
}

func NewService(chunks store.ChunkStore, embedder llm.Embedder, opts Options, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.ChunkMaxTokens <= 0 {
		opts.ChunkMaxTokens = 500
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Retry.MaxTries == 0 {
		opts.Retry = retry.DefaultPolicy
	}
	return &Service{store: chunks, embedder: embedder, opts: opts, log: log.Named("retrieval"), now: time.Now}
}

// Index chunks and embeds a story and replaces its stored chunks. Text that
// chunks to nothing removes any earlier chunks without calling the embedder.
func (s *Service) Index(ctx context.Context, story model.Story) (int, error) {
	if story.ID == "" || story.LegacyID == "" {
		return 0, apperr.Invalid("story id and legacy id are required")
	}
	segments := chunker.Chunk(story.Content, s.opts.ChunkMaxTokens)
	if len(segments) == 0 {
		s.log.Debug("story has no indexable text", zap.String("story_id", story.ID))
		if _, err := s.store.ReplaceChunks(ctx, story.ID, nil); err != nil {
			return 0, fmt.Errorf("clear chunks for story %s: %w", story.ID, err)
		}
		return 0, nil
	}

	vectors, err := s.EmbedAll(ctx, segments)
	if err != nil {
		return 0, fmt.Errorf("embed story %s: %w", story.ID, err)
	}

	now := s.now().UTC()
	chunks := make([]model.Chunk, len(segments))
	for i, text := range segments {
		chunks[i] = model.Chunk{
			ID:         uuid.NewString(),
			ParentID:   story.ID,
			LegacyID:   story.LegacyID,
			Index:      i,
			Text:       text,
			Embedding:  vectors[i],
			OwnerID:    story.AuthorID,
			Visibility: story.Visibility,
			CreatedAt:  now,
		}
	}

	n, err := s.store.ReplaceChunks(ctx, story.ID, chunks)
	if err != nil {
		return 0, fmt.Errorf("store chunks for story %s: %w", story.ID, err)
	}
	s.log.Info("story indexed", zap.String("story_id", story.ID), zap.Int("chunks", n))
	return n, nil
}

// EmbedAll embeds texts in batches, in order. Batches run concurrently and each
// is retried on rate limiting.
func (s *Service) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelBatches)

	for start := 0; start < len(texts); start += s.opts.BatchSize {
		end := min(start+s.opts.BatchSize, len(texts))
		g.Go(func() error {
			batch := texts[start:end]
			vecs, err := retry.Do(gctx, s.opts.Retry, func(ctx context.Context) ([][]float32, error) {
				return s.embedder.EmbedTexts(ctx, batch)
			})
			if err != nil {
				return err
			}
			if len(vecs) != len(batch) {
				return apperr.MalformedPayload(s.embedder.Model(),
					fmt.Errorf("got %d vectors for %d texts", len(vecs), len(batch)))
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// EmbedQuery embeds a single query text.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedAll(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Query returns up to k chunks permitted by scope, most similar first.
func (s *Service) Query(ctx context.Context, vector []float32, scope model.Scope, k int) ([]model.ScoredChunk, error) {
	return s.store.SearchChunks(ctx, model.ChunkQuery{Vector: vector, Scope: scope, K: k})
}

// Search embeds text and queries with it.
func (s *Service) Search(ctx context.Context, text string, scope model.Scope, k int) ([]model.ScoredChunk, error) {
	vec, err := s.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	return s.Query(ctx, vec, scope, k)
}

// Delete removes every chunk of a parent.
func (s *Service) Delete(ctx context.Context, parentID string) (int, error) {
	n, err := s.store.DeleteChunks(ctx, parentID)
	if err != nil {
		return 0, fmt.Errorf("delete chunks for %s: %w", parentID, err)
	}
	return n, nil
}
