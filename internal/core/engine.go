// Package core composes retrieval, extraction, assembly and summarization into
// the Engine the server talks to.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/keepsake/internal/apperr"
	"github.com/agenthands/keepsake/internal/breaker"
	"github.com/agenthands/keepsake/internal/config"
	"github.com/agenthands/keepsake/internal/core/assembly"
	"github.com/agenthands/keepsake/internal/core/extraction"
	"github.com/agenthands/keepsake/internal/core/model"
	"github.com/agenthands/keepsake/internal/core/summary"
	"github.com/agenthands/keepsake/internal/graph"
	"github.com/agenthands/keepsake/internal/llm"
	"github.com/agenthands/keepsake/internal/retrieval"
	"github.com/agenthands/keepsake/internal/retry"
	"github.com/agenthands/keepsake/internal/store"
	"github.com/agenthands/keepsake/internal/visibility"
)

// Deps are the collaborators the engine does not own.
type Deps struct {
	Members  store.MembershipReader
	Links    store.LinkReader
	Messages store.MessageReader
	Chunks   store.ChunkStore
	Memory   store.MemoryStore
	LLM      llm.Streamer
	Embedder llm.Embedder
	Graph    graph.Selection
	// Breaker guards Graph. A nil breaker is built from the config.
	Breaker *breaker.CircuitBreaker
}

type Engine struct {
	Scopes     *visibility.Resolver
	Retrieval  *retrieval.Service
	Extractor  *extraction.Extractor
	Assembler  *assembly.Assembler
	Summarizer *summary.Summarizer
	Scheduler  *summary.Scheduler
	Graph      graph.Selection
	Breaker    *breaker.CircuitBreaker

	log *zap.Logger
}

func NewEngine(cfg *config.Config, deps Deps, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	policy := retry.FromConfig(cfg.Retry)

	cb := deps.Breaker
	if cb == nil {
		cb = breaker.New(breaker.Config{
			Name:             "graph",
			FailureThreshold: cfg.Breaker.FailureThreshold,
			RecoveryTimeout:  time.Duration(cfg.Breaker.RecoveryTimeoutSecond) * time.Second,
		}, nil)
	}
	if deps.Graph.Kind == "" {
		deps.Graph.Kind = graph.KindDisabled
	}

	scopes := visibility.NewResolver(deps.Members, deps.Links, log)
	svc := retrieval.NewService(deps.Chunks, deps.Embedder, retrieval.Options{
		ChunkMaxTokens: cfg.Retrieval.ChunkMaxTokens,
		BatchSize:      cfg.Embedding.BatchSize,
		Retry:          policy,
	}, log)

	ex := extraction.NewExtractor(deps.LLM, cfg.Extraction, log)
	ex.Retry = policy

	sum := summary.NewSummarizer(deps.Messages, deps.Memory, deps.LLM, deps.Embedder, cfg.Summary, log)
	sum.Retry = policy

	return &Engine{
		Scopes:     scopes,
		Retrieval:  svc,
		Extractor:  ex,
		Assembler:  assembly.NewAssembler(scopes, svc, deps.Memory, deps.Graph, cb, cfg.Assembly, cfg.Retrieval.TopK, log),
		Summarizer: sum,
		Scheduler:  summary.NewScheduler(sum, time.Duration(cfg.Summary.TimeoutSeconds)*time.Second, log),
		Graph:      deps.Graph,
		Breaker:    cb,
		log:        log.Named("engine"),
	}
}

// IndexResult reports what IndexStory did. GraphStatus uses the assembly graph statuses.
type IndexResult struct {
	StoryID       string `json:"story_id"`
	Chunks        int    `json:"chunks"`
	Entities      int    `json:"entities"`
	Relationships int    `json:"relationships"`
	GraphStatus   string `json:"graph_status"`
	GraphError    string `json:"graph_error,omitempty"`
}

// IndexStory replaces the story's chunks, then extracts entities and syncs them to
// the graph when one is selected and the breaker allows. Graph problems are
// reported in the result and never fail the call.
func (e *Engine) IndexStory(ctx context.Context, story model.Story) (IndexResult, error) {
	n, err := e.Retrieval.Index(ctx, story)
	if err != nil {
		return IndexResult{}, err
	}
	res := IndexResult{StoryID: story.ID, Chunks: n}

	err = e.guardGraph(ctx, &res.GraphStatus, func(ctx context.Context) error {
		ents := e.Extractor.ExtractFiltered(ctx, story.Title+"\n\n"+story.Content)
		stats, err := extraction.SyncToGraph(ctx, e.Graph.Adapter, story, ents)
		res.Entities, res.Relationships = stats.Entities, stats.Relationships
		return err
	})
	if err != nil {
		res.GraphError = err.Error()
	}

	e.log.Info("story indexed",
		zap.String("story_id", story.ID),
		zap.Int("chunks", n),
		zap.Int("entities", res.Entities),
		zap.String("graph_status", res.GraphStatus),
	)
	return res, nil
}

type DeleteResult struct {
	StoryID     string `json:"story_id"`
	Chunks      int    `json:"chunks"`
	GraphStatus string `json:"graph_status"`
	GraphError  string `json:"graph_error,omitempty"`
}

// DeleteStory removes the story's chunks and its graph node.
func (e *Engine) DeleteStory(ctx context.Context, storyID string) (DeleteResult, error) {
	n, err := e.Retrieval.Delete(ctx, storyID)
	if err != nil {
		return DeleteResult{}, err
	}
	res := DeleteResult{StoryID: storyID, Chunks: n}
	err = e.guardGraph(ctx, &res.GraphStatus, func(ctx context.Context) error {
		return extraction.RemoveFromGraph(ctx, e.Graph.Adapter, storyID)
	})
	if err != nil {
		res.GraphError = err.Error()
	}
	return res, nil
}

// guardGraph runs fn against the graph behind the breaker and records the outcome.
func (e *Engine) guardGraph(ctx context.Context, status *string, fn func(context.Context) error) error {
	if !e.Graph.Enabled() {
		*status = assembly.GraphDisabled
		return nil
	}
	if !e.Breaker.AllowRequest() {
		*status = assembly.GraphCircuitOpen
		return nil
	}
	if err := fn(ctx); err != nil {
		*status = assembly.GraphFailed
		if ctx.Err() == nil {
			e.Breaker.RecordFailure()
		}
		e.log.Warn("graph write failed", zap.String("breaker_state", string(e.Breaker.State())), zap.Error(err))
		return err
	}
	e.Breaker.RecordSuccess()
	*status = assembly.GraphOK
	return nil
}

func (e *Engine) AssembleContext(ctx context.Context, req assembly.Request) (*assembly.AssembledContext, error) {
	return e.Assembler.Assemble(ctx, req)
}

// AfterAssistantTurn schedules background summarization for a member's conversation.
// It reports false once the engine is shutting down.
func (e *Engine) AfterAssistantTurn(ctx context.Context, conversationID, userID, legacyID string) (bool, error) {
	if err := e.checkMember(ctx, conversationID, userID, legacyID); err != nil {
		return false, err
	}
	return e.Scheduler.Trigger(conversationID, userID, legacyID), nil
}

// Summarize runs summarization synchronously.
func (e *Engine) Summarize(ctx context.Context, conversationID, userID, legacyID string) (summary.Result, error) {
	if err := e.checkMember(ctx, conversationID, userID, legacyID); err != nil {
		return summary.Result{}, err
	}
	return e.Summarizer.MaybeSummarize(ctx, conversationID, userID, legacyID)
}

func (e *Engine) checkMember(ctx context.Context, conversationID, userID, legacyID string) error {
	if conversationID == "" || userID == "" || legacyID == "" {
		return apperr.Invalid("conversation_id, user_id and legacy_id are required")
	}
	_, err := e.Scopes.Resolve(ctx, userID, legacyID)
	return err
}

type GraphHealth struct {
	Kind    graph.Kind       `json:"kind"`
	Healthy bool             `json:"healthy"`
	Breaker breaker.Snapshot `json:"breaker"`
}

type Health struct {
	Status string      `json:"status"`
	Graph  GraphHealth `json:"graph"`
}

// Health is "ok" unless a selected graph fails its health check, which is "degraded".
// The engine keeps serving in both cases.
func (e *Engine) Health(ctx context.Context) Health {
	h := Health{Status: "ok", Graph: GraphHealth{Kind: e.Graph.Kind, Breaker: e.Breaker.Snapshot()}}
	if e.Graph.Enabled() {
		h.Graph.Healthy = e.Graph.Adapter.HealthCheck(ctx)
		if !h.Graph.Healthy {
			h.Status = "degraded"
		}
	}
	return h
}

// Shutdown drains background summaries, then closes the graph adapter.
func (e *Engine) Shutdown(ctx context.Context) error {
	var errs []error
	if err := e.Scheduler.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("summary scheduler: %w", err))
	}
	if e.Graph.Enabled() {
		if err := e.Graph.Adapter.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("graph adapter: %w", err))
		}
	}
	return errors.Join(errs...)
}
