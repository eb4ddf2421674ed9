// Package assembly builds the token-bounded context handed to the language model
// on every assistant turn. Embedding, fact and graph retrieval run in parallel;
// the graph branch is guarded by a circuit breaker and never fails the call.
package assembly

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agenthands/keepsake/internal/apperr"
	"github.com/agenthands/keepsake/internal/breaker"
	"github.com/agenthands/keepsake/internal/config"
	"github.com/agenthands/keepsake/internal/core/model"
	"github.com/agenthands/keepsake/internal/graph"
)

const (
	defaultTopK        = 8
	maxGraphQueryNames = 50
)

type ScopeResolver interface {
	Scope(ctx context.Context, userID, legacyID string) (model.Scope, error)
}

type ChunkRetriever interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Query(ctx context.Context, vector []float32, scope model.Scope, k int) ([]model.ScoredChunk, error)
}

type MemoryReader interface {
	SearchConversationChunks(ctx context.Context, legacyID, userID string, vector []float32, k int) ([]model.ScoredConversationChunk, error)
	ListVisibleFacts(ctx context.Context, legacyID, userID string) ([]model.Fact, error)
}

type Request struct {
	UserID   string `json:"user_id"`
	LegacyID string `json:"legacy_id"`
	Query    string `json:"query"`
	Persona  string `json:"persona,omitempty"`
	// TokenBudget overrides the configured budget when positive.
	TokenBudget int `json:"token_budget,omitempty"`
}

type GraphResults struct {
	Entities []EntityResult       `json:"entities"`
	Stories  []graph.RelatedStory `json:"stories"`
}

// Metadata describes how a context was assembled. It is part of the response contract.
type Metadata struct {
	Intent              Intent            `json:"intent"`
	IntentConfidence    float64           `json:"intent_confidence"`
	Persona             Persona           `json:"persona"`
	Weights             Weights           `json:"weights"`
	Counts              map[string]int    `json:"counts"`
	LatenciesMS         map[string]int64  `json:"latencies_ms"`
	CircuitBreakerState breaker.State     `json:"circuit_breaker_state"`
	GraphBackend        graph.Kind        `json:"graph_backend"`
	GraphStatus         string            `json:"graph_status"`
	Sources             []string          `json:"sources"`
	Errors              map[string]string `json:"errors,omitempty"`
	TokensUsed          int               `json:"tokens_used"`
	TokenBudget         int               `json:"token_budget"`
}

type AssembledContext struct {
	FormattedText    string              `json:"formatted_text"`
	EmbeddingResults []model.ScoredChunk `json:"embedding_results"`
	GraphResults     GraphResults        `json:"graph_results"`
	Items            []Item              `json:"items"`
	Metadata         Metadata            `json:"metadata"`
}

// Graph branch outcomes reported in Metadata.GraphStatus.
const (
	GraphOK          = "ok"
	GraphDisabled    = "disabled"
	GraphCircuitOpen = "circuit_open"
	GraphFailed      = "failed"
)

type Assembler struct {
	Scopes  ScopeResolver
	Chunks  ChunkRetriever
	Memory  MemoryReader
	Graph   graph.Selection
	Breaker *breaker.CircuitBreaker
	Config  config.AssemblyConfig
	TopK    int

	log    *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewAssembler wires the assembler. A nil breaker gets a default one guarding the graph.
func NewAssembler(scopes ScopeResolver, chunks ChunkRetriever, memory MemoryReader, sel graph.Selection, cb *breaker.CircuitBreaker, cfg config.AssemblyConfig, topK int, log *zap.Logger) *Assembler {
	if log == nil {
		log = zap.NewNop()
	}
	if cb == nil {
		cb = breaker.New(breaker.Config{Name: "graph", FailureThreshold: 3, RecoveryTimeout: 30 * time.Second}, nil)
	}
	if topK <= 0 {
		topK = defaultTopK
	}
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = 2000
	}
	if cfg.GraphTimeoutMS <= 0 {
		cfg.GraphTimeoutMS = 1500
	}
	if cfg.GraphDepth <= 0 {
		cfg.GraphDepth = 2
	}
	if cfg.GraphLimit <= 0 {
		cfg.GraphLimit = 20
	}
	if cfg.FactLimit <= 0 {
		cfg.FactLimit = 20
	}
	if cfg.MemoryLimit <= 0 {
		cfg.MemoryLimit = 3
	}
	if sel.Kind == "" {
		sel.Kind = graph.KindDisabled
	}
	return &Assembler{
		Scopes:  scopes,
		Chunks:  chunks,
		Memory:  memory,
		Graph:   sel,
		Breaker: cb,
		Config:  cfg,
		TopK:    topK,
		log:     log.Named("assembly"),
		tracer:  otel.Tracer("github.com/agenthands/keepsake/internal/core/assembly"),
		now:     time.Now,
	}
}

type embeddingOutcome struct {
	chunks    []model.ScoredChunk
	memories  []model.ScoredConversationChunk
	err       error
	memoryErr error
	took      time.Duration
}

type factOutcome struct {
	facts []scoredFact
	err   error
	took  time.Duration
}

type graphOutcome struct {
	status   string
	stories  []graph.RelatedStory
	entities []EntityResult
	err      error
	took     time.Duration
}

// Assemble resolves the caller's scope, fans out to every retrieval lane and fuses
// the results into a budgeted context. Lane failures degrade the result and are
// reported in Metadata.Errors; only validation, access and cancellation errors fail it.
func (a *Assembler) Assemble(ctx context.Context, req Request) (*AssembledContext, error) {
	ctx, span := a.tracer.Start(ctx, "assembly.Assemble")
	defer span.End()
	start := a.now()

	req.Query = strings.TrimSpace(req.Query)
	if req.UserID == "" || req.LegacyID == "" || req.Query == "" {
		return nil, apperr.Invalid("user_id, legacy_id and query are required")
	}
	budget := req.TokenBudget
	if budget <= 0 {
		budget = a.Config.TokenBudget
	}

	cls := ClassifyIntent(req.Query)
	persona := ParsePersona(req.Persona, Persona(a.Config.DefaultPersona))
	w := WeightsFor(cls.Intent, persona, a.Config.GraphDepth)
	span.SetAttributes(
		attribute.String("assembly.intent", string(cls.Intent)),
		attribute.String("assembly.persona", string(persona)),
		attribute.String("assembly.legacy_id", req.LegacyID),
	)

	scope, err := a.Scopes.Scope(ctx, req.UserID, req.LegacyID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scope")
		return nil, err
	}

	var (
		emb   embeddingOutcome
		facts factOutcome
		gr    graphOutcome
		g     errgroup.Group
	)
	g.Go(func() error {
		emb = a.embeddingLane(ctx, req, scope)
		return nil
	})
	g.Go(func() error {
		facts = a.factLane(ctx, req)
		return nil
	})
	g.Go(func() error {
		gr = a.graphLane(ctx, req, scope, w)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cancelled")
		return nil, err
	}

	meta := Metadata{
		Intent:              cls.Intent,
		IntentConfidence:    cls.Confidence,
		Persona:             persona,
		Weights:             w,
		Counts:              map[string]int{},
		LatenciesMS:         map[string]int64{},
		CircuitBreakerState: a.Breaker.State(),
		GraphBackend:        a.Graph.Kind,
		GraphStatus:         gr.status,
		Errors:              map[string]string{},
		TokenBudget:         budget,
	}
	meta.LatenciesMS["embedding"] = emb.took.Milliseconds()
	meta.LatenciesMS["facts"] = facts.took.Milliseconds()
	meta.LatenciesMS["graph"] = gr.took.Milliseconds()
	recordErr := func(lane string, err error) {
		if err != nil {
			meta.Errors[lane] = err.Error()
		}
	}
	recordErr("embedding", emb.err)
	recordErr("memory", emb.memoryErr)
	recordErr("facts", facts.err)
	recordErr("graph", gr.err)

	l := lanes{
		chunks:   emb.chunks,
		memories: emb.memories,
		facts:    facts.facts,
		stories:  gr.stories,
		entities: gr.entities,
	}
	fused := fuse(l, w)
	kept, used := trimToBudget(fused, budget)

	meta.TokensUsed = used
	meta.Counts["story_chunks"] = len(l.chunks)
	meta.Counts["memories"] = len(l.memories)
	meta.Counts["facts"] = len(l.facts)
	meta.Counts["graph_stories"] = len(l.stories)
	meta.Counts["graph_entities"] = len(l.entities)
	meta.Counts["candidates"] = len(fused)
	meta.Counts["included"] = len(kept)
	meta.Counts["dropped"] = len(fused) - len(kept)
	meta.Sources = sourcesOf(kept)
	if len(meta.Errors) == 0 {
		meta.Errors = nil
	}

	meta.LatenciesMS["total"] = a.now().Sub(start).Milliseconds()

	out := &AssembledContext{
		FormattedText:    format(kept),
		EmbeddingResults: l.chunks,
		GraphResults:     GraphResults{Entities: l.entities, Stories: l.stories},
		Items:            kept,
		Metadata:         meta,
	}

	span.SetAttributes(
		attribute.Int("assembly.items", len(kept)),
		attribute.Int("assembly.tokens_used", used),
		attribute.String("assembly.circuit_breaker_state", string(meta.CircuitBreakerState)),
	)
	a.log.Debug("context assembled",
		zap.String("legacy_id", req.LegacyID),
		zap.String("intent", string(cls.Intent)),
		zap.String("graph_status", gr.status),
		zap.Int("items", len(kept)),
		zap.Int("tokens_used", used),
	)
	return out, nil
}

func (a *Assembler) embeddingLane(ctx context.Context, req Request, scope model.Scope) (out embeddingOutcome) {
	ctx, span := a.tracer.Start(ctx, "assembly.embedding")
	defer span.End()
	start := a.now()
	defer func() { out.took = a.now().Sub(start) }()

	vec, err := a.Chunks.EmbedQuery(ctx, req.Query)
	if err != nil {
		out.err = fmt.Errorf("embed query: %w", err)
		a.laneFailed(span, "embedding", out.err)
		return out
	}

	out.chunks, out.err = a.Chunks.Query(ctx, vec, scope, a.TopK)
	if out.err != nil {
		a.laneFailed(span, "embedding", out.err)
	}
	// The scope is re-checked here whatever the store did.
	permitted := out.chunks[:0]
	for _, c := range out.chunks {
		if scope.Permits(c.LegacyID, c.Visibility, c.OwnerID, c.ParentID) {
			permitted = append(permitted, c)
		}
	}
	out.chunks = permitted

	if a.Memory != nil {
		out.memories, out.memoryErr = a.Memory.SearchConversationChunks(ctx, req.LegacyID, req.UserID, vec, a.Config.MemoryLimit)
		if out.memoryErr != nil {
			a.laneFailed(span, "memory", out.memoryErr)
		}
	}
	span.SetAttributes(attribute.Int("chunks", len(out.chunks)), attribute.Int("memories", len(out.memories)))
	return out
}

func (a *Assembler) factLane(ctx context.Context, req Request) (out factOutcome) {
	ctx, span := a.tracer.Start(ctx, "assembly.facts")
	defer span.End()
	start := a.now()
	defer func() { out.took = a.now().Sub(start) }()

	if a.Memory == nil {
		return out
	}
	facts, err := a.Memory.ListVisibleFacts(ctx, req.LegacyID, req.UserID)
	if err != nil {
		out.err = err
		a.laneFailed(span, "facts", err)
		return out
	}
	out.facts = scoreFacts(req.Query, facts, a.Config.FactLimit)
	span.SetAttributes(attribute.Int("facts", len(out.facts)))
	return out
}

// graphLane asks the breaker first. Any error other than the caller's own
// cancellation, including the lane timeout, is recorded as a breaker failure.
func (a *Assembler) graphLane(ctx context.Context, req Request, scope model.Scope, w Weights) (out graphOutcome) {
	if !a.Graph.Enabled() {
		out.status = GraphDisabled
		return out
	}
	if !a.Breaker.AllowRequest() {
		out.status = GraphCircuitOpen
		return out
	}

	ctx, span := a.tracer.Start(ctx, "assembly.graph")
	defer span.End()
	start := a.now()
	defer func() { out.took = a.now().Sub(start) }()

	gctx, cancel := context.WithTimeout(ctx, time.Duration(a.Config.GraphTimeoutMS)*time.Millisecond)
	defer cancel()

	stories, entities, err := a.traverse(gctx, req, scope, w)
	if err != nil {
		if ctx.Err() != nil {
			out.status, out.err = GraphFailed, ctx.Err()
			return out
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = apperr.DependencyUnavailable("graph", fmt.Errorf("timed out after %dms: %w", a.Config.GraphTimeoutMS, err))
		}
		a.Breaker.RecordFailure()
		a.log.Warn("graph retrieval failed, continuing without it",
			zap.String("legacy_id", req.LegacyID),
			zap.String("breaker_state", string(a.Breaker.State())),
			zap.Error(err),
		)
		a.laneFailed(span, "graph", err)
		out.status, out.err = GraphFailed, err
		return out
	}
	a.Breaker.RecordSuccess()
	out.status, out.stories, out.entities = GraphOK, stories, entities
	span.SetAttributes(attribute.Int("stories", len(stories)), attribute.Int("entities", len(entities)))
	return out
}

// traverse walks out from the legacy node to collect entity names, then finds
// stories in every scoped legacy that mention them. Stories are checked against
// the scope; an entity is only returned when a permitted story mentions it.
func (a *Assembler) traverse(ctx context.Context, req Request, scope model.Scope, w Weights) ([]graph.RelatedStory, []EntityResult, error) {
	// Entities hang off stories, so one extra hop reaches them.
	conns, err := a.Graph.Adapter.GetConnections(ctx, graph.NodeRef{Label: model.LabelLegacy, ID: req.LegacyID}, w.Depth+1)
	if err != nil {
		return nil, nil, err
	}

	type candidate struct {
		conn graph.Connection
		name string
	}
	var all, matched []candidate
	query := " " + normalizeQuery(req.Query) + " "
	seen := make(map[string]bool)
	for _, c := range conns {
		if !isEntityLabel(c.Node.Label) {
			continue
		}
		name := propString(c.Node.Properties, "name")
		norm := model.NormalizeName(name)
		if norm == "" || seen[c.Node.Label+":"+norm] {
			continue
		}
		seen[c.Node.Label+":"+norm] = true
		cand := candidate{conn: c, name: name}
		all = append(all, cand)
		if strings.Contains(query, " "+normalizeQuery(name)+" ") {
			matched = append(matched, cand)
		}
	}
	pick := all
	if len(matched) > 0 {
		pick = matched
	}
	if len(pick) > maxGraphQueryNames {
		pick = pick[:maxGraphQueryNames]
	}
	if len(pick) == 0 {
		return nil, nil, nil
	}

	names := make([]string, 0, len(pick))
	for _, c := range pick {
		names = append(names, c.name)
	}
	found, err := a.Graph.Adapter.GetRelatedStories(ctx, graph.RelatedStoriesQuery{
		LegacyIDs:   scope.LegacyIDs(),
		EntityNames: names,
		Limit:       a.Config.GraphLimit,
	})
	if err != nil {
		return nil, nil, err
	}

	var stories []graph.RelatedStory
	mentionedBy := make(map[string][]string)
	for _, s := range found {
		if !scope.Permits(s.LegacyID, s.Visibility, s.AuthorID, s.ID) {
			continue
		}
		stories = append(stories, s)
		for _, m := range s.Mentions {
			norm := model.NormalizeName(m)
			mentionedBy[norm] = append(mentionedBy[norm], s.ID)
		}
	}

	var entities []EntityResult
	for _, c := range pick {
		ids := mentionedBy[model.NormalizeName(c.name)]
		if len(ids) == 0 {
			continue
		}
		p := c.conn.Node.Properties
		conf := propFloat(p, "confidence")
		if conf <= 0 {
			conf = 0.7
		}
		entities = append(entities, EntityResult{
			Label:        c.conn.Node.Label,
			Name:         c.name,
			Relationship: propString(p, "relationship"),
			Context:      propString(p, "context"),
			Confidence:   conf,
			Depth:        max(c.conn.Depth-1, 1),
			StoryIDs:     ids,
		})
	}
	return stories, entities, nil
}

func (a *Assembler) laneFailed(span trace.Span, lane string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, lane)
	if lane != "graph" {
		a.log.Warn("retrieval lane failed", zap.String("lane", lane), zap.Error(err))
	}
}

func isEntityLabel(label string) bool {
	switch label {
	case model.LabelPerson, model.LabelPlace, model.LabelEvent, model.LabelObject:
		return true
	}
	return false
}

func propString(p map[string]any, key string) string {
	s, _ := p[key].(string)
	return s
}

func propFloat(p map[string]any, key string) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

func sourcesOf(items []Item) []string {
	set := make(map[string]bool)
	for _, it := range items {
		for _, s := range it.Sources {
			set[s] = true
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

var factStopwords = map[string]bool{
	"the": true, "and": true, "about": true, "tell": true, "what": true, "was": true, "were": true,
	"did": true, "how": true, "who": true, "her": true, "his": true, "she": true, "him": true,
	"you": true, "for": true, "with": true, "that": true, "this": true, "does": true, "have": true,
}

func terms(text string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(normalizeQuery(text)) {
		if len(w) >= 3 && !factStopwords[w] {
			out[w] = true
		}
	}
	return out
}

// scoreFacts ranks facts by word overlap with the query. Ties keep the store's
// newest-first order. Every fact scores at least 0.2.
func scoreFacts(query string, facts []model.Fact, limit int) []scoredFact {
	q := terms(query)
	out := make([]scoredFact, 0, len(facts))
	for _, f := range facts {
		rel := 0.2
		if len(q) > 0 {
			words := terms(f.Category + " " + f.Content)
			hits := 0
			for t := range q {
				if words[t] {
					hits++
				}
			}
			rel += 0.8 * float64(hits) / float64(len(q))
		}
		out = append(out, scoredFact{Fact: f, Relevance: rel})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Relevance > out[j].Relevance })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
