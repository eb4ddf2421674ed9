package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/keepsake/internal/apperr"
	"github.com/agenthands/keepsake/internal/breaker"
	"github.com/agenthands/keepsake/internal/config"
	"github.com/agenthands/keepsake/internal/core/assembly"
	"github.com/agenthands/keepsake/internal/core/model"
	"github.com/agenthands/keepsake/internal/core/summary"
	"github.com/agenthands/keepsake/internal/graph"
	"github.com/agenthands/keepsake/internal/graph/graphtest"
	"github.com/agenthands/keepsake/internal/llm/llmtest"
	"github.com/agenthands/keepsake/internal/store/memory"
)

const entitiesJSON = `{
	"people": [{"name": "Rose Miller", "relationship": "sister", "confidence": 0.9}],
	"places": [{"name": "Main Street", "confidence": 0.8}],
	"events": [],
	"objects": [{"name": "the old oven", "confidence": 0.2}],
	"time_references": []
}`

const conversationJSON = `{"summary": "Talked about the bakery.", "facts": [{"category": "career", "content": "Rose ran the bakery", "visibility": "shared"}]}`

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Summary.MessageThreshold = 4
	cfg.Retry = config.RetryConfig{MaxTries: 2, InitialBackoffMS: 1, MaxBackoffMS: 2}
	return cfg
}

type harness struct {
	st       *memory.Store
	graph    *graphtest.MemoryAdapter
	streamer *llmtest.ScriptedStreamer
	engine   *Engine
}

func newHarness(t *testing.T, withGraph bool, responses ...string) *harness {
	t.Helper()
	h := &harness{
		st:       memory.New(),
		graph:    graphtest.New(),
		streamer: &llmtest.ScriptedStreamer{Responses: responses},
	}
	h.st.PutMembership(model.Membership{LegacyID: "l1", UserID: "u1", Role: model.RoleCreator})

	sel := graph.Selection{Kind: graph.KindDisabled}
	if withGraph {
		sel = graph.Selection{Kind: graph.KindLocal, Adapter: h.graph}
	}
	h.engine = NewEngine(testConfig(), Deps{
		Members:  h.st,
		Links:    h.st,
		Messages: h.st,
		Chunks:   h.st,
		Memory:   h.st,
		LLM:      h.streamer,
		Embedder: &llmtest.HashEmbedder{},
		Graph:    sel,
	}, nil)
	t.Cleanup(func() { _ = h.engine.Shutdown(context.Background()) })
	return h
}

var bakery = model.Story{
	ID: "s1", LegacyID: "l1", AuthorID: "u1", Title: "The Bakery",
	Content:    "Rose Miller ran the bakery on Main Street with her sister.",
	Visibility: model.VisibilityPublic,
}

func TestIndexStorySyncsFilteredEntities(t *testing.T) {
	h := newHarness(t, true, entitiesJSON)

	res, err := h.engine.IndexStory(context.Background(), bakery)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Chunks)
	assert.Equal(t, assembly.GraphOK, res.GraphStatus)
	assert.Equal(t, 2, res.Entities)
	assert.Empty(t, res.GraphError)

	_, ok := h.graph.Node(model.LabelStory, "s1")
	assert.True(t, ok)
	person := model.EntityNode{Label: model.LabelPerson, Name: "Rose Miller", LegacyID: "l1"}
	props, ok := h.graph.Node(model.LabelPerson, person.ID())
	require.True(t, ok)
	assert.Equal(t, "sister", props["relationship"])
	assert.Len(t, h.st.Chunks("s1"), 1)

	require.Equal(t, 1, h.streamer.CallCount())
	assert.Contains(t, h.streamer.Requests[0].Messages[0].Content, "The Bakery")
}

func TestIndexStoryWithoutGraphSkipsExtraction(t *testing.T) {
	h := newHarness(t, false, entitiesJSON)

	res, err := h.engine.IndexStory(context.Background(), bakery)
	require.NoError(t, err)
	assert.Equal(t, assembly.GraphDisabled, res.GraphStatus)
	assert.Zero(t, h.streamer.CallCount())
	assert.Len(t, h.st.Chunks("s1"), 1)
}

func TestIndexStoryGraphFailuresTripBreaker(t *testing.T) {
	h := newHarness(t, true, entitiesJSON)
	h.graph.SetFail(errors.New("bolt: connection reset"))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := h.engine.IndexStory(ctx, bakery)
		require.NoError(t, err)
		assert.Equal(t, assembly.GraphFailed, res.GraphStatus)
		assert.Contains(t, res.GraphError, "connection reset")
	}
	require.Equal(t, breaker.StateOpen, h.engine.Breaker.State())

	calls := h.streamer.CallCount()
	res, err := h.engine.IndexStory(ctx, bakery)
	require.NoError(t, err)
	assert.Equal(t, assembly.GraphCircuitOpen, res.GraphStatus)
	assert.Equal(t, 1, res.Chunks)
	assert.Equal(t, calls, h.streamer.CallCount())
}

func TestDeleteStory(t *testing.T) {
	h := newHarness(t, true, entitiesJSON)
	ctx := context.Background()
	_, err := h.engine.IndexStory(ctx, bakery)
	require.NoError(t, err)

	res, err := h.engine.DeleteStory(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Chunks)
	assert.Equal(t, assembly.GraphOK, res.GraphStatus)
	assert.Empty(t, h.st.Chunks("s1"))
	_, ok := h.graph.Node(model.LabelStory, "s1")
	assert.False(t, ok)
}

func TestAssembleContextThroughEngine(t *testing.T) {
	h := newHarness(t, true, entitiesJSON)
	ctx := context.Background()
	_, err := h.engine.IndexStory(ctx, bakery)
	require.NoError(t, err)

	out, err := h.engine.AssembleContext(ctx, assembly.Request{UserID: "u1", LegacyID: "l1", Query: "Who was Rose Miller?"})
	require.NoError(t, err)
	assert.Equal(t, assembly.IntentRelationships, out.Metadata.Intent)
	assert.Equal(t, assembly.GraphOK, out.Metadata.GraphStatus)
	assert.Contains(t, out.FormattedText, "Rose Miller (sister)")
}

func seedConversation(st *memory.Store, conv string, n int) {
	for i := 1; i <= n; i++ {
		st.AppendMessage(model.Message{ID: fmt.Sprintf("m%d", i), ConversationID: conv, Seq: i, Role: "user", Content: "about the bakery"})
	}
}

func TestAfterAssistantTurnSummarizesInBackground(t *testing.T) {
	h := newHarness(t, false, conversationJSON)
	seedConversation(h.st, "c1", 6)
	ctx := context.Background()

	ok, err := h.engine.AfterAssistantTurn(ctx, "c1", "u1", "l1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, h.engine.Shutdown(ctx))
	assert.Len(t, h.st.ConversationChunks("c1"), 1)
	assert.Len(t, h.st.Facts("l1", "u1"), 1)

	ok, err = h.engine.AfterAssistantTurn(ctx, "c1", "u1", "l1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConversationCallsRequireMembership(t *testing.T) {
	h := newHarness(t, false, conversationJSON)
	ctx := context.Background()

	_, err := h.engine.AfterAssistantTurn(ctx, "c1", "stranger", "l1")
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)

	_, err = h.engine.Summarize(ctx, "c1", "stranger", "l1")
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)

	_, err = h.engine.Summarize(ctx, "", "u1", "l1")
	assert.ErrorIs(t, err, apperr.ErrInvalid)
	assert.Zero(t, h.streamer.CallCount())
}

func TestSummarizeIsIdempotent(t *testing.T) {
	h := newHarness(t, false, conversationJSON)
	seedConversation(h.st, "c1", 6)
	ctx := context.Background()

	first, err := h.engine.Summarize(ctx, "c1", "u1", "l1")
	require.NoError(t, err)
	assert.Equal(t, summary.OutcomeSummarized, first.Outcome)

	second, err := h.engine.Summarize(ctx, "c1", "u1", "l1")
	require.NoError(t, err)
	assert.NotEqual(t, summary.OutcomeSummarized, second.Outcome)
	assert.Len(t, h.st.ConversationChunks("c1"), 1)
	assert.Equal(t, 1, h.streamer.CallCount())
}

func TestHealth(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	got := h.engine.Health(ctx)
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, graph.KindLocal, got.Graph.Kind)
	assert.True(t, got.Graph.Healthy)
	assert.Equal(t, breaker.StateClosed, got.Graph.Breaker.State)

	h.graph.SetFail(errors.New("down"))
	got = h.engine.Health(ctx)
	assert.Equal(t, "degraded", got.Status)
	assert.False(t, got.Graph.Healthy)

	disabled := newHarness(t, false)
	got = disabled.engine.Health(ctx)
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, graph.KindDisabled, got.Graph.Kind)
}

func TestShutdownHonorsDeadline(t *testing.T) {
	h := newHarness(t, false)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, h.engine.Shutdown(ctx))
}
