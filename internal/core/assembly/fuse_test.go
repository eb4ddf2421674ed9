package assembly

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/keepsake/internal/chunker"
	"github.com/agenthands/keepsake/internal/core/model"
	"github.com/agenthands/keepsake/internal/graph"
)

func scored(id, parent string, sim float64, text string) model.ScoredChunk {
	return model.ScoredChunk{
		Chunk:      model.Chunk{ID: id, ParentID: parent, LegacyID: "l1", Text: text, Visibility: model.VisibilityPublic},
		Similarity: sim,
	}
}

func TestFuseBoostsChunksFoundThroughGraph(t *testing.T) {
	w := Weights{Story: 1, Graph: 1, Fact: 1, Memory: 1}
	l := lanes{
		chunks: []model.ScoredChunk{
			scored("c1", "s1", 0.9, "The lake house in summer."),
			scored("c2", "s2", 0.6, "Rose ran the bakery on Main Street."),
			scored("c2", "s2", 0.6, "Rose ran the bakery on Main Street."),
		},
		stories: []graph.RelatedStory{
			{ID: "s2", LegacyID: "l1", Title: "The Bakery", Mentions: []string{"Rose Miller"}},
			{ID: "s3", LegacyID: "l1", Title: "Wedding Day", Mentions: []string{"Rose Miller", "St. Mary's"}},
		},
	}

	items := fuse(l, w)
	require.Len(t, items, 3)

	assert.Equal(t, "c2", items[0].ID)
	assert.InDelta(t, 0.6+0.6, items[0].Score, 1e-9)
	assert.Equal(t, []string{SourceEmbedding, SourceGraph}, items[0].Sources)

	assert.Equal(t, "c1", items[1].ID)
	assert.Equal(t, KindStory, items[2].Kind)
	assert.Equal(t, "s3", items[2].ID)
	assert.Equal(t, `"Wedding Day" mentions Rose Miller, St. Mary's`, items[2].Text)
}

func TestFuseAppliesWeights(t *testing.T) {
	l := lanes{
		chunks:   []model.ScoredChunk{scored("c1", "s1", 0.5, "a story chunk")},
		memories: []model.ScoredConversationChunk{{ConversationChunk: model.ConversationChunk{ID: "m1", Summary: "We talked about the farm."}, Similarity: 0.5}},
		facts:    []scoredFact{{Fact: model.Fact{ID: "f1", Category: "Career", Content: "Worked at the mill."}, Relevance: 0.5}},
	}
	items := fuse(l, Weights{Story: 0.2, Fact: 1.0, Memory: 0.6})

	require.Len(t, items, 3)
	assert.Equal(t, []ItemKind{KindFact, KindMemory, KindStoryChunk}, []ItemKind{items[0].Kind, items[1].Kind, items[2].Kind})
	assert.Equal(t, "[career] Worked at the mill.", items[0].Text)
	for _, it := range items {
		assert.Equal(t, chunker.EstimateTokens(bullet(it)), it.Tokens)
	}
}

func TestTrimToBudgetCountsHeaders(t *testing.T) {
	items := []Item{
		{ID: "a", Section: SectionStories, Text: "one two three four five six seven eight", Score: 3},
		{ID: "b", Section: SectionFacts, Text: "one two three four five six seven eight nine ten", Score: 2},
		{ID: "c", Section: SectionStories, Text: "short", Score: 1},
	}
	for i := range items {
		items[i].Tokens = chunker.EstimateTokens(bullet(items[i]))
	}

	storiesHeader := chunker.EstimateTokens(header(SectionStories))
	budget := items[0].Tokens + storiesHeader + items[2].Tokens

	kept, used := trimToBudget(items, budget)
	require.Len(t, kept, 2)
	assert.Equal(t, "a", kept[0].ID)
	assert.Equal(t, "c", kept[1].ID)
	assert.Equal(t, budget, used)

	text := format(kept)
	assert.LessOrEqual(t, chunker.EstimateTokens(text), budget)

	kept, used = trimToBudget(items, 1)
	assert.Empty(t, kept)
	assert.Zero(t, used)
}

func TestFormatOrdersSections(t *testing.T) {
	items := []Item{
		{Section: SectionFacts, Text: "[family] Had three brothers"},
		{Section: SectionStories, Text: "First chunk"},
		{Section: SectionPeople, Text: "Rose Miller (sister)"},
		{Section: SectionStories, Text: "Second chunk"},
		{Section: SectionMemories, Text: "We talked about the mill."},
	}
	got := format(items)
	want := strings.Join([]string{
		"## Related Stories",
		"- First chunk",
		"- Second chunk",
		"",
		"## Connected People",
		"- Rose Miller (sister)",
		"",
		"## Known Facts",
		"- [family] Had three brothers",
		"",
		"## Earlier Conversations",
		"- We talked about the mill.",
	}, "\n")
	assert.Equal(t, want, got)
	assert.Empty(t, format(nil))
}

func TestEntityText(t *testing.T) {
	assert.Equal(t, "Rose Miller (sister): ran the bakery",
		entityText(EntityResult{Name: "Rose Miller", Relationship: "sister", Context: "ran the\nbakery"}))
	assert.Equal(t, "Lake Tahoe", entityText(EntityResult{Name: "Lake Tahoe"}))
	assert.Equal(t, SectionPlaces, sectionForLabel(model.LabelPlace))
	assert.Equal(t, SectionObjects, sectionForLabel(model.LabelObject))
}

func TestScoreFacts(t *testing.T) {
	facts := []model.Fact{
		{ID: "f1", Category: "hobby", Content: "Grew tomatoes every summer"},
		{ID: "f2", Category: "career", Content: "Worked at the textile mill"},
		{ID: "f3", Category: "career", Content: "Retired from the mill in 1990"},
	}
	got := scoreFacts("Tell me about the mill where she worked", facts, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "f2", got[0].ID)
	assert.Equal(t, "f3", got[1].ID)
	assert.Greater(t, got[0].Relevance, got[1].Relevance)

	all := scoreFacts("the", facts, 0)
	require.Len(t, all, 3)
	for _, f := range all {
		assert.InDelta(t, 0.2, f.Relevance, 1e-9)
	}
}
