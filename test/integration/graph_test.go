//go:build integration

package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/keepsake/internal/config"
	"github.com/agenthands/keepsake/internal/core/extraction"
	"github.com/agenthands/keepsake/internal/core/model"
	"github.com/agenthands/keepsake/internal/graph"
)

// TestLocalGraphRoundTrip syncs a story into a live bolt engine, reads it back
// through traversal and related-story lookup, then removes it.
func TestLocalGraphRoundTrip(t *testing.T) {
	_ = godotenv.Load("../../.env")

	cfg := config.Default()
	cfg.ApplyEnv(os.Getenv)
	if os.Getenv("NEO4J_URI") == "" {
		t.Skip("Skipping integration test: NEO4J_URI not set")
	}
	cfg.Graph.Enabled = true
	cfg.Graph.ManagedHost = ""
	cfg.Graph.EnvPrefix = "it" + uuid.NewString()[:8]

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	sel, err := graph.Select(ctx, cfg.Graph, nil)
	require.NoError(t, err)
	require.Equal(t, graph.KindLocal, sel.Kind)
	defer sel.Adapter.Close(ctx)
	require.True(t, sel.Adapter.HealthCheck(ctx))

	legacyID := uuid.NewString()
	story := model.Story{
		ID:         uuid.NewString(),
		LegacyID:   legacyID,
		AuthorID:   "u1",
		Title:      "The Bakery",
		Content:    "Rose Miller ran the bakery on Main Street.",
		Visibility: model.VisibilityPublic,
	}
	ents := model.ExtractedEntities{
		People: []model.ExtractedEntity{{Name: "Rose Miller", Relationship: "sister", Confidence: 0.9}},
		Places: []model.ExtractedEntity{{Name: "Main Street", Confidence: 0.8}},
	}

	stats, err := extraction.SyncToGraph(ctx, sel.Adapter, story, ents)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Entities)

	conns, err := sel.Adapter.GetConnections(ctx, graph.NodeRef{Label: model.LabelLegacy, ID: legacyID}, 2)
	require.NoError(t, err)
	var names []string
	for _, c := range conns {
		if n, ok := c.Node.Properties["name"].(string); ok {
			names = append(names, n)
		}
	}
	assert.ElementsMatch(t, []string{"Rose Miller", "Main Street"}, names)

	stories, err := sel.Adapter.GetRelatedStories(ctx, graph.RelatedStoriesQuery{
		LegacyIDs:   []string{legacyID},
		EntityNames: []string{"rose miller"},
		Limit:       5,
	})
	require.NoError(t, err)
	require.Len(t, stories, 1)
	assert.Equal(t, story.ID, stories[0].ID)

	require.NoError(t, extraction.RemoveFromGraph(ctx, sel.Adapter, story.ID))
	stories, err = sel.Adapter.GetRelatedStories(ctx, graph.RelatedStoriesQuery{
		LegacyIDs:   []string{legacyID},
		EntityNames: []string{"Rose Miller"},
		Limit:       5,
	})
	require.NoError(t, err)
	assert.Empty(t, stories)
}
