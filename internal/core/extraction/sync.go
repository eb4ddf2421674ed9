package extraction

import (
	"context"
	"fmt"

	"github.com/agenthands/keepsake/internal/core/model"
	"github.com/agenthands/keepsake/internal/graph"
)

// SyncStats counts what a graph sync wrote.
type SyncStats struct {
	Entities      int
	Relationships int
}

// SyncToGraph projects a story and its (already filtered) entities into the graph.
// The story node is recreated so mentions from a previous version do not linger.
// Entity ids are stable per legacy and name, so repeated mentions merge.
func SyncToGraph(ctx context.Context, g graph.Adapter, story model.Story, ents model.ExtractedEntities) (SyncStats, error) {
	var stats SyncStats
	legacy := graph.NodeRef{Label: model.LabelLegacy, ID: story.LegacyID}
	storyRef := graph.NodeRef{Label: model.LabelStory, ID: story.ID}

	if err := g.UpsertNode(ctx, model.LabelLegacy, story.LegacyID, map[string]any{"legacy_id": story.LegacyID}); err != nil {
		return stats, fmt.Errorf("upsert legacy node: %w", err)
	}
	if err := g.DeleteNode(ctx, model.LabelStory, story.ID); err != nil {
		return stats, fmt.Errorf("reset story node: %w", err)
	}

	props := story.Node().Properties()
	if len(ents.TimeReferences) > 0 {
		times := make([]string, 0, len(ents.TimeReferences))
		for _, tr := range ents.TimeReferences {
			times = append(times, tr.Text)
		}
		props["time_references"] = times
	}
	if err := g.UpsertNode(ctx, model.LabelStory, story.ID, props); err != nil {
		return stats, fmt.Errorf("upsert story node: %w", err)
	}
	if err := g.CreateRelationship(ctx, model.RelHasStory, legacy, storyRef, nil); err != nil {
		return stats, fmt.Errorf("link story to legacy: %w", err)
	}
	stats.Relationships++

	groups := []struct {
		label string
		items []model.ExtractedEntity
	}{
		{model.LabelPerson, ents.People},
		{model.LabelPlace, ents.Places},
		{model.LabelEvent, ents.Events},
		{model.LabelObject, ents.Objects},
	}
	for _, grp := range groups {
		for _, item := range grp.items {
			node := model.EntityNode{
				Label:        grp.label,
				Name:         item.Name,
				LegacyID:     story.LegacyID,
				Context:      item.Context,
				Relationship: item.Relationship,
				Confidence:   item.Confidence,
			}
			ref := graph.NodeRef{Label: grp.label, ID: node.ID()}
			if err := g.UpsertNode(ctx, grp.label, ref.ID, node.Properties()); err != nil {
				return stats, fmt.Errorf("upsert %s %q: %w", grp.label, item.Name, err)
			}
			stats.Entities++

			if err := g.CreateRelationship(ctx, model.RelMentions, storyRef, ref, map[string]any{"confidence": item.Confidence}); err != nil {
				return stats, fmt.Errorf("link mention %q: %w", item.Name, err)
			}
			stats.Relationships++

			if grp.label == model.LabelPerson && item.Relationship != "" {
				err := g.CreateRelationship(ctx, model.RelRelatedTo, legacy, ref, map[string]any{"relationship": item.Relationship})
				if err != nil {
					return stats, fmt.Errorf("link relationship %q: %w", item.Name, err)
				}
				stats.Relationships++
			}
		}
	}
	return stats, nil
}

// RemoveFromGraph deletes a story node and its edges. Entity nodes stay; other
// stories may mention them.
func RemoveFromGraph(ctx context.Context, g graph.Adapter, storyID string) error {
	if err := g.DeleteNode(ctx, model.LabelStory, storyID); err != nil {
		return fmt.Errorf("delete story node: %w", err)
	}
	return nil
}
