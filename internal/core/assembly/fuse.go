package assembly

import (
	"slices"
	"sort"
	"strings"

	"github.com/agenthands/keepsake/internal/chunker"
	"github.com/agenthands/keepsake/internal/core/model"
	"github.com/agenthands/keepsake/internal/graph"
)

type ItemKind string

const (
	KindStoryChunk ItemKind = "story_chunk"
	// KindStory is a graph-found story none of whose chunks were retrieved.
	KindStory  ItemKind = "story"
	KindEntity ItemKind = "entity"
	KindFact   ItemKind = "fact"
	KindMemory ItemKind = "memory"
)

const (
	SourceEmbedding = "embedding"
	SourceGraph     = "graph"
	SourceFacts     = "facts"
	SourceMemory    = "memory"
)

// Item is one fused, ranked piece of context.
type Item struct {
	Kind     ItemKind `json:"kind"`
	ID       string   `json:"id"`
	Section  string   `json:"section"`
	Text     string   `json:"text"`
	Score    float64  `json:"score"`
	Sources  []string `json:"sources"`
	ParentID string   `json:"parent_id,omitempty"`
	LegacyID string   `json:"legacy_id,omitempty"`
	Linked   bool     `json:"linked,omitempty"`
	Tokens   int      `json:"tokens"`
}

// EntityResult is a graph entity that at least one permitted story mentions.
type EntityResult struct {
	Label        string   `json:"label"`
	Name         string   `json:"name"`
	Relationship string   `json:"relationship,omitempty"`
	Context      string   `json:"context,omitempty"`
	Confidence   float64  `json:"confidence"`
	Depth        int      `json:"depth"`
	StoryIDs     []string `json:"story_ids"`
}

type scoredFact struct {
	model.Fact
	Relevance float64
}

// lanes holds what each retrieval branch produced, already scope-checked.
type lanes struct {
	chunks   []model.ScoredChunk
	memories []model.ScoredConversationChunk
	facts    []scoredFact
	stories  []graph.RelatedStory
	entities []EntityResult
}

// storyRelevance grows with the number of matched entities a story mentions.
func storyRelevance(s graph.RelatedStory) float64 {
	return min(0.5+0.1*float64(len(s.Mentions)), 1.0)
}

// fuse dedupes by identity, combines lane scores with w and orders by score.
// A chunk whose story was also found through the graph gets the graph score added.
func fuse(l lanes, w Weights) []Item {
	byKey := make(map[string]*Item)
	var order []string
	add := func(it Item) {
		key := string(it.Kind) + ":" + it.ID
		if cur, ok := byKey[key]; ok {
			cur.Score = max(cur.Score, it.Score)
			for _, src := range it.Sources {
				if !slices.Contains(cur.Sources, src) {
					cur.Sources = append(cur.Sources, src)
				}
			}
			return
		}
		byKey[key] = &it
		order = append(order, key)
	}

	boost := make(map[string]float64, len(l.stories))
	for _, s := range l.stories {
		boost[s.ID] = storyRelevance(s)
	}

	retrieved := make(map[string]bool)
	for _, c := range l.chunks {
		score := w.Story * c.Similarity
		sources := []string{SourceEmbedding}
		if b, ok := boost[c.ParentID]; ok {
			score += w.Graph * b
			sources = append(sources, SourceGraph)
		}
		retrieved[c.ParentID] = true
		text := oneLine(c.Text)
		if c.Linked {
			text = "(from a linked legacy) " + text
		}
		add(Item{
			Kind: KindStoryChunk, ID: c.ID, Section: SectionStories, Text: text, Score: score,
			Sources: sources, ParentID: c.ParentID, LegacyID: c.LegacyID, Linked: c.Linked,
		})
	}

	for _, s := range l.stories {
		if retrieved[s.ID] {
			continue
		}
		add(Item{
			Kind: KindStory, ID: s.ID, Section: SectionStories, Text: storyText(s),
			Score: 0.5 * w.Graph * storyRelevance(s), Sources: []string{SourceGraph}, LegacyID: s.LegacyID,
		})
	}

	for _, e := range l.entities {
		add(Item{
			Kind: KindEntity, ID: e.Label + ":" + model.NormalizeName(e.Name), Section: sectionForLabel(e.Label),
			Text: entityText(e), Score: w.Graph * e.Confidence / float64(max(e.Depth, 1)), Sources: []string{SourceGraph},
		})
	}

	for _, f := range l.facts {
		add(Item{
			Kind: KindFact, ID: f.ID, Section: SectionFacts, Text: factText(f.Fact),
			Score: w.Fact * f.Relevance, Sources: []string{SourceFacts}, LegacyID: f.LegacyID,
		})
	}

	for _, m := range l.memories {
		add(Item{
			Kind: KindMemory, ID: m.ID, Section: SectionMemories, Text: oneLine(m.Summary),
			Score: w.Memory * m.Similarity, Sources: []string{SourceMemory}, LegacyID: m.LegacyID,
		})
	}

	out := make([]Item, 0, len(order))
	for _, key := range order {
		it := *byKey[key]
		it.Tokens = chunker.EstimateTokens(bullet(it))
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// trimToBudget keeps items in order while they fit. A section's header is paid
// for by the first item placed in it. Items that do not fit are skipped so a
// smaller, lower-ranked item may still use the remaining budget.
func trimToBudget(items []Item, budget int) (kept []Item, used int) {
	opened := make(map[string]bool)
	for _, it := range items {
		cost := it.Tokens
		if !opened[it.Section] {
			cost += chunker.EstimateTokens(header(it.Section))
		}
		if used+cost > budget {
			continue
		}
		used += cost
		opened[it.Section] = true
		kept = append(kept, it)
	}
	return kept, used
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
