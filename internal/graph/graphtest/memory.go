// Package graphtest provides an in-memory graph.Adapter for tests and local runs.
package graphtest

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/agenthands/keepsake/internal/core/model"
	"github.com/agenthands/keepsake/internal/graph"
)

type Rel struct {
	Type  string
	From  graph.NodeRef
	To    graph.NodeRef
	Props map[string]any
}

// MemoryAdapter keeps nodes and relationships in maps. Calls fail with the error
// set by SetFail and wait Delay (or until the context ends) before reading.
type MemoryAdapter struct {
	mu    sync.Mutex
	nodes map[graph.NodeRef]map[string]any
	rels  []Rel
	fail  error
	calls int

	Delay time.Duration
}

var _ graph.Adapter = (*MemoryAdapter)(nil)

func New() *MemoryAdapter {
	return &MemoryAdapter{nodes: make(map[graph.NodeRef]map[string]any)}
}

func (m *MemoryAdapter) SetFail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// Calls returns how many adapter operations were attempted.
func (m *MemoryAdapter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MemoryAdapter) Node(label, id string) (map[string]any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.nodes[graph.NodeRef{Label: label, ID: id}]
	return p, ok
}

func (m *MemoryAdapter) Rels() []Rel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.rels)
}

func (m *MemoryAdapter) enter(ctx context.Context, read bool) error {
	m.mu.Lock()
	m.calls++
	fail := m.fail
	m.mu.Unlock()

	if read && m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail != nil {
		return fail
	}
	return ctx.Err()
}

func (m *MemoryAdapter) UpsertNode(ctx context.Context, label, id string, props map[string]any) error {
	if err := m.enter(ctx, false); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := graph.NodeRef{Label: label, ID: id}
	cur, ok := m.nodes[ref]
	if !ok {
		cur = map[string]any{"id": id}
		m.nodes[ref] = cur
	}
	for k, v := range props {
		cur[k] = v
	}
	return nil
}

func (m *MemoryAdapter) DeleteNode(ctx context.Context, label, id string) error {
	if err := m.enter(ctx, false); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := graph.NodeRef{Label: label, ID: id}
	delete(m.nodes, ref)
	m.rels = slices.DeleteFunc(m.rels, func(r Rel) bool { return r.From == ref || r.To == ref })
	return nil
}

func (m *MemoryAdapter) CreateRelationship(ctx context.Context, relType string, from, to graph.NodeRef, props map[string]any) error {
	if err := m.enter(ctx, false); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[from]; !ok {
		return nil
	}
	if _, ok := m.nodes[to]; !ok {
		return nil
	}
	for i, r := range m.rels {
		if r.Type == relType && r.From == from && r.To == to {
			for k, v := range props {
				m.rels[i].Props[k] = v
			}
			return nil
		}
	}
	p := map[string]any{}
	for k, v := range props {
		p[k] = v
	}
	m.rels = append(m.rels, Rel{Type: relType, From: from, To: to, Props: p})
	return nil
}

func (m *MemoryAdapter) DeleteRelationship(ctx context.Context, relType string, from, to graph.NodeRef) error {
	if err := m.enter(ctx, false); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rels = slices.DeleteFunc(m.rels, func(r Rel) bool {
		return r.Type == relType && r.From == from && r.To == to
	})
	return nil
}

type hop struct {
	ref   graph.NodeRef
	rel   string
	depth int
	prev  *hop
}

// walk runs an undirected breadth-first search from start.
func (m *MemoryAdapter) walk(start graph.NodeRef, depth int) map[graph.NodeRef]*hop {
	seen := map[graph.NodeRef]*hop{start: {ref: start}}
	frontier := []*hop{seen[start]}
	for d := 1; d <= depth && len(frontier) > 0; d++ {
		var next []*hop
		for _, h := range frontier {
			for _, r := range m.rels {
				var other graph.NodeRef
				switch h.ref {
				case r.From:
					other = r.To
				case r.To:
					other = r.From
				default:
					continue
				}
				if _, ok := seen[other]; ok {
					continue
				}
				nh := &hop{ref: other, rel: r.Type, depth: d, prev: h}
				seen[other] = nh
				next = append(next, nh)
			}
		}
		frontier = next
	}
	return seen
}

func (m *MemoryAdapter) node(ref graph.NodeRef) graph.Node {
	props := map[string]any{}
	for k, v := range m.nodes[ref] {
		props[k] = v
	}
	return graph.Node{Label: ref.Label, ID: ref.ID, Properties: props}
}

func (m *MemoryAdapter) GetConnections(ctx context.Context, start graph.NodeRef, depth int) ([]graph.Connection, error) {
	if err := m.enter(ctx, true); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []graph.Connection
	for ref, h := range m.walk(start, max(depth, 1)) {
		if ref == start {
			continue
		}
		out = append(out, graph.Connection{Node: m.node(ref), Relationship: h.rel, Depth: h.depth})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Depth != out[j].Depth {
			return out[i].Depth < out[j].Depth
		}
		return out[i].Node.ID < out[j].Node.ID
	})
	return out, nil
}

func (m *MemoryAdapter) FindPath(ctx context.Context, from, to graph.NodeRef, maxDepth int) (*graph.Path, error) {
	if err := m.enter(ctx, true); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.walk(from, max(maxDepth, 1))[to]
	if !ok || to == from {
		return nil, nil
	}
	p := &graph.Path{}
	for ; h != nil; h = h.prev {
		p.Nodes = append([]graph.Node{m.node(h.ref)}, p.Nodes...)
		if h.rel != "" {
			p.Relationships = append([]string{h.rel}, p.Relationships...)
		}
	}
	return p, nil
}

func (m *MemoryAdapter) GetRelatedStories(ctx context.Context, q graph.RelatedStoriesQuery) ([]graph.RelatedStory, error) {
	if err := m.enter(ctx, true); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make(map[string]bool, len(q.EntityNames))
	for _, n := range q.EntityNames {
		if norm := model.NormalizeName(n); norm != "" {
			names[norm] = true
		}
	}
	byStory := map[graph.NodeRef][]string{}
	for _, r := range m.rels {
		if r.Type != model.RelMentions || r.From.Label != model.LabelStory {
			continue
		}
		props := m.nodes[r.From]
		legacyID, _ := props["legacy_id"].(string)
		if !slices.Contains(q.LegacyIDs, legacyID) {
			continue
		}
		target := m.nodes[r.To]
		nameLC, _ := target["name_lc"].(string)
		if !names[nameLC] {
			continue
		}
		name, _ := target["name"].(string)
		if !slices.Contains(byStory[r.From], name) {
			byStory[r.From] = append(byStory[r.From], name)
		}
	}

	out := make([]graph.RelatedStory, 0, len(byStory))
	for ref, mentions := range byStory {
		p := m.nodes[ref]
		str := func(k string) string {
			s, _ := p[k].(string)
			return s
		}
		out = append(out, graph.RelatedStory{
			ID:         ref.ID,
			LegacyID:   str("legacy_id"),
			Title:      str("title"),
			AuthorID:   str("author_id"),
			Visibility: model.Visibility(str("visibility")),
			Mentions:   mentions,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].Mentions) != len(out[j].Mentions) {
			return len(out[i].Mentions) > len(out[j].Mentions)
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Query is not interpreted; it returns no rows.
func (m *MemoryAdapter) Query(ctx context.Context, _ string, _ map[string]any) ([]map[string]any, error) {
	return nil, m.enter(ctx, true)
}

func (m *MemoryAdapter) HealthCheck(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fail == nil
}

func (m *MemoryAdapter) Close(context.Context) error { return nil }
