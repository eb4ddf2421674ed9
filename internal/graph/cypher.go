package graph

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/agenthands/keepsake/internal/apperr"
	"github.com/agenthands/keepsake/internal/core/model"
)

const (
	maxDepth       = 4
	maxConnections = 200
	defaultLimit   = 20
)

// runner executes Cypher and returns each record as a column map.
type runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// cypherAdapter implements Adapter for any openCypher backend.
type cypherAdapter struct {
	runner  runner
	ns      Namespace
	backend string
	log     *zap.Logger
}

func newCypherAdapter(r runner, ns Namespace, backend string, log *zap.Logger) *cypherAdapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &cypherAdapter{runner: r, ns: ns, backend: backend, log: log.Named("graph").With(zap.String("backend", backend))}
}

func (a *cypherAdapter) run(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	rows, err := a.runner.Run(ctx, cypher, params)
	if err != nil {
		return nil, apperr.DependencyUnavailable("graph "+a.backend, err)
	}
	return rows, nil
}

func clampDepth(depth int) int {
	if depth < 1 {
		return 1
	}
	if depth > maxDepth {
		return maxDepth
	}
	return depth
}

func (a *cypherAdapter) UpsertNode(ctx context.Context, label, id string, props map[string]any) error {
	l, err := a.ns.Quote(label)
	if err != nil {
		return err
	}
	if props == nil {
		props = map[string]any{}
	}
	q := fmt.Sprintf("MERGE (n:%s {id: $id}) SET n += $props RETURN n.id AS id", l)
	_, err = a.run(ctx, q, map[string]any{"id": id, "props": props})
	return err
}

func (a *cypherAdapter) DeleteNode(ctx context.Context, label, id string) error {
	l, err := a.ns.Quote(label)
	if err != nil {
		return err
	}
	q := fmt.Sprintf("MATCH (n:%s {id: $id}) DETACH DELETE n", l)
	_, err = a.run(ctx, q, map[string]any{"id": id})
	return err
}

func (a *cypherAdapter) quoteEnds(relType string, from, to NodeRef) (rel, fl, tl string, err error) {
	if rel, err = a.ns.Quote(relType); err != nil {
		return
	}
	if fl, err = a.ns.Quote(from.Label); err != nil {
		return
	}
	tl, err = a.ns.Quote(to.Label)
	return
}

func (a *cypherAdapter) CreateRelationship(ctx context.Context, relType string, from, to NodeRef, props map[string]any) error {
	rel, fl, tl, err := a.quoteEnds(relType, from, to)
	if err != nil {
		return err
	}
	if props == nil {
		props = map[string]any{}
	}
	q := fmt.Sprintf(`MATCH (a:%s {id: $from}), (b:%s {id: $to})
MERGE (a)-[r:%s]->(b)
SET r += $props
RETURN count(r) AS created`, fl, tl, rel)
	_, err = a.run(ctx, q, map[string]any{"from": from.ID, "to": to.ID, "props": props})
	return err
}

func (a *cypherAdapter) DeleteRelationship(ctx context.Context, relType string, from, to NodeRef) error {
	rel, fl, tl, err := a.quoteEnds(relType, from, to)
	if err != nil {
		return err
	}
	q := fmt.Sprintf("MATCH (a:%s {id: $from})-[r:%s]->(b:%s {id: $to}) DELETE r", fl, rel, tl)
	_, err = a.run(ctx, q, map[string]any{"from": from.ID, "to": to.ID})
	return err
}

func (a *cypherAdapter) GetConnections(ctx context.Context, start NodeRef, depth int) ([]Connection, error) {
	l, err := a.ns.Quote(start.Label)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`MATCH p = (s:%s {id: $id})-[*1..%d]-(n)
WHERE n.id <> $id
WITH n, length(p) AS hops, type(last(relationships(p))) AS rel
ORDER BY hops
WITH n, min(hops) AS depth, head(collect(rel)) AS rel
RETURN n.id AS id, labels(n) AS labels, properties(n) AS props, depth, rel
ORDER BY depth, id
LIMIT $limit`, l, clampDepth(depth))

	rows, err := a.run(ctx, q, map[string]any{"id": start.ID, "limit": maxConnections})
	if err != nil {
		return nil, err
	}

	out := make([]Connection, 0, len(rows))
	for _, row := range rows {
		label, ok := a.ns.domainLabel(asStrings(row["labels"]))
		if !ok {
			continue
		}
		rel, _ := a.ns.Strip(asString(row["rel"]))
		out = append(out, Connection{
			Node: Node{
				Label:      label,
				ID:         asString(row["id"]),
				Properties: asMap(row["props"]),
			},
			Relationship: rel,
			Depth:        asInt(row["depth"]),
		})
	}
	return out, nil
}

func (a *cypherAdapter) FindPath(ctx context.Context, from, to NodeRef, maxHops int) (*Path, error) {
	fl, err := a.ns.Quote(from.Label)
	if err != nil {
		return nil, err
	}
	tl, err := a.ns.Quote(to.Label)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`MATCH p = (a:%s {id: $from})-[*1..%d]-(b:%s {id: $to})
RETURN [n IN nodes(p) | {id: n.id, labels: labels(n), props: properties(n)}] AS nodes,
       [r IN relationships(p) | type(r)] AS rels
ORDER BY length(p)
LIMIT 1`, fl, clampDepth(maxHops), tl)

	rows, err := a.run(ctx, q, map[string]any{"from": from.ID, "to": to.ID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	path := &Path{}
	for _, raw := range asSlice(rows[0]["nodes"]) {
		m := asMap(raw)
		label, _ := a.ns.domainLabel(asStrings(m["labels"]))
		path.Nodes = append(path.Nodes, Node{Label: label, ID: asString(m["id"]), Properties: asMap(m["props"])})
	}
	for _, r := range asStrings(rows[0]["rels"]) {
		rel, _ := a.ns.Strip(r)
		path.Relationships = append(path.Relationships, rel)
	}
	return path, nil
}

func (a *cypherAdapter) GetRelatedStories(ctx context.Context, rq RelatedStoriesQuery) ([]RelatedStory, error) {
	names := make([]string, 0, len(rq.EntityNames))
	seen := make(map[string]bool, len(rq.EntityNames))
	for _, n := range rq.EntityNames {
		norm := model.NormalizeName(n)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		names = append(names, norm)
	}
	if len(names) == 0 || len(rq.LegacyIDs) == 0 {
		return nil, nil
	}
	limit := rq.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	story, _ := a.ns.Quote(model.LabelStory)
	mentions, _ := a.ns.Quote(model.RelMentions)
	q := fmt.Sprintf(`MATCH (s:%s)-[:%s]->(e)
WHERE s.legacy_id IN $legacy_ids AND e.name_lc IN $names
WITH s, collect(DISTINCT e.name) AS mentions
RETURN s.id AS id, s.legacy_id AS legacy_id, s.title AS title, s.author_id AS author_id,
       s.visibility AS visibility, mentions
ORDER BY size(mentions) DESC, id
LIMIT $limit`, story, mentions)

	rows, err := a.run(ctx, q, map[string]any{"legacy_ids": rq.LegacyIDs, "names": names, "limit": limit})
	if err != nil {
		return nil, err
	}

	out := make([]RelatedStory, 0, len(rows))
	for _, row := range rows {
		out = append(out, RelatedStory{
			ID:         asString(row["id"]),
			LegacyID:   asString(row["legacy_id"]),
			Title:      asString(row["title"]),
			AuthorID:   asString(row["author_id"]),
			Visibility: model.Visibility(asString(row["visibility"])),
			Mentions:   asStrings(row["mentions"]),
		})
	}
	return out, nil
}

func (a *cypherAdapter) Query(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	return a.run(ctx, cypher, params)
}

func (a *cypherAdapter) HealthCheck(ctx context.Context) bool {
	if err := a.runner.Ping(ctx); err != nil {
		a.log.Warn("graph health check failed", zap.Error(err))
		return false
	}
	return true
}

func (a *cypherAdapter) Close(ctx context.Context) error {
	return a.runner.Close(ctx)
}
