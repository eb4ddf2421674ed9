// Package graph exposes the graph backend through one adapter contract with
// a local (bolt) and a managed (Neptune openCypher) implementation.
package graph

import (
	"context"

	"github.com/agenthands/keepsake/internal/core/model"
)

// NodeRef addresses a node by its domain label and id.
type NodeRef struct {
	Label string
	ID    string
}

type Node struct {
	Label      string
	ID         string
	Properties map[string]any
}

// Connection is a node reachable from the start node. Relationship is the type of
// the last hop on the shortest route found.
type Connection struct {
	Node         Node
	Relationship string
	Depth        int
}

type Path struct {
	Nodes         []Node
	Relationships []string
}

// RelatedStoriesQuery finds stories in LegacyIDs that mention any of EntityNames.
type RelatedStoriesQuery struct {
	LegacyIDs   []string
	EntityNames []string
	Limit       int
}

type RelatedStory struct {
	ID         string           `json:"id"`
	LegacyID   string           `json:"legacy_id"`
	Title      string           `json:"title"`
	AuthorID   string           `json:"author_id"`
	Visibility model.Visibility `json:"visibility"`
	Mentions   []string         `json:"mentions"`
}

// Adapter is the only way domain code talks to the graph. Labels and relationship
// types are domain names; implementations namespace them.
type Adapter interface {
	UpsertNode(ctx context.Context, label, id string, props map[string]any) error
	DeleteNode(ctx context.Context, label, id string) error
	CreateRelationship(ctx context.Context, relType string, from, to NodeRef, props map[string]any) error
	DeleteRelationship(ctx context.Context, relType string, from, to NodeRef) error
	GetConnections(ctx context.Context, start NodeRef, depth int) ([]Connection, error)
	FindPath(ctx context.Context, from, to NodeRef, maxDepth int) (*Path, error)
	GetRelatedStories(ctx context.Context, q RelatedStoriesQuery) ([]RelatedStory, error)
	// Query runs raw Cypher verbatim. Callers own any label namespacing in it.
	Query(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
	HealthCheck(ctx context.Context) bool
	Close(ctx context.Context) error
}
