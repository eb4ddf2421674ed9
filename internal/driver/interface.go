package driver

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// GraphDriver runs Cypher against a bolt endpoint (Neo4j or Memgraph).
type GraphDriver interface {
	ExecuteQuery(ctx context.Context, query string, params map[string]any) (neo4j.EagerResult, error)
	BuildIndices(ctx context.Context, labels []string) error
	VerifyConnectivity(ctx context.Context) error
	Close(ctx context.Context) error
}
