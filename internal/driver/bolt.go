package driver

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

type BoltDriver struct {
	Driver neo4j.DriverWithContext
	log    *zap.Logger
}

func NewBoltDriver(ctx context.Context, uri, username, password string, log *zap.Logger) (*BoltDriver, error) {
	if log == nil {
		log = zap.NewNop()
	}
	d, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create bolt driver: %w", err)
	}

	if err := d.VerifyConnectivity(ctx); err != nil {
		_ = d.Close(ctx)
		return nil, fmt.Errorf("verify bolt connectivity: %w", err)
	}

	log.Info("connected to graph database", zap.String("uri", uri))
	return &BoltDriver{Driver: d, log: log.Named("bolt")}, nil
}

func (d *BoltDriver) Close(ctx context.Context) error {
	return d.Driver.Close(ctx)
}

func (d *BoltDriver) VerifyConnectivity(ctx context.Context) error {
	return d.Driver.VerifyConnectivity(ctx)
}

func (d *BoltDriver) ExecuteQuery(ctx context.Context, query string, params map[string]any) (neo4j.EagerResult, error) {
	result, err := neo4j.ExecuteQuery(ctx, d.Driver, query, params, neo4j.EagerResultTransformer)
	if err != nil {
		return neo4j.EagerResult{}, fmt.Errorf("failed to execute query: %w", err)
	}
	return *result, nil
}

// BuildIndices creates id and legacy_id indexes for each (already quoted) label.
// Failures are logged and skipped since the index usually exists already.
func (d *BoltDriver) BuildIndices(ctx context.Context, labels []string) error {
	for _, label := range labels {
		for _, prop := range []string{"id", "legacy_id"} {
			q := fmt.Sprintf("CREATE INDEX ON :%s(%s);", label, prop)
			if _, err := d.ExecuteQuery(ctx, q, nil); err != nil {
				d.log.Warn("failed to create index", zap.String("query", q), zap.Error(err))
			}
		}
	}
	return nil
}
