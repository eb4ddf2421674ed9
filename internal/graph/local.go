package graph

import (
	"context"

	"go.uber.org/zap"

	"github.com/agenthands/keepsake/internal/core/model"
	"github.com/agenthands/keepsake/internal/driver"
)

type boltRunner struct {
	drv driver.GraphDriver
}

func (r boltRunner) Run(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	res, err := r.drv.ExecuteQuery(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]any, 0, len(res.Records))
	for _, rec := range res.Records {
		rows = append(rows, rec.AsMap())
	}
	return rows, nil
}

func (r boltRunner) Ping(ctx context.Context) error {
	return r.drv.VerifyConnectivity(ctx)
}

func (r boltRunner) Close(ctx context.Context) error {
	return r.drv.Close(ctx)
}

// NewLocal builds the adapter for a self-hosted bolt engine and bootstraps indexes
// for the namespaced labels.
func NewLocal(ctx context.Context, drv driver.GraphDriver, ns Namespace, log *zap.Logger) (Adapter, error) {
	labels := []string{model.LabelLegacy, model.LabelStory, model.LabelPerson, model.LabelPlace, model.LabelEvent, model.LabelObject}
	quoted := make([]string, 0, len(labels))
	for _, l := range labels {
		q, err := ns.Quote(l)
		if err != nil {
			return nil, err
		}
		quoted = append(quoted, q)
	}
	if err := drv.BuildIndices(ctx, quoted); err != nil {
		return nil, err
	}
	return newCypherAdapter(boltRunner{drv: drv}, ns, "local", log), nil
}
