package graph

import (
	"context"
	"errors"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type call struct {
	cypher string
	params map[string]any
}

// MockRunner records queries and answers them from a queue.
type MockRunner struct {
	Calls   []call
	Rows    [][]map[string]any
	Err     error
	PingErr error
}

func (m *MockRunner) Run(_ context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	m.Calls = append(m.Calls, call{cypher: cypher, params: params})
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Rows) == 0 {
		return nil, nil
	}
	rows := m.Rows[0]
	m.Rows = m.Rows[1:]
	return rows, nil
}

func (m *MockRunner) Ping(context.Context) error  { return m.PingErr }
func (m *MockRunner) Close(context.Context) error { return nil }

// MockDriver stands in for the bolt driver.
type MockDriver struct {
	Queries []string
	Indexed []string
	Result  neo4j.EagerResult
	Err     error
	Down    bool
}

func (d *MockDriver) ExecuteQuery(_ context.Context, query string, _ map[string]any) (neo4j.EagerResult, error) {
	d.Queries = append(d.Queries, query)
	return d.Result, d.Err
}

func (d *MockDriver) BuildIndices(_ context.Context, labels []string) error {
	d.Indexed = append(d.Indexed, labels...)
	return nil
}

func (d *MockDriver) VerifyConnectivity(context.Context) error {
	if d.Down {
		return errors.New("connection refused")
	}
	return nil
}

func (d *MockDriver) Close(context.Context) error { return nil }
