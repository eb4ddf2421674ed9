package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/keepsake/internal/config"
)

func TestChoose(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.GraphConfig
		want Kind
	}{
		{"disabled wins", config.GraphConfig{Enabled: false, ManagedHost: "neptune"}, KindDisabled},
		{"managed host", config.GraphConfig{Enabled: true, ManagedHost: "neptune", URI: "bolt://x"}, KindManaged},
		{"local otherwise", config.GraphConfig{Enabled: true, URI: "bolt://x"}, KindLocal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Choose(tt.cfg))
		})
	}
}

func TestSelectDisabled(t *testing.T) {
	sel, err := Select(context.Background(), config.GraphConfig{}, nil)
	require.NoError(t, err)
	assert.Equal(t, KindDisabled, sel.Kind)
	assert.False(t, sel.Enabled())
}

func TestSelectManaged(t *testing.T) {
	sel, err := Select(context.Background(), config.GraphConfig{
		Enabled:          true,
		EnvPrefix:        "prod",
		ManagedHost:      "db.cluster.neptune.amazonaws.com",
		ManagedRegion:    "us-east-1",
		ManagedAccessKey: "AKIDEXAMPLE",
		ManagedSecretKey: "secret",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, KindManaged, sel.Kind)
	assert.True(t, sel.Enabled())
}
