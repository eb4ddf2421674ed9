package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[llm]
provider = "claude"
model = "claude-3-5-sonnet-latest"

[breaker]
failure_threshold = 5

[graph]
env_prefix = "prod"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "claude", cfg.LLM.Provider)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, "prod", cfg.Graph.EnvPrefix)
	assert.Equal(t, 500, cfg.Retrieval.ChunkMaxTokens)
	assert.Equal(t, 30, cfg.Breaker.RecoveryTimeoutSecond)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"LLM_PROVIDER":    "openai",
		"NEPTUNE_HOST":    "db.cluster.neptune.amazonaws.com",
		"AWS_REGION":      "us-east-1",
		"GRAPH_ENABLED":   "false",
		"NEPTUNE_PORT":    "9000",
		"EMBEDDING_MODEL": "",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "db.cluster.neptune.amazonaws.com", cfg.Graph.ManagedHost)
	assert.False(t, cfg.Graph.Enabled)
	assert.Equal(t, 9000, cfg.Graph.ManagedPort)
	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Model)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Breaker.FailureThreshold = 0
	cfg.Graph.ManagedHost = "neptune"
	cfg.Graph.ManagedRegion = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failure_threshold")
	assert.Contains(t, err.Error(), "managed_region")
}

func TestLoadOrDefaultWithoutFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, "biographer", cfg.Assembly.DefaultPersona)
}

func TestValidateRejectsUnknownProviders(t *testing.T) {
	cfg := Default()
	cfg.LLM.Provider = "mystery"
	cfg.Embedding.Provider = "claude"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.provider")
	assert.Contains(t, err.Error(), "embedding.provider")
}
