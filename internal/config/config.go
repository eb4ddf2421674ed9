package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

type AppConfig struct {
	Env  string `toml:"env"`
	Port string `toml:"port"`
}

type LLMConfig struct {
	Provider  string `toml:"provider"`
	Model     string `toml:"model"`
	APIKey    string `toml:"api_key"`
	BaseURL   string `toml:"base_url"`
	MaxTokens int    `toml:"max_tokens"`
}

type EmbeddingConfig struct {
	Provider   string `toml:"provider"`
	Model      string `toml:"model"`
	APIKey     string `toml:"api_key"`
	BaseURL    string `toml:"base_url"`
	Dimensions int    `toml:"dimensions"`
	BatchSize  int    `toml:"batch_size"`
}

type RetryConfig struct {
	MaxTries         uint `toml:"max_tries"`
	InitialBackoffMS int  `toml:"initial_backoff_ms"`
	MaxBackoffMS     int  `toml:"max_backoff_ms"`
}

type PostgresConfig struct {
	URL      string `toml:"url"`
	MaxConns int32  `toml:"max_conns"`
	Migrate  bool   `toml:"migrate"`
}

type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	TTLSeconds int    `toml:"ttl_seconds"`
}

// GraphConfig selects the graph backend. When enabled, a managed host wins over the local URI.
type GraphConfig struct {
	Enabled   bool   `toml:"enabled"`
	EnvPrefix string `toml:"env_prefix"`

	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`

	ManagedHost      string `toml:"managed_host"`
	ManagedPort      int    `toml:"managed_port"`
	ManagedRegion    string `toml:"managed_region"`
	ManagedAccessKey string `toml:"managed_access_key"`
	ManagedSecretKey string `toml:"managed_secret_key"`
	// ManagedInsecure skips TLS verification for tunnels to the managed endpoint.
	ManagedInsecure bool `toml:"managed_insecure"`
}

type BreakerConfig struct {
	FailureThreshold      int `toml:"failure_threshold"`
	RecoveryTimeoutSecond int `toml:"recovery_timeout_seconds"`
}

type RetrievalConfig struct {
	ChunkMaxTokens int `toml:"chunk_max_tokens"`
	TopK           int `toml:"top_k"`
}

type AssemblyConfig struct {
	TokenBudget    int    `toml:"token_budget"`
	GraphTimeoutMS int    `toml:"graph_timeout_ms"`
	GraphDepth     int    `toml:"graph_depth"`
	GraphLimit     int    `toml:"graph_limit"`
	DefaultPersona string `toml:"default_persona"`
	FactLimit      int    `toml:"fact_limit"`
	MemoryLimit    int    `toml:"memory_limit"`
}

type ExtractionConfig struct {
	ConfidenceThreshold float64 `toml:"confidence_threshold"`
	Model               string  `toml:"model"`
	Prompt              string  `toml:"prompt"`
}

type SummaryConfig struct {
	MessageThreshold int    `toml:"message_threshold"`
	Model            string `toml:"model"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
	Prompt           string `toml:"prompt"`
}

// TelemetryConfig drives tracing. Spans go to stdout when no OTLP endpoint is set.
type TelemetryConfig struct {
	Enabled      bool    `toml:"enabled"`
	ServiceName  string  `toml:"service_name"`
	SampleRatio  float64 `toml:"sample_ratio"`
	OTLPEndpoint string  `toml:"otlp_endpoint"`
	OTLPInsecure bool    `toml:"otlp_insecure"`
}

type Config struct {
	App        AppConfig        `toml:"app"`
	LLM        LLMConfig        `toml:"llm"`
	Embedding  EmbeddingConfig  `toml:"embedding"`
	Retry      RetryConfig      `toml:"retry"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	Graph      GraphConfig      `toml:"graph"`
	Breaker    BreakerConfig    `toml:"breaker"`
	Retrieval  RetrievalConfig  `toml:"retrieval"`
	Assembly   AssemblyConfig   `toml:"assembly"`
	Extraction ExtractionConfig `toml:"extraction"`
	Summary    SummaryConfig    `toml:"summary"`
	Telemetry  TelemetryConfig  `toml:"telemetry"`
}

// Default returns a configuration that runs fully in memory against a local Ollama.
func Default() *Config {
	return &Config{
		App: AppConfig{Env: "development", Port: "8080"},
		LLM: LLMConfig{
			Provider:  "ollama",
			Model:     "llama3.1",
			BaseURL:   "http://localhost:11434",
			MaxTokens: 1024,
		},
		Embedding: EmbeddingConfig{
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			BaseURL:    "http://localhost:11434",
			Dimensions: 768,
			BatchSize:  32,
		},
		Retry:     RetryConfig{MaxTries: 3, InitialBackoffMS: 250, MaxBackoffMS: 4000},
		Postgres:  PostgresConfig{MaxConns: 10},
		Redis:     RedisConfig{TTLSeconds: 86400},
		Graph:     GraphConfig{EnvPrefix: "dev", URI: "bolt://localhost:7687", ManagedPort: 8182},
		Breaker:   BreakerConfig{FailureThreshold: 3, RecoveryTimeoutSecond: 30},
		Retrieval: RetrievalConfig{ChunkMaxTokens: 500, TopK: 8},
		Assembly: AssemblyConfig{
			TokenBudget:    2000,
			GraphTimeoutMS: 1500,
			GraphDepth:     2,
			GraphLimit:     20,
			DefaultPersona: "biographer",
			FactLimit:      20,
			MemoryLimit:    3,
		},
		Extraction: ExtractionConfig{ConfidenceThreshold: 0.6},
		Summary:    SummaryConfig{MessageThreshold: 20, TimeoutSeconds: 120},
		Telemetry:  TelemetryConfig{ServiceName: "keepsake", SampleRatio: 0.1},
	}
}

// Load reads a TOML file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads path if it exists, otherwise starts from the defaults.
// Environment overrides are applied in both cases.
func LoadOrDefault(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		cfg, err = Load(path)
		if err != nil {
			return nil, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, err := strconv.Atoi(strings.TrimSpace(getenv(key))); err == nil {
			*dst = v
		}
	}
	flag := func(key string, dst *bool) {
		if v, err := strconv.ParseBool(strings.TrimSpace(getenv(key))); err == nil {
			*dst = v
		}
	}

	str("APP_ENV", &c.App.Env)
	str("PORT", &c.App.Port)

	str("LLM_PROVIDER", &c.LLM.Provider)
	str("LLM_MODEL", &c.LLM.Model)
	str("LLM_API_KEY", &c.LLM.APIKey)
	str("LLM_BASE_URL", &c.LLM.BaseURL)

	str("EMBEDDING_PROVIDER", &c.Embedding.Provider)
	str("EMBEDDING_MODEL", &c.Embedding.Model)
	str("EMBEDDING_API_KEY", &c.Embedding.APIKey)
	str("EMBEDDING_BASE_URL", &c.Embedding.BaseURL)
	num("EMBEDDING_DIMENSIONS", &c.Embedding.Dimensions)

	str("DATABASE_URL", &c.Postgres.URL)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)

	flag("GRAPH_ENABLED", &c.Graph.Enabled)
	str("GRAPH_ENV_PREFIX", &c.Graph.EnvPrefix)
	str("NEO4J_URI", &c.Graph.URI)
	str("NEO4J_USER", &c.Graph.User)
	str("NEO4J_PASSWORD", &c.Graph.Password)
	str("NEPTUNE_HOST", &c.Graph.ManagedHost)
	num("NEPTUNE_PORT", &c.Graph.ManagedPort)
	str("AWS_REGION", &c.Graph.ManagedRegion)
	str("AWS_ACCESS_KEY", &c.Graph.ManagedAccessKey)
	str("AWS_SECRET_KEY", &c.Graph.ManagedSecretKey)

	flag("OTEL_ENABLED", &c.Telemetry.Enabled)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)
	flag("OTEL_EXPORTER_OTLP_INSECURE", &c.Telemetry.OTLPInsecure)
	if v, err := strconv.ParseFloat(strings.TrimSpace(getenv("OTEL_SAMPLER_RATIO")), 64); err == nil {
		c.Telemetry.SampleRatio = v
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Breaker.FailureThreshold < 1 {
		errs = append(errs, errors.New("breaker.failure_threshold must be at least 1"))
	}
	if c.Assembly.TokenBudget < 1 {
		errs = append(errs, errors.New("assembly.token_budget must be at least 1"))
	}
	if c.Retrieval.ChunkMaxTokens < 1 {
		errs = append(errs, errors.New("retrieval.chunk_max_tokens must be at least 1"))
	}
	if c.Summary.MessageThreshold < 1 {
		errs = append(errs, errors.New("summary.message_threshold must be at least 1"))
	}
	if c.Extraction.ConfidenceThreshold < 0 || c.Extraction.ConfidenceThreshold > 1 {
		errs = append(errs, errors.New("extraction.confidence_threshold must be within [0, 1]"))
	}
	if c.Embedding.Dimensions < 1 {
		errs = append(errs, errors.New("embedding.dimensions must be positive"))
	}
	switch strings.ToLower(c.LLM.Provider) {
	case "openai", "claude", "gemini", "ollama":
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider))
	}
	switch strings.ToLower(c.Embedding.Provider) {
	case "openai", "gemini", "ollama":
	default:
		errs = append(errs, fmt.Errorf("embedding.provider %q is not supported", c.Embedding.Provider))
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, errors.New("telemetry.sample_ratio must be within [0, 1]"))
	}
	if c.Graph.ManagedHost != "" && c.Graph.ManagedRegion == "" {
		errs = append(errs, errors.New("graph.managed_region is required with graph.managed_host"))
	}
	return errors.Join(errs...)
}
