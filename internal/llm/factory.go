package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/agenthands/keepsake/internal/apperr"
	"github.com/agenthands/keepsake/internal/config"
)

func ollamaBaseURL(baseURL string) string {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if !strings.HasSuffix(baseURL, "/v1") {
		baseURL = fmt.Sprintf("%s/v1", strings.TrimRight(baseURL, "/"))
	}
	return baseURL
}

func requireKey(provider, key string) error {
	if strings.TrimSpace(key) == "" {
		return apperr.AuthFailure(provider, fmt.Errorf("no api key configured"))
	}
	return nil
}

// NewStreamer selects the chat provider. Missing credentials surface here as AuthFailure
// so a misconfigured process fails at startup rather than on the first request.
func NewStreamer(ctx context.Context, cfg config.LLMConfig, log *zap.Logger) (Streamer, error) {
	provider := strings.ToLower(cfg.Provider)

	switch provider {
	case "openai":
		if err := requireKey(provider, cfg.APIKey); err != nil {
			return nil, err
		}
		return NewOpenAIClient(provider, cfg.APIKey, cfg.Model, "", cfg.BaseURL, cfg.MaxTokens), nil

	case "claude":
		if err := requireKey(provider, cfg.APIKey); err != nil {
			return nil, err
		}
		return NewClaudeClient(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.MaxTokens), nil

	case "gemini":
		if err := requireKey(provider, cfg.APIKey); err != nil {
			return nil, err
		}
		return NewGeminiClient(ctx, cfg.APIKey, cfg.Model, "", cfg.MaxTokens)

	case "ollama":
		baseURL := ollamaBaseURL(cfg.BaseURL)
		if log != nil {
			log.Info("using ollama through its OpenAI-compatible API", zap.String("base_url", baseURL))
		}
		// Ollama ignores the key but the client requires one.
		return NewOpenAIClient(provider, "ollama", cfg.Model, "", baseURL, cfg.MaxTokens), nil

	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", provider)
	}
}

// NewEmbedder selects the embedding provider. Claude has no embedding API.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingConfig) (Embedder, error) {
	provider := strings.ToLower(cfg.Provider)

	switch provider {
	case "openai":
		if err := requireKey(provider, cfg.APIKey); err != nil {
			return nil, err
		}
		return NewOpenAIClient(provider, cfg.APIKey, "", cfg.Model, cfg.BaseURL, 0), nil

	case "gemini":
		if err := requireKey(provider, cfg.APIKey); err != nil {
			return nil, err
		}
		return NewGeminiClient(ctx, cfg.APIKey, "", cfg.Model, 0)

	case "ollama":
		return NewOpenAIClient(provider, "ollama", "", cfg.Model, ollamaBaseURL(cfg.BaseURL), 0), nil

	case "claude":
		return nil, fmt.Errorf("claude does not provide embeddings; configure embedding.provider")

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", provider)
	}
}
