package llm

import (
	"context"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateRequest is one streaming completion. An empty Model uses the client's default.
type GenerateRequest struct {
	Messages     []Message
	SystemPrompt string
	Model        string
	MaxTokens    int
}

// Stream yields text fragments until io.EOF. Recv may return a MalformedPayload error
// for a single bad fragment; the stream stays usable after it.
type Stream interface {
	Recv() (string, error)
	Close() error
}

type Streamer interface {
	StreamGenerate(ctx context.Context, req GenerateRequest) (Stream, error)
}

// Embedder returns one vector per input text, all of the same dimension.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}
