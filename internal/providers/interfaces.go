package providers

import (
	"context"

	"paperwhisper/internal/models"
)

type ProviderInfo struct {
	Name  string `json:"name"`
	Model string `json:"model"`
	Key   string `json:"key,omitempty"`
}

type Message struct {
	Role    models.Role `json:"role"`
	Content string      `json:"content"`
}

type ChatRequest struct {
	// Operation labels the call for metrics and the audit log.
	Operation   string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Stream yields incremental answer text. Recv returns io.EOF once the
// provider signals completion.
type Stream interface {
	Recv() (string, error)
	Close() error
}

type ChatModel interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
	ChatStream(ctx context.Context, req ChatRequest) (Stream, error)
	Info() ProviderInfo
}

type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
	Info() ProviderInfo
}
