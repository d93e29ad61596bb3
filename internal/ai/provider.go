package ai

import "context"

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatOptions struct {
	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int
	// JSONOnly asks the provider for structured-output mode: the reply must
	// be a single JSON object.
	JSONOnly bool
}

// Provider is a synchronous chat-completion backend. Calls are blocking
// round-trips with no client-side retry; failures surface to the caller.
type Provider interface {
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error)
}

// Embedder turns text into a fixed-length vector. Deterministic per
// provider/model version; changing the model invalidates stored vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelName() string
}
