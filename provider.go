package courier

import "context"

// Provider abstracts the LLM backend.
type Provider interface {
	// Chat sends a request and returns a complete response. When req.Tools
	// is non-empty the response may carry tool calls instead of text.
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	// Name returns the provider name (e.g. "gemini", "anthropic").
	Name() string
}
