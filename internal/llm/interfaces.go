package llm

import "context"

// ChatRequest is a single-turn chat completion: an optional system prompt
// and one user prompt.
type ChatRequest struct {
	SystemPrompt string
	Prompt       string
	Temperature  float64
	MaxTokens    int
}

// TextGenerator is the interface implemented by completion providers.
type TextGenerator interface {
	Generate(ctx context.Context, req ChatRequest) (string, error)
	GetModel() string
}
