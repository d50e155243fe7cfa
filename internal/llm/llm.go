// Package llm talks to hosted language models.
package llm

import "context"

// CompletionRequest is a single-shot completion: one system instruction and one user prompt.
type CompletionRequest struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Client defines the interface for LLM providers.
type Client interface {
	// Complete returns the raw text of the first choice.
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// Model returns the identifier recorded on analysis results.
	Model() string
}
