package domain

import "context"

// Message is a single chat turn sent to the generation backend.
type Message struct {
	Role    string
	Content string
}

// LLMStreamChunk is one increment of generated output.
type LLMStreamChunk struct {
	Response string
	Done     bool
}

// LLMClient streams generated text for a grounded prompt.
// The chunk channel is closed when generation ends; at most one error is sent.
type LLMClient interface {
	ChatStream(ctx context.Context, messages []Message, maxTokens int) (<-chan LLMStreamChunk, <-chan error, error)
	Version() string
}
