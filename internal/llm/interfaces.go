package llm

import "context"

// TextGenerator is the interface for LLM text completion. The extraction
// pipeline uses single-string completion style (not chat history).
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}

// EmbeddingGenerator is the interface for generating vector embeddings.
// The vector length must match the dimension the store was opened with.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}
