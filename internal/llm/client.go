package llm

import "context"

// Embedder maps text to fixed-dimension vectors. Vectors produced by
// different ModelName values are not comparable.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
}

// Responder sends prompts to a chat model.
type Responder interface {
	SendPrompt(ctx context.Context, prompt string, modelName string) (string, error)
}
