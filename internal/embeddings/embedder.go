// Package embeddings defines the contract with the external embedding
// service and its OpenAI and Ollama backends.
package embeddings

import (
	"context"
	"fmt"
)

// Embedder defines the interface for generating text embeddings.
type Embedder interface {
	// Embed returns one vector per input text, in order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the number of dimensions in the embedding vectors.
	Dimensions() int

	// Name returns the name/identifier of the embedding model.
	Name() string
}

// BatchError reports a failed request. Offset is the index of the first
// text of the batch that could not be embedded.
type BatchError struct {
	Offset int
	Err    error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("embedding batch at %d: %v", e.Offset, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}
