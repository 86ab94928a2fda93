// Package embeddings implements the embedding gateway: text preparation, batching, rate limiting,
// retry and normalization in front of a pluggable embedding provider.
package embeddings

import "context"

// Provider generates raw embedding vectors for a batch of texts.
// Implementations: openai.Client, googleai.Client, MockProvider.
type Provider interface {
	// CreateEmbeddings returns one vector per input, in input order.
	CreateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error)
	// Dimensions returns the vector length the provider is configured for.
	Dimensions() int
}

// Embedder is what the rest of the service depends on.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
