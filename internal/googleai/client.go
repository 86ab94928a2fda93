// Package googleai provides a thin wrapper around the Google Gen AI SDK for batch embeddings (Gemini API).
package googleai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"google.golang.org/genai"
)

var (
	// ErrEmptyInput is returned when CreateEmbeddings is called with a blank text.
	ErrEmptyInput = errors.New("googleai: input text is empty")
	// ErrInvalidDims is returned when dimensions is not positive.
	ErrInvalidDims = errors.New("googleai: embedding dimensions must be positive")
	// ErrNoEmbeddingInResponse is returned when the API response has fewer embeddings than inputs.
	ErrNoEmbeddingInResponse = errors.New("googleai: no embedding in response")
	// ErrDimensionMismatch is returned when the response embedding length does not match configured dimensions.
	ErrDimensionMismatch = errors.New("googleai: embedding dimension mismatch")
)

const (
	defaultDimension = 384
	defaultModel     = "gemini-embedding-001"
	// Clustering is the Gemini task type tuned for grouping texts by similarity.
	taskTypeClustering = "CLUSTERING"
)

// Client calls the Gemini embeddings API via the Google Gen AI SDK.
type Client struct {
	client     *genai.Client
	model      string
	dimensions int
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithDimensions sets the requested embedding dimension (must match DB column).
func WithDimensions(dim int) ClientOption {
	return func(c *Client) {
		c.dimensions = dim
	}
}

// WithModel sets the embedding model name (e.g. gemini-embedding-001). Empty uses default.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		c.model = model
	}
}

// NewClient creates a Gemini embeddings client.
func NewClient(ctx context.Context, apiKey string, opts ...ClientOption) (*Client, error) {
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("googleai client: %w", err)
	}

	client := &Client{
		client:     genaiClient,
		model:      defaultModel,
		dimensions: defaultDimension,
	}
	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Dimensions returns the configured embedding dimension.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// CreateEmbeddings returns one embedding per input in input order.
func (c *Client) CreateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}

	if c.dimensions <= 0 || c.dimensions > math.MaxInt32 {
		return nil, ErrInvalidDims
	}

	contents := make([]*genai.Content, len(inputs))
	for i, in := range inputs {
		if strings.TrimSpace(in) == "" {
			return nil, ErrEmptyInput
		}

		contents[i] = genai.NewContentFromText(in, genai.RoleUser)
	}

	model := c.model
	if model == "" {
		model = defaultModel
	}

	//nolint:gosec // G115: c.dimensions is bounded above by math.MaxInt32
	dimInt32 := int32(c.dimensions)

	resp, err := c.client.Models.EmbedContent(ctx, model, contents, &genai.EmbedContentConfig{
		TaskType:             taskTypeClustering,
		OutputDimensionality: &dimInt32,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embedding: %w", err)
	}

	if len(resp.Embeddings) != len(inputs) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrNoEmbeddingInResponse, len(resp.Embeddings), len(inputs))
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) != c.dimensions {
			got := 0
			if emb != nil {
				got = len(emb.Values)
			}

			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, got, c.dimensions)
		}

		vec := make([]float32, len(emb.Values))
		copy(vec, emb.Values)
		out[i] = vec
	}

	return out, nil
}
