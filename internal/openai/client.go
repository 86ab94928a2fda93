// Package openai provides a thin wrapper around the official OpenAI Go SDK for batch embeddings
// and short chat completions used to refine theme labels.
package openai

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
)

var (
	// ErrEmptyInput is returned when CreateEmbeddings is called with a blank text.
	ErrEmptyInput = errors.New("openai: input text is empty")
	// ErrInvalidDims is returned when dimensions is not positive.
	ErrInvalidDims = errors.New("openai: embedding dimensions must be positive")
	// ErrNoEmbeddingInResponse is returned when the API response has fewer embeddings than inputs.
	ErrNoEmbeddingInResponse = errors.New("openai: no embedding in response")
	// ErrDimensionMismatch is returned when the response embedding length does not match configured dimensions.
	ErrDimensionMismatch = errors.New("openai: embedding dimension mismatch")
	// ErrEmptyCompletion is returned when a chat completion has no content.
	ErrEmptyCompletion = errors.New("openai: empty completion")
)

const (
	defaultDimension  = 384
	defaultModel      = string(openaisdk.EmbeddingModelTextEmbedding3Small)
	defaultChatModel  = "gpt-4o-mini"
	defaultMaxTokens  = 32
	labelSystemPrompt = "You name clusters of customer feedback. Reply with a concise 3 to 7 word theme label " +
		"in title case. Reply with the label only, no quotes and no punctuation at the end."
)

// Client calls the OpenAI embeddings and chat completions APIs via the official SDK.
type Client struct {
	sdk        openaisdk.Client
	sdkOpts    []option.RequestOption
	model      string
	chatModel  string
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

// WithModel sets the embedding model name. Empty uses text-embedding-3-small.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithChatModel sets the chat model used by RefineLabel.
func WithChatModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.chatModel = model
		}
	}
}

// WithRequestOptions passes extra options (base URL, retries, HTTP client) to the SDK.
func WithRequestOptions(opts ...option.RequestOption) ClientOption {
	return func(c *Client) {
		c.sdkOpts = append(c.sdkOpts, opts...)
	}
}

// NewClient creates an OpenAI client with SDK retries disabled. WithRequestOptions can re-enable them.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	client := &Client{
		model:      defaultModel,
		chatModel:  defaultChatModel,
		dimensions: defaultDimension,
	}

	for _, opt := range opts {
		opt(client)
	}

	// The embedding gateway owns retries. SDK retries would multiply its attempts.
	sdkOpts := append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, client.sdkOpts...)
	client.sdk = openaisdk.NewClient(sdkOpts...)

	return client
}

// Dimensions returns the configured embedding dimension.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// CreateEmbeddings returns one embedding per input in input order.
// Every returned vector has the configured dimension.
func (c *Client) CreateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}

	for _, in := range inputs {
		if strings.TrimSpace(in) == "" {
			return nil, ErrEmptyInput
		}
	}

	if c.dimensions <= 0 {
		return nil, ErrInvalidDims
	}

	resp, err := c.sdk.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: inputs,
		},
		Model:      openaisdk.EmbeddingModel(c.model),
		Dimensions: param.NewOpt(int64(c.dimensions)),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding: %w", err)
	}

	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrNoEmbeddingInResponse, len(resp.Data), len(inputs))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	out := make([][]float32, len(data))
	for i := range data {
		emb := data[i].Embedding
		if len(emb) != c.dimensions {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(emb), c.dimensions)
		}

		vec := make([]float32, len(emb))
		for j := range emb {
			vec[j] = float32(emb[j])
		}

		out[i] = vec
	}

	return out, nil
}

// RefineLabel asks the chat model for a short theme label given keyphrases and exemplar texts.
// The raw reply is returned; acceptance rules belong to the caller.
func (c *Client) RefineLabel(ctx context.Context, keyphrases, exemplars []string) (string, error) {
	var b strings.Builder

	b.WriteString("Keyphrases: ")
	b.WriteString(strings.Join(keyphrases, ", "))
	b.WriteString("\n\nRepresentative feedback:\n")

	for _, ex := range exemplars {
		b.WriteString("- ")
		b.WriteString(ex)
		b.WriteString("\n")
	}

	resp, err := c.sdk.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(c.chatModel),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(labelSystemPrompt),
			openaisdk.UserMessage(b.String()),
		},
		Temperature:         param.NewOpt(0.0),
		MaxCompletionTokens: param.NewOpt(int64(defaultMaxTokens)),
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyCompletion
	}

	return resp.Choices[0].Message.Content, nil
}
