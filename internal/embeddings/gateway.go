package embeddings

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/formbricks/themes/internal/huberrors"
	"github.com/formbricks/themes/internal/observability"
	"github.com/formbricks/themes/pkg/vectors"
)

const (
	defaultBatchSize      = 32
	defaultMaxChars       = 512
	defaultMaxConcurrency = 4
	defaultRetryBackoff   = 500 * time.Millisecond
)

// errDimensionMismatch marks a provider reply whose vectors have the wrong length. It is not retried.
var errDimensionMismatch = errors.New("embedding dimension mismatch")

// Gateway turns texts into unit-length embedding vectors through a Provider.
// It holds no state between calls besides the rate limiter.
type Gateway struct {
	provider       Provider
	name           string
	batchSize      int
	maxChars       int
	maxConcurrency int
	retryBackoff   time.Duration
	limiter        *rate.Limiter
	metrics        observability.EmbeddingMetrics
}

// GatewayOption configures the Gateway.
type GatewayOption func(*Gateway)

// WithBatchSize sets the number of texts per provider request.
func WithBatchSize(n int) GatewayOption {
	return func(g *Gateway) {
		if n > 0 {
			g.batchSize = n
		}
	}
}

// WithMaxChars sets the per-text rune ceiling applied after whitespace trimming.
func WithMaxChars(n int) GatewayOption {
	return func(g *Gateway) {
		if n > 0 {
			g.maxChars = n
		}
	}
}

// WithMaxConcurrency bounds the number of batches in flight.
func WithMaxConcurrency(n int) GatewayOption {
	return func(g *Gateway) {
		if n > 0 {
			g.maxConcurrency = n
		}
	}
}

// WithRateLimit limits provider requests per second. Zero or negative disables limiting.
func WithRateLimit(rps float64) GatewayOption {
	return func(g *Gateway) {
		if rps > 0 {
			g.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithRetryBackoff sets the base sleep before the single retry of a failed batch.
func WithRetryBackoff(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d >= 0 {
			g.retryBackoff = d
		}
	}
}

// WithMetrics records batch metrics. Nil is allowed.
func WithMetrics(m observability.EmbeddingMetrics) GatewayOption {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// NewGateway creates a Gateway in front of provider. name labels errors and metrics (openai, google, mock).
func NewGateway(provider Provider, name string, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		provider:       provider,
		name:           name,
		batchSize:      defaultBatchSize,
		maxChars:       defaultMaxChars,
		maxConcurrency: defaultMaxConcurrency,
		retryBackoff:   defaultRetryBackoff,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Dimensions returns the vector length produced by Embed.
func (g *Gateway) Dimensions() int {
	return g.provider.Dimensions()
}

// Embed returns one L2-normalized vector per text, in input order.
// Empty input yields an empty result. A blank text is a validation error.
// Provider failures after one retry become a huberrors.ProviderUnavailableError.
func (g *Gateway) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	prepared, err := g.prepare(texts)
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(prepared))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(g.maxConcurrency)

	for start := 0; start < len(prepared); start += g.batchSize {
		end := min(start+g.batchSize, len(prepared))

		group.Go(func() error {
			vecs, err := g.embedBatch(groupCtx, prepared[start:end])
			if err != nil {
				return fmt.Errorf("embed texts %d-%d: %w", start, end-1, err)
			}

			copy(out[start:end], vecs)

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

// prepare trims whitespace and truncates each text to maxChars runes. Case is preserved.
func (g *Gateway) prepare(texts []string) ([]string, error) {
	prepared := make([]string, len(texts))

	for i, text := range texts {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil, huberrors.NewValidationError("texts", fmt.Sprintf("text at index %d is blank", i))
		}

		prepared[i] = truncateRunes(trimmed, g.maxChars)
	}

	return prepared, nil
}

func truncateRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}

	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}

		count++
	}

	return s
}

func (g *Gateway) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error

	const maxAttempts = 2

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				g.recordError(ctx, "canceled")

				return nil, fmt.Errorf("rate limiter: %w", err)
			}
		}

		started := time.Now()
		vecs, err := g.call(ctx, batch)

		if err == nil {
			g.recordBatch(ctx, "success", len(batch), time.Since(started))

			return vecs, nil
		}

		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			g.recordBatch(ctx, "failed", len(batch), time.Since(started))
			g.recordError(ctx, "canceled")

			return nil, fmt.Errorf("embedding canceled: %w", ctxErr)
		}

		if errors.Is(err, errDimensionMismatch) {
			g.recordBatch(ctx, "failed", len(batch), time.Since(started))
			g.recordError(ctx, "dimension_mismatch")

			return nil, huberrors.NewProviderUnavailableError(g.name, err)
		}

		if attempt == maxAttempts {
			g.recordBatch(ctx, "failed", len(batch), time.Since(started))

			break
		}

		g.recordBatch(ctx, "retry", len(batch), time.Since(started))

		if g.metrics != nil {
			g.metrics.RecordRetry(ctx, g.name)
		}

		sleep := jitter(g.retryBackoff)
		slog.WarnContext(ctx, "embedding batch failed, retrying after backoff",
			"provider", g.name,
			"batch_size", len(batch),
			"backoff", sleep,
			"error", err,
		)

		if err := sleepCtx(ctx, sleep); err != nil {
			return nil, err
		}
	}

	g.recordError(ctx, "request_failed")

	return nil, huberrors.NewProviderUnavailableError(g.name, lastErr)
}

// call invokes the provider and validates the shape of its reply before normalizing.
func (g *Gateway) call(ctx context.Context, batch []string) ([][]float32, error) {
	vecs, err := g.provider.CreateEmbeddings(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}

	if len(vecs) != len(batch) {
		return nil, fmt.Errorf("provider returned %d vectors for %d texts", len(vecs), len(batch))
	}

	dim := g.provider.Dimensions()

	for i, v := range vecs {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: got %d, want %d", errDimensionMismatch, len(v), dim)
		}

		normalized := make([]float32, len(v))
		copy(normalized, v)
		vectors.NormalizeL2(normalized)
		vecs[i] = normalized
	}

	return vecs, nil
}

func (g *Gateway) recordBatch(ctx context.Context, status string, n int, d time.Duration) {
	if g.metrics != nil {
		g.metrics.RecordBatch(ctx, g.name, status, n, d)
	}
}

func (g *Gateway) recordError(ctx context.Context, reason string) {
	if g.metrics != nil {
		g.metrics.RecordProviderError(ctx, g.name, reason)
	}
}

// jitter returns a duration between 50% and 100% of d.
func jitter(d time.Duration) time.Duration {
	half := d / 2
	if half <= 0 {
		return d
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return half
	}

	//nolint:gosec // G115: modulo result is in [0, half), safe to convert to int64
	return half + time.Duration(binary.BigEndian.Uint64(buf[:])%uint64(half.Nanoseconds()))
}

// sleepCtx blocks for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

var _ Embedder = (*Gateway)(nil)
