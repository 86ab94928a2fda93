package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// EmbeddingMetrics records embedding gateway metrics per provider.
type EmbeddingMetrics interface {
	RecordBatch(ctx context.Context, provider, status string, texts int, duration time.Duration)
	RecordRetry(ctx context.Context, provider string)
	RecordProviderError(ctx context.Context, provider, reason string)
}

type embeddingMetrics struct {
	batches        metric.Int64Counter
	retries        metric.Int64Counter
	providerErrors metric.Int64Counter
	texts          metric.Int64Counter
	duration       metric.Float64Histogram
}

// NewEmbeddingMetrics creates EmbeddingMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewEmbeddingMetrics(meter metric.Meter) (EmbeddingMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	batches, err := meter.Int64Counter(
		MetricNameEmbeddingBatches,
		metric.WithDescription("Total embedding batches sent to the provider by status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding batches counter: %w", err)
	}

	retries, err := meter.Int64Counter(
		MetricNameEmbeddingRetries,
		metric.WithDescription("Total embedding batch retries"),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding retries counter: %w", err)
	}

	providerErrors, err := meter.Int64Counter(
		MetricNameEmbeddingProviderErrors,
		metric.WithDescription("Total embedding provider errors by reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding provider errors counter: %w", err)
	}

	texts, err := meter.Int64Counter(
		MetricNameEmbeddingTexts,
		metric.WithDescription("Total texts embedded"),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding texts counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		MetricNameEmbeddingDuration,
		metric.WithDescription("Embedding batch duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding duration histogram: %w", err)
	}

	return &embeddingMetrics{
		batches:        batches,
		retries:        retries,
		providerErrors: providerErrors,
		texts:          texts,
		duration:       duration,
	}, nil
}

func (e *embeddingMetrics) RecordBatch(ctx context.Context, provider, status string, texts int, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(AttrProvider, NormalizeReason(provider, AllowedProviders)),
		attribute.String(AttrStatus, NormalizeReason(status, AllowedBatchStatuses)),
	)

	e.batches.Add(ctx, 1, attrs)
	e.duration.Record(ctx, duration.Seconds(), attrs)

	if status == "success" {
		e.texts.Add(ctx, int64(texts), metric.WithAttributes(
			attribute.String(AttrProvider, NormalizeReason(provider, AllowedProviders)),
		))
	}
}

func (e *embeddingMetrics) RecordRetry(ctx context.Context, provider string) {
	e.retries.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrProvider, NormalizeReason(provider, AllowedProviders)),
	))
}

func (e *embeddingMetrics) RecordProviderError(ctx context.Context, provider, reason string) {
	e.providerErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrProvider, NormalizeReason(provider, AllowedProviders)),
		attribute.String(AttrReason, NormalizeReason(reason, AllowedEmbeddingProviderReasons)),
	))
}
