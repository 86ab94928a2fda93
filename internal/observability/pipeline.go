package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PipelineMetrics records clustering run metrics.
type PipelineMetrics interface {
	RecordRun(ctx context.Context, trigger, status string, duration time.Duration)
	RecordStage(ctx context.Context, stage string, duration time.Duration)
	RecordRunOutput(ctx context.Context, themes, noise int)
	RecordLabel(ctx context.Context, method string)
	RecordRunRejected(ctx context.Context)
}

type pipelineMetrics struct {
	runs          metric.Int64Counter
	runDuration   metric.Float64Histogram
	stageDuration metric.Float64Histogram
	themes        metric.Int64Histogram
	noise         metric.Int64Histogram
	labels        metric.Int64Counter
	rejected      metric.Int64Counter
}

// NewPipelineMetrics creates PipelineMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewPipelineMetrics(meter metric.Meter) (PipelineMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	runs, err := meter.Int64Counter(
		MetricNamePipelineRuns,
		metric.WithDescription("Total clustering runs by trigger and final status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create pipeline runs counter: %w", err)
	}

	runDuration, err := meter.Float64Histogram(
		MetricNamePipelineRunDuration,
		metric.WithDescription("Clustering run wall-clock duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create pipeline run duration histogram: %w", err)
	}

	stageDuration, err := meter.Float64Histogram(
		MetricNamePipelineStageDuration,
		metric.WithDescription("Clustering run stage duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create pipeline stage duration histogram: %w", err)
	}

	themes, err := meter.Int64Histogram(
		MetricNamePipelineThemes,
		metric.WithDescription("Themes created per completed run"),
	)
	if err != nil {
		return nil, fmt.Errorf("create pipeline themes histogram: %w", err)
	}

	noise, err := meter.Int64Histogram(
		MetricNamePipelineNoise,
		metric.WithDescription("Feedback items left unclustered per completed run"),
	)
	if err != nil {
		return nil, fmt.Errorf("create pipeline noise histogram: %w", err)
	}

	labels, err := meter.Int64Counter(
		MetricNamePipelineLabels,
		metric.WithDescription("Theme labels generated by method (keywords, llm)"),
	)
	if err != nil {
		return nil, fmt.Errorf("create pipeline labels counter: %w", err)
	}

	rejected, err := meter.Int64Counter(
		MetricNamePipelineRejected,
		metric.WithDescription("Run requests rejected because a run was already in progress"),
	)
	if err != nil {
		return nil, fmt.Errorf("create pipeline rejected counter: %w", err)
	}

	return &pipelineMetrics{
		runs:          runs,
		runDuration:   runDuration,
		stageDuration: stageDuration,
		themes:        themes,
		noise:         noise,
		labels:        labels,
		rejected:      rejected,
	}, nil
}

func (p *pipelineMetrics) RecordRun(ctx context.Context, trigger, status string, duration time.Duration) {
	status = NormalizeReason(status, AllowedRunStatuses)
	attrs := metric.WithAttributes(attribute.String(AttrStatus, status), attribute.String(AttrTrigger, trigger))

	p.runs.Add(ctx, 1, attrs)
	p.runDuration.Record(ctx, duration.Seconds(), attrs)
}

func (p *pipelineMetrics) RecordStage(ctx context.Context, stage string, duration time.Duration) {
	p.stageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(AttrStage, NormalizeReason(stage, AllowedStages)),
	))
}

func (p *pipelineMetrics) RecordRunOutput(ctx context.Context, themes, noise int) {
	p.themes.Record(ctx, int64(themes))
	p.noise.Record(ctx, int64(noise))
}

func (p *pipelineMetrics) RecordLabel(ctx context.Context, method string) {
	p.labels.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrMethod, NormalizeReason(method, AllowedLabelMethods)),
	))
}

func (p *pipelineMetrics) RecordRunRejected(ctx context.Context) {
	p.rejected.Add(ctx, 1)
}
