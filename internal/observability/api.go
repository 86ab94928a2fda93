package observability

import (
	"context"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// APIMetrics records API-level metrics not covered by otelhttp.
type APIMetrics interface {
	RecordRequestBodyTooLarge(ctx context.Context)
	RecordProblem(ctx context.Context, status int)
}

type apiMetrics struct {
	requestBodyTooLarge metric.Int64Counter
	problems            metric.Int64Counter
}

// NewAPIMetrics creates APIMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewAPIMetrics(meter metric.Meter) (APIMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	tooLarge, err := meter.Int64Counter(
		MetricNameRequestBodyTooLarge,
		metric.WithDescription("Requests rejected because the body exceeded the configured limit (413)."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create request body too large counter: %w", err)
	}

	problems, err := meter.Int64Counter(
		MetricNameProblems,
		metric.WithDescription("Problem responses returned by handlers, by HTTP status."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create problem responses counter: %w", err)
	}

	return &apiMetrics{requestBodyTooLarge: tooLarge, problems: problems}, nil
}

func (a *apiMetrics) RecordRequestBodyTooLarge(ctx context.Context) {
	a.requestBodyTooLarge.Add(ctx, 1)
}

func (a *apiMetrics) RecordProblem(ctx context.Context, status int) {
	a.problems.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrStatus, strconv.Itoa(status))))
}
