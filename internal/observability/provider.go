package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	prometheusexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"

	"github.com/formbricks/themes/internal/config"
)

const (
	defaultServiceName = "themes"
	cardinalityLimit   = 2000
)

// durationHistogramBounds are second-based buckets. Embedding batches take tens of milliseconds to
// seconds; full pipeline runs take seconds to minutes.
var durationHistogramBounds = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800,
}

// newResource returns a resource with the configured service name merged with default.
func newResource(serviceName string) (*resource.Resource, error) {
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("merge resource: %w", err)
	}

	return res, nil
}

// NewMeterProvider creates a MeterProvider for the configured exporter.
// "otlp" pushes periodically; "prometheus" returns a pull handler for /metrics.
// When cfg.OTELMetricsExporter is empty, returns (nil, nil, nil).
func NewMeterProvider(ctx context.Context, cfg *config.Config) (*sdkmetric.MeterProvider, http.Handler, error) {
	if cfg == nil || cfg.OTELMetricsExporter == "" {
		return nil, nil, nil
	}

	res, err := newResource(cfg.OTELServiceName)
	if err != nil {
		return nil, nil, fmt.Errorf("create resource: %w", err)
	}

	view := sdkmetric.NewView(
		sdkmetric.Instrument{Name: "themes_*_duration_seconds"},
		sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: durationHistogramBounds}},
	)

	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithView(view),
		sdkmetric.WithCardinalityLimit(cardinalityLimit),
	}

	var handler http.Handler

	switch cfg.OTELMetricsExporter {
	case "otlp":
		// SDK reads OTEL_EXPORTER_OTLP_ENDPOINT (and scheme/insecure) from env.
		exp, err := otlpmetrichttp.New(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create OTLP metric exporter: %w", err)
		}

		const metricExportInterval = 60 * time.Second

		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp,
			sdkmetric.WithInterval(metricExportInterval),
		)))
	case "prometheus":
		reg := prometheus.NewRegistry()

		exp, err := prometheusexporter.New(prometheusexporter.WithRegisterer(reg))
		if err != nil {
			return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
		}

		opts = append(opts, sdkmetric.WithReader(exp))
		handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	default:
		return nil, nil, fmt.Errorf("unsupported metrics exporter %q", cfg.OTELMetricsExporter)
	}

	return sdkmetric.NewMeterProvider(opts...), handler, nil
}

// ShutdownMeterProvider flushes and shuts down the MeterProvider. Safe to call with nil.
func ShutdownMeterProvider(ctx context.Context, provider *sdkmetric.MeterProvider) error {
	if provider == nil {
		return nil
	}

	if err := provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("meter provider shutdown: %w", err)
	}

	return nil
}

// NewTracerProvider creates a TracerProvider when tracing is enabled.
// When cfg.OTELTracesExporter is empty, returns (nil, nil).
func NewTracerProvider(ctx context.Context, cfg *config.Config) (*sdktrace.TracerProvider, error) {
	if cfg == nil || cfg.OTELTracesExporter == "" {
		//nolint:nilnil // intentional: tracing disabled, caller checks for nil
		return nil, nil
	}

	res, err := newResource(cfg.OTELServiceName)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	var exp sdktrace.SpanExporter

	switch cfg.OTELTracesExporter {
	case "otlp":
		exp, err = otlptracehttp.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("create OTLP trace exporter: %w", err)
		}
	case "stdout":
		exp, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout trace exporter: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported traces exporter %q", cfg.OTELTracesExporter)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler()),
		sdktrace.WithBatcher(exp),
	), nil
}

// ShutdownTracerProvider flushes and shuts down the TracerProvider. Safe to call with nil.
func ShutdownTracerProvider(ctx context.Context, provider *sdktrace.TracerProvider) error {
	if provider == nil {
		return nil
	}

	if err := provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("tracer provider shutdown: %w", err)
	}

	return nil
}
