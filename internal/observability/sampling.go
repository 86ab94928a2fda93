package observability

import (
	"os"
	"strconv"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Standard OTEL sampling env vars, read directly rather than through config.Config.
const (
	envTracesSampler    = "OTEL_TRACES_SAMPLER"
	envTracesSamplerArg = "OTEL_TRACES_SAMPLER_ARG"
)

// defaultTraceIDRatio applies when a ratio sampler is selected without a valid OTEL_TRACES_SAMPLER_ARG.
const defaultTraceIDRatio = 1.0

// newSampler returns a Sampler from OTEL_TRACES_SAMPLER and OTEL_TRACES_SAMPLER_ARG.
// Supported values: always_on, always_off, traceidratio, parentbased_traceidratio,
// parentbased_always_on, parentbased_always_off. Empty or unknown => parentbased_always_on.
func newSampler() sdktrace.Sampler {
	switch os.Getenv(envTracesSampler) {
	case "always_on":
		return sdktrace.AlwaysSample()
	case "always_off":
		return sdktrace.NeverSample()
	case "traceidratio":
		return sdktrace.TraceIDRatioBased(parseTraceIDRatio(os.Getenv(envTracesSamplerArg)))
	case "parentbased_traceidratio":
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(parseTraceIDRatio(os.Getenv(envTracesSamplerArg))))
	case "parentbased_always_on":
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case "parentbased_always_off":
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
}

func parseTraceIDRatio(s string) float64 {
	if s == "" {
		return defaultTraceIDRatio
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f > 1 {
		return defaultTraceIDRatio
	}

	return f
}
