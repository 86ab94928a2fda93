// Package observability provides OpenTelemetry metrics and tracing for the themes service.
package observability

// Metric names (Prometheus / OpenTelemetry).
const (
	MetricNameEmbeddingBatches        = "themes_embedding_batches_total"
	MetricNameEmbeddingRetries        = "themes_embedding_retries_total"
	MetricNameEmbeddingProviderErrors = "themes_embedding_provider_errors_total"
	MetricNameEmbeddingTexts          = "themes_embedding_texts_total"
	MetricNameEmbeddingDuration       = "themes_embedding_batch_duration_seconds"

	MetricNamePipelineRuns          = "themes_pipeline_runs_total"
	MetricNamePipelineRunDuration   = "themes_pipeline_run_duration_seconds"
	MetricNamePipelineStageDuration = "themes_pipeline_stage_duration_seconds"
	MetricNamePipelineThemes        = "themes_pipeline_themes_created"
	MetricNamePipelineNoise         = "themes_pipeline_noise_items"
	MetricNamePipelineLabels        = "themes_pipeline_labels_total"
	MetricNamePipelineRejected      = "themes_pipeline_runs_rejected_total"

	MetricNameCacheHits   = "themes_cache_hits_total"
	MetricNameCacheMisses = "themes_cache_misses_total"

	MetricNameRequestBodyTooLarge = "themes_request_body_too_large_total"
	MetricNameProblems            = "themes_api_problem_responses_total"
)

// Attribute keys.
const (
	AttrReason   = "reason"
	AttrStatus   = "status"
	AttrStage    = "stage"
	AttrProvider = "provider"
	AttrMethod   = "method"
	AttrTrigger  = "trigger"
)

// TracerName is the instrumentation scope for pipeline spans.
const TracerName = "github.com/formbricks/themes/internal/pipeline"

// AllowedEmbeddingProviderReasons for themes_embedding_provider_errors_total.
var AllowedEmbeddingProviderReasons = map[string]bool{
	"request_failed":     true,
	"dimension_mismatch": true,
	"rate_limited":       true,
	"canceled":           true,
}

// AllowedBatchStatuses for themes_embedding_batches_total and themes_embedding_batch_duration_seconds.
var AllowedBatchStatuses = map[string]bool{
	"success": true,
	"retry":   true,
	"failed":  true,
}

// AllowedProviders bounds the provider attribute.
var AllowedProviders = map[string]bool{
	"openai": true,
	"google": true,
	"mock":   true,
}

// AllowedRunStatuses for themes_pipeline_runs_total.
var AllowedRunStatuses = map[string]bool{
	"completed":         true,
	"failed":            true,
	"timeout":           true,
	"insufficient_data": true,
}

// AllowedStages for themes_pipeline_stage_duration_seconds.
var AllowedStages = map[string]bool{
	"load":     true,
	"embed":    true,
	"cluster":  true,
	"label":    true,
	"score":    true,
	"insights": true,
	"persist":  true,
}

// AllowedLabelMethods for themes_pipeline_labels_total.
var AllowedLabelMethods = map[string]bool{
	"keywords": true,
	"llm":      true,
}

// AllowedCacheNames bounds the cache attribute.
var AllowedCacheNames = map[string]bool{
	"customer_directory": true,
}

// NormalizeReason returns reason if in allowed, otherwise "other".
func NormalizeReason(reason string, allowed map[string]bool) string {
	if allowed[reason] {
		return reason
	}

	return "other"
}

// NormalizeCacheName returns name if it is a known cache, otherwise "other".
func NormalizeCacheName(name string) string {
	return NormalizeReason(name, AllowedCacheNames)
}
