// Package pipeline runs the clustering pipeline end to end: load feedback, embed what is missing,
// cluster, label, score, derive insights and swap the stored generation atomically.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/formbricks/themes/internal/clustering"
	"github.com/formbricks/themes/internal/embeddings"
	"github.com/formbricks/themes/internal/huberrors"
	"github.com/formbricks/themes/internal/labeling"
	"github.com/formbricks/themes/internal/models"
	"github.com/formbricks/themes/internal/observability"
	"github.com/formbricks/themes/internal/scoring"
)

// Defaults.
const (
	DefaultTimeout          = 30 * time.Minute
	DefaultMinFeedbackCount = 20
	DefaultLabelConcurrency = 4
	DefaultHistorySize      = 50

	persistTimeout = 10 * time.Second
)

// FeedbackStore reads feedback and stores computed embeddings.
type FeedbackStore interface {
	ListForClustering(ctx context.Context) ([]models.FeedbackItem, error)
	UpdateEmbeddings(ctx context.Context, embeddings map[uuid.UUID][]float32) error
}

// ThemeStore swaps the current generation.
type ThemeStore interface {
	ReplaceGeneration(ctx context.Context, gen models.Generation) error
}

// CustomerResolver resolves account names to customers.
type CustomerResolver interface {
	Resolve(ctx context.Context, names []string) (map[string]models.Customer, error)
}

// Labeler names clusters.
type Labeler interface {
	Generate(ctx context.Context, members []labeling.Member, centroid []float32, refine bool) (labeling.Label, error)
	RefinementAvailable() bool
}

// Dependencies are the collaborators every run needs.
type Dependencies struct {
	Feedback  FeedbackStore
	Themes    ThemeStore
	Customers CustomerResolver
	Embedder  embeddings.Embedder
	Labeler   Labeler
	Scoring   *scoring.ConfigStore
}

// Pipeline orchestrates clustering runs. At most one run is in flight per Pipeline.
type Pipeline struct {
	deps Dependencies

	state   *RunState
	runs    RunStore
	metrics observability.PipelineMetrics
	tracer  trace.Tracer

	clusterDefaults  clustering.Config
	minFeedbackCount int
	labelConcurrency int
	llmRefinement    bool
	timeout          time.Duration
	now              func() time.Time

	wg sync.WaitGroup
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTimeout bounds the wall-clock duration of a run.
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithMinFeedbackCount sets the feedback count below which a run completes with no themes.
func WithMinFeedbackCount(n int) Option {
	return func(p *Pipeline) {
		if n >= 0 {
			p.minFeedbackCount = n
		}
	}
}

// WithClusteringDefaults sets the clustering parameters new runs start from.
func WithClusteringDefaults(cfg clustering.Config) Option {
	return func(p *Pipeline) { p.clusterDefaults = cfg }
}

// WithLLMRefinement turns label refinement on by default for new runs.
func WithLLMRefinement(enabled bool) Option {
	return func(p *Pipeline) { p.llmRefinement = enabled }
}

// WithLabelConcurrency bounds how many clusters are labeled at once.
func WithLabelConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.labelConcurrency = n
		}
	}
}

// WithHistorySize sets how many finished runs stay queryable in memory.
func WithHistorySize(n int) Option {
	return func(p *Pipeline) { p.state = NewRunState(n) }
}

// WithRunStore persists run snapshots. Persistence failures are logged, never fatal.
func WithRunStore(s RunStore) Option {
	return func(p *Pipeline) { p.runs = s }
}

// WithMetrics records pipeline metrics. nil disables them.
func WithMetrics(m observability.PipelineMetrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a Pipeline.
func New(deps Dependencies, opts ...Option) *Pipeline {
	p := &Pipeline{
		deps:             deps,
		state:            NewRunState(DefaultHistorySize),
		tracer:           otel.Tracer(observability.TracerName),
		clusterDefaults:  clustering.DefaultConfig(),
		minFeedbackCount: DefaultMinFeedbackCount,
		labelConcurrency: DefaultLabelConcurrency,
		timeout:          DefaultTimeout,
		now:              time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.deps.Scoring == nil {
		p.deps.Scoring = scoring.NewConfigStore(scoring.DefaultConfig())
	}

	return p
}

// DefaultRunConfig is the configuration a run uses when the caller overrides nothing: the
// clustering defaults, the effective scoring configuration and the refinement default.
func (p *Pipeline) DefaultRunConfig() models.RunConfig {
	sc, _ := p.deps.Scoring.Get()

	return models.RunConfig{
		MinClusterSize:    p.clusterDefaults.MinClusterSize,
		MinSamples:        p.clusterDefaults.MinSamples,
		Weights:           sc.Weights,
		SegmentPriorities: sc.SegmentPriorities,
		LLMRefinement:     p.llmRefinement && p.deps.Labeler.RefinementAvailable(),
	}
}

// ScoringConfig returns the scoring configuration store.
func (p *Pipeline) ScoringConfig() *scoring.ConfigStore {
	return p.deps.Scoring
}

// Start launches a run in the background and returns immediately. It fails with
// huberrors.ErrAlreadyRunning while another run is in flight, and with a validation error for a bad
// configuration. The run outlives ctx's cancellation but keeps its values.
func (p *Pipeline) Start(ctx context.Context, cfg models.RunConfig) (models.RunHandle, error) {
	runID, startedAt, err := p.begin(ctx, cfg)
	if err != nil {
		return models.RunHandle{}, err
	}

	p.wg.Add(1)

	go func() {
		defer p.wg.Done()

		//nolint:errcheck // the outcome is recorded in the run state
		p.execute(context.WithoutCancel(ctx), runID, startedAt, cfg)
	}()

	return models.RunHandle{RunID: runID, StartedAt: startedAt}, nil
}

// Run executes a run synchronously and returns its final status. The error is the run's failure,
// if any; insufficient data is not a failure.
func (p *Pipeline) Run(ctx context.Context, cfg models.RunConfig) (models.RunStatus, error) {
	runID, startedAt, err := p.begin(ctx, cfg)
	if err != nil {
		return models.RunStatus{}, err
	}

	return p.execute(ctx, runID, startedAt, cfg)
}

// Status returns a snapshot of run id. Runs evicted from memory are read from the run store.
func (p *Pipeline) Status(ctx context.Context, id uuid.UUID) (models.RunStatus, error) {
	if st, ok := p.state.Get(id); ok {
		return st, nil
	}

	if p.runs != nil {
		st, err := p.runs.Get(ctx, id)
		if err != nil {
			return models.RunStatus{}, fmt.Errorf("load run status: %w", err)
		}

		return st, nil
	}

	return models.RunStatus{}, huberrors.NewNotFoundError("clustering_run", "run not found")
}

// Latest returns the in-flight run, else the most recent finished one, else an idle status.
func (p *Pipeline) Latest() models.RunStatus {
	return p.state.Latest()
}

// Wait blocks until background runs started with Start have finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

var validate = validator.New()

func validateRunConfig(cfg models.RunConfig) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fields := make([]string, len(verrs))
			for i, fe := range verrs {
				fields[i] = fe.Namespace()
			}

			return huberrors.NewValidationError(strings.Join(fields, ","),
				"invalid run configuration: "+strings.Join(fields, ", "))
		}

		return huberrors.NewValidationError("config", err.Error())
	}

	return scoring.ValidateConfig(scoring.Config{Weights: cfg.Weights, SegmentPriorities: cfg.SegmentPriorities})
}

func (p *Pipeline) begin(ctx context.Context, cfg models.RunConfig) (uuid.UUID, time.Time, error) {
	if err := validateRunConfig(cfg); err != nil {
		return uuid.Nil, time.Time{}, err
	}

	runID := uuid.Must(uuid.NewV7())
	startedAt := p.now().UTC()

	st, err := p.state.begin(runID, cfg.Trigger, startedAt)
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordRunRejected(ctx)
		}

		slog.InfoContext(ctx, "clustering run rejected", "reason", "already running", "trigger", cfg.Trigger)

		return uuid.Nil, time.Time{}, err
	}

	p.persist(ctx, st)

	return runID, startedAt, nil
}

// execute runs the stages under the timeout and settles the run state.
func (p *Pipeline) execute(ctx context.Context, runID uuid.UUID, startedAt time.Time, cfg models.RunConfig) (models.RunStatus, error) {
	ctx = observability.WithRunID(ctx, runID.String())

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ctx, span := p.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run_id", runID.String()),
		attribute.String("trigger", string(cfg.Trigger)),
	))
	defer span.End()

	slog.InfoContext(ctx, "clustering run started",
		"trigger", cfg.Trigger,
		"min_cluster_size", cfg.MinClusterSize,
		"min_samples", cfg.MinSamples,
		"llm_refinement", cfg.LLMRefinement,
	)

	out, err := p.run(ctx, runID, startedAt, cfg)

	status := "completed"

	switch {
	case err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		err = fmt.Errorf("run timed out after %s: %w", p.timeout, err)
		status = "timeout"
	case err != nil:
		status = "failed"
	case out.insufficient:
		status = "insufficient_data"
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	final := p.state.finish(runID, p.now().UTC(), err)

	// ctx may already be past its deadline.
	persistCtx, cancelPersist := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancelPersist()

	p.persist(persistCtx, final)

	duration := time.Duration(0)
	if final.CompletedAt != nil {
		duration = final.CompletedAt.Sub(startedAt)
	}

	if p.metrics != nil {
		p.metrics.RecordRun(persistCtx, string(cfg.Trigger), status, duration)
	}

	if err != nil {
		slog.ErrorContext(ctx, "clustering run failed", "status", status, "duration", duration, "error", err)

		return final, err
	}

	slog.InfoContext(ctx, "clustering run completed",
		"status", status,
		"duration", duration,
		"themes_created", final.ThemesCreated,
		"insights_created", final.InsightsCreated,
		"items_embedded", final.ItemsEmbedded,
		"items_clustered", final.ItemsClustered,
		"noise_count", final.NoiseCount,
	)

	return final, nil
}

func (p *Pipeline) persist(ctx context.Context, st models.RunStatus) {
	if p.runs == nil {
		return
	}

	if err := p.runs.Save(ctx, st); err != nil {
		slog.WarnContext(ctx, "failed to persist run status", "run_id", st.RunID, "state", st.State, "error", err)
	}
}

// stage runs fn inside a span and records its duration. Errors are prefixed with the stage name.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, "pipeline."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	if p.metrics != nil {
		p.metrics.RecordStage(ctx, name, elapsed)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return fmt.Errorf("%s: %w", name, err)
	}

	slog.DebugContext(ctx, "stage completed", "stage", name, "duration", elapsed)

	return nil
}
