package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/formbricks/themes/internal/api"
	"github.com/formbricks/themes/internal/api/handlers"
	"github.com/formbricks/themes/internal/api/middleware"
	"github.com/formbricks/themes/internal/clustering"
	"github.com/formbricks/themes/internal/config"
	"github.com/formbricks/themes/internal/embeddings"
	"github.com/formbricks/themes/internal/googleai"
	"github.com/formbricks/themes/internal/huberrors"
	"github.com/formbricks/themes/internal/labeling"
	"github.com/formbricks/themes/internal/observability"
	"github.com/formbricks/themes/internal/openai"
	"github.com/formbricks/themes/internal/pipeline"
	"github.com/formbricks/themes/internal/repository"
	"github.com/formbricks/themes/internal/scoring"
	"github.com/formbricks/themes/internal/service"
	"github.com/formbricks/themes/internal/workers"
)

// App holds all server dependencies and coordinates startup and shutdown.
type App struct {
	cfg            *config.Config
	server         *http.Server
	river          *river.Client[pgx.Tx]
	pipeline       *pipeline.Pipeline
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
}

var errUnsupportedEmbeddingProvider = errors.New("unsupported embedding provider")

// setupMetrics creates the meter provider and collectors. All results are nil when metrics are disabled.
func setupMetrics(ctx context.Context, cfg *config.Config) (*sdkmetric.MeterProvider, http.Handler, *observability.Metrics, error) {
	mp, promHandler, err := observability.NewMeterProvider(ctx, cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create meter provider: %w", err)
	}

	if mp == nil {
		return nil, nil, nil, nil
	}

	metrics, err := observability.NewMetrics(mp.Meter("themes"))
	if err != nil {
		if err2 := observability.ShutdownMeterProvider(context.Background(), mp); err2 != nil {
			slog.Error("shutdown meter provider after metrics error", "error", err2)
		}

		return nil, nil, nil, fmt.Errorf("create metrics: %w", err)
	}

	return mp, promHandler, metrics, nil
}

// newEmbeddingProvider picks the vendor client named by EMBEDDING_PROVIDER.
func newEmbeddingProvider(ctx context.Context, cfg *config.Config) (embeddings.Provider, error) {
	switch cfg.EmbeddingProvider {
	case config.EmbeddingProviderOpenAI:
		return openai.NewClient(cfg.EmbeddingProviderAPIKey,
			openai.WithModel(cfg.EmbeddingModel),
			openai.WithDimensions(cfg.EmbeddingDimensions),
		), nil
	case config.EmbeddingProviderGoogle:
		client, err := googleai.NewClient(ctx, cfg.EmbeddingProviderAPIKey,
			googleai.WithModel(cfg.EmbeddingModel),
			googleai.WithDimensions(cfg.EmbeddingDimensions),
		)
		if err != nil {
			return nil, fmt.Errorf("create google embedding client: %w", err)
		}

		return client, nil
	case config.EmbeddingProviderMock:
		slog.Warn("using deterministic mock embeddings; themes will not be meaningful")

		return embeddings.NewMockProvider(cfg.EmbeddingDimensions), nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnsupportedEmbeddingProvider, cfg.EmbeddingProvider)
	}
}

// embeddingColumn reports the width of the stored embedding column.
type embeddingColumn interface {
	EmbeddingDimensions(ctx context.Context) (int, error)
}

// checkEmbeddingColumn fails startup when EMBEDDING_DIMENSIONS differs from the width of the
// embedding column, which would otherwise reject every embedding write mid-run.
func checkEmbeddingColumn(ctx context.Context, col embeddingColumn, want int) error {
	got, err := col.EmbeddingDimensions(ctx)
	if err != nil {
		return err
	}

	if got != 0 && got != want {
		return huberrors.NewValidationError("EMBEDDING_DIMENSIONS",
			fmt.Sprintf("EMBEDDING_DIMENSIONS is %d but the embedding column holds %d dimensions", want, got))
	}

	return nil
}

// NewApp builds and wires all components. It does not start the HTTP server or River;
// call Run to start and block until shutdown or failure.
func NewApp(ctx context.Context, cfg *config.Config, db *pgxpool.Pool) (*App, error) {
	meterProvider, promHandler, metrics, err := setupMetrics(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if meterProvider == nil {
		slog.Warn("metrics not enabled (OTEL_METRICS_EXPORTER empty or unset)")
	}

	tracerProvider, err := observability.NewTracerProvider(ctx, cfg)
	if err != nil {
		if err2 := observability.ShutdownMeterProvider(context.Background(), meterProvider); err2 != nil {
			slog.Error("shutdown meter provider after tracer provider error", "error", err2)
		}

		return nil, fmt.Errorf("create tracer provider: %w", err)
	}

	if tracerProvider == nil {
		slog.Warn("tracing not enabled (OTEL_TRACES_EXPORTER empty or unset)")
	}

	// Installed unconditionally so request_id and run_id (and trace ids when tracing is on) reach the logs.
	slog.SetDefault(slog.New(observability.NewTraceContextHandler(slog.Default().Handler())))

	if tracerProvider != nil {
		otel.SetTracerProvider(tracerProvider)
	}

	if meterProvider != nil {
		otel.SetMeterProvider(meterProvider)
	}

	var (
		embeddingMetrics observability.EmbeddingMetrics
		pipelineMetrics  observability.PipelineMetrics
		cacheMetrics     observability.CacheMetrics
		apiMetrics       observability.APIMetrics
	)

	if metrics != nil {
		embeddingMetrics = metrics.Embeddings
		pipelineMetrics = metrics.Pipeline
		cacheMetrics = metrics.Cache
		apiMetrics = metrics.API
	}

	fail := func(err error) (*App, error) {
		if err2 := shutdownObservability(context.Background(), tracerProvider, meterProvider); err2 != nil {
			slog.Error("shutdown observability after startup error", "error", err2)
		}

		return nil, err
	}

	provider, err := newEmbeddingProvider(ctx, cfg)
	if err != nil {
		return fail(err)
	}

	gateway := embeddings.NewGateway(provider, cfg.EmbeddingProvider,
		embeddings.WithBatchSize(cfg.EmbeddingBatchSize),
		embeddings.WithMaxChars(cfg.EmbeddingMaxChars),
		embeddings.WithMaxConcurrency(cfg.EmbeddingMaxConcurrency),
		embeddings.WithRateLimit(cfg.EmbeddingRateLimit),
		embeddings.WithRetryBackoff(cfg.EmbeddingRetryBackoff),
		embeddings.WithMetrics(embeddingMetrics),
	)

	var labelOpts []labeling.Option
	if cfg.LLMRefinementEnabled {
		refiner := openai.NewClient(cfg.LLMAPIKey, openai.WithChatModel(cfg.LLMModel))
		labelOpts = append(labelOpts, labeling.WithRefiner(refiner, cfg.LLMTimeout))
	}

	feedbackRepo := repository.NewFeedbackRepository(db)
	if err := checkEmbeddingColumn(ctx, feedbackRepo, cfg.EmbeddingDimensions); err != nil {
		return fail(err)
	}

	customersRepo := repository.NewCustomersRepository(db)
	themesRepo := repository.NewThemesRepository(db)
	runsRepo := repository.NewRunsRepository(db)

	scoringStore := scoring.NewConfigStore(scoring.Config{
		Weights:           cfg.ScoreWeights,
		SegmentPriorities: cfg.SegmentPriorities,
	})

	pl := pipeline.New(pipeline.Dependencies{
		Feedback:  feedbackRepo,
		Themes:    themesRepo,
		Customers: service.NewCustomerDirectory(customersRepo, cfg.CustomerCacheSize, cfg.CustomerCacheTTL, cacheMetrics),
		Embedder:  gateway,
		Labeler:   labeling.NewGenerator(gateway, labelOpts...),
		Scoring:   scoringStore,
	},
		pipeline.WithTimeout(cfg.PipelineTimeout),
		pipeline.WithMinFeedbackCount(cfg.ClusteringMinFeedbackCount),
		pipeline.WithClusteringDefaults(clustering.Config{
			MinClusterSize:   cfg.HDBSCANMinClusterSize,
			MinSamples:       cfg.HDBSCANMinSamples,
			OutlierThreshold: cfg.ClusteringOutlierThreshold,
		}),
		pipeline.WithLLMRefinement(cfg.LLMRefinementEnabled),
		pipeline.WithHistorySize(cfg.RunHistorySize),
		pipeline.WithRunStore(runsRepo),
		pipeline.WithMetrics(pipelineMetrics),
	)

	riverClient, err := workers.NewClient(db, workers.ClientOptions{
		Runner:           pl,
		PipelineTimeout:  cfg.PipelineTimeout,
		MaxWorkers:       cfg.RiverWorkers,
		ScheduleInterval: cfg.PipelineScheduleInterval,
		Logger:           slog.Default(),
	})
	if err != nil {
		return fail(err)
	}

	router := api.NewRouter(api.Routes{
		Health:       handlers.NewHealthHandler(db),
		Clustering:   handlers.NewClusteringHandler(pl),
		Themes:       handlers.NewThemesHandler(themesRepo),
		Scoring:      handlers.NewScoringHandler(scoringStore),
		Metrics:      promHandler,
		APIMetrics:   apiMetrics,
		MaxBodyBytes: api.DefaultMaxBodyBytes,
	})

	slog.Info("themes service configured",
		"embedding_provider", cfg.EmbeddingProvider,
		"embedding_dimensions", cfg.EmbeddingDimensions,
		"llm_refinement", cfg.LLMRefinementEnabled,
		"schedule_interval", cfg.PipelineScheduleInterval,
	)

	return &App{
		cfg:            cfg,
		server:         newHTTPServer(cfg, router, meterProvider, tracerProvider),
		river:          riverClient,
		pipeline:       pl,
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
	}, nil
}

// newHTTPServer wraps the router. Handler chain: RequestID -> otelhttp(Logging(router)) so access
// logs get trace_id/span_id from context.
func newHTTPServer(
	cfg *config.Config,
	router http.Handler,
	meterProvider *sdkmetric.MeterProvider,
	tracerProvider *sdktrace.TracerProvider,
) *http.Server {
	otelOpts := []otelhttp.Option{
		// Skip tracing and HTTP metrics for health checks to reduce noise.
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health"
		}),
	}
	if meterProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(meterProvider))
	}

	if tracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(tracerProvider))
	}

	handler := otelhttp.NewHandler(middleware.Logging(router), "themes-api", otelOpts...)
	handler = middleware.RequestID(handler)

	const (
		readTimeout  = 15 * time.Second
		writeTimeout = 30 * time.Second
		idleTimeout  = 60 * time.Second
	)

	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// Run starts the HTTP server and River, then blocks until ctx is cancelled or a component fails.
// Either way it cancels the internal River context before returning. Caller should then call Shutdown.
func (a *App) Run(ctx context.Context) error {
	runErr := make(chan error, 1)

	riverCtx, cancelRiver := context.WithCancel(ctx)
	defer cancelRiver()

	go func() {
		if err := a.river.Start(riverCtx); err != nil && !errors.Is(err, context.Canceled) {
			select {
			case runErr <- fmt.Errorf("river: %w", err):
			default:
			}
		}
	}()

	go func() {
		slog.Info("Starting server", "port", a.cfg.Port)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case runErr <- fmt.Errorf("server: %w", err):
			default:
			}
		}
	}()

	select {
	case err := <-runErr:
		cancelRiver()

		return err
	case <-ctx.Done():
		cancelRiver()

		return nil
	}
}

// shutdownObservability shuts down tracer and meter providers. Logs secondary errors, returns the first.
func shutdownObservability(ctx context.Context, tracer *sdktrace.TracerProvider, meter *sdkmetric.MeterProvider) error {
	var first error

	if err := observability.ShutdownTracerProvider(ctx, tracer); err != nil {
		first = err
	}

	if err := observability.ShutdownMeterProvider(ctx, meter); err != nil {
		if first == nil {
			first = err
		} else {
			slog.Error("shutdown meter provider", "error", err)
		}
	}

	return first
}

// waitPipeline waits for runs started over HTTP, bounded by ctx.
func (a *App) waitPipeline(ctx context.Context) error {
	done := make(chan struct{})

	go func() {
		a.pipeline.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for clustering run: %w", ctx.Err())
	}
}

// Shutdown stops the server, River and in-flight pipeline runs in order. Call after Run returns.
// Observability is shut down once via defer; its error is returned only when everything else stopped cleanly.
func (a *App) Shutdown(ctx context.Context) (err error) {
	defer func() {
		obsErr := shutdownObservability(ctx, a.tracerProvider, a.meterProvider)
		if err == nil {
			err = obsErr
		} else if obsErr != nil {
			slog.Error("shutdown observability", "error", obsErr)
		}
	}()

	if err = a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if stopErr := a.river.Stop(ctx); stopErr != nil {
			slog.Error("river stop during server shutdown", "error", stopErr)
		}

		return fmt.Errorf("server shutdown: %w", err)
	}

	if err = a.river.Stop(ctx); err != nil {
		return fmt.Errorf("river stop: %w", err)
	}

	return a.waitPipeline(ctx)
}
