package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/formbricks/forms/internal/api/handlers"
	"github.com/formbricks/forms/internal/api/middleware"
	"github.com/formbricks/forms/internal/config"
	"github.com/formbricks/forms/internal/models"
	"github.com/formbricks/forms/internal/observability"
	"github.com/formbricks/forms/internal/repository"
	"github.com/formbricks/forms/internal/service"
	"github.com/formbricks/forms/internal/workers"
	"github.com/formbricks/forms/pkg/cache"
)

// App holds all server dependencies and coordinates startup and shutdown.
type App struct {
	cfg            *config.Config
	db             *pgxpool.Pool
	server         *http.Server
	river          *river.Client[pgx.Tx]
	message        *service.MessagePublisherManager
	sessions       *service.SessionsService
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	metrics        *observability.Metrics
}

const riverQueueDepthInterval = 15 * time.Second

// setupMetrics creates the meter provider and collectors. Both are nil when the
// configured exporter is unsupported. promHandler is non-nil for the prometheus exporter.
func setupMetrics(ctx context.Context, cfg *config.Config) (
	*sdkmetric.MeterProvider, *observability.Metrics, http.Handler, error,
) {
	mp, promHandler, err := observability.NewMeterProvider(ctx, cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create meter provider: %w", err)
	}

	if mp == nil {
		return nil, nil, nil, nil
	}

	metrics, err := observability.NewMetrics(mp.Meter(observability.MeterScope))
	if err != nil {
		if err2 := observability.ShutdownMeterProvider(context.Background(), mp); err2 != nil {
			slog.Error("shutdown meter provider after metrics error", "error", err2)
		}

		return nil, nil, nil, fmt.Errorf("create metrics: %w", err)
	}

	return mp, metrics, promHandler, nil
}

// routes groups the handlers mounted by newHTTPServer.
type routes struct {
	health      *handlers.HealthHandler
	templates   *handlers.TemplatesHandler
	responses   *handlers.ResponsesHandler
	sessions    *handlers.SessionsHandler
	promHandler http.Handler
}

// NewApp builds and wires all components. It does not start the HTTP server or River;
// call Run to start and block until shutdown or failure.
func NewApp(ctx context.Context, cfg *config.Config, db *pgxpool.Pool) (*App, error) {
	var (
		err           error
		meterProvider *sdkmetric.MeterProvider
		metrics       *observability.Metrics
		promHandler   http.Handler
	)

	if cfg.OtelMetricsExporter == "" {
		slog.Warn("metrics not enabled (OTEL_METRICS_EXPORTER empty or unset)")
	} else {
		meterProvider, metrics, promHandler, err = setupMetrics(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	var (
		engineMetrics   observability.EngineMetrics
		eventMetrics    observability.EventMetrics
		deliveryMetrics observability.DeliveryMetrics
		cacheMetrics    observability.CacheMetrics
		apiMetrics      observability.APIMetrics
	)
	if metrics != nil {
		engineMetrics = metrics.Engine
		eventMetrics = metrics.Events
		deliveryMetrics = metrics.Delivery
		cacheMetrics = metrics.Cache
		apiMetrics = metrics.API
	}

	var tracerProvider *sdktrace.TracerProvider

	if cfg.OtelTracesExporter == "" {
		slog.Warn("tracing not enabled (OTEL_TRACES_EXPORTER empty or unset)")
	} else {
		tracerProvider, err = observability.NewTracerProvider(ctx, cfg)
		if err != nil {
			if meterProvider != nil {
				if err2 := observability.ShutdownMeterProvider(context.Background(), meterProvider); err2 != nil {
					slog.Error("shutdown meter provider after tracer provider error", "error", err2)
				}
			}

			return nil, fmt.Errorf("create tracer provider: %w", err)
		}
	}

	// Installed unconditionally so request_id and session_id reach every log line.
	slog.SetDefault(slog.New(observability.NewTraceContextHandler(slog.Default().Handler())))

	if tracerProvider != nil {
		otel.SetTracerProvider(tracerProvider)
	}

	if meterProvider != nil {
		otel.SetMeterProvider(meterProvider)
	}

	templateCache, err := cache.NewLoaderCache[uuid.UUID, *models.Template](cfg.TemplateCacheSize, uuid.UUID.String)
	if err != nil {
		_ = shutdownObservability(context.Background(), tracerProvider, meterProvider)

		return nil, fmt.Errorf("create template cache: %w", err)
	}

	templatesRepo := service.NewCachingTemplatesRepository(repository.NewTemplatesRepository(db), templateCache, cacheMetrics)
	responsesRepo := repository.NewResponsesRepository(db)

	messageManager := service.NewMessagePublisherManager(cfg.MessagePublisherBufferSize, 0, eventMetrics)

	riverWorkers := river.NewWorkers()
	river.AddWorker(riverWorkers, workers.NewSubmissionDispatchWorker(
		templatesRepo, service.NewSubmissionSenderImpl(), deliveryMetrics,
	))

	riverClient, err := river.NewClient(riverpgxv5.New(db), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.SubmissionDeliveryMaxConcurrent},
		},
		Workers: riverWorkers,
	})
	if err != nil {
		messageManager.Shutdown()

		if err2 := shutdownObservability(context.Background(), tracerProvider, meterProvider); err2 != nil {
			slog.Error("shutdown observability after River client error", "error", err2)
		}

		return nil, fmt.Errorf("create River client: %w", err)
	}

	messageManager.RegisterProvider(service.NewSubmissionProvider(
		riverClient, templatesRepo, cfg.SubmissionDeliveryMaxAttempts, deliveryMetrics,
	))

	sessionsService := service.NewSessionsService(service.SessionsServiceParams{
		Templates:   templatesRepo,
		Responses:   responsesRepo,
		Publisher:   messageManager,
		Metrics:     engineMetrics,
		MaxSessions: cfg.SessionCacheSize,
		IdleTTL:     cfg.SessionIdleTTL,
	})

	r := routes{
		health:      handlers.NewHealthHandler(sessionsService),
		templates:   handlers.NewTemplatesHandler(service.NewTemplatesService(templatesRepo, messageManager)),
		responses:   handlers.NewResponsesHandler(service.NewResponsesService(responsesRepo, templatesRepo)),
		sessions:    handlers.NewSessionsHandler(sessionsService),
		promHandler: promHandler,
	}

	return &App{
		cfg:            cfg,
		db:             db,
		server:         newHTTPServer(cfg, r, apiMetrics, meterProvider, tracerProvider),
		river:          riverClient,
		message:        messageManager,
		sessions:       sessionsService,
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		metrics:        metrics,
	}, nil
}

// newHTTPServer builds the server. /health and /metrics are open, /public/ is rate limited
// per client and /v1/ requires the API key.
// Handler chain: RequestID -> otelhttp(Logging(MaxBody(mux))) so access logs carry trace_id/span_id.
func newHTTPServer(
	cfg *config.Config,
	r routes,
	apiMetrics observability.APIMetrics,
	meterProvider *sdkmetric.MeterProvider,
	tracerProvider *sdktrace.TracerProvider,
) *http.Server {
	open := http.NewServeMux()
	open.HandleFunc("GET /health", r.health.Check)

	if r.promHandler != nil {
		open.Handle("GET /metrics", r.promHandler)
	}

	public := http.NewServeMux()
	public.HandleFunc("POST /public/sessions", r.sessions.Open)
	public.HandleFunc("GET /public/sessions/{id}", r.sessions.Get)
	public.HandleFunc("PUT /public/sessions/{id}/answer", r.sessions.SetAnswer)
	public.HandleFunc("PUT /public/sessions/{id}/answers", r.sessions.SetAnswers)
	public.HandleFunc("POST /public/sessions/{id}/navigate", r.sessions.Navigate)
	public.HandleFunc("POST /public/sessions/{id}/save", r.sessions.Save)
	public.HandleFunc("POST /public/sessions/{id}/submit", r.sessions.Submit)

	protected := http.NewServeMux()
	protected.HandleFunc("GET /v1/status", r.health.Status)
	protected.HandleFunc("POST /v1/templates", r.templates.Create)
	protected.HandleFunc("POST /v1/templates/lint", r.templates.Lint)
	protected.HandleFunc("GET /v1/templates", r.templates.List)
	protected.HandleFunc("GET /v1/templates/{id}", r.templates.Get)
	protected.HandleFunc("PATCH /v1/templates/{id}", r.templates.Update)
	protected.HandleFunc("GET /v1/templates/{id}/responses", r.responses.ListByTemplate)
	protected.HandleFunc("GET /v1/responses/{id}", r.responses.Get)

	mux := http.NewServeMux()
	mux.Handle("/v1/", middleware.Auth(cfg.APIKey)(protected))
	// CORS sits outside the limiter so preflight requests do not spend tokens.
	publicCORS := cors.New(cors.Options{
		AllowedOrigins: cfg.PublicCORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
		MaxAge:         600,
	})
	mux.Handle("/public/", publicCORS.Handler(middleware.RateLimit(
		middleware.NewClientLimiter(cfg.PublicRateLimit, cfg.PublicRateBurst), apiMetrics,
	)(public)))
	mux.Handle("/", open)

	otelOpts := []otelhttp.Option{
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health" && r.URL.Path != "/metrics"
		}),
	}
	if meterProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(meterProvider))
	}

	if tracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(tracerProvider))
	}

	inner := middleware.Logging(middleware.MaxBody(cfg.MaxRequestBodyBytes, apiMetrics)(mux))
	handler := otelhttp.NewHandler(inner, "forms-api", otelOpts...)
	handler = middleware.RequestID(handler)

	const (
		readTimeout  = 15 * time.Second
		writeTimeout = 15 * time.Second
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

// Run starts the HTTP server and River, then blocks until ctx is cancelled or a
// component fails. Call Shutdown afterwards.
func (a *App) Run(ctx context.Context) error {
	runErr := make(chan error, 1)

	riverCtx, cancelRiver := context.WithCancel(ctx)
	defer cancelRiver()

	if a.metrics != nil && a.metrics.Events != nil {
		go runRiverQueueDepthPoller(riverCtx, a.db, a.metrics.Events)
	}

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

// runRiverQueueDepthPoller periodically updates the River default-queue depth gauge.
func runRiverQueueDepthPoller(ctx context.Context, db *pgxpool.Pool, eventMetrics observability.EventMetrics) {
	ticker := time.NewTicker(riverQueueDepthInterval)
	defer ticker.Stop()

	update := func() {
		var count int

		err := db.QueryRow(ctx,
			`SELECT COUNT(*) FROM river_job WHERE queue = $1 AND state IN ($2, $3, $4)`,
			river.QueueDefault,
			rivertype.JobStateAvailable, rivertype.JobStateRetryable, rivertype.JobStateScheduled,
		).Scan(&count)
		if err != nil {
			slog.WarnContext(ctx, "river queue depth poll failed", "error", err)

			return
		}

		eventMetrics.SetRiverQueueDepth(count)
	}

	update()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}

// shutdownObservability shuts down tracer and meter providers. Logs secondary errors, returns the first.
func shutdownObservability(ctx context.Context, tracer *sdktrace.TracerProvider, meter *sdkmetric.MeterProvider) error {
	var first error

	if tracer != nil {
		if err := observability.ShutdownTracerProvider(ctx, tracer); err != nil {
			first = err
		}
	}

	if meter != nil {
		if err := observability.ShutdownMeterProvider(ctx, meter); err != nil {
			if first == nil {
				first = err
			} else {
				slog.Error("shutdown meter provider", "error", err)
			}
		}
	}

	return first
}

// Shutdown stops the server, saves live drafts, drains the message publisher and stops River.
// Drafts are saved before the publisher closes so their events are not lost.
func (a *App) Shutdown(ctx context.Context) (err error) {
	defer func() {
		obsErr := shutdownObservability(ctx, a.tracerProvider, a.meterProvider)
		if err == nil {
			err = obsErr
		} else if obsErr != nil {
			slog.Error("shutdown observability", "error", obsErr)
		}
	}()

	serverErr := a.server.Shutdown(ctx)
	if serverErr != nil && !errors.Is(serverErr, http.ErrServerClosed) {
		slog.Error("server shutdown", "error", serverErr)
	}

	a.sessions.Close()
	a.message.Shutdown()

	if err = a.river.Stop(ctx); err != nil {
		return fmt.Errorf("river stop: %w", err)
	}

	if serverErr != nil && !errors.Is(serverErr, http.ErrServerClosed) {
		return fmt.Errorf("server shutdown: %w", serverErr)
	}

	return nil
}
