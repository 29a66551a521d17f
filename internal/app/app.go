package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/skyfare/FlightBookingGo/internal/config"
	"github.com/skyfare/FlightBookingGo/internal/event"
	handler "github.com/skyfare/FlightBookingGo/internal/handler/http"
	"github.com/skyfare/FlightBookingGo/internal/inventory"
	"github.com/skyfare/FlightBookingGo/internal/repository/postgres"
	"github.com/skyfare/FlightBookingGo/internal/saga"
	"github.com/skyfare/FlightBookingGo/internal/statuscache"
	"github.com/skyfare/FlightBookingGo/internal/stepclient"
	"github.com/skyfare/FlightBookingGo/migrations"
	"github.com/skyfare/FlightBookingGo/pkg/database"
	"github.com/skyfare/FlightBookingGo/pkg/health"
	"github.com/skyfare/FlightBookingGo/pkg/httpclient"
	pkgkafka "github.com/skyfare/FlightBookingGo/pkg/kafka"
	"github.com/skyfare/FlightBookingGo/pkg/tracing"
)

// App wires together all dependencies and runs the booking saga service.
type App struct {
	cfg              *config.Config
	logger           *slog.Logger
	pool             *pgxpool.Pool
	redisClient      *redis.Client
	producer         *pkgkafka.Producer
	httpServer       *http.Server
	inventoryService *inventory.Service
	tracerShutdown   func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     cfg.TraceSampleRate,
		Enabled:        cfg.TracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize PostgreSQL connection pool.
	pool, err := database.NewPostgresPool(ctx, cfg.PostgresConfig())
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	database.RegisterPoolMetrics(pool, cfg.ServiceName)

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Redis backs the saga status read cache. The service works without it.
	redisClient, err := database.NewRedisClient(ctx, cfg.RedisConfig())
	if err != nil {
		logger.Warn("redis unavailable, saga status cache disabled",
			slog.String("error", err.Error()),
		)
		redisClient = nil
	}

	// Initialize Kafka producer with connection validation and retry.
	kafkaCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
	producer := pkgkafka.NewProducer(kafkaCfg, logger)
	if err := pingKafkaWithRetry(ctx, producer, logger); err != nil {
		logger.Warn("kafka producer ping failed after retries, continuing in degraded mode",
			slog.String("error", err.Error()),
		)
	} else {
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Build the dependency graph.
	sagaRepo := postgres.NewSagaRepository(pool)
	logRepo := postgres.NewExecutionLogRepository(pool)
	reservationRepo := postgres.NewReservationRepository(pool)
	eventProducer := event.NewProducer(producer, logger)

	var statusCache *statuscache.Cache
	if redisClient != nil {
		statusCache = statuscache.New(redisClient, cfg.StatusCacheTTL)
	}

	// Step calls go through a shared circuit breaker. The per-step timeout is
	// applied by the step client via request context, so the underlying client
	// timeout only caps pathological cases.
	httpClient := httpclient.New(httpclient.Config{
		Timeout:         cfg.StepTimeout + 5*time.Second,
		MaxRetries:      0,
		MaxConnsPerHost: 100,
	})
	breakerClient := httpclient.NewCircuitBreakerClient(httpClient, httpclient.CircuitBreakerConfig{
		Name:         "saga-steps",
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      cfg.BreakerOpenTimeout,
		FailureRatio: cfg.BreakerFailureRatio,
		MinRequests:  cfg.BreakerMinRequests,
	}, logger)

	stepCaller := stepclient.New(breakerClient, cfg.ParticipantURL, cfg.TimeoutFor, logger)

	inventoryService := inventory.NewService(reservationRepo, pool, eventProducer, logger, cfg.SeatHoldTTL)
	orchestrator := saga.NewOrchestrator(sagaRepo, logRepo, stepCaller, eventProducer, logger, cfg.EnableFailureInjection)
	statusService := saga.NewStatusService(sagaRepo, logRepo, statusCache, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})
	if redisClient != nil {
		healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	// HTTP router.
	router := handler.NewRouter(
		orchestrator,
		statusService,
		inventoryService,
		healthHandler,
		cfg.CORSAllowedOrigins,
		cfg.Environment,
		logger,
	)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * cfg.StepTimeout,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:              cfg,
		logger:           logger,
		pool:             pool,
		redisClient:      redisClient,
		producer:         producer,
		httpServer:       httpServer,
		inventoryService: inventoryService,
		tracerShutdown:   tracerShutdown,
	}, nil
}

// Run starts the HTTP server and background jobs, then blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	// Start HTTP server.
	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// Start the background reservation expiry sweeper.
	go a.runReservationSweeper(ctx)

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// runReservationSweeper periodically expires overdue seat holds.
func (a *App) runReservationSweeper(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.ReservationSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := a.inventoryService.ExpireOverdue(ctx)
			if err != nil {
				a.logger.Error("reservation sweep error", slog.String("error", err.Error()))
			} else if expired > 0 {
				a.logger.Info("overdue reservations expired", slog.Int("expired", expired))
			}
		}
	}
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests, including running sagas)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer
// 4. Redis client
// 5. PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests. A saga in flight runs its compensation
	// pass inside the request, so the drain budget covers a full pass.
	httpCtx, httpCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 3. Close Kafka producer.
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 4. Close Redis client.
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 5. Close PostgreSQL pool.
	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// pingKafkaWithRetry attempts to ping the Kafka producer with exponential
// backoff (3 attempts, 1s/2s/4s with ±25% jitter).
func pingKafkaWithRetry(ctx context.Context, producer *pkgkafka.Producer, logger *slog.Logger) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if err := producer.Ping(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt < 2 {
			base := time.Duration(1<<uint(attempt)) * time.Second
			jitter := time.Duration(float64(base) * 0.25 * (2*rand.Float64() - 1)) // #nosec G404 -- non-cryptographic jitter for retry backoff
			wait := base + jitter
			logger.Warn("kafka producer ping failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", 3),
				slog.Duration("backoff", wait),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("kafka ping: context canceled during retry: %w", ctx.Err())
			case <-time.After(wait):
			}
		}
	}
	return fmt.Errorf("kafka producer ping failed after 3 attempts: %w", lastErr)
}
