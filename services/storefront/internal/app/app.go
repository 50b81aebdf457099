package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/httpclient"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/tracing"
	"github.com/utafrali/storefront/services/storefront/internal/commerce"
	"github.com/utafrali/storefront/services/storefront/internal/commerce/graphql"
	"github.com/utafrali/storefront/services/storefront/internal/commerce/mock"
	"github.com/utafrali/storefront/services/storefront/internal/config"
	"github.com/utafrali/storefront/services/storefront/internal/event"
	handler "github.com/utafrali/storefront/services/storefront/internal/handler/http"
	redisrepo "github.com/utafrali/storefront/services/storefront/internal/repository/redis"
	"github.com/utafrali/storefront/services/storefront/internal/service"
)

const serviceVersion = "0.1.0"

// App wires together all dependencies and runs the storefront service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	rdb            *redis.Client
	producer       *pkgkafka.Producer
	cartService    *service.CartService
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "storefront",
		ServiceVersion: serviceVersion,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize Redis client.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = tracerShutdown(context.Background())
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis",
		slog.String("addr", cfg.RedisAddr),
		slog.Int("db", cfg.RedisDB),
	)

	api, err := newCartAPI(cfg, logger)
	if err != nil {
		_ = rdb.Close()
		_ = tracerShutdown(context.Background())
		return nil, err
	}

	healthHandler := health.NewHandler(health.WithCacheTTL(cfg.HealthCacheTTL))
	healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	healthHandler.RegisterNonCritical("commerce_api", api.Ping)

	// Kafka is optional: cart events are published only when it is enabled.
	var (
		producer *pkgkafka.Producer
		events   service.EventPublisher
	)
	if cfg.KafkaEnabled {
		producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		events = event.NewProducer(producer, logger)
		healthHandler.RegisterNonCritical("kafka", producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Build the dependency graph.
	repo := redisrepo.NewCartIDRepository(rdb, cfg.SessionTTL)
	cartService := service.NewCartService(api, repo, events, logger, service.Options{
		SessionCacheSize: cfg.SessionCacheSize,
		SessionIdleTTL:   cfg.SessionIdleTTL,
		FetchTimeout:     cfg.APITimeout,
	})

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSAllowedOrigins
	cors.AllowCredentials = true
	cors.Environment = cfg.Environment

	router := handler.NewRouter(cartService, healthHandler, logger, handler.RouterConfig{
		RequestTimeout: cfg.RequestTimeout,
		PprofCIDRs:     cfg.PprofAllowedCIDRs,
		CORS:           cors,
		Session: middleware.SessionConfig{
			CookieName: cfg.SessionCookie,
			MaxAge:     cfg.SessionTTL,
			Secure:     cfg.SessionSecure,
		},
		MutationRateLimit: middleware.RateLimitConfig{
			RPS:               cfg.MutationRPS,
			Burst:             cfg.MutationBurst,
			ClientRPS:         cfg.MutationClientRPS,
			ClientBurst:       cfg.MutationClientBurst,
			TrustForwardedFor: cfg.TrustForwardedFor,
			MaxClients:        cfg.SessionCacheSize,
			IdleTTL:           cfg.SessionIdleTTL,
		},
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		rdb:            rdb,
		producer:       producer,
		cartService:    cartService,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// newCartAPI builds the commerce backend selected by cfg.APIMode.
func newCartAPI(cfg *config.Config, logger *slog.Logger) (commerce.CartAPI, error) {
	switch cfg.APIMode {
	case config.APIModeMock:
		logger.Warn("using in-memory commerce API", slog.Duration("latency", cfg.MockAPILatency))
		return mock.New(mock.DefaultCatalog(), mock.WithLatency(cfg.MockAPILatency)), nil

	case config.APIModeGraphQL:
		// Only cart reads are retried; the GraphQL client marks them.
		base := httpclient.New(httpclient.Config{
			Timeout:         cfg.APITimeout,
			MaxRetries:      2,
			RetryWaitMin:    100 * time.Millisecond,
			RetryWaitMax:    time.Second,
			MaxConnsPerHost: 100,
		})
		breaker := httpclient.DefaultCircuitBreakerConfig("storefront-api")
		breaker.Timeout = cfg.BreakerOpenTimeout
		breaker.FailureRatio = cfg.BreakerFailureRatio
		breaker.MinRequests = cfg.BreakerMinRequests
		cbClient := httpclient.NewCircuitBreakerClient(base, breaker, logger)

		apiCfg := graphql.Config{
			BaseURL:     cfg.StoreURL(),
			Version:     cfg.APIVersion,
			AccessToken: cfg.APIToken,
		}
		logger.Info("using Storefront API", slog.String("endpoint", apiCfg.Endpoint()))
		return graphql.New(cbClient, apiCfg, logger), nil

	default:
		return nil, fmt.Errorf("unknown commerce API mode %q", cfg.APIMode)
	}
}

// Handler returns the HTTP handler serving the storefront routes.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in order:
// 1. HTTP server (drain in-flight requests)
// 2. Cart mutations still talking to the commerce API
// 3. Tracer (flush pending spans)
// 4. Kafka producer
// 5. Redis client
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// Async submissions outlive their requests; let them settle so the
	// session's cart id is persisted.
	drained := make(chan struct{})
	go func() {
		a.cartService.Drain()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		a.logger.Warn("cart mutations still in flight at shutdown")
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.rdb.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
