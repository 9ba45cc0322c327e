// Package main is the entry point for the DMCA Guard API server.
//
// It loads configuration (resolving secrets from SSM outside local mode),
// connects Postgres, Redis, and SQS, assembles the guard boundary, and serves
// the HTTP API with graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"dmcaguard/internal/abuse"
	"dmcaguard/internal/api/handlers"
	"dmcaguard/internal/billing"
	"dmcaguard/internal/config"
	"dmcaguard/internal/core"
	"dmcaguard/internal/db"
	"dmcaguard/internal/guard"
	"dmcaguard/internal/policy"
	"dmcaguard/internal/queue"
	"dmcaguard/internal/ratelimit"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig(secretProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("dmcaguard API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Postgres.
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}

	userRepo := db.NewUserRepository(pool)
	profileRepo := db.NewBrandProfileRepository(pool)
	sessionRepo := db.NewMonitoringSessionRepository(pool)
	takedownRepo := db.NewTakedownRepository(pool)
	abuseRepo := db.NewAbuseRepository(pool)
	usageRepo := db.NewUsageRepository(pool)

	// Rate-limit counter store: Redis when configured, in-process otherwise.
	store, redisClient, err := newRateLimitStore(cfg, logger)
	if err != nil {
		pool.Close()
		return fmt.Errorf("connecting counter store: %w", err)
	}
	if mem, ok := store.(*ratelimit.MemoryStore); ok {
		mem.StartSweeper(ctx, cfg.RateLimit.SweepInterval)
	}

	// SQS violation event sink.
	publisher, err := newViolationPublisher(ctx, cfg, logger)
	if err != nil {
		pool.Close()
		return fmt.Errorf("creating violation publisher: %w", err)
	}

	// Abuse state machine.
	abuseSvc := abuse.NewService(abuseRepo, userRepo, publisher, abuse.Thresholds{
		Warning:  cfg.Abuse.WarningThreshold,
		HighRisk: cfg.Abuse.HighRiskThreshold,
		Blocked:  cfg.Abuse.BlockedThreshold,
	}, logger)

	// Plans, usage, and the guard boundary.
	planRegistry := billing.NewStaticPlanRegistry()
	usageReader := billing.NewUsageReader(usageRepo)
	limiter := ratelimit.NewLimiter(ratelimit.DefaultRules(), store)
	authorizer := policy.NewAuthorizer(planRegistry)

	var metrics *core.PrometheusMetrics
	if cfg.Metrics.Enabled {
		metrics = core.NewPrometheusMetrics(cfg.Metrics.Namespace)
	}

	g := guard.New(abuseSvc, limiter, authorizer, usageReader, guardMetrics(metrics), guard.Config{
		FailOpen:                   cfg.Abuse.FailOpen,
		RateLimitViolationSeverity: cfg.Abuse.RateLimitViolationSeverity,
		TransientRetryAfterSeconds: guard.DefaultConfig().TransientRetryAfterSeconds,
	}, logger)

	// HTTP server chassis.
	srv, err := core.NewServer(cfg, g, logger)
	if err != nil {
		pool.Close()
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Authenticator = core.NewAPIKeyAuthenticator(userRepo)
	if metrics != nil {
		srv.Metrics = metrics
		srv.MetricsHandler = metrics.Handler()
	}
	srv.HealthProbes = healthProbes(pool, redisClient)

	// Close order: stop accepting work first, storage last.
	if redisClient != nil {
		srv.RegisterCloser("redis", func() { _ = redisClient.Close() })
	}
	srv.RegisterCloser("database", pool.Close)

	// Stripe billing.
	priceTable, err := cfg.Billing.ParsePriceTable()
	if err != nil {
		return fmt.Errorf("parsing stripe price table: %w", err)
	}
	gateway := billing.NewStripeGateway(cfg.Billing.StripeSecretKey.Unmask(), userRepo, priceTable, logger)
	verifier := billing.NewWebhookVerifier(cfg.Billing.StripeWebhookSecret.Unmask())

	// Handlers.
	profileHandler := handlers.NewBrandProfileHandler(profileRepo, srv.Validator, logger)
	sessionHandler := handlers.NewMonitoringSessionHandler(sessionRepo, profileRepo, planRegistry, srv.Validator, logger)
	takedownHandler := handlers.NewTakedownHandler(takedownRepo, profileRepo, srv.Validator, logger)
	billingHandler := handlers.NewBillingHandler(gateway, planRegistry, usageReader, cfg.Server.DashboardURL, srv.Validator, logger)
	adminHandler := handlers.NewAdminHandler(abuseSvc, abuseRepo, srv.RequireAdmin, srv.Validator, logger)
	webhookHandler := handlers.NewStripeWebhookHandler(verifier, userRepo, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		func(r chi.Router) { profileHandler.RegisterRoutes(r) },
		func(r chi.Router) { sessionHandler.RegisterRoutes(r) },
		func(r chi.Router) { takedownHandler.RegisterRoutes(r) },
		func(r chi.Router) { billingHandler.RegisterRoutes(r) },
		func(r chi.Router) { adminHandler.RegisterRoutes(r) },
		func(r chi.Router) { webhookHandler.RegisterRoutes(r) },
	)

	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// secretProvider returns the SSM provider outside local mode. In local mode
// the loader reads plain environment variables and never calls the provider.
func secretProvider() config.SecretProvider {
	if os.Getenv("APP_ENV") == "local" {
		return nil
	}
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}
	return config.NewSSMProvider(region)
}

// newRateLimitStore picks Redis when a URL is configured. The in-process
// fallback is only correct for single-instance deployments.
func newRateLimitStore(cfg *config.Config, logger *slog.Logger) (ratelimit.Store, *redis.Client, error) {
	if cfg.Redis.URL.Unmask() == "" {
		logger.Warn("REDIS_URL not set, using in-process rate-limit counters")
		return ratelimit.NewMemoryStore(), nil, nil
	}

	opts, err := redis.ParseURL(cfg.Redis.URL.Unmask())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	opts.DialTimeout = cfg.Redis.DialTimeout

	client := redis.NewClient(opts)
	return ratelimit.NewRedisStore(client), client, nil
}

// newViolationPublisher builds the SQS client and the fire-and-forget
// violation event publisher.
func newViolationPublisher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*queue.ViolationPublisher, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}

	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	return queue.NewViolationPublisher(client, cfg.AWS.ViolationQueue, logger), nil
}

// guardMetrics adapts the optional Prometheus collector to the guard's
// recorder interface without passing a typed nil.
func guardMetrics(m *core.PrometheusMetrics) guard.MetricsRecorder {
	if m == nil {
		return nil
	}
	return m
}

// healthProbes wires the dependency checks exposed on /health.
func healthProbes(pool *pgxpool.Pool, redisClient *redis.Client) []core.HealthProbe {
	probes := []core.HealthProbe{
		core.NewProbe("database", func(ctx context.Context) error {
			return pool.Ping(ctx)
		}),
	}
	if redisClient != nil {
		probes = append(probes, core.NewProbe("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}))
	}
	return probes
}

// runHTTPServer starts the server and blocks until a shutdown signal or a
// listener error.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a JSON slog.Logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
