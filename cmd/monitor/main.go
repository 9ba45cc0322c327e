// Package main is the entry point for the DMCA Guard monitor worker.
//
// The monitor owns the background reconciliation work: the periodic abuse
// state sweep and the violation archive job. It runs alongside any number of
// API instances; Postgres advisory locks ensure each job executes on exactly
// one instance per tick.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"dmcaguard/internal/abuse"
	"dmcaguard/internal/config"
	"dmcaguard/internal/db"
	"dmcaguard/internal/queue"
	"dmcaguard/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig(secretProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("dmcaguard monitor starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"sweep_interval", cfg.Abuse.SweepInterval.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS configuration: %w", err)
	}
	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	publisher := queue.NewViolationPublisher(client, cfg.AWS.ViolationQueue, logger)

	userRepo := db.NewUserRepository(pool)
	abuseRepo := db.NewAbuseRepository(pool)

	abuseSvc := abuse.NewService(abuseRepo, userRepo, publisher, abuse.Thresholds{
		Warning:  cfg.Abuse.WarningThreshold,
		HighRisk: cfg.Abuse.HighRiskThreshold,
		Blocked:  cfg.Abuse.BlockedThreshold,
	}, logger)

	sweepJob := scheduler.NewAbuseSweepJob(
		abuseSvc,
		db.NewJobLock(pool, db.LockKeyAbuseSweep),
		logger,
	)
	archiveJob := scheduler.NewViolationArchiveJob(
		db.NewViolationArchiveRepository(pool),
		db.NewJobLock(pool, db.LockKeyViolationArchive),
		cfg.Archive.Dir,
		time.Duration(cfg.Archive.RetentionDays)*24*time.Hour,
		cfg.Archive.BatchSize,
		logger,
	)

	// Archival is daily work, independent of the sweep cadence.
	const archiveInterval = 24 * time.Hour

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sweepJob.RunPeriodic(ctx, cfg.Abuse.SweepInterval)
	}()
	go func() {
		defer wg.Done()
		archiveJob.RunPeriodic(ctx, archiveInterval)
	}()

	// One immediate pass at startup so a crashed instance's backlog is not
	// deferred a full interval.
	if _, err := sweepJob.Run(ctx); err != nil {
		logger.Error("initial abuse sweep failed", "error", err)
	}
	if _, err := archiveJob.Run(ctx); err != nil {
		logger.Error("initial violation archive failed", "error", err)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received, waiting for jobs to stop")
	wg.Wait()

	logger.Info("monitor stopped cleanly")
	return nil
}

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
