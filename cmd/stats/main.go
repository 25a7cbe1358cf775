// Package main is the entry point for the yearly statistics recompute job.
//
// The job runs one aggregation sweep: a grouped query over the weather
// table, then a conflict-safe upsert into weather_stats. The sweep is a
// full recompute from scratch, so it can be run any number of times; stale
// rows for vanished station-years are overwritten but never deleted.
//
// In deployed environments the same sweep runs inside the stats-refresh
// Lambda (cmd/stats-worker) after each ingestion. This CLI covers local
// development and manual recovery when a queue message was lost:
//
//	go run ./cmd/stats
//	go run ./cmd/stats -skip-schema
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"wxarchive/internal/config"
	"wxarchive/internal/db"
	"wxarchive/internal/stats"
	"wxarchive/internal/telemetry"
	"wxarchive/internal/types"
)

func main() {
	skipSchema := flag.Bool("skip-schema", false, "Skip CREATE TABLE IF NOT EXISTS on startup")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: stats [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Recompute all yearly statistics from the weather table.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if err := run(*skipSchema); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run executes one recomputation sweep end to end.
func run(skipSchema bool) error {
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("yearly statistics recompute starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	if !skipSchema {
		if err := db.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("ensuring schema: %w", err)
		}
	}

	engine := &stats.Engine{
		Observations: db.NewObservationRepository(pool),
		Stats:        db.NewStatRepository(pool),
		Log:          logger,
		Clock:        types.RealClock{},
	}

	if cfg.Observability.EnableMetrics {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return fmt.Errorf("loading AWS SDK config: %w", err)
		}
		engine.Metrics = telemetry.NewPublisher(
			cloudwatch.NewFromConfig(awsCfg),
			cfg.Observability.MetricNamespace,
			logger,
		)
	}

	summary, err := engine.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info("recompute finished",
		"run_id", summary.RunID,
		"rows", summary.Rows,
		"duration", summary.Duration().String(),
	)
	return nil
}

// newLogger creates a structured slog.Logger for the given level name.
// Unrecognized names fall back to info.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
