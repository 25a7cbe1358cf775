// Package main is the entry point for the weather archive ingestion job.
//
// The job scans a directory of tab-separated station files and loads them
// into the weather table in batched, conflict-safe upserts. Repeat runs are
// no-ops unless forced: a completed run leaves a marker row, and a populated
// table without a marker also counts as done. After a successful load the
// job publishes a refresh message to the stats queue (when configured) so
// the yearly aggregates get recomputed.
//
// The job is a terminating process, not a daemon: it runs once and exits 0
// on success (including a guarded skip) or 1 on failure. It is meant to be
// invoked from cron, a container task, or by hand:
//
//	go run ./cmd/ingest
//	go run ./cmd/ingest -data-dir=/srv/wx_data -force
//	go run ./cmd/ingest -skip-schema
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
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"wxarchive/internal/config"
	"wxarchive/internal/db"
	"wxarchive/internal/ingest"
	"wxarchive/internal/queue"
	"wxarchive/internal/telemetry"
	"wxarchive/internal/types"
)

func main() {
	dataDir := flag.String("data-dir", "", "Directory of station files (overrides DATA_DIR)")
	force := flag.Bool("force", false, "Run even when a completed load is recorded (overrides FORCE_INGEST)")
	skipSchema := flag.Bool("skip-schema", false, "Skip CREATE TABLE IF NOT EXISTS on startup")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ingest [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Load station files into the weather table and trigger a stats refresh.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nConfiguration is read from the environment (and .env); flags win over env.\n")
	}

	flag.Parse()

	if err := run(*dataDir, *force, *skipSchema); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run executes one ingestion pass end to end: config, schema, guard-checked
// load, completion marker, refresh trigger, metrics.
func run(dataDirFlag string, forceFlag, skipSchema bool) error {
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	applyFlagOverrides(cfg, dataDirFlag, forceFlag)

	logger := newLogger(cfg.LogLevel)
	logger.Info("weather archive ingestion starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"data_dir", cfg.Ingest.DataDir,
		"commit_every", cfg.Ingest.CommitEvery,
		"workers", cfg.Ingest.Workers,
		"force", bool(cfg.Ingest.Force),
	)

	// A batch job interrupted mid-run must stop flushing and exit without
	// writing the completion marker; the next run picks up where the keyed
	// upserts left off.
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

	observationRepo := db.NewObservationRepository(pool)
	markerRepo := db.NewMarkerRepository(pool)

	runner := &ingest.Runner{
		Config: ingest.RunnerConfig{
			DataDir:     cfg.Ingest.DataDir,
			CommitEvery: cfg.Ingest.CommitEvery,
			Workers:     cfg.Ingest.Workers,
			Force:       bool(cfg.Ingest.Force),
		},
		Log: logger,
		Guard: &ingest.Guard{
			Markers:      markerRepo,
			Observations: observationRepo,
		},
		Flush: ingest.NewTxFlush(db.NewTxManager(pool)),
		Clock: types.RealClock{},
	}

	// The refresh trigger and metrics are optional: local runs typically
	// configure neither, and the runner treats both as best-effort.
	if cfg.AWS.StatsRefreshQueue != "" || cfg.Observability.EnableMetrics {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return fmt.Errorf("loading AWS SDK config: %w", err)
		}
		if cfg.AWS.StatsRefreshQueue != "" {
			runner.Trigger = queue.NewStatsRefreshTrigger(sqs.NewFromConfig(awsCfg), cfg.AWS, logger)
		}
		if cfg.Observability.EnableMetrics {
			runner.Metrics = telemetry.NewPublisher(
				cloudwatch.NewFromConfig(awsCfg),
				cfg.Observability.MetricNamespace,
				logger,
			)
		}
	}

	summary, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info("ingestion finished",
		"run_id", summary.RunID,
		"skipped", summary.Skipped,
		"files", len(summary.Files),
		"lines", summary.Lines,
		"accepted", summary.Accepted,
		"rejected", summary.Rejected,
		"batches", summary.Batches,
		"duration", summary.Duration().String(),
	)
	return nil
}

// applyFlagOverrides lets flags beat environment so operators can force a
// one-off reload without editing the deployed env. An empty flag leaves the
// configured value alone; -force only ever turns forcing on.
func applyFlagOverrides(cfg *config.Config, dataDir string, force bool) {
	if dataDir != "" {
		cfg.Ingest.DataDir = dataDir
	}
	if force {
		cfg.Ingest.Force = true
	}
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
