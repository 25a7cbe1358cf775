// Package main is the entry point for the stats refresh Lambda function.
//
// The worker is triggered by SQS messages published after each successful
// ingestion run. Every invocation executes one full recomputation sweep of
// the yearly statistics, regardless of how many messages the event batch
// carries: the sweep rebuilds everything from the weather table, so
// collapsing triggers loses nothing and duplicate deliveries are harmless.
//
// The handler also accepts a bare refresh message JSON object (not wrapped
// in an SQS event) so operators can invoke the function directly for manual
// recovery runs.
//
// This file handles dependency wiring (cold start) and delegates the sweep
// to internal/stats.
package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/jackc/pgx/v5/pgxpool"

	"wxarchive/internal/config"
	"wxarchive/internal/db"
	"wxarchive/internal/stats"
	"wxarchive/internal/telemetry"
	"wxarchive/internal/types"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("stats worker initializing (cold start)")

	// Pull SSM-held secrets into the environment before the config read.
	// Deployed environments keep DATABASE_URL in Parameter Store behind a
	// _SSM_PARAM suffix variable.
	if err := config.ResolveSecrets(config.NewSSMProvider(os.Getenv("AWS_REGION"))); err != nil {
		logger.Error("failed to resolve SSM secrets", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		logger.Error("DATABASE_URL environment variable is required")
		os.Exit(1)
	}

	// The pool outlives main(): Lambda freezes the process between
	// invocations and reuses the warm container, so connections are kept.
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	engine := &stats.Engine{
		Observations: db.NewObservationRepository(pool),
		Stats:        db.NewStatRepository(pool),
		Log:          logger,
		Clock:        types.RealClock{},
	}

	var enableMetrics config.TruthyBool
	_ = enableMetrics.Decode(os.Getenv("ENABLE_METRICS"))
	if enableMetrics {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			logger.Error("failed to load AWS SDK config", "error", err)
			os.Exit(1)
		}
		namespace := os.Getenv("METRIC_NAMESPACE")
		if namespace == "" {
			namespace = "WxArchive"
		}
		engine.Metrics = telemetry.NewPublisher(cloudwatch.NewFromConfig(awsCfg), namespace, logger)
	}

	worker := &stats.Worker{
		Engine: engine,
		Log:    logger,
	}

	logger.Info("stats worker initialized")

	// Local mode: read the event JSON from stdin instead of starting the
	// Lambda runtime. This enables local testing without the AWS Lambda RIE:
	//
	//	echo '{"run_id":"manual","reason":"recovery"}' | go run ./cmd/stats-worker
	if os.Getenv("APP_ENV") == "local" {
		logger.Info("APP_ENV=local: reading event from stdin")
		payload, err := io.ReadAll(os.Stdin)
		if err != nil {
			logger.Error("failed to read stdin", "error", err)
			os.Exit(1)
		}
		if len(payload) == 0 {
			logger.Error("no input received on stdin")
			os.Exit(1)
		}
		if err := worker.Handler(ctx, json.RawMessage(payload)); err != nil {
			logger.Error("handler execution failed", "error", err)
			os.Exit(1)
		}
		logger.Info("handler execution completed successfully")
		return
	}

	lambda.Start(worker.Handler)
}
