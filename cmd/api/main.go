// Package main is the entry point for the weather archive API server.
//
// The API is a read-only, paginated query surface over the observation and
// yearly statistics tables. It never writes: ingestion and aggregation run
// as separate batch jobs (cmd/ingest, cmd/stats) against the same database.
//
// Startup wires configuration, the pgx connection pool, a circuit-breaker
// wrapped read path, the CloudWatch metrics publisher (optional), and the
// HTTP chassis. Graceful shutdown is handled via OS signal interception
// (SIGINT, SIGTERM).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wxarchive/internal/api/handlers"
	"wxarchive/internal/config"
	"wxarchive/internal/core"
	"wxarchive/internal/db"
	"wxarchive/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run owns the whole server lifecycle; main() stays a thin exit-code shim.
func run() error {
	// Load configuration. SSM resolution is a no-op when APP_ENV=local or no
	// *_SSM_PARAM variables are present.
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("weather archive API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	// Connect to PostgreSQL and verify reachability before serving traffic.
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	// All read traffic flows through the circuit breaker so an unhealthy
	// database degrades to fast 503s instead of piling up connection waits.
	reader := db.NewBreakerDB(pool, "api-read")
	observationRepo := db.NewObservationRepository(reader)
	statRepo := db.NewStatRepository(reader)

	// Build the server chassis.
	srv, err := core.NewServer(core.ServerOptions{
		CorsAllowedOrigins: cfg.Server.CorsAllowedOrigins,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// CloudWatch request metrics are optional; local runs leave them off.
	if cfg.Observability.EnableMetrics {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return fmt.Errorf("loading AWS SDK config: %w", err)
		}
		srv.Metrics = telemetry.NewPublisher(
			cloudwatch.NewFromConfig(awsCfg),
			cfg.Observability.MetricNamespace,
			logger,
		)
	}

	// GET /health reports database reachability. The probe pings the pool
	// directly: a tripped read breaker must not mask a recovered database.
	srv.HealthProbes = []core.HealthProbe{&dbProbe{pool: pool}}

	// Mount the two domain endpoints under /api.
	weatherHandler := handlers.NewWeatherHandler(observationRepo, srv.Validator, logger)
	statsHandler := handlers.NewStatsHandler(statRepo, srv.Validator, logger)
	srv.APIRouteRegistrars = append(srv.APIRouteRegistrars,
		func(r chi.Router) { weatherHandler.RegisterRoutes(r) },
		func(r chi.Router) { statsHandler.RegisterRoutes(r) },
	)

	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// runHTTPServer serves until a termination signal or a listener failure,
// then drains in-flight requests.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		// ListenAndServe only returns pre-shutdown here, so the error is
		// real (bind failure, listener teardown).
		return fmt.Errorf("server error: %w", err)
	}

	// In-flight requests get 10 seconds to drain. The pool closes afterwards
	// via the deferred Close in run().
	logger.Info("initiating graceful shutdown")
	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// dbProbe reports database reachability for GET /health.
type dbProbe struct {
	pool *pgxpool.Pool
}

func (p *dbProbe) Name() string { return "database" }

func (p *dbProbe) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
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
