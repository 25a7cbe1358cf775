// Package config carries every tunable the archive binaries read at startup.
// A Config is assembled exactly once per process (job start or Lambda cold
// start) by LoadConfig and treated as read-only from then on; binaries hand
// each component only the slice of it that component needs.
//
// Where a value comes from is the loader's business (see loader.go): the
// process environment wins over a developer .env file, which wins over SSM
// Parameter Store. Anything required-but-absent or malformed aborts startup.
package config

import (
	"strings"
	"time"

	"wxarchive/internal/types"
)

// SecretString re-exports types.SecretString so config structs can declare
// redacted fields without their consumers importing internal/types.
type SecretString = types.SecretString

// Config is the root of the configuration tree.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"OTEL_SERVICE_NAME" default:"wxarchive"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server        ServerConfig
	Database      DatabaseConfig
	Ingest        IngestConfig
	AWS           AWSConfig
	Observability ObservabilityConfig

	// Build is stamped by ldflags, never by environment variables.
	Build BuildInfo
}

// ServerConfig holds HTTP server configuration for the read API.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Origins allowed to call the API from browsers. "*" allows all.
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// DatabaseConfig holds the DSN and pool tuning for the pgx connection pool.
type DatabaseConfig struct {
	// URL is the connection string. Secret: it arrives either directly or
	// through the DATABASE_URL_SSM_PARAM pointer.
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	// AcquireTimeout bounds how long a request waits for a free connection
	// before giving up; short so an exhausted pool fails loudly.
	AcquireTimeout time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	// HealthCheckPeriod is how often idle connections are probed, which is
	// what notices dead connections after a database failover.
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// IngestConfig holds the knobs for the batch ingestion job.
type IngestConfig struct {
	// DataDir is the directory scanned for station files.
	DataDir string `envconfig:"DATA_DIR" default:"wx_data"`

	// CommitEvery is the number of accepted rows accumulated before each
	// bulk write and commit. Larger values trade memory for fewer round
	// trips; a partial batch is always flushed at end of input.
	CommitEvery int `envconfig:"COMMIT_EVERY" default:"20000" validate:"min=1"`

	// Force re-runs ingestion even when a completed run is recorded.
	Force TruthyBool `envconfig:"FORCE_INGEST" default:"false"`

	// Workers bounds how many station files are ingested concurrently.
	Workers int `envconfig:"INGEST_WORKERS" default:"1" validate:"min=1"`
}

// AWSConfig names the AWS resources the binaries talk to.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// StatsRefreshQueue receives a refresh message after each successful
	// ingestion run. Empty disables the trigger.
	StatsRefreshQueue string `envconfig:"SQS_STATS_REFRESH"`

	// EndpointURL redirects all AWS calls, for LocalStack runs. Leave empty
	// against real AWS.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// ObservabilityConfig controls the CloudWatch metrics publisher.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"WxArchive"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
}

// TruthyBool decodes the loose boolean convention used by the ops scripts:
// "1", "true", "yes", and "y" (any case) are true, everything else is false.
// A plain bool would reject values like "yes" outright.
type TruthyBool bool

// Decode implements envconfig.Decoder.
func (b *TruthyBool) Decode(value string) error {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "y":
		*b = true
	default:
		*b = false
	}
	return nil
}
