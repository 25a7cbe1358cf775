package main

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// ValidationResult holds the outcome of a validation check: a pass/fail
// signal plus a human-readable message for the bootstrap CLI.
type ValidationResult struct {
	Valid bool

	// Message says what was verified, or why the input was rejected.
	Message string
}

// DatabaseConnector is the connection probe behind ValidateDatabaseURL.
// The production implementation dials with pgx; tests inject a mock that
// scripts success or failure.
type DatabaseConnector interface {
	// Connect dials the DSN and reports whether a connection could be
	// established. Implementations must not leave the connection open.
	Connect(ctx context.Context, dsn string) error
}

// PgxConnector is the production DatabaseConnector. It opens a real TCP
// connection with pgx and closes it immediately: the point is to verify
// reachability and credentials, not to hold a connection.
type PgxConnector struct{}

// Connect dials the database and closes the connection.
func (c *PgxConnector) Connect(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	return conn.Close(ctx)
}

// Validator holds the dependencies used by input validation. The archive
// has exactly one externally-issued secret (the database URL), so the only
// dependency is the connection probe.
type Validator struct {
	dbConn DatabaseConnector
}

// NewValidator creates a Validator with the production pgx connector.
func NewValidator() *Validator {
	return &Validator{dbConn: &PgxConnector{}}
}

// NewValidatorWithConnector creates a Validator with an injected connector
// for testing.
func NewValidatorWithConnector(dbConn DatabaseConnector) *Validator {
	return &Validator{dbConn: dbConn}
}

// validateTimeout bounds the live connection probe, covering DNS, TLS, and
// auth round trips.
const validateTimeout = 15 * time.Second

// invalid builds a failed ValidationResult with a formatted message.
func invalid(format string, args ...any) ValidationResult {
	return ValidationResult{Valid: false, Message: fmt.Sprintf(format, args...)}
}

// ValidateDatabaseURL validates a PostgreSQL connection string in two steps:
//  1. Parse the URL and require a postgres:// or postgresql:// scheme with
//     a non-empty host.
//  2. Attempt an actual connection to verify credentials and network
//     reachability. The connection is closed immediately after.
func (v *Validator) ValidateDatabaseURL(ctx context.Context, rawURL string) ValidationResult {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return invalid("database URL must not be empty")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return invalid("invalid URL format: %v", err)
	}
	if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
		return invalid("expected postgres:// or postgresql:// scheme, got %q", parsed.Scheme)
	}
	if parsed.Hostname() == "" {
		return invalid("database URL has no host")
	}

	connCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	if err := v.dbConn.Connect(connCtx, rawURL); err != nil {
		return invalid("connection failed: %v", err)
	}

	return ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("database connection verified (host=%s)", parsed.Hostname()),
	}
}
