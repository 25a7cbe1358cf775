// Package db provides PostgreSQL-backed repositories for weather observations,
// yearly statistics, and ingestion bookkeeping. All repositories operate
// against the DBTX interface, which is satisfied by both *pgxpool.Pool (for
// normal queries) and pgx.Tx (for transactional execution), allowing the same
// repository code to run inside or outside an explicit transaction.
package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"wxarchive/internal/config"
	"wxarchive/internal/types"
)

// DBTX is the slice of pgx that both *pgxpool.Pool and pgx.Tx provide, so
// stores run the same queries inside and outside transactions.
// SendBatch is part of the contract because bulk upserts are split into
// chunked statements queued on a single pgx.Batch to stay under PostgreSQL's
// bind-parameter limit.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// NewPool creates a pgx connection pool from the database configuration and
// verifies connectivity with a bounded ping before returning it.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to parse database URL", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create database pool", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.AcquireTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, types.NewAppError(types.ErrCodeStorageUnavailable, "database not reachable", err)
	}

	return pool, nil
}

// wrapDBErr wraps err in an internal database AppError. Errors that already
// carry an application error code (for example the circuit breaker's
// storage_unavailable) pass through unchanged so the original code survives
// to the HTTP layer.
func wrapDBErr(err error, msg string) error {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return types.NewAppError(types.ErrCodeInternalDB, msg, err)
}
