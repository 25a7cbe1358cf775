package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sony/gobreaker/v2"

	"wxarchive/internal/types"
)

// BreakerDB wraps a DBTX with a circuit breaker so read traffic degrades fast
// when PostgreSQL is unhealthy instead of stacking up connection attempts.
// The API server wires its repositories through a BreakerDB; ingestion talks
// to the pool directly because a batch run should surface the real error and
// abort rather than trip a shared breaker.
//
// QueryRow and SendBatch cannot observe failures because pgx defers their
// errors to Scan and the returned BatchResults. They still short-circuit when
// the circuit is open, but trips are driven by Exec and Query errors.
type BreakerDB struct {
	inner   DBTX
	breaker *gobreaker.CircuitBreaker[any]
}

var _ DBTX = (*BreakerDB)(nil)

// NewBreakerDB creates a BreakerDB around inner with the given breaker name.
func NewBreakerDB(inner DBTX, name string) *BreakerDB {
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			// A missing row or a caller-cancelled context is not a sign of
			// an unhealthy database.
			return err == nil || errors.Is(err, pgx.ErrNoRows) || errors.Is(err, context.Canceled)
		},
	})
	return &BreakerDB{inner: inner, breaker: cb}
}

func (b *BreakerDB) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	res, err := b.breaker.Execute(func() (any, error) {
		return b.inner.Exec(ctx, sql, arguments...)
	})
	if err != nil {
		return pgconn.CommandTag{}, mapBreakerErr(err)
	}
	return res.(pgconn.CommandTag), nil
}

func (b *BreakerDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	res, err := b.breaker.Execute(func() (any, error) {
		rows, qErr := b.inner.Query(ctx, sql, args...)
		if qErr != nil {
			return nil, qErr
		}
		return rows, nil
	})
	if err != nil {
		return nil, mapBreakerErr(err)
	}
	return res.(pgx.Rows), nil
}

func (b *BreakerDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	res, err := b.breaker.Execute(func() (any, error) {
		return b.inner.QueryRow(ctx, sql, args...), nil
	})
	if err != nil {
		return errRow{err: mapBreakerErr(err)}
	}
	return res.(pgx.Row)
}

func (b *BreakerDB) SendBatch(ctx context.Context, batch *pgx.Batch) pgx.BatchResults {
	res, err := b.breaker.Execute(func() (any, error) {
		return b.inner.SendBatch(ctx, batch), nil
	})
	if err != nil {
		return errBatchResults{err: mapBreakerErr(err)}
	}
	return res.(pgx.BatchResults)
}

// mapBreakerErr converts breaker rejections into a storage_unavailable
// AppError so the HTTP layer answers 503. All other errors pass through for
// the repositories to wrap.
func mapBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(types.ErrCodeStorageUnavailable, "database temporarily unavailable", err)
	}
	return err
}

// errRow is a pgx.Row whose Scan returns a fixed error. Returned by QueryRow
// when the circuit is open.
type errRow struct {
	err error
}

func (r errRow) Scan(dest ...any) error { return r.err }

// errBatchResults is a pgx.BatchResults whose operations all return a fixed
// error. Returned by SendBatch when the circuit is open.
type errBatchResults struct {
	err error
}

func (b errBatchResults) Exec() (pgconn.CommandTag, error) { return pgconn.CommandTag{}, b.err }
func (b errBatchResults) Query() (pgx.Rows, error)         { return nil, b.err }
func (b errBatchResults) QueryRow() pgx.Row                { return errRow{err: b.err} }
func (b errBatchResults) Close() error                     { return b.err }
