package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"wxarchive/internal/types"
)

// tripBreaker drives the wrapped DBTX through enough consecutive failures to
// open the circuit (ReadyToTrip fires above five).
func tripBreaker(t *testing.T, bdb *BreakerDB, inner *mockDBTX) {
	t.Helper()
	inner.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused")).Times(6)
	for i := 0; i < 6; i++ {
		_, err := bdb.Exec(context.Background(), "SELECT 1")
		require.Error(t, err)
	}
}

func TestBreakerDB_Exec_PassThrough(t *testing.T) {
	inner := new(mockDBTX)
	bdb := NewBreakerDB(inner, "test-db")

	inner.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	tag, err := bdb.Exec(context.Background(), "INSERT INTO weather VALUES ($1)", "x")
	require.NoError(t, err)
	assert.Equal(t, int64(1), tag.RowsAffected())
	inner.AssertExpectations(t)
}

func TestBreakerDB_Exec_InnerErrorUnchanged(t *testing.T) {
	inner := new(mockDBTX)
	bdb := NewBreakerDB(inner, "test-db")

	inner.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	_, err := bdb.Exec(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.Equal(t, "connection refused", err.Error(), "non-breaker errors pass through for repositories to wrap")

	var appErr *types.AppError
	assert.False(t, errors.As(err, &appErr))
}

func TestBreakerDB_Query_PassThrough(t *testing.T) {
	inner := new(mockDBTX)
	bdb := NewBreakerDB(inner, "test-db")

	rows := &obsMockRows{idx: -1}
	inner.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	got, err := bdb.Query(context.Background(), "SELECT 1")
	require.NoError(t, err)
	assert.Same(t, rows, got)
}

func TestBreakerDB_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := new(mockDBTX)
	bdb := NewBreakerDB(inner, "test-db")

	tripBreaker(t, bdb, inner)

	// The circuit is now open: the next call must fail fast without touching
	// the database.
	_, err := bdb.Exec(context.Background(), "SELECT 1")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeStorageUnavailable, appErr.Code)
	inner.AssertNumberOfCalls(t, "Exec", 6)
}

func TestBreakerDB_NoRowsNotCountedAsFailure(t *testing.T) {
	inner := new(mockDBTX)
	bdb := NewBreakerDB(inner, "test-db")

	inner.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, pgx.ErrNoRows)

	// Far more misses than the trip threshold; an empty result is not an
	// unhealthy database.
	for i := 0; i < 10; i++ {
		_, err := bdb.Exec(context.Background(), "SELECT 1")
		require.Error(t, err)
		assert.True(t, errors.Is(err, pgx.ErrNoRows))
	}
	inner.AssertNumberOfCalls(t, "Exec", 10)
}

func TestBreakerDB_QueryRow_ClosedPassesThrough(t *testing.T) {
	inner := new(mockDBTX)
	bdb := NewBreakerDB(inner, "test-db")

	row := &mockRow{}
	inner.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(row)

	got := bdb.QueryRow(context.Background(), "SELECT 1")
	assert.Same(t, row, got)
}

func TestBreakerDB_QueryRow_OpenCircuitReturnsScanError(t *testing.T) {
	inner := new(mockDBTX)
	bdb := NewBreakerDB(inner, "test-db")

	tripBreaker(t, bdb, inner)

	row := bdb.QueryRow(context.Background(), "SELECT 1")
	var n int64
	err := row.Scan(&n)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeStorageUnavailable, appErr.Code)
	inner.AssertNotCalled(t, "QueryRow", mock.Anything, mock.Anything, mock.Anything)
}

func TestBreakerDB_SendBatch_OpenCircuit(t *testing.T) {
	inner := new(mockDBTX)
	bdb := NewBreakerDB(inner, "test-db")

	tripBreaker(t, bdb, inner)

	br := bdb.SendBatch(context.Background(), &pgx.Batch{})
	_, err := br.Exec()
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeStorageUnavailable, appErr.Code)
	assert.Error(t, br.Close())
	inner.AssertNotCalled(t, "SendBatch", mock.Anything, mock.Anything)
}

func TestBreakerDB_SendBatch_ClosedPassesThrough(t *testing.T) {
	inner := new(mockDBTX)
	bdb := NewBreakerDB(inner, "test-db")

	results := &mockBatchResults{tags: []pgconn.CommandTag{pgconn.NewCommandTag("INSERT 0 5")}}
	inner.On("SendBatch", mock.Anything, mock.AnythingOfType("*pgx.Batch")).Return(results)

	br := bdb.SendBatch(context.Background(), &pgx.Batch{})
	tag, err := br.Exec()
	require.NoError(t, err)
	assert.Equal(t, int64(5), tag.RowsAffected())
}
