package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// txBeginner is the subset of *pgxpool.Pool needed to start transactions.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TxManager runs callbacks inside a database transaction. Repositories
// constructed over the callback's DBTX participate in the same transaction,
// which commits only if the callback returns nil.
//
// The batch writer relies on this for its flush cycle: each flush runs in its
// own transaction, so a failure mid-run never rolls back batches that were
// already committed.
type TxManager struct {
	pool txBeginner
}

// NewTxManager creates a TxManager over the given pool.
func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool}
}

// RunInTx begins a transaction, invokes fn with a transaction-scoped DBTX,
// and commits if fn returns nil. Any error from fn rolls the transaction back
// and is returned unchanged.
func (m *TxManager) RunInTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return wrapDBErr(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapDBErr(err, "failed to commit transaction")
	}
	return nil
}
