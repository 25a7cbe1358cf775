package ingest

import (
	"context"
	"log/slog"
	"sync"

	"wxarchive/internal/db"
	"wxarchive/internal/types"
)

// DefaultCommitEvery is the flush threshold used when configuration does
// not supply one.
const DefaultCommitEvery = 20000

// FlushFunc persists one batch of observations atomically and returns the
// advisory rows-affected count.
type FlushFunc func(ctx context.Context, batch []types.Observation) (int64, error)

// NewTxFlush returns a FlushFunc that runs each batch in its own
// transaction. A failed flush aborts the run while every earlier flush
// stays committed; re-running after a failure is safe because the write is
// a keyed upsert.
func NewTxFlush(txm *db.TxManager) FlushFunc {
	return func(ctx context.Context, batch []types.Observation) (int64, error) {
		var affected int64
		err := txm.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
			n, err := db.NewObservationRepository(tx).UpsertBatch(ctx, batch)
			if err != nil {
				return err
			}
			affected = n
			return nil
		})
		if err != nil {
			return 0, err
		}
		return affected, nil
	}
}

// Writer accumulates converted observations and flushes them in batches of
// commitEvery rows, plus one final partial batch at end of input. Producers
// may call Add concurrently; the flush happens under the same lock, so
// batches never interleave.
type Writer struct {
	commitEvery int
	flush       FlushFunc
	log         *slog.Logger

	mu       sync.Mutex
	buf      []types.Observation
	written  int64
	affected int64
	batches  int
}

// NewWriter creates a Writer flushing through flush every commitEvery rows.
func NewWriter(commitEvery int, flush FlushFunc, log *slog.Logger) *Writer {
	if commitEvery <= 0 {
		commitEvery = DefaultCommitEvery
	}
	return &Writer{
		commitEvery: commitEvery,
		flush:       flush,
		log:         log,
		buf:         make([]types.Observation, 0, commitEvery),
	}
}

// Add buffers one observation, flushing when the buffer reaches the batch
// size.
func (w *Writer) Add(ctx context.Context, obs types.Observation) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, obs)
	if len(w.buf) >= w.commitEvery {
		return w.flushLocked(ctx)
	}
	return nil
}

// Flush writes any buffered rows. Call once after all input is consumed.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) == 0 {
		return nil
	}
	return w.flushLocked(ctx)
}

func (w *Writer) flushLocked(ctx context.Context) error {
	batch := w.buf
	affected, err := w.flush(ctx, batch)
	if err != nil {
		return err
	}
	w.written += int64(len(batch))
	w.affected += affected
	w.batches++
	w.buf = w.buf[:0]
	w.log.InfoContext(ctx, "Batch committed",
		"rows", len(batch),
		"total_rows", w.written,
		"affected", affected,
	)
	return nil
}

// Written returns the number of rows handed to successful flushes.
func (w *Writer) Written() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Batches returns how many flushes have committed.
func (w *Writer) Batches() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.batches
}

// Affected returns the cumulative rows-affected count reported by storage.
// It is advisory telemetry; correctness comes from the keyed upsert.
func (w *Writer) Affected() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.affected
}
