// Package ingest implements the batch pipeline that loads tab-separated
// station files into the weather table: file discovery, line parsing, unit
// conversion, batched conflict-safe upserts, and the run-once guard that
// keeps repeated job starts from reloading an already ingested dataset.
package ingest

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"wxarchive/internal/types"
)

// scanBufSize bounds a single station file line. Real lines are tens of
// bytes; one megabyte leaves room for garbage without unbounded growth.
const scanBufSize = 1024 * 1024

// RefreshTrigger announces a completed load so stats recomputation can
// follow. Publish failures are non-fatal; the runner logs and continues.
type RefreshTrigger interface {
	Publish(ctx context.Context, msg types.StatsRefreshMessage) error
}

// MetricPublisher emits job metrics after a run. Best-effort: the runner
// logs failures and continues.
type MetricPublisher interface {
	PublishIngest(ctx context.Context, summary types.IngestSummary) error

	// PublishQueueError counts a failed stats refresh publish so a missing
	// downstream recompute shows up on dashboards even though the run itself
	// succeeded.
	PublishQueueError(ctx context.Context) error
}

// RunnerConfig holds the knobs for one ingestion run.
type RunnerConfig struct {
	DataDir     string
	CommitEvery int

	// Workers bounds how many station files are read concurrently. Line
	// order inside a file is always preserved; cross-file interleaving does
	// not change the final state because writes are keyed upserts.
	Workers int

	// Force runs even when a completed load is recorded.
	Force bool
}

// Runner orchestrates a full ingestion pass: guard check, per-file parse
// and convert, batched writes, completion marker, then the optional refresh
// trigger and metrics.
type Runner struct {
	Config  RunnerConfig
	Log     *slog.Logger
	Guard   *Guard
	Flush   FlushFunc
	Clock   types.Clock
	Trigger RefreshTrigger  // optional
	Metrics MetricPublisher // optional
}

// Run executes one ingestion pass and returns its summary. A storage
// failure aborts the run; batches committed before the failure stay
// durable and the completion marker is not written.
func (r *Runner) Run(ctx context.Context) (*types.IngestSummary, error) {
	summary := &types.IngestSummary{
		RunID:     uuid.New().String(),
		StartedAt: r.Clock.Now(),
	}
	log := r.Log.With("run_id", summary.RunID)

	skip, err := r.Guard.ShouldSkip(ctx, r.Config.Force)
	if err != nil {
		return nil, fmt.Errorf("ingest: failed to check ingestion state: %w", err)
	}
	if skip {
		log.InfoContext(ctx, "Ingestion already completed, skipping",
			"force", r.Config.Force,
		)
		summary.Skipped = true
		summary.FinishedAt = r.Clock.Now()
		r.notify(ctx, log, *summary)
		return summary, nil
	}

	files, err := DiscoverStationFiles(r.Config.DataDir)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}

	commitEvery := r.Config.CommitEvery
	if commitEvery <= 0 {
		commitEvery = DefaultCommitEvery
	}
	workers := r.Config.Workers
	if workers <= 0 {
		workers = 1
	}

	log.InfoContext(ctx, "Ingestion starting",
		"data_dir", r.Config.DataDir,
		"files", len(files),
		"commit_every", commitEvery,
		"workers", workers,
		"force", r.Config.Force,
	)

	writer := NewWriter(commitEvery, r.Flush, log)

	// Each goroutine owns one slot, keeping the summary in file order no
	// matter which file finishes first.
	results := make([]types.IngestFileResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, sf := range files {
		i, sf := i, sf
		g.Go(func() error {
			res, err := r.ingestFile(gctx, sf, writer, log)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	if err := writer.Flush(ctx); err != nil {
		return nil, fmt.Errorf("ingest: final batch failed: %w", err)
	}

	for _, res := range results {
		summary.Files = append(summary.Files, res)
		summary.Lines += res.Lines
		summary.Accepted += res.Accepted
		summary.Rejected += res.Rejected
	}

	if err := r.Guard.MarkComplete(ctx); err != nil {
		return nil, fmt.Errorf("ingest: failed to record completion marker: %w", err)
	}

	summary.Batches = writer.Batches()
	summary.FinishedAt = r.Clock.Now()
	log.InfoContext(ctx, "Ingestion finished",
		"files", len(summary.Files),
		"lines", summary.Lines,
		"rows_written", summary.Accepted,
		"rejected", summary.Rejected,
		"batches", writer.Batches(),
		"affected", writer.Affected(),
		"duration", summary.Duration().String(),
	)

	r.notify(ctx, log, *summary)
	return summary, nil
}

// ingestFile parses one station file line by line and feeds accepted rows
// into the shared writer. Malformed lines are counted and the file
// continues; read errors abort the run.
func (r *Runner) ingestFile(ctx context.Context, sf StationFile, w *Writer, log *slog.Logger) (types.IngestFileResult, error) {
	res := types.IngestFileResult{Source: sf.Path, Station: sf.StationID}

	src, err := OpenStationFile(sf)
	if err != nil {
		return res, err
	}
	defer src.Close()

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), scanBufSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Lines++
		rec, err := ParseLine(sf.StationID, scanner.Text())
		if err != nil {
			res.Rejected++
			log.WarnContext(ctx, "Rejected malformed line",
				"station", sf.StationID,
				"line", res.Lines,
				"error", err,
			)
			continue
		}
		if err := w.Add(ctx, rec.Observation()); err != nil {
			return res, err
		}
		res.Accepted++
	}
	if err := scanner.Err(); err != nil {
		return res, types.NewAppError(types.ErrCodeIngestSourceRead,
			fmt.Sprintf("failed reading station file %s", sf.Path), err)
	}
	res.Checksum = src.Checksum()

	log.InfoContext(ctx, "Station file ingested",
		"station", sf.StationID,
		"lines", res.Lines,
		"accepted", res.Accepted,
		"rejected", res.Rejected,
		"checksum", res.Checksum,
	)
	return res, nil
}

// notify fires the optional post-run side channels. Neither failure mode
// affects the run outcome: stats recomputation is a full sweep, so a missed
// trigger only delays the refresh.
func (r *Runner) notify(ctx context.Context, log *slog.Logger, summary types.IngestSummary) {
	if r.Trigger != nil && !summary.Skipped {
		msg := types.StatsRefreshMessage{
			RunID:       summary.RunID,
			Reason:      types.StatsReasonIngestCompleted,
			RowsWritten: summary.Accepted,
			RequestedAt: summary.FinishedAt,
		}
		if err := r.Trigger.Publish(ctx, msg); err != nil {
			log.WarnContext(ctx, "Failed to publish stats refresh message",
				"error", err,
			)
			if r.Metrics != nil {
				if merr := r.Metrics.PublishQueueError(ctx); merr != nil {
					log.WarnContext(ctx, "Failed to publish queue error metric",
						"error", merr,
					)
				}
			}
		}
	}
	if r.Metrics != nil {
		if err := r.Metrics.PublishIngest(ctx, summary); err != nil {
			log.WarnContext(ctx, "Failed to publish ingest metrics",
				"error", err,
			)
		}
	}
}
