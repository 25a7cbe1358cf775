package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"wxarchive/internal/types"
)

// Worker is the Lambda entrypoint wrapper around the Engine. It accepts two
// payload shapes:
//
//  1. An SQS event carrying StatsRefreshMessage bodies, sent by the
//     ingestion job after a completed load.
//  2. A bare StatsRefreshMessage JSON object, for manual recovery runs.
//
// One invocation triggers exactly one sweep regardless of how many records
// the event carries: the sweep recomputes everything, so collapsing a batch
// of triggers loses nothing.
type Worker struct {
	Engine *Engine
	Log    *slog.Logger
}

// Handler processes one Lambda invocation.
func (w *Worker) Handler(ctx context.Context, payload json.RawMessage) error {
	var sqsEvent events.SQSEvent
	if err := json.Unmarshal(payload, &sqsEvent); err == nil && len(sqsEvent.Records) > 0 {
		return w.handleSQSEvent(ctx, sqsEvent)
	}

	var msg types.StatsRefreshMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("stats: failed to parse payload as SQSEvent or StatsRefreshMessage: %w", err)
	}
	if msg.Reason == "" {
		msg.Reason = types.StatsReasonManual
	}

	w.Log.InfoContext(ctx, "Processing manual stats refresh",
		"trigger_run_id", msg.RunID,
		"reason", string(msg.Reason),
	)

	_, err := w.Engine.Run(ctx)
	return err
}

// handleSQSEvent logs every trigger in the batch for correlation, then runs
// a single sweep. A malformed record body is logged and skipped rather than
// failing the invocation; the sweep does not depend on the message contents.
func (w *Worker) handleSQSEvent(ctx context.Context, sqsEvent events.SQSEvent) error {
	for _, record := range sqsEvent.Records {
		var msg types.StatsRefreshMessage
		if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
			w.Log.WarnContext(ctx, "Skipping malformed stats refresh message",
				"message_id", record.MessageId,
				"error", err,
			)
			continue
		}
		w.Log.InfoContext(ctx, "Stats refresh triggered",
			"message_id", record.MessageId,
			"trigger_run_id", msg.RunID,
			"reason", string(msg.Reason),
			"rows_written", msg.RowsWritten,
		)
	}

	_, err := w.Engine.Run(ctx)
	return err
}
