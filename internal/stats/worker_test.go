package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wxarchive/internal/types"
)

func newTestWorker(agg *mockAggregator, writer *mockStatWriter) *Worker {
	return &Worker{
		Engine: newTestEngine(agg, writer),
		Log:    slog.Default(),
	}
}

func sqsPayload(t *testing.T, bodies ...string) json.RawMessage {
	t.Helper()
	event := map[string]any{}
	records := make([]map[string]any, 0, len(bodies))
	for i, body := range bodies {
		records = append(records, map[string]any{
			"messageId": string(rune('a' + i)),
			"body":      body,
		})
	}
	event["Records"] = records
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return payload
}

func TestWorkerHandlerSQSEventRunsOneSweep(t *testing.T) {
	agg := &mockAggregator{}
	writer := &mockStatWriter{}
	worker := newTestWorker(agg, writer)

	msg := types.StatsRefreshMessage{
		RunID:       "run-1",
		Reason:      types.StatsReasonIngestCompleted,
		RowsWritten: 42,
		RequestedAt: time.Now().UTC(),
	}
	body, err := json.Marshal(msg)
	require.NoError(t, err)

	err = worker.Handler(context.Background(), sqsPayload(t, string(body)))
	require.NoError(t, err)
	assert.Equal(t, 1, agg.calls)
}

func TestWorkerHandlerBatchedTriggersCollapseToOneSweep(t *testing.T) {
	agg := &mockAggregator{}
	writer := &mockStatWriter{}
	worker := newTestWorker(agg, writer)

	body1, _ := json.Marshal(types.StatsRefreshMessage{RunID: "run-1", Reason: types.StatsReasonIngestCompleted})
	body2, _ := json.Marshal(types.StatsRefreshMessage{RunID: "run-2", Reason: types.StatsReasonIngestCompleted})

	err := worker.Handler(context.Background(), sqsPayload(t, string(body1), string(body2)))
	require.NoError(t, err)

	// Two triggers, one full recompute.
	assert.Equal(t, 1, agg.calls)
}

func TestWorkerHandlerMalformedRecordBodyIsSkipped(t *testing.T) {
	agg := &mockAggregator{}
	writer := &mockStatWriter{}
	worker := newTestWorker(agg, writer)

	err := worker.Handler(context.Background(), sqsPayload(t, "{not json"))
	require.NoError(t, err)
	assert.Equal(t, 1, agg.calls)
}

func TestWorkerHandlerManualPayload(t *testing.T) {
	agg := &mockAggregator{}
	writer := &mockStatWriter{}
	worker := newTestWorker(agg, writer)

	payload, err := json.Marshal(types.StatsRefreshMessage{
		RunID:  "manual-run",
		Reason: types.StatsReasonManual,
	})
	require.NoError(t, err)

	err = worker.Handler(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, 1, agg.calls)
}

func TestWorkerHandlerEmptyManualPayloadDefaultsToManualReason(t *testing.T) {
	agg := &mockAggregator{}
	writer := &mockStatWriter{}
	worker := newTestWorker(agg, writer)

	err := worker.Handler(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 1, agg.calls)
}

func TestWorkerHandlerGarbagePayloadFails(t *testing.T) {
	agg := &mockAggregator{}
	writer := &mockStatWriter{}
	worker := newTestWorker(agg, writer)

	err := worker.Handler(context.Background(), json.RawMessage(`not json at all`))
	require.Error(t, err)
	assert.Equal(t, 0, agg.calls)
}

func TestWorkerHandlerEngineFailurePropagates(t *testing.T) {
	agg := &mockAggregator{err: assert.AnError}
	writer := &mockStatWriter{}
	worker := newTestWorker(agg, writer)

	err := worker.Handler(context.Background(), json.RawMessage(`{}`))
	require.Error(t, err)
}
