package types

import "time"

// StatsRefreshReason identifies why a stats recomputation was requested.
type StatsRefreshReason string

const (
	// StatsReasonIngestCompleted is sent after an ingestion run commits rows.
	StatsReasonIngestCompleted StatsRefreshReason = "ingest_completed"
	// StatsReasonManual covers operator-initiated refreshes.
	StatsReasonManual StatsRefreshReason = "manual"
)

// StatsRefreshMessage is the SQS payload sent from the ingestion job to the
// stats worker. It is a trigger, not a data carrier: the worker recomputes
// everything from the observation store, so a duplicate or stale message is
// harmless. JSON tags use snake_case to match the rest of the wire surface.
type StatsRefreshMessage struct {
	// Core identity
	RunID  string             `json:"run_id"`
	Reason StatsRefreshReason `json:"reason"`

	// Context for log correlation; informational only.
	RowsWritten int       `json:"rows_written"`
	RequestedAt time.Time `json:"requested_at"`
}
