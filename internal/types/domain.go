package types

import (
	"time"
)

// Observation is the core domain entity: one station-day weather reading.
// (StationID, Date) is unique in storage. Measurement fields are pointers
// because the source files mark missing values with a sentinel; a nil here
// maps to SQL NULL and is skipped by aggregation, never coerced to zero.
type Observation struct {
	ID        int64     `json:"id" db:"id"`
	StationID string    `json:"station_id" db:"station_id"`
	Date      time.Time `json:"date" db:"date"`
	MaxTempC  *float64  `json:"max_temp_c" db:"max_temp_c"`
	MinTempC  *float64  `json:"min_temp_c" db:"min_temp_c"`
	PrecipCM  *float64  `json:"precip_cm" db:"precip_cm"`
}

// YearlyStat is one aggregated row for a (station, year) pair. Averages and
// totals are computed over non-NULL observations only; a station-year with
// no usable readings for a measure carries nil, never zero.
type YearlyStat struct {
	ID            int64    `json:"id" db:"id"`
	StationID     string   `json:"station_id" db:"station_id"`
	Year          int      `json:"year" db:"year"`
	AvgMaxTempC   *float64 `json:"avg_max_temp_c" db:"avg_max_temp_c"`
	AvgMinTempC   *float64 `json:"avg_min_temp_c" db:"avg_min_temp_c"`
	TotalPrecipCM *float64 `json:"total_precip_cm" db:"total_precip_cm"`
}

// IngestionMarker records that a named ingestion pass ran to completion.
// Markers are keyed strings so future dataset versions can coexist with the
// current one.
type IngestionMarker struct {
	Key       string `json:"key" db:"key"`
	Completed bool   `json:"completed" db:"value"`
}

// MarkerIngestV1 is the marker key for the tab-separated station-file
// dataset ingested by cmd/ingest.
const MarkerIngestV1 = "weather_ingested_v1"

// ObservationFilter narrows observation listings. Zero values mean no
// constraint.
type ObservationFilter struct {
	StationID string
	Date      *time.Time
}

// StatFilter narrows yearly stat listings.
type StatFilter struct {
	StationID string
	Year      *int
}

// IngestFileResult is the per-file outcome of an ingestion run.
type IngestFileResult struct {
	Source   string `json:"source"`
	Station  string `json:"station"`
	Checksum string `json:"checksum,omitempty"`
	Lines    int    `json:"lines"`
	Accepted int    `json:"accepted"`
	Rejected int    `json:"rejected"`
}

// IngestSummary is the aggregate outcome of an ingestion run across all
// station files. Lines == Accepted + Rejected holds per file and in total.
type IngestSummary struct {
	RunID      string             `json:"run_id"`
	Files      []IngestFileResult `json:"files"`
	Lines      int                `json:"lines"`
	Accepted   int                `json:"accepted"`
	Rejected   int                `json:"rejected"`
	Batches    int                `json:"batches"`
	Skipped    bool               `json:"skipped"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
}

// Duration is the wall-clock length of the run.
func (s IngestSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// StatsSummary is the outcome of a stats recomputation run.
type StatsSummary struct {
	RunID      string    `json:"run_id"`
	Rows       int       `json:"rows"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration is the wall-clock length of the run.
func (s StatsSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}
