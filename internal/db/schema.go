package db

import "context"

// schemaStatements creates the core tables and their lookup indexes.
// Every statement is idempotent (IF NOT EXISTS) so EnsureSchema can run at
// the start of every ingestion without coordination between workers.
//
// The weather table stores one row per (station, calendar day). Measurement
// columns are nullable: the source files mark missing readings with a
// sentinel that the converter turns into NULL, and NULL must survive storage
// so the SQL aggregates skip those readings instead of counting zeros.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS weather (
		id BIGSERIAL PRIMARY KEY,
		station_id TEXT NOT NULL,
		date DATE NOT NULL,
		max_temp_c DOUBLE PRECISION,
		min_temp_c DOUBLE PRECISION,
		precip_cm DOUBLE PRECISION,
		CONSTRAINT uq_weather_station_date UNIQUE (station_id, date)
	)`,
	`CREATE INDEX IF NOT EXISTS ix_weather_station_date
		ON weather (station_id, date)`,
	`CREATE TABLE IF NOT EXISTS weather_stats (
		id BIGSERIAL PRIMARY KEY,
		station_id TEXT NOT NULL,
		year INT NOT NULL,
		avg_max_temp_c DOUBLE PRECISION,
		avg_min_temp_c DOUBLE PRECISION,
		total_precip_cm DOUBLE PRECISION,
		CONSTRAINT uq_stats_station_year UNIQUE (station_id, year)
	)`,
	`CREATE INDEX IF NOT EXISTS ix_stats_station_year
		ON weather_stats (station_id, year)`,
	`CREATE TABLE IF NOT EXISTS ingestion_state (
		key TEXT PRIMARY KEY,
		value BOOLEAN NOT NULL
	)`,
}

// EnsureSchema applies the schema statements in order, stopping at the first
// failure.
func EnsureSchema(ctx context.Context, db DBTX) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return wrapDBErr(err, "failed to apply schema statement")
		}
	}
	return nil
}
