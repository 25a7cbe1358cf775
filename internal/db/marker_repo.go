package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"wxarchive/internal/types"
)

// MarkerRepository provides data access for the ingestion_state table, a
// small key/value store of boolean completion markers.
type MarkerRepository struct {
	db DBTX
}

// NewMarkerRepository creates a new MarkerRepository that runs its queries on
// db, a pool or an open transaction.
func NewMarkerRepository(db DBTX) *MarkerRepository {
	return &MarkerRepository{db: db}
}

// Get returns the marker for key, or nil when no marker has been written.
func (r *MarkerRepository) Get(ctx context.Context, key string) (*types.IngestionMarker, error) {
	var m types.IngestionMarker
	err := r.db.QueryRow(ctx,
		`SELECT key, value FROM ingestion_state WHERE key = $1`,
		key,
	).Scan(&m.Key, &m.Completed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapDBErr(err, "failed to get ingestion marker")
	}
	return &m, nil
}

// SetCompleted upserts the marker value for key. Repeated calls with the same
// value are harmless, so a re-run that finishes again simply rewrites the row.
func (r *MarkerRepository) SetCompleted(ctx context.Context, key string, completed bool) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO ingestion_state (key, value)
		 VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key,
		completed,
	)
	if err != nil {
		return wrapDBErr(err, "failed to set ingestion marker")
	}
	return nil
}
