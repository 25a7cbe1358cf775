package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"wxarchive/internal/types"
)

// upsertChunkRows caps the number of rows per INSERT statement. PostgreSQL's
// extended protocol allows at most 65535 bind parameters per statement; at
// five parameters per observation row, 5000 rows stays comfortably under the
// limit while keeping statements large enough to amortize parse overhead.
const upsertChunkRows = 5000

// obsColumns is the standard column list for observation queries.
const obsColumns = `id, station_id, date, max_temp_c, min_temp_c, precip_cm`

// ObservationRepository provides data access for the weather table. Daily
// readings are keyed by (station_id, date), so re-ingesting a file overwrites
// existing rows instead of duplicating them.
type ObservationRepository struct {
	db DBTX
}

// NewObservationRepository creates a new ObservationRepository that runs its
// queries on db, a pool or an open transaction.
func NewObservationRepository(db DBTX) *ObservationRepository {
	return &ObservationRepository{db: db}
}

// scanObservationFromRows scans a single row from a pgx.Rows result set.
// The columns must match the order defined in obsColumns.
func scanObservationFromRows(rows pgx.Rows) (types.Observation, error) {
	var o types.Observation
	err := rows.Scan(
		&o.ID,
		&o.StationID,
		&o.Date,
		&o.MaxTempC,
		&o.MinTempC,
		&o.PrecipCM,
	)
	return o, err
}

// UpsertBatch writes observations using INSERT ... ON CONFLICT DO UPDATE
// keyed on (station_id, date). The batch is split into chunks of
// upsertChunkRows and all chunks are queued on a single pgx.Batch, which pgx
// delivers to the server in one round trip. When the repository is backed by
// a pgx.Tx the whole batch participates in that transaction.
//
// Returns the number of rows written (inserted or updated).
func (r *ObservationRepository) UpsertBatch(ctx context.Context, obs []types.Observation) (int64, error) {
	if len(obs) == 0 {
		return 0, nil
	}

	b := &pgx.Batch{}
	for start := 0; start < len(obs); start += upsertChunkRows {
		end := start + upsertChunkRows
		if end > len(obs) {
			end = len(obs)
		}
		sql, args := buildObservationUpsert(obs[start:end])
		b.Queue(sql, args...)
	}

	br := r.db.SendBatch(ctx, b)
	defer br.Close()

	var affected int64
	for i := 0; i < b.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			return 0, wrapDBErr(err, "failed to upsert observation batch")
		}
		affected += tag.RowsAffected()
	}

	return affected, nil
}

// buildObservationUpsert renders a multi-row upsert statement with numbered
// placeholders, five per row.
func buildObservationUpsert(obs []types.Observation) (string, []any) {
	const colCount = 5
	var sb strings.Builder
	sb.WriteString(`INSERT INTO weather (station_id, date, max_temp_c, min_temp_c, precip_cm) VALUES `)

	args := make([]any, 0, len(obs)*colCount)
	for i := range obs {
		o := &obs[i]
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * colCount
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5))
		args = append(args, o.StationID, o.Date, o.MaxTempC, o.MinTempC, o.PrecipCM)
	}

	sb.WriteString(` ON CONFLICT (station_id, date) DO UPDATE SET
		max_temp_c = EXCLUDED.max_temp_c,
		min_temp_c = EXCLUDED.min_temp_c,
		precip_cm = EXCLUDED.precip_cm`)

	return sb.String(), args
}

// HasAny reports whether the weather table contains at least one row. The
// ingestion guard uses this to distinguish a fresh database from one that was
// populated by an earlier run that predates completion markers.
func (r *ObservationRepository) HasAny(ctx context.Context) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM weather)`).Scan(&exists)
	if err != nil {
		return false, wrapDBErr(err, "failed to check for existing observations")
	}
	return exists, nil
}

// List returns a page of observations plus the total row count for the same
// filter. Results are ordered by station then date so pages are stable across
// requests.
func (r *ObservationRepository) List(ctx context.Context, filter types.ObservationFilter, page types.PageRequest) ([]types.Observation, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if filter.StationID != "" {
		conditions = append(conditions, fmt.Sprintf("station_id = $%d", argIdx))
		args = append(args, filter.StationID)
		argIdx++
	}
	if filter.Date != nil {
		conditions = append(conditions, fmt.Sprintf("date = $%d", argIdx))
		args = append(args, *filter.Date)
		argIdx++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM weather %s`, whereClause)
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, wrapDBErr(err, "failed to count observations")
	}

	query := fmt.Sprintf(
		`SELECT %s
		 FROM weather
		 %s
		 ORDER BY station_id, date
		 LIMIT $%d OFFSET $%d`,
		obsColumns,
		whereClause,
		argIdx,
		argIdx+1,
	)
	args = append(args, page.PageSize, page.Offset())

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, wrapDBErr(err, "failed to list observations")
	}
	defer rows.Close()

	var results []types.Observation
	for rows.Next() {
		o, scanErr := scanObservationFromRows(rows)
		if scanErr != nil {
			return nil, 0, wrapDBErr(scanErr, "failed to scan observation row")
		}
		results = append(results, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, wrapDBErr(err, "error iterating observation rows")
	}

	return results, total, nil
}

// AggregateYearly computes per-station yearly statistics directly in SQL.
// AVG and SUM skip NULL inputs, and a group whose inputs are all NULL yields
// NULL rather than zero, which scans into a nil pointer. Year extraction
// happens in the database so grouping matches the stored DATE values exactly.
//
// SQL:
//
//	SELECT station_id, EXTRACT(YEAR FROM date)::INT,
//	       AVG(max_temp_c), AVG(min_temp_c), SUM(precip_cm)
//	FROM weather
//	GROUP BY station_id, EXTRACT(YEAR FROM date)
func (r *ObservationRepository) AggregateYearly(ctx context.Context) ([]types.YearlyStat, error) {
	rows, err := r.db.Query(ctx,
		`SELECT station_id,
		        EXTRACT(YEAR FROM date)::INT AS year,
		        AVG(max_temp_c),
		        AVG(min_temp_c),
		        SUM(precip_cm)
		 FROM weather
		 GROUP BY station_id, EXTRACT(YEAR FROM date)
		 ORDER BY station_id, year`,
	)
	if err != nil {
		return nil, wrapDBErr(err, "failed to aggregate yearly statistics")
	}
	defer rows.Close()

	var stats []types.YearlyStat
	for rows.Next() {
		var s types.YearlyStat
		if err := rows.Scan(
			&s.StationID,
			&s.Year,
			&s.AvgMaxTempC,
			&s.AvgMinTempC,
			&s.TotalPrecipCM,
		); err != nil {
			return nil, wrapDBErr(err, "failed to scan yearly aggregate row")
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(err, "error iterating yearly aggregate rows")
	}

	return stats, nil
}
