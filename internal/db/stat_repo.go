package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"wxarchive/internal/types"
)

// statColumns is the standard column list for yearly statistic queries.
const statColumns = `id, station_id, year, avg_max_temp_c, avg_min_temp_c, total_precip_cm`

// StatRepository provides data access for the weather_stats table. Rows are
// keyed by (station_id, year) and fully overwritten on each recompute, so a
// stale aggregate never survives a refresh.
type StatRepository struct {
	db DBTX
}

// NewStatRepository creates a new StatRepository that runs its queries on db,
// a pool or an open transaction.
func NewStatRepository(db DBTX) *StatRepository {
	return &StatRepository{db: db}
}

func scanStatFromRows(rows pgx.Rows) (types.YearlyStat, error) {
	var s types.YearlyStat
	err := rows.Scan(
		&s.ID,
		&s.StationID,
		&s.Year,
		&s.AvgMaxTempC,
		&s.AvgMinTempC,
		&s.TotalPrecipCM,
	)
	return s, err
}

// UpsertBatch writes yearly statistics using INSERT ... ON CONFLICT DO UPDATE
// keyed on (station_id, year). Chunking mirrors the observation upsert: the
// result set is small in practice (stations x years), but the same statement
// cap keeps the repository safe for arbitrarily large recomputes.
//
// Returns the number of rows written (inserted or updated).
func (r *StatRepository) UpsertBatch(ctx context.Context, stats []types.YearlyStat) (int64, error) {
	if len(stats) == 0 {
		return 0, nil
	}

	b := &pgx.Batch{}
	for start := 0; start < len(stats); start += upsertChunkRows {
		end := start + upsertChunkRows
		if end > len(stats) {
			end = len(stats)
		}
		sql, args := buildStatUpsert(stats[start:end])
		b.Queue(sql, args...)
	}

	br := r.db.SendBatch(ctx, b)
	defer br.Close()

	var affected int64
	for i := 0; i < b.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			return 0, wrapDBErr(err, "failed to upsert yearly statistics batch")
		}
		affected += tag.RowsAffected()
	}

	return affected, nil
}

func buildStatUpsert(stats []types.YearlyStat) (string, []any) {
	const colCount = 5
	var sb strings.Builder
	sb.WriteString(`INSERT INTO weather_stats (station_id, year, avg_max_temp_c, avg_min_temp_c, total_precip_cm) VALUES `)

	args := make([]any, 0, len(stats)*colCount)
	for i := range stats {
		s := &stats[i]
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * colCount
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5))
		args = append(args, s.StationID, s.Year, s.AvgMaxTempC, s.AvgMinTempC, s.TotalPrecipCM)
	}

	sb.WriteString(` ON CONFLICT (station_id, year) DO UPDATE SET
		avg_max_temp_c = EXCLUDED.avg_max_temp_c,
		avg_min_temp_c = EXCLUDED.avg_min_temp_c,
		total_precip_cm = EXCLUDED.total_precip_cm`)

	return sb.String(), args
}

// List returns a page of yearly statistics plus the total row count for the
// same filter. Results are ordered by station then year.
func (r *StatRepository) List(ctx context.Context, filter types.StatFilter, page types.PageRequest) ([]types.YearlyStat, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if filter.StationID != "" {
		conditions = append(conditions, fmt.Sprintf("station_id = $%d", argIdx))
		args = append(args, filter.StationID)
		argIdx++
	}
	if filter.Year != nil {
		conditions = append(conditions, fmt.Sprintf("year = $%d", argIdx))
		args = append(args, *filter.Year)
		argIdx++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM weather_stats %s`, whereClause)
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, wrapDBErr(err, "failed to count yearly statistics")
	}

	query := fmt.Sprintf(
		`SELECT %s
		 FROM weather_stats
		 %s
		 ORDER BY station_id, year
		 LIMIT $%d OFFSET $%d`,
		statColumns,
		whereClause,
		argIdx,
		argIdx+1,
	)
	args = append(args, page.PageSize, page.Offset())

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, wrapDBErr(err, "failed to list yearly statistics")
	}
	defer rows.Close()

	var results []types.YearlyStat
	for rows.Next() {
		s, scanErr := scanStatFromRows(rows)
		if scanErr != nil {
			return nil, 0, wrapDBErr(scanErr, "failed to scan yearly statistic row")
		}
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, wrapDBErr(err, "error iterating yearly statistic rows")
	}

	return results, total, nil
}
