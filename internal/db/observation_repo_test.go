package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"wxarchive/internal/types"
)

func fptr(v float64) *float64 { return &v }

// obsMockRows implements pgx.Rows for observation queries (six columns in
// obsColumns order).
type obsMockRows struct {
	data    []types.Observation
	idx     int
	closed  bool
	scanErr error
	errVal  error
}

func (r *obsMockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.data)
}

func (r *obsMockRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	if r.idx < 0 || r.idx >= len(r.data) {
		return errors.New("no current row")
	}
	o := r.data[r.idx]
	*dest[0].(*int64) = o.ID
	*dest[1].(*string) = o.StationID
	*dest[2].(*time.Time) = o.Date
	*dest[3].(**float64) = o.MaxTempC
	*dest[4].(**float64) = o.MinTempC
	*dest[5].(**float64) = o.PrecipCM
	return nil
}

func (r *obsMockRows) Close()                                       { r.closed = true }
func (r *obsMockRows) Err() error                                   { return r.errVal }
func (r *obsMockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *obsMockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *obsMockRows) RawValues() [][]byte                          { return nil }
func (r *obsMockRows) Values() ([]any, error)                       { return nil, nil }
func (r *obsMockRows) Conn() *pgx.Conn                              { return nil }

// yearlyAggMockRows implements pgx.Rows for the yearly aggregation query
// (station_id, year, avg_max, avg_min, total_precip).
type yearlyAggMockRows struct {
	data    []types.YearlyStat
	idx     int
	closed  bool
	scanErr error
	errVal  error
}

func (r *yearlyAggMockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.data)
}

func (r *yearlyAggMockRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	if r.idx < 0 || r.idx >= len(r.data) {
		return errors.New("no current row")
	}
	s := r.data[r.idx]
	*dest[0].(*string) = s.StationID
	*dest[1].(*int) = s.Year
	*dest[2].(**float64) = s.AvgMaxTempC
	*dest[3].(**float64) = s.AvgMinTempC
	*dest[4].(**float64) = s.TotalPrecipCM
	return nil
}

func (r *yearlyAggMockRows) Close()                                       { r.closed = true }
func (r *yearlyAggMockRows) Err() error                                   { return r.errVal }
func (r *yearlyAggMockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *yearlyAggMockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *yearlyAggMockRows) RawValues() [][]byte                          { return nil }
func (r *yearlyAggMockRows) Values() ([]any, error)                       { return nil, nil }
func (r *yearlyAggMockRows) Conn() *pgx.Conn                              { return nil }

// makeObservations builds n distinct observations for a single station,
// one per consecutive day.
func makeObservations(n int) []types.Observation {
	obs := make([]types.Observation, n)
	start := time.Date(1985, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range obs {
		obs[i] = types.Observation{
			StationID: "USC00110072",
			Date:      start.AddDate(0, 0, i),
			MaxTempC:  fptr(12.3),
			MinTempC:  fptr(-2.2),
			PrecipCM:  fptr(1.0),
		}
	}
	return obs
}

// ============================================================
// UpsertBatch Tests
// ============================================================

func TestObservationRepository_UpsertBatch_Empty(t *testing.T) {
	dbMock := new(mockDBTX)
	repo := NewObservationRepository(dbMock)

	affected, err := repo.UpsertBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, affected)
	dbMock.AssertNotCalled(t, "SendBatch", mock.Anything, mock.Anything)
}

func TestObservationRepository_UpsertBatch_SingleChunk(t *testing.T) {
	dbMock := new(mockDBTX)
	repo := NewObservationRepository(dbMock)

	obs := makeObservations(3)
	obs[1].MaxTempC = nil // missing reading stays NULL through the upsert

	results := &mockBatchResults{tags: []pgconn.CommandTag{pgconn.NewCommandTag("INSERT 0 3")}}
	var captured *pgx.Batch
	dbMock.On("SendBatch", mock.Anything, mock.AnythingOfType("*pgx.Batch")).
		Run(func(args mock.Arguments) { captured = args.Get(1).(*pgx.Batch) }).
		Return(results)

	affected, err := repo.UpsertBatch(context.Background(), obs)
	require.NoError(t, err)
	assert.Equal(t, int64(3), affected)

	require.NotNil(t, captured)
	require.Equal(t, 1, captured.Len(), "3 rows fit in a single chunk")

	q := captured.QueuedQueries[0]
	assert.Contains(t, q.SQL, "INSERT INTO weather")
	assert.Contains(t, q.SQL, "ON CONFLICT (station_id, date) DO UPDATE")
	require.Len(t, q.Arguments, 15)
	assert.Equal(t, "USC00110072", q.Arguments[0])
	assert.Nil(t, q.Arguments[7], "nil measurement must be bound as NULL")

	assert.True(t, results.closed, "batch results must be closed")
	dbMock.AssertExpectations(t)
}

func TestObservationRepository_UpsertBatch_SplitsLargeBatches(t *testing.T) {
	dbMock := new(mockDBTX)
	repo := NewObservationRepository(dbMock)

	// One row past two full chunks forces a third, partial statement.
	obs := makeObservations(2*upsertChunkRows + 1)

	results := &mockBatchResults{tags: []pgconn.CommandTag{
		pgconn.NewCommandTag(fmt.Sprintf("INSERT 0 %d", upsertChunkRows)),
		pgconn.NewCommandTag(fmt.Sprintf("INSERT 0 %d", upsertChunkRows)),
		pgconn.NewCommandTag("INSERT 0 1"),
	}}
	var captured *pgx.Batch
	dbMock.On("SendBatch", mock.Anything, mock.AnythingOfType("*pgx.Batch")).
		Run(func(args mock.Arguments) { captured = args.Get(1).(*pgx.Batch) }).
		Return(results)

	affected, err := repo.UpsertBatch(context.Background(), obs)
	require.NoError(t, err)
	assert.Equal(t, int64(2*upsertChunkRows+1), affected)

	require.NotNil(t, captured)
	require.Equal(t, 3, captured.Len())
	assert.Len(t, captured.QueuedQueries[0].Arguments, upsertChunkRows*5)
	assert.Len(t, captured.QueuedQueries[1].Arguments, upsertChunkRows*5)
	assert.Len(t, captured.QueuedQueries[2].Arguments, 5)

	// Every queued statement must stay under PostgreSQL's bind limit.
	for i, q := range captured.QueuedQueries {
		assert.Less(t, len(q.Arguments), 65535, "chunk %d exceeds the bind-parameter limit", i)
	}
}

func TestObservationRepository_UpsertBatch_ExecError(t *testing.T) {
	dbMock := new(mockDBTX)
	repo := NewObservationRepository(dbMock)

	results := &mockBatchResults{errs: []error{errors.New("deadlock detected")}}
	dbMock.On("SendBatch", mock.Anything, mock.AnythingOfType("*pgx.Batch")).Return(results)

	affected, err := repo.UpsertBatch(context.Background(), makeObservations(10))
	require.Error(t, err)
	assert.Zero(t, affected)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
	assert.Contains(t, appErr.Message, "failed to upsert observation batch")
	assert.True(t, results.closed, "batch results must be closed on error")
}

func TestBuildObservationUpsert_PlaceholdersAndArgs(t *testing.T) {
	obs := []types.Observation{
		{
			StationID: "USC00110072",
			Date:      time.Date(1985, 1, 1, 0, 0, 0, 0, time.UTC),
			MaxTempC:  fptr(12.3),
			MinTempC:  fptr(-2.2),
			PrecipCM:  nil,
		},
		{
			StationID: "USC00256837",
			Date:      time.Date(1985, 1, 2, 0, 0, 0, 0, time.UTC),
			MaxTempC:  nil,
			MinTempC:  nil,
			PrecipCM:  fptr(0.25),
		},
	}

	sql, args := buildObservationUpsert(obs)

	assert.Contains(t, sql, "($1, $2, $3, $4, $5)")
	assert.Contains(t, sql, "($6, $7, $8, $9, $10)")
	assert.NotContains(t, sql, "$11")
	assert.Contains(t, sql, "max_temp_c = EXCLUDED.max_temp_c")
	assert.Contains(t, sql, "precip_cm = EXCLUDED.precip_cm")

	require.Len(t, args, 10)
	assert.Equal(t, "USC00110072", args[0])
	assert.Equal(t, time.Date(1985, 1, 1, 0, 0, 0, 0, time.UTC), args[1])
	assert.Equal(t, 12.3, *args[2].(*float64))
	assert.Equal(t, -2.2, *args[3].(*float64))
	assert.Nil(t, args[4])
	assert.Equal(t, "USC00256837", args[5])
	assert.Equal(t, 0.25, *args[9].(*float64))
}

// ============================================================
// HasAny Tests
// ============================================================

func TestObservationRepository_HasAny_True(t *testing.T) {
	dbMock := new(mockDBTX)
	repo := NewObservationRepository(dbMock)

	row := &mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*bool) = true
		return nil
	}}
	dbMock.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(row)

	got, err := repo.HasAny(context.Background())
	require.NoError(t, err)
	assert.True(t, got)
}

func TestObservationRepository_HasAny_EmptyTable(t *testing.T) {
	dbMock := new(mockDBTX)
	repo := NewObservationRepository(dbMock)

	row := &mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*bool) = false
		return nil
	}}
	dbMock.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(row)

	got, err := repo.HasAny(context.Background())
	require.NoError(t, err)
	assert.False(t, got)
}

func TestObservationRepository_HasAny_DBError(t *testing.T) {
	dbMock := new(mockDBTX)
	repo := NewObservationRepository(dbMock)

	row := &mockRow{scanErr: errors.New("connection refused")}
	dbMock.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(row)

	_, err := repo.HasAny(context.Background())
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

// ============================================================
// List Tests
// ============================================================

func TestObservationRepository_List_NoFilter(t *testing.T) {
	dbMock := new(mockDBTX)
	repo := NewObservationRepository(dbMock)

	countRow := &mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*int64) = 42
		return nil
	}}
	dbMock.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(countRow)

	data := makeObservations(2)
	data[0].ID = 1
	data[1].ID = 2

	var capturedSQL string
	var capturedArgs []any
	dbMock.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			capturedSQL = args.String(1)
			capturedArgs = args.Get(2).([]any)
		}).
		Return(&obsMockRows{data: data, idx: -1}, nil)

	results, total, err := repo.List(context.Background(), types.ObservationFilter{}, types.PageRequest{Page: 3, PageSize: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(42), total)
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].ID)

	assert.NotContains(t, capturedSQL, "WHERE")
	assert.Contains(t, capturedSQL, "ORDER BY station_id, date")
	require.Len(t, capturedArgs, 2)
	assert.Equal(t, 5, capturedArgs[0], "limit is the page size")
	assert.Equal(t, 10, capturedArgs[1], "offset is (page-1)*page_size")
	dbMock.AssertExpectations(t)
}

func TestObservationRepository_List_StationAndDateFilter(t *testing.T) {
	dbMock := new(mockDBTX)
	repo := NewObservationRepository(dbMock)

	var countSQL string
	var countArgs []any
	countRow := &mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*int64) = 1
		return nil
	}}
	dbMock.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			countSQL = args.String(1)
			countArgs = args.Get(2).([]any)
		}).
		Return(countRow)

	var capturedSQL string
	var capturedArgs []any
	dbMock.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			capturedSQL = args.String(1)
			capturedArgs = args.Get(2).([]any)
		}).
		Return(&obsMockRows{data: makeObservations(1), idx: -1}, nil)

	date := time.Date(1985, 1, 1, 0, 0, 0, 0, time.UTC)
	filter := types.ObservationFilter{StationID: "USC00110072", Date: &date}

	results, total, err := repo.List(context.Background(), filter, types.PageRequest{Page: 1, PageSize: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, results, 1)

	assert.Contains(t, countSQL, "station_id = $1")
	assert.Contains(t, countSQL, "date = $2")
	require.Len(t, countArgs, 2)

	assert.Contains(t, capturedSQL, "station_id = $1")
	assert.Contains(t, capturedSQL, "date = $2")
	assert.Contains(t, capturedSQL, "LIMIT $3 OFFSET $4")
	require.Len(t, capturedArgs, 4)
	assert.Equal(t, "USC00110072", capturedArgs[0])
	assert.Equal(t, date, capturedArgs[1])
	assert.Equal(t, 5, capturedArgs[2])
	assert.Equal(t, 0, capturedArgs[3])
}

func TestObservationRepository_List_CountError(t *testing.T) {
	dbMock := new(mockDBTX)
	repo := NewObservationRepository(dbMock)

	countRow := &mockRow{scanErr: errors.New("connection refused")}
	dbMock.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(countRow)

	_, _, err := repo.List(context.Background(), types.ObservationFilter{}, types.PageRequest{Page: 1, PageSize: 5})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
	assert.Contains(t, appErr.Message, "failed to count observations")
	dbMock.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything)
}

func TestObservationRepository_List_QueryError(t *testing.T) {
	dbMock := new(mockDBTX)
	repo := NewObservationRepository(dbMock)

	countRow := &mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*int64) = 9
		return nil
	}}
	dbMock.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(countRow)
	dbMock.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return((*obsMockRows)(nil), errors.New("connection reset"))

	_, _, err := repo.List(context.Background(), types.ObservationFilter{}, types.PageRequest{Page: 1, PageSize: 5})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
	assert.Contains(t, appErr.Message, "failed to list observations")
}

func TestObservationRepository_List_ScanError(t *testing.T) {
	dbMock := new(mockDBTX)
	repo := NewObservationRepository(dbMock)

	countRow := &mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*int64) = 1
		return nil
	}}
	dbMock.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(countRow)
	dbMock.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&obsMockRows{data: makeObservations(1), idx: -1, scanErr: errors.New("unexpected column type")}, nil)

	_, _, err := repo.List(context.Background(), types.ObservationFilter{}, types.PageRequest{Page: 1, PageSize: 5})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Contains(t, appErr.Message, "failed to scan observation row")
}

func TestObservationRepository_List_RowIterationError(t *testing.T) {
	dbMock := new(mockDBTX)
	repo := NewObservationRepository(dbMock)

	countRow := &mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*int64) = 1
		return nil
	}}
	dbMock.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(countRow)
	dbMock.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&obsMockRows{data: makeObservations(1), idx: -1, errVal: errors.New("network timeout during fetch")}, nil)

	_, _, err := repo.List(context.Background(), types.ObservationFilter{}, types.PageRequest{Page: 1, PageSize: 5})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Contains(t, appErr.Message, "error iterating observation rows")
}

// ============================================================
// AggregateYearly Tests
// ============================================================

func TestObservationRepository_AggregateYearly_Success(t *testing.T) {
	dbMock := new(mockDBTX)
	repo := NewObservationRepository(dbMock)

	data := []types.YearlyStat{
		{StationID: "USC00110072", Year: 1985, AvgMaxTempC: fptr(2.5), AvgMinTempC: fptr(-5.0), TotalPrecipCM: fptr(12.75)},
		{StationID: "USC00110072", Year: 1986, AvgMaxTempC: fptr(10.0), AvgMinTempC: nil, TotalPrecipCM: nil},
		{StationID: "USC00256837", Year: 1985, AvgMaxTempC: nil, AvgMinTempC: nil, TotalPrecipCM: nil},
	}

	var capturedSQL string
	dbMock.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) { capturedSQL = args.String(1) }).
		Return(&yearlyAggMockRows{data: data, idx: -1}, nil)

	stats, err := repo.AggregateYearly(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 3)

	assert.Contains(t, capturedSQL, "AVG(max_temp_c)")
	assert.Contains(t, capturedSQL, "SUM(precip_cm)")
	assert.Contains(t, capturedSQL, "GROUP BY station_id, EXTRACT(YEAR FROM date)")

	assert.Equal(t, 2.5, *stats[0].AvgMaxTempC)
	assert.Equal(t, 12.75, *stats[0].TotalPrecipCM)

	// Groups whose inputs were all NULL must stay nil, never become zero.
	assert.Nil(t, stats[1].AvgMinTempC)
	assert.Nil(t, stats[1].TotalPrecipCM)
	assert.Nil(t, stats[2].AvgMaxTempC)
	assert.Nil(t, stats[2].AvgMinTempC)
	assert.Nil(t, stats[2].TotalPrecipCM)
}

func TestObservationRepository_AggregateYearly_Empty(t *testing.T) {
	dbMock := new(mockDBTX)
	repo := NewObservationRepository(dbMock)

	dbMock.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&yearlyAggMockRows{idx: -1}, nil)

	stats, err := repo.AggregateYearly(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stats)
}

func TestObservationRepository_AggregateYearly_QueryError(t *testing.T) {
	dbMock := new(mockDBTX)
	repo := NewObservationRepository(dbMock)

	dbMock.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return((*yearlyAggMockRows)(nil), errors.New("connection refused"))

	stats, err := repo.AggregateYearly(context.Background())
	require.Error(t, err)
	assert.Nil(t, stats)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
	assert.Contains(t, appErr.Message, "failed to aggregate yearly statistics")
}
