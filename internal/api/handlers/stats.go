package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"wxarchive/internal/core"
	"wxarchive/internal/types"
)

// defaultStatsPageSize is the page_size applied to GET /api/weather/stats
// when the client does not pass one.
const defaultStatsPageSize = 3

// StatSource defines the read access the stats handler needs.
type StatSource interface {
	List(ctx context.Context, filter types.StatFilter, page types.PageRequest) ([]types.YearlyStat, int64, error)
}

// StatsHandler maps HTTP requests to yearly statistic listings.
type StatsHandler struct {
	source    StatSource
	validator *core.Validator
	logger    *slog.Logger
}

// NewStatsHandler creates a new StatsHandler with the provided dependencies.
func NewStatsHandler(
	source StatSource,
	val *core.Validator,
	logger *slog.Logger,
) *StatsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsHandler{
		source:    source,
		validator: val,
		logger:    logger,
	}
}

// RegisterRoutes mounts the stats endpoint onto the mux.
func (h *StatsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/weather/stats", h.HandleList)
}

// statTemperature groups the yearly temperature averages in the response body.
type statTemperature struct {
	AverageMax *float64 `json:"average_max"`
	AverageMin *float64 `json:"average_min"`
}

// statPrecipitation wraps the yearly precipitation total.
type statPrecipitation struct {
	Total *float64 `json:"total"`
}

// statRow is the wire representation of one station-year aggregate. A null
// value means the station recorded no usable readings for that measure in
// that year.
type statRow struct {
	StationID          string            `json:"station_id"`
	Year               int               `json:"year"`
	TemperatureCelsius statTemperature   `json:"temperature_celsius"`
	PrecipitationCM    statPrecipitation `json:"precipitation_cm"`
}

// newStatRow converts a stored yearly aggregate into its response shape,
// rounding measurements to two decimals.
func newStatRow(s types.YearlyStat) statRow {
	return statRow{
		StationID: s.StationID,
		Year:      s.Year,
		TemperatureCelsius: statTemperature{
			AverageMax: round2(s.AvgMaxTempC),
			AverageMin: round2(s.AvgMinTempC),
		},
		PrecipitationCM: statPrecipitation{
			Total: round2(s.TotalPrecipCM),
		},
	}
}

// HandleList handles GET /api/weather/stats.
//
//  1. Parse query params: page, page_size, station_id, year.
//  2. List matching aggregates ordered by (station_id, year).
//  3. Return the rows with pagination metadata.
func (h *StatsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	page, appErr := parsePageRequest(r, h.validator, defaultStatsPageSize)
	if appErr != nil {
		core.Error(w, r, appErr)
		return
	}

	year, appErr := parseYear(r)
	if appErr != nil {
		core.Error(w, r, appErr)
		return
	}

	filter := types.StatFilter{
		StationID: parseStationID(r),
		Year:      year,
	}

	stats, total, err := h.source.List(r.Context(), filter, page)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	rows := make([]statRow, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, newStatRow(s))
	}

	core.JSON(w, r, http.StatusOK, types.NewListResponse(total, page, rows))
}
