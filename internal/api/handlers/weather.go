// Package handlers contains the HTTP handler implementations for the weather
// archive API. It covers:
//   - Daily observation listing (GET /api/weather)
//   - Yearly statistics listing (GET /api/weather/stats)
//
// Both endpoints are read-only, paginated, and filterable. Handlers depend
// on narrow repository interfaces defined locally so tests can inject fakes
// without touching the database layer.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"wxarchive/internal/core"
	"wxarchive/internal/types"
)

// defaultWeatherPageSize is the page_size applied to GET /api/weather when
// the client does not pass one.
const defaultWeatherPageSize = 5

// ObservationSource defines the read access the weather handler needs.
// Matches the observation repository in the db package but is defined locally
// to avoid tight coupling per the handler injection pattern.
type ObservationSource interface {
	List(ctx context.Context, filter types.ObservationFilter, page types.PageRequest) ([]types.Observation, int64, error)
}

// WeatherHandler maps HTTP requests to observation listings.
type WeatherHandler struct {
	source    ObservationSource
	validator *core.Validator
	logger    *slog.Logger
}

// NewWeatherHandler creates a new WeatherHandler with the provided dependencies.
func NewWeatherHandler(
	source ObservationSource,
	val *core.Validator,
	logger *slog.Logger,
) *WeatherHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WeatherHandler{
		source:    source,
		validator: val,
		logger:    logger,
	}
}

// RegisterRoutes mounts the weather endpoint onto the mux.
func (h *WeatherHandler) RegisterRoutes(r chi.Router) {
	r.Get("/weather", h.HandleList)
}

// temperatureRange groups the daily extremes in the response body.
// Missing readings stay null; a day without a thermometer reading is not a
// day with zero degrees.
type temperatureRange struct {
	Max *float64 `json:"max"`
	Min *float64 `json:"min"`
}

// observationRow is the wire representation of one station-day. The internal
// row ID is deliberately absent.
type observationRow struct {
	StationID          string           `json:"station_id"`
	Date               string           `json:"date"`
	TemperatureCelsius temperatureRange `json:"temperature_celsius"`
	PrecipitationCM    *float64         `json:"precipitation_cm"`
}

// newObservationRow converts a stored observation into its response shape,
// rounding measurements to two decimals.
func newObservationRow(o types.Observation) observationRow {
	return observationRow{
		StationID: o.StationID,
		Date:      o.Date.Format("2006-01-02"),
		TemperatureCelsius: temperatureRange{
			Max: round2(o.MaxTempC),
			Min: round2(o.MinTempC),
		},
		PrecipitationCM: round2(o.PrecipCM),
	}
}

// HandleList handles GET /api/weather.
//
//  1. Parse query params: page, page_size, station_id, date.
//  2. List matching observations ordered by (station_id, date).
//  3. Return the rows with pagination metadata.
func (h *WeatherHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	page, appErr := parsePageRequest(r, h.validator, defaultWeatherPageSize)
	if appErr != nil {
		core.Error(w, r, appErr)
		return
	}

	date, appErr := parseDate(r)
	if appErr != nil {
		core.Error(w, r, appErr)
		return
	}

	filter := types.ObservationFilter{
		StationID: parseStationID(r),
		Date:      date,
	}

	observations, total, err := h.source.List(r.Context(), filter, page)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	rows := make([]observationRow, 0, len(observations))
	for _, o := range observations {
		rows = append(rows, newObservationRow(o))
	}

	core.JSON(w, r, http.StatusOK, types.NewListResponse(total, page, rows))
}
