package handlers

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"wxarchive/internal/core"
	"wxarchive/internal/types"
)

// pageParams carries the pagination values shared by every list endpoint.
// Bounds are enforced through the validator so the limits live in one place.
type pageParams struct {
	Page     int `validate:"min=1"`
	PageSize int `validate:"min=1,max=500"`
}

// parsePageRequest reads page/page_size from the query string, applying the
// endpoint's default page size. Each violation maps to its own error code so
// clients can tell which parameter was rejected.
func parsePageRequest(r *http.Request, v *core.Validator, defaultPageSize int) (types.PageRequest, *types.AppError) {
	q := r.URL.Query()

	params := pageParams{Page: 1, PageSize: defaultPageSize}

	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return types.PageRequest{}, types.NewAppError(
				types.ErrCodeValidationInvalidPage,
				"page must be an integer",
				err,
			)
		}
		params.Page = n
	}

	if raw := q.Get("page_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return types.PageRequest{}, types.NewAppError(
				types.ErrCodeValidationInvalidPageSize,
				"page_size must be an integer",
				err,
			)
		}
		params.PageSize = n
	}

	if fields := v.FieldErrors(params); fields != nil {
		if tag, ok := fields["Page"]; ok {
			return types.PageRequest{}, types.NewAppErrorWithDetails(
				types.ErrCodeValidationInvalidPage,
				"page must be at least 1",
				nil,
				map[string]any{"page": tag},
			)
		}
		return types.PageRequest{}, types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidPageSize,
			"page_size must be between 1 and 500",
			nil,
			map[string]any{"page_size": fields["PageSize"]},
		)
	}

	return types.PageRequest{Page: params.Page, PageSize: params.PageSize}, nil
}

// parseStationID reads the optional station_id filter. A blank or
// whitespace-only value is treated as absent rather than as an empty match.
func parseStationID(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("station_id"))
}

// parseDate reads the optional date filter in YYYY-MM-DD form.
func parseDate(r *http.Request) (*time.Time, *types.AppError) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		return nil, nil
	}

	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidDate,
			"date must be in YYYY-MM-DD format",
			err,
		)
	}
	return &parsed, nil
}

// parseYear reads the optional year filter.
func parseYear(r *http.Request) (*int, *types.AppError) {
	raw := strings.TrimSpace(r.URL.Query().Get("year"))
	if raw == "" {
		return nil, nil
	}

	year, err := strconv.Atoi(raw)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidYear,
			"year must be an integer",
			err,
		)
	}
	return &year, nil
}

// round2 rounds a nullable measurement to two decimals, preserving NULL.
// Stored values already carry full precision; rounding happens only at the
// presentation boundary.
func round2(v *float64) *float64 {
	if v == nil {
		return nil
	}
	rounded := math.Round(*v*100) / 100
	return &rounded
}
