package ingest

import (
	"wxarchive/internal/types"
)

// MissingSentinel is the raw value the upstream extraction scripts emit for
// a measurement that was not recorded. It maps to NULL in storage, never to
// a number.
const MissingSentinel = -9999

// TenthsToCelsius converts a raw temperature in tenths of degrees Celsius
// (123 -> 12.3). Missing and sentinel values stay missing.
func TenthsToCelsius(raw *int64) *float64 {
	if raw == nil || *raw == MissingSentinel {
		return nil
	}
	v := float64(*raw) / 10.0
	return &v
}

// TenthsMMToCentimeters converts a raw precipitation reading in tenths of
// millimeters to centimeters (100 -> 1.0): tenths of mm to mm, then mm to
// cm. Missing and sentinel values stay missing.
func TenthsMMToCentimeters(raw *int64) *float64 {
	if raw == nil || *raw == MissingSentinel {
		return nil
	}
	v := float64(*raw) / 10.0 / 10.0
	return &v
}

// Observation applies unit conversion to a parsed record, producing the row
// shape stored in the weather table.
func (r RawRecord) Observation() types.Observation {
	return types.Observation{
		StationID: r.StationID,
		Date:      r.Date,
		MaxTempC:  TenthsToCelsius(r.MaxTemp),
		MinTempC:  TenthsToCelsius(r.MinTemp),
		PrecipCM:  TenthsMMToCentimeters(r.Precip),
	}
}
