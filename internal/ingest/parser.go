package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"wxarchive/internal/types"
)

// dateLayout is the compact day stamp used by the station files.
const dateLayout = "20060102"

// RawRecord is one structurally valid station file line before unit
// conversion. Measurement fields hold the raw integers from the file; nil
// means blank or not numeric. The missing-value sentinel passes through
// untouched for the converter to map.
type RawRecord struct {
	StationID string
	Date      time.Time
	MaxTemp   *int64
	MinTemp   *int64
	Precip    *int64
}

// ParseLine parses one tab-separated station file line:
//
//	YYYYMMDD <TAB> TMAX <TAB> TMIN <TAB> PRCP
//
// Lines with fewer than four fields are rejected; extra fields are ignored.
// The date must be exactly eight ASCII digits naming a real calendar day.
// A rejection is an error return; the caller counts it and the run
// continues.
func ParseLine(stationID, line string) (RawRecord, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < types.MinFieldsPerLine {
		return RawRecord{}, fmt.Errorf("expected at least %d tab-separated fields, got %d", types.MinFieldsPerLine, len(fields))
	}

	date, err := parseDate(strings.TrimSpace(fields[types.FieldDate]))
	if err != nil {
		return RawRecord{}, err
	}

	return RawRecord{
		StationID: stationID,
		Date:      date,
		MaxTemp:   parseRawValue(fields[types.FieldMaxTemp]),
		MinTemp:   parseRawValue(fields[types.FieldMinTemp]),
		Precip:    parseRawValue(fields[types.FieldPrecip]),
	}, nil
}

// parseDate validates the eight-digit day stamp. The width and digit checks
// run first so a malformed stamp reports its shape; time.Parse then rejects
// impossible calendar days like month 13 or February 30.
func parseDate(s string) (time.Time, error) {
	if len(s) != 8 {
		return time.Time{}, fmt.Errorf("date %q must be exactly 8 digits", s)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return time.Time{}, fmt.Errorf("date %q must be exactly 8 digits", s)
		}
	}
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q is not a calendar day", s)
	}
	return d, nil
}

// parseRawValue reads one raw measurement field. Blank and non-numeric
// values mean missing.
func parseRawValue(s string) *int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}
