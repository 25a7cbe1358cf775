package types

import "time"

// Clock hands out the current time. The ingest and stats jobs take it as a
// dependency so tests can pin run timestamps.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock. Everything the archive stamps is UTC.
type RealClock struct{}

// Now returns the current UTC time.
func (RealClock) Now() time.Time { return time.Now().UTC() }
