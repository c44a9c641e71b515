// Package calendar derives time-bucket keys (day, week, month) for an
// instant under a fixed time zone and a pluggable calendar system. The
// engine never does calendar arithmetic itself; every bucket decision
// comes through a Provider so the Jalali scheme the study group uses
// can be swapped for a Gregorian one without touching the engine.
package calendar

import "time"

// Keys identifies the day, week, and month buckets containing one instant.
type Keys struct {
	Day   string
	Week  string
	Month string
}

// Key returns the bucket key for a single granularity name
// (daily, weekly, monthly).
func (k Keys) Key(granularity string) string {
	switch granularity {
	case "daily":
		return k.Day
	case "weekly":
		return k.Week
	case "monthly":
		return k.Month
	}
	return ""
}

// Clock supplies the current time. The engine takes it as a dependency
// so tests can drive the state machine with a fake.
type Clock interface {
	Now() time.Time
}

// Provider maps instants to bucket keys and local-midnight boundaries.
// Implementations are pure functions of the instant and the fixed
// configuration; no hidden state.
type Provider interface {
	Keys(t time.Time) Keys

	// NextMidnight returns the first local-midnight instant strictly
	// after t.
	NextMidnight(t time.Time) time.Time

	// SameDay reports whether two instants fall on the same local day.
	SameDay(a, b time.Time) bool
}

type systemClock struct {
	loc *time.Location
}

// NewSystemClock returns a Clock reporting wall time in loc.
func NewSystemClock(loc *time.Location) Clock {
	return &systemClock{loc: loc}
}

func (c *systemClock) Now() time.Time {
	return time.Now().In(c.loc)
}
