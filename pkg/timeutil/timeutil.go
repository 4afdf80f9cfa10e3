// Package timeutil provides the wall clock used to decide which calendar day
// an activity belongs to, plus small date helpers.
//
// "Today" is the server wall clock in one configured location. There is no
// per-user timezone: users near midnight may see an activity land on the
// neighbouring day.
package timeutil

import (
	"fmt"
	"time"
)

// DateLayout is the canonical day-granularity layout.
const DateLayout = "2006-01-02"

// Clock is the source of "now" for the progression engine.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

// SystemClock reads the process wall clock in a fixed location.
type SystemClock struct {
	loc *time.Location
}

// NewSystemClock returns a clock for the given location. Nil means the
// process local zone.
func NewSystemClock(loc *time.Location) SystemClock {
	if loc == nil {
		loc = time.Local
	}
	return SystemClock{loc: loc}
}

// Now returns the current time in the clock's location.
func (c SystemClock) Now() time.Time {
	return time.Now().In(c.Location())
}

// Location returns the configured location.
func (c SystemClock) Location() *time.Location {
	if c.loc == nil {
		return time.Local
	}
	return c.loc
}

// FixedClock always returns the same instant. Used by tests and replays.
type FixedClock struct {
	At  time.Time
	Loc *time.Location
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time {
	return c.At.In(c.Location())
}

// Location returns the fixed location (UTC when unset).
func (c FixedClock) Location() *time.Location {
	if c.Loc == nil {
		return time.UTC
	}
	return c.Loc
}

// LoadLocation resolves an IANA name. Empty or "Local" means the process
// zone, "UTC" is always available even without tzdata.
func LoadLocation(name string) (*time.Location, error) {
	switch name {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timeutil: unknown location %q: %w", name, err)
	}
	return loc, nil
}

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// FormatDate formats t as YYYY-MM-DD in loc.
func FormatDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}

// IsSameDay checks if two times fall on the same calendar day in loc.
func IsSameDay(t1, t2 time.Time, loc *time.Location) bool {
	return FormatDate(t1, loc) == FormatDate(t2, loc)
}

// DaysBetween returns the number of calendar days from t1 to t2 in loc.
// Negative when t2 is before t1.
func DaysBetween(t1, t2 time.Time, loc *time.Location) int {
	a := StartOfDay(t1, loc)
	b := StartOfDay(t2, loc)
	// Rebuild in UTC so DST transitions do not shave an hour off the diff.
	au := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bu := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bu.Sub(au).Hours() / 24)
}
