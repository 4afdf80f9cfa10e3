package progression

import (
	"fmt"
	"time"
)

// DayLayout is the wire and storage format of a Day.
const DayLayout = "2006-01-02"

// Day is a calendar date without a time of day. The zero value means
// "no date" and maps to NULL in storage.
type Day struct {
	t time.Time // midnight UTC
}

// NewDay builds a Day from its components.
func NewDay(year int, month time.Month, day int) Day {
	return Day{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DayOf returns the calendar day t falls on in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return NewDay(local.Year(), local.Month(), local.Day())
}

// ParseDay parses YYYY-MM-DD. An empty string yields the zero Day.
func ParseDay(s string) (Day, error) {
	if s == "" {
		return Day{}, nil
	}
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return Day{}, fmt.Errorf("progression: invalid day %q: %w", s, err)
	}
	return Day{t: t}, nil
}

// MustParseDay is ParseDay for literals known to be valid.
func MustParseDay(s string) Day {
	d, err := ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

// IsZero reports whether d is the "no date" value.
func (d Day) IsZero() bool { return d.t.IsZero() }

// String returns YYYY-MM-DD, or "" for the zero Day.
func (d Day) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(DayLayout)
}

// Time returns midnight UTC of the day.
func (d Day) Time() time.Time { return d.t }

// AddDays returns the day n days after d (n may be negative).
func (d Day) AddDays(n int) Day {
	return Day{t: d.t.AddDate(0, 0, n)}
}

// DaysSince returns how many days lie between earlier and d.
func (d Day) DaysSince(earlier Day) int {
	return int(d.t.Sub(earlier.t).Hours() / 24)
}

// Equal reports whether both values denote the same date.
func (d Day) Equal(other Day) bool { return d.t.Equal(other.t) }

// Before reports whether d is strictly earlier than other.
func (d Day) Before(other Day) bool { return d.t.Before(other.t) }

// MarshalText implements encoding.TextMarshaler.
func (d Day) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Day) UnmarshalText(b []byte) error {
	parsed, err := ParseDay(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
