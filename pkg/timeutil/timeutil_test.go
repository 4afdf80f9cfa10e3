package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedClock(t *testing.T) {
	at := time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC)
	c := FixedClock{At: at}

	assert.Equal(t, at, c.Now())
	assert.Equal(t, time.UTC, c.Location())
}

func TestFormatDate_UsesLocation(t *testing.T) {
	at := time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC)
	plus5 := time.FixedZone("UTC+5", 5*60*60)

	assert.Equal(t, "2026-03-14", FormatDate(at, time.UTC))
	assert.Equal(t, "2026-03-15", FormatDate(at, plus5))
}

func TestDaysBetween(t *testing.T) {
	loc := time.UTC
	base := time.Date(2026, 1, 30, 22, 0, 0, 0, loc)

	assert.Equal(t, 0, DaysBetween(base, base.Add(time.Hour), loc))
	assert.Equal(t, 1, DaysBetween(base, base.Add(3*time.Hour), loc))
	assert.Equal(t, 30, DaysBetween(base, base.AddDate(0, 0, 30), loc))
	assert.Equal(t, -2, DaysBetween(base, base.AddDate(0, 0, -2), loc))
}

func TestIsSameDay(t *testing.T) {
	a := time.Date(2026, 5, 1, 0, 0, 1, 0, time.UTC)
	b := time.Date(2026, 5, 1, 23, 59, 59, 0, time.UTC)
	assert.True(t, IsSameDay(a, b, time.UTC))
	assert.False(t, IsSameDay(a, b.Add(2*time.Second), time.UTC))
}

func TestLoadLocation(t *testing.T) {
	loc, err := LoadLocation("UTC")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	loc, err = LoadLocation("")
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	_, err = LoadLocation("Mars/Olympus_Mons")
	assert.Error(t, err)
}
