package businesshours

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var weekdays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}

func denver(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Denver")
	require.NoError(t, err)
	return loc
}

func TestIsBusinessMomentBoundaries(t *testing.T) {
	loc := denver(t)
	// 2025-12-08 is a Monday.
	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"start hour is inside", time.Date(2025, 12, 8, 9, 0, 0, 0, loc), true},
		{"last minute before end", time.Date(2025, 12, 8, 16, 59, 59, 0, loc), true},
		{"end hour is after-hours", time.Date(2025, 12, 8, 17, 0, 0, 0, loc), false},
		{"before start", time.Date(2025, 12, 8, 8, 59, 0, 0, loc), false},
		{"late evening", time.Date(2025, 12, 8, 22, 0, 0, 0, loc), false},
		{"saturday inside hours", time.Date(2025, 12, 13, 10, 0, 0, 0, loc), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsBusinessMoment(tc.at, "America/Denver", 9, 17, weekdays))
		})
	}
}

func TestIsBusinessMomentConvertsFromUTC(t *testing.T) {
	// 16:30 UTC on a Monday in January is 09:30 MST.
	at := time.Date(2026, 1, 5, 16, 30, 0, 0, time.UTC)
	assert.True(t, IsBusinessMoment(at, "America/Denver", 9, 17, weekdays))
	// 15:30 UTC is 08:30 MST.
	assert.False(t, IsBusinessMoment(at.Add(-time.Hour), "America/Denver", 9, 17, weekdays))
}

func TestIsBusinessMomentHonorsDST(t *testing.T) {
	// Same UTC clock time, different local hour across the DST boundary.
	winter := time.Date(2026, 3, 6, 16, 0, 0, 0, time.UTC) // Friday 09:00 MST
	summer := time.Date(2026, 3, 9, 15, 0, 0, 0, time.UTC) // Monday 09:00 MDT
	assert.True(t, IsBusinessMoment(winter, "America/Denver", 9, 17, weekdays))
	assert.True(t, IsBusinessMoment(summer, "America/Denver", 9, 17, weekdays))
	// A fixed -7h offset would wrongly call this 08:00.
	_, hour, err := LocalMoment(summer, "America/Denver")
	require.NoError(t, err)
	assert.Equal(t, 9, hour)
}

func TestIsBusinessMomentWeekdayCaseInsensitive(t *testing.T) {
	loc := denver(t)
	at := time.Date(2025, 12, 8, 10, 0, 0, 0, loc)
	assert.True(t, IsBusinessMoment(at, "America/Denver", 9, 17, []string{" monday "}))
}

func TestIsBusinessMomentUnknownTimezone(t *testing.T) {
	at := time.Date(2025, 12, 8, 17, 0, 0, 0, time.UTC)
	assert.False(t, IsBusinessMoment(at, "Mars/Olympus", 0, 23, weekdays))
	assert.False(t, IsBusinessMoment(at, "", 0, 23, weekdays))
}

func TestOvernightWindowNeverMatches(t *testing.T) {
	loc := denver(t)
	for hour := 0; hour < 24; hour++ {
		at := time.Date(2025, 12, 8, hour, 0, 0, 0, loc)
		assert.False(t, IsBusinessMoment(at, "America/Denver", 20, 6, weekdays), "hour %d", hour)
	}
}

func TestWeekdayHelpers(t *testing.T) {
	assert.True(t, ValidWeekday("sunday"))
	assert.False(t, ValidWeekday("Funday"))
	assert.Equal(t, "Wednesday", CanonicalWeekday("WEDNESDAY"))
	assert.Equal(t, "", CanonicalWeekday("wed"))
}
