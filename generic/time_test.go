package generic_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance-ledger/generic"
)

var ist = time.FixedZone("IST", 5*3600+1800)

// =============================================================================
// TIME POINT
// =============================================================================

func TestParseDate(t *testing.T) {
	d, err := generic.ParseDate(" 2025-03-10 ")
	require.NoError(t, err)
	assert.Equal(t, generic.NewTimePoint(2025, time.March, 10), d)
	assert.Equal(t, "2025-03-10", d.String())

	_, err = generic.ParseDate("10/03/2025")
	assert.Error(t, err)

	_, err = generic.ParseDate("2025-02-30")
	assert.Error(t, err)
}

func TestDateOf_UsesLocation(t *testing.T) {
	// 20:00 UTC on March 10 is 01:30 on March 11 in IST.
	instant := time.Date(2025, time.March, 10, 20, 0, 0, 0, time.UTC)

	assert.Equal(t, generic.NewTimePoint(2025, time.March, 10), generic.DateOf(instant, time.UTC))
	assert.Equal(t, generic.NewTimePoint(2025, time.March, 11), generic.DateOf(instant, ist))
	assert.Equal(t, generic.DateOf(instant, time.UTC), generic.DateOf(instant, nil), "nil location means UTC")
}

func TestTimePoint_Comparisons(t *testing.T) {
	a := generic.NewTimePoint(2025, time.March, 10)
	b := a.AddDays(1)

	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.True(t, a.BeforeOrEqual(a))
	assert.True(t, a.AfterOrEqual(a))
	assert.True(t, a.Equal(generic.NewTimePoint(2025, time.March, 10)))
	assert.Equal(t, generic.NewTimePoint(2025, time.April, 10), a.AddMonths(1))
}

func TestDayBounds(t *testing.T) {
	d := generic.NewTimePoint(2025, time.March, 10)

	start, end := d.DayBounds(ist)
	assert.Equal(t, time.Date(2025, time.March, 10, 0, 0, 0, 0, ist), start)
	assert.Equal(t, time.Date(2025, time.March, 11, 0, 0, 0, 0, ist), end)
	assert.Equal(t, 24*time.Hour, end.Sub(start))
}

func TestDayBounds_DSTDay(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	// Clocks jump forward on 2025-03-09 in New York.
	start, end := generic.NewTimePoint(2025, time.March, 9).DayBounds(ny)
	assert.Equal(t, 23*time.Hour, end.Sub(start))
}

func TestMonthStart(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		loc  *time.Location
		want generic.TimePoint
	}{
		{"mid month", time.Date(2025, time.March, 17, 10, 0, 0, 0, time.UTC), time.UTC, generic.NewTimePoint(2025, time.March, 1)},
		{"first of month", time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC), time.UTC, generic.NewTimePoint(2025, time.March, 1)},
		{"last instant", time.Date(2025, time.March, 31, 23, 59, 59, 0, time.UTC), time.UTC, generic.NewTimePoint(2025, time.March, 1)},
		// 31 March 20:00 UTC is already April 1 in IST.
		{"month rolls over in location", time.Date(2025, time.March, 31, 20, 0, 0, 0, time.UTC), ist, generic.NewTimePoint(2025, time.April, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, generic.MonthStart(tt.at, tt.loc))
		})
	}
}

// =============================================================================
// CLOCK TIME
// =============================================================================

func TestParseClockTime(t *testing.T) {
	c, err := generic.ParseClockTime("09:05")
	require.NoError(t, err)
	assert.Equal(t, 9, c.Hour())
	assert.Equal(t, 5, c.Minute())
	assert.Equal(t, "09:05", c.String())

	for _, bad := range []string{"9", "24:00", "12:60", "ab:cd", "12:5", "12:30:00", ""} {
		_, err := generic.ParseClockTime(bad)
		assert.ErrorIs(t, err, generic.ErrInvalidClockTime, "input %q", bad)
		assert.True(t, generic.IsClientError(err))
	}
}

func TestClockTime_On(t *testing.T) {
	d := generic.NewTimePoint(2025, time.March, 10)
	got := generic.MustClockTime("18:30").On(d, ist)
	assert.Equal(t, time.Date(2025, time.March, 10, 18, 30, 0, 0, ist), got)
}

func TestMustClockTime_Panics(t *testing.T) {
	assert.Panics(t, func() { generic.MustClockTime("25:00") })
}

// =============================================================================
// DURATIONS
// =============================================================================

func TestWholeMinutes_Truncates(t *testing.T) {
	assert.Equal(t, 1, generic.WholeMinutes(119*time.Second))
	assert.Equal(t, 0, generic.WholeMinutes(59*time.Second))
	assert.Equal(t, -1, generic.WholeMinutes(-90*time.Second))

	from := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, 25, generic.MinutesBetween(from, from.Add(25*time.Minute+30*time.Second)))
	assert.Equal(t, -25, generic.MinutesBetween(from.Add(25*time.Minute), from))
}

// =============================================================================
// PERIOD
// =============================================================================

func TestPeriod_Contains(t *testing.T) {
	p := generic.Period{
		Start: generic.NewTimePoint(2025, time.January, 1),
		End:   generic.NewTimePoint(2025, time.December, 31),
	}
	assert.True(t, p.Contains(p.Start))
	assert.True(t, p.Contains(p.End))
	assert.False(t, p.Contains(p.End.AddDays(1)))
	assert.False(t, p.Contains(p.Start.AddDays(-1)))

	open := generic.Period{Start: p.Start}
	assert.True(t, open.IsOpenEnded())
	assert.True(t, open.Contains(generic.NewTimePoint(2099, time.January, 1)))
	assert.Equal(t, "[2025-01-01, open]", open.String())
}

func TestPeriod_Validate(t *testing.T) {
	bad := generic.Period{
		Start: generic.NewTimePoint(2025, time.June, 1),
		End:   generic.NewTimePoint(2025, time.May, 31),
	}
	assert.ErrorIs(t, bad.Validate(), generic.ErrInvalidPeriod)
	assert.NoError(t, generic.Period{Start: bad.Start}.Validate())
}
