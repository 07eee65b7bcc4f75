package generic

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// TIME POINT - A calendar date (attendance days, ledger effective dates)
// =============================================================================

// TimePoint is a calendar date. The Time field always holds midnight UTC of
// that date so two TimePoints compare equal exactly when their dates match.
type TimePoint struct {
	Time time.Time
}

// DateLayout is the wire and storage format of a TimePoint.
const DateLayout = "2006-01-02"

func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (TimePoint, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return TimePoint{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return NewTimePoint(t.Year(), t.Month(), t.Day()), nil
}

// DateOf returns the calendar date of instant t as observed in loc.
func DateOf(t time.Time, loc *time.Location) TimePoint {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return NewTimePoint(local.Year(), local.Month(), local.Day())
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.Time.Before(other.Time) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.Time.Equal(other.Time) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.Time.After(other.Time) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return !tp.After(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return !tp.Before(other) }

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint   { return TimePoint{Time: tp.Time.AddDate(0, 0, n)} }
func (tp TimePoint) AddMonths(n int) TimePoint { return TimePoint{Time: tp.Time.AddDate(0, n, 0)} }

// Properties
func (tp TimePoint) Year() int          { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month  { return tp.Time.Month() }
func (tp TimePoint) Day() int           { return tp.Time.Day() }
func (tp TimePoint) IsZero() bool       { return tp.Time.IsZero() }
func (tp TimePoint) String() string     { return tp.Time.Format(DateLayout) }

// DayBounds returns [start, end) of the date in loc: start is local midnight,
// end is the following local midnight. DST days are 23 or 25 hours long.
func (tp TimePoint) DayBounds(loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(tp.Year(), tp.Month(), tp.Day(), 0, 0, 0, 0, loc)
	end := time.Date(tp.Year(), tp.Month(), tp.Day()+1, 0, 0, 0, 0, loc)
	return start, end
}

// =============================================================================
// MONTH NORMALISATION
// =============================================================================

func StartOfMonth(year int, month time.Month) TimePoint { return NewTimePoint(year, month, 1) }

// MonthStart normalises an instant to the first calendar day of its month
// (as observed in loc) at start-of-day.
func MonthStart(t time.Time, loc *time.Location) TimePoint {
	d := DateOf(t, loc)
	return StartOfMonth(d.Year(), d.Month())
}

// =============================================================================
// CLOCK TIME - Wall-clock time of day (HH:MM) for shift definitions
// =============================================================================

// ClockTime is a time of day expressed as minutes since midnight.
type ClockTime int

// ParseClockTime parses "HH:MM" (24-hour clock).
func ParseClockTime(s string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClockTime, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClockTime, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClockTime, s)
	}
	return ClockTime(h*60 + m), nil
}

// MustClockTime is ParseClockTime for literals in tests and presets.
func MustClockTime(s string) ClockTime {
	c, err := ParseClockTime(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c ClockTime) Hour() int   { return int(c) / 60 }
func (c ClockTime) Minute() int { return int(c) % 60 }

func (c ClockTime) String() string { return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute()) }

// On places the clock time on date in loc.
func (c ClockTime) On(date TimePoint, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(date.Year(), date.Month(), date.Day(), c.Hour(), c.Minute(), 0, 0, loc)
}

// =============================================================================
// DURATION UTILITIES
// =============================================================================

// WholeMinutes truncates d to whole minutes (toward zero).
func WholeMinutes(d time.Duration) int { return int(d / time.Minute) }

// MinutesBetween returns whole minutes from `from` to `to`; negative when to
// is before from.
func MinutesBetween(from, to time.Time) int { return WholeMinutes(to.Sub(from)) }

func MaxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
