package attendance

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/attendance-ledger/generic"
)

// =============================================================================
// SHIFT METRICS
// =============================================================================

var sixty = decimal.NewFromInt(60)

// Bounds places the shift on date in loc. A shift whose end is not after its
// start runs past midnight and ends on the following day.
func (s ShiftSnapshot) Bounds(date generic.TimePoint, loc *time.Location) (time.Time, time.Time) {
	start := s.StartTime.On(date, loc)
	end := s.EndTime.On(date, loc)
	if s.EndTime <= s.StartTime {
		end = s.EndTime.On(date.AddDays(1), loc)
	}
	return start, end
}

// LateMinutes = max(0, minutes(start, firstIn) - grace).
func (s ShiftSnapshot) LateMinutes(date generic.TimePoint, loc *time.Location, firstIn time.Time) int {
	start, _ := s.Bounds(date, loc)
	return generic.MaxInt(0, generic.MinutesBetween(start, firstIn)-s.GraceMinutes)
}

// EarlyExitMinutes = max(0, minutes(lastOut, end)).
func (s ShiftSnapshot) EarlyExitMinutes(date generic.TimePoint, loc *time.Location, lastOut time.Time) int {
	_, end := s.Bounds(date, loc)
	return generic.MaxInt(0, generic.MinutesBetween(lastOut, end))
}

// OvertimeMinutes = max(0, work - workingHours*60).
func (s ShiftSnapshot) OvertimeMinutes(workMinutes int) int {
	return generic.MaxInt(0, workMinutes-s.ExpectedMinutes())
}

// ExpectedMinutes is the scheduled working time in whole minutes.
func (s ShiftSnapshot) ExpectedMinutes() int {
	return int(s.WorkingHours.Mul(sixty).Floor().IntPart())
}
