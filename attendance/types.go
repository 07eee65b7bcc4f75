/*
Package attendance turns raw clock punches into one attendance record per
employee per day.

PURPOSE:
  Punches arrive one at a time (device, mobile, manual entry). Each arrival
  triggers a full recomputation of that day's AttendanceRecord from every
  punch of the day, the employee's shift and the leave-window signal. The
  result is upserted wholesale, which makes reconciliation idempotent and
  convergent no matter how often or how concurrently it is triggered.

KEY TYPES:
  PunchEvent:       Immutable IN/OUT clock event
  ShiftSnapshot:    Point-in-time copy of the assigned shift
  AttendanceRecord: Derived daily record, unique per (employee, date)

STATUS PRECEDENCE:
  ON_LEAVE > PRESENT > ABSENT
  HALF_DAY / HOLIDAY / WEEKLY_OFF / WFH are assigned by a calendar overlay
  outside this package.

SEE ALSO:
  - intervals.go: Work/break interval pairing
  - shift.go: Lateness, early exit, overtime
  - reconciler.go: The reconciliation operation
*/
package attendance

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/attendance-ledger/generic"
)

// =============================================================================
// PUNCH EVENTS
// =============================================================================

type PunchType string

const (
	PunchIn  PunchType = "IN"
	PunchOut PunchType = "OUT"
)

func ParsePunchType(s string) (PunchType, error) {
	switch t := PunchType(strings.ToUpper(strings.TrimSpace(s))); t {
	case PunchIn, PunchOut:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown punch type %q", generic.ErrInvalidPunch, s)
}

// GeoPoint is where a mobile punch was recorded.
type GeoPoint struct {
	Latitude  float64
	Longitude float64
}

// PunchEvent is a single IN or OUT clock event. Owned by the punch store;
// the reconciler only reads it.
type PunchEvent struct {
	ID            string
	EmployeeID    generic.EmployeeID
	OrgID         generic.OrgID
	PunchTime     time.Time
	PunchType     PunchType
	Source        string // e.g. "device", "mobile", "web"
	DeviceInfo    string
	GeoLocation   *GeoPoint
	IsManualEntry bool
}

// Validate checks the fields the reconciler depends on.
func (p PunchEvent) Validate() error {
	switch {
	case p.EmployeeID == "":
		return fmt.Errorf("%w: employee_id is required", generic.ErrInvalidPunch)
	case p.OrgID == "":
		return fmt.Errorf("%w: org_id is required", generic.ErrInvalidPunch)
	case p.PunchTime.IsZero():
		return fmt.Errorf("%w: punch_time is required", generic.ErrInvalidPunch)
	}
	_, err := ParsePunchType(string(p.PunchType))
	return err
}

// =============================================================================
// SHIFT SNAPSHOT
// =============================================================================

// ShiftSnapshot is a copy of the shift taken at reconciliation time, so a
// historical record keeps the schedule it was computed against even if the
// shift definition later changes.
type ShiftSnapshot struct {
	StartTime    generic.ClockTime
	EndTime      generic.ClockTime
	GraceMinutes int
	WorkingHours decimal.Decimal
}

// =============================================================================
// ATTENDANCE RECORD
// =============================================================================

type Status string

const (
	StatusPresent   Status = "PRESENT"
	StatusAbsent    Status = "ABSENT"
	StatusOnLeave   Status = "ON_LEAVE"
	StatusHalfDay   Status = "HALF_DAY"
	StatusHoliday   Status = "HOLIDAY"
	StatusWeeklyOff Status = "WEEKLY_OFF"
	StatusWFH       Status = "WFH"
)

// Record is the derived attendance of one employee on one calendar date.
// Exactly one exists per (EmployeeID, Date). It carries no wall-clock
// timestamps of its own, so reconciling unchanged punches reproduces it
// field for field.
type Record struct {
	EmployeeID generic.EmployeeID
	OrgID      generic.OrgID
	Date       generic.TimePoint

	Shift *ShiftSnapshot

	FirstCheckIn *time.Time
	LastCheckOut *time.Time

	TotalWorkMinutes  int
	TotalBreakMinutes int
	LateMinutes       int
	EarlyExitMinutes  int
	OvertimeMinutes   int

	Status Status
}
