/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator struct tags. Handlers run
  them before touching the domain; domain validation still applies after.

SEE ALSO:
  - handlers.go: Uses these types
  - leave/policies.go: PolicyJSON, accepted as-is by POST /api/policies
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/attendance-ledger/attendance"
	"github.com/warp/attendance-ledger/generic"
	"github.com/warp/attendance-ledger/ledger"
	"github.com/warp/attendance-ledger/leave"
	"github.com/warp/attendance-ledger/store/sqlite"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

type GeoPointDTO struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

// PunchRequest ingests one clock event.
type PunchRequest struct {
	ID            string       `json:"id" validate:"omitempty,max=64"`
	EmployeeID    string       `json:"employee_id" validate:"required,max=64"`
	OrgID         string       `json:"org_id" validate:"required,max=64"`
	PunchTime     time.Time    `json:"punch_time" validate:"required"`
	PunchType     string       `json:"punch_type" validate:"required,oneof=IN OUT"`
	Source        string       `json:"source" validate:"omitempty,max=32"`
	DeviceInfo    string       `json:"device_info" validate:"omitempty,max=256"`
	GeoLocation   *GeoPointDTO `json:"geo_location" validate:"omitempty"`
	IsManualEntry bool         `json:"is_manual_entry"`
}

// ReconcileRequest recomputes one day, or every day from From to To.
type ReconcileRequest struct {
	OrgID      string `json:"org_id" validate:"required"`
	EmployeeID string `json:"employee_id" validate:"required"`
	Date       string `json:"date" validate:"required_without_all=From To,omitempty,datetime=2006-01-02"`
	From       string `json:"from" validate:"required_with=To,omitempty,datetime=2006-01-02"`
	To         string `json:"to" validate:"required_with=From,omitempty,datetime=2006-01-02"`
}

// CreateEntryRequest appends a manual ledger entry. Accrual credits are
// written by the scheduler only.
type CreateEntryRequest struct {
	EmployeeID     string          `json:"employee_id" validate:"required"`
	LeaveTypeID    string          `json:"leave_type_id" validate:"required"`
	EntryType      string          `json:"entry_type" validate:"required,oneof=CREDIT DEBIT ADJUSTMENT"`
	Quantity       decimal.Decimal `json:"quantity"`
	EffectiveDate  string          `json:"effective_date" validate:"required,datetime=2006-01-02"`
	ReferenceType  string          `json:"reference_type" validate:"omitempty,oneof=LEAVE_REQUEST ADMIN"`
	ReferenceID    string          `json:"reference_id" validate:"max=128"`
	Reason         string          `json:"reason" validate:"max=512"`
	IdempotencyKey string          `json:"idempotency_key" validate:"max=128"`
}

type ReverseEntryRequest struct {
	EffectiveDate string `json:"effective_date" validate:"omitempty,datetime=2006-01-02"`
	ReferenceType string `json:"reference_type" validate:"omitempty,oneof=LEAVE_REQUEST ADMIN"`
	ReferenceID   string `json:"reference_id" validate:"max=128"`
	Reason        string `json:"reason" validate:"required,max=512"`
}

type RunAccrualRequest struct {
	AsOf string `json:"as_of" validate:"omitempty,datetime=2006-01-02"`
}

type CreateEmployeeRequest struct {
	ID          string `json:"id" validate:"required,max=64"`
	OrgID       string `json:"org_id" validate:"required,max=64"`
	Name        string `json:"name" validate:"required,max=256"`
	JoiningDate string `json:"joining_date" validate:"required,datetime=2006-01-02"`
	Active      *bool  `json:"active"`
}

type CreateShiftRequest struct {
	ID           string          `json:"id" validate:"required,max=64"`
	OrgID        string          `json:"org_id" validate:"required,max=64"`
	Name         string          `json:"name" validate:"required,max=128"`
	StartTime    string          `json:"start_time" validate:"required,datetime=15:04"`
	EndTime      string          `json:"end_time" validate:"required,datetime=15:04"`
	GraceMinutes int             `json:"grace_minutes" validate:"gte=0,lte=720"`
	WorkingHours decimal.Decimal `json:"working_hours"`
}

type AssignShiftRequest struct {
	EmployeeID string `json:"employee_id" validate:"required"`
	ShiftID    string `json:"shift_id" validate:"required"`
}

type CreateLeaveWindowRequest struct {
	ID         string `json:"id" validate:"omitempty,max=64"`
	EmployeeID string `json:"employee_id" validate:"required"`
	OrgID      string `json:"org_id" validate:"required"`
	StartDate  string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate    string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Status     string `json:"status" validate:"required,oneof=SUBMITTED APPROVED REJECTED CANCELLED"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type PunchDTO struct {
	ID            string       `json:"id"`
	EmployeeID    string       `json:"employee_id"`
	OrgID         string       `json:"org_id"`
	PunchTime     string       `json:"punch_time"`
	PunchType     string       `json:"punch_type"`
	Source        string       `json:"source,omitempty"`
	DeviceInfo    string       `json:"device_info,omitempty"`
	GeoLocation   *GeoPointDTO `json:"geo_location,omitempty"`
	IsManualEntry bool         `json:"is_manual_entry"`
}

type ShiftSnapshotDTO struct {
	StartTime    string  `json:"start_time"`
	EndTime      string  `json:"end_time"`
	GraceMinutes int     `json:"grace_minutes"`
	WorkingHours float64 `json:"working_hours"`
}

type AttendanceRecordDTO struct {
	EmployeeID        string            `json:"employee_id"`
	OrgID             string            `json:"org_id"`
	Date              string            `json:"date"`
	Shift             *ShiftSnapshotDTO `json:"shift_snapshot,omitempty"`
	FirstCheckIn      *string           `json:"first_check_in,omitempty"`
	LastCheckOut      *string           `json:"last_check_out,omitempty"`
	TotalWorkMinutes  int               `json:"total_work_minutes"`
	TotalBreakMinutes int               `json:"total_break_minutes"`
	LateMinutes       int               `json:"late_minutes"`
	EarlyExitMinutes  int               `json:"early_exit_minutes"`
	OvertimeMinutes   int               `json:"overtime_minutes"`
	Status            string            `json:"status"`
}

type PunchResponse struct {
	Punch  PunchDTO             `json:"punch"`
	Record *AttendanceRecordDTO `json:"record,omitempty"`
}

type EntryDTO struct {
	ID             string  `json:"id"`
	EmployeeID     string  `json:"employee_id"`
	LeaveTypeID    string  `json:"leave_type_id"`
	EntryType      string  `json:"entry_type"`
	Quantity       float64 `json:"quantity"`
	EffectiveDate  string  `json:"effective_date"`
	ReferenceType  string  `json:"reference_type"`
	ReferenceID    string  `json:"reference_id,omitempty"`
	ReversesID     string  `json:"reverses_id,omitempty"`
	Reason         string  `json:"reason,omitempty"`
	IdempotencyKey string  `json:"idempotency_key,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

type BalanceDTO struct {
	EmployeeID  string   `json:"employee_id"`
	LeaveTypeID string   `json:"leave_type_id"`
	AsOf        string   `json:"as_of"`
	Balance     float64  `json:"balance"`
	Credited    float64  `json:"credited"`
	Debited     float64  `json:"debited"`
	Adjusted    float64  `json:"adjusted"`
	Reversed    float64  `json:"reversed"`
	MaxBalance  *float64 `json:"max_balance,omitempty"`
	ExceedsCap  bool     `json:"exceeds_cap"`
}

type EmployeeDTO struct {
	ID          string `json:"id"`
	OrgID       string `json:"org_id"`
	Name        string `json:"name"`
	JoiningDate string `json:"joining_date"`
	Active      bool   `json:"active"`
}

type ShiftDTO struct {
	ID    string           `json:"id"`
	OrgID string           `json:"org_id"`
	Name  string           `json:"name"`
	Shift ShiftSnapshotDTO `json:"shift"`
}

type LeaveWindowDTO struct {
	ID         string `json:"id"`
	EmployeeID string `json:"employee_id"`
	OrgID      string `json:"org_id"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	Status     string `json:"status"`
}

type AccrualFailureDTO struct {
	PolicyID    string `json:"policy_id"`
	EmployeeID  string `json:"employee_id,omitempty"`
	LeaveTypeID string `json:"leave_type_id"`
	Error       string `json:"error"`
}

type AccrualReportDTO struct {
	RunID         string              `json:"run_id,omitempty"`
	EffectiveDate string              `json:"effective_date"`
	Credited      int                 `json:"credited"`
	Skipped       int                 `json:"skipped"`
	Failures      []AccrualFailureDTO `json:"failures"`
}

type AccrualRunDTO struct {
	ID            string  `json:"id"`
	EffectiveDate string  `json:"effective_date,omitempty"`
	Trigger       string  `json:"trigger"`
	Status        string  `json:"status"`
	Credited      int     `json:"credited"`
	Skipped       int     `json:"skipped"`
	Failed        int     `json:"failed"`
	Error         string  `json:"error,omitempty"`
	StartedAt     string  `json:"started_at"`
	CompletedAt   *string `json:"completed_at,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func toPunchDTO(p attendance.PunchEvent) PunchDTO {
	dto := PunchDTO{
		ID:            p.ID,
		EmployeeID:    string(p.EmployeeID),
		OrgID:         string(p.OrgID),
		PunchTime:     p.PunchTime.UTC().Format(time.RFC3339),
		PunchType:     string(p.PunchType),
		Source:        p.Source,
		DeviceInfo:    p.DeviceInfo,
		IsManualEntry: p.IsManualEntry,
	}
	if p.GeoLocation != nil {
		dto.GeoLocation = &GeoPointDTO{Latitude: p.GeoLocation.Latitude, Longitude: p.GeoLocation.Longitude}
	}
	return dto
}

func toShiftSnapshotDTO(s attendance.ShiftSnapshot) ShiftSnapshotDTO {
	return ShiftSnapshotDTO{
		StartTime:    s.StartTime.String(),
		EndTime:      s.EndTime.String(),
		GraceMinutes: s.GraceMinutes,
		WorkingHours: s.WorkingHours.InexactFloat64(),
	}
}

func toRecordDTO(r attendance.Record) AttendanceRecordDTO {
	dto := AttendanceRecordDTO{
		EmployeeID:        string(r.EmployeeID),
		OrgID:             string(r.OrgID),
		Date:              r.Date.String(),
		FirstCheckIn:      formatTimePtr(r.FirstCheckIn),
		LastCheckOut:      formatTimePtr(r.LastCheckOut),
		TotalWorkMinutes:  r.TotalWorkMinutes,
		TotalBreakMinutes: r.TotalBreakMinutes,
		LateMinutes:       r.LateMinutes,
		EarlyExitMinutes:  r.EarlyExitMinutes,
		OvertimeMinutes:   r.OvertimeMinutes,
		Status:            string(r.Status),
	}
	if r.Shift != nil {
		s := toShiftSnapshotDTO(*r.Shift)
		dto.Shift = &s
	}
	return dto
}

func toEntryDTO(e ledger.Entry) EntryDTO {
	return EntryDTO{
		ID:             string(e.ID),
		EmployeeID:     string(e.EmployeeID),
		LeaveTypeID:    string(e.LeaveTypeID),
		EntryType:      string(e.EntryType),
		Quantity:       e.Quantity.InexactFloat64(),
		EffectiveDate:  e.EffectiveDate.String(),
		ReferenceType:  string(e.ReferenceType),
		ReferenceID:    e.ReferenceID,
		ReversesID:     string(e.ReversesID),
		Reason:         e.Reason,
		IdempotencyKey: e.IdempotencyKey,
		CreatedAt:      e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toBalanceDTO(b ledger.Balance, maxBalance *decimal.Decimal) BalanceDTO {
	dto := BalanceDTO{
		EmployeeID:  string(b.EmployeeID),
		LeaveTypeID: string(b.LeaveTypeID),
		AsOf:        b.AsOf.String(),
		Balance:     b.Balance.Value.InexactFloat64(),
		Credited:    b.Credited.Value.InexactFloat64(),
		Debited:     b.Debited.Value.InexactFloat64(),
		Adjusted:    b.Adjusted.Value.InexactFloat64(),
		Reversed:    b.Reversed.Value.InexactFloat64(),
	}
	if maxBalance != nil {
		m := maxBalance.InexactFloat64()
		dto.MaxBalance = &m
		dto.ExceedsCap = b.Balance.Value.GreaterThan(*maxBalance)
	}
	return dto
}

func toEmployeeDTO(e leave.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:          string(e.ID),
		OrgID:       string(e.OrgID),
		Name:        e.Name,
		JoiningDate: e.JoiningDate.String(),
		Active:      e.Active,
	}
}

func toLeaveWindowDTO(w leave.Window) LeaveWindowDTO {
	return LeaveWindowDTO{
		ID:         w.ID,
		EmployeeID: string(w.EmployeeID),
		OrgID:      string(w.OrgID),
		StartDate:  w.Start.String(),
		EndDate:    w.End.String(),
		Status:     string(w.Status),
	}
}

func toAccrualReportDTO(runID string, r *leave.AccrualReport) AccrualReportDTO {
	dto := AccrualReportDTO{
		RunID:         runID,
		EffectiveDate: r.EffectiveDate.String(),
		Credited:      r.Credited,
		Skipped:       r.Skipped,
		Failures:      make([]AccrualFailureDTO, 0, len(r.Failures)),
	}
	for _, f := range r.Failures {
		dto.Failures = append(dto.Failures, AccrualFailureDTO{
			PolicyID:    string(f.PolicyID),
			EmployeeID:  string(f.EmployeeID),
			LeaveTypeID: string(f.LeaveTypeID),
			Error:       f.Err.Error(),
		})
	}
	return dto
}

func toAccrualRunDTO(r sqlite.AccrualRun) AccrualRunDTO {
	dto := AccrualRunDTO{
		ID:          r.ID,
		Trigger:     r.Trigger,
		Status:      r.Status,
		Credited:    r.Credited,
		Skipped:     r.Skipped,
		Failed:      r.Failed,
		Error:       r.Error,
		StartedAt:   r.StartedAt.UTC().Format(time.RFC3339),
		CompletedAt: formatTimePtr(r.CompletedAt),
	}
	if !r.EffectiveDate.IsZero() {
		dto.EffectiveDate = r.EffectiveDate.String()
	}
	return dto
}

func parseOptionalDate(s string, fallback generic.TimePoint) (generic.TimePoint, error) {
	if s == "" {
		return fallback, nil
	}
	return generic.ParseDate(s)
}
