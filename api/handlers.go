/*
handlers.go - HTTP API handlers for the attendance and leave ledger engine

PURPOSE:
  Exposes the reconciler, the ledger and the accrual batch over a small REST
  surface. Handles HTTP request/response, JSON serialization and validation,
  and delegates to domain logic.

ENDPOINTS:
  Attendance:
    POST   /api/punches                         Ingest a punch, reconcile its day
                                                (idempotent per punch id)
    POST   /api/attendance/reconcile            Recompute one day or a range
    GET    /api/employees/{id}/attendance       Records in [from, to]

  Ledger:
    GET    /api/employees/{id}/balance          Balance as of a date
    GET    /api/employees/{id}/ledger           Entry history
    POST   /api/ledger/entries                  Manual CREDIT/DEBIT/ADJUSTMENT
    POST   /api/ledger/entries/{id}/reverse     Net out an entry

  Admin:
    POST   /api/admin/accrual/run               Run the accrual batch now
    GET    /api/admin/accrual/runs              Accrual run history

  Collaborator data:
    POST   /api/employees, POST|GET /api/policies, POST /api/shifts,
    POST   /api/shifts/assignments, POST /api/leave-windows

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (duplicate entry, already reversed)
  - 503: Store unavailable (safe to retry)
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. Callers are trusted internal systems.

SEE ALSO:
  - dto.go: Request/response data structures
  - scheduler.go: Accrual trigger and run recording
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/attendance-ledger/attendance"
	"github.com/warp/attendance-ledger/generic"
	"github.com/warp/attendance-ledger/ledger"
	"github.com/warp/attendance-ledger/leave"
	"github.com/warp/attendance-ledger/store/sqlite"
)

// maxRangeDays bounds attendance range queries and range reconciliation.
const maxRangeDays = 366

var hoursPerDay = decimal.NewFromInt(24)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      *sqlite.Store
	Ledger     *ledger.DefaultLedger
	Reconciler *attendance.Reconciler
	Accrual    *AccrualTrigger

	// Location decides which calendar day "today" and a punch fall on.
	Location *time.Location
	Logger   *slog.Logger

	validate *validator.Validate
	now      func() time.Time
	newID    func() string
}

// NewHandler wires handlers over the store and the domain services.
func NewHandler(store *sqlite.Store, l *ledger.DefaultLedger, rec *attendance.Reconciler, trigger *AccrualTrigger, loc *time.Location, logger *slog.Logger) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Store:      store,
		Ledger:     l,
		Reconciler: rec,
		Accrual:    trigger,
		Location:   loc,
		Logger:     logger.With("component", "api"),
		validate:   newValidator(),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (h *Handler) today() generic.TimePoint {
	return generic.DateOf(h.now(), h.Location)
}

// =============================================================================
// ATTENDANCE HANDLERS
// =============================================================================

// IngestPunch stores a punch and reconciles the day it falls on. Posting a
// punch id that is already stored reconciles that punch's day again and
// answers 200, so a request that failed mid-way can be retried as is.
func (h *Handler) IngestPunch(w http.ResponseWriter, r *http.Request) {
	var req PunchRequest
	if !h.decode(w, r, &req) {
		return
	}

	punchType, err := attendance.ParsePunchType(req.PunchType)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid punch_type", err)
		return
	}

	p := attendance.PunchEvent{
		ID:            req.ID,
		EmployeeID:    generic.EmployeeID(req.EmployeeID),
		OrgID:         generic.OrgID(req.OrgID),
		PunchTime:     req.PunchTime,
		PunchType:     punchType,
		Source:        req.Source,
		DeviceInfo:    req.DeviceInfo,
		IsManualEntry: req.IsManualEntry,
	}
	if p.ID == "" {
		p.ID = h.newID()
	}
	if req.GeoLocation != nil {
		p.GeoLocation = &attendance.GeoPoint{Latitude: req.GeoLocation.Latitude, Longitude: req.GeoLocation.Longitude}
	}
	if err := p.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid punch", err)
		return
	}

	ctx := r.Context()
	status := http.StatusCreated
	if err := h.Store.AppendPunch(ctx, p); err != nil {
		if !errors.Is(err, generic.ErrDuplicateEntry) {
			writeDomainError(w, "Failed to record punch", generic.Transient("append punch", err))
			return
		}
		// Replay of a stored punch id: reconcile the stored punch's day again.
		stored, getErr := h.Store.GetPunch(ctx, p.ID)
		if getErr != nil {
			writeDomainError(w, "Failed to record punch", generic.Transient("load punch", getErr))
			return
		}
		if stored == nil {
			writeDomainError(w, "Failed to record punch", err)
			return
		}
		h.Logger.Info("punch already recorded, reconciling again",
			"punch_id", p.ID, "employee_id", stored.EmployeeID)
		p = *stored
		status = http.StatusOK
	}

	date := generic.DateOf(p.PunchTime, h.Location)
	rec, err := h.Reconciler.Reconcile(ctx, p.OrgID, p.EmployeeID, date)
	if err != nil {
		// The punch is stored; retrying the same punch or an explicit
		// reconcile call will bring the record up to date.
		h.Logger.Warn("reconcile after punch failed",
			"employee_id", p.EmployeeID, "date", date.String(), "error", err)
		writeDomainError(w, "Punch recorded but reconciliation failed", err)
		return
	}

	dto := toRecordDTO(rec)
	writeJSON(w, status, PunchResponse{Punch: toPunchDTO(p), Record: &dto})
}

// Reconcile recomputes one day, or each day of a range.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if !h.decode(w, r, &req) {
		return
	}

	orgID := generic.OrgID(req.OrgID)
	employeeID := generic.EmployeeID(req.EmployeeID)
	ctx := r.Context()

	if req.Date != "" {
		date, err := generic.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date", err)
			return
		}
		rec, err := h.Reconciler.Reconcile(ctx, orgID, employeeID, date)
		if err != nil {
			writeDomainError(w, "Failed to reconcile", err)
			return
		}
		writeJSON(w, http.StatusOK, []AttendanceRecordDTO{toRecordDTO(rec)})
		return
	}

	from, to, ok := parseRange(w, req.From, req.To, h.today())
	if !ok {
		return
	}
	records, err := h.Reconciler.ReconcileRange(ctx, orgID, employeeID, from, to)
	if err != nil {
		writeDomainError(w, fmt.Sprintf("Failed to reconcile range (%d days done)", len(records)), err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTOs(records))
}

// GetAttendance returns stored records for an employee in [from, to].
// Both default to today.
func (h *Handler) GetAttendance(w http.ResponseWriter, r *http.Request) {
	employeeID := generic.EmployeeID(chi.URLParam(r, "id"))
	q := r.URL.Query()

	from, to, ok := parseRange(w, q.Get("from"), q.Get("to"), h.today())
	if !ok {
		return
	}

	records, err := h.Store.RecordsInRange(r.Context(), employeeID, from, to)
	if err != nil {
		writeDomainError(w, "Failed to load attendance", generic.Transient("load attendance records", err))
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTOs(records))
}

func toRecordDTOs(records []attendance.Record) []AttendanceRecordDTO {
	dtos := make([]AttendanceRecordDTO, len(records))
	for i, rec := range records {
		dtos[i] = toRecordDTO(rec)
	}
	return dtos
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// GetBalance returns the derived balance of one leave type as of a date
// (default today), with the policy cap for reference.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	employeeID := generic.EmployeeID(chi.URLParam(r, "id"))
	q := r.URL.Query()

	leaveType := q.Get("leave_type")
	if leaveType == "" {
		writeError(w, http.StatusBadRequest, "leave_type is required", nil)
		return
	}
	asOf, err := parseOptionalDate(q.Get("as_of"), h.today())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of", err)
		return
	}

	ctx := r.Context()
	balance, err := h.Ledger.Calc.Breakdown(ctx, employeeID, generic.LeaveTypeID(leaveType), asOf)
	if err != nil {
		writeDomainError(w, "Failed to compute balance", err)
		return
	}

	writeJSON(w, http.StatusOK, toBalanceDTO(balance, h.capFor(r, employeeID, generic.LeaveTypeID(leaveType), asOf)))
}

// capFor looks up max_balance for display. Lookup failures only drop the cap.
func (h *Handler) capFor(r *http.Request, employeeID generic.EmployeeID, leaveTypeID generic.LeaveTypeID, asOf generic.TimePoint) *decimal.Decimal {
	ctx := r.Context()
	emp, err := h.Store.GetEmployee(ctx, employeeID)
	if err != nil || emp == nil {
		if err != nil {
			h.Logger.Warn("employee lookup for balance cap failed", "employee_id", employeeID, "error", err)
		}
		return nil
	}
	policies, err := h.Store.PoliciesForOrg(ctx, emp.OrgID, asOf)
	if err != nil {
		h.Logger.Warn("policy lookup for balance cap failed", "org_id", emp.OrgID, "error", err)
		return nil
	}
	for _, p := range policies {
		if rule, ok := p.RuleFor(leaveTypeID); ok && rule.MaxBalance != nil {
			return rule.MaxBalance
		}
	}
	return nil
}

// GetLedger returns the entry history of one leave type.
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	employeeID := generic.EmployeeID(chi.URLParam(r, "id"))
	leaveType := r.URL.Query().Get("leave_type")
	if leaveType == "" {
		writeError(w, http.StatusBadRequest, "leave_type is required", nil)
		return
	}

	entries, err := h.Ledger.Entries(r.Context(), employeeID, generic.LeaveTypeID(leaveType))
	if err != nil {
		writeDomainError(w, "Failed to load ledger", err)
		return
	}

	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateEntry appends a manual ledger entry.
func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req CreateEntryRequest
	if !h.decode(w, r, &req) {
		return
	}

	entryType, err := ledger.ParseEntryType(req.EntryType)
	if err != nil {
		writeDomainError(w, "Invalid entry_type", err)
		return
	}
	refType := ledger.RefAdmin
	if req.ReferenceType != "" {
		if refType, err = ledger.ParseReferenceType(req.ReferenceType); err != nil {
			writeDomainError(w, "Invalid reference_type", err)
			return
		}
	}
	effective, err := generic.ParseDate(req.EffectiveDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_date", err)
		return
	}

	entry, err := h.Ledger.Append(r.Context(), ledger.Entry{
		EmployeeID:     generic.EmployeeID(req.EmployeeID),
		LeaveTypeID:    generic.LeaveTypeID(req.LeaveTypeID),
		EntryType:      entryType,
		Quantity:       req.Quantity,
		EffectiveDate:  effective,
		ReferenceType:  refType,
		ReferenceID:    req.ReferenceID,
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeDomainError(w, "Failed to append entry", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(entry))
}

// ReverseEntry appends a REVERSAL of the entry in the path.
func (h *Handler) ReverseEntry(w http.ResponseWriter, r *http.Request) {
	targetID := generic.EntryID(chi.URLParam(r, "id"))

	var req ReverseEntryRequest
	if !h.decode(w, r, &req) {
		return
	}

	var (
		effective generic.TimePoint
		refType   ledger.ReferenceType
		err       error
	)
	if req.EffectiveDate != "" {
		if effective, err = generic.ParseDate(req.EffectiveDate); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid effective_date", err)
			return
		}
	}
	if req.ReferenceType != "" {
		if refType, err = ledger.ParseReferenceType(req.ReferenceType); err != nil {
			writeDomainError(w, "Invalid reference_type", err)
			return
		}
	}

	entry, err := h.Ledger.Reverse(r.Context(), ledger.ReversalRequest{
		TargetID:      targetID,
		EffectiveDate: effective,
		ReferenceType: refType,
		ReferenceID:   req.ReferenceID,
		Reason:        req.Reason,
	})
	if err != nil {
		writeDomainError(w, "Failed to reverse entry", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(entry))
}

// =============================================================================
// ACCRUAL HANDLERS
// =============================================================================

// RunAccrual runs the accrual batch for the month of as_of (default today).
// Re-running for a month already credited is harmless.
func (h *Handler) RunAccrual(w http.ResponseWriter, r *http.Request) {
	var req RunAccrualRequest
	if r.ContentLength != 0 {
		if !h.decode(w, r, &req) {
			return
		}
	}

	asOf := h.now()
	if req.AsOf != "" {
		d, err := generic.ParseDate(req.AsOf)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of", err)
			return
		}
		// Noon avoids the date shifting when read back in Location.
		asOf = time.Date(d.Year(), d.Month(), d.Day(), 12, 0, 0, 0, h.Location)
	}

	runID, report, err := h.Accrual.RunOnce(r.Context(), asOf, TriggerManual)
	if err != nil {
		writeDomainError(w, "Accrual run failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccrualReportDTO(runID, report))
}

// ListAccrualRuns returns recent accrual runs, newest first.
func (h *Handler) ListAccrualRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.ListAccrualRuns(r.Context(), 100)
	if err != nil {
		writeDomainError(w, "Failed to list accrual runs", generic.Transient("list accrual runs", err))
		return
	}
	dtos := make([]AccrualRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toAccrualRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// COLLABORATOR DATA HANDLERS
// =============================================================================

// CreateEmployee creates or updates a roster entry.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if !h.decode(w, r, &req) {
		return
	}
	joining, err := generic.ParseDate(req.JoiningDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid joining_date", err)
		return
	}

	emp := leave.Employee{
		ID:          generic.EmployeeID(req.ID),
		OrgID:       generic.OrgID(req.OrgID),
		Name:        req.Name,
		JoiningDate: joining,
		Active:      req.Active == nil || *req.Active,
	}
	if err := h.Store.SaveEmployee(r.Context(), emp); err != nil {
		writeDomainError(w, "Failed to save employee", generic.Transient("save employee", err))
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(emp))
}

func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id := generic.EmployeeID(chi.URLParam(r, "id"))
	emp, err := h.Store.GetEmployee(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get employee", generic.Transient("get employee", err))
		return
	}
	if emp == nil {
		writeError(w, http.StatusNotFound, "Employee not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(*emp))
}

// ListPolicies returns every stored policy in its JSON form.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.Store.ListPolicies(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list policies", generic.Transient("list policies", err))
		return
	}
	dtos := make([]leave.PolicyJSON, len(policies))
	for i, p := range policies {
		dtos[i] = leave.ToJSON(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePolicy validates and stores a policy definition.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	var pj leave.PolicyJSON
	if err := json.NewDecoder(r.Body).Decode(&pj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	policy, err := pj.ToPolicy()
	if err != nil {
		writeDomainError(w, "Invalid policy", err)
		return
	}
	if err := h.Store.SavePolicy(r.Context(), *policy); err != nil {
		writeDomainError(w, "Failed to save policy", generic.Transient("save policy", err))
		return
	}
	writeJSON(w, http.StatusCreated, leave.ToJSON(*policy))
}

// CreateShift creates or updates a shift definition.
func (h *Handler) CreateShift(w http.ResponseWriter, r *http.Request) {
	var req CreateShiftRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, err := generic.ParseClockTime(req.StartTime)
	if err != nil {
		writeDomainError(w, "Invalid start_time", err)
		return
	}
	end, err := generic.ParseClockTime(req.EndTime)
	if err != nil {
		writeDomainError(w, "Invalid end_time", err)
		return
	}
	if req.WorkingHours.IsNegative() || req.WorkingHours.GreaterThan(hoursPerDay) {
		writeError(w, http.StatusBadRequest, "working_hours must be between 0 and 24", nil)
		return
	}

	shift := sqlite.Shift{
		ID:           req.ID,
		OrgID:        generic.OrgID(req.OrgID),
		Name:         req.Name,
		StartTime:    start,
		EndTime:      end,
		GraceMinutes: req.GraceMinutes,
		WorkingHours: req.WorkingHours,
	}
	if err := h.Store.SaveShift(r.Context(), shift); err != nil {
		writeDomainError(w, "Failed to save shift", generic.Transient("save shift", err))
		return
	}
	writeJSON(w, http.StatusCreated, ShiftDTO{
		ID:    shift.ID,
		OrgID: string(shift.OrgID),
		Name:  shift.Name,
		Shift: toShiftSnapshotDTO(shift.Snapshot()),
	})
}

// AssignShift sets an employee's current shift. Existing attendance records
// keep their snapshot until reconciled again.
func (h *Handler) AssignShift(w http.ResponseWriter, r *http.Request) {
	var req AssignShiftRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.Store.AssignShift(r.Context(), generic.EmployeeID(req.EmployeeID), req.ShiftID); err != nil {
		writeDomainError(w, "Failed to assign shift", generic.Transient("assign shift", err))
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// CreateLeaveWindow records the date range of a leave request.
func (h *Handler) CreateLeaveWindow(w http.ResponseWriter, r *http.Request) {
	var req CreateLeaveWindowRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, err := generic.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date", err)
		return
	}
	end, err := generic.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date", err)
		return
	}
	if end.Before(start) {
		writeDomainError(w, "Invalid leave window", generic.ErrInvalidPeriod)
		return
	}
	status, err := leave.ParseWindowStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid status", err)
		return
	}

	win := leave.Window{
		ID:         req.ID,
		EmployeeID: generic.EmployeeID(req.EmployeeID),
		OrgID:      generic.OrgID(req.OrgID),
		Start:      start,
		End:        end,
		Status:     status,
	}
	if win.ID == "" {
		win.ID = h.newID()
	}
	if err := h.Store.SaveLeaveWindow(r.Context(), win); err != nil {
		writeDomainError(w, "Failed to save leave window", generic.Transient("save leave window", err))
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveWindowDTO(win))
}

// Health reports whether the database answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError picks the status from the error's category.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusFor(err), message, err)
}

func statusFor(err error) int {
	switch {
	case generic.IsClientError(err):
		return http.StatusBadRequest
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case generic.IsConflict(err):
		return http.StatusConflict
	case generic.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into dst and runs struct validation. It writes
// the 400 response itself and returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", validationError(err))
		return false
	}
	return true
}

// validationError flattens validator errors into one readable message.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// parseRange parses an inclusive [from, to] date range, each defaulting to
// fallback, and enforces maxRangeDays.
func parseRange(w http.ResponseWriter, fromStr, toStr string, fallback generic.TimePoint) (generic.TimePoint, generic.TimePoint, bool) {
	from, err := parseOptionalDate(fromStr, fallback)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from", err)
		return from, from, false
	}
	to, err := parseOptionalDate(toStr, from)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to", err)
		return from, to, false
	}
	if to.Before(from) {
		writeDomainError(w, "Invalid range", generic.ErrInvalidPeriod)
		return from, to, false
	}
	if to.After(from.AddDays(maxRangeDays - 1)) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Range exceeds %d days", maxRangeDays), nil)
		return from, to, false
	}
	return from, to, true
}
