/*
reconciler.go - Daily attendance reconciliation

PURPOSE:
  Reconcile(org, employee, date) recomputes the whole AttendanceRecord for
  that day from scratch and upserts it. It never patches a prior record.

ALGORITHM:
  1. Load all punches in [start-of-day, end-of-day), sort ascending
  2. Pair intervals (work / break), find first IN and last OUT
  3. Ask the leave-window oracle whether the day is covered by leave
  4. Snapshot the shift; derive late / early exit / overtime when present
  5. Status: ON_LEAVE > PRESENT > ABSENT
  6. Upsert keyed by (employee, date)

FAILURE SEMANTICS:
  - Punch store or record store failure: returned as generic.TransientError.
    Retrying is safe because the operation is a full recompute + upsert.
  - Shift resolver or leave oracle failure: logged, treated as "no data".
    Lateness fields stay zero; status falls back to punches.

CONCURRENCY:
  Runs for the same (employee, date) are serialised in-process so concurrent
  triggers don't do redundant work. Correctness doesn't depend on it: each
  run re-reads every punch and replaces the record wholesale.
*/
package attendance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/attendance-ledger/generic"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// PunchStore is the append-only punch log.
type PunchStore interface {
	// PunchesBetween returns punches with from <= punch_time < to.
	PunchesBetween(ctx context.Context, employeeID generic.EmployeeID, from, to time.Time) ([]PunchEvent, error)
}

// ShiftResolver returns the employee's assigned shift, or nil when none.
type ShiftResolver interface {
	ResolveShift(ctx context.Context, employeeID generic.EmployeeID, orgID generic.OrgID) (*ShiftSnapshot, error)
}

// LeaveWindowOracle reports whether an approved or submitted leave request
// covers the date.
type LeaveWindowOracle interface {
	OnLeave(ctx context.Context, employeeID generic.EmployeeID, orgID generic.OrgID, date generic.TimePoint) (bool, error)
}

// RecordStore persists attendance records keyed by (employee, date).
type RecordStore interface {
	// UpsertRecord replaces any record for the same key wholesale.
	UpsertRecord(ctx context.Context, r Record) error

	// GetRecord returns the record or nil when none exists.
	GetRecord(ctx context.Context, employeeID generic.EmployeeID, date generic.TimePoint) (*Record, error)

	// RecordsInRange returns records with from <= date <= to, ordered by date.
	RecordsInRange(ctx context.Context, employeeID generic.EmployeeID, from, to generic.TimePoint) ([]Record, error)
}

// =============================================================================
// RECONCILER
// =============================================================================

type Reconciler struct {
	Punches PunchStore
	Shifts  ShiftResolver
	Leave   LeaveWindowOracle
	Records RecordStore

	// Location defines calendar days and shift wall-clock times.
	Location *time.Location
	Logger   *slog.Logger

	locks keyedMutex
}

// NewReconciler wires a reconciler. Shifts and Leave may be nil.
func NewReconciler(punches PunchStore, shifts ShiftResolver, leave LeaveWindowOracle, records RecordStore, loc *time.Location, logger *slog.Logger) *Reconciler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		Punches:  punches,
		Shifts:   shifts,
		Leave:    leave,
		Records:  records,
		Location: loc,
		Logger:   logger.With("component", "reconciler"),
	}
}

// Reconcile recomputes and upserts the record for (employeeID, date).
func (r *Reconciler) Reconcile(ctx context.Context, orgID generic.OrgID, employeeID generic.EmployeeID, date generic.TimePoint) (Record, error) {
	unlock := r.locks.lock(string(employeeID) + "|" + date.String())
	defer unlock()

	from, to := date.DayBounds(r.Location)
	punches, err := r.Punches.PunchesBetween(ctx, employeeID, from, to)
	if err != nil {
		return Record{}, generic.Transient("load punches", err)
	}

	rec := r.compute(ctx, orgID, employeeID, date, SortPunches(punches))

	if err := r.Records.UpsertRecord(ctx, rec); err != nil {
		return Record{}, generic.Transient("upsert attendance record", err)
	}
	return rec, nil
}

// ReconcileRange re-runs Reconcile for every date in [from, to]. It stops at
// the first failure; days already written stay written and a retry converges.
func (r *Reconciler) ReconcileRange(ctx context.Context, orgID generic.OrgID, employeeID generic.EmployeeID, from, to generic.TimePoint) ([]Record, error) {
	if to.Before(from) {
		return nil, generic.ErrInvalidPeriod
	}
	var out []Record
	for d := from; d.BeforeOrEqual(to); d = d.AddDays(1) {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		rec, err := r.Reconcile(ctx, orgID, employeeID, d)
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *Reconciler) compute(ctx context.Context, orgID generic.OrgID, employeeID generic.EmployeeID, date generic.TimePoint, punches []PunchEvent) Record {
	sum := PairIntervals(punches)
	if sum.OpenSince != nil {
		r.Logger.Debug("trailing IN left unpaired",
			"employee_id", employeeID, "date", date.String(), "open_since", sum.OpenSince.Format(time.RFC3339))
	}

	rec := Record{
		EmployeeID:        employeeID,
		OrgID:             orgID,
		Date:              date,
		FirstCheckIn:      sum.FirstCheckIn,
		LastCheckOut:      sum.LastCheckOut,
		TotalWorkMinutes:  sum.WorkMinutes(),
		TotalBreakMinutes: sum.BreakMinutes(),
	}

	onLeave := r.onLeave(ctx, orgID, employeeID, date)

	if shift := r.resolveShift(ctx, orgID, employeeID); shift != nil {
		snap := *shift
		rec.Shift = &snap
		if rec.FirstCheckIn != nil {
			rec.LateMinutes = snap.LateMinutes(date, r.Location, *rec.FirstCheckIn)
		}
		if rec.LastCheckOut != nil {
			rec.EarlyExitMinutes = snap.EarlyExitMinutes(date, r.Location, *rec.LastCheckOut)
		}
		rec.OvertimeMinutes = snap.OvertimeMinutes(rec.TotalWorkMinutes)
	}

	rec.Status = deriveStatus(onLeave, rec.FirstCheckIn != nil)
	return rec
}

func deriveStatus(onLeave, checkedIn bool) Status {
	switch {
	case onLeave:
		return StatusOnLeave
	case checkedIn:
		return StatusPresent
	default:
		return StatusAbsent
	}
}

func (r *Reconciler) onLeave(ctx context.Context, orgID generic.OrgID, employeeID generic.EmployeeID, date generic.TimePoint) bool {
	if r.Leave == nil {
		return false
	}
	on, err := r.Leave.OnLeave(ctx, employeeID, orgID, date)
	if err != nil {
		r.Logger.Warn("leave window lookup failed, assuming not on leave",
			"employee_id", employeeID, "date", date.String(), "error", err)
		return false
	}
	return on
}

func (r *Reconciler) resolveShift(ctx context.Context, orgID generic.OrgID, employeeID generic.EmployeeID) *ShiftSnapshot {
	if r.Shifts == nil {
		return nil
	}
	shift, err := r.Shifts.ResolveShift(ctx, employeeID, orgID)
	if err != nil {
		r.Logger.Warn("shift lookup failed, skipping lateness",
			"employee_id", employeeID, "error", err)
		return nil
	}
	return shift
}

// =============================================================================
// KEYED MUTEX
// =============================================================================

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
