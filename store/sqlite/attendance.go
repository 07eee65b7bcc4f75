package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/attendance-ledger/attendance"
	"github.com/warp/attendance-ledger/generic"
)

// =============================================================================
// PUNCH STORE (attendance.PunchStore interface)
// =============================================================================

// AppendPunch records a punch. Punches are never updated.
func (s *Store) AppendPunch(ctx context.Context, p attendance.PunchEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lat, lng sql.NullFloat64
	if p.GeoLocation != nil {
		lat = sql.NullFloat64{Float64: p.GeoLocation.Latitude, Valid: true}
		lng = sql.NullFloat64{Float64: p.GeoLocation.Longitude, Valid: true}
	}

	query := `
		INSERT INTO punches (id, employee_id, org_id, punch_time, punch_type,
			source, device_info, latitude, longitude, is_manual_entry, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.EmployeeID, p.OrgID, formatInstant(p.PunchTime), p.PunchType,
		nullString(p.Source), nullString(p.DeviceInfo), lat, lng, p.IsManualEntry,
		formatInstant(s.now()),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("punch %s: %w", p.ID, generic.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to append punch: %w", err)
	}
	return nil
}

const punchColumns = `id, employee_id, org_id, punch_time, punch_type, source, device_info,
	latitude, longitude, is_manual_entry`

// PunchesBetween returns punches with from <= punch_time < to, in punch time
// order and insertion order on ties.
func (s *Store) PunchesBetween(ctx context.Context, employeeID generic.EmployeeID, from, to time.Time) ([]attendance.PunchEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryPunches(ctx, `
		SELECT `+punchColumns+`
		FROM punches
		WHERE employee_id = ? AND punch_time >= ? AND punch_time < ?
		ORDER BY punch_time ASC, rowid ASC`,
		employeeID, formatInstant(from), formatInstant(to),
	)
}

// GetPunch returns the stored punch with the given id, or nil.
func (s *Store) GetPunch(ctx context.Context, id string) (*attendance.PunchEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	punches, err := s.queryPunches(ctx, "SELECT "+punchColumns+" FROM punches WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(punches) == 0 {
		return nil, nil
	}
	return &punches[0], nil
}

func (s *Store) queryPunches(ctx context.Context, query string, args ...any) ([]attendance.PunchEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query punches: %w", err)
	}
	defer rows.Close()

	var punches []attendance.PunchEvent
	for rows.Next() {
		var (
			p                   attendance.PunchEvent
			punchTime           string
			source, deviceInfo  sql.NullString
			latitude, longitude sql.NullFloat64
		)
		if err := rows.Scan(&p.ID, &p.EmployeeID, &p.OrgID, &punchTime, &p.PunchType,
			&source, &deviceInfo, &latitude, &longitude, &p.IsManualEntry); err != nil {
			return nil, fmt.Errorf("failed to scan punch: %w", err)
		}
		if p.PunchTime, err = parseInstant(punchTime); err != nil {
			return nil, fmt.Errorf("punch %s: bad punch_time: %w", p.ID, err)
		}
		p.Source = source.String
		p.DeviceInfo = deviceInfo.String
		if latitude.Valid && longitude.Valid {
			p.GeoLocation = &attendance.GeoPoint{Latitude: latitude.Float64, Longitude: longitude.Float64}
		}
		punches = append(punches, p)
	}
	return punches, rows.Err()
}

// =============================================================================
// RECORD STORE (attendance.RecordStore interface)
// =============================================================================

const recordColumns = `employee_id, org_id, date, shift_start, shift_end, shift_grace_minutes,
	shift_working_hours, first_check_in, last_check_out, total_work_minutes,
	total_break_minutes, late_minutes, early_exit_minutes, overtime_minutes, status`

// UpsertRecord replaces the record for (employee, date) wholesale.
func (s *Store) UpsertRecord(ctx context.Context, r attendance.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		shiftStart, shiftEnd, workingHours sql.NullString
		grace                              sql.NullInt64
	)
	if r.Shift != nil {
		shiftStart = sql.NullString{String: r.Shift.StartTime.String(), Valid: true}
		shiftEnd = sql.NullString{String: r.Shift.EndTime.String(), Valid: true}
		grace = sql.NullInt64{Int64: int64(r.Shift.GraceMinutes), Valid: true}
		workingHours = sql.NullString{String: r.Shift.WorkingHours.String(), Valid: true}
	}

	query := `
		INSERT INTO attendance_records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(employee_id, date) DO UPDATE SET
			org_id = excluded.org_id,
			shift_start = excluded.shift_start,
			shift_end = excluded.shift_end,
			shift_grace_minutes = excluded.shift_grace_minutes,
			shift_working_hours = excluded.shift_working_hours,
			first_check_in = excluded.first_check_in,
			last_check_out = excluded.last_check_out,
			total_work_minutes = excluded.total_work_minutes,
			total_break_minutes = excluded.total_break_minutes,
			late_minutes = excluded.late_minutes,
			early_exit_minutes = excluded.early_exit_minutes,
			overtime_minutes = excluded.overtime_minutes,
			status = excluded.status
	`
	_, err := s.db.ExecContext(ctx, query,
		r.EmployeeID, r.OrgID, formatDate(r.Date),
		shiftStart, shiftEnd, grace, workingHours,
		nullInstant(r.FirstCheckIn), nullInstant(r.LastCheckOut),
		r.TotalWorkMinutes, r.TotalBreakMinutes, r.LateMinutes,
		r.EarlyExitMinutes, r.OvertimeMinutes, r.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert attendance record: %w", err)
	}
	return nil
}

// GetRecord returns the record for (employee, date), or nil.
func (s *Store) GetRecord(ctx context.Context, employeeID generic.EmployeeID, date generic.TimePoint) (*attendance.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := s.queryRecords(ctx,
		"SELECT "+recordColumns+" FROM attendance_records WHERE employee_id = ? AND date = ?",
		employeeID, formatDate(date))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// RecordsInRange returns records with from <= date <= to, by date.
func (s *Store) RecordsInRange(ctx context.Context, employeeID generic.EmployeeID, from, to generic.TimePoint) ([]attendance.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryRecords(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE employee_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC`,
		employeeID, formatDate(from), formatDate(to))
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]attendance.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance records: %w", err)
	}
	defer rows.Close()

	var records []attendance.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func scanRecord(rows *sql.Rows) (attendance.Record, error) {
	var (
		r                                  attendance.Record
		date                               string
		shiftStart, shiftEnd, workingHours sql.NullString
		grace                              sql.NullInt64
		firstIn, lastOut                   sql.NullString
	)
	err := rows.Scan(&r.EmployeeID, &r.OrgID, &date,
		&shiftStart, &shiftEnd, &grace, &workingHours,
		&firstIn, &lastOut,
		&r.TotalWorkMinutes, &r.TotalBreakMinutes, &r.LateMinutes,
		&r.EarlyExitMinutes, &r.OvertimeMinutes, &r.Status)
	if err != nil {
		return r, fmt.Errorf("failed to scan attendance record: %w", err)
	}

	if r.Date, err = generic.ParseDate(date); err != nil {
		return r, err
	}
	if r.FirstCheckIn, err = parseNullInstant(firstIn); err != nil {
		return r, err
	}
	if r.LastCheckOut, err = parseNullInstant(lastOut); err != nil {
		return r, err
	}
	if shiftStart.Valid {
		snap := attendance.ShiftSnapshot{GraceMinutes: int(grace.Int64)}
		if snap.StartTime, err = generic.ParseClockTime(shiftStart.String); err != nil {
			return r, err
		}
		if snap.EndTime, err = generic.ParseClockTime(shiftEnd.String); err != nil {
			return r, err
		}
		if snap.WorkingHours, err = decimal.NewFromString(workingHours.String); err != nil {
			return r, err
		}
		r.Shift = &snap
	}
	return r, nil
}

// =============================================================================
// SHIFTS (attendance.ShiftResolver interface)
// =============================================================================

// Shift is a shift definition. Attendance records copy it as a snapshot.
type Shift struct {
	ID           string
	OrgID        generic.OrgID
	Name         string
	StartTime    generic.ClockTime
	EndTime      generic.ClockTime
	GraceMinutes int
	WorkingHours decimal.Decimal
}

func (sh Shift) Snapshot() attendance.ShiftSnapshot {
	return attendance.ShiftSnapshot{
		StartTime:    sh.StartTime,
		EndTime:      sh.EndTime,
		GraceMinutes: sh.GraceMinutes,
		WorkingHours: sh.WorkingHours,
	}
}

// SaveShift creates or updates a shift definition. Records already
// reconciled keep their snapshot.
func (s *Store) SaveShift(ctx context.Context, sh Shift) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO shifts (id, org_id, name, start_time, end_time, grace_minutes, working_hours, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			org_id = excluded.org_id,
			name = excluded.name,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			grace_minutes = excluded.grace_minutes,
			working_hours = excluded.working_hours
	`
	_, err := s.db.ExecContext(ctx, query,
		sh.ID, sh.OrgID, sh.Name, sh.StartTime.String(), sh.EndTime.String(),
		sh.GraceMinutes, sh.WorkingHours.String(), formatInstant(s.now()),
	)
	if err != nil {
		return fmt.Errorf("failed to save shift: %w", err)
	}
	return nil
}

// AssignShift sets the employee's current shift, replacing any previous one.
func (s *Store) AssignShift(ctx context.Context, employeeID generic.EmployeeID, shiftID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO shift_assignments (employee_id, shift_id, assigned_at)
		VALUES (?, ?, ?)
		ON CONFLICT(employee_id) DO UPDATE SET
			shift_id = excluded.shift_id,
			assigned_at = excluded.assigned_at
	`
	_, err := s.db.ExecContext(ctx, query, employeeID, shiftID, formatInstant(s.now()))
	if err != nil {
		return fmt.Errorf("failed to assign shift: %w", err)
	}
	return nil
}

// ResolveShift returns a snapshot of the employee's assigned shift within the
// org, or nil when none is assigned.
func (s *Store) ResolveShift(ctx context.Context, employeeID generic.EmployeeID, orgID generic.OrgID) (*attendance.ShiftSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		start, end, workingHours string
		grace                    int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT sh.start_time, sh.end_time, sh.grace_minutes, sh.working_hours
		FROM shift_assignments a
		JOIN shifts sh ON sh.id = a.shift_id
		WHERE a.employee_id = ? AND sh.org_id = ?`,
		employeeID, orgID,
	).Scan(&start, &end, &grace, &workingHours)
	if errNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve shift: %w", err)
	}

	snap := attendance.ShiftSnapshot{GraceMinutes: grace}
	if snap.StartTime, err = generic.ParseClockTime(start); err != nil {
		return nil, err
	}
	if snap.EndTime, err = generic.ParseClockTime(end); err != nil {
		return nil, err
	}
	if snap.WorkingHours, err = decimal.NewFromString(workingHours); err != nil {
		return nil, fmt.Errorf("shift working_hours %q: %w", workingHours, err)
	}
	return &snap, nil
}

var (
	_ attendance.PunchStore    = (*Store)(nil)
	_ attendance.RecordStore   = (*Store)(nil)
	_ attendance.ShiftResolver = (*Store)(nil)
)
