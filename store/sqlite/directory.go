package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/attendance-ledger/attendance"
	"github.com/warp/attendance-ledger/generic"
	"github.com/warp/attendance-ledger/leave"
)

// =============================================================================
// EMPLOYEE STORE (leave.Roster interface)
// =============================================================================

// SaveEmployee saves an employee.
func (s *Store) SaveEmployee(ctx context.Context, emp leave.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO employees (id, org_id, name, joining_date, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			org_id = excluded.org_id,
			name = excluded.name,
			joining_date = excluded.joining_date,
			active = excluded.active
	`
	_, err := s.db.ExecContext(ctx, query,
		emp.ID, emp.OrgID, emp.Name, formatDate(emp.JoiningDate), emp.Active,
		formatInstant(s.now()),
	)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

// GetEmployee retrieves an employee by ID, or nil.
func (s *Store) GetEmployee(ctx context.Context, id generic.EmployeeID) (*leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	employees, err := s.queryEmployees(ctx,
		"SELECT id, org_id, name, joining_date, active FROM employees WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(employees) == 0 {
		return nil, nil
	}
	return &employees[0], nil
}

// ActiveEmployees returns active employees of the org who joined on or
// before joinedBy.
func (s *Store) ActiveEmployees(ctx context.Context, orgID generic.OrgID, joinedBy generic.TimePoint) ([]leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryEmployees(ctx, `
		SELECT id, org_id, name, joining_date, active
		FROM employees
		WHERE org_id = ? AND active AND joining_date <= ?
		ORDER BY id`,
		orgID, formatDate(joinedBy))
}

func (s *Store) queryEmployees(ctx context.Context, query string, args ...any) ([]leave.Employee, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	var employees []leave.Employee
	for rows.Next() {
		var (
			emp         leave.Employee
			joiningDate string
		)
		if err := rows.Scan(&emp.ID, &emp.OrgID, &emp.Name, &joiningDate, &emp.Active); err != nil {
			return nil, fmt.Errorf("failed to scan employee: %w", err)
		}
		if emp.JoiningDate, err = generic.ParseDate(joiningDate); err != nil {
			return nil, fmt.Errorf("employee %s: %w", emp.ID, err)
		}
		employees = append(employees, emp)
	}
	return employees, rows.Err()
}

// =============================================================================
// POLICY STORE (leave.PolicySource interface)
// =============================================================================

// SavePolicy stores a policy as its JSON definition. Saving an existing id
// bumps its version.
func (s *Store) SavePolicy(ctx context.Context, p leave.Policy) error {
	config, err := json.Marshal(leave.ToJSON(p))
	if err != nil {
		return fmt.Errorf("failed to encode policy: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO policies (id, org_id, name, effective_from, effective_to, active,
			config_json, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			org_id = excluded.org_id,
			name = excluded.name,
			effective_from = excluded.effective_from,
			effective_to = excluded.effective_to,
			active = excluded.active,
			config_json = excluded.config_json,
			version = policies.version + 1,
			updated_at = excluded.updated_at
	`
	now := formatInstant(s.now())
	_, err = s.db.ExecContext(ctx, query,
		p.ID, p.OrgID, p.Name, formatDate(p.Validity.Start), nullDate(p.Validity.End),
		p.Active, string(config), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save policy: %w", err)
	}
	return nil
}

// ListPolicies returns every stored policy.
func (s *Store) ListPolicies(ctx context.Context) ([]leave.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryPolicies(ctx, "SELECT config_json FROM policies ORDER BY org_id, name")
}

// ActivePolicies returns active policies of every org in force on date.
func (s *Store) ActivePolicies(ctx context.Context, date generic.TimePoint) ([]leave.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d := formatDate(date)
	return s.queryPolicies(ctx, `
		SELECT config_json FROM policies
		WHERE active AND effective_from <= ? AND (effective_to IS NULL OR effective_to >= ?)
		ORDER BY org_id, id`,
		d, d)
}

// PoliciesForOrg returns active policies of one org in force on date.
func (s *Store) PoliciesForOrg(ctx context.Context, orgID generic.OrgID, date generic.TimePoint) ([]leave.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d := formatDate(date)
	return s.queryPolicies(ctx, `
		SELECT config_json FROM policies
		WHERE org_id = ? AND active AND effective_from <= ?
		  AND (effective_to IS NULL OR effective_to >= ?)
		ORDER BY id`,
		orgID, d, d)
}

func (s *Store) queryPolicies(ctx context.Context, query string, args ...any) ([]leave.Policy, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query policies: %w", err)
	}
	defer rows.Close()

	var policies []leave.Policy
	for rows.Next() {
		var config string
		if err := rows.Scan(&config); err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		p, err := leave.ParsePolicy(config)
		if err != nil {
			return nil, fmt.Errorf("stored policy: %w", err)
		}
		policies = append(policies, *p)
	}
	return policies, rows.Err()
}

// =============================================================================
// LEAVE WINDOWS (attendance.LeaveWindowOracle interface)
// =============================================================================

// SaveLeaveWindow creates or updates a leave window.
func (s *Store) SaveLeaveWindow(ctx context.Context, w leave.Window) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO leave_windows (id, employee_id, org_id, start_date, end_date, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			status = excluded.status
	`
	_, err := s.db.ExecContext(ctx, query,
		w.ID, w.EmployeeID, w.OrgID, formatDate(w.Start), formatDate(w.End), w.Status,
		formatInstant(s.now()),
	)
	if err != nil {
		return fmt.Errorf("failed to save leave window: %w", err)
	}
	return nil
}

// OnLeave reports whether an approved or submitted window covers date.
func (s *Store) OnLeave(ctx context.Context, employeeID generic.EmployeeID, orgID generic.OrgID, date generic.TimePoint) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d := formatDate(date)
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM leave_windows
		WHERE employee_id = ? AND org_id = ?
		  AND status IN (?, ?)
		  AND start_date <= ? AND end_date >= ?`,
		employeeID, orgID, leave.WindowApproved, leave.WindowSubmitted, d, d,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check leave windows: %w", err)
	}
	return count > 0, nil
}

// =============================================================================
// ACCRUAL RUNS STORE
// =============================================================================

// AccrualRun records one execution of the accrual batch.
type AccrualRun struct {
	ID            string
	EffectiveDate generic.TimePoint
	Trigger       string // manual, scheduled
	Status        string // completed, partial, failed
	Credited      int
	Skipped       int
	Failed        int
	Error         string
	StartedAt     time.Time
	CompletedAt   *time.Time
}

// SaveAccrualRun inserts or updates a run.
func (s *Store) SaveAccrualRun(ctx context.Context, r AccrualRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO accrual_runs (id, effective_date, trigger_source, status, credited, skipped,
			failed, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			credited = excluded.credited,
			skipped = excluded.skipped,
			failed = excluded.failed,
			error = excluded.error,
			completed_at = excluded.completed_at
	`
	_, err := s.db.ExecContext(ctx, query,
		r.ID, nullDate(r.EffectiveDate), r.Trigger, r.Status, r.Credited, r.Skipped,
		r.Failed, nullString(r.Error), formatInstant(r.StartedAt), nullInstant(r.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save accrual run: %w", err)
	}
	return nil
}

// ListAccrualRuns returns the most recent runs first. limit <= 0 means all.
func (s *Store) ListAccrualRuns(ctx context.Context, limit int) ([]AccrualRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, effective_date, trigger_source, status, credited, skipped, failed,
			error, started_at, completed_at
		FROM accrual_runs
		ORDER BY started_at DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accrual runs: %w", err)
	}
	defer rows.Close()

	var runs []AccrualRun
	for rows.Next() {
		var (
			r                      AccrualRun
			effectiveDate, errText sql.NullString
			startedAt              string
			completedAt            sql.NullString
		)
		if err := rows.Scan(&r.ID, &effectiveDate, &r.Trigger, &r.Status, &r.Credited,
			&r.Skipped, &r.Failed, &errText, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan accrual run: %w", err)
		}
		if r.EffectiveDate, err = parseNullDate(effectiveDate); err != nil {
			return nil, err
		}
		if r.StartedAt, err = parseInstant(startedAt); err != nil {
			return nil, err
		}
		if r.CompletedAt, err = parseNullInstant(completedAt); err != nil {
			return nil, err
		}
		r.Error = errText.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

var (
	_ leave.PolicySource           = (*Store)(nil)
	_ leave.Roster                 = (*Store)(nil)
	_ attendance.LeaveWindowOracle = (*Store)(nil)
)
