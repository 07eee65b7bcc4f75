/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every persistence contract of the engine with one database, so
  the server runs as a single binary with a single file of state.

INTERFACES IMPLEMENTED:
  ledger.Store:                 Append-only leave ledger
  attendance.PunchStore:        Punch log
  attendance.RecordStore:       Daily attendance records (upsert by key)
  attendance.ShiftResolver:     Assigned shift lookup
  attendance.LeaveWindowOracle: Leave window coverage
  leave.PolicySource:           Active leave policies
  leave.Roster:                 Active employees

APPEND-ONLY ENFORCEMENT:
  ledger_entries and punches reject UPDATE and DELETE with triggers. The
  ledger store exposes no mutation beyond Append.

KEY TABLES:
  ledger_entries:     Immutable ledger of all leave balance changes
  punches:            Immutable IN/OUT clock events
  attendance_records: One row per (employee, date), replaced wholesale
  policies:           Leave policy definitions (JSON config)
  employees:          Roster
  shifts, shift_assignments, leave_windows: Collaborator data
  accrual_runs:       History of accrual batch runs

INDEXES:
  - idx_ledger_unique_accrual: one POLICY_ACCRUAL entry per (employee,
    leave type, entry type, effective date). Closes the race between two
    accrual runs for the same month.
  - idx_ledger_unique_reversal: an entry can be reversed once
  - idx_ledger_employee_type_date: balance derivation (hot path)
  - idx_punches_employee_time: daily punch window

TIME ENCODING:
  Dates are stored as YYYY-MM-DD, instants as fixed-width UTC text so that
  string comparison orders them correctly.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of SQLite's own locking.

USAGE:
  store, err := sqlite.New("./data/attendance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  l := ledger.NewLedger(store)
*/
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/attendance-ledger/generic"
)

// instantLayout is fixed width so lexical order equals time order.
const instantLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	// Injected for deterministic tests.
	now func() time.Time
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database. URI paths that already carry
// query parameters (file::memory:?mode=memory) are extended, not re-opened.
func New(dbPath string) (*Store, error) {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", dbPath+sep+"_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory") {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Ledger entries (append-only)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		entry_type TEXT NOT NULL
			CHECK (entry_type IN ('CREDIT', 'DEBIT', 'ADJUSTMENT', 'REVERSAL')),
		quantity TEXT NOT NULL,
		effective_date TEXT NOT NULL,
		reference_type TEXT NOT NULL
			CHECK (reference_type IN ('POLICY_ACCRUAL', 'LEAVE_REQUEST', 'ADMIN')),
		reference_id TEXT,
		reverses_id TEXT REFERENCES ledger_entries(id),
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: one accrual credit per employee, leave type and period
	CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_unique_accrual
		ON ledger_entries(employee_id, leave_type_id, entry_type, effective_date, reference_type)
		WHERE reference_type = 'POLICY_ACCRUAL';

	CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_unique_reversal
		ON ledger_entries(reverses_id)
		WHERE reverses_id IS NOT NULL;

	-- Balance derivation (hot path)
	CREATE INDEX IF NOT EXISTS idx_ledger_employee_type_date
		ON ledger_entries(employee_id, leave_type_id, effective_date);

	CREATE INDEX IF NOT EXISTS idx_ledger_reference
		ON ledger_entries(reference_type, reference_id) WHERE reference_id IS NOT NULL;

	CREATE TRIGGER IF NOT EXISTS ledger_entries_no_update
		BEFORE UPDATE ON ledger_entries
		BEGIN SELECT RAISE(ABORT, 'ledger_entries is append-only'); END;

	CREATE TRIGGER IF NOT EXISTS ledger_entries_no_delete
		BEFORE DELETE ON ledger_entries
		BEGIN SELECT RAISE(ABORT, 'ledger_entries is append-only'); END;

	-- Punches (append-only)
	CREATE TABLE IF NOT EXISTS punches (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		org_id TEXT NOT NULL,
		punch_time TEXT NOT NULL,
		punch_type TEXT NOT NULL CHECK (punch_type IN ('IN', 'OUT')),
		source TEXT,
		device_info TEXT,
		latitude REAL,
		longitude REAL,
		is_manual_entry BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_punches_employee_time
		ON punches(employee_id, punch_time);

	CREATE TRIGGER IF NOT EXISTS punches_no_update
		BEFORE UPDATE ON punches
		BEGIN SELECT RAISE(ABORT, 'punches is append-only'); END;

	-- Attendance records, one per employee and date
	CREATE TABLE IF NOT EXISTS attendance_records (
		employee_id TEXT NOT NULL,
		org_id TEXT NOT NULL,
		date TEXT NOT NULL,
		shift_start TEXT,
		shift_end TEXT,
		shift_grace_minutes INTEGER,
		shift_working_hours TEXT,
		first_check_in TEXT,
		last_check_out TEXT,
		total_work_minutes INTEGER NOT NULL DEFAULT 0,
		total_break_minutes INTEGER NOT NULL DEFAULT 0,
		late_minutes INTEGER NOT NULL DEFAULT 0,
		early_exit_minutes INTEGER NOT NULL DEFAULT 0,
		overtime_minutes INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		PRIMARY KEY (employee_id, date)
	);

	CREATE INDEX IF NOT EXISTS idx_attendance_org_date
		ON attendance_records(org_id, date);

	-- Employees
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		name TEXT NOT NULL,
		joining_date TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_employees_org_active
		ON employees(org_id, active, joining_date);

	-- Leave policies
	CREATE TABLE IF NOT EXISTS policies (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		name TEXT NOT NULL,
		effective_from TEXT NOT NULL,
		effective_to TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		config_json TEXT NOT NULL,
		version INTEGER DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_policies_org_active
		ON policies(org_id, active, effective_from);

	-- Shifts
	CREATE TABLE IF NOT EXISTS shifts (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		name TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		grace_minutes INTEGER NOT NULL DEFAULT 0,
		working_hours TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS shift_assignments (
		employee_id TEXT PRIMARY KEY,
		shift_id TEXT NOT NULL REFERENCES shifts(id),
		assigned_at TEXT NOT NULL
	);

	-- Leave windows (approved or pending leave requests)
	CREATE TABLE IF NOT EXISTS leave_windows (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		org_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_leave_windows_employee
		ON leave_windows(employee_id, org_id, start_date, end_date);

	-- Accrual runs
	CREATE TABLE IF NOT EXISTS accrual_runs (
		id TEXT PRIMARY KEY,
		effective_date TEXT NOT NULL,
		trigger_source TEXT NOT NULL,
		status TEXT NOT NULL,
		credited INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_accrual_runs_effective
		ON accrual_runs(effective_date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatInstant(t time.Time) string {
	return t.UTC().Format(instantLayout)
}

func nullInstant(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatInstant(*t), Valid: true}
}

func parseInstant(s string) (time.Time, error) {
	return time.Parse(instantLayout, s)
}

func parseNullInstant(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseInstant(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatDate(tp generic.TimePoint) string {
	return tp.String()
}

func nullDate(tp generic.TimePoint) sql.NullString {
	if tp.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: tp.String(), Valid: true}
}

func parseNullDate(ns sql.NullString) (generic.TimePoint, error) {
	if !ns.Valid || ns.String == "" {
		return generic.TimePoint{}, nil
	}
	return generic.ParseDate(ns.String)
}

func errNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }

// isUniqueConstraintError reports a UNIQUE or PRIMARY KEY violation.
func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
