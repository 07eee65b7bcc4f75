package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/attendance-ledger/generic"
	"github.com/warp/attendance-ledger/ledger"
)

// =============================================================================
// LEDGER STORE (ledger.Store interface)
// =============================================================================

const ledgerColumns = `id, employee_id, leave_type_id, entry_type, quantity, effective_date,
	reference_type, reference_id, reverses_id, reason, idempotency_key, created_at`

// Append adds an entry to the ledger. Uniqueness violations (idempotency key,
// accrual key, second reversal, reused id) map to generic.ErrDuplicateEntry.
func (s *Store) Append(ctx context.Context, e ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO ledger_entries (` + ledgerColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		e.EmployeeID,
		e.LeaveTypeID,
		e.EntryType,
		e.Quantity.String(),
		formatDate(e.EffectiveDate),
		e.ReferenceType,
		nullString(e.ReferenceID),
		nullString(string(e.ReversesID)),
		nullString(e.Reason),
		nullString(e.IdempotencyKey),
		formatInstant(e.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateEntry
		}
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// Exists checks for an entry with exactly this key.
func (s *Store) Exists(ctx context.Context, k ledger.EntryKey) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM ledger_entries
		WHERE employee_id = ? AND leave_type_id = ? AND entry_type = ?
		  AND effective_date = ? AND reference_type = ?`,
		k.EmployeeID, k.LeaveTypeID, k.EntryType, formatDate(k.EffectiveDate), k.ReferenceType,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check ledger entry: %w", err)
	}
	return count > 0, nil
}

// ExistsIdempotencyKey checks if an idempotency key was used.
func (s *Store) ExistsIdempotencyKey(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ledger_entries WHERE idempotency_key = ?",
		key,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	return count > 0, nil
}

// Get returns one entry or generic.ErrEntryNotFound.
func (s *Store) Get(ctx context.Context, id generic.EntryID) (ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.queryEntries(ctx,
		"SELECT "+ledgerColumns+" FROM ledger_entries WHERE id = ?", id)
	if err != nil {
		return ledger.Entry{}, err
	}
	if len(entries) == 0 {
		return ledger.Entry{}, generic.ErrEntryNotFound
	}
	return entries[0], nil
}

// ReversalOf returns the reversal of id, or nil.
func (s *Store) ReversalOf(ctx context.Context, id generic.EntryID) (*ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.queryEntries(ctx,
		"SELECT "+ledgerColumns+" FROM ledger_entries WHERE reverses_id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// Load returns the full history for employee+leave type.
func (s *Store) Load(ctx context.Context, employeeID generic.EmployeeID, leaveTypeID generic.LeaveTypeID) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + ledgerColumns + `
		FROM ledger_entries
		WHERE employee_id = ? AND leave_type_id = ?
		ORDER BY effective_date ASC, created_at ASC, rowid ASC
	`
	return s.queryEntries(ctx, query, employeeID, leaveTypeID)
}

// LoadAsOf returns entries effective on or before asOf.
func (s *Store) LoadAsOf(ctx context.Context, employeeID generic.EmployeeID, leaveTypeID generic.LeaveTypeID, asOf generic.TimePoint) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + ledgerColumns + `
		FROM ledger_entries
		WHERE employee_id = ? AND leave_type_id = ? AND effective_date <= ?
		ORDER BY effective_date ASC, created_at ASC, rowid ASC
	`
	return s.queryEntries(ctx, query, employeeID, leaveTypeID, formatDate(asOf))
}

// LeaveTypesFor lists the leave types an employee has ledger history for.
func (s *Store) LeaveTypesFor(ctx context.Context, employeeID generic.EmployeeID) ([]generic.LeaveTypeID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT leave_type_id FROM ledger_entries WHERE employee_id = ? ORDER BY leave_type_id",
		employeeID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query leave types: %w", err)
	}
	defer rows.Close()

	var out []generic.LeaveTypeID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, generic.LeaveTypeID(id))
	}
	return out, rows.Err()
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (ledger.Entry, error) {
	var (
		e              ledger.Entry
		quantity       string
		effectiveDate  string
		referenceID    sql.NullString
		reversesID     sql.NullString
		reason         sql.NullString
		idempotencyKey sql.NullString
		createdAt      string
	)

	err := rows.Scan(
		&e.ID, &e.EmployeeID, &e.LeaveTypeID, &e.EntryType, &quantity, &effectiveDate,
		&e.ReferenceType, &referenceID, &reversesID, &reason, &idempotencyKey, &createdAt,
	)
	if err != nil {
		return e, fmt.Errorf("failed to scan ledger entry: %w", err)
	}

	if e.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return e, fmt.Errorf("ledger entry %s: bad quantity %q: %w", e.ID, quantity, err)
	}
	if e.EffectiveDate, err = generic.ParseDate(effectiveDate); err != nil {
		return e, fmt.Errorf("ledger entry %s: %w", e.ID, err)
	}
	if e.CreatedAt, err = parseInstant(createdAt); err != nil {
		return e, fmt.Errorf("ledger entry %s: bad created_at: %w", e.ID, err)
	}
	e.ReferenceID = referenceID.String
	e.ReversesID = generic.EntryID(reversesID.String)
	e.Reason = reason.String
	e.IdempotencyKey = idempotencyKey.String
	return e, nil
}

var _ ledger.Store = (*Store)(nil)
