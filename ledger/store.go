package ledger

import (
	"context"

	"github.com/warp/attendance-ledger/generic"
)

// =============================================================================
// STORE - Interface for ledger persistence (append-only)
// =============================================================================

// Store handles persistence of ledger entries.
// IMPORTANT: Store is APPEND-ONLY. No Update, No Delete. Ever.
//
// Implementations must reject, with generic.ErrDuplicateEntry:
//   - a second entry with the same non-empty IdempotencyKey
//   - a second POLICY_ACCRUAL entry with the same EntryKey
//   - a second REVERSAL of the same target
//
// Those rejections are what make the accrual check-then-insert safe when two
// scheduler instances race.
type Store interface {
	// Append persists an entry. This is the ONLY write operation.
	Append(ctx context.Context, e Entry) error

	// Exists reports whether an entry with exactly this key exists.
	Exists(ctx context.Context, key EntryKey) (bool, error)

	// ExistsIdempotencyKey reports whether the idempotency key was used.
	ExistsIdempotencyKey(ctx context.Context, key string) (bool, error)

	// Get returns a single entry, or generic.ErrEntryNotFound.
	Get(ctx context.Context, id generic.EntryID) (Entry, error)

	// ReversalOf returns the REVERSAL targeting id, if any.
	ReversalOf(ctx context.Context, id generic.EntryID) (*Entry, error)

	// Load returns all entries for employee+leave type, ordered by
	// EffectiveDate then CreatedAt.
	Load(ctx context.Context, employeeID generic.EmployeeID, leaveTypeID generic.LeaveTypeID) ([]Entry, error)

	// LoadAsOf returns entries with EffectiveDate <= asOf, same ordering.
	LoadAsOf(ctx context.Context, employeeID generic.EmployeeID, leaveTypeID generic.LeaveTypeID, asOf generic.TimePoint) ([]Entry, error)
}
