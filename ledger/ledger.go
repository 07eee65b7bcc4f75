package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/warp/attendance-ledger/generic"
)

// =============================================================================
// LEDGER - Append-only entry log
// =============================================================================

// Ledger is the source of truth for all leave balance changes.
//
// INVARIANTS:
//   - Append-only: No Update, No Delete. EVER.
//   - Immutable: Once written, entries cannot be modified.
//   - Auditable: Every balance change is traceable to a reference.
//
// Corrections are made via reversal or adjustment entries, not edits.
type Ledger interface {
	// Append validates and adds an entry.
	Append(ctx context.Context, e Entry) (Entry, error)

	// Exists reports whether an entry with the key is already recorded.
	Exists(ctx context.Context, key EntryKey) (bool, error)

	// Reverse appends a REVERSAL netting out the target entry.
	Reverse(ctx context.Context, req ReversalRequest) (Entry, error)

	// Entries returns the full history for employee+leave type.
	Entries(ctx context.Context, employeeID generic.EmployeeID, leaveTypeID generic.LeaveTypeID) ([]Entry, error)

	// BalanceAsOf derives the balance at a date. Read-only.
	BalanceAsOf(ctx context.Context, employeeID generic.EmployeeID, leaveTypeID generic.LeaveTypeID, asOf generic.TimePoint) (generic.Amount, error)
}

// ReversalRequest describes which entry to net out, and when.
type ReversalRequest struct {
	TargetID      generic.EntryID
	EffectiveDate generic.TimePoint // zero = target's effective date
	ReferenceType ReferenceType     // empty = ADMIN
	ReferenceID   string
	Reason        string
}

// =============================================================================
// DEFAULT LEDGER - Implementation using Store
// =============================================================================

type DefaultLedger struct {
	Store Store
	Calc  *BalanceCalculator

	// Injected for deterministic tests.
	Now   func() time.Time
	NewID func() string
}

func NewLedger(store Store) *DefaultLedger {
	return &DefaultLedger{
		Store: store,
		Calc:  &BalanceCalculator{Store: store},
		Now:   time.Now,
		NewID: uuid.NewString,
	}
}

// Append fills in ID/CreatedAt when absent, validates the entry and writes it.
// Returns generic.ErrDuplicateEntry when the idempotency key was already used
// or the store rejects the entry on a uniqueness constraint.
func (l *DefaultLedger) Append(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = generic.EntryID(l.NewID())
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.Now().UTC()
	}
	if err := e.Validate(); err != nil {
		return Entry{}, err
	}

	if e.IdempotencyKey != "" {
		exists, err := l.Store.ExistsIdempotencyKey(ctx, e.IdempotencyKey)
		if err != nil {
			return Entry{}, generic.Transient("check idempotency key", err)
		}
		if exists {
			return Entry{}, generic.ErrDuplicateEntry
		}
	}

	if e.EntryType == EntryReversal {
		if _, err := l.checkReversible(ctx, e.ReversesID, e.EffectiveDate); err != nil {
			return Entry{}, err
		}
	}

	if err := l.Store.Append(ctx, e); err != nil {
		if errors.Is(err, generic.ErrDuplicateEntry) {
			return Entry{}, err
		}
		return Entry{}, generic.Transient("append ledger entry", err)
	}
	return e, nil
}

func (l *DefaultLedger) Exists(ctx context.Context, key EntryKey) (bool, error) {
	exists, err := l.Store.Exists(ctx, key)
	if err != nil {
		return false, generic.Transient("check ledger entry", err)
	}
	return exists, nil
}

// Reverse nets out a prior entry. The reversal carries the target's quantity
// magnitude; its sign is derived from the target at balance time.
func (l *DefaultLedger) Reverse(ctx context.Context, req ReversalRequest) (Entry, error) {
	target, err := l.checkReversible(ctx, req.TargetID, req.EffectiveDate)
	if err != nil {
		return Entry{}, err
	}

	effective := req.EffectiveDate
	if effective.IsZero() {
		effective = target.EffectiveDate
	}
	refType := req.ReferenceType
	if refType == "" {
		refType = RefAdmin
	}
	refID := req.ReferenceID
	if refID == "" {
		refID = string(target.ID)
	}

	return l.Append(ctx, Entry{
		EmployeeID:     target.EmployeeID,
		LeaveTypeID:    target.LeaveTypeID,
		EntryType:      EntryReversal,
		Quantity:       target.Quantity.Abs(),
		EffectiveDate:  effective,
		ReferenceType:  refType,
		ReferenceID:    refID,
		ReversesID:     target.ID,
		Reason:         req.Reason,
		IdempotencyKey: "reversal:" + string(target.ID),
	})
}

func (l *DefaultLedger) checkReversible(ctx context.Context, targetID generic.EntryID, effective generic.TimePoint) (Entry, error) {
	target, err := l.Store.Get(ctx, targetID)
	if err != nil {
		if errors.Is(err, generic.ErrEntryNotFound) {
			return Entry{}, fmt.Errorf("reverse %s: %w", targetID, err)
		}
		return Entry{}, generic.Transient("load reversal target", err)
	}
	if target.EntryType == EntryReversal {
		return Entry{}, &generic.InvalidEntryError{Field: "reverses_id", Reason: "cannot target another REVERSAL"}
	}
	if !effective.IsZero() && effective.Before(target.EffectiveDate) {
		return Entry{}, &generic.InvalidEntryError{Field: "effective_date", Reason: "must not precede the reversed entry"}
	}

	existing, err := l.Store.ReversalOf(ctx, targetID)
	if err != nil {
		return Entry{}, generic.Transient("check existing reversal", err)
	}
	if existing != nil {
		return Entry{}, generic.ErrAlreadyReversed
	}
	return target, nil
}

func (l *DefaultLedger) Entries(ctx context.Context, employeeID generic.EmployeeID, leaveTypeID generic.LeaveTypeID) ([]Entry, error) {
	entries, err := l.Store.Load(ctx, employeeID, leaveTypeID)
	if err != nil {
		return nil, generic.Transient("load ledger entries", err)
	}
	return entries, nil
}

func (l *DefaultLedger) BalanceAsOf(ctx context.Context, employeeID generic.EmployeeID, leaveTypeID generic.LeaveTypeID, asOf generic.TimePoint) (generic.Amount, error) {
	return l.Calc.BalanceAsOf(ctx, employeeID, leaveTypeID, asOf)
}
