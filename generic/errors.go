/*
errors.go - Centralized error types for the engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Ledger errors - Duplicate entries, reversals, missing entries
  2. Validation errors - Malformed input (clock times, entries, policies)
  3. Store errors - Transient persistence failures (safe to retry)

USAGE:
  if errors.Is(err, generic.ErrDuplicateEntry) {
      // Already credited, expected under retriggering
  }
  if generic.IsRetryable(err) {
      // Store was unavailable, retry the whole operation
  }

SEE ALSO:
  - ledger/ledger.go: Uses the ledger errors
  - attendance/reconciler.go: Wraps store failures in TransientError
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateEntry is returned when a ledger entry collides with an
	// existing one on its idempotency key or accrual uniqueness key. This is
	// expected behavior for retries and overlapping scheduler runs.
	ErrDuplicateEntry = errors.New("duplicate ledger entry")

	// ErrEntryNotFound is returned when a referenced ledger entry doesn't exist.
	ErrEntryNotFound = errors.New("ledger entry not found")

	// ErrAlreadyReversed is returned when reversing an entry twice.
	ErrAlreadyReversed = errors.New("ledger entry already reversed")

	// ErrInvalidEntry is returned when a ledger entry fails validation.
	ErrInvalidEntry = errors.New("invalid ledger entry")

	// ErrInvalidClockTime is returned for malformed HH:MM values.
	ErrInvalidClockTime = errors.New("invalid clock time (use HH:MM)")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrInvalidPolicy is returned when a leave policy definition is malformed.
	ErrInvalidPolicy = errors.New("invalid leave policy")

	// ErrInvalidPunch is returned when a punch event is malformed.
	ErrInvalidPunch = errors.New("invalid punch event")

	// ErrStoreUnavailable marks transient persistence failures. Every write in
	// the engine is an upsert or an existence-guarded insert, so callers may
	// retry the whole operation.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// TransientError wraps a store failure encountered during Op.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrStoreUnavailable, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Is makes every TransientError match ErrStoreUnavailable.
func (e *TransientError) Is(target error) bool { return target == ErrStoreUnavailable }

// Transient wraps err as a TransientError, leaving nil untouched.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// InvalidEntryError details a ledger entry validation failure.
type InvalidEntryError struct {
	Field  string
	Reason string
}

func (e *InvalidEntryError) Error() string {
	return fmt.Sprintf("invalid ledger entry: %s %s", e.Field, e.Reason)
}

func (e *InvalidEntryError) Unwrap() error { return ErrInvalidEntry }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidEntry) ||
		errors.Is(err, ErrInvalidClockTime) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidPolicy) ||
		errors.Is(err, ErrInvalidPunch)
}

// IsConflict returns true if the error reports a write that already happened.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateEntry) || errors.Is(err, ErrAlreadyReversed)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntryNotFound)
}
