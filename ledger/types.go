/*
Package ledger implements the append-only leave ledger.

PURPOSE:
  The ledger is the immutable source of truth for every leave balance change.
  Every accrual credit, leave-request debit, admin adjustment and reversal is
  recorded here. A balance is always computed by replaying entries - there is
  no stored "balance" field that can get out of sync.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IMMUTABLE: Once written, entries cannot be modified
  3. CLOSED VOCABULARY: EntryType and ReferenceType are fixed enumerations
  4. ONE ACCRUAL PER MONTH: (employee, leave type, CREDIT, effective date,
     POLICY_ACCRUAL) is unique at the store level

CORRECTIONS:
  If a mistake is made, you don't edit the entry. Instead:
  1. Append a REVERSAL targeting it (ReversesID), or
  2. Append a signed ADJUSTMENT
  Both original and correction remain in the ledger.

EXAMPLE FLOW:
  1. March accrual:     CREDIT   +1.5
  2. April accrual:     CREDIT   +1.5
  3. Leave taken:       DEBIT    -1
  4. Debit was wrong:   REVERSAL +1 (restores the debit)

  Balance: 1.5 + 1.5 - 1 + 1 = 3

SEE ALSO:
  - store.go: Persistence contract
  - balance.go: Balance derivation
  - memory/memory.go: In-memory store for tests
*/
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/attendance-ledger/generic"
)

// =============================================================================
// ENTRY TYPE
// =============================================================================

type EntryType string

const (
	EntryCredit     EntryType = "CREDIT"     // Leave granted (accrual, admin grant)
	EntryDebit      EntryType = "DEBIT"      // Leave consumed (leave request)
	EntryAdjustment EntryType = "ADJUSTMENT" // Signed admin correction
	EntryReversal   EntryType = "REVERSAL"   // Nets out a prior entry
)

// ParseEntryType accepts the canonical upper-case names, case-insensitively.
func ParseEntryType(s string) (EntryType, error) {
	switch t := EntryType(strings.ToUpper(strings.TrimSpace(s))); t {
	case EntryCredit, EntryDebit, EntryAdjustment, EntryReversal:
		return t, nil
	}
	return "", &generic.InvalidEntryError{Field: "entry_type", Reason: fmt.Sprintf("unknown value %q", s)}
}

// =============================================================================
// REFERENCE TYPE
// =============================================================================

type ReferenceType string

const (
	RefPolicyAccrual ReferenceType = "POLICY_ACCRUAL"
	RefLeaveRequest  ReferenceType = "LEAVE_REQUEST"
	RefAdmin         ReferenceType = "ADMIN"
)

func ParseReferenceType(s string) (ReferenceType, error) {
	switch t := ReferenceType(strings.ToUpper(strings.TrimSpace(s))); t {
	case RefPolicyAccrual, RefLeaveRequest, RefAdmin:
		return t, nil
	}
	return "", &generic.InvalidEntryError{Field: "reference_type", Reason: fmt.Sprintf("unknown value %q", s)}
}

// =============================================================================
// LEDGER ENTRY
// =============================================================================

// Entry is one immutable change to an employee's leave balance.
//
// Quantity is a magnitude for CREDIT, DEBIT and REVERSAL (always positive;
// the entry type carries the sign) and a signed delta for ADJUSTMENT.
type Entry struct {
	ID             generic.EntryID
	EmployeeID     generic.EmployeeID
	LeaveTypeID    generic.LeaveTypeID
	EntryType      EntryType
	Quantity       decimal.Decimal
	EffectiveDate  generic.TimePoint
	ReferenceType  ReferenceType
	ReferenceID    string
	ReversesID     generic.EntryID // REVERSAL only
	Reason         string
	IdempotencyKey string
	CreatedAt      time.Time
}

// Key returns the uniqueness key of the entry.
func (e Entry) Key() EntryKey {
	return EntryKey{
		EmployeeID:    e.EmployeeID,
		LeaveTypeID:   e.LeaveTypeID,
		EntryType:     e.EntryType,
		EffectiveDate: e.EffectiveDate,
		ReferenceType: e.ReferenceType,
	}
}

// Validate checks the structural rules every entry must satisfy before it
// can be appended.
func (e Entry) Validate() error {
	switch {
	case e.ID == "":
		return &generic.InvalidEntryError{Field: "id", Reason: "is required"}
	case e.EmployeeID == "":
		return &generic.InvalidEntryError{Field: "employee_id", Reason: "is required"}
	case e.LeaveTypeID == "":
		return &generic.InvalidEntryError{Field: "leave_type_id", Reason: "is required"}
	case e.EffectiveDate.IsZero():
		return &generic.InvalidEntryError{Field: "effective_date", Reason: "is required"}
	}
	if _, err := ParseEntryType(string(e.EntryType)); err != nil {
		return err
	}
	if _, err := ParseReferenceType(string(e.ReferenceType)); err != nil {
		return err
	}

	switch e.EntryType {
	case EntryAdjustment:
		if e.Quantity.IsZero() {
			return &generic.InvalidEntryError{Field: "quantity", Reason: "must be non-zero"}
		}
	default:
		if !e.Quantity.IsPositive() {
			return &generic.InvalidEntryError{Field: "quantity", Reason: "must be positive"}
		}
	}

	if e.EntryType == EntryReversal && e.ReversesID == "" {
		return &generic.InvalidEntryError{Field: "reverses_id", Reason: "is required for REVERSAL"}
	}
	if e.EntryType != EntryReversal && e.ReversesID != "" {
		return &generic.InvalidEntryError{Field: "reverses_id", Reason: "is only valid for REVERSAL"}
	}
	return nil
}

// EntryKey identifies an entry for existence checks. For POLICY_ACCRUAL
// entries it is also a store-level uniqueness constraint.
type EntryKey struct {
	EmployeeID    generic.EmployeeID
	LeaveTypeID   generic.LeaveTypeID
	EntryType     EntryType
	EffectiveDate generic.TimePoint
	ReferenceType ReferenceType
}

func (k EntryKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", k.EmployeeID, k.LeaveTypeID, k.EntryType, k.EffectiveDate, k.ReferenceType)
}
