/*
balance.go - Balance derivation from the ledger

PURPOSE:
  Answers "how much leave does this employee have of this type on date D?"
  The answer is never stored; it is recomputed from committed entries every
  time, so it can never drift from the ledger.

SIGN RULES:
  CREDIT      +quantity
  ADJUSTMENT  quantity (signed)
  DEBIT       -quantity
  REVERSAL    nets out its target: -quantity for a CREDIT, +quantity for a
              DEBIT, minus the delta for an ADJUSTMENT. When the target isn't
              visible (effective after the as-of date) it counts negative.

CONCURRENCY:
  Pure read-side aggregation over immutable entries. No locks.

CAP:
  accrual.max_balance is not applied here or at write time. Callers that
  want to display the cap compare against it themselves.
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/warp/attendance-ledger/generic"
)

// =============================================================================
// BALANCE - Derived totals at a date
// =============================================================================

type Balance struct {
	EmployeeID  generic.EmployeeID
	LeaveTypeID generic.LeaveTypeID
	AsOf        generic.TimePoint

	Credited generic.Amount // sum of CREDIT
	Debited  generic.Amount // sum of DEBIT (positive)
	Adjusted generic.Amount // net of ADJUSTMENT
	Reversed generic.Amount // net effect of REVERSAL entries

	Balance generic.Amount
}

// =============================================================================
// BALANCE CALCULATOR
// =============================================================================

type BalanceCalculator struct {
	Store Store
}

// BalanceAsOf sums every entry for the pair with EffectiveDate <= asOf.
func (bc *BalanceCalculator) BalanceAsOf(ctx context.Context, employeeID generic.EmployeeID, leaveTypeID generic.LeaveTypeID, asOf generic.TimePoint) (generic.Amount, error) {
	b, err := bc.Breakdown(ctx, employeeID, leaveTypeID, asOf)
	if err != nil {
		return generic.Amount{}, err
	}
	return b.Balance, nil
}

// Breakdown returns the balance along with per-type totals.
func (bc *BalanceCalculator) Breakdown(ctx context.Context, employeeID generic.EmployeeID, leaveTypeID generic.LeaveTypeID, asOf generic.TimePoint) (Balance, error) {
	entries, err := bc.Store.LoadAsOf(ctx, employeeID, leaveTypeID, asOf)
	if err != nil {
		return Balance{}, generic.Transient("load ledger entries", err)
	}
	b := Summarize(entries, asOf)
	b.EmployeeID = employeeID
	b.LeaveTypeID = leaveTypeID
	return b, nil
}

// Summarize folds entries into a Balance. Entries effective after asOf are
// ignored, so it is safe to pass a full history.
func Summarize(entries []Entry, asOf generic.TimePoint) Balance {
	byID := make(map[generic.EntryID]Entry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}

	var credited, debited, adjusted, reversed decimal.Decimal
	for _, e := range entries {
		if e.EffectiveDate.After(asOf) {
			continue
		}
		switch e.EntryType {
		case EntryCredit:
			credited = credited.Add(e.Quantity)
		case EntryDebit:
			debited = debited.Add(e.Quantity)
		case EntryAdjustment:
			adjusted = adjusted.Add(e.Quantity)
		case EntryReversal:
			reversed = reversed.Add(reversalDelta(e, byID))
		}
	}

	total := credited.Sub(debited).Add(adjusted).Add(reversed)
	return Balance{
		AsOf:     asOf,
		Credited: generic.NewAmountFromDecimal(credited, generic.UnitDays),
		Debited:  generic.NewAmountFromDecimal(debited, generic.UnitDays),
		Adjusted: generic.NewAmountFromDecimal(adjusted, generic.UnitDays),
		Reversed: generic.NewAmountFromDecimal(reversed, generic.UnitDays),
		Balance:  generic.NewAmountFromDecimal(total, generic.UnitDays),
	}
}

// Delta is the signed contribution of a non-reversal entry.
func Delta(e Entry) decimal.Decimal {
	switch e.EntryType {
	case EntryCredit:
		return e.Quantity
	case EntryDebit:
		return e.Quantity.Neg()
	case EntryAdjustment:
		return e.Quantity
	}
	return decimal.Zero
}

func reversalDelta(rev Entry, byID map[generic.EntryID]Entry) decimal.Decimal {
	target, ok := byID[rev.ReversesID]
	if !ok || target.EntryType == EntryReversal {
		return rev.Quantity.Neg()
	}
	d := Delta(target)
	if d.IsNegative() {
		return rev.Quantity
	}
	return rev.Quantity.Neg()
}
