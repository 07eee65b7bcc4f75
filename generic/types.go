/*
Package generic provides the shared primitives of the attendance & leave engine.

PURPOSE:
  This package holds the small value types every other package agrees on:
  identifiers, decimal quantities, calendar dates, wall-clock shift times and
  the error vocabulary. It has no knowledge of punches, shifts or ledgers;
  the attendance, ledger and leave packages build on top of it.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity with a unit (e.g., 1.5 days of leave)
  - Identifiers: Type-safe IDs so employee/org/leave-type IDs can't be mixed

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point drift in balances
  2. Type Safety: Distinct ID types for every kind of key
  3. No globals: Nothing here holds process-wide state

USAGE:
  credit := generic.NewAmount(1.5, generic.UnitDays)
  total := credit.Add(credit) // 3 days

SEE ALSO:
  - time.go: TimePoint, ClockTime and day/month normalisation
  - period.go: Validity windows
  - errors.go: Sentinel and structured errors
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitDays    Unit = "days"
	UnitHours   Unit = "hours"
	UnitMinutes Unit = "minutes"
)

func NewAmount(value float64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: unit}
}

func NewAmountFromDecimal(value decimal.Decimal, unit Unit) Amount {
	return Amount{Value: value, Unit: unit}
}

// MustParseDecimal parses s, returning zero when s is not a number.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Zero() Amount              { return Amount{Value: decimal.Zero, Unit: a.Unit} }
func (a Amount) Add(b Amount) Amount       { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount       { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) Neg() Amount               { return Amount{Value: a.Value.Neg(), Unit: a.Unit} }
func (a Amount) IsNegative() bool          { return a.Value.IsNegative() }
func (a Amount) IsZero() bool              { return a.Value.IsZero() }
func (a Amount) IsPositive() bool          { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool    { return a.Value.LessThan(b.Value) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type OrgID string
type LeaveTypeID string
type PolicyID string
type EntryID string
