// Package leave implements leave policy rules and the periodic accrual batch
// that turns them into ledger credits.
package leave

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/attendance-ledger/generic"
)

// =============================================================================
// ACCRUAL FREQUENCY
// =============================================================================

type AccrualFrequency string

const (
	FreqMonthly   AccrualFrequency = "MONTHLY"
	FreqQuarterly AccrualFrequency = "QUARTERLY"
	FreqYearly    AccrualFrequency = "YEARLY"
	FreqNone      AccrualFrequency = "NONE" // granted manually only
)

func ParseAccrualFrequency(s string) (AccrualFrequency, error) {
	switch f := AccrualFrequency(strings.ToUpper(strings.TrimSpace(s))); f {
	case FreqMonthly, FreqQuarterly, FreqYearly, FreqNone:
		return f, nil
	case "":
		return FreqNone, nil
	}
	return "", fmt.Errorf("%w: unknown accrual frequency %q", generic.ErrInvalidPolicy, s)
}

// DueIn reports whether a rule with this frequency credits in month.
func (f AccrualFrequency) DueIn(month time.Month) bool {
	switch f {
	case FreqMonthly:
		return true
	case FreqQuarterly:
		return (month-time.January)%3 == 0
	case FreqYearly:
		return month == time.January
	}
	return false
}

// =============================================================================
// POLICY
// =============================================================================

// AccrualRule is the per-leave-type accrual configuration of a policy.
type AccrualRule struct {
	LeaveTypeID  generic.LeaveTypeID
	Frequency    AccrualFrequency
	CreditAmount decimal.Decimal

	// MaxBalance is reported, not enforced: the accrual batch credits even
	// when the balance is above it.
	MaxBalance *decimal.Decimal
}

// Policy groups accrual rules for an organisation over a validity window.
type Policy struct {
	ID       generic.PolicyID
	OrgID    generic.OrgID
	Name     string
	Validity generic.Period
	Active   bool
	Rules    []AccrualRule
}

// InForce reports whether the policy applies on date.
func (p Policy) InForce(date generic.TimePoint) bool {
	return p.Active && p.Validity.Contains(date)
}

// RuleFor returns the rule for a leave type, if any.
func (p Policy) RuleFor(leaveTypeID generic.LeaveTypeID) (AccrualRule, bool) {
	for _, r := range p.Rules {
		if r.LeaveTypeID == leaveTypeID {
			return r, true
		}
	}
	return AccrualRule{}, false
}

// Employee is the slice of the roster the accrual batch needs.
type Employee struct {
	ID          generic.EmployeeID
	OrgID       generic.OrgID
	Name        string
	JoiningDate generic.TimePoint
	Active      bool
}

// =============================================================================
// LEAVE WINDOWS
// =============================================================================

// WindowStatus mirrors the approval state of the leave request behind a
// window. The approval workflow itself lives elsewhere.
type WindowStatus string

const (
	WindowSubmitted WindowStatus = "SUBMITTED"
	WindowApproved  WindowStatus = "APPROVED"
	WindowRejected  WindowStatus = "REJECTED"
	WindowCancelled WindowStatus = "CANCELLED"
)

func ParseWindowStatus(s string) (WindowStatus, error) {
	switch w := WindowStatus(strings.ToUpper(strings.TrimSpace(s))); w {
	case WindowSubmitted, WindowApproved, WindowRejected, WindowCancelled:
		return w, nil
	}
	return "", fmt.Errorf("unknown leave window status %q", s)
}

// Covers reports whether a window in this state marks the employee as on
// leave. Submitted requests count as well as approved ones.
func (w WindowStatus) Covers() bool {
	return w == WindowApproved || w == WindowSubmitted
}

// Window is the date range of one leave request, both ends inclusive.
type Window struct {
	ID         string
	EmployeeID generic.EmployeeID
	OrgID      generic.OrgID
	Start      generic.TimePoint
	End        generic.TimePoint
	Status     WindowStatus
}

func (w Window) Covers(date generic.TimePoint) bool {
	return w.Status.Covers() && !date.Before(w.Start) && !date.After(w.End)
}

// =============================================================================
// COLLABORATORS
// =============================================================================

// PolicySource serves the currently effective policies.
type PolicySource interface {
	// ActivePolicies returns active policies of every org in force on date.
	ActivePolicies(ctx context.Context, date generic.TimePoint) ([]Policy, error)

	// PoliciesForOrg returns active policies of one org in force on date.
	PoliciesForOrg(ctx context.Context, orgID generic.OrgID, date generic.TimePoint) ([]Policy, error)
}

// Roster lists employees eligible for accrual.
type Roster interface {
	// ActiveEmployees returns active employees of the org whose joining date
	// is on or before joinedBy.
	ActiveEmployees(ctx context.Context, orgID generic.OrgID, joinedBy generic.TimePoint) ([]Employee, error)
}
