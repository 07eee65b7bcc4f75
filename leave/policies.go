/*
policies.go - JSON policy definitions

PURPOSE:
  Leave policies are configured by HR as JSON and stored verbatim. This file
  converts between that JSON form and the Policy type the accrual batch uses.

JSON SCHEMA:
  {
    "id": "pol-standard",
    "org_id": "org-1",
    "name": "Standard Leave",
    "effective_from": "2025-01-01",
    "effective_to": "2025-12-31",      // optional, open ended when absent
    "active": true,                     // optional, default true
    "rules": [
      {
        "leave_type_id": "annual",
        "accrual": {"frequency": "MONTHLY", "credit_amount": 1.5, "max_balance": 30}
      }
    ]
  }

VALIDATION:
  - id, org_id and at least one rule are required
  - every rule needs a leave type, a known frequency and, unless NONE,
    a positive credit amount
  - effective_to must not precede effective_from
  - a leave type may appear in only one rule per policy
*/
package leave

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/attendance-ledger/generic"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

type PolicyJSON struct {
	ID            string     `json:"id"`
	OrgID         string     `json:"org_id"`
	Name          string     `json:"name"`
	EffectiveFrom string     `json:"effective_from"`
	EffectiveTo   string     `json:"effective_to,omitempty"`
	Active        *bool      `json:"active,omitempty"`
	Rules         []RuleJSON `json:"rules"`
}

type RuleJSON struct {
	LeaveTypeID string      `json:"leave_type_id"`
	Accrual     AccrualJSON `json:"accrual"`
}

type AccrualJSON struct {
	Frequency    string           `json:"frequency"`
	CreditAmount decimal.Decimal  `json:"credit_amount"`
	MaxBalance   *decimal.Decimal `json:"max_balance,omitempty"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParsePolicy decodes and validates a JSON policy definition.
func ParsePolicy(raw string) (*Policy, error) {
	var pj PolicyJSON
	if err := json.Unmarshal([]byte(raw), &pj); err != nil {
		return nil, fmt.Errorf("%w: %v", generic.ErrInvalidPolicy, err)
	}
	return pj.ToPolicy()
}

// ToPolicy validates the JSON form and converts it.
func (pj PolicyJSON) ToPolicy() (*Policy, error) {
	if pj.ID == "" {
		return nil, fmt.Errorf("%w: id is required", generic.ErrInvalidPolicy)
	}
	if pj.OrgID == "" {
		return nil, fmt.Errorf("%w: org_id is required", generic.ErrInvalidPolicy)
	}
	if len(pj.Rules) == 0 {
		return nil, fmt.Errorf("%w: at least one rule is required", generic.ErrInvalidPolicy)
	}

	p := &Policy{
		ID:     generic.PolicyID(pj.ID),
		OrgID:  generic.OrgID(pj.OrgID),
		Name:   pj.Name,
		Active: pj.Active == nil || *pj.Active,
	}

	var err error
	if pj.EffectiveFrom != "" {
		if p.Validity.Start, err = generic.ParseDate(pj.EffectiveFrom); err != nil {
			return nil, fmt.Errorf("%w: effective_from: %v", generic.ErrInvalidPolicy, err)
		}
	}
	if pj.EffectiveTo != "" {
		if p.Validity.End, err = generic.ParseDate(pj.EffectiveTo); err != nil {
			return nil, fmt.Errorf("%w: effective_to: %v", generic.ErrInvalidPolicy, err)
		}
	}
	if err := p.Validity.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", generic.ErrInvalidPolicy, err)
	}

	seen := make(map[generic.LeaveTypeID]bool)
	for i, rj := range pj.Rules {
		rule, err := rj.toRule()
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		if seen[rule.LeaveTypeID] {
			return nil, fmt.Errorf("%w: duplicate rule for leave type %q", generic.ErrInvalidPolicy, rule.LeaveTypeID)
		}
		seen[rule.LeaveTypeID] = true
		p.Rules = append(p.Rules, rule)
	}
	return p, nil
}

func (rj RuleJSON) toRule() (AccrualRule, error) {
	if rj.LeaveTypeID == "" {
		return AccrualRule{}, fmt.Errorf("%w: leave_type_id is required", generic.ErrInvalidPolicy)
	}
	freq, err := ParseAccrualFrequency(rj.Accrual.Frequency)
	if err != nil {
		return AccrualRule{}, err
	}
	if freq != FreqNone && !rj.Accrual.CreditAmount.IsPositive() {
		return AccrualRule{}, fmt.Errorf("%w: credit_amount must be positive", generic.ErrInvalidPolicy)
	}
	if rj.Accrual.MaxBalance != nil && rj.Accrual.MaxBalance.IsNegative() {
		return AccrualRule{}, fmt.Errorf("%w: max_balance must not be negative", generic.ErrInvalidPolicy)
	}
	return AccrualRule{
		LeaveTypeID:  generic.LeaveTypeID(rj.LeaveTypeID),
		Frequency:    freq,
		CreditAmount: rj.Accrual.CreditAmount,
		MaxBalance:   rj.Accrual.MaxBalance,
	}, nil
}

// ToJSON converts a policy back to its stored form.
func ToJSON(p Policy) PolicyJSON {
	active := p.Active
	pj := PolicyJSON{
		ID:     string(p.ID),
		OrgID:  string(p.OrgID),
		Name:   p.Name,
		Active: &active,
	}
	if !p.Validity.Start.IsZero() {
		pj.EffectiveFrom = p.Validity.Start.String()
	}
	if !p.Validity.IsOpenEnded() {
		pj.EffectiveTo = p.Validity.End.String()
	}
	for _, r := range p.Rules {
		pj.Rules = append(pj.Rules, RuleJSON{
			LeaveTypeID: string(r.LeaveTypeID),
			Accrual: AccrualJSON{
				Frequency:    string(r.Frequency),
				CreditAmount: r.CreditAmount,
				MaxBalance:   r.MaxBalance,
			},
		})
	}
	return pj
}

// MonthlyPolicyJSON builds a single-rule monthly policy. Used by seeds and
// tests.
func MonthlyPolicyJSON(id, orgID, leaveTypeID string, creditAmount float64, effectiveFrom string) string {
	pj := PolicyJSON{
		ID:            id,
		OrgID:         orgID,
		Name:          id,
		EffectiveFrom: effectiveFrom,
		Rules: []RuleJSON{{
			LeaveTypeID: leaveTypeID,
			Accrual: AccrualJSON{
				Frequency:    string(FreqMonthly),
				CreditAmount: decimal.NewFromFloat(creditAmount),
			},
		}},
	}
	b, _ := json.Marshal(pj)
	return string(b)
}
