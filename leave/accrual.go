/*
accrual.go - Periodic leave accrual batch

PURPOSE:
  RunMonthlyAccrual credits every eligible (employee, leave type) pair once
  per accrual period. It is safe to trigger any number of times for the
  same month: the second and later runs find the credit already present and
  skip it.

ALGORITHM:
  1. Normalise asOf to the first day of its month (the effective date)
  2. Load active policies in force on that date
  3. For each rule due in that month, list employees of the policy's org
     who joined on or before the effective date
  4. Per (employee, leave type), on a bounded worker pool:
       Exists(key) -> skip
       else append CREDIT, POLICY_ACCRUAL, reference = policy id
     ErrDuplicateEntry from the append means a concurrent run won; skip.
  5. Unit failures go into the report; the batch carries on

CONCURRENCY:
  Two schedulers racing on the same month both pass the Exists check, then
  one append loses on the store's unique accrual index. Neither run fails.

SEE ALSO:
  - ledger/store.go: uniqueness guarantees relied on here
  - api/scheduler.go: wall-clock trigger
*/
package leave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/attendance-ledger/generic"
	"github.com/warp/attendance-ledger/ledger"
	"golang.org/x/sync/errgroup"
)

const DefaultWorkers = 8

// =============================================================================
// REPORT
// =============================================================================

// AccrualFailure records one (employee, leave type) unit that could not be
// processed. EmployeeID is empty when the roster lookup itself failed.
type AccrualFailure struct {
	PolicyID    generic.PolicyID
	EmployeeID  generic.EmployeeID
	LeaveTypeID generic.LeaveTypeID
	Err         error
}

func (f AccrualFailure) Error() string {
	if f.EmployeeID == "" {
		return fmt.Sprintf("policy %s, leave type %s: %v", f.PolicyID, f.LeaveTypeID, f.Err)
	}
	return fmt.Sprintf("policy %s, employee %s, leave type %s: %v", f.PolicyID, f.EmployeeID, f.LeaveTypeID, f.Err)
}

type AccrualReport struct {
	EffectiveDate generic.TimePoint
	Credited      int
	Skipped       int
	Failures      []AccrualFailure
}

// OK reports whether every unit was credited or skipped.
func (r *AccrualReport) OK() bool { return len(r.Failures) == 0 }

// =============================================================================
// SCHEDULER
// =============================================================================

type AccrualScheduler struct {
	Policies PolicySource
	Roster   Roster
	Ledger   ledger.Ledger

	// Workers bounds concurrent ledger writes. Zero means DefaultWorkers.
	Workers int

	// Location decides which month a wall-clock asOf falls in.
	Location *time.Location
	Logger   *slog.Logger
}

func NewAccrualScheduler(policies PolicySource, roster Roster, l ledger.Ledger, workers int, loc *time.Location, logger *slog.Logger) *AccrualScheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AccrualScheduler{
		Policies: policies,
		Roster:   roster,
		Ledger:   l,
		Workers:  workers,
		Location: loc,
		Logger:   logger.With("component", "accrual"),
	}
}

type accrualUnit struct {
	policy   Policy
	rule     AccrualRule
	employee Employee
}

// RunMonthlyAccrual runs the batch for the month containing asOf. The only
// returned error is a failure to load policies; everything else is reported
// per unit in the AccrualReport.
func (s *AccrualScheduler) RunMonthlyAccrual(ctx context.Context, asOf time.Time) (*AccrualReport, error) {
	effective := generic.MonthStart(asOf, s.Location)
	report := &AccrualReport{EffectiveDate: effective}

	policies, err := s.Policies.ActivePolicies(ctx, effective)
	if err != nil {
		return nil, generic.Transient("load active policies", err)
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.workers())

	fail := func(f AccrualFailure) {
		mu.Lock()
		report.Failures = append(report.Failures, f)
		mu.Unlock()
	}

	for _, policy := range policies {
		if !policy.InForce(effective) {
			continue
		}
		employees, rosterErr := s.Roster.ActiveEmployees(ctx, policy.OrgID, effective)

		for _, rule := range policy.Rules {
			if !rule.Frequency.DueIn(effective.Month()) {
				continue
			}
			if rosterErr != nil {
				fail(AccrualFailure{PolicyID: policy.ID, LeaveTypeID: rule.LeaveTypeID, Err: generic.Transient("load roster", rosterErr)})
				continue
			}
			for _, emp := range employees {
				if emp.JoiningDate.After(effective) {
					continue
				}
				u := accrualUnit{policy: policy, rule: rule, employee: emp}
				g.Go(func() error {
					credited, err := s.accrue(ctx, u, effective)
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err != nil:
						report.Failures = append(report.Failures, AccrualFailure{
							PolicyID:    u.policy.ID,
							EmployeeID:  u.employee.ID,
							LeaveTypeID: u.rule.LeaveTypeID,
							Err:         err,
						})
					case credited:
						report.Credited++
					default:
						report.Skipped++
					}
					return nil
				})
			}
		}
	}
	_ = g.Wait()

	for _, f := range report.Failures {
		s.Logger.Warn("accrual unit failed", "effective_date", effective.String(), "error", f.Error())
	}
	s.Logger.Info("accrual run complete",
		"effective_date", effective.String(),
		"credited", report.Credited,
		"skipped", report.Skipped,
		"failed", len(report.Failures))
	return report, nil
}

// accrue credits one unit. It returns false with a nil error when the credit
// already exists.
func (s *AccrualScheduler) accrue(ctx context.Context, u accrualUnit, effective generic.TimePoint) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	key := ledger.EntryKey{
		EmployeeID:    u.employee.ID,
		LeaveTypeID:   u.rule.LeaveTypeID,
		EntryType:     ledger.EntryCredit,
		EffectiveDate: effective,
		ReferenceType: ledger.RefPolicyAccrual,
	}
	exists, err := s.Ledger.Exists(ctx, key)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	_, err = s.Ledger.Append(ctx, ledger.Entry{
		EmployeeID:     u.employee.ID,
		LeaveTypeID:    u.rule.LeaveTypeID,
		EntryType:      ledger.EntryCredit,
		Quantity:       u.rule.CreditAmount,
		EffectiveDate:  effective,
		ReferenceType:  ledger.RefPolicyAccrual,
		ReferenceID:    string(u.policy.ID),
		Reason:         fmt.Sprintf("%s accrual %s", u.rule.Frequency, effective),
		IdempotencyKey: AccrualIdempotencyKey(u.employee.ID, u.rule.LeaveTypeID, effective),
	})
	if errors.Is(err, generic.ErrDuplicateEntry) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *AccrualScheduler) workers() int {
	if s.Workers > 0 {
		return s.Workers
	}
	return DefaultWorkers
}

// AccrualIdempotencyKey is the idempotency key of an accrual credit.
func AccrualIdempotencyKey(employeeID generic.EmployeeID, leaveTypeID generic.LeaveTypeID, effective generic.TimePoint) string {
	return fmt.Sprintf("accrual:%s:%s:%s", employeeID, leaveTypeID, effective)
}
