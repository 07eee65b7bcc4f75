package leave_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance-ledger/generic"
	"github.com/warp/attendance-ledger/ledger"
	"github.com/warp/attendance-ledger/ledger/memory"
	"github.com/warp/attendance-ledger/leave"
)

// =============================================================================
// FAKES
// =============================================================================

type fakePolicies struct {
	policies []leave.Policy
	err      error
}

func (f *fakePolicies) ActivePolicies(context.Context, generic.TimePoint) ([]leave.Policy, error) {
	return f.policies, f.err
}

func (f *fakePolicies) PoliciesForOrg(_ context.Context, orgID generic.OrgID, _ generic.TimePoint) ([]leave.Policy, error) {
	var out []leave.Policy
	for _, p := range f.policies {
		if p.OrgID == orgID {
			out = append(out, p)
		}
	}
	return out, f.err
}

type fakeRoster struct {
	employees []leave.Employee
	errFor    map[generic.OrgID]error
}

func (f *fakeRoster) ActiveEmployees(_ context.Context, orgID generic.OrgID, joinedBy generic.TimePoint) ([]leave.Employee, error) {
	if err := f.errFor[orgID]; err != nil {
		return nil, err
	}
	var out []leave.Employee
	for _, e := range f.employees {
		if e.OrgID == orgID && e.Active && !e.JoiningDate.After(joinedBy) {
			out = append(out, e)
		}
	}
	return out, nil
}

func monthlyPolicy(id string, orgID generic.OrgID, leaveType generic.LeaveTypeID, credit string) leave.Policy {
	return leave.Policy{
		ID:       generic.PolicyID(id),
		OrgID:    orgID,
		Name:     id,
		Active:   true,
		Validity: generic.Period{Start: generic.NewTimePoint(2024, time.January, 1)},
		Rules: []leave.AccrualRule{{
			LeaveTypeID:  leaveType,
			Frequency:    leave.FreqMonthly,
			CreditAmount: decimal.RequireFromString(credit),
		}},
	}
}

func employee(id string, orgID generic.OrgID, joined generic.TimePoint) leave.Employee {
	return leave.Employee{ID: generic.EmployeeID(id), OrgID: orgID, Name: id, JoiningDate: joined, Active: true}
}

type accrualFixture struct {
	policies *fakePolicies
	roster   *fakeRoster
	store    *memory.Memory
	ledger   *ledger.DefaultLedger
	sched    *leave.AccrualScheduler
}

func newAccrualFixture() *accrualFixture {
	f := &accrualFixture{
		policies: &fakePolicies{policies: []leave.Policy{monthlyPolicy("annual-policy", "org-1", "annual", "1.5")}},
		roster: &fakeRoster{employees: []leave.Employee{
			employee("emp-1", "org-1", generic.NewTimePoint(2024, time.June, 1)),
			employee("emp-2", "org-1", generic.NewTimePoint(2025, time.January, 15)),
		}},
		store: memory.New(),
	}
	f.ledger = ledger.NewLedger(f.store)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.sched = leave.NewAccrualScheduler(f.policies, f.roster, f.ledger, 4, time.UTC, logger)
	return f
}

func march17() time.Time { return time.Date(2025, time.March, 17, 10, 30, 0, 0, time.UTC) }

// =============================================================================
// ACCRUAL RUN
// =============================================================================

func TestRunMonthlyAccrual_CreditsFirstOfMonth(t *testing.T) {
	// GIVEN: a 1.5 day monthly policy and two eligible employees
	// WHEN: the batch runs mid-March
	// THEN: both get one POLICY_ACCRUAL credit dated March 1
	f := newAccrualFixture()
	ctx := context.Background()

	report, err := f.sched.RunMonthlyAccrual(ctx, march17())
	require.NoError(t, err)

	assert.Equal(t, generic.NewTimePoint(2025, time.March, 1), report.EffectiveDate)
	assert.Equal(t, 2, report.Credited)
	assert.Equal(t, 0, report.Skipped)
	assert.True(t, report.OK())

	entries, err := f.ledger.Entries(ctx, "emp-1", "annual")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, ledger.EntryCredit, e.EntryType)
	assert.Equal(t, ledger.RefPolicyAccrual, e.ReferenceType)
	assert.Equal(t, "annual-policy", e.ReferenceID)
	assert.Equal(t, generic.NewTimePoint(2025, time.March, 1), e.EffectiveDate)
	assert.True(t, e.Quantity.Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, leave.AccrualIdempotencyKey("emp-1", "annual", e.EffectiveDate), e.IdempotencyKey)
}

func TestRunMonthlyAccrual_Idempotent(t *testing.T) {
	f := newAccrualFixture()
	ctx := context.Background()

	_, err := f.sched.RunMonthlyAccrual(ctx, march17())
	require.NoError(t, err)

	// Any instant in the same month maps to the same credit.
	second, err := f.sched.RunMonthlyAccrual(ctx, time.Date(2025, time.March, 31, 23, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, 0, second.Credited)
	assert.Equal(t, 2, second.Skipped)
	assert.Equal(t, 2, f.store.Count())

	b, err := f.ledger.BalanceAsOf(ctx, "emp-1", "annual", generic.NewTimePoint(2025, time.March, 31))
	require.NoError(t, err)
	assert.True(t, b.Value.Equal(decimal.RequireFromString("1.5")))
}

func TestRunMonthlyAccrual_ConsecutiveMonthsAccumulate(t *testing.T) {
	f := newAccrualFixture()
	ctx := context.Background()

	for _, m := range []time.Month{time.January, time.February} {
		_, err := f.sched.RunMonthlyAccrual(ctx, time.Date(2025, m, 10, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
	}

	b, err := f.ledger.BalanceAsOf(ctx, "emp-1", "annual", generic.NewTimePoint(2025, time.February, 15))
	require.NoError(t, err)
	assert.True(t, b.Value.Equal(decimal.RequireFromString("3.0")), "got %s", b.Value)
}

func TestRunMonthlyAccrual_JoinedAfterEffectiveDateExcluded(t *testing.T) {
	// emp-2 joined January 15, so the January 1 run does not credit them.
	f := newAccrualFixture()

	report, err := f.sched.RunMonthlyAccrual(context.Background(), time.Date(2025, time.January, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, 1, report.Credited)
	exists, err := f.ledger.Exists(context.Background(), ledger.EntryKey{
		EmployeeID:    "emp-2",
		LeaveTypeID:   "annual",
		EntryType:     ledger.EntryCredit,
		EffectiveDate: generic.NewTimePoint(2025, time.January, 1),
		ReferenceType: ledger.RefPolicyAccrual,
	})
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRunMonthlyAccrual_SkipsRulesNotDue(t *testing.T) {
	f := newAccrualFixture()
	yearly := monthlyPolicy("bonus-policy", "org-1", "bonus", "5")
	yearly.Rules[0].Frequency = leave.FreqYearly
	f.policies.policies = append(f.policies.policies, yearly)

	march, err := f.sched.RunMonthlyAccrual(context.Background(), march17())
	require.NoError(t, err)
	assert.Equal(t, 2, march.Credited, "yearly rule is not due in March")

	jan, err := f.sched.RunMonthlyAccrual(context.Background(), time.Date(2025, time.January, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, jan.Credited, "emp-1 annual + emp-1 bonus; emp-2 not joined yet")
}

func TestRunMonthlyAccrual_SkipsPoliciesOutOfForce(t *testing.T) {
	f := newAccrualFixture()
	f.policies.policies[0].Validity.End = generic.NewTimePoint(2025, time.February, 28)

	report, err := f.sched.RunMonthlyAccrual(context.Background(), march17())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Credited)
	assert.Equal(t, 0, f.store.Count())
}

func TestRunMonthlyAccrual_UnitFailureIsolated(t *testing.T) {
	// GIVEN: the store rejects writes for emp-1 only
	// THEN: emp-2 is still credited and emp-1 is reported
	f := newAccrualFixture()
	f.store.FailAppend = func(e ledger.Entry) error {
		if e.EmployeeID == "emp-1" {
			return errors.New("disk I/O error")
		}
		return nil
	}

	report, err := f.sched.RunMonthlyAccrual(context.Background(), march17())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Credited)
	require.Len(t, report.Failures, 1)
	assert.False(t, report.OK())
	assert.Equal(t, generic.EmployeeID("emp-1"), report.Failures[0].EmployeeID)
	assert.True(t, generic.IsRetryable(report.Failures[0].Err))

	// A retry after the store recovers credits only the missing unit.
	f.store.FailAppend = nil
	retry, err := f.sched.RunMonthlyAccrual(context.Background(), march17())
	require.NoError(t, err)
	assert.Equal(t, 1, retry.Credited)
	assert.Equal(t, 1, retry.Skipped)
}

func TestRunMonthlyAccrual_DuplicateFromStoreCountsAsSkipped(t *testing.T) {
	// Simulates losing the race to a concurrent run between Exists and Append.
	f := newAccrualFixture()
	f.store.FailAppend = func(ledger.Entry) error { return generic.ErrDuplicateEntry }

	report, err := f.sched.RunMonthlyAccrual(context.Background(), march17())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Credited)
	assert.Equal(t, 2, report.Skipped)
	assert.True(t, report.OK())
}

func TestRunMonthlyAccrual_RosterFailureReported(t *testing.T) {
	f := newAccrualFixture()
	f.policies.policies = append(f.policies.policies, monthlyPolicy("org2-policy", "org-2", "annual", "2"))
	f.roster.errFor = map[generic.OrgID]error{"org-2": errors.New("roster timeout")}

	report, err := f.sched.RunMonthlyAccrual(context.Background(), march17())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Credited, "org-1 unaffected")
	require.Len(t, report.Failures, 1)
	assert.Equal(t, generic.PolicyID("org2-policy"), report.Failures[0].PolicyID)
	assert.Empty(t, report.Failures[0].EmployeeID)
}

func TestRunMonthlyAccrual_PolicyLoadFailureAborts(t *testing.T) {
	f := newAccrualFixture()
	f.policies.err = errors.New("connection refused")

	report, err := f.sched.RunMonthlyAccrual(context.Background(), march17())
	assert.Nil(t, report)
	assert.ErrorIs(t, err, generic.ErrStoreUnavailable)
}

func TestRunMonthlyAccrual_ConcurrentRunsCreditOnce(t *testing.T) {
	f := newAccrualFixture()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		credits int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := f.sched.RunMonthlyAccrual(ctx, march17())
			assert.NoError(t, err)
			assert.True(t, report.OK())
			mu.Lock()
			credits += report.Credited
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, credits)
	assert.Equal(t, 2, f.store.Count())
}

func TestRunMonthlyAccrual_CancelledContext(t *testing.T) {
	f := newAccrualFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := f.sched.RunMonthlyAccrual(ctx, march17())
	require.NoError(t, err)
	assert.Len(t, report.Failures, 2)
	assert.Equal(t, 0, f.store.Count())
}
