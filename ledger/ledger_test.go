package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance-ledger/generic"
	"github.com/warp/attendance-ledger/ledger"
	"github.com/warp/attendance-ledger/ledger/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestLedger(t *testing.T) (*ledger.DefaultLedger, *memory.Memory) {
	t.Helper()
	store := memory.New()
	l := ledger.NewLedger(store)

	seq := 0
	l.NewID = func() string {
		seq++
		return fmt.Sprintf("entry-%d", seq)
	}
	l.Now = func() time.Time { return time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC) }
	return l, store
}

func date(month time.Month, day int) generic.TimePoint {
	return generic.NewTimePoint(2025, month, day)
}

func qty(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func entry(typ ledger.EntryType, quantity string, effective generic.TimePoint) ledger.Entry {
	return ledger.Entry{
		EmployeeID:    "emp-1",
		LeaveTypeID:   "annual",
		EntryType:     typ,
		Quantity:      qty(quantity),
		EffectiveDate: effective,
		ReferenceType: ledger.RefAdmin,
	}
}

func assertDays(t *testing.T, want string, got generic.Amount) {
	t.Helper()
	assert.True(t, got.Value.Equal(qty(want)), "want %s, got %s", want, got.Value.String())
}

func balanceOn(t *testing.T, l *ledger.DefaultLedger, asOf generic.TimePoint) generic.Amount {
	t.Helper()
	b, err := l.BalanceAsOf(context.Background(), "emp-1", "annual", asOf)
	require.NoError(t, err)
	return b
}

// =============================================================================
// BALANCE DERIVATION
// =============================================================================

func TestBalance_TwoMonthlyCredits(t *testing.T) {
	// GIVEN: 1.5 days credited on Jan 1 and Feb 1
	// WHEN: Reading the balance on Feb 15
	// THEN: 3.0 days, exactly
	l, _ := newTestLedger(t)
	ctx := context.Background()

	for _, d := range []generic.TimePoint{date(time.January, 1), date(time.February, 1)} {
		e := entry(ledger.EntryCredit, "1.5", d)
		e.ReferenceType = ledger.RefPolicyAccrual
		_, err := l.Append(ctx, e)
		require.NoError(t, err)
	}

	assertDays(t, "3.0", balanceOn(t, l, date(time.February, 15)))
	assertDays(t, "1.5", balanceOn(t, l, date(time.January, 31)))
	assertDays(t, "0", balanceOn(t, l, date(time.December, 31).AddMonths(-12)))
}

func TestBalance_SignRules(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Append(ctx, entry(ledger.EntryCredit, "10", date(time.January, 1)))
	require.NoError(t, err)
	_, err = l.Append(ctx, entry(ledger.EntryDebit, "2", date(time.January, 10)))
	require.NoError(t, err)
	_, err = l.Append(ctx, entry(ledger.EntryAdjustment, "-0.5", date(time.January, 11)))
	require.NoError(t, err)
	_, err = l.Append(ctx, entry(ledger.EntryAdjustment, "1.25", date(time.January, 12)))
	require.NoError(t, err)

	b, err := l.Calc.Breakdown(ctx, "emp-1", "annual", date(time.January, 31))
	require.NoError(t, err)

	assertDays(t, "10", b.Credited)
	assertDays(t, "2", b.Debited)
	assertDays(t, "0.75", b.Adjusted)
	assertDays(t, "8.75", b.Balance)
}

func TestBalance_IsPureRead(t *testing.T) {
	l, store := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Append(ctx, entry(ledger.EntryCredit, "1", date(time.January, 1)))
	require.NoError(t, err)

	first := balanceOn(t, l, date(time.March, 1))
	second := balanceOn(t, l, date(time.March, 1))
	assert.True(t, first.Value.Equal(second.Value))
	assert.Equal(t, 1, store.Count(), "reading a balance must not write")
}

func TestBalance_FutureEntriesIgnored(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Append(ctx, entry(ledger.EntryCredit, "1", date(time.January, 1)))
	require.NoError(t, err)
	_, err = l.Append(ctx, entry(ledger.EntryCredit, "1", date(time.July, 1)))
	require.NoError(t, err)

	assertDays(t, "1", balanceOn(t, l, date(time.June, 30)))
	assertDays(t, "2", balanceOn(t, l, date(time.July, 1)))
}

// =============================================================================
// REVERSALS
// =============================================================================

func TestReverse_NetsOutEachEntryType(t *testing.T) {
	tests := []struct {
		name     string
		typ      ledger.EntryType
		quantity string
	}{
		{"credit", ledger.EntryCredit, "1.5"},
		{"debit", ledger.EntryDebit, "2"},
		{"positive adjustment", ledger.EntryAdjustment, "0.5"},
		{"negative adjustment", ledger.EntryAdjustment, "-3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newTestLedger(t)
			ctx := context.Background()

			_, err := l.Append(ctx, entry(ledger.EntryCredit, "10", date(time.January, 1)))
			require.NoError(t, err)
			target, err := l.Append(ctx, entry(tt.typ, tt.quantity, date(time.February, 1)))
			require.NoError(t, err)

			rev, err := l.Reverse(ctx, ledger.ReversalRequest{TargetID: target.ID, Reason: "entered in error"})
			require.NoError(t, err)

			assert.Equal(t, ledger.EntryReversal, rev.EntryType)
			assert.Equal(t, target.ID, rev.ReversesID)
			assert.True(t, rev.Quantity.IsPositive(), "reversal quantity is a magnitude")
			assert.Equal(t, target.EffectiveDate, rev.EffectiveDate)
			assertDays(t, "10", balanceOn(t, l, date(time.December, 31)))
		})
	}
}

func TestReverse_Twice_Conflict(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	target, err := l.Append(ctx, entry(ledger.EntryDebit, "1", date(time.March, 10)))
	require.NoError(t, err)

	_, err = l.Reverse(ctx, ledger.ReversalRequest{TargetID: target.ID})
	require.NoError(t, err)

	_, err = l.Reverse(ctx, ledger.ReversalRequest{TargetID: target.ID})
	assert.ErrorIs(t, err, generic.ErrAlreadyReversed)
	assert.True(t, generic.IsConflict(err))
}

func TestReverse_UnknownTarget(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.Reverse(context.Background(), ledger.ReversalRequest{TargetID: "missing"})
	assert.ErrorIs(t, err, generic.ErrEntryNotFound)
	assert.True(t, generic.IsNotFound(err))
}

func TestReverse_CannotTargetReversal(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	target, err := l.Append(ctx, entry(ledger.EntryCredit, "1", date(time.March, 1)))
	require.NoError(t, err)
	rev, err := l.Reverse(ctx, ledger.ReversalRequest{TargetID: target.ID})
	require.NoError(t, err)

	_, err = l.Reverse(ctx, ledger.ReversalRequest{TargetID: rev.ID})
	assert.ErrorIs(t, err, generic.ErrInvalidEntry)
}

func TestReverse_EffectiveBeforeTarget_Rejected(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	target, err := l.Append(ctx, entry(ledger.EntryCredit, "1", date(time.March, 1)))
	require.NoError(t, err)

	_, err = l.Reverse(ctx, ledger.ReversalRequest{TargetID: target.ID, EffectiveDate: date(time.February, 1)})
	assert.ErrorIs(t, err, generic.ErrInvalidEntry)
}

func TestReverse_LaterEffectiveDate(t *testing.T) {
	// GIVEN: a credit on March 1 reversed with effect from April 1
	// THEN: the credit still counts in March and is gone from April
	l, _ := newTestLedger(t)
	ctx := context.Background()

	target, err := l.Append(ctx, entry(ledger.EntryCredit, "2", date(time.March, 1)))
	require.NoError(t, err)
	_, err = l.Reverse(ctx, ledger.ReversalRequest{TargetID: target.ID, EffectiveDate: date(time.April, 1)})
	require.NoError(t, err)

	assertDays(t, "2", balanceOn(t, l, date(time.March, 31)))
	assertDays(t, "0", balanceOn(t, l, date(time.April, 1)))
}

func TestSummarize_ReversalWithMissingTargetCountsNegative(t *testing.T) {
	rev := ledger.Entry{
		ID:            "rev-1",
		EmployeeID:    "emp-1",
		LeaveTypeID:   "annual",
		EntryType:     ledger.EntryReversal,
		Quantity:      qty("1"),
		EffectiveDate: date(time.March, 1),
		ReversesID:    "not-loaded",
	}
	b := ledger.Summarize([]ledger.Entry{rev}, date(time.March, 31))
	assertDays(t, "-1", b.Balance)
}

// =============================================================================
// APPEND VALIDATION AND IDEMPOTENCY
// =============================================================================

func TestAppend_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(e *ledger.Entry)
	}{
		{"zero credit", func(e *ledger.Entry) { e.Quantity = decimal.Zero }},
		{"negative debit", func(e *ledger.Entry) { e.EntryType = ledger.EntryDebit; e.Quantity = qty("-1") }},
		{"zero adjustment", func(e *ledger.Entry) { e.EntryType = ledger.EntryAdjustment; e.Quantity = decimal.Zero }},
		{"missing employee", func(e *ledger.Entry) { e.EmployeeID = "" }},
		{"missing leave type", func(e *ledger.Entry) { e.LeaveTypeID = "" }},
		{"missing effective date", func(e *ledger.Entry) { e.EffectiveDate = generic.TimePoint{} }},
		{"unknown entry type", func(e *ledger.Entry) { e.EntryType = "BONUS" }},
		{"unknown reference type", func(e *ledger.Entry) { e.ReferenceType = "PAYROLL" }},
		{"reversal without target", func(e *ledger.Entry) { e.EntryType = ledger.EntryReversal }},
		{"reverses_id on credit", func(e *ledger.Entry) { e.ReversesID = "entry-9" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, store := newTestLedger(t)
			e := entry(ledger.EntryCredit, "1", date(time.March, 1))
			tt.mutate(&e)

			_, err := l.Append(context.Background(), e)
			assert.ErrorIs(t, err, generic.ErrInvalidEntry)
			assert.True(t, generic.IsClientError(err))
			assert.Equal(t, 0, store.Count())
		})
	}
}

func TestAppend_FillsIDAndCreatedAt(t *testing.T) {
	l, _ := newTestLedger(t)

	got, err := l.Append(context.Background(), entry(ledger.EntryCredit, "1", date(time.March, 1)))
	require.NoError(t, err)
	assert.Equal(t, generic.EntryID("entry-1"), got.ID)
	assert.Equal(t, time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC), got.CreatedAt)
}

func TestAppend_IdempotencyKeyReplay(t *testing.T) {
	l, store := newTestLedger(t)
	ctx := context.Background()

	e := entry(ledger.EntryDebit, "1", date(time.March, 10))
	e.IdempotencyKey = "leave-request-42"

	_, err := l.Append(ctx, e)
	require.NoError(t, err)
	_, err = l.Append(ctx, e)
	assert.ErrorIs(t, err, generic.ErrDuplicateEntry)
	assert.Equal(t, 1, store.Count())
}

func TestAppend_AccrualUniqueness(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	e := entry(ledger.EntryCredit, "1.5", date(time.March, 1))
	e.ReferenceType = ledger.RefPolicyAccrual

	_, err := l.Append(ctx, e)
	require.NoError(t, err)

	exists, err := l.Exists(ctx, e.Key())
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = l.Append(ctx, e)
	assert.ErrorIs(t, err, generic.ErrDuplicateEntry)
}

func TestAppend_StoreFailureIsTransient(t *testing.T) {
	l, store := newTestLedger(t)
	store.FailAppend = func(ledger.Entry) error { return errors.New("disk full") }

	_, err := l.Append(context.Background(), entry(ledger.EntryCredit, "1", date(time.March, 1)))
	assert.ErrorIs(t, err, generic.ErrStoreUnavailable)
	assert.True(t, generic.IsRetryable(err))
}

func TestEntries_OrderedByEffectiveDate(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Append(ctx, entry(ledger.EntryCredit, "1", date(time.March, 1)))
	require.NoError(t, err)
	_, err = l.Append(ctx, entry(ledger.EntryCredit, "1", date(time.January, 1)))
	require.NoError(t, err)
	_, err = l.Append(ctx, entry(ledger.EntryDebit, "1", date(time.March, 1)))
	require.NoError(t, err)

	entries, err := l.Entries(ctx, "emp-1", "annual")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, date(time.January, 1), entries[0].EffectiveDate)
	assert.Equal(t, ledger.EntryCredit, entries[1].EntryType, "ties keep insertion order")
	assert.Equal(t, ledger.EntryDebit, entries[2].EntryType)
}
