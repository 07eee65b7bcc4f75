package attendance_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance-ledger/attendance"
	"github.com/warp/attendance-ledger/generic"
)

// =============================================================================
// FAKES
// =============================================================================

type fakePunches struct {
	mu      sync.Mutex
	punches []attendance.PunchEvent
	err     error
}

func (f *fakePunches) add(p attendance.PunchEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.punches = append(f.punches, p)
}

func (f *fakePunches) PunchesBetween(_ context.Context, employeeID generic.EmployeeID, from, to time.Time) ([]attendance.PunchEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []attendance.PunchEvent
	for _, p := range f.punches {
		if p.EmployeeID == employeeID && !p.PunchTime.Before(from) && p.PunchTime.Before(to) {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeShifts struct {
	shift *attendance.ShiftSnapshot
	err   error
}

func (f *fakeShifts) ResolveShift(context.Context, generic.EmployeeID, generic.OrgID) (*attendance.ShiftSnapshot, error) {
	return f.shift, f.err
}

type fakeLeave struct {
	dates map[generic.TimePoint]bool
	err   error
}

func (f *fakeLeave) OnLeave(_ context.Context, _ generic.EmployeeID, _ generic.OrgID, date generic.TimePoint) (bool, error) {
	return f.dates[date], f.err
}

type fakeRecords struct {
	mu      sync.Mutex
	records map[string]attendance.Record
	upserts int
	err     error
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{records: make(map[string]attendance.Record)}
}

func recordKey(employeeID generic.EmployeeID, date generic.TimePoint) string {
	return string(employeeID) + "|" + date.String()
}

func (f *fakeRecords) UpsertRecord(_ context.Context, r attendance.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.upserts++
	f.records[recordKey(r.EmployeeID, r.Date)] = r
	return nil
}

func (f *fakeRecords) GetRecord(_ context.Context, employeeID generic.EmployeeID, date generic.TimePoint) (*attendance.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[recordKey(employeeID, date)]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (f *fakeRecords) RecordsInRange(context.Context, generic.EmployeeID, generic.TimePoint, generic.TimePoint) ([]attendance.Record, error) {
	return nil, errors.New("not used")
}

type fixture struct {
	punches *fakePunches
	shifts  *fakeShifts
	leave   *fakeLeave
	records *fakeRecords
	rec     *attendance.Reconciler
}

func newFixture(loc *time.Location) *fixture {
	shift := nineToSix
	f := &fixture{
		punches: &fakePunches{},
		shifts:  &fakeShifts{shift: &shift},
		leave:   &fakeLeave{dates: map[generic.TimePoint]bool{}},
		records: newFakeRecords(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.rec = attendance.NewReconciler(f.punches, f.shifts, f.leave, f.records, loc, logger)
	return f
}

func (f *fixture) standardDay() {
	f.punches.add(punch("p1", attendance.PunchIn, at("09:00")))
	f.punches.add(punch("p2", attendance.PunchOut, at("13:00")))
	f.punches.add(punch("p3", attendance.PunchIn, at("14:00")))
	f.punches.add(punch("p4", attendance.PunchOut, at("18:00")))
}

// =============================================================================
// RECONCILE
// =============================================================================

func TestReconcile_StandardDay(t *testing.T) {
	// GIVEN: a 09:00-18:00 shift (8h, 10 min grace) and a full day of punches
	// WHEN: reconciling the day
	// THEN: 480 work, 60 break, no lateness, no overtime, PRESENT
	f := newFixture(time.UTC)
	f.standardDay()

	rec, err := f.rec.Reconcile(context.Background(), "org-1", "emp-1", day)
	require.NoError(t, err)

	assert.Equal(t, 480, rec.TotalWorkMinutes)
	assert.Equal(t, 60, rec.TotalBreakMinutes)
	assert.Equal(t, 0, rec.LateMinutes)
	assert.Equal(t, 0, rec.EarlyExitMinutes)
	assert.Equal(t, 0, rec.OvertimeMinutes)
	assert.Equal(t, attendance.StatusPresent, rec.Status)
	require.NotNil(t, rec.Shift)
	assert.Equal(t, nineToSix.StartTime, rec.Shift.StartTime)

	stored, err := f.records.GetRecord(context.Background(), "emp-1", day)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, rec, *stored)
}

func TestReconcile_LateArrival(t *testing.T) {
	f := newFixture(time.UTC)
	f.punches.add(punch("p1", attendance.PunchIn, at("09:25")))
	f.punches.add(punch("p2", attendance.PunchOut, at("18:00")))

	rec, err := f.rec.Reconcile(context.Background(), "org-1", "emp-1", day)
	require.NoError(t, err)
	assert.Equal(t, 15, rec.LateMinutes)
}

func TestReconcile_Idempotent(t *testing.T) {
	f := newFixture(time.UTC)
	f.standardDay()
	ctx := context.Background()

	first, err := f.rec.Reconcile(ctx, "org-1", "emp-1", day)
	require.NoError(t, err)
	second, err := f.rec.Reconcile(ctx, "org-1", "emp-1", day)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, f.records.records, 1, "one record per employee and date")
}

func TestReconcile_RecomputesFromScratch(t *testing.T) {
	// GIVEN: a record reconciled with a trailing IN
	// WHEN: the matching OUT arrives and the day is reconciled again
	// THEN: the record is replaced, not patched
	f := newFixture(time.UTC)
	ctx := context.Background()
	f.punches.add(punch("p1", attendance.PunchIn, at("09:00")))

	before, err := f.rec.Reconcile(ctx, "org-1", "emp-1", day)
	require.NoError(t, err)
	assert.Equal(t, 0, before.TotalWorkMinutes)
	assert.Nil(t, before.LastCheckOut)

	f.punches.add(punch("p2", attendance.PunchOut, at("17:00")))
	after, err := f.rec.Reconcile(ctx, "org-1", "emp-1", day)
	require.NoError(t, err)
	assert.Equal(t, 480, after.TotalWorkMinutes)
	assert.Equal(t, 60, after.EarlyExitMinutes)
}

func TestReconcile_OutOfOrderPunchesAreSorted(t *testing.T) {
	f := newFixture(time.UTC)
	f.punches.add(punch("p4", attendance.PunchOut, at("18:00")))
	f.punches.add(punch("p2", attendance.PunchOut, at("13:00")))
	f.punches.add(punch("p1", attendance.PunchIn, at("09:00")))
	f.punches.add(punch("p3", attendance.PunchIn, at("14:00")))

	rec, err := f.rec.Reconcile(context.Background(), "org-1", "emp-1", day)
	require.NoError(t, err)
	assert.Equal(t, 480, rec.TotalWorkMinutes)
	assert.Equal(t, 60, rec.TotalBreakMinutes)
}

func TestReconcile_NoPunches_Absent(t *testing.T) {
	f := newFixture(time.UTC)

	rec, err := f.rec.Reconcile(context.Background(), "org-1", "emp-1", day)
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusAbsent, rec.Status)
	assert.Nil(t, rec.FirstCheckIn)
	assert.Equal(t, 0, rec.LateMinutes)
	assert.Equal(t, 0, rec.EarlyExitMinutes)
}

func TestReconcile_OnLeaveTakesPrecedence(t *testing.T) {
	// GIVEN: an approved leave window and punches on the same day
	// THEN: ON_LEAVE wins, worked minutes are still recorded
	f := newFixture(time.UTC)
	f.standardDay()
	f.leave.dates[day] = true

	rec, err := f.rec.Reconcile(context.Background(), "org-1", "emp-1", day)
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusOnLeave, rec.Status)
	assert.Equal(t, 480, rec.TotalWorkMinutes)
}

func TestReconcile_NoShift_DegradesGracefully(t *testing.T) {
	f := newFixture(time.UTC)
	f.shifts.shift = nil
	f.punches.add(punch("p1", attendance.PunchIn, at("11:00")))
	f.punches.add(punch("p2", attendance.PunchOut, at("23:00")))

	rec, err := f.rec.Reconcile(context.Background(), "org-1", "emp-1", day)
	require.NoError(t, err)
	assert.Nil(t, rec.Shift)
	assert.Equal(t, 720, rec.TotalWorkMinutes)
	assert.Equal(t, 0, rec.LateMinutes)
	assert.Equal(t, 0, rec.OvertimeMinutes)
	assert.Equal(t, attendance.StatusPresent, rec.Status)
}

func TestReconcile_CollaboratorFailuresDegrade(t *testing.T) {
	f := newFixture(time.UTC)
	f.shifts.err = errors.New("shift service down")
	f.leave.err = errors.New("leave service down")
	f.standardDay()

	rec, err := f.rec.Reconcile(context.Background(), "org-1", "emp-1", day)
	require.NoError(t, err)
	assert.Nil(t, rec.Shift)
	assert.Equal(t, attendance.StatusPresent, rec.Status)
}

func TestReconcile_PunchStoreFailureIsTransient(t *testing.T) {
	f := newFixture(time.UTC)
	f.punches.err = errors.New("connection reset")

	_, err := f.rec.Reconcile(context.Background(), "org-1", "emp-1", day)
	assert.ErrorIs(t, err, generic.ErrStoreUnavailable)
	assert.Equal(t, 0, f.records.upserts, "nothing written on failure")
}

func TestReconcile_RecordStoreFailureIsTransient(t *testing.T) {
	f := newFixture(time.UTC)
	f.records.err = errors.New("database is locked")

	_, err := f.rec.Reconcile(context.Background(), "org-1", "emp-1", day)
	assert.True(t, generic.IsRetryable(err))
}

func TestReconcile_DayBoundariesFollowLocation(t *testing.T) {
	// A punch at 20:00 UTC on March 9 is 01:30 on March 10 in IST and belongs
	// to March 10 there.
	ist := time.FixedZone("IST", 5*3600+1800)
	f := newFixture(ist)
	f.shifts.shift = nil
	f.punches.add(punch("p1", attendance.PunchIn, time.Date(2025, time.March, 9, 20, 0, 0, 0, time.UTC)))

	rec, err := f.rec.Reconcile(context.Background(), "org-1", "emp-1", day)
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusPresent, rec.Status)

	prev, err := f.rec.Reconcile(context.Background(), "org-1", "emp-1", day.AddDays(-1))
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusAbsent, prev.Status)
}

func TestReconcile_ConcurrentCallsConverge(t *testing.T) {
	f := newFixture(time.UTC)
	f.standardDay()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.rec.Reconcile(context.Background(), "org-1", "emp-1", day)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := f.records.GetRecord(context.Background(), "emp-1", day)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 480, stored.TotalWorkMinutes)
	assert.Equal(t, 8, f.records.upserts)
}

func TestReconcileRange(t *testing.T) {
	f := newFixture(time.UTC)
	f.standardDay()

	records, err := f.rec.ReconcileRange(context.Background(), "org-1", "emp-1", day.AddDays(-1), day.AddDays(1))
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, attendance.StatusAbsent, records[0].Status)
	assert.Equal(t, attendance.StatusPresent, records[1].Status)
	assert.Equal(t, attendance.StatusAbsent, records[2].Status)

	_, err = f.rec.ReconcileRange(context.Background(), "org-1", "emp-1", day, day.AddDays(-1))
	assert.ErrorIs(t, err, generic.ErrInvalidPeriod)
}
