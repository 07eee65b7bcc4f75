/*
scheduler.go - Wall-clock trigger for the accrual batch

PURPOSE:
  Runs leave.AccrualScheduler on a ticker and records every run, scheduled
  or manual, in the accrual_runs table for audit.

DESIGN:
  - Runs once on start, then every Interval
  - Each tick passes the current time; the batch normalises it to the
    first of the month, so ticks within a month after the first credit
    only skip
  - A run is saved as "running" before it starts and updated to
    "completed", "partial" (some units failed) or "failed" (policies could
    not be loaded) when it ends

USAGE:
  trigger := NewAccrualTrigger(scheduler, store, time.Hour, logger)
  trigger.Start()
  // ... later
  trigger.Stop()

SEE ALSO:
  - leave/accrual.go: The batch itself
  - handlers.go: RunAccrual endpoint (manual trigger)
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/attendance-ledger/generic"
	"github.com/warp/attendance-ledger/leave"
	"github.com/warp/attendance-ledger/store/sqlite"
)

// Run triggers and statuses stored in accrual_runs.
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"

	RunRunning   = "running"
	RunCompleted = "completed"
	RunPartial   = "partial"
	RunFailed    = "failed"
)

// AccrualRunStore persists accrual run history.
type AccrualRunStore interface {
	SaveAccrualRun(ctx context.Context, r sqlite.AccrualRun) error
}

// AccrualTrigger handles scheduled and manual accrual runs.
type AccrualTrigger struct {
	Scheduler *leave.AccrualScheduler
	Runs      AccrualRunStore

	// Interval between scheduled runs. Zero disables the ticker; manual
	// runs still work.
	Interval time.Duration
	Logger   *slog.Logger

	// Injected for deterministic tests.
	Now   func() time.Time
	NewID func() string

	ticker *time.Ticker
	stop   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewAccrualTrigger creates a trigger. Call Start to begin ticking.
func NewAccrualTrigger(s *leave.AccrualScheduler, runs AccrualRunStore, interval time.Duration, logger *slog.Logger) *AccrualTrigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccrualTrigger{
		Scheduler: s,
		Runs:      runs,
		Interval:  interval,
		Logger:    logger.With("component", "accrual-trigger"),
		Now:       time.Now,
		NewID:     uuid.NewString,
	}
}

// Start begins the scheduled runs.
func (t *AccrualTrigger) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Interval <= 0 {
		t.Logger.Info("scheduled accrual disabled")
		return
	}
	if t.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.ticker = time.NewTicker(t.Interval)
	t.stop = make(chan struct{})
	t.cancel = cancel
	t.wg.Add(1)

	go t.run(ctx)

	t.Logger.Info("scheduled accrual started", "interval", t.Interval)
}

// Stop stops the ticker and waits for an in-flight run, which is cancelled.
func (t *AccrualTrigger) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ticker == nil {
		return
	}
	t.ticker.Stop()
	close(t.stop)
	t.cancel()
	t.wg.Wait()
	t.ticker = nil
	t.Logger.Info("scheduled accrual stopped")
}

func (t *AccrualTrigger) run(ctx context.Context) {
	defer t.wg.Done()

	t.tick(ctx)

	for {
		select {
		case <-t.ticker.C:
			t.tick(ctx)
		case <-t.stop:
			return
		}
	}
}

func (t *AccrualTrigger) tick(ctx context.Context) {
	if _, _, err := t.RunOnce(ctx, t.Now(), TriggerScheduled); err != nil {
		t.Logger.Error("scheduled accrual failed", "error", err)
	}
}

// RunNow triggers an immediate scheduled-style run (for testing/admin).
func (t *AccrualTrigger) RunNow(ctx context.Context) (*leave.AccrualReport, error) {
	_, report, err := t.RunOnce(ctx, t.Now(), TriggerScheduled)
	return report, err
}

// RunOnce runs the batch for the month of asOf and records the run. The
// returned error is the batch's own; failing to record the run is logged.
func (t *AccrualTrigger) RunOnce(ctx context.Context, asOf time.Time, trigger string) (string, *leave.AccrualReport, error) {
	run := sqlite.AccrualRun{
		ID:            t.NewID(),
		EffectiveDate: generic.MonthStart(asOf, t.Scheduler.Location),
		Trigger:       trigger,
		Status:        RunRunning,
		StartedAt:     t.Now(),
	}
	t.save(ctx, run)

	report, err := t.Scheduler.RunMonthlyAccrual(ctx, asOf)

	completed := t.Now()
	run.CompletedAt = &completed
	switch {
	case err != nil:
		run.Status = RunFailed
		run.Error = err.Error()
	case !report.OK():
		run.Status = RunPartial
		run.Credited, run.Skipped, run.Failed = report.Credited, report.Skipped, len(report.Failures)
		run.Error = report.Failures[0].Error()
	default:
		run.Status = RunCompleted
		run.Credited, run.Skipped = report.Credited, report.Skipped
	}
	// Record the outcome even if the request context was cancelled mid-run.
	t.save(context.WithoutCancel(ctx), run)

	if err != nil {
		return run.ID, nil, err
	}
	t.Logger.Info("accrual run finished",
		"run_id", run.ID,
		"trigger", trigger,
		"effective_date", run.EffectiveDate.String(),
		"credited", run.Credited,
		"skipped", run.Skipped,
		"failed", run.Failed)
	return run.ID, report, nil
}

func (t *AccrualTrigger) save(ctx context.Context, run sqlite.AccrualRun) {
	if t.Runs == nil {
		return
	}
	if err := t.Runs.SaveAccrualRun(ctx, run); err != nil {
		t.Logger.Warn("failed to record accrual run", "run_id", run.ID, "status", run.Status, "error", err)
	}
}
