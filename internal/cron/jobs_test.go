package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tmorales/waresync-backend/pkg/logger"
)

type fakeCycleRunner struct {
	runs int
	err  error
}

func (f *fakeCycleRunner) RunCycle(ctx context.Context) error {
	f.runs++
	return f.err
}

type fakeEventPruner struct {
	cutoff time.Time
	calls  int
	err    error
}

func (f *fakeEventPruner) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.calls++
	f.cutoff = cutoff
	if f.err != nil {
		return 0, f.err
	}
	return 2, nil
}

type fakeReportPruner struct {
	days  int
	calls int
}

func (f *fakeReportPruner) PruneCycles(ctx context.Context, retentionDays int) (int64, error) {
	f.calls++
	f.days = retentionDays
	return 1, nil
}

func TestReconcileJobDelegates(t *testing.T) {
	runner := &fakeCycleRunner{err: errors.New("cycle failed")}
	job, err := NewReconcileJob(runner)
	if err != nil {
		t.Fatalf("NewReconcileJob: %v", err)
	}

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected cycle error to propagate")
	}
	if runner.runs != 1 {
		t.Fatalf("expected one cycle, got %d", runner.runs)
	}
}

func TestQueueRetentionJobCutoff(t *testing.T) {
	pruner := &fakeEventPruner{}
	job, err := NewQueueRetentionJob(pruner, logger.New(logger.Options{ServiceName: "test"}), 7)
	if err != nil {
		t.Fatalf("NewQueueRetentionJob: %v", err)
	}
	now := time.Date(2026, 8, 29, 6, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	expected := now.AddDate(0, 0, -7)
	if !pruner.cutoff.Equal(expected) {
		t.Fatalf("expected cutoff %s, got %s", expected, pruner.cutoff)
	}
}

func TestQueueRetentionJobDisabled(t *testing.T) {
	pruner := &fakeEventPruner{}
	job, err := NewQueueRetentionJob(pruner, logger.New(logger.Options{ServiceName: "test"}), 0)
	if err != nil {
		t.Fatalf("NewQueueRetentionJob: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if pruner.calls != 0 {
		t.Fatal("disabled retention must not touch the queue")
	}
}

func TestReportRetentionJobPassesWindow(t *testing.T) {
	pruner := &fakeReportPruner{}
	job, err := NewReportRetentionJob(pruner, 14)
	if err != nil {
		t.Fatalf("NewReportRetentionJob: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if pruner.calls != 1 || pruner.days != 14 {
		t.Fatalf("expected one prune with 14 day window, got calls=%d days=%d", pruner.calls, pruner.days)
	}
}
