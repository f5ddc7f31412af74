package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tmorales/waresync-backend/pkg/config"
	"github.com/tmorales/waresync-backend/pkg/logger"
)

type fakeSweeper struct {
	results []sweepResult
	calls   int
	cancel  context.CancelFunc
}

type sweepResult struct {
	processed bool
	err       error
}

func (f *fakeSweeper) Sweep(ctx context.Context) (bool, error) {
	if f.calls >= len(f.results) {
		f.cancel()
		return false, nil
	}
	result := f.results[f.calls]
	f.calls++
	if f.calls == len(f.results) {
		f.cancel()
	}
	return result.processed, result.err
}

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(ctx context.Context) error { return f.err }

type fakeLease struct {
	granted  bool
	acquires int
	releases int
}

func (f *fakeLease) Acquire(ctx context.Context) (bool, error) {
	f.acquires++
	return f.granted, nil
}

func (f *fakeLease) Release(ctx context.Context) error {
	f.releases++
	return nil
}

func newTestWorker(t *testing.T, sweeper *fakeSweeper, db *fakePinger) *Service {
	t.Helper()
	cfg := &config.Config{}
	cfg.Queue.PollIntervalMS = 1
	svc, err := NewService(ServiceParams{
		Config:  cfg,
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Sweeper: sweeper,
		DB:      db,
		Lock:    &fakeLease{granted: true},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestRunDrainsBusyQueue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sweeper := &fakeSweeper{
		results: []sweepResult{
			{processed: true},
			{processed: true},
			{processed: false},
		},
		cancel: cancel,
	}
	svc := newTestWorker(t, sweeper, &fakePinger{})

	err := svc.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if sweeper.calls != 3 {
		t.Fatalf("expected 3 sweeps, got %d", sweeper.calls)
	}
}

func TestRunContinuesAfterSweepError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sweeper := &fakeSweeper{
		results: []sweepResult{
			{err: errors.New("deadlock detected")},
			{processed: true},
		},
		cancel: cancel,
	}
	svc := newTestWorker(t, sweeper, &fakePinger{})

	err := svc.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if sweeper.calls != 2 {
		t.Fatalf("expected loop to survive the sweep error, got %d calls", sweeper.calls)
	}
}

func TestRunFailsWhenDatabaseUnreachable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sweeper := &fakeSweeper{cancel: cancel}
	svc := newTestWorker(t, sweeper, &fakePinger{err: errors.New("connection refused")})

	if err := svc.Run(ctx); err == nil {
		t.Fatal("expected ping failure to stop the worker")
	}
	if sweeper.calls != 0 {
		t.Fatal("no sweeps expected when the database is unreachable")
	}
}

func TestSweepLockedSkipsWhenLeaseHeld(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sweeper := &fakeSweeper{cancel: cancel}
	svc := newTestWorker(t, sweeper, &fakePinger{})
	held := &fakeLease{granted: false}
	svc.lock = held

	processed, err := svc.sweepLocked(ctx)
	if err != nil {
		t.Fatalf("sweepLocked: %v", err)
	}
	if processed {
		t.Fatal("held lease must report an idle pass")
	}
	if sweeper.calls != 0 {
		t.Fatal("no sweep expected while the lease is held elsewhere")
	}
	if held.releases != 0 {
		t.Fatal("unheld lease must not be released")
	}
}

func TestSweepLockedReleasesAfterSweep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sweeper := &fakeSweeper{results: []sweepResult{{processed: true}}, cancel: cancel}
	svc := newTestWorker(t, sweeper, &fakePinger{})
	lock := &fakeLease{granted: true}
	svc.lock = lock

	processed, err := svc.sweepLocked(ctx)
	if err != nil {
		t.Fatalf("sweepLocked: %v", err)
	}
	if !processed {
		t.Fatal("expected sweep to report work")
	}
	if lock.acquires != 1 || lock.releases != 1 {
		t.Fatalf("expected one acquire and one release, got %d/%d", lock.acquires, lock.releases)
	}
}

func TestNextBackoffDoublesToCeiling(t *testing.T) {
	base := 5 * time.Second
	max := 2 * time.Minute

	got := nextBackoff(base, base, max)
	if got != 10*time.Second {
		t.Fatalf("expected 10s, got %v", got)
	}
	got = nextBackoff(90*time.Second, base, max)
	if got != max {
		t.Fatalf("expected ceiling %v, got %v", max, got)
	}
	got = nextBackoff(0, base, max)
	if got != 2*base {
		t.Fatalf("expected reset to 2x base, got %v", got)
	}
}

func TestWithJitterBounds(t *testing.T) {
	d := time.Second
	for i := 0; i < 50; i++ {
		got := withJitter(d)
		if got < d || got >= d+jitterWindow {
			t.Fatalf("jitter out of bounds: %v", got)
		}
	}
	if got := withJitter(0); got != 0 {
		t.Fatalf("expected zero, got %v", got)
	}
}
