package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tmorales/waresync-backend/pkg/logger"
)

type fakeLock struct {
	granted    bool
	acquires   int
	releases   int
	acquireErr error
}

func (f *fakeLock) Acquire(ctx context.Context) (bool, error) {
	f.acquires++
	if f.acquireErr != nil {
		return false, f.acquireErr
	}
	return f.granted, nil
}

func (f *fakeLock) Release(ctx context.Context) error {
	f.releases++
	return nil
}

type countingJob struct {
	name string
	runs int
	err  error
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs++
	return j.err
}

func newTestCron(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
		Registry: NewRegistry(jobs...),
		Lock:     lock,
		Interval: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestRunCycleRunsJobsAndReleasesLease(t *testing.T) {
	lock := &fakeLock{granted: true}
	first := &countingJob{name: "first"}
	second := &countingJob{name: "second", err: errors.New("boom")}
	svc := newTestCron(t, lock, first, second)

	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	if first.runs != 1 || second.runs != 1 {
		t.Fatalf("expected each job to run once, got %d and %d", first.runs, second.runs)
	}
	if lock.releases != 1 {
		t.Fatalf("expected lease released once, got %d", lock.releases)
	}
}

func TestRunCycleSkipsWhenLeaseHeld(t *testing.T) {
	lock := &fakeLock{granted: false}
	job := &countingJob{name: "reconcile"}
	svc := newTestCron(t, lock, job)

	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("job must not run while lease is held elsewhere, ran %d times", job.runs)
	}
	if lock.releases != 0 {
		t.Fatalf("unheld lease must not be released, got %d releases", lock.releases)
	}
}

func TestRunCycleLockErrorPropagates(t *testing.T) {
	lock := &fakeLock{acquireErr: errors.New("redis down")}
	job := &countingJob{name: "reconcile"}
	svc := newTestCron(t, lock, job)

	if err := svc.runCycle(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if job.runs != 0 {
		t.Fatal("job must not run when the lease cannot be checked")
	}
}

func TestRegistrySkipsNilJobs(t *testing.T) {
	registry := NewRegistry(nil, &countingJob{name: "only"})
	registry.Register(nil)

	jobs := registry.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	if jobs[0].Name() != "only" {
		t.Fatalf("unexpected job: %s", jobs[0].Name())
	}
}
