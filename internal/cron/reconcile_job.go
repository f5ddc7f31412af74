package cron

import (
	"context"
	"errors"
)

type cycleRunner interface {
	RunCycle(ctx context.Context) error
}

// ReconcileJob runs one inventory reconciliation cycle.
type ReconcileJob struct {
	runner cycleRunner
}

// NewReconcileJob builds the job.
func NewReconcileJob(runner cycleRunner) (*ReconcileJob, error) {
	if runner == nil {
		return nil, errors.New("cycle runner required")
	}
	return &ReconcileJob{runner: runner}, nil
}

func (j *ReconcileJob) Name() string { return "inventory_reconcile" }

func (j *ReconcileJob) Run(ctx context.Context) error {
	return j.runner.RunCycle(ctx)
}
