package cron

import (
	"context"
	"errors"
)

type cycleReportPruner interface {
	PruneCycles(ctx context.Context, retentionDays int) (int64, error)
}

// ReportRetentionJob trims cycle reports older than the retention window.
type ReportRetentionJob struct {
	pruner        cycleReportPruner
	retentionDays int
}

// NewReportRetentionJob builds the job.
func NewReportRetentionJob(pruner cycleReportPruner, retentionDays int) (*ReportRetentionJob, error) {
	if pruner == nil {
		return nil, errors.New("report pruner required")
	}
	return &ReportRetentionJob{pruner: pruner, retentionDays: retentionDays}, nil
}

func (j *ReportRetentionJob) Name() string { return "report_retention" }

func (j *ReportRetentionJob) Run(ctx context.Context) error {
	_, err := j.pruner.PruneCycles(ctx, j.retentionDays)
	return err
}
