package cron

import (
	"context"
	"errors"
	"time"

	"github.com/tmorales/waresync-backend/pkg/logger"
)

type terminalEventPruner interface {
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// QueueRetentionJob trims terminal queue events older than the retention
// window. Pending rows are never touched.
type QueueRetentionJob struct {
	pruner        terminalEventPruner
	logg          *logger.Logger
	retentionDays int
	now           func() time.Time
}

// NewQueueRetentionJob builds the job.
func NewQueueRetentionJob(pruner terminalEventPruner, logg *logger.Logger, retentionDays int) (*QueueRetentionJob, error) {
	if pruner == nil {
		return nil, errors.New("event pruner required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &QueueRetentionJob{
		pruner:        pruner,
		logg:          logg,
		retentionDays: retentionDays,
		now:           time.Now,
	}, nil
}

func (j *QueueRetentionJob) Name() string { return "queue_retention" }

func (j *QueueRetentionJob) Run(ctx context.Context) error {
	if j.retentionDays <= 0 {
		return nil
	}
	cutoff := j.now().UTC().AddDate(0, 0, -j.retentionDays)
	deleted, err := j.pruner.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 {
		j.logg.Info(j.logg.WithField(ctx, "deleted", deleted), "pruned terminal queue events")
	}
	return nil
}
