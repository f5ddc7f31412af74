package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tmorales/waresync-backend/pkg/config"
	"github.com/tmorales/waresync-backend/pkg/db/models"
	"github.com/tmorales/waresync-backend/pkg/enums"
	apperrors "github.com/tmorales/waresync-backend/pkg/errors"
	"github.com/tmorales/waresync-backend/pkg/logger"
	"github.com/tmorales/waresync-backend/pkg/metrics"
	"github.com/tmorales/waresync-backend/pkg/pubsub"
)

const (
	defaultSweepBatch  = 50
	defaultMaxAttempts = 3
)

// Handler processes one event of a single type. A nil error marks the event
// done; a non-retryable error (or exhausting the attempt limit) dead-letters
// it; anything else schedules a retry.
type Handler interface {
	Handle(ctx context.Context, event models.QueueEvent) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type queueRepository interface {
	FetchDue(tx *gorm.DB, now time.Time, limit int) ([]models.QueueEvent, error)
	MarkDone(tx *gorm.DB, id uuid.UUID, at time.Time) error
	MarkRetry(tx *gorm.DB, id uuid.UUID, handlerErr error, nextAttemptAt time.Time) error
	MarkFailed(tx *gorm.DB, id uuid.UUID, handlerErr error) error
	InsertDLQ(tx *gorm.DB, entry models.QueueEventDLQ) error
}

// SweeperParams holds the dependencies for the sweeper.
type SweeperParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       txRunner
	Repo     queueRepository
	Handlers map[enums.QueueEventType]Handler
	Metrics  *metrics.SweepMetrics
	Alerts   *pubsub.AlertPublisher
}

// Sweeper drains due pending events in single passes.
type Sweeper struct {
	cfg         *config.Config
	logg        *logger.Logger
	db          txRunner
	repo        queueRepository
	handlers    map[enums.QueueEventType]Handler
	metrics     *metrics.SweepMetrics
	alerts      *pubsub.AlertPublisher
	batchSize   int
	maxAttempts int
	now         func() time.Time
}

// NewSweeper validates the params and builds a sweeper.
func NewSweeper(params SweeperParams) (*Sweeper, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Repo == nil {
		return nil, errors.New("queue repository is required")
	}
	if len(params.Handlers) == 0 {
		return nil, errors.New("at least one handler is required")
	}

	batch := params.Config.Queue.SweepBatchSize
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	maxAttempts := params.Config.Queue.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	return &Sweeper{
		cfg:         params.Config,
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repo,
		handlers:    params.Handlers,
		metrics:     params.Metrics,
		alerts:      params.Alerts,
		batchSize:   batch,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}, nil
}

// Sweep runs one pass over due pending events. It returns whether any event
// was processed so the caller can poll again immediately on a busy queue.
func (s *Sweeper) Sweep(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchDue(tx, s.now().UTC(), s.batchSize)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		processed = true

		for _, event := range events {
			if err := s.processEvent(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	return processed, err
}

// processEvent dispatches one event and persists its state transition.
// Handler errors are isolated per event; only bookkeeping failures abort
// the sweep.
func (s *Sweeper) processEvent(ctx context.Context, tx *gorm.DB, event models.QueueEvent) error {
	fields := map[string]any{
		"event_id":   event.ID.String(),
		"event_type": event.EventType,
		"attempts":   event.Attempts,
	}
	logCtx := s.logg.WithFields(ctx, fields)

	handler, ok := s.handlers[event.EventType]
	if !ok {
		err := apperrors.New(apperrors.CodeValidation, "no handler for event type "+string(event.EventType))
		return s.deadLetter(logCtx, tx, event, enums.DLQReasonNonRetryable, err)
	}

	handleErr := handler.Handle(ctx, event)
	if handleErr == nil {
		if err := s.repo.MarkDone(tx, event.ID, s.now().UTC()); err != nil {
			return fmt.Errorf("mark done %s: %w", event.ID, err)
		}
		s.metrics.IncDone(string(event.EventType))
		s.logg.Info(logCtx, "queue event done")
		return nil
	}

	if !apperrors.IsRetryable(handleErr) {
		return s.deadLetter(logCtx, tx, event, enums.DLQReasonNonRetryable, handleErr)
	}

	nextAttempt := event.Attempts + 1
	if nextAttempt >= s.maxAttempts {
		return s.deadLetter(logCtx, tx, event, enums.DLQReasonMaxAttempts,
			fmt.Errorf("max attempts reached: %w", handleErr))
	}

	delay := nextAttemptDelay(s.cfg.Queue.BackoffBase, s.cfg.Queue.BackoffMax, nextAttempt)
	nextAt := s.now().UTC().Add(delay)
	if err := s.repo.MarkRetry(tx, event.ID, handleErr, nextAt); err != nil {
		return fmt.Errorf("mark retry %s: %w", event.ID, err)
	}
	s.metrics.IncRetried(string(event.EventType))
	retryCtx := s.logg.WithFields(logCtx, map[string]any{
		"error":           handleErr.Error(),
		"next_attempt_at": nextAt,
	})
	s.logg.Warn(retryCtx, "queue event retry scheduled")
	return nil
}

func (s *Sweeper) deadLetter(ctx context.Context, tx *gorm.DB, event models.QueueEvent, reason enums.QueueDLQErrorReason, cause error) error {
	msg := cause.Error()
	entry := models.QueueEventDLQ{
		EventID:      event.ID,
		EventType:    event.EventType,
		Payload:      event.Payload,
		ErrorReason:  reason,
		ErrorMessage: &msg,
		Attempts:     event.Attempts + 1,
		FailedAt:     s.now().UTC(),
	}
	if err := s.repo.InsertDLQ(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkFailed(tx, event.ID, cause); err != nil {
		return fmt.Errorf("mark failed %s: %w", event.ID, err)
	}
	s.metrics.IncDeadLettered(string(event.EventType))

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"error":        msg,
		"error_reason": reason,
		"error_detail": apperrors.Dump(cause),
	})
	s.logg.Warn(logCtx, "queue event dead-lettered")

	s.alerts.Publish(ctx, pubsub.Alert{
		Kind:       "event_dead_lettered",
		Source:     "event-worker",
		OccurredAt: s.now().UTC(),
		Detail: map[string]any{
			"event_id":     event.ID.String(),
			"event_type":   event.EventType,
			"error_reason": reason,
			"error":        msg,
		},
	})
	return nil
}
