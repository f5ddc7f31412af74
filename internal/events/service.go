// Package events implements the durable queue driving cross-system side
// effects: producers append pending events inside their own transactions,
// and the sweeper processes them with bounded retries and a dead-letter
// table for terminal failures.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/tmorales/waresync-backend/pkg/db/models"
	"github.com/tmorales/waresync-backend/pkg/enums"
	apperrors "github.com/tmorales/waresync-backend/pkg/errors"
	"github.com/tmorales/waresync-backend/pkg/logger"
)

// Service is the producer API for the event queue.
type Service struct {
	repo     *Repository
	logg     *logger.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewService builds the queue producer service.
func NewService(repo *Repository, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, errors.New("events: repository is required")
	}
	if logg == nil {
		return nil, errors.New("events: logger is required")
	}
	return &Service{
		repo:     repo,
		logg:     logg,
		validate: validator.New(),
		now:      time.Now,
	}, nil
}

// Emit appends a pending event inside the caller's transaction. The payload
// is validated before it is stored so malformed events never enter the
// queue.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, eventType enums.QueueEventType, payload any) error {
	if tx == nil {
		return errors.New("events: transaction required")
	}
	if !eventType.IsValid() {
		return apperrors.New(apperrors.CodeValidation, "unknown event type "+string(eventType))
	}
	if err := s.validate.Struct(payload); err != nil {
		return apperrors.Wrap(apperrors.CodeValidation, err, "invalid event payload")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, err, "marshal event payload")
	}

	event := models.QueueEvent{
		EventType:     eventType,
		Payload:       raw,
		Status:        enums.EventStatusPending,
		NextAttemptAt: s.now().UTC(),
	}
	if err := s.repo.Insert(tx, &event); err != nil {
		return apperrors.Wrap(apperrors.CodePersistence, err, "insert queue event")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"event_id":   event.ID.String(),
		"event_type": eventType,
	}), "queue event emitted")
	return nil
}
