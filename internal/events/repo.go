package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tmorales/waresync-backend/pkg/db/models"
	"github.com/tmorales/waresync-backend/pkg/enums"
)

const maxStoredErrorLen = 1024

// Repository persists queue events and their dead-letter rows.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a queue repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Insert appends a new pending event. The enclosing transaction is required
// so producers stay atomic with their own writes.
func (r *Repository) Insert(tx *gorm.DB, event *models.QueueEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(event).Error
}

// FetchDue returns pending events whose next attempt is due, oldest first.
func (r *Repository) FetchDue(tx *gorm.DB, now time.Time, limit int) ([]models.QueueEvent, error) {
	if tx == nil {
		tx = r.db
	}
	var rows []models.QueueEvent
	err := tx.
		Where("status = ? AND next_attempt_at <= ?", enums.EventStatusPending, now).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// MarkDone transitions an event to its terminal success state.
func (r *Repository) MarkDone(tx *gorm.DB, id uuid.UUID, at time.Time) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Model(&models.QueueEvent{}).
		Where("id = ? AND status = ?", id, enums.EventStatusPending).
		Updates(map[string]any{
			"status":   enums.EventStatusDone,
			"done_at":  at,
			"attempts": gorm.Expr("attempts + 1"),
		}).Error
}

// MarkRetry bumps the attempt counter and schedules the next attempt.
func (r *Repository) MarkRetry(tx *gorm.DB, id uuid.UUID, handlerErr error, nextAttemptAt time.Time) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Model(&models.QueueEvent{}).
		Where("id = ? AND status = ?", id, enums.EventStatusPending).
		Updates(map[string]any{
			"last_error":      truncateStoredError(handlerErr.Error()),
			"attempts":        gorm.Expr("attempts + 1"),
			"next_attempt_at": nextAttemptAt,
		}).Error
}

// MarkFailed transitions an event to its terminal failure state.
func (r *Repository) MarkFailed(tx *gorm.DB, id uuid.UUID, handlerErr error) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Model(&models.QueueEvent{}).
		Where("id = ? AND status = ?", id, enums.EventStatusPending).
		Updates(map[string]any{
			"status":     enums.EventStatusFailed,
			"last_error": truncateStoredError(handlerErr.Error()),
			"attempts":   gorm.Expr("attempts + 1"),
		}).Error
}

// InsertDLQ records a terminally failed event for operator triage.
func (r *Repository) InsertDLQ(tx *gorm.DB, entry models.QueueEventDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ErrorMessage != nil {
		msg := truncateStoredError(*entry.ErrorMessage)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// ListDLQ returns the newest dead-letter rows.
func (r *Repository) ListDLQ(ctx context.Context, limit int) ([]models.QueueEventDLQ, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.QueueEventDLQ
	err := r.db.WithContext(ctx).
		Order("failed_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// DeleteTerminalBefore trims done and failed events older than the cutoff.
// Pending rows are never touched.
func (r *Repository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?",
			[]enums.QueueEventStatus{enums.EventStatusDone, enums.EventStatusFailed}, cutoff).
		Delete(&models.QueueEvent{})
	return res.RowsAffected, res.Error
}

func truncateStoredError(message string) string {
	if len(message) <= maxStoredErrorLen {
		return message
	}
	return message[:maxStoredErrorLen]
}
