package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/tmorales/waresync-backend/pkg/enums"
)

// QueueEvent is one durable cross-system action processed with at-least-once
// semantics. Terminal rows (done, failed) are never mutated again.
type QueueEvent struct {
	ID            uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventType     enums.QueueEventType   `gorm:"column:event_type;not null"`
	Payload       json.RawMessage        `gorm:"column:payload;type:jsonb;not null"`
	Status        enums.QueueEventStatus `gorm:"column:status;not null;default:pending"`
	Attempts      int                    `gorm:"column:attempts;not null;default:0"`
	CreatedAt     time.Time              `gorm:"column:created_at;autoCreateTime"`
	DoneAt        *time.Time             `gorm:"column:done_at"`
	LastError     *string                `gorm:"column:last_error"`
	NextAttemptAt time.Time              `gorm:"column:next_attempt_at;not null"`
}

func (QueueEvent) TableName() string { return "queue_events" }
