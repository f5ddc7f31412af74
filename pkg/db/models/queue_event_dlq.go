package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/tmorales/waresync-backend/pkg/enums"
)

// QueueEventDLQ captures terminally failed events for operator triage,
// distinct from the failed status on the event row itself.
type QueueEventDLQ struct {
	ID           uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID      uuid.UUID                 `gorm:"column:event_id;type:uuid;not null"`
	EventType    enums.QueueEventType      `gorm:"column:event_type;not null"`
	Payload      json.RawMessage           `gorm:"column:payload;type:jsonb;not null"`
	ErrorReason  enums.QueueDLQErrorReason `gorm:"column:error_reason;not null"`
	ErrorMessage *string                   `gorm:"column:error_message"`
	Attempts     int                       `gorm:"column:attempts;not null;default:0"`
	FailedAt     time.Time                 `gorm:"column:failed_at;not null"`
	CreatedAt    time.Time                 `gorm:"column:created_at;autoCreateTime"`
}

func (QueueEventDLQ) TableName() string { return "queue_event_dlq" }
