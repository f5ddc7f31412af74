package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/tmorales/waresync-backend/pkg/enums"
)

// CycleReport is the immutable record of one reconciliation run. Rows are
// append-only; they are trimmed only by the retention job.
type CycleReport struct {
	ID         uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StartedAt  time.Time               `gorm:"column:started_at;not null"`
	FinishedAt time.Time               `gorm:"column:finished_at;not null"`
	Status     enums.CycleReportStatus `gorm:"column:status;not null"`
	Changes    json.RawMessage         `gorm:"column:changes;type:jsonb"`
	Removals   json.RawMessage         `gorm:"column:removals;type:jsonb"`
	Summary    json.RawMessage         `gorm:"column:summary;type:jsonb"`
	Error      *string                 `gorm:"column:error"`
	CreatedAt  time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (CycleReport) TableName() string { return "cycle_reports" }
