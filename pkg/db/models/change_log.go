package models

import (
	"encoding/json"
	"time"
)

// ChangeLog holds the change set of the most recent cycle. The table keeps a
// single generation; each cycle replaces it wholesale.
type ChangeLog struct {
	ID        uint            `gorm:"column:id;primaryKey;autoIncrement"`
	Timestamp time.Time       `gorm:"column:timestamp;not null"`
	Changes   json.RawMessage `gorm:"column:changes;type:jsonb;not null"`
	Summary   json.RawMessage `gorm:"column:summary;type:jsonb;not null"`
}

func (ChangeLog) TableName() string { return "change_logs" }
