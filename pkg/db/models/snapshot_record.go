package models

import (
	"time"

	"github.com/lib/pq"
)

// SnapshotRecord is the persisted state of one SKU as of the previous
// reconciliation cycle. The table holds exactly one generation; it is fully
// replaced on every cycle.
type SnapshotRecord struct {
	SKU           string         `gorm:"column:sku;primaryKey"`
	ProductID     string         `gorm:"column:product_id;not null"`
	Stock         int            `gorm:"column:stock;not null;default:0"`
	WarehouseID   string         `gorm:"column:warehouse_id;not null"`
	WarehouseName string         `gorm:"column:warehouse_name;not null"`
	WarehouseIDs  pq.StringArray `gorm:"column:warehouse_ids;type:text[]"`
	LastCheckedAt time.Time      `gorm:"column:last_checked_at;not null"`
}

func (SnapshotRecord) TableName() string { return "snapshot_records" }
