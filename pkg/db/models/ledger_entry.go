package models

import "time"

// LedgerEntry links a local SKU to its downstream listing. A row is deleted
// only after the downstream deletion is confirmed successful.
type LedgerEntry struct {
	SKU                string     `gorm:"column:sku;primaryKey"`
	ListingID          string     `gorm:"column:listing_id;not null"`
	ListingWarehouseID string     `gorm:"column:listing_warehouse_id"`
	PreviousStock      int        `gorm:"column:previous_stock;not null;default:0"`
	LastCheckedAt      time.Time  `gorm:"column:last_checked_at"`
	SyncedAt           time.Time  `gorm:"column:synced_at"`
	CreatedAt          time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }
