package models

import "time"

// LedgerOrder records a downstream order created for an upstream order. The
// unique upstream id makes order creation replay-idempotent.
type LedgerOrder struct {
	UpstreamOrderID   string    `gorm:"column:upstream_order_id;primaryKey"`
	DownstreamOrderID string    `gorm:"column:downstream_order_id;not null"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (LedgerOrder) TableName() string { return "ledger_orders" }
