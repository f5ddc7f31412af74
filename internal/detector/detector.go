// Package detector classifies a freshly fetched inventory against the
// previous snapshot generation. Classification is total: every SKU present in
// either side lands in exactly one bucket.
package detector

import (
	"github.com/tmorales/waresync-backend/pkg/db/models"
	"github.com/tmorales/waresync-backend/pkg/enums"
	"github.com/tmorales/waresync-backend/pkg/warehouse"
)

// Item is the reconciliation view of one product: a non-empty SKU and the
// stock figure of the authoritative warehouse.
type Item struct {
	SKU           string   `json:"sku"`
	ProductID     string   `json:"product_id"`
	Stock         int      `json:"stock"`
	WarehouseID   string   `json:"warehouse_id"`
	WarehouseName string   `json:"warehouse_name"`
	WarehouseIDs  []string `json:"warehouse_ids,omitempty"`
}

// StockChange records a quantity move for a SKU present in both generations.
type StockChange struct {
	SKU               string `json:"sku"`
	Previous          int    `json:"previous"`
	Current           int    `json:"current"`
	PreviousWarehouse string `json:"previous_warehouse"`
	CurrentWarehouse  string `json:"current_warehouse"`
}

// RemovedItem is a SKU that existed in the snapshot but vanished from the
// current fetch.
type RemovedItem struct {
	SKU           string `json:"sku"`
	LastStock     int    `json:"last_stock"`
	WarehouseName string `json:"warehouse_name"`
}

// ChangeSet partitions the union of current and previous SKUs into four
// disjoint buckets.
type ChangeSet struct {
	New          []Item
	Removed      []RemovedItem
	StockChanged []StockChange
	Unchanged    []string
}

// Summary holds the per-bucket counts.
type Summary struct {
	New          int `json:"new"`
	Removed      int `json:"removed"`
	StockChanged int `json:"stock_changed"`
	Unchanged    int `json:"unchanged"`
}

// Summarize returns the per-bucket counts.
func (c ChangeSet) Summarize() Summary {
	return Summary{
		New:          len(c.New),
		Removed:      len(c.Removed),
		StockChanged: len(c.StockChanged),
		Unchanged:    len(c.Unchanged),
	}
}

// HasChanges reports whether anything other than Unchanged was detected.
func (c ChangeSet) HasChanges() bool {
	return len(c.New) > 0 || len(c.Removed) > 0 || len(c.StockChanged) > 0
}

// RemovalEligible returns SKUs that qualify as removal candidates: vanished
// SKUs and SKUs whose stock dropped to exactly zero.
func (c ChangeSet) RemovalEligible() map[string]enums.RemovalReason {
	eligible := make(map[string]enums.RemovalReason)
	for _, removed := range c.Removed {
		eligible[removed.SKU] = enums.RemovalReasonVanished
	}
	for _, change := range c.StockChanged {
		if change.Current == 0 {
			eligible[change.SKU] = enums.RemovalReasonStockZero
		}
	}
	return eligible
}

// FilterSellable reduces raw API items to reconciliation items: rows without
// a SKU are dropped entirely, and only the authoritative warehouse quantity
// is carried forward.
func FilterSellable(items []warehouse.InventoryItem, inv warehouse.Inventory, authoritativeKey string) []Item {
	out := make([]Item, 0, len(items))
	for _, raw := range items {
		if raw.SKU == "" {
			continue
		}
		out = append(out, Item{
			SKU:           raw.SKU,
			ProductID:     raw.ProductID,
			Stock:         raw.Stock(authoritativeKey),
			WarehouseID:   inv.ID,
			WarehouseName: inv.Name,
			WarehouseIDs:  raw.WarehouseIDs,
		})
	}
	return out
}

// Classify compares the current items against the previous snapshot map.
// A SKU absent from the snapshot is New; present with a different stock is
// StockChanged; present with equal stock is Unchanged; snapshot SKUs missing
// from the current fetch are Removed.
func Classify(current []Item, previous map[string]models.SnapshotRecord) ChangeSet {
	var changes ChangeSet
	seen := make(map[string]struct{}, len(current))

	for _, item := range current {
		if _, dup := seen[item.SKU]; dup {
			continue
		}
		seen[item.SKU] = struct{}{}

		prev, ok := previous[item.SKU]
		switch {
		case !ok:
			changes.New = append(changes.New, item)
		case prev.Stock != item.Stock:
			changes.StockChanged = append(changes.StockChanged, StockChange{
				SKU:               item.SKU,
				Previous:          prev.Stock,
				Current:           item.Stock,
				PreviousWarehouse: prev.WarehouseName,
				CurrentWarehouse:  item.WarehouseName,
			})
		default:
			changes.Unchanged = append(changes.Unchanged, item.SKU)
		}
	}

	for sku, prev := range previous {
		if _, ok := seen[sku]; ok {
			continue
		}
		changes.Removed = append(changes.Removed, RemovedItem{
			SKU:           sku,
			LastStock:     prev.Stock,
			WarehouseName: prev.WarehouseName,
		})
	}

	return changes
}
