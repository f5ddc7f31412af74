package warehouse

import "encoding/json"

// Inventory identifies one warehouse scope in the source system.
type Inventory struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// InventoryItem is one product row as served by the source warehouse API.
// Items without a SKU are not usable for reconciliation and are filtered out
// by the caller.
type InventoryItem struct {
	ProductID        string            `json:"id"`
	SKU              string            `json:"sku"`
	Name             string            `json:"name"`
	StockByWarehouse map[string]int    `json:"stock_by_warehouse"`
	WarehouseIDs     []string          `json:"warehouse_ids"`
	Price            string            `json:"price,omitempty"`
	ImageKeys        []string          `json:"image_keys,omitempty"`
	Features         map[string]string `json:"features,omitempty"`
}

// Stock returns the quantity recorded for the given warehouse key, 0 if absent.
func (i InventoryItem) Stock(warehouseKey string) int {
	if i.StockByWarehouse == nil {
		return 0
	}
	return i.StockByWarehouse[warehouseKey]
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type productPage struct {
	Items []InventoryItem `json:"items"`
	Total int             `json:"total"`
}
