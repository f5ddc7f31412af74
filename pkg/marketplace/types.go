package marketplace

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Listing is one live listing on the downstream marketplace, keyed for
// reconciliation by SKU or external id.
type Listing struct {
	ID          string `json:"id"`
	SKU         string `json:"sku"`
	ExternalID  string `json:"external_id"`
	WarehouseID string `json:"warehouse_id"`
	Stock       int    `json:"stock"`
}

// Key returns the identifier used to correlate the listing with a source SKU.
func (l Listing) Key() string {
	if l.SKU != "" {
		return l.SKU
	}
	return l.ExternalID
}

// StockAdjustment sets the absolute quantity for one product.
type StockAdjustment struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// OrderLine is one resolved line item of an order payload.
type OrderLine struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// OrderPayload is the order-creation request body.
type OrderPayload struct {
	UpstreamOrderID string      `json:"upstream_order_id"`
	Lines           []OrderLine `json:"lines"`
	Comment         string      `json:"comment,omitempty"`
}

// ListingPatch carries only the listing fields that actually changed.
type ListingPatch struct {
	Price     *decimal.Decimal  `json:"price,omitempty"`
	ImageKeys []string          `json:"image_keys,omitempty"`
	Features  map[string]string `json:"features,omitempty"`
}

// IsEmpty reports whether the patch would change nothing.
func (p ListingPatch) IsEmpty() bool {
	return p.Price == nil && len(p.ImageKeys) == 0 && len(p.Features) == 0
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type createOrderData struct {
	ID string `json:"id"`
}
