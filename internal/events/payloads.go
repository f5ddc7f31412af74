package events

import "github.com/shopspring/decimal"

// OrderLineItem is one line of an upstream order, identified by whatever
// reference the upstream system sent (a SKU or a raw product identifier).
type OrderLineItem struct {
	Ref      string          `json:"ref" validate:"required"`
	Quantity int             `json:"quantity" validate:"required,gt=0"`
	Price    decimal.Decimal `json:"price"`
}

// StockThenOrderPayload drives the combined order-creation and
// stock-zeroing side effect for one upstream order.
type StockThenOrderPayload struct {
	UpstreamOrderID string          `json:"upstream_order_id" validate:"required"`
	Lines           []OrderLineItem `json:"lines" validate:"required,min=1,dive"`
	Comment         string          `json:"comment,omitempty"`
}

// StockUpdatePayload pushes absolute quantities for a set of products in
// one downstream warehouse.
type StockUpdatePayload struct {
	WarehouseID string          `json:"warehouse_id" validate:"required"`
	Lines       []OrderLineItem `json:"lines" validate:"required,min=1,dive"`
}

// ChangedFields flags which listing attributes the producer saw change.
type ChangedFields struct {
	Price    bool `json:"price"`
	Images   bool `json:"images"`
	Features bool `json:"features"`
}

// Any reports whether at least one field changed.
func (c ChangedFields) Any() bool {
	return c.Price || c.Images || c.Features
}

// ProductUpdatePayload pushes changed listing attributes downstream. Only
// the fields flagged in Changed are sent.
type ProductUpdatePayload struct {
	SKU       string            `json:"sku" validate:"required"`
	Changed   ChangedFields     `json:"changed"`
	Price     *decimal.Decimal  `json:"price,omitempty"`
	ImageKeys []string          `json:"image_keys,omitempty"`
	Features  map[string]string `json:"features,omitempty"`
}
