package events

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/tmorales/waresync-backend/pkg/db/models"
	apperrors "github.com/tmorales/waresync-backend/pkg/errors"
	"github.com/tmorales/waresync-backend/pkg/logger"
	"github.com/tmorales/waresync-backend/pkg/marketplace"
)

type marketplaceAPI interface {
	CreateOrder(ctx context.Context, payload marketplace.OrderPayload) (string, error)
	UpdateStock(ctx context.Context, warehouseID string, adjustments []marketplace.StockAdjustment) error
	UpdateListing(ctx context.Context, listingID string, patch marketplace.ListingPatch) error
}

type productResolver interface {
	ResolveProducts(ctx context.Context, skus []string) (map[string]models.SnapshotRecord, error)
}

type syncLedger interface {
	FindOrder(ctx context.Context, upstreamOrderID string) (*models.LedgerOrder, error)
	RecordOrder(ctx context.Context, upstreamOrderID, downstreamOrderID string) error
	CanonicalSKU(ctx context.Context, raw string) (string, error)
	Entry(ctx context.Context, sku string) (*models.LedgerEntry, error)
}

func decodePayload(event models.QueueEvent, validate *validator.Validate, dest any) error {
	if err := json.Unmarshal(event.Payload, dest); err != nil {
		return apperrors.Wrap(apperrors.CodeParse, err, "decode event payload")
	}
	if err := validate.Struct(dest); err != nil {
		return apperrors.Wrap(apperrors.CodeValidation, err, "invalid event payload")
	}
	return nil
}

// StockThenOrderHandler creates the downstream order for an upstream order
// and zeroes the sold stock. The order is created before any stock call so
// a mid-flight failure never leaves stock decremented with no order; a
// retry finds the recorded order and skips straight to the stock calls.
type StockThenOrderHandler struct {
	market   marketplaceAPI
	products productResolver
	ledger   syncLedger
	logg     *logger.Logger
	validate *validator.Validate
}

// NewStockThenOrderHandler builds the handler.
func NewStockThenOrderHandler(market marketplaceAPI, products productResolver, ledger syncLedger, logg *logger.Logger) *StockThenOrderHandler {
	return &StockThenOrderHandler{
		market:   market,
		products: products,
		ledger:   ledger,
		logg:     logg,
		validate: validator.New(),
	}
}

func (h *StockThenOrderHandler) Handle(ctx context.Context, event models.QueueEvent) error {
	var payload StockThenOrderPayload
	if err := decodePayload(event, h.validate, &payload); err != nil {
		return err
	}

	// Resolution is all-or-nothing: no remote call is made unless every
	// line maps to a known product.
	refs := make([]string, 0, len(payload.Lines))
	for _, line := range payload.Lines {
		refs = append(refs, line.Ref)
	}
	snapshot, err := h.products.ResolveProducts(ctx, refs)
	if err != nil {
		return err
	}
	for _, line := range payload.Lines {
		if _, ok := snapshot[line.Ref]; !ok {
			return apperrors.New(apperrors.CodeResolution, "unknown product reference "+line.Ref)
		}
	}

	if err := h.ensureOrder(ctx, payload, snapshot); err != nil {
		return err
	}

	return h.zeroStock(ctx, payload, snapshot)
}

// ensureOrder creates and records the downstream order unless a previous
// attempt already did.
func (h *StockThenOrderHandler) ensureOrder(ctx context.Context, payload StockThenOrderPayload, snapshot map[string]models.SnapshotRecord) error {
	existing, err := h.ledger.FindOrder(ctx, payload.UpstreamOrderID)
	if err != nil {
		return err
	}
	if existing != nil {
		h.logg.Info(h.logg.WithField(ctx, "upstream_order_id", payload.UpstreamOrderID),
			"downstream order already created, skipping")
		return nil
	}

	lines := make([]marketplace.OrderLine, 0, len(payload.Lines))
	for _, line := range payload.Lines {
		record := snapshot[line.Ref]
		lines = append(lines, marketplace.OrderLine{
			ProductID: record.ProductID,
			Quantity:  line.Quantity,
			Price:     line.Price,
		})
	}
	orderID, err := h.market.CreateOrder(ctx, marketplace.OrderPayload{
		UpstreamOrderID: payload.UpstreamOrderID,
		Lines:           lines,
		Comment:         payload.Comment,
	})
	if err != nil {
		return err
	}
	return h.ledger.RecordOrder(ctx, payload.UpstreamOrderID, orderID)
}

// zeroStock issues one stock call per warehouse covering the sold lines.
func (h *StockThenOrderHandler) zeroStock(ctx context.Context, payload StockThenOrderPayload, snapshot map[string]models.SnapshotRecord) error {
	byWarehouse := make(map[string][]marketplace.StockAdjustment)
	for _, line := range payload.Lines {
		record := snapshot[line.Ref]
		byWarehouse[record.WarehouseID] = append(byWarehouse[record.WarehouseID], marketplace.StockAdjustment{
			ProductID: record.ProductID,
			Quantity:  0,
		})
	}

	warehouses := make([]string, 0, len(byWarehouse))
	for id := range byWarehouse {
		warehouses = append(warehouses, id)
	}
	sort.Strings(warehouses)

	for _, warehouseID := range warehouses {
		if err := h.market.UpdateStock(ctx, warehouseID, byWarehouse[warehouseID]); err != nil {
			return err
		}
	}
	return nil
}

// StockUpdateHandler pushes absolute quantities downstream in one batched
// call, preferring the ledger-linked SKU over the raw upstream reference.
type StockUpdateHandler struct {
	market   marketplaceAPI
	ledger   syncLedger
	validate *validator.Validate
}

// NewStockUpdateHandler builds the handler.
func NewStockUpdateHandler(market marketplaceAPI, ledger syncLedger) *StockUpdateHandler {
	return &StockUpdateHandler{
		market:   market,
		ledger:   ledger,
		validate: validator.New(),
	}
}

func (h *StockUpdateHandler) Handle(ctx context.Context, event models.QueueEvent) error {
	var payload StockUpdatePayload
	if err := decodePayload(event, h.validate, &payload); err != nil {
		return err
	}

	adjustments := make([]marketplace.StockAdjustment, 0, len(payload.Lines))
	for _, line := range payload.Lines {
		sku, err := h.ledger.CanonicalSKU(ctx, line.Ref)
		if err != nil {
			return err
		}
		adjustments = append(adjustments, marketplace.StockAdjustment{
			ProductID: sku,
			Quantity:  line.Quantity,
		})
	}

	return h.market.UpdateStock(ctx, payload.WarehouseID, adjustments)
}

// ProductUpdateHandler pushes changed listing attributes downstream with a
// minimal patch covering only the flagged fields.
type ProductUpdateHandler struct {
	market   marketplaceAPI
	ledger   syncLedger
	logg     *logger.Logger
	validate *validator.Validate
}

// NewProductUpdateHandler builds the handler.
func NewProductUpdateHandler(market marketplaceAPI, ledger syncLedger, logg *logger.Logger) *ProductUpdateHandler {
	return &ProductUpdateHandler{
		market:   market,
		ledger:   ledger,
		logg:     logg,
		validate: validator.New(),
	}
}

func (h *ProductUpdateHandler) Handle(ctx context.Context, event models.QueueEvent) error {
	var payload ProductUpdatePayload
	if err := decodePayload(event, h.validate, &payload); err != nil {
		return err
	}

	if !payload.Changed.Any() {
		h.logg.Info(h.logg.WithSKU(ctx, payload.SKU), "no listing fields changed, skipping")
		return nil
	}

	entry, err := h.ledger.Entry(ctx, payload.SKU)
	if err != nil {
		return err
	}
	if entry == nil {
		return apperrors.New(apperrors.CodeResolution, "sku "+payload.SKU+" has no downstream listing")
	}

	var patch marketplace.ListingPatch
	if payload.Changed.Price {
		patch.Price = payload.Price
	}
	if payload.Changed.Images {
		patch.ImageKeys = payload.ImageKeys
	}
	if payload.Changed.Features {
		patch.Features = payload.Features
	}
	if patch.IsEmpty() {
		return nil
	}

	return h.market.UpdateListing(ctx, entry.ListingID, patch)
}
