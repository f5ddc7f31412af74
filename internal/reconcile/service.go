// Package reconcile runs the periodic inventory cycle: fetch the current
// warehouse state, classify it against the previous snapshot, retract
// downstream listings for removed products, and bring the sync ledger and
// snapshot forward to match what actually happened downstream.
package reconcile

import (
	"context"
	"errors"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/tmorales/waresync-backend/internal/detector"
	"github.com/tmorales/waresync-backend/internal/events"
	"github.com/tmorales/waresync-backend/internal/reports"
	"github.com/tmorales/waresync-backend/pkg/config"
	"github.com/tmorales/waresync-backend/pkg/db/models"
	"github.com/tmorales/waresync-backend/pkg/enums"
	apperrors "github.com/tmorales/waresync-backend/pkg/errors"
	"github.com/tmorales/waresync-backend/pkg/logger"
	"github.com/tmorales/waresync-backend/pkg/marketplace"
	"github.com/tmorales/waresync-backend/pkg/pubsub"
	"github.com/tmorales/waresync-backend/pkg/warehouse"
)

const defaultRequestPacing = 500 * time.Millisecond

type warehouseAPI interface {
	ListInventories(ctx context.Context) ([]warehouse.Inventory, error)
	ListProducts(ctx context.Context, warehouseID string) ([]warehouse.InventoryItem, error)
}

type marketplaceAPI interface {
	ListListings(ctx context.Context) ([]marketplace.Listing, error)
	DeleteListing(ctx context.Context, listingID string) error
}

type snapshotStore interface {
	LoadBaseline(ctx context.Context) map[string]models.SnapshotRecord
	Persist(ctx context.Context, items []detector.Item) error
}

type ledgerStore interface {
	Entries(ctx context.Context) (map[string]models.LedgerEntry, error)
	Touch(ctx context.Context, entry models.LedgerEntry) error
	ApplyRemovals(ctx context.Context, successful, failed []string) error
}

type reporter interface {
	RecordChangeLog(ctx context.Context, changes detector.ChangeSet) error
	RecordCycle(ctx context.Context, outcome reports.CycleOutcome) error
}

type queueEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, eventType enums.QueueEventType, payload any) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// sleeper waits out the pacing delay; injectable so tests run instantly.
type sleeper func(ctx context.Context, d time.Duration) error

// ServiceParams holds the dependencies for the reconcile service.
type ServiceParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	Warehouse   warehouseAPI
	Marketplace marketplaceAPI
	Snapshots   snapshotStore
	Ledger      ledgerStore
	Reports     reporter
	Events      queueEmitter
	DB          txRunner
	Alerts      *pubsub.AlertPublisher
	Sleep       sleeper
}

// Service orchestrates one reconciliation cycle end to end.
type Service struct {
	cfg       *config.Config
	logg      *logger.Logger
	warehouse warehouseAPI
	market    marketplaceAPI
	snapshots snapshotStore
	ledger    ledgerStore
	reports   reporter
	events    queueEmitter
	db        txRunner
	alerts    *pubsub.AlertPublisher
	sleep     sleeper
	pacing    time.Duration
	now       func() time.Time
}

// NewService validates the params and builds a reconcile service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Warehouse == nil {
		return nil, errors.New("warehouse client is required")
	}
	if params.Marketplace == nil {
		return nil, errors.New("marketplace client is required")
	}
	if params.Snapshots == nil {
		return nil, errors.New("snapshot store is required")
	}
	if params.Ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if params.Reports == nil {
		return nil, errors.New("reports service is required")
	}
	if params.Events == nil {
		return nil, errors.New("event emitter is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}

	pacing := params.Config.Marketplace.RequestPacing
	if pacing <= 0 {
		pacing = defaultRequestPacing
	}
	sleep := params.Sleep
	if sleep == nil {
		sleep = sleepWithContext
	}

	return &Service{
		cfg:       params.Config,
		logg:      params.Logger,
		warehouse: params.Warehouse,
		market:    params.Marketplace,
		snapshots: params.Snapshots,
		ledger:    params.Ledger,
		reports:   params.Reports,
		events:    params.Events,
		db:        params.DB,
		alerts:    params.Alerts,
		sleep:     sleep,
		pacing:    pacing,
		now:       time.Now,
	}, nil
}

// FailedRemoval is one candidate whose downstream deletion did not happen.
type FailedRemoval struct {
	Candidate
	Err error
}

// RemovalResult partitions removal candidates by outcome.
type RemovalResult struct {
	Successful []Candidate
	Failed     []FailedRemoval
	Total      int
}

// DeleteCandidates retracts the given listings one at a time with a pacing
// delay between calls. Failures are isolated per candidate; a candidate
// without a listing id fails immediately with no network call.
func (s *Service) DeleteCandidates(ctx context.Context, candidates []Candidate) RemovalResult {
	result := RemovalResult{Total: len(candidates)}

	for i, candidate := range candidates {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"sku":        candidate.SKU,
			"listing_id": candidate.ListingID,
			"reason":     candidate.Reason,
		})

		if candidate.ListingID == "" {
			err := apperrors.New(apperrors.CodeValidation, "removal candidate has no listing id")
			s.logg.Warn(logCtx, "skipping deletion: missing listing id")
			result.Failed = append(result.Failed, FailedRemoval{Candidate: candidate, Err: err})
			continue
		}

		if i > 0 {
			if err := s.sleep(ctx, s.pacing); err != nil {
				// context gone; remaining candidates were never attempted
				for _, rest := range candidates[i:] {
					result.Failed = append(result.Failed, FailedRemoval{Candidate: rest, Err: err})
				}
				return result
			}
		}

		if err := s.market.DeleteListing(ctx, candidate.ListingID); err != nil {
			s.logg.Error(logCtx, "listing deletion failed", err)
			result.Failed = append(result.Failed, FailedRemoval{Candidate: candidate, Err: err})
			continue
		}
		s.logg.Info(logCtx, "listing deleted")
		result.Successful = append(result.Successful, candidate)
	}

	return result
}

// RunCycle executes one full reconciliation pass. A cycle report is written
// whether the cycle succeeds or fails; the returned error aggregates every
// non-fatal failure encountered along the way.
func (s *Service) RunCycle(ctx context.Context) error {
	startedAt := s.now().UTC()
	outcome := reports.CycleOutcome{StartedAt: startedAt}

	err := s.runCycle(ctx, &outcome)
	outcome.Err = err
	outcome.FinishedAt = s.now().UTC()

	if reportErr := s.reports.RecordCycle(ctx, outcome); reportErr != nil {
		s.logg.Error(ctx, "cycle report write failed", reportErr)
		err = multierr.Append(err, reportErr)
	}

	if err != nil {
		s.alerts.Publish(ctx, pubsub.Alert{
			Kind:       "cycle_failed",
			Source:     "reconciler-worker",
			OccurredAt: s.now().UTC(),
			Detail:     map[string]any{"error": err.Error()},
		})
	}
	return err
}

func (s *Service) runCycle(ctx context.Context, outcome *reports.CycleOutcome) error {
	current, err := s.fetchCurrent(ctx)
	if err != nil {
		return err
	}

	baseline := s.snapshots.LoadBaseline(ctx)
	changes := detector.Classify(current, baseline)
	outcome.Changes = changes
	summary := changes.Summarize()
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"new":           summary.New,
		"removed":       summary.Removed,
		"stock_changed": summary.StockChanged,
		"unchanged":     summary.Unchanged,
	}), "inventory classified")

	listings, err := s.market.ListListings(ctx)
	if err != nil {
		return err
	}

	candidates := Candidates(changes, s.retainedRemovals(ctx, current), listings)
	removal := s.DeleteCandidates(ctx, candidates)
	outcome.Removals = removalOutcomes(removal)

	// Local bookkeeping strictly follows the confirmed downstream result.
	var errs error
	successful := make([]string, 0, len(removal.Successful))
	for _, candidate := range removal.Successful {
		successful = append(successful, candidate.SKU)
	}
	failed := make([]string, 0, len(removal.Failed))
	for _, fr := range removal.Failed {
		failed = append(failed, fr.SKU)
	}
	if err := s.ledger.ApplyRemovals(ctx, successful, failed); err != nil {
		errs = multierr.Append(errs, err)
	}

	if err := s.refreshLedger(ctx, changes); err != nil {
		errs = multierr.Append(errs, err)
	}

	if err := s.emitStockUpdates(ctx, changes); err != nil {
		errs = multierr.Append(errs, err)
	}

	if err := s.snapshots.Persist(ctx, current); err != nil {
		errs = multierr.Append(errs, err)
	}

	if err := s.reports.RecordChangeLog(ctx, changes); err != nil {
		errs = multierr.Append(errs, err)
	}

	return errs
}

// fetchCurrent pulls the authoritative warehouse's products and reduces
// them to reconciliation items.
func (s *Service) fetchCurrent(ctx context.Context) ([]detector.Item, error) {
	inventories, err := s.warehouse.ListInventories(ctx)
	if err != nil {
		return nil, err
	}

	key := s.cfg.Warehouse.AuthoritativeKey
	var authoritative *warehouse.Inventory
	for i := range inventories {
		if inventories[i].Name == key || inventories[i].ID == key {
			authoritative = &inventories[i]
			break
		}
	}
	if authoritative == nil {
		return nil, apperrors.New(apperrors.CodeResolution, "authoritative warehouse "+key+" not found")
	}

	items, err := s.warehouse.ListProducts(ctx, authoritative.ID)
	if err != nil {
		return nil, err
	}
	return detector.FilterSellable(items, *authoritative, key), nil
}

// retainedRemovals flags ledger entries whose SKU is missing from the
// current fetch or sits at zero stock. Such entries outlive a failed or
// unattempted downstream deletion, and once the snapshot generation is
// replaced the diff no longer reports them, so the ledger is what carries
// the removal into the next cycle.
func (s *Service) retainedRemovals(ctx context.Context, current []detector.Item) map[string]enums.RemovalReason {
	entries, err := s.ledger.Entries(ctx)
	if err != nil {
		s.logg.Warn(ctx, "ledger unavailable, retained removals wait for the next cycle")
		return nil
	}

	stock := make(map[string]int, len(current))
	for _, item := range current {
		stock[item.SKU] = item.Stock
	}

	out := make(map[string]enums.RemovalReason)
	for sku := range entries {
		qty, present := stock[sku]
		switch {
		case !present:
			out[sku] = enums.RemovalReasonVanished
		case qty == 0:
			out[sku] = enums.RemovalReasonStockZero
		}
	}
	return out
}

// refreshLedger touches entries for SKUs seen unchanged this cycle.
func (s *Service) refreshLedger(ctx context.Context, changes detector.ChangeSet) error {
	entries, err := s.ledger.Entries(ctx)
	if err != nil {
		return err
	}
	var errs error
	for _, sku := range changes.Unchanged {
		entry, ok := entries[sku]
		if !ok {
			continue
		}
		if err := s.ledger.Touch(ctx, entry); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// emitStockUpdates queues one stock-update event per listing warehouse for
// ledger-linked SKUs whose stock changed to a non-zero quantity. Zero-stock
// changes are handled by the removal path instead.
func (s *Service) emitStockUpdates(ctx context.Context, changes detector.ChangeSet) error {
	entries, err := s.ledger.Entries(ctx)
	if err != nil {
		return err
	}

	byWarehouse := make(map[string][]events.OrderLineItem)
	for _, change := range changes.StockChanged {
		if change.Current <= 0 {
			continue
		}
		entry, ok := entries[change.SKU]
		if !ok {
			continue
		}
		byWarehouse[entry.ListingWarehouseID] = append(byWarehouse[entry.ListingWarehouseID], events.OrderLineItem{
			Ref:      change.SKU,
			Quantity: change.Current,
		})
	}
	if len(byWarehouse) == 0 {
		return nil
	}

	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		for warehouseID, lines := range byWarehouse {
			payload := events.StockUpdatePayload{
				WarehouseID: warehouseID,
				Lines:       lines,
			}
			if err := s.events.Emit(ctx, tx, enums.EventStockUpdate, payload); err != nil {
				return err
			}
		}
		return nil
	})
}

func removalOutcomes(result RemovalResult) []reports.RemovalOutcome {
	out := make([]reports.RemovalOutcome, 0, result.Total)
	for _, candidate := range result.Successful {
		out = append(out, reports.RemovalOutcome{
			SKU:       candidate.SKU,
			ListingID: candidate.ListingID,
			Reason:    candidate.Reason,
			Deleted:   true,
		})
	}
	for _, fr := range result.Failed {
		out = append(out, reports.RemovalOutcome{
			SKU:       fr.SKU,
			ListingID: fr.ListingID,
			Reason:    fr.Reason,
			Deleted:   false,
			Error:     fr.Err.Error(),
		})
	}
	return out
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
