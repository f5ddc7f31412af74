package ledger

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tmorales/waresync-backend/pkg/db"
	"github.com/tmorales/waresync-backend/pkg/db/models"
	apperrors "github.com/tmorales/waresync-backend/pkg/errors"
	"github.com/tmorales/waresync-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams holds the dependencies for the ledger service.
type ServiceParams struct {
	Repo   Repository
	DB     txRunner
	Logger *logger.Logger
}

// Service tracks which SKUs have been synced downstream and which
// upstream orders already produced a marketplace order.
type Service struct {
	repo Repository
	db   txRunner
	logg *logger.Logger
	now  func() time.Time
}

// NewService validates the params and builds a ledger service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("ledger: repository is required")
	}
	if params.DB == nil {
		return nil, errors.New("ledger: db is required")
	}
	if params.Logger == nil {
		return nil, errors.New("ledger: logger is required")
	}
	return &Service{
		repo: params.Repo,
		db:   params.DB,
		logg: params.Logger,
		now:  time.Now,
	}, nil
}

// Entries returns the full ledger keyed by SKU.
func (s *Service) Entries(ctx context.Context) (map[string]models.LedgerEntry, error) {
	rows, err := s.repo.All(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodePersistence, err, "load ledger entries")
	}
	out := make(map[string]models.LedgerEntry, len(rows))
	for _, row := range rows {
		out[row.SKU] = row
	}
	return out, nil
}

// Link records that a SKU is live downstream under the given listing. The
// upward sync process that creates listings calls this once the listing
// exists; until then the SKU is invisible to removal and stock handling.
// The previous stock is the value the marketplace was last told about.
func (s *Service) Link(ctx context.Context, sku, listingID, warehouseID string, stock int) error {
	now := s.now().UTC()
	entry := models.LedgerEntry{
		SKU:                sku,
		ListingID:          listingID,
		ListingWarehouseID: warehouseID,
		PreviousStock:      stock,
		LastCheckedAt:      now,
		SyncedAt:           now,
	}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.Upsert(ctx, tx, entry)
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CodePersistence, err, "link ledger entry")
	}
	return nil
}

// Touch refreshes the last-checked timestamp on an entry that was seen
// this cycle but did not change.
func (s *Service) Touch(ctx context.Context, entry models.LedgerEntry) error {
	entry.LastCheckedAt = s.now().UTC()
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.Upsert(ctx, tx, entry)
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CodePersistence, err, "touch ledger entry")
	}
	return nil
}

// ApplyRemovals unlinks the SKUs whose downstream deletions were confirmed.
// Failed or never-attempted candidates keep their entries so the next cycle
// retries them.
func (s *Service) ApplyRemovals(ctx context.Context, successful, failed []string) error {
	for _, sku := range failed {
		s.logg.Warn(s.logg.WithSKU(ctx, sku),
			"downstream deletion not confirmed, ledger entry retained")
	}
	if len(successful) == 0 {
		return nil
	}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		for _, sku := range successful {
			if err := s.repo.Delete(ctx, tx, sku); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CodePersistence, err, "apply ledger removals")
	}
	return nil
}

// RecordOrder stores the downstream order created for an upstream order.
// A duplicate upstream id means a retry already recorded the order and
// is not an error.
func (s *Service) RecordOrder(ctx context.Context, upstreamOrderID, downstreamOrderID string) error {
	order := models.LedgerOrder{
		UpstreamOrderID:   upstreamOrderID,
		DownstreamOrderID: downstreamOrderID,
		CreatedAt:         s.now().UTC(),
	}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.CreateOrder(ctx, tx, order)
	})
	if err != nil {
		if db.IsUniqueViolation(err, "ledger_orders_pkey") {
			s.logg.Warn(s.logg.WithField(ctx, "upstream_order_id", upstreamOrderID),
				"order already recorded, skipping")
			return nil
		}
		return apperrors.Wrap(apperrors.CodePersistence, err, "record ledger order")
	}
	return nil
}

// FindOrder returns the recorded order for an upstream id, or nil when
// no downstream order has been created yet.
func (s *Service) FindOrder(ctx context.Context, upstreamOrderID string) (*models.LedgerOrder, error) {
	row, err := s.repo.FindOrder(ctx, upstreamOrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperrors.Wrap(apperrors.CodePersistence, err, "find ledger order")
	}
	return row, nil
}

// Entry returns the ledger entry for a SKU, or nil when the SKU has no
// downstream listing linked.
func (s *Service) Entry(ctx context.Context, sku string) (*models.LedgerEntry, error) {
	row, err := s.repo.FindBySKU(ctx, sku)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperrors.Wrap(apperrors.CodePersistence, err, "find ledger entry")
	}
	return row, nil
}

// CanonicalSKU maps a raw upstream product identifier to the SKU the
// marketplace knows. A ledger entry linked by listing id wins over the
// raw identifier.
func (s *Service) CanonicalSKU(ctx context.Context, raw string) (string, error) {
	entry, err := s.repo.FindByListingID(ctx, raw)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return raw, nil
		}
		return "", apperrors.Wrap(apperrors.CodePersistence, err, "resolve canonical sku")
	}
	return entry.SKU, nil
}
