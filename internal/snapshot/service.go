package snapshot

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tmorales/waresync-backend/internal/detector"
	"github.com/tmorales/waresync-backend/pkg/db/models"
	pkgerrors "github.com/tmorales/waresync-backend/pkg/errors"
	"github.com/tmorales/waresync-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the snapshot store to the reconciliation cycle and the
// event worker.
type Service struct {
	repo Repository
	db   txRunner
	logg *logger.Logger
	now  func() time.Time
}

// NewService builds the snapshot service.
func NewService(repo Repository, db txRunner, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "snapshot repository required")
	}
	if db == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "db runner required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger required")
	}
	return &Service{repo: repo, db: db, logg: logg, now: time.Now}, nil
}

// LoadBaseline returns the previous generation keyed by SKU. An unreadable
// snapshot degrades to an empty baseline so the cycle can proceed; the
// removal reconciler only acts on downstream presence, so this is safe.
func (s *Service) LoadBaseline(ctx context.Context) map[string]models.SnapshotRecord {
	rows, err := s.repo.All(ctx)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()),
			"snapshot unreadable; starting from empty baseline")
		return map[string]models.SnapshotRecord{}
	}
	baseline := make(map[string]models.SnapshotRecord, len(rows))
	for _, row := range rows {
		baseline[row.SKU] = row
	}
	return baseline
}

// Persist replaces the snapshot generation with the current items.
func (s *Service) Persist(ctx context.Context, items []detector.Item) error {
	checkedAt := s.now().UTC()
	records := make([]models.SnapshotRecord, 0, len(items))
	for _, item := range items {
		if item.SKU == "" {
			continue
		}
		records = append(records, models.SnapshotRecord{
			SKU:           item.SKU,
			ProductID:     item.ProductID,
			Stock:         item.Stock,
			WarehouseID:   item.WarehouseID,
			WarehouseName: item.WarehouseName,
			WarehouseIDs:  item.WarehouseIDs,
			LastCheckedAt: checkedAt,
		})
	}

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.ReplaceAll(ctx, tx, records)
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "replace snapshot generation")
	}
	return nil
}

// ResolveProducts returns the snapshot rows for the given SKUs, keyed by SKU.
// Event handlers use this as the product snapshot for payload resolution.
func (s *Service) ResolveProducts(ctx context.Context, skus []string) (map[string]models.SnapshotRecord, error) {
	rows, err := s.repo.FindBySKUs(ctx, skus)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load product snapshot")
	}
	out := make(map[string]models.SnapshotRecord, len(rows))
	for _, row := range rows {
		out[row.SKU] = row
	}
	return out, nil
}
