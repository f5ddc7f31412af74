package ledger

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tmorales/waresync-backend/pkg/db/models"
)

// Repository persists ledger entries and downstream order records.
type Repository interface {
	All(ctx context.Context) ([]models.LedgerEntry, error)
	FindBySKU(ctx context.Context, sku string) (*models.LedgerEntry, error)
	FindByListingID(ctx context.Context, listingID string) (*models.LedgerEntry, error)
	Upsert(ctx context.Context, tx *gorm.DB, entry models.LedgerEntry) error
	Delete(ctx context.Context, tx *gorm.DB, sku string) error
	CreateOrder(ctx context.Context, tx *gorm.DB, order models.LedgerOrder) error
	FindOrder(ctx context.Context, upstreamOrderID string) (*models.LedgerOrder, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a ledger repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *repository) All(ctx context.Context) ([]models.LedgerEntry, error) {
	var rows []models.LedgerEntry
	err := r.db.WithContext(ctx).Order("sku ASC").Find(&rows).Error
	return rows, err
}

func (r *repository) FindBySKU(ctx context.Context, sku string) (*models.LedgerEntry, error) {
	var row models.LedgerEntry
	err := r.db.WithContext(ctx).Where("sku = ?", sku).First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) FindByListingID(ctx context.Context, listingID string) (*models.LedgerEntry, error) {
	var row models.LedgerEntry
	err := r.db.WithContext(ctx).Where("listing_id = ?", listingID).First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) Upsert(ctx context.Context, tx *gorm.DB, entry models.LedgerEntry) error {
	return r.conn(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "sku"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"listing_id", "listing_warehouse_id", "previous_stock",
				"last_checked_at", "synced_at", "updated_at",
			}),
		}).
		Create(&entry).Error
}

func (r *repository) Delete(ctx context.Context, tx *gorm.DB, sku string) error {
	return r.conn(tx).WithContext(ctx).
		Where("sku = ?", sku).
		Delete(&models.LedgerEntry{}).Error
}

func (r *repository) CreateOrder(ctx context.Context, tx *gorm.DB, order models.LedgerOrder) error {
	return r.conn(tx).WithContext(ctx).Create(&order).Error
}

func (r *repository) FindOrder(ctx context.Context, upstreamOrderID string) (*models.LedgerOrder, error) {
	var row models.LedgerOrder
	err := r.db.WithContext(ctx).Where("upstream_order_id = ?", upstreamOrderID).First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}
