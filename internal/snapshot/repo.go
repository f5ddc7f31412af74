package snapshot

import (
	"context"

	"gorm.io/gorm"

	"github.com/tmorales/waresync-backend/pkg/db/models"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a snapshot repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// Repository persists the single snapshot generation.
type Repository interface {
	All(ctx context.Context) ([]models.SnapshotRecord, error)
	FindBySKUs(ctx context.Context, skus []string) ([]models.SnapshotRecord, error)
	ReplaceAll(ctx context.Context, tx *gorm.DB, records []models.SnapshotRecord) error
}

func (r *repository) All(ctx context.Context) ([]models.SnapshotRecord, error) {
	var rows []models.SnapshotRecord
	err := r.db.WithContext(ctx).Order("sku ASC").Find(&rows).Error
	return rows, err
}

func (r *repository) FindBySKUs(ctx context.Context, skus []string) ([]models.SnapshotRecord, error) {
	if len(skus) == 0 {
		return nil, nil
	}
	var rows []models.SnapshotRecord
	err := r.db.WithContext(ctx).Where("sku IN ?", skus).Find(&rows).Error
	return rows, err
}

// ReplaceAll swaps the whole generation in one transaction. The snapshot has
// no history beyond one generation, so the previous rows are dropped first.
func (r *repository) ReplaceAll(ctx context.Context, tx *gorm.DB, records []models.SnapshotRecord) error {
	conn := tx
	if conn == nil {
		conn = r.db
	}
	conn = conn.WithContext(ctx)

	if err := conn.Where("1 = 1").Delete(&models.SnapshotRecord{}).Error; err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	return conn.Create(&records).Error
}
