package reports

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tmorales/waresync-backend/pkg/db/models"
)

// Repository persists change logs and cycle reports.
type Repository interface {
	ReplaceChangeLog(ctx context.Context, tx *gorm.DB, log models.ChangeLog) error
	LatestChangeLog(ctx context.Context) (*models.ChangeLog, error)
	CreateCycleReport(ctx context.Context, report *models.CycleReport) error
	ListCycleReports(ctx context.Context, limit int) ([]models.CycleReport, error)
	DeleteCycleReportsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a reports repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ReplaceChangeLog(ctx context.Context, tx *gorm.DB, log models.ChangeLog) error {
	conn := tx
	if conn == nil {
		conn = r.db
	}
	if err := conn.WithContext(ctx).Where("1 = 1").Delete(&models.ChangeLog{}).Error; err != nil {
		return err
	}
	return conn.WithContext(ctx).Create(&log).Error
}

func (r *repository) LatestChangeLog(ctx context.Context) (*models.ChangeLog, error) {
	var row models.ChangeLog
	err := r.db.WithContext(ctx).Order("timestamp DESC").First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) CreateCycleReport(ctx context.Context, report *models.CycleReport) error {
	return r.db.WithContext(ctx).Create(report).Error
}

func (r *repository) ListCycleReports(ctx context.Context, limit int) ([]models.CycleReport, error) {
	var rows []models.CycleReport
	err := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *repository) DeleteCycleReportsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("started_at < ?", cutoff).Delete(&models.CycleReport{})
	return res.RowsAffected, res.Error
}
