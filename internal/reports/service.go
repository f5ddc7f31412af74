// Package reports persists the audit trail of reconciliation runs: the
// latest change log and the append-only cycle report history.
package reports

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tmorales/waresync-backend/internal/detector"
	"github.com/tmorales/waresync-backend/pkg/db/models"
	"github.com/tmorales/waresync-backend/pkg/enums"
	apperrors "github.com/tmorales/waresync-backend/pkg/errors"
	"github.com/tmorales/waresync-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams holds the dependencies for the reports service.
type ServiceParams struct {
	Repo   Repository
	DB     txRunner
	Logger *logger.Logger
}

// Service writes cycle outcomes to the database.
type Service struct {
	repo Repository
	db   txRunner
	logg *logger.Logger
	now  func() time.Time
}

// NewService validates the params and builds a reports service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("reports: repository is required")
	}
	if params.DB == nil {
		return nil, errors.New("reports: db is required")
	}
	if params.Logger == nil {
		return nil, errors.New("reports: logger is required")
	}
	return &Service{
		repo: params.Repo,
		db:   params.DB,
		logg: params.Logger,
		now:  time.Now,
	}, nil
}

type changesDocument struct {
	New          []detector.Item        `json:"new"`
	Removed      []detector.RemovedItem `json:"removed"`
	StockChanged []detector.StockChange `json:"stock_changed"`
	Unchanged    []string               `json:"unchanged"`
}

// RecordChangeLog replaces the stored change log with the outcome of the
// cycle that just ran. Only the latest generation is kept.
func (s *Service) RecordChangeLog(ctx context.Context, changes detector.ChangeSet) error {
	doc := changesDocument{
		New:          changes.New,
		Removed:      changes.Removed,
		StockChanged: changes.StockChanged,
		Unchanged:    changes.Unchanged,
	}
	rawChanges, err := json.Marshal(doc)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, err, "marshal change log")
	}
	rawSummary, err := json.Marshal(changes.Summarize())
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, err, "marshal change summary")
	}
	log := models.ChangeLog{
		Timestamp: s.now().UTC(),
		Changes:   rawChanges,
		Summary:   rawSummary,
	}
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.ReplaceChangeLog(ctx, tx, log)
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CodePersistence, err, "replace change log")
	}
	return nil
}

// RemovalOutcome records what happened to one removal candidate.
type RemovalOutcome struct {
	SKU       string              `json:"sku"`
	ListingID string              `json:"listing_id,omitempty"`
	Reason    enums.RemovalReason `json:"reason"`
	Deleted   bool                `json:"deleted"`
	Error     string              `json:"error,omitempty"`
}

// CycleOutcome is everything a finished cycle reports, successful or not.
type CycleOutcome struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Changes    detector.ChangeSet
	Removals   []RemovalOutcome
	Err        error
}

// RecordCycle appends one cycle report. Reports are written for failed
// cycles too, with whatever partial data the run produced.
func (s *Service) RecordCycle(ctx context.Context, outcome CycleOutcome) error {
	doc := changesDocument{
		New:          outcome.Changes.New,
		Removed:      outcome.Changes.Removed,
		StockChanged: outcome.Changes.StockChanged,
		Unchanged:    outcome.Changes.Unchanged,
	}
	rawChanges, err := json.Marshal(doc)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, err, "marshal cycle changes")
	}
	rawRemovals, err := json.Marshal(outcome.Removals)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, err, "marshal cycle removals")
	}
	rawSummary, err := json.Marshal(outcome.Changes.Summarize())
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, err, "marshal cycle summary")
	}

	report := models.CycleReport{
		StartedAt:  outcome.StartedAt.UTC(),
		FinishedAt: outcome.FinishedAt.UTC(),
		Status:     enums.ReportStatusSuccess,
		Changes:    rawChanges,
		Removals:   rawRemovals,
		Summary:    rawSummary,
	}
	if outcome.Err != nil {
		report.Status = enums.ReportStatusError
		msg := outcome.Err.Error()
		report.Error = &msg
	}

	if err := s.repo.CreateCycleReport(ctx, &report); err != nil {
		return apperrors.Wrap(apperrors.CodePersistence, err, "create cycle report")
	}
	return nil
}

// LatestChangeLog returns the stored change log, or nil when no cycle has
// completed yet.
func (s *Service) LatestChangeLog(ctx context.Context) (*models.ChangeLog, error) {
	row, err := s.repo.LatestChangeLog(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperrors.Wrap(apperrors.CodePersistence, err, "load change log")
	}
	return row, nil
}

// RecentCycles returns the newest cycle reports, most recent first.
func (s *Service) RecentCycles(ctx context.Context, limit int) ([]models.CycleReport, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.repo.ListCycleReports(ctx, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodePersistence, err, "list cycle reports")
	}
	return rows, nil
}

// PruneCycles deletes reports older than the retention window and returns
// the number of rows removed.
func (s *Service) PruneCycles(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)
	deleted, err := s.repo.DeleteCycleReportsBefore(ctx, cutoff)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodePersistence, err, "prune cycle reports")
	}
	if deleted > 0 {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"deleted": deleted,
			"cutoff":  cutoff,
		}), "pruned cycle reports")
	}
	return deleted, nil
}
