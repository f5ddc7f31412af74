package ledger

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/tmorales/waresync-backend/pkg/db/models"
	"github.com/tmorales/waresync-backend/pkg/logger"
)

type fakeLedgerRepo struct {
	entries      map[string]models.LedgerEntry
	byListing    map[string]models.LedgerEntry
	deleted      []string
	upserted     []models.LedgerEntry
	orders       map[string]models.LedgerOrder
	createOrders []models.LedgerOrder
	createErr    error
}

func (f *fakeLedgerRepo) All(ctx context.Context) ([]models.LedgerEntry, error) {
	out := make([]models.LedgerEntry, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeLedgerRepo) FindBySKU(ctx context.Context, sku string) (*models.LedgerEntry, error) {
	if e, ok := f.entries[sku]; ok {
		return &e, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeLedgerRepo) FindByListingID(ctx context.Context, listingID string) (*models.LedgerEntry, error) {
	if e, ok := f.byListing[listingID]; ok {
		return &e, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeLedgerRepo) Upsert(ctx context.Context, tx *gorm.DB, entry models.LedgerEntry) error {
	f.upserted = append(f.upserted, entry)
	return nil
}

func (f *fakeLedgerRepo) Delete(ctx context.Context, tx *gorm.DB, sku string) error {
	f.deleted = append(f.deleted, sku)
	return nil
}

func (f *fakeLedgerRepo) CreateOrder(ctx context.Context, tx *gorm.DB, order models.LedgerOrder) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.createOrders = append(f.createOrders, order)
	return nil
}

func (f *fakeLedgerRepo) FindOrder(ctx context.Context, upstreamOrderID string) (*models.LedgerOrder, error) {
	if o, ok := f.orders[upstreamOrderID]; ok {
		return &o, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type ledgerTxRunner struct{}

func (ledgerTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func newTestLedger(t *testing.T, repo *fakeLedgerRepo) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:   repo,
		DB:     ledgerTxRunner{},
		Logger: logger.New(logger.Options{ServiceName: "test"}),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestApplyRemovalsDeletesOnlyConfirmed(t *testing.T) {
	repo := &fakeLedgerRepo{}
	svc := newTestLedger(t, repo)

	err := svc.ApplyRemovals(context.Background(),
		[]string{"SKU-OK-1", "SKU-OK-2"},
		[]string{"SKU-FAILED"})
	if err != nil {
		t.Fatalf("ApplyRemovals: %v", err)
	}
	if len(repo.deleted) != 2 {
		t.Fatalf("expected 2 deletions, got %v", repo.deleted)
	}
	for _, sku := range repo.deleted {
		if sku == "SKU-FAILED" {
			t.Fatal("failed candidate must keep its entry")
		}
	}
}

func TestApplyRemovalsNoopWithoutSuccesses(t *testing.T) {
	repo := &fakeLedgerRepo{}
	svc := newTestLedger(t, repo)

	if err := svc.ApplyRemovals(context.Background(), nil, []string{"SKU-FAILED"}); err != nil {
		t.Fatalf("ApplyRemovals: %v", err)
	}
	if len(repo.deleted) != 0 {
		t.Fatalf("no deletions expected, got %v", repo.deleted)
	}
}

func TestRecordOrderToleratesDuplicate(t *testing.T) {
	repo := &fakeLedgerRepo{createErr: errors.New(`duplicate key value violates unique constraint "ledger_orders_pkey"`)}
	svc := newTestLedger(t, repo)

	if err := svc.RecordOrder(context.Background(), "up-1", "mo-1"); err != nil {
		t.Fatalf("duplicate insert must not error: %v", err)
	}
}

func TestRecordOrderPropagatesOtherErrors(t *testing.T) {
	repo := &fakeLedgerRepo{createErr: errors.New("connection reset")}
	svc := newTestLedger(t, repo)

	if err := svc.RecordOrder(context.Background(), "up-1", "mo-1"); err == nil {
		t.Fatal("expected error")
	}
}

func TestFindOrderReturnsNilWhenAbsent(t *testing.T) {
	svc := newTestLedger(t, &fakeLedgerRepo{})

	order, err := svc.FindOrder(context.Background(), "up-unknown")
	if err != nil {
		t.Fatalf("FindOrder: %v", err)
	}
	if order != nil {
		t.Fatalf("expected nil, got %+v", order)
	}
}

func TestCanonicalSKUPrefersLedgerLink(t *testing.T) {
	repo := &fakeLedgerRepo{byListing: map[string]models.LedgerEntry{
		"raw-1": {SKU: "SKU-LINKED", ListingID: "raw-1"},
	}}
	svc := newTestLedger(t, repo)

	sku, err := svc.CanonicalSKU(context.Background(), "raw-1")
	if err != nil {
		t.Fatalf("CanonicalSKU: %v", err)
	}
	if sku != "SKU-LINKED" {
		t.Fatalf("expected linked SKU, got %s", sku)
	}

	sku, err = svc.CanonicalSKU(context.Background(), "raw-unlinked")
	if err != nil {
		t.Fatalf("CanonicalSKU: %v", err)
	}
	if sku != "raw-unlinked" {
		t.Fatalf("expected raw reference returned, got %s", sku)
	}
}

func TestEntryReturnsNilWhenUnlinked(t *testing.T) {
	svc := newTestLedger(t, &fakeLedgerRepo{})

	entry, err := svc.Entry(context.Background(), "SKU-A")
	if err != nil {
		t.Fatalf("Entry: %v", err)
	}
	if entry != nil {
		t.Fatalf("expected nil entry, got %+v", entry)
	}
}

func TestLinkUpsertsEntryWithTimestamps(t *testing.T) {
	repo := &fakeLedgerRepo{}
	svc := newTestLedger(t, repo)

	if err := svc.Link(context.Background(), "SKU-NEW", "l-9", "mwh-1", 7); err != nil {
		t.Fatalf("Link: %v", err)
	}

	if len(repo.upserted) != 1 {
		t.Fatalf("expected one upsert, got %d", len(repo.upserted))
	}
	entry := repo.upserted[0]
	if entry.SKU != "SKU-NEW" || entry.ListingID != "l-9" || entry.ListingWarehouseID != "mwh-1" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.PreviousStock != 7 {
		t.Fatalf("expected previous stock 7, got %d", entry.PreviousStock)
	}
	if entry.SyncedAt.IsZero() || entry.LastCheckedAt.IsZero() {
		t.Fatalf("expected timestamps stamped, got %+v", entry)
	}
}
