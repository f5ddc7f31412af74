package detector

import (
	"testing"

	"github.com/tmorales/waresync-backend/pkg/db/models"
	"github.com/tmorales/waresync-backend/pkg/enums"
	"github.com/tmorales/waresync-backend/pkg/warehouse"
)

func TestFilterSellableDropsRowsWithoutSKU(t *testing.T) {
	inv := warehouse.Inventory{ID: "wh-1", Name: "main"}
	items := []warehouse.InventoryItem{
		{ProductID: "p1", SKU: "SKU-1", StockByWarehouse: map[string]int{"main": 4, "reserve": 9}},
		{ProductID: "p2", SKU: "", StockByWarehouse: map[string]int{"main": 2}},
		{ProductID: "p3", SKU: "SKU-3"},
	}

	out := FilterSellable(items, inv, "main")
	if len(out) != 2 {
		t.Fatalf("expected 2 items, got %d", len(out))
	}
	if out[0].SKU != "SKU-1" || out[0].Stock != 4 {
		t.Fatalf("unexpected first item: %+v", out[0])
	}
	if out[0].WarehouseID != "wh-1" || out[0].WarehouseName != "main" {
		t.Fatalf("warehouse not carried: %+v", out[0])
	}
	if out[1].SKU != "SKU-3" || out[1].Stock != 0 {
		t.Fatalf("missing stock should read zero: %+v", out[1])
	}
}

func TestClassifyPartitionsEverySKU(t *testing.T) {
	previous := map[string]models.SnapshotRecord{
		"SKU-A": {SKU: "SKU-A", Stock: 5, WarehouseName: "main"},
		"SKU-B": {SKU: "SKU-B", Stock: 3, WarehouseName: "main"},
		"SKU-C": {SKU: "SKU-C", Stock: 8, WarehouseName: "main"},
	}
	current := []Item{
		{SKU: "SKU-A", Stock: 5, WarehouseName: "main"},
		{SKU: "SKU-B", Stock: 0, WarehouseName: "main"},
		{SKU: "SKU-D", Stock: 2, WarehouseName: "main"},
	}

	changes := Classify(current, previous)

	if len(changes.New) != 1 || changes.New[0].SKU != "SKU-D" {
		t.Fatalf("unexpected New bucket: %+v", changes.New)
	}
	if len(changes.Unchanged) != 1 || changes.Unchanged[0] != "SKU-A" {
		t.Fatalf("unexpected Unchanged bucket: %+v", changes.Unchanged)
	}
	if len(changes.StockChanged) != 1 {
		t.Fatalf("unexpected StockChanged bucket: %+v", changes.StockChanged)
	}
	sc := changes.StockChanged[0]
	if sc.SKU != "SKU-B" || sc.Previous != 3 || sc.Current != 0 {
		t.Fatalf("unexpected stock change: %+v", sc)
	}
	if len(changes.Removed) != 1 || changes.Removed[0].SKU != "SKU-C" {
		t.Fatalf("unexpected Removed bucket: %+v", changes.Removed)
	}
	if changes.Removed[0].LastStock != 8 {
		t.Fatalf("removed item should carry last stock: %+v", changes.Removed[0])
	}

	total := len(changes.New) + len(changes.Removed) + len(changes.StockChanged) + len(changes.Unchanged)
	if total != 4 {
		t.Fatalf("partition not total: %d buckets filled", total)
	}
}

func TestClassifyIgnoresDuplicateSKUs(t *testing.T) {
	previous := map[string]models.SnapshotRecord{}
	current := []Item{
		{SKU: "SKU-A", Stock: 1},
		{SKU: "SKU-A", Stock: 7},
	}

	changes := Classify(current, previous)
	if len(changes.New) != 1 {
		t.Fatalf("duplicate SKU should classify once, got %d", len(changes.New))
	}
	if changes.New[0].Stock != 1 {
		t.Fatalf("first occurrence should win, got %+v", changes.New[0])
	}
}

func TestRemovalEligible(t *testing.T) {
	changes := ChangeSet{
		Removed: []RemovedItem{{SKU: "SKU-GONE", LastStock: 4}},
		StockChanged: []StockChange{
			{SKU: "SKU-ZERO", Previous: 2, Current: 0},
			{SKU: "SKU-LIVE", Previous: 2, Current: 6},
		},
	}

	eligible := changes.RemovalEligible()
	if len(eligible) != 2 {
		t.Fatalf("expected 2 eligible SKUs, got %d", len(eligible))
	}
	if eligible["SKU-GONE"] != enums.RemovalReasonVanished {
		t.Fatalf("vanished SKU has reason %s", eligible["SKU-GONE"])
	}
	if eligible["SKU-ZERO"] != enums.RemovalReasonStockZero {
		t.Fatalf("zeroed SKU has reason %s", eligible["SKU-ZERO"])
	}
	if _, ok := eligible["SKU-LIVE"]; ok {
		t.Fatal("non-zero stock change must not be eligible")
	}
}

func TestSummarizeAndHasChanges(t *testing.T) {
	var empty ChangeSet
	if empty.HasChanges() {
		t.Fatal("empty set should report no changes")
	}

	changes := ChangeSet{
		New:       []Item{{SKU: "a"}},
		Unchanged: []string{"b", "c"},
	}
	if !changes.HasChanges() {
		t.Fatal("expected changes")
	}
	summary := changes.Summarize()
	if summary.New != 1 || summary.Unchanged != 2 || summary.Removed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestClassifyIsSilentAgainstOwnGeneration(t *testing.T) {
	current := []Item{
		{SKU: "SKU-A", ProductID: "p1", Stock: 3, WarehouseName: "main"},
		{SKU: "SKU-B", ProductID: "p2", Stock: 0, WarehouseName: "main"},
	}
	previous := make(map[string]models.SnapshotRecord, len(current))
	for _, item := range current {
		previous[item.SKU] = models.SnapshotRecord{
			SKU:           item.SKU,
			ProductID:     item.ProductID,
			Stock:         item.Stock,
			WarehouseName: item.WarehouseName,
		}
	}

	changes := Classify(current, previous)
	if len(changes.New) != 0 || len(changes.Removed) != 0 || len(changes.StockChanged) != 0 {
		t.Fatalf("re-running against the just-persisted generation must be silent, got %+v", changes)
	}
	if len(changes.Unchanged) != len(current) {
		t.Fatalf("expected every SKU unchanged, got %v", changes.Unchanged)
	}
}
