package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestDumpNil(t *testing.T) {
	d := Dump(nil)
	if d.TopMessage != "" || len(d.Chain) != 0 {
		t.Fatalf("nil error should dump empty, got %+v", d)
	}
}

func TestDumpCarriesCodeAndChain(t *testing.T) {
	err := Wrap(CodePersistence, fmt.Errorf("inner cause"), "save snapshot")

	d := Dump(err)
	if d.Code != CodePersistence {
		t.Fatalf("expected persistence code, got %s", d.Code)
	}
	if len(d.Chain) < 2 {
		t.Fatalf("expected full unwrap chain, got %v", d.Chain)
	}
	if d.TopMessage == "" {
		t.Fatal("expected top message")
	}
}

func TestDumpExtractsPgxFields(t *testing.T) {
	cause := &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "ledger_orders_pkey",
		TableName:      "ledger_orders",
		Detail:         "Key (upstream_order_id)=(ord-1) already exists.",
	}
	err := Wrap(CodePersistence, fmt.Errorf("create order: %w", cause), "record order")

	d := Dump(err)
	if d.PGCode != "23505" || d.PGConstraint != "ledger_orders_pkey" {
		t.Fatalf("expected pg fields extracted, got %+v", d)
	}
	if d.PGTable != "ledger_orders" {
		t.Fatalf("expected table name, got %q", d.PGTable)
	}
}

func TestDumpExtractsPqFields(t *testing.T) {
	cause := &pq.Error{
		Code:       "23505",
		Constraint: "snapshot_records_pkey",
		Table:      "snapshot_records",
	}
	err := fmt.Errorf("replace snapshot: %w", cause)

	d := Dump(err)
	if d.PGCode != "23505" || d.PGConstraint != "snapshot_records_pkey" {
		t.Fatalf("expected pq fields extracted, got %+v", d)
	}
}
