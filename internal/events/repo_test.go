package events

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tmorales/waresync-backend/pkg/db/models"
	"github.com/tmorales/waresync-backend/pkg/enums"
)

// newQueueDB opens a fresh in-memory database per test. The schema is laid
// out by hand because the postgres defaults in the model tags do not exist
// in sqlite.
func newQueueDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.Exec(`CREATE TABLE queue_events (
		id text PRIMARY KEY,
		event_type text NOT NULL,
		payload text NOT NULL,
		status text NOT NULL DEFAULT 'pending',
		attempts integer NOT NULL DEFAULT 0,
		created_at datetime,
		done_at datetime,
		last_error text,
		next_attempt_at datetime NOT NULL
	)`).Error; err != nil {
		t.Fatalf("failed to create queue_events: %v", err)
	}
	return conn
}

func mustCreateEvent(t *testing.T, conn *gorm.DB, event models.QueueEvent) models.QueueEvent {
	t.Helper()
	if err := conn.Create(&event).Error; err != nil {
		t.Fatalf("failed to insert event: %v", err)
	}
	return event
}

func reloadEvent(t *testing.T, conn *gorm.DB, id uuid.UUID) models.QueueEvent {
	t.Helper()
	var row models.QueueEvent
	if err := conn.Where("id = ?", id).First(&row).Error; err != nil {
		t.Fatalf("failed to reload event %s: %v", id, err)
	}
	return row
}

func TestMarkDoneTransitionsPendingRow(t *testing.T) {
	conn := newQueueDB(t)
	repo := NewRepository(conn)

	pending := mustCreateEvent(t, conn, models.QueueEvent{
		ID:            uuid.New(),
		EventType:     enums.EventStockUpdate,
		Payload:       []byte(`{}`),
		Status:        enums.EventStatusPending,
		NextAttemptAt: time.Now().UTC(),
	})

	doneAt := time.Now().UTC()
	if err := repo.MarkDone(conn, pending.ID, doneAt); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}

	row := reloadEvent(t, conn, pending.ID)
	if row.Status != enums.EventStatusDone {
		t.Fatalf("expected done, got %s", row.Status)
	}
	if row.Attempts != 1 {
		t.Fatalf("expected attempts bumped to 1, got %d", row.Attempts)
	}
	if row.DoneAt == nil {
		t.Fatal("expected done_at set")
	}
}

func TestTerminalRowsAreImmutable(t *testing.T) {
	conn := newQueueDB(t)
	repo := NewRepository(conn)

	doneAt := time.Now().UTC()
	lastErr := "handler gave up"
	done := mustCreateEvent(t, conn, models.QueueEvent{
		ID:            uuid.New(),
		EventType:     enums.EventStockUpdate,
		Payload:       []byte(`{}`),
		Status:        enums.EventStatusDone,
		Attempts:      1,
		DoneAt:        &doneAt,
		NextAttemptAt: doneAt,
	})
	failed := mustCreateEvent(t, conn, models.QueueEvent{
		ID:            uuid.New(),
		EventType:     enums.EventStockUpdate,
		Payload:       []byte(`{}`),
		Status:        enums.EventStatusFailed,
		Attempts:      3,
		LastError:     &lastErr,
		NextAttemptAt: doneAt,
	})

	later := time.Now().UTC().Add(time.Minute)
	for _, id := range []uuid.UUID{done.ID, failed.ID} {
		if err := repo.MarkDone(conn, id, later); err != nil {
			t.Fatalf("MarkDone: %v", err)
		}
		if err := repo.MarkRetry(conn, id, errors.New("late retry"), later); err != nil {
			t.Fatalf("MarkRetry: %v", err)
		}
		if err := repo.MarkFailed(conn, id, errors.New("late failure")); err != nil {
			t.Fatalf("MarkFailed: %v", err)
		}
	}

	row := reloadEvent(t, conn, done.ID)
	if row.Status != enums.EventStatusDone || row.Attempts != 1 {
		t.Fatalf("done row mutated: %+v", row)
	}
	if row.LastError != nil {
		t.Fatalf("done row picked up an error: %q", *row.LastError)
	}

	row = reloadEvent(t, conn, failed.ID)
	if row.Status != enums.EventStatusFailed || row.Attempts != 3 {
		t.Fatalf("failed row mutated: %+v", row)
	}
	if row.LastError == nil || *row.LastError != lastErr {
		t.Fatalf("failed row error rewritten: %+v", row.LastError)
	}
}
