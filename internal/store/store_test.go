package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/lherron/recmerge/internal/db"
	"github.com/lherron/recmerge/internal/domain"
)

// setupTestDB creates a temporary test database with migrations applied.
func setupTestDB(t *testing.T) *db.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := database.Migrate(); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

// implementations runs fn against both Store implementations.
func implementations(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("sqlite", func(t *testing.T) {
		fn(t, NewSQLiteStore(setupTestDB(t)))
	})
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
}

func TestStore_PutGet(t *testing.T) {
	implementations(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		rec := domain.Record{
			"id":        "c1",
			"firstName": "Ann",
			"tags":      []any{"vip", "referral"},
			"extras":    map[string]any{"source": "web"},
			"createdAt": float64(100),
			"updatedAt": float64(200),
		}
		if err := s.Put(ctx, "contacts", rec); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		got, err := s.Get(ctx, "contacts", "c1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !reflect.DeepEqual(got, rec) {
			t.Errorf("Get() = %v, want %v", got, rec)
		}

		// Mutating the returned record must not leak into the store
		got["firstName"] = "Changed"
		again, _ := s.Get(ctx, "contacts", "c1")
		if again.String("firstName") != "Ann" {
			t.Errorf("store shares state with caller: %v", again)
		}
	})
}

func TestStore_GetMissing(t *testing.T) {
	implementations(t, func(t *testing.T, s Store) {
		_, err := s.Get(context.Background(), "contacts", "nope")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestStore_GetAllOrderedAndCollections(t *testing.T) {
	implementations(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		err := s.BulkPut(ctx, "tasks", []domain.Record{
			{"id": "t3", "contactId": "c1"},
			{"id": "t1", "contactId": "c2"},
			{"id": "t2", "contactId": "c1"},
		})
		if err != nil {
			t.Fatalf("BulkPut failed: %v", err)
		}
		if err := s.Put(ctx, "contacts", domain.Record{"id": "c1"}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		rows, err := s.GetAll(ctx, "tasks")
		if err != nil {
			t.Fatalf("GetAll failed: %v", err)
		}
		var ids []string
		for _, r := range rows {
			ids = append(ids, r.ID())
		}
		if !reflect.DeepEqual(ids, []string{"t1", "t2", "t3"}) {
			t.Errorf("GetAll ids = %v, want sorted t1,t2,t3", ids)
		}

		names, err := s.Collections(ctx)
		if err != nil {
			t.Fatalf("Collections failed: %v", err)
		}
		if !reflect.DeepEqual(names, []string{"contacts", "tasks"}) {
			t.Errorf("Collections() = %v", names)
		}
	})
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	implementations(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.Put(ctx, "contacts", domain.Record{"id": "c1"}); err != nil {
			t.Fatal(err)
		}
		if err := s.Delete(ctx, "contacts", "c1"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := s.Delete(ctx, "contacts", "c1"); err != nil {
			t.Fatalf("second Delete failed: %v", err)
		}
		if _, err := s.Get(ctx, "contacts", "c1"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
	})
}

func TestStore_SoftDeleteAndRevive(t *testing.T) {
	implementations(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		sd, ok := s.(SoftDeleter)
		if !ok {
			t.Fatal("store does not implement SoftDeleter")
		}
		orig := domain.Record{"id": "c2", "email": "b@x.com"}
		if err := s.Put(ctx, "contacts", orig); err != nil {
			t.Fatal(err)
		}
		if err := sd.SoftDelete(ctx, "contacts", "c2", 999); err != nil {
			t.Fatalf("SoftDelete failed: %v", err)
		}
		if _, err := s.Get(ctx, "contacts", "c2"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("soft-deleted row should be hidden, got %v", err)
		}
		rows, _ := s.GetAll(ctx, "contacts")
		if len(rows) != 0 {
			t.Errorf("soft-deleted row should be excluded from GetAll, got %d rows", len(rows))
		}
		if err := sd.SoftDelete(ctx, "contacts", "c2", 1000); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("second SoftDelete should report not found, got %v", err)
		}

		// Put of the original revives it unchanged
		if err := s.Put(ctx, "contacts", orig); err != nil {
			t.Fatal(err)
		}
		got, err := s.Get(ctx, "contacts", "c2")
		if err != nil {
			t.Fatalf("Get after revive failed: %v", err)
		}
		if !reflect.DeepEqual(got, orig) {
			t.Errorf("revived record = %v, want %v", got, orig)
		}
	})
}

func TestStore_RejectsInvalidInput(t *testing.T) {
	implementations(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.Put(ctx, "bad name", domain.Record{"id": "x"}); err == nil {
			t.Error("expected error for invalid collection name")
		}
		if err := s.Put(ctx, "contacts", domain.Record{"email": "no id"}); err == nil {
			t.Error("expected error for record without id")
		}
	})
}

func TestTakeSnapshot(t *testing.T) {
	implementations(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_ = s.Put(ctx, "contacts", domain.Record{"id": "c1"})
		_ = s.Put(ctx, "notes", domain.Record{"id": "n1", "contactId": "c1"})

		snap, err := TakeSnapshot(ctx, s)
		if err != nil {
			t.Fatalf("TakeSnapshot failed: %v", err)
		}
		if len(snap) != 2 || len(snap["notes"]) != 1 {
			t.Errorf("unexpected snapshot: %v", snap)
		}

		copyStore := NewMemoryStoreFrom(snap)
		again, _ := TakeSnapshot(ctx, copyStore)
		if !reflect.DeepEqual(snap, again) {
			t.Errorf("snapshot round trip mismatch: %v vs %v", snap, again)
		}
	})
}

func TestSQLiteStore_Count(t *testing.T) {
	ctx := context.Background()
	s := NewSQLiteStore(setupTestDB(t))
	_ = s.BulkPut(ctx, "contacts", []domain.Record{{"id": "a"}, {"id": "b"}, {"id": "c"}})
	if err := s.SoftDelete(ctx, "contacts", "b", 5); err != nil {
		t.Fatal(err)
	}
	live, deleted, err := s.Count(ctx, "contacts")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if live != 2 || deleted != 1 {
		t.Errorf("Count() = (%d, %d), want (2, 1)", live, deleted)
	}
}
