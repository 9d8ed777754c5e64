package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/lherron/recmerge/internal/db"
	"github.com/lherron/recmerge/internal/domain"
	"github.com/lherron/recmerge/internal/store"
)

// TempDB creates a temporary SQLite database for testing
func TempDB(t *testing.T) (*db.DB, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	if err := database.Migrate(); err != nil {
		database.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		database.Close()
	})

	return database, dbPath
}

// TempStore returns a SQLite store on a fresh temporary database
func TempStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	database, _ := TempDB(t)
	return store.NewSQLiteStore(database)
}

// Seed writes every collection's records into s
func Seed(t *testing.T, s store.Store, data map[string][]domain.Record) {
	t.Helper()
	ctx := context.Background()
	for collection, recs := range data {
		if err := s.BulkPut(ctx, collection, recs); err != nil {
			t.Fatalf("Failed to seed %s: %v", collection, err)
		}
	}
}

// Snapshot reads the full live content of s
func Snapshot(t *testing.T, s store.Store) store.Snapshot {
	t.Helper()
	snap, err := store.TakeSnapshot(context.Background(), s)
	if err != nil {
		t.Fatalf("Failed to snapshot store: %v", err)
	}
	return snap
}

// FaultyStore wraps a Store and fails selected writes. A write fails when
// FailOn returns a non-nil error for its operation ("put", "bulkput",
// "delete", "softdelete") and collection.
type FaultyStore struct {
	store.Store
	FailOn func(op, collection string) error

	mu    sync.Mutex
	calls []string
}

// FailNthCollection returns a FailOn that fails the first bulk write to the
// nth distinct collection written (1-based). Later writes succeed so that
// rollback can proceed.
func FailNthCollection(n int) func(op, collection string) error {
	var mu sync.Mutex
	var seen []string
	fired := false
	return func(op, collection string) error {
		if op != "bulkput" {
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		if fired {
			return nil
		}
		idx := -1
		for i, c := range seen {
			if c == collection {
				idx = i
			}
		}
		if idx < 0 {
			seen = append(seen, collection)
			idx = len(seen) - 1
		}
		if idx == n-1 {
			fired = true
			return fmt.Errorf("injected failure writing %s", collection)
		}
		return nil
	}
}

// Calls returns the recorded write operations as "op:collection"
func (f *FaultyStore) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *FaultyStore) check(op, collection string) error {
	f.mu.Lock()
	f.calls = append(f.calls, op+":"+collection)
	f.mu.Unlock()
	if f.FailOn == nil {
		return nil
	}
	return f.FailOn(op, collection)
}

func (f *FaultyStore) Put(ctx context.Context, collection string, rec domain.Record) error {
	if err := f.check("put", collection); err != nil {
		return err
	}
	return f.Store.Put(ctx, collection, rec)
}

func (f *FaultyStore) BulkPut(ctx context.Context, collection string, recs []domain.Record) error {
	if err := f.check("bulkput", collection); err != nil {
		return err
	}
	return f.Store.BulkPut(ctx, collection, recs)
}

func (f *FaultyStore) Delete(ctx context.Context, collection, id string) error {
	if err := f.check("delete", collection); err != nil {
		return err
	}
	return f.Store.Delete(ctx, collection, id)
}

// SoftDelete delegates when the wrapped store supports it
func (f *FaultyStore) SoftDelete(ctx context.Context, collection, id string, at int64) error {
	if err := f.check("softdelete", collection); err != nil {
		return err
	}
	if sd, ok := f.Store.(store.SoftDeleter); ok {
		return sd.SoftDelete(ctx, collection, id, at)
	}
	return f.Store.Delete(ctx, collection, id)
}

// WriteFile writes content to a file in a temporary directory
func WriteFile(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
	return path
}

// AssertNoError asserts that an error is nil
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
}

// AssertError asserts that an error is not nil
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
}

// AssertStringContains asserts that a string contains a substring
func AssertStringContains(t *testing.T, str, substr string) {
	t.Helper()
	if !strings.Contains(str, substr) {
		t.Fatalf("Expected string to contain %q, got %q", substr, str)
	}
}
