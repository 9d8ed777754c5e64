package store

import (
	"context"
	"sort"
	"sync"

	"github.com/lherron/recmerge/internal/domain"
)

// Compile-time contract assertions
var (
	_ Store       = (*MemoryStore)(nil)
	_ SoftDeleter = (*MemoryStore)(nil)
)

type memoryRow struct {
	rec       domain.Record
	deletedAt *int64
}

// MemoryStore is an in-memory Store used for tests and dry runs. Records are
// cloned on every read and write so callers never share state with it.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]memoryRow
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]memoryRow)}
}

// NewMemoryStoreFrom seeds a store from a snapshot.
func NewMemoryStoreFrom(snap Snapshot) *MemoryStore {
	s := NewMemoryStore()
	for name, rows := range snap {
		bucket := s.bucket(name)
		for _, rec := range rows {
			bucket[rec.ID()] = memoryRow{rec: rec.Clone()}
		}
	}
	return s
}

func (s *MemoryStore) bucket(collection string) map[string]memoryRow {
	b, ok := s.collections[collection]
	if !ok {
		b = make(map[string]memoryRow)
		s.collections[collection] = b
	}
	return b
}

func (s *MemoryStore) Get(_ context.Context, collection, id string) (domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.collections[collection][id]
	if !ok || row.deletedAt != nil {
		return nil, &domain.NotFoundError{Collection: collection, ID: id}
	}
	return row.rec.Clone(), nil
}

func (s *MemoryStore) GetAll(_ context.Context, collection string) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Record
	for _, row := range s.collections[collection] {
		if row.deletedAt == nil {
			out = append(out, row.rec.Clone())
		}
	}
	sortByID(out)
	return out, nil
}

func (s *MemoryStore) Put(ctx context.Context, collection string, rec domain.Record) error {
	return s.BulkPut(ctx, collection, []domain.Record{rec})
}

func (s *MemoryStore) BulkPut(_ context.Context, collection string, recs []domain.Record) error {
	if err := domain.ValidateCollectionName(collection); err != nil {
		return err
	}
	for _, rec := range recs {
		if err := domain.ValidateRecordID(rec.ID()); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.bucket(collection)
	for _, rec := range recs {
		bucket[rec.ID()] = memoryRow{rec: rec.Clone()}
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], id)
	return nil
}

func (s *MemoryStore) SoftDelete(_ context.Context, collection, id string, at int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.collections[collection][id]
	if !ok || row.deletedAt != nil {
		return &domain.NotFoundError{Collection: collection, ID: id}
	}
	rec := row.rec.Clone()
	rec[domain.FieldDeletedAt] = at
	s.collections[collection][id] = memoryRow{rec: rec, deletedAt: &at}
	return nil
}

func (s *MemoryStore) Collections(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Tombstoned reports whether a soft-deleted row exists for id.
func (s *MemoryStore) Tombstoned(collection, id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.collections[collection][id]
	return ok && row.deletedAt != nil
}
