// Package store provides the collection key-value layer the merge engine reads
// and writes through, with SQLite and in-memory implementations.
package store

import (
	"context"
	"sort"

	"github.com/lherron/recmerge/internal/domain"
)

// Store is a set of named collections of records keyed by id.
type Store interface {
	// Get returns the live record, or a *domain.NotFoundError.
	Get(ctx context.Context, collection, id string) (domain.Record, error)

	// GetAll returns every live record in the collection ordered by id.
	GetAll(ctx context.Context, collection string) ([]domain.Record, error)

	// Put inserts or replaces a record, registering the collection if new.
	// Replacing a soft-deleted row revives it.
	Put(ctx context.Context, collection string, rec domain.Record) error

	// BulkPut writes records as one unit.
	BulkPut(ctx context.Context, collection string, recs []domain.Record) error

	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, collection, id string) error

	// Collections lists every known collection name in sorted order.
	Collections(ctx context.Context) ([]string, error)
}

// SoftDeleter is implemented by stores that can tombstone a record instead
// of removing it.
type SoftDeleter interface {
	SoftDelete(ctx context.Context, collection, id string, at int64) error
}

// Snapshot is the full live content of a set of collections
type Snapshot map[string][]domain.Record

// TakeSnapshot reads every live row of every collection
func TakeSnapshot(ctx context.Context, s Store) (Snapshot, error) {
	names, err := s.Collections(ctx)
	if err != nil {
		return nil, err
	}
	snap := make(Snapshot, len(names))
	for _, name := range names {
		rows, err := s.GetAll(ctx, name)
		if err != nil {
			return nil, err
		}
		snap[name] = rows
	}
	return snap, nil
}

func sortByID(recs []domain.Record) {
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].ID() < recs[j].ID()
	})
}
