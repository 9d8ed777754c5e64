package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lherron/recmerge/internal/canonical"
	"github.com/lherron/recmerge/internal/db"
	"github.com/lherron/recmerge/internal/domain"
)

// Compile-time contract assertions
var (
	_ Store       = (*SQLiteStore)(nil)
	_ SoftDeleter = (*SQLiteStore)(nil)
)

// SQLiteStore implements Store on the records table.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore wraps a migrated database connection.
func NewSQLiteStore(database *db.DB) *SQLiteStore {
	return &SQLiteStore{db: database}
}

// DB returns the underlying database connection (for read-only queries).
func (s *SQLiteStore) DB() *db.DB {
	return s.db
}

// withTx executes fn within a transaction. If fn returns nil, the transaction
// is committed; otherwise it is rolled back.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStore) Get(ctx context.Context, collection, id string) (domain.Record, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `
		SELECT body FROM records
		WHERE collection = ? AND id = ? AND deleted_at IS NULL
	`, collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Collection: collection, ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}
	return decodeRecord(body)
}

func (s *SQLiteStore) GetAll(ctx context.Context, collection string) ([]domain.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM records
		WHERE collection = ? AND deleted_at IS NULL
		ORDER BY id
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}
	defer rows.Close()

	var recs []domain.Record
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", collection, err)
		}
		rec, err := decodeRecord(body)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", collection, err)
	}
	return recs, nil
}

func (s *SQLiteStore) Put(ctx context.Context, collection string, rec domain.Record) error {
	return s.BulkPut(ctx, collection, []domain.Record{rec})
}

func (s *SQLiteStore) BulkPut(ctx context.Context, collection string, recs []domain.Record) error {
	if err := domain.ValidateCollectionName(collection); err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := ensureCollection(ctx, tx, collection); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO records (collection, id, body, created_at, updated_at, deleted_at)
			VALUES (?, ?, ?, ?, ?, NULL)
			ON CONFLICT (collection, id) DO UPDATE SET
				body = excluded.body,
				created_at = excluded.created_at,
				updated_at = excluded.updated_at,
				deleted_at = NULL
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare put: %w", err)
		}
		defer stmt.Close()

		for _, rec := range recs {
			recID := rec.ID()
			if err := domain.ValidateRecordID(recID); err != nil {
				return fmt.Errorf("put %s: %w", collection, err)
			}
			body, err := canonical.Marshal(map[string]any(rec))
			if err != nil {
				return fmt.Errorf("failed to encode %s/%s: %w", collection, recID, err)
			}
			if _, err := stmt.ExecContext(ctx, collection, recID, string(body), rec.CreatedAt(), rec.UpdatedAt()); err != nil {
				return fmt.Errorf("failed to put %s/%s: %w", collection, recID, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE collection = ? AND id = ?`, collection, id); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// SoftDelete tombstones a live record and stamps deletedAt into its body.
func (s *SQLiteStore) SoftDelete(ctx context.Context, collection, id string, at int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var body string
		err := tx.QueryRowContext(ctx, `
			SELECT body FROM records WHERE collection = ? AND id = ? AND deleted_at IS NULL
		`, collection, id).Scan(&body)
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.NotFoundError{Collection: collection, ID: id}
		}
		if err != nil {
			return fmt.Errorf("failed to load %s/%s: %w", collection, id, err)
		}
		rec, err := decodeRecord(body)
		if err != nil {
			return err
		}
		rec[domain.FieldDeletedAt] = at
		encoded, err := canonical.Marshal(map[string]any(rec))
		if err != nil {
			return fmt.Errorf("failed to encode %s/%s: %w", collection, id, err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE records SET body = ?, deleted_at = ? WHERE collection = ? AND id = ?
		`, string(encoded), at, collection, id)
		if err != nil {
			return fmt.Errorf("failed to soft-delete %s/%s: %w", collection, id, err)
		}
		return nil
	})
}

func (s *SQLiteStore) Collections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM collections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// EnsureCollection registers a collection without writing rows.
func (s *SQLiteStore) EnsureCollection(ctx context.Context, collection string) error {
	if err := domain.ValidateCollectionName(collection); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return ensureCollection(ctx, tx, collection)
	})
}

// Count returns live and soft-deleted row counts for a collection.
func (s *SQLiteStore) Count(ctx context.Context, collection string) (live, deleted int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN deleted_at IS NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN deleted_at IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM records WHERE collection = ?
	`, collection).Scan(&live, &deleted)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count %s: %w", collection, err)
	}
	return live, deleted, nil
}

func ensureCollection(ctx context.Context, tx *sql.Tx, collection string) error {
	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO collections (name) VALUES (?)`, collection); err != nil {
		return fmt.Errorf("failed to register collection %s: %w", collection, err)
	}
	return nil
}

func decodeRecord(body string) (domain.Record, error) {
	var rec domain.Record
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record body: %w", err)
	}
	return rec, nil
}
