package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lherron/recmerge/internal/domain"
	"github.com/lherron/recmerge/internal/merge"
)

// Compile-time contract assertion
var _ merge.Journal = (*Journal)(nil)

// Journal persists one row per committed merge
type Journal struct {
	db *sql.DB
}

// NewJournal creates a journal over the merge_journal table
func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// RecordMerge appends an entry
func (j *Journal) RecordMerge(ctx context.Context, e domain.JournalEntry) error {
	fields := e.FieldsChanged
	if fields == nil {
		fields = []string{}
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	rewired := e.Rewired
	if rewired == nil {
		rewired = map[string]int{}
	}
	rewiredJSON, err := json.Marshal(rewired)
	if err != nil {
		return err
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO merge_journal (merge_id, kind, winner_id, loser_id, fields_changed, rewired, committed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.MergeID, e.Kind, e.WinnerID, e.LoserID, string(fieldsJSON), string(rewiredJSON), e.CommittedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to record merge %s: %w", e.MergeID, err)
	}
	return nil
}

// List returns entries newest first, optionally filtered to one kind
func (j *Journal) List(ctx context.Context, kind string, limit int) ([]domain.JournalEntry, error) {
	query := `
		SELECT merge_id, kind, winner_id, loser_id, fields_changed, rewired, committed_at
		FROM merge_journal
	`
	var args []interface{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY merge_id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query merge journal: %w", err)
	}
	defer rows.Close()

	var out []domain.JournalEntry
	for rows.Next() {
		e, err := scanJournal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// Get returns one entry by merge id
func (j *Journal) Get(ctx context.Context, mergeID string) (*domain.JournalEntry, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT merge_id, kind, winner_id, loser_id, fields_changed, rewired, committed_at
		FROM merge_journal WHERE merge_id = ?
	`, mergeID)
	e, err := scanJournal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Collection: "merge_journal", ID: mergeID}
	}
	return e, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJournal(s scanner) (*domain.JournalEntry, error) {
	var e domain.JournalEntry
	var fieldsJSON, rewiredJSON, committedAt string
	if err := s.Scan(&e.MergeID, &e.Kind, &e.WinnerID, &e.LoserID, &fieldsJSON, &rewiredJSON, &committedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan merge journal row: %w", err)
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &e.FieldsChanged); err != nil {
		return nil, fmt.Errorf("invalid fields_changed for %s: %w", e.MergeID, err)
	}
	if err := json.Unmarshal([]byte(rewiredJSON), &e.Rewired); err != nil {
		return nil, fmt.Errorf("invalid rewired for %s: %w", e.MergeID, err)
	}
	ts, err := time.Parse(time.RFC3339Nano, committedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid committed_at for %s: %w", e.MergeID, err)
	}
	e.CommittedAt = ts
	return &e, nil
}
