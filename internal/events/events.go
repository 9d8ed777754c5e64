package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lherron/recmerge/internal/domain"
	"github.com/lherron/recmerge/internal/merge"
)

// Compile-time contract assertion
var _ merge.Notifier = (*Writer)(nil)

// EventMergeCommitted is written once per committed merge
const EventMergeCommitted = "merge.committed"

// Writer handles writing events to the event log
type Writer struct {
	db *sql.DB
}

// NewWriter creates a new event writer
func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

// LogEvent writes an event to the event log
func (w *Writer) LogEvent(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	query := `
		INSERT INTO event_log (resource_type, resource_id, event_type, payload)
		VALUES (?, ?, ?, ?)
	`

	executor := w.getExecutor(tx)
	_, err := executor.ExecContext(ctx, query, event.ResourceType, event.ResourceID, event.EventType, event.Payload)
	if err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}

// MergeCommitted logs a merge.committed event carrying the winner, loser and
// rewire summary
func (w *Writer) MergeCommitted(ctx context.Context, res *merge.Result) error {
	payload, err := json.Marshal(map[string]interface{}{
		"mergeId":       res.MergeID,
		"winnerId":      res.WinnerID,
		"loserId":       res.LoserID,
		"rewireSummary": res.RewireSummary,
	})
	if err != nil {
		return err
	}

	payloadStr := string(payload)
	event := &domain.Event{
		ResourceType: res.Kind,
		ResourceID:   &res.WinnerID,
		EventType:    EventMergeCommitted,
		Payload:      &payloadStr,
	}

	return w.LogEvent(ctx, nil, event)
}

// Recent returns the newest events, newest first
func (w *Writer) Recent(ctx context.Context, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := w.db.QueryContext(ctx, `
		SELECT id, timestamp, resource_type, resource_id, event_type, payload
		FROM event_log
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		var ts string
		if err := rows.Scan(&e.ID, &ts, &e.ResourceType, &e.ResourceID, &e.EventType, &e.Payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Timestamp, _ = time.Parse("2006-01-02T15:04:05.000Z", ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// getExecutor returns the transaction if provided, otherwise the database
func (w *Writer) getExecutor(tx *sql.Tx) interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
} {
	if tx != nil {
		return tx
	}
	return w.db
}
