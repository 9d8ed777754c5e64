package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Reserved bookkeeping keys present on every record
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
	FieldDeletedAt = "deletedAt"
	FieldExtras    = "extras"
)

// Record is a schemaless row in a collection. Values follow encoding/json
// decoding rules: string, float64, bool, []any, map[string]any or nil.
type Record map[string]any

// ID returns the record identity
func (r Record) ID() string {
	return r.String(FieldID)
}

// CreatedAt returns createdAt in epoch milliseconds, or 0 when absent
func (r Record) CreatedAt() int64 {
	return r.Int(FieldCreatedAt)
}

// UpdatedAt returns updatedAt in epoch milliseconds, or 0 when absent
func (r Record) UpdatedAt() int64 {
	return r.Int(FieldUpdatedAt)
}

// Has reports whether key is present
func (r Record) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// String returns the value at key when it is a string
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Int returns the value at key coerced to an integer. Non-numeric values yield 0.
func (r Record) Int(key string) int64 {
	n, _ := AsInt(r[key])
	return n
}

// Extras returns the nested extras bag, or nil when absent or malformed
func (r Record) Extras() map[string]any {
	m, _ := r[FieldExtras].(map[string]any)
	return m
}

// Clone returns a deep copy of the record
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies JSON-shaped values
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = CloneValue(vv)
		}
		return out
	case Record:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = CloneValue(vv)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}

// AsInt coerces numeric values (including numeric strings) to int64
func AsInt(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int64:
		return t, true
	case int32:
		return int64(t), true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return int64(t), true
	case float32:
		return int64(t), true
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return int64(f), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// IsEmpty reports whether a value carries no meaningful content: nil, blank
// strings, empty lists and empty objects. false and 0 are meaningful.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	case Record:
		return len(t) == 0
	default:
		return false
	}
}

// NowMillis returns t as epoch milliseconds
func NowMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// Event represents an event in the event log
type Event struct {
	ID           int64     `json:"id" db:"id"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
	ResourceType string    `json:"resource_type" db:"resource_type"`
	ResourceID   *string   `json:"resource_id,omitempty" db:"resource_id"`
	EventType    string    `json:"event_type" db:"event_type"`
	Payload      *string   `json:"payload,omitempty" db:"payload"` // JSON
}

// JournalEntry is one committed merge recorded in the merge journal
type JournalEntry struct {
	MergeID       string         `json:"merge_id" yaml:"merge_id"`
	Kind          string         `json:"kind" yaml:"kind"`
	WinnerID      string         `json:"winner_id" yaml:"winner_id"`
	LoserID       string         `json:"loser_id" yaml:"loser_id"`
	FieldsChanged []string       `json:"fields_changed" yaml:"fields_changed"`
	Rewired       map[string]int `json:"rewired" yaml:"rewired"`
	CommittedAt   time.Time      `json:"committed_at" yaml:"committed_at"`
}
