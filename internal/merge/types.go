// Package merge consolidates two duplicate entity records into one and
// rewires every reference to the losing record onto the winner.
package merge

import (
	"fmt"
	"strings"

	"github.com/lherron/recmerge/internal/domain"
)

// Side identifies one of the two records being merged
type Side string

const (
	SideA Side = "A"
	SideB Side = "B"
)

// Other returns the opposite side
func (s Side) Other() Side {
	if s == SideB {
		return SideA
	}
	return SideB
}

// ParseSide accepts "a"/"b" in any case
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A":
		return SideA, nil
	case "B":
		return SideB, nil
	default:
		return "", fmt.Errorf("invalid side %q: must be A or B", s)
	}
}

// Source is where a field's merged value comes from
type Source string

const (
	SourceA       Source = "A"
	SourceB       Source = "B"
	SourceCustom  Source = "custom"
	SourceCombine Source = "combine"
)

func sourceFor(side Side) Source {
	if side == SideB {
		return SourceB
	}
	return SourceA
}

// Selection is an explicit choice for one field
type Selection struct {
	Source Source `json:"source" yaml:"source"`
	Value  any    `json:"value,omitempty" yaml:"value,omitempty"`
}

// Selections maps field keys to explicit choices. A missing key means the
// computed default applies.
type Selections map[string]Selection

// Overlay returns a copy of s with every entry of over applied on top
func (s Selections) Overlay(over Selections) Selections {
	out := make(Selections, len(s)+len(over))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

// FieldType drives normalization, comparison and composition
type FieldType string

const (
	TypeText        FieldType = "text"
	TypeEmail       FieldType = "email"
	TypePhone       FieldType = "phone"
	TypeStage       FieldType = "stage"
	TypeLoanProgram FieldType = "loanProgram"
	TypeState       FieldType = "state"
	TypeTags        FieldType = "tags"
	TypeDate        FieldType = "date"
	TypeNumber      FieldType = "number"
	TypeBoolean     FieldType = "boolean"
	TypeReference   FieldType = "reference"
	TypeNotes       FieldType = "notes"
	TypeTimeline    FieldType = "timeline"
	TypeNested      FieldType = "nested"
)

// NormalizeFunc maps a raw value to its comparable form
type NormalizeFunc func(v any) string

// FieldDescriptor describes one mergeable field. Keys under the extras bag
// use a dot path ("extras.source").
type FieldDescriptor struct {
	Key             string        `json:"key" yaml:"key"`
	Label           string        `json:"label" yaml:"label"`
	Type            FieldType     `json:"type" yaml:"type"`
	Normalize       NormalizeFunc `json:"-" yaml:"-"`
	AllowCustomText bool          `json:"allow_custom_text" yaml:"allow_custom_text"`
	Hidden          bool          `json:"hidden,omitempty" yaml:"hidden,omitempty"`
}

// Comparable returns the normalized comparison key for v
func (d FieldDescriptor) Comparable(v any) string {
	if domain.IsEmpty(v) {
		return ""
	}
	if d.Normalize != nil {
		return d.Normalize(v)
	}
	return NormalizerFor(d.Type)(v)
}

const extrasPrefix = domain.FieldExtras + "."

func (d FieldDescriptor) nestedKey() (string, bool) {
	return strings.CutPrefix(d.Key, extrasPrefix)
}

// Get reads the field's raw value from rec
func (d FieldDescriptor) Get(rec domain.Record) (any, bool) {
	if k, ok := d.nestedKey(); ok {
		v, ok := rec.Extras()[k]
		return v, ok
	}
	v, ok := rec[d.Key]
	return v, ok
}

// set writes v into rec, removing the key when present is false
func (d FieldDescriptor) set(rec domain.Record, v any, present bool) {
	k, nested := d.nestedKey()
	if !nested {
		if present {
			rec[d.Key] = domain.CloneValue(v)
		} else {
			delete(rec, d.Key)
		}
		return
	}
	extras := rec.Extras()
	if extras == nil {
		if !present {
			return
		}
		extras = make(map[string]any)
		rec[domain.FieldExtras] = extras
	}
	if present {
		extras[k] = domain.CloneValue(v)
	} else {
		delete(extras, k)
	}
}

// Decision is the default source for one field and why it was chosen
type Decision struct {
	Source Source `json:"source" yaml:"source"`
	Reason string `json:"reason" yaml:"reason"`
}

// RewireCount is the number of rows rewired in one collection
type RewireCount struct {
	Collection string `json:"collection" yaml:"collection"`
	Count      int    `json:"count" yaml:"count"`
}

// Result is the outcome of a committed merge or a preview
type Result struct {
	MergeID       string        `json:"merge_id,omitempty" yaml:"merge_id,omitempty"`
	Kind          string        `json:"kind" yaml:"kind"`
	WinnerID      string        `json:"winner_id" yaml:"winner_id"`
	LoserID       string        `json:"loser_id" yaml:"loser_id"`
	Merged        domain.Record `json:"merged" yaml:"merged"`
	FieldsChanged []string      `json:"fields_changed" yaml:"fields_changed"`
	RewireSummary []RewireCount `json:"rewire_summary" yaml:"rewire_summary"`
	Preview       bool          `json:"preview,omitempty" yaml:"preview,omitempty"`
}

// TotalRewired sums the rewire summary
func (r *Result) TotalRewired() int {
	n := 0
	for _, c := range r.RewireSummary {
		n += c.Count
	}
	return n
}
