package merge

import (
	"fmt"
	"strings"
	"time"

	"github.com/lherron/recmerge/internal/canonical"
	"github.com/lherron/recmerge/internal/domain"
)

// ComposeInput is everything the composer needs. It performs no I/O.
type ComposeInput struct {
	A, B       domain.Record
	Catalog    []FieldDescriptor
	Base       Side
	Winner     Side
	Selections Selections
	// OtherName labels the non-base record in merged notes
	OtherName string
	Now       time.Time
}

// NotesSeparator is the marker line placed between combined notes
func NotesSeparator(name string, at time.Time) string {
	return fmt.Sprintf("--- Merged from %s on %s ---", name, at.Format("2006-01-02"))
}

// ValidateSelections rejects selections for unknown fields, unknown sources
// and custom values on fields that do not accept them
func ValidateSelections(catalog []FieldDescriptor, sel Selections) error {
	byKey := make(map[string]FieldDescriptor, len(catalog))
	for _, f := range catalog {
		byKey[f.Key] = f
	}
	for key, s := range sel {
		f, ok := byKey[key]
		if !ok {
			return fmt.Errorf("%w: unknown field %q", domain.ErrInvalidSelection, key)
		}
		switch s.Source {
		case SourceA, SourceB:
		case SourceCustom:
			if !f.AllowCustomText {
				return fmt.Errorf("%w: field %q does not accept custom values", domain.ErrInvalidSelection, key)
			}
		default:
			return fmt.Errorf("%w: field %q has unknown source %q", domain.ErrInvalidSelection, key, s.Source)
		}
	}
	return nil
}

// Compose builds the merged record and reports which fields differ from the
// base record's pre-merge values
func Compose(in ComposeInput) (domain.Record, []string, error) {
	if err := ValidateSelections(in.Catalog, in.Selections); err != nil {
		return nil, nil, err
	}
	base, other := in.A, in.B
	if in.Base == SideB {
		base, other = in.B, in.A
	}
	winner := in.A
	if in.Winner == SideB {
		winner = in.B
	}

	out := base.Clone()
	for _, f := range in.Catalog {
		if f.Hidden {
			continue
		}
		if sel, ok := in.Selections[f.Key]; ok {
			switch sel.Source {
			case SourceA:
				v, present := f.Get(in.A)
				f.set(out, v, present)
			case SourceB:
				v, present := f.Get(in.B)
				f.set(out, v, present)
			case SourceCustom:
				f.set(out, sel.Value, true)
			}
			continue
		}

		bv, _ := f.Get(base)
		ov, _ := f.Get(other)
		switch f.Type {
		case TypeNotes:
			if v, ok := combineNotes(f, bv, ov, in.OtherName, in.Now); ok {
				f.set(out, v, true)
			}
		case TypeTags:
			if tags := UnionTags(bv, ov); len(tags) > 0 {
				f.set(out, toAnySlice(tags), true)
			}
		case TypeTimeline:
			if v := concatTimeline(bv, ov); len(v) > 0 {
				f.set(out, v, true)
			}
		default:
			if domain.IsEmpty(bv) && !domain.IsEmpty(ov) {
				f.set(out, ov, true)
			}
		}
	}

	for _, f := range in.Catalog {
		v, _ := f.Get(out)
		if s, ok := v.(string); ok {
			if c, _ := Canonicalize(f.Type, s).(string); c != s {
				f.set(out, c, true)
			}
		}
	}

	out[domain.FieldID] = winner.ID()
	if created := minCreatedAt(in.A, in.B); created > 0 && created != base.CreatedAt() {
		out[domain.FieldCreatedAt] = created
	}
	out[domain.FieldUpdatedAt] = domain.NowMillis(in.Now)
	delete(out, domain.FieldDeletedAt)

	var changed []string
	for _, f := range in.Catalog {
		if f.Hidden {
			continue
		}
		before, _ := f.Get(base)
		after, _ := f.Get(out)
		if f.Comparable(before) != f.Comparable(after) {
			changed = append(changed, f.Key)
		}
	}
	return out, changed, nil
}

// combineNotes concatenates differing notes base first, separated by a marker
func combineNotes(f FieldDescriptor, base, other any, otherName string, now time.Time) (any, bool) {
	switch {
	case domain.IsEmpty(other):
		return nil, false
	case domain.IsEmpty(base):
		return other, true
	case f.Comparable(base) == f.Comparable(other):
		return nil, false
	}
	if otherName == "" {
		otherName = "duplicate record"
	}
	return strings.TrimRight(stringify(base), "\n") + "\n\n" +
		NotesSeparator(otherName, now) + "\n" +
		strings.TrimLeft(stringify(other), "\n"), true
}

// concatTimeline appends other's entries after base's, skipping entries
// already present
func concatTimeline(base, other any) []any {
	var out []any
	seen := make(map[string]bool)
	for _, v := range []any{base, other} {
		items, _ := v.([]any)
		for _, item := range items {
			key := canonical.String(item)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, domain.CloneValue(item))
		}
	}
	return out
}

func minCreatedAt(a, b domain.Record) int64 {
	ca, cb := a.CreatedAt(), b.CreatedAt()
	switch {
	case ca == 0:
		return cb
	case cb == 0:
		return ca
	case cb < ca:
		return cb
	default:
		return ca
	}
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
