package merge

import "github.com/lherron/recmerge/internal/domain"

// FieldDiff is the comparison of one field across both records
type FieldDiff struct {
	Field       FieldDescriptor `json:"field" yaml:"field"`
	ValueA      any             `json:"value_a,omitempty" yaml:"value_a,omitempty"`
	ValueB      any             `json:"value_b,omitempty" yaml:"value_b,omitempty"`
	ComparableA string          `json:"comparable_a" yaml:"comparable_a"`
	ComparableB string          `json:"comparable_b" yaml:"comparable_b"`
	EmptyA      bool            `json:"empty_a" yaml:"empty_a"`
	EmptyB      bool            `json:"empty_b" yaml:"empty_b"`
	Equal       bool            `json:"equal" yaml:"equal"`
}

// Conflict reports whether the two sides differ
func (d FieldDiff) Conflict() bool {
	return !d.Equal
}

// Diff compares every catalog field of a and b
func Diff(catalog []FieldDescriptor, a, b domain.Record) []FieldDiff {
	out := make([]FieldDiff, 0, len(catalog))
	for _, f := range catalog {
		va, _ := f.Get(a)
		vb, _ := f.Get(b)
		d := FieldDiff{
			Field:       f,
			ValueA:      va,
			ValueB:      vb,
			ComparableA: f.Comparable(va),
			ComparableB: f.Comparable(vb),
			EmptyA:      domain.IsEmpty(va),
			EmptyB:      domain.IsEmpty(vb),
		}
		d.Equal = d.ComparableA == d.ComparableB || (d.EmptyA && d.EmptyB)
		out = append(out, d)
	}
	return out
}

// Conflicts filters diffs down to visible conflicting fields
func Conflicts(diffs []FieldDiff) []FieldDiff {
	var out []FieldDiff
	for _, d := range diffs {
		if d.Conflict() && !d.Field.Hidden {
			out = append(out, d)
		}
	}
	return out
}
