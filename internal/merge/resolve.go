package merge

import (
	"fmt"
	"strings"

	"github.com/lherron/recmerge/internal/domain"
)

// TieBreaker picks a side when both values are meaningful and the records
// share the same updatedAt
type TieBreaker interface {
	Name() string
	Break(a, b domain.Record) Side
}

type tieBreakFunc struct {
	name string
	fn   func(a, b domain.Record) Side
}

func (t tieBreakFunc) Name() string                  { return t.name }
func (t tieBreakFunc) Break(a, b domain.Record) Side { return t.fn(a, b) }

var (
	// PreferA always picks side A
	PreferA TieBreaker = tieBreakFunc{"prefer-a", func(_, _ domain.Record) Side { return SideA }}

	// PreferB always picks side B
	PreferB TieBreaker = tieBreakFunc{"prefer-b", func(_, _ domain.Record) Side { return SideB }}

	// PreferOlder picks the record created first, then A
	PreferOlder TieBreaker = tieBreakFunc{"prefer-older", func(a, b domain.Record) Side {
		ca, cb := a.CreatedAt(), b.CreatedAt()
		if cb != 0 && (ca == 0 || cb < ca) {
			return SideB
		}
		return SideA
	}}
)

// TieBreakers lists the built-in strategies by name
var TieBreakers = map[string]TieBreaker{
	PreferA.Name():     PreferA,
	PreferB.Name():     PreferB,
	PreferOlder.Name(): PreferOlder,
}

// TieBreakerByName resolves a strategy name, defaulting to PreferA when empty
func TieBreakerByName(name string) (TieBreaker, error) {
	if name == "" {
		return PreferA, nil
	}
	tb, ok := TieBreakers[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown tie-break %q: must be one of: prefer-a, prefer-b, prefer-older", name)
	}
	return tb, nil
}

// Resolver chooses default sources for conflicting fields. It has no state
// beyond its tie-break strategy and never touches the records it is given.
type Resolver struct {
	TieBreak TieBreaker
}

// Resolve picks a default for one field:
//  1. the only side with a meaningful value
//  2. the side with the larger updatedAt
//  3. the tie-break strategy
//
// Notes, tags and timelines with values on both sides combine instead.
func (r Resolver) Resolve(d FieldDiff, a, b domain.Record) Decision {
	switch {
	case d.Equal:
		return Decision{Source: SourceA, Reason: "equal"}
	case !d.EmptyA && d.EmptyB:
		return Decision{Source: SourceA, Reason: "only A has a value"}
	case d.EmptyA && !d.EmptyB:
		return Decision{Source: SourceB, Reason: "only B has a value"}
	}

	switch d.Field.Type {
	case TypeNotes, TypeTags, TypeTimeline:
		return Decision{Source: SourceCombine, Reason: "combined from both"}
	}

	ua, ub := a.UpdatedAt(), b.UpdatedAt()
	if ua > ub {
		return Decision{Source: SourceA, Reason: "A updated more recently"}
	}
	if ub > ua {
		return Decision{Source: SourceB, Reason: "B updated more recently"}
	}

	tb := r.TieBreak
	if tb == nil {
		tb = PreferA
	}
	side := tb.Break(a, b)
	return Decision{Source: sourceFor(side), Reason: "tie-break: " + tb.Name()}
}

// Defaults resolves every visible conflicting field
func (r Resolver) Defaults(diffs []FieldDiff, a, b domain.Record) map[string]Decision {
	out := make(map[string]Decision)
	for _, d := range diffs {
		if d.Field.Hidden || d.Equal {
			continue
		}
		out[d.Field.Key] = r.Resolve(d, a, b)
	}
	return out
}

// DefaultSelections turns decisions into explicit selections. Combined
// fields get no selection so the composition rule applies.
func DefaultSelections(defaults map[string]Decision) Selections {
	out := make(Selections, len(defaults))
	for k, d := range defaults {
		if d.Source == SourceA || d.Source == SourceB {
			out[k] = Selection{Source: d.Source}
		}
	}
	return out
}
