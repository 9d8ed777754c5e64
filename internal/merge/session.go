package merge

import (
	"context"
	"fmt"
	"time"

	"github.com/lherron/recmerge/internal/config"
	"github.com/lherron/recmerge/internal/domain"
)

// Session is one planned merge of two loaded records. It holds the catalog,
// diff and default selections and can preview any selection set without
// writing. Sessions are not safe for concurrent use.
type Session struct {
	Kind   string
	Entity config.EntityConfig
	A, B   domain.Record

	catalog  []FieldDescriptor
	diffs    []FieldDiff
	base     Side
	defaults map[string]Decision
	resolver Resolver
	names    *NameCache
	now      func() time.Time
}

func newSession(kind string, entity config.EntityConfig, a, b domain.Record, resolver Resolver, names *NameCache, now func() time.Time) *Session {
	s := &Session{
		Kind:     kind,
		Entity:   entity,
		A:        a,
		B:        b,
		resolver: resolver,
		names:    names,
		now:      now,
	}
	s.catalog = Catalog(a, b)
	s.diffs = Diff(s.catalog, a, b)
	s.SetBase(SideA)
	return s
}

// Catalog returns the ordered field list
func (s *Session) Catalog() []FieldDescriptor { return s.catalog }

// Diffs returns the comparison of every catalog field
func (s *Session) Diffs() []FieldDiff { return s.diffs }

// Conflicts returns the visible conflicting fields
func (s *Session) Conflicts() []FieldDiff { return Conflicts(s.diffs) }

// Base returns the side composition starts from
func (s *Session) Base() Side { return s.base }

// SetBase changes the base side and recomputes defaults
func (s *Session) SetBase(side Side) {
	if side != SideB {
		side = SideA
	}
	s.base = side
	s.defaults = s.resolver.Defaults(s.diffs, s.A, s.B)
}

// Defaults returns the default decision per conflicting field
func (s *Session) Defaults() map[string]Decision { return s.defaults }

// DefaultSelections returns the explicit selections the defaults imply
func (s *Session) DefaultSelections() Selections { return DefaultSelections(s.defaults) }

// Names returns the session's display name cache
func (s *Session) Names() *NameCache { return s.names }

// Record returns the record on side
func (s *Session) Record(side Side) domain.Record {
	if side == SideB {
		return s.B
	}
	return s.A
}

// DisplayName labels the record on side using the entity's display fields
func (s *Session) DisplayName(side Side) string {
	return DisplayName(s.Record(side), s.Entity.DisplayFields)
}

// ResolveReferences loads display names for every reference field value on
// either side into the session cache
func (s *Session) ResolveReferences(ctx context.Context) {
	if s.names == nil {
		return
	}
	for _, d := range s.diffs {
		if d.Field.Type != TypeReference {
			continue
		}
		coll, ok := s.names.Target(d.Field.Key)
		if !ok {
			continue
		}
		for _, v := range []any{d.ValueA, d.ValueB} {
			if ref, ok := v.(string); ok && ref != "" {
				s.names.Lookup(ctx, coll, ref)
			}
		}
	}
}

// DisplayValue renders v for field key, showing cached names for references
func (s *Session) DisplayValue(key string, v any) string {
	if domain.IsEmpty(v) {
		return ""
	}
	if f, ok := BaselineField(key); ok && f.Type == TypeReference && s.names != nil {
		if coll, ok := s.names.Target(key); ok {
			if ref, ok := v.(string); ok {
				if name, ok := s.names.Peek(coll, ref); ok && name != ref {
					return fmt.Sprintf("%s (%s)", name, ref)
				}
			}
		}
	}
	return stringify(v)
}

// Preview composes the merged record with overrides on top of the defaults.
// The winner is the base side. Nothing is written.
func (s *Session) Preview(overrides Selections) (*Result, error) {
	return s.preview(overrides, s.base)
}

func (s *Session) preview(overrides Selections, winner Side) (*Result, error) {
	merged, changed, err := Compose(ComposeInput{
		A:          s.A,
		B:          s.B,
		Catalog:    s.catalog,
		Base:       s.base,
		Winner:     winner,
		Selections: s.DefaultSelections().Overlay(overrides),
		OtherName:  s.DisplayName(s.base.Other()),
		Now:        s.now(),
	})
	if err != nil {
		return nil, err
	}
	return &Result{
		Kind:          s.Kind,
		WinnerID:      s.Record(winner).ID(),
		LoserID:       s.Record(winner.Other()).ID(),
		Merged:        merged,
		FieldsChanged: changed,
		Preview:       true,
	}, nil
}
