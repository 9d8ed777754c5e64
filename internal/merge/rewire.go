package merge

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lherron/recmerge/internal/config"
	"github.com/lherron/recmerge/internal/domain"
	"github.com/lherron/recmerge/internal/id"
	"github.com/lherron/recmerge/internal/store"
)

// PlanDelete removes a row. NewID is set when the row was folded into a
// rekeyed singleton row.
type PlanDelete struct {
	OldID string `json:"old_id" yaml:"old_id"`
	NewID string `json:"new_id,omitempty" yaml:"new_id,omitempty"`
}

// PlanEntry is the rewire work for one collection. It carries everything
// needed to undo itself: RevertSnapshot holds the pre-merge copy of every
// existing row it touches, CreatedIDs the rows it introduces.
type PlanEntry struct {
	Collection     string          `json:"collection" yaml:"collection"`
	Updates        []domain.Record `json:"updates" yaml:"updates"`
	Deletes        []PlanDelete    `json:"deletes,omitempty" yaml:"deletes,omitempty"`
	RevertSnapshot []domain.Record `json:"revert_snapshot" yaml:"revert_snapshot"`
	ReassignedIDs  []string        `json:"reassigned_ids" yaml:"reassigned_ids"`
	CreatedIDs     []string        `json:"created_ids,omitempty" yaml:"created_ids,omitempty"`
}

// Rows is the number of rows the entry writes or removes
func (e *PlanEntry) Rows() int {
	return len(e.Updates) + len(e.Deletes)
}

// Plan is the full rewire for one merge, ordered by collection name
type Plan struct {
	WinnerID string      `json:"winner_id" yaml:"winner_id"`
	LoserID  string      `json:"loser_id" yaml:"loser_id"`
	Entries  []PlanEntry `json:"entries" yaml:"entries"`
}

// Summary counts rewired rows per collection
func (p *Plan) Summary() []RewireCount {
	out := make([]RewireCount, 0, len(p.Entries))
	for _, e := range p.Entries {
		out = append(out, RewireCount{Collection: e.Collection, Count: len(e.Updates)})
	}
	return out
}

// Validate checks every entry names a well-formed collection that exists
func (p *Plan) Validate(known []string) error {
	exists := make(map[string]bool, len(known))
	for _, name := range known {
		exists[name] = true
	}
	for _, e := range p.Entries {
		if err := domain.ValidateCollectionName(e.Collection); err != nil {
			return &domain.InvalidPlanError{Collection: e.Collection, Reason: err.Error()}
		}
		if !exists[e.Collection] {
			return &domain.InvalidPlanError{Collection: e.Collection, Reason: "unknown collection"}
		}
		for _, rec := range e.Updates {
			if err := domain.ValidateRecordID(rec.ID()); err != nil {
				return &domain.InvalidPlanError{Collection: e.Collection, Reason: err.Error()}
			}
		}
	}
	return nil
}

// Planner computes rewire plans. It only reads from the store.
type Planner struct {
	Store      store.Store
	Entity     config.EntityConfig
	Singletons []config.SingletonConfig
	// ForeignKeys adds per-collection foreign key fields on top of the
	// entity's own
	ForeignKeys map[string][]string
	// Concurrency bounds parallel collection scans
	Concurrency int
	Now         func() time.Time
}

// Plan scans every collection other than the entity's own and its profile
// collection for references to loserID
func (p *Planner) Plan(ctx context.Context, winnerID, loserID string) (*Plan, error) {
	names, err := p.Store.Collections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	var targets []string
	for _, name := range names {
		if name == p.Entity.Collection || name == p.Entity.ProfileCollection {
			continue
		}
		targets = append(targets, name)
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	stamp := domain.NowMillis(now())

	entries := make([]*PlanEntry, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	limit := p.Concurrency
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)
	for i, name := range targets {
		g.Go(func() error {
			rows, err := p.Store.GetAll(gctx, name)
			if err != nil {
				return fmt.Errorf("failed to scan %s: %w", name, err)
			}
			entries[i] = p.planCollection(name, rows, winnerID, loserID, stamp)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	plan := &Plan{WinnerID: winnerID, LoserID: loserID}
	for _, e := range entries {
		if e != nil {
			plan.Entries = append(plan.Entries, *e)
		}
	}
	return plan, nil
}

func (p *Planner) fkFields(collection string) []string {
	fields := append([]string(nil), p.Entity.ForeignKeys...)
	return append(fields, p.ForeignKeys[collection]...)
}

func (p *Planner) singleton(collection string) (config.SingletonConfig, bool) {
	for _, s := range p.Singletons {
		if s.Collection == collection {
			return s, true
		}
	}
	return config.SingletonConfig{}, false
}

// planCollection builds the entry for one collection, or nil when nothing
// references the loser
func (p *Planner) planCollection(name string, rows []domain.Record, winnerID, loserID string, stamp int64) *PlanEntry {
	entry := &PlanEntry{Collection: name}
	fields := p.fkFields(name)
	single, isSingleton := p.singleton(name)

	byID := make(map[string]domain.Record, len(rows))
	for _, r := range rows {
		byID[r.ID()] = r
	}
	// pending rekeyed rows by new id, so two loser rows landing on the same
	// key fold together
	pending := make(map[string]int)
	snapshotted := make(map[string]bool)
	snapshot := func(r domain.Record) {
		if !snapshotted[r.ID()] {
			snapshotted[r.ID()] = true
			entry.RevertSnapshot = append(entry.RevertSnapshot, r.Clone())
		}
	}

	for _, row := range rows {
		if isSingleton && row.String(single.OwnerField) == loserID {
			snapshot(row)
			p.rekeySingleton(entry, single, row, byID, pending, snapshot, winnerID, loserID, stamp)
			continue
		}

		updated, touched := rewireRow(row, fields, winnerID, loserID)
		if !touched {
			continue
		}
		snapshot(row)
		if updated.Has(domain.FieldUpdatedAt) {
			updated[domain.FieldUpdatedAt] = stamp
		}
		entry.Updates = append(entry.Updates, updated)
		entry.ReassignedIDs = append(entry.ReassignedIDs, row.ID())
	}

	if len(entry.Updates) == 0 && len(entry.Deletes) == 0 {
		return nil
	}
	sort.Strings(entry.CreatedIDs)
	return entry
}

// rekeySingleton moves a one-per-owner row to the winner's composite key,
// merging into any row already there
func (p *Planner) rekeySingleton(
	entry *PlanEntry,
	single config.SingletonConfig,
	row domain.Record,
	byID map[string]domain.Record,
	pending map[string]int,
	snapshot func(domain.Record),
	winnerID, loserID string,
	stamp int64,
) {
	oldID := row.ID()
	newID := id.SingletonKey(row.String(single.TypeField), winnerID, single.Separator)

	incoming := row.Clone()
	incoming[domain.FieldID] = newID
	incoming[single.OwnerField] = winnerID
	if updated, touched := rewireRow(incoming, p.fkFields(entry.Collection), winnerID, loserID); touched {
		incoming = updated
	}

	var merged domain.Record
	if i, ok := pending[newID]; ok {
		merged = foldSingleton(entry.Updates[i], incoming)
		merged[domain.FieldUpdatedAt] = stamp
		entry.Updates[i] = merged
	} else if existing, ok := byID[newID]; ok {
		snapshot(existing)
		merged = foldSingleton(existing, incoming)
		merged[domain.FieldUpdatedAt] = stamp
		pending[newID] = len(entry.Updates)
		entry.Updates = append(entry.Updates, merged)
		entry.ReassignedIDs = append(entry.ReassignedIDs, newID)
	} else {
		incoming[domain.FieldUpdatedAt] = stamp
		pending[newID] = len(entry.Updates)
		entry.Updates = append(entry.Updates, incoming)
		entry.CreatedIDs = append(entry.CreatedIDs, newID)
	}
	if oldID != newID {
		entry.Deletes = append(entry.Deletes, PlanDelete{OldID: oldID, NewID: newID})
	}
}

// foldSingleton keeps existing non-empty values, fills gaps from incoming and
// takes the earlier creation time
func foldSingleton(existing, incoming domain.Record) domain.Record {
	out := existing.Clone()
	for k, v := range incoming {
		if k == domain.FieldID {
			continue
		}
		if domain.IsEmpty(out[k]) && !domain.IsEmpty(v) {
			out[k] = domain.CloneValue(v)
		}
	}
	ce, ci := existing.CreatedAt(), incoming.CreatedAt()
	if ci != 0 && (ce == 0 || ci < ce) {
		out[domain.FieldCreatedAt] = incoming[domain.FieldCreatedAt]
	}
	return out
}

// rewireRow points every foreign key field holding loserID at winnerID.
// List-valued fields have the loser replaced and duplicates dropped.
func rewireRow(row domain.Record, fields []string, winnerID, loserID string) (domain.Record, bool) {
	var out domain.Record
	for _, f := range fields {
		switch v := row[f].(type) {
		case string:
			if v != loserID {
				continue
			}
			if out == nil {
				out = row.Clone()
			}
			out[f] = winnerID
		case []any:
			if !containsID(v, loserID) {
				continue
			}
			if out == nil {
				out = row.Clone()
			}
			out[f] = replaceID(v, winnerID, loserID)
		}
	}
	return out, out != nil
}

func containsID(list []any, target string) bool {
	for _, item := range list {
		if s, ok := item.(string); ok && s == target {
			return true
		}
	}
	return false
}

func replaceID(list []any, winnerID, loserID string) []any {
	out := make([]any, 0, len(list))
	seen := make(map[string]bool)
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			out = append(out, item)
			continue
		}
		if s == loserID {
			s = winnerID
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
