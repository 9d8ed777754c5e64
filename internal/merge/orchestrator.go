package merge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lherron/recmerge/internal/config"
	"github.com/lherron/recmerge/internal/domain"
	"github.com/lherron/recmerge/internal/id"
	"github.com/lherron/recmerge/internal/store"
)

// Notifier is told about each committed merge
type Notifier interface {
	MergeCommitted(ctx context.Context, res *Result) error
}

// Journal records committed merges
type Journal interface {
	RecordMerge(ctx context.Context, entry domain.JournalEntry) error
}

// Options configures an Orchestrator. Zero values fall back to defaults.
type Options struct {
	Config   *config.Config
	TieBreak TieBreaker
	Logger   zerolog.Logger
	Metrics  *Metrics
	Notifier Notifier
	Journal  Journal
	Now      func() time.Time
}

// CommitOptions controls one commit. Base defaults to A and Winner to Base.
type CommitOptions struct {
	Selections Selections
	Base       Side
	Winner     Side
}

// Orchestrator plans, previews and commits merges against a store
type Orchestrator struct {
	store    store.Store
	cfg      *config.Config
	resolver Resolver
	logger   zerolog.Logger
	metrics  *Metrics
	notifier Notifier
	journal  Journal
	now      func() time.Time

	mu       sync.Mutex
	inflight map[string]bool
}

// NewOrchestrator wires an orchestrator over s
func NewOrchestrator(s store.Store, opts Options) *Orchestrator {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		store:    s,
		cfg:      cfg,
		resolver: Resolver{TieBreak: opts.TieBreak},
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		notifier: opts.Notifier,
		journal:  opts.Journal,
		now:      now,
		inflight: make(map[string]bool),
	}
}

// Plan loads both records and computes the catalog, diff and defaults
func (o *Orchestrator) Plan(ctx context.Context, kind, idA, idB string) (*Session, error) {
	entity, err := o.cfg.Entity(kind)
	if err != nil {
		return nil, err
	}
	if idA == idB {
		return nil, fmt.Errorf("%w: %s", domain.ErrSameRecord, idA)
	}
	a, err := o.store.Get(ctx, entity.Collection, idA)
	if err != nil {
		return nil, err
	}
	b, err := o.store.Get(ctx, entity.Collection, idB)
	if err != nil {
		return nil, err
	}
	names := NewNameCache(o.store, o.cfg.Entities)
	return newSession(kind, entity, a, b, o.resolver, names, o.now), nil
}

// PlanRewire computes the read-only rewire plan for moving loserID's
// references onto winnerID
func (o *Orchestrator) PlanRewire(ctx context.Context, kind, winnerID, loserID string) (*Plan, error) {
	entity, err := o.cfg.Entity(kind)
	if err != nil {
		return nil, err
	}
	return o.planner(entity).Plan(ctx, winnerID, loserID)
}

func (o *Orchestrator) planner(entity config.EntityConfig) *Planner {
	return &Planner{
		Store:       o.store,
		Entity:      entity,
		Singletons:  o.cfg.Singletons,
		ForeignKeys: o.cfg.ForeignKeys,
		Now:         o.now,
	}
}

// Commit reloads both records, composes the merge and applies it. Failures
// before the first write leave the store untouched; failures after it are
// rolled back and reported as *domain.ApplyError.
func (o *Orchestrator) Commit(ctx context.Context, kind, idA, idB string, opts CommitOptions) (*Result, error) {
	start := o.now()
	res, err := o.commit(ctx, kind, idA, idB, opts)
	switch {
	case err == nil:
		o.metrics.outcome(OutcomeCommitted)
		o.metrics.rewiredRows(res.RewireSummary)
		o.metrics.observe(start)
	case errors.Is(err, domain.ErrMergeFailed):
		o.metrics.outcome(OutcomeFailed)
	default:
		o.metrics.outcome(OutcomeRejected)
	}
	return res, err
}

func (o *Orchestrator) commit(ctx context.Context, kind, idA, idB string, opts CommitOptions) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	release, err := o.acquire(kind, idA, idB)
	if err != nil {
		return nil, err
	}
	defer release()

	sess, err := o.Plan(ctx, kind, idA, idB)
	if err != nil {
		return nil, err
	}
	base := opts.Base
	if base == "" {
		base = SideA
	}
	sess.SetBase(base)
	winner := opts.Winner
	if winner == "" {
		winner = sess.Base()
	}

	preview, err := sess.preview(opts.Selections, winner)
	if err != nil {
		return nil, err
	}
	winnerRec, loserRec := sess.Record(winner), sess.Record(winner.Other())

	plan, err := o.planner(sess.Entity).Plan(ctx, winnerRec.ID(), loserRec.ID())
	if err != nil {
		return nil, err
	}
	known, err := o.store.Collections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	if err := plan.Validate(known); err != nil {
		return nil, err
	}

	mergeID := id.NewMergeID()
	applier := &Applier{
		Store:          o.store,
		BatchSize:      o.cfg.BatchSize,
		YieldThreshold: o.cfg.YieldThreshold,
		SoftDelete:     o.cfg.SoftDelete,
		Logger:         o.logger,
		Metrics:        o.metrics,
		Now:            o.now,
	}
	err = applier.Apply(ctx, ApplyInput{
		MergeID:    mergeID,
		Collection: sess.Entity.Collection,
		Merged:     preview.Merged,
		Winner:     winnerRec,
		Loser:      loserRec,
		Plan:       plan,
	})
	if err != nil {
		return nil, err
	}

	res := &Result{
		MergeID:       mergeID,
		Kind:          kind,
		WinnerID:      winnerRec.ID(),
		LoserID:       loserRec.ID(),
		Merged:        preview.Merged,
		FieldsChanged: preview.FieldsChanged,
		RewireSummary: plan.Summary(),
	}
	o.logger.Info().
		Str("merge_id", mergeID).
		Str("kind", kind).
		Str("winner_id", res.WinnerID).
		Str("loser_id", res.LoserID).
		Int("fields_changed", len(res.FieldsChanged)).
		Int("rewired", res.TotalRewired()).
		Msg("merge committed")

	// The merge is durable at this point; bookkeeping failures are logged only
	if o.journal != nil {
		entry := domain.JournalEntry{
			MergeID:       mergeID,
			Kind:          kind,
			WinnerID:      res.WinnerID,
			LoserID:       res.LoserID,
			FieldsChanged: res.FieldsChanged,
			Rewired:       make(map[string]int, len(res.RewireSummary)),
			CommittedAt:   o.now().UTC(),
		}
		for _, c := range res.RewireSummary {
			entry.Rewired[c.Collection] = c.Count
		}
		if err := o.journal.RecordMerge(ctx, entry); err != nil {
			o.logger.Warn().Err(err).Str("merge_id", mergeID).Msg("failed to record merge journal entry")
		}
	}
	if o.notifier != nil {
		if err := o.notifier.MergeCommitted(ctx, res); err != nil {
			o.logger.Warn().Err(err).Str("merge_id", mergeID).Msg("failed to notify merge")
		}
	}
	return res, nil
}

// acquire marks both ids busy for the duration of a commit
func (o *Orchestrator) acquire(kind, idA, idB string) (func(), error) {
	keys := []string{kind + "/" + idA, kind + "/" + idB}
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, k := range keys {
		if o.inflight[k] {
			return nil, fmt.Errorf("%w: %s", domain.ErrMergeInProgress, k)
		}
	}
	for _, k := range keys {
		o.inflight[k] = true
	}
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for _, k := range keys {
			delete(o.inflight, k)
		}
	}, nil
}
