package merge

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"github.com/lherron/recmerge/internal/domain"
	"github.com/lherron/recmerge/internal/store"
)

// ApplyInput is one fully computed merge ready to write
type ApplyInput struct {
	MergeID    string
	Collection string
	Merged     domain.Record
	// Winner and Loser are the rows as loaded before any mutation
	Winner domain.Record
	Loser  domain.Record
	Plan   *Plan
}

// Applier writes a merge as one all-or-nothing unit using snapshot rollback
type Applier struct {
	Store          store.Store
	BatchSize      int
	YieldThreshold int
	SoftDelete     bool
	Logger         zerolog.Logger
	Metrics        *Metrics
	Now            func() time.Time
}

// Apply writes the merged record, rewires every plan entry and removes the
// loser. On failure everything touched is restored and an *domain.ApplyError
// is returned. Cancellation is honoured only before the first write.
func (a *Applier) Apply(ctx context.Context, in ApplyInput) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)
	log := a.Logger.With().Str("merge_id", in.MergeID).Str("collection", in.Collection).Logger()

	// entries up to and including this index may have been written
	touched := -1
	err := func() error {
		if err := a.Store.Put(ctx, in.Collection, in.Merged); err != nil {
			return fmt.Errorf("failed to write merged record: %w", err)
		}
		for i := range in.Plan.Entries {
			touched = i
			if err := a.applyEntry(ctx, &in.Plan.Entries[i]); err != nil {
				return err
			}
		}
		return a.removeLoser(ctx, in.Collection, in.Loser.ID())
	}()
	if err == nil {
		return nil
	}

	log.Warn().Err(err).Msg("merge apply failed, rolling back")
	rbErr := a.rollback(ctx, log, in, touched)
	a.Metrics.rollback(rbErr)
	return &domain.ApplyError{MergeID: in.MergeID, Err: err, RollbackErr: rbErr}
}

func (a *Applier) applyEntry(ctx context.Context, e *PlanEntry) error {
	for _, d := range e.Deletes {
		if err := a.Store.Delete(ctx, e.Collection, d.OldID); err != nil {
			return fmt.Errorf("failed to delete %s/%s: %w", e.Collection, d.OldID, err)
		}
	}

	size := a.BatchSize
	if size <= 0 {
		size = 100
	}
	yield := a.YieldThreshold > 0 && len(e.Updates) > a.YieldThreshold
	for start := 0; start < len(e.Updates); start += size {
		end := min(start+size, len(e.Updates))
		if err := a.Store.BulkPut(ctx, e.Collection, e.Updates[start:end]); err != nil {
			return fmt.Errorf("failed to rewire %s: %w", e.Collection, err)
		}
		if yield {
			runtime.Gosched()
		}
	}
	return nil
}

func (a *Applier) removeLoser(ctx context.Context, collection, loserID string) error {
	if sd, ok := a.Store.(store.SoftDeleter); ok && a.SoftDelete {
		now := time.Now
		if a.Now != nil {
			now = a.Now
		}
		if err := sd.SoftDelete(ctx, collection, loserID, domain.NowMillis(now())); err != nil {
			return fmt.Errorf("failed to soft-delete loser: %w", err)
		}
		return nil
	}
	if err := a.Store.Delete(ctx, collection, loserID); err != nil {
		return fmt.Errorf("failed to delete loser: %w", err)
	}
	return nil
}

// rollback restores touched plan entries in reverse order, then the original
// winner and loser rows. Every step is attempted; failures are joined.
func (a *Applier) rollback(ctx context.Context, log zerolog.Logger, in ApplyInput, touched int) error {
	var errs []error
	fail := func(collection string, err error) {
		log.Error().Err(err).Str("rollback_collection", collection).Msg("rollback step failed")
		errs = append(errs, err)
	}

	for i := touched; i >= 0; i-- {
		e := &in.Plan.Entries[i]
		for _, createdID := range e.CreatedIDs {
			if err := a.Store.Delete(ctx, e.Collection, createdID); err != nil {
				fail(e.Collection, fmt.Errorf("failed to remove %s/%s: %w", e.Collection, createdID, err))
			}
		}
		if len(e.RevertSnapshot) > 0 {
			if err := a.Store.BulkPut(ctx, e.Collection, e.RevertSnapshot); err != nil {
				fail(e.Collection, fmt.Errorf("failed to restore %s: %w", e.Collection, err))
			}
		}
	}

	if err := a.Store.Put(ctx, in.Collection, in.Winner); err != nil {
		fail(in.Collection, fmt.Errorf("failed to restore winner: %w", err))
	}
	if err := a.Store.Put(ctx, in.Collection, in.Loser); err != nil {
		fail(in.Collection, fmt.Errorf("failed to restore loser: %w", err))
	}

	if len(errs) == 0 {
		log.Info().Int("entries", touched+1).Msg("rollback complete")
	}
	return errors.Join(errs...)
}
