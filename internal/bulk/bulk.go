// Package bulk runs one function over a list of items, sequentially or with
// a bounded worker pool, and collects per-item outcomes.
package bulk

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Operation represents a bulk operation configuration
type Operation struct {
	Jobs            int
	ContinueOnError bool
	Logger          zerolog.Logger
}

// Status of one item
type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// ItemResult is the outcome for one item, in input order
type ItemResult struct {
	Item   string `json:"item" yaml:"item"`
	Status Status `json:"status" yaml:"status"`
	Error  string `json:"error,omitempty" yaml:"error,omitempty"`
	Err    error  `json:"-" yaml:"-"`
}

// Result represents the result of a bulk operation
type Result struct {
	TotalItems int          `json:"total" yaml:"total"`
	Succeeded  int          `json:"succeeded" yaml:"succeeded"`
	Failed     int          `json:"failed" yaml:"failed"`
	Skipped    int          `json:"skipped" yaml:"skipped"`
	Items      []ItemResult `json:"items" yaml:"items"`
}

// ItemFunc is the function to execute for each item
type ItemFunc func(ctx context.Context, item string) error

// Execute runs fn over items. Jobs <= 1 runs in input order. Without
// ContinueOnError the first failure stops items that have not started yet;
// those are reported as skipped.
func (op *Operation) Execute(ctx context.Context, items []string, fn ItemFunc) *Result {
	result := &Result{
		TotalItems: len(items),
		Items:      make([]ItemResult, len(items)),
	}
	for i, item := range items {
		result.Items[i] = ItemResult{Item: item, Status: StatusSkipped}
	}
	if len(items) == 0 {
		return result
	}

	jobs := op.Jobs
	if jobs <= 0 {
		jobs = 1
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	var mu sync.Mutex
	record := func(i int, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			result.Items[i].Status = StatusFailed
			result.Items[i].Err = err
			result.Items[i].Error = err.Error()
			op.Logger.Warn().Err(err).Str("item", items[i]).Msg("bulk item failed")
			if !op.ContinueOnError {
				stop()
			}
			return
		}
		result.Items[i].Status = StatusOK
		op.Logger.Debug().Str("item", items[i]).Msg("bulk item done")
	}

	g := new(errgroup.Group)
	g.SetLimit(jobs)
	for i, item := range items {
		if runCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			if runCtx.Err() != nil {
				return nil
			}
			record(i, fn(runCtx, item))
			return nil
		})
	}
	_ = g.Wait()

	for _, it := range result.Items {
		switch it.Status {
		case StatusOK:
			result.Succeeded++
		case StatusFailed:
			result.Failed++
		default:
			result.Skipped++
		}
	}
	return result
}

// Errors returns the failed items in input order
func (r *Result) Errors() []ItemResult {
	var out []ItemResult
	for _, it := range r.Items {
		if it.Status == StatusFailed {
			out = append(out, it)
		}
	}
	return out
}

// PrintSummary prints a human-readable summary of the result
func (r *Result) PrintSummary(w io.Writer) {
	switch {
	case r.Failed == 0 && r.Skipped == 0:
		fmt.Fprintf(w, "All %d operations succeeded\n", r.TotalItems)
	case r.Succeeded == 0:
		fmt.Fprintf(w, "No operations succeeded: %d failed, %d skipped\n", r.Failed, r.Skipped)
	default:
		fmt.Fprintf(w, "Partial success: %d succeeded, %d failed, %d skipped (out of %d)\n",
			r.Succeeded, r.Failed, r.Skipped, r.TotalItems)
	}

	errs := r.Errors()
	if len(errs) > 10 {
		fmt.Fprintf(w, "Showing first 10 errors (of %d):\n", len(errs))
		errs = errs[:10]
	}
	for _, e := range errs {
		fmt.Fprintf(w, "  %s: %s\n", e.Item, e.Error)
	}
}
