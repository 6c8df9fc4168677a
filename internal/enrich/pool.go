package enrich

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Pool runs independent lookups with bounded parallelism. Every call gets
// its own timeout; the whole batch shares an optional deadline. Tasks never
// fail the batch: a task reports its own outcome in its result.
type Pool struct {
	Workers      int
	CallTimeout  time.Duration
	BatchTimeout time.Duration
}

func (p Pool) workers() int {
	if p.Workers <= 0 {
		return 10
	}
	return p.Workers
}

// Map applies fn to every item and returns the results in input order.
// Once the batch deadline passes, tasks still queued are started with an
// already-expired context so they fail fast instead of being skipped.
func Map[T, R any](ctx context.Context, p Pool, items []T, fn func(ctx context.Context, item T) R) []R {
	out := make([]R, len(items))
	if len(items) == 0 {
		return out
	}

	batchCtx := ctx
	if p.BatchTimeout > 0 {
		var cancel context.CancelFunc
		batchCtx, cancel = context.WithTimeout(ctx, p.BatchTimeout)
		defer cancel()
	}

	var g errgroup.Group
	g.SetLimit(p.workers())
	for i, item := range items {
		g.Go(func() error {
			callCtx := batchCtx
			if p.CallTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(batchCtx, p.CallTimeout)
				defer cancel()
			}
			out[i] = fn(callCtx, item)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
