package client

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ItemResult is the per-item outcome of a batched fan-out.
type ItemResult[R any] struct {
	Index int
	Value R
	Err   error
}

// ForEach runs fn for every item with at most limit in flight, fanning in
// per-item results. One item failing never aborts the batch; its failure is
// recorded in its slot and the rest proceed. Cancelling ctx stops new items
// from being issued but does not abort items already running.
func ForEach[T, R any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, item T) (R, error)) []ItemResult[R] {
	if limit <= 0 {
		limit = 8
	}

	results := make([]ItemResult[R], len(items))
	var group errgroup.Group
	group.SetLimit(limit)

	for i, item := range items {
		// Keep walking after cancellation so every remaining slot gets a
		// ctx.Err() entry; an early return would leave zero-valued
		// ItemResults that look like successes.
		if err := ctx.Err(); err != nil {
			results[i] = ItemResult[R]{Index: i, Err: err}
			continue
		}
		group.Go(func() error {
			value, err := fn(ctx, item)
			results[i] = ItemResult[R]{Index: i, Value: value, Err: err}
			return nil
		})
	}

	_ = group.Wait() // per-item errors live in results
	return results
}
