package client

import (
	"context"

	"github.com/nimbusctl/nimbus/pkg/apierrors"
)

// PageFunc fetches one page of a listing operation. It receives the cursor
// from the previous page ("" for the first) and returns the page's items
// and the next cursor ("" when the listing is exhausted). A cursor obtained
// from one operation must only ever be replayed into the same operation,
// which the closure shape guarantees structurally.
type PageFunc[T any] func(ctx context.Context, cursor string) (items []T, next string, err error)

// Pager presents a multi-page listing as one logical stream. It is lazy:
// pages are fetched as the consumer advances. A Pager is single-use;
// construct a new one to restart from scratch. Retries of the underlying
// calls stay the dispatcher's job, the pager stops on the first error it
// sees.
type Pager[T any] struct {
	fn     PageFunc[T]
	cursor string
	page   int
	done   bool
}

// NewPager wraps a listing closure.
func NewPager[T any](fn PageFunc[T]) *Pager[T] {
	return &Pager[T]{fn: fn}
}

// Next fetches the next page. The second return is false once the listing
// is exhausted; the error, when set, wraps the underlying failure with the
// page number.
func (p *Pager[T]) Next(ctx context.Context) ([]T, bool, error) {
	if p.done {
		return nil, false, nil
	}
	p.page++

	items, next, err := p.fn(ctx, p.cursor)
	if err != nil {
		p.done = true
		return nil, false, &apierrors.PaginationError{Page: p.page, Err: err}
	}

	p.cursor = next
	if next == "" {
		p.done = true
	}
	return items, true, nil
}

// Each visits every item across all pages in order. The visit function
// returns false to stop early. The first underlying error ends iteration
// and is returned.
func (p *Pager[T]) Each(ctx context.Context, visit func(T) bool) error {
	for {
		items, more, err := p.Next(ctx)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
		for _, item := range items {
			if !visit(item) {
				return nil
			}
		}
	}
}

// All collects every item across all pages.
func (p *Pager[T]) All(ctx context.Context) ([]T, error) {
	var out []T
	err := p.Each(ctx, func(item T) bool {
		out = append(out, item)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
