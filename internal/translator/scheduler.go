package translator

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

type outcome[T any] struct {
	index   int
	value   T
	err     error
	skipped bool
}

// runOrdered runs work for indexes 0..n-1 with at most limit in flight and
// calls onCommit strictly in index order as soon as a contiguous prefix is
// complete. A failure stops new dispatch; tasks already running finish and
// the error of the lowest failed index is returned.
//
// onCommit runs on the calling goroutine only.
func runOrdered[T any](
	ctx context.Context,
	n, limit int,
	work func(ctx context.Context, i int) (T, error),
	onCommit func(i int, v T),
) error {
	if n <= 0 {
		return nil
	}
	limit = max(limit, 1)

	results := make(chan outcome[T])
	var stop atomic.Bool

	// siblings are not canceled on failure, so a plain Group is enough
	var g errgroup.Group
	g.SetLimit(limit)
	go func() {
		for i := 0; i < n; i++ {
			if stop.Load() || ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if stop.Load() {
					results <- outcome[T]{index: i, skipped: true}
					return nil
				}
				v, err := work(ctx, i)
				results <- outcome[T]{index: i, value: v, err: err}
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	var (
		slots    = make([]*T, n)
		next     = 0
		errIndex = -1
		firstErr error
	)
	for o := range results {
		switch {
		case o.skipped:
			continue
		case o.err != nil:
			stop.Store(true)
			if errIndex < 0 || o.index < errIndex {
				errIndex, firstErr = o.index, o.err
			}
			continue
		}

		v := o.value
		slots[o.index] = &v
		for next < n && slots[next] != nil {
			onCommit(next, *slots[next])
			slots[next] = nil
			next++
		}
	}

	if firstErr != nil {
		return firstErr
	}
	if next < n {
		// dispatch stopped on cancellation
		return ctx.Err()
	}
	return nil
}
