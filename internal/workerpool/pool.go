// Package workerpool fans per-alert and per-mint jobs out over a
// bounded number of goroutines. Results keep their task index, so
// callers reassemble output deterministically regardless of which
// worker finished first.
package workerpool

import (
	"context"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

// Map runs fn for every index in [0, n) with at most workers running
// concurrently and returns the results in task order. The first error
// cancels the remaining tasks; a panicking task is converted into an
// error instead of taking the process down.
func Map[T any](ctx context.Context, workers, n int, fn func(ctx context.Context, i int) (T, error)) ([]T, error) {
	if workers < 1 {
		workers = 1
	}

	results := make([]T, n)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := 0; i < n; i++ {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("task %d panicked: %v\n%s", i, r, debug.Stack())
				}
			}()

			if err := ctx.Err(); err != nil {
				return err
			}
			out, err := fn(ctx, i)
			if err != nil {
				return fmt.Errorf("task %d: %w", i, err)
			}
			results[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
