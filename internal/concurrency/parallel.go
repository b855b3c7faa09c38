package concurrency

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ParallelOptions configures parallel processing.
type ParallelOptions struct {
	// MaxWorkers bounds how many items are processed at once.
	MaxWorkers int
}

func DefaultOptions() ParallelOptions {
	return ParallelOptions{
		MaxWorkers: 10,
	}
}

func (o ParallelOptions) workers(n int) int {
	w := o.MaxWorkers
	if w <= 0 {
		w = DefaultOptions().MaxWorkers
	}
	if w > n {
		w = n
	}
	return w
}

// ProcessParallel runs itemFunc for every item with at most MaxWorkers in
// flight. Results keep the input order. A failing item does not stop the
// others; its error is collected and its result slot keeps whatever itemFunc
// returned. Items not started before ctx is cancelled get ctx.Err().
func ProcessParallel[T any, R any](
	ctx context.Context,
	items []T,
	opts ParallelOptions,
	itemFunc func(ctx context.Context, index int, item T) (R, error),
) ([]R, []error) {
	if len(items) == 0 {
		return []R{}, nil
	}

	results := make([]R, len(items))
	errs := make([]error, len(items))

	var g errgroup.Group
	g.SetLimit(opts.workers(len(items)))
	for i := range items {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			results[i], errs[i] = itemFunc(ctx, i, items[i])
			return nil
		})
	}
	_ = g.Wait()

	var errList []error
	for _, err := range errs {
		if err != nil {
			errList = append(errList, err)
		}
	}
	return results, errList
}
