// Package fileproc provides concurrent file processing utilities.
package fileproc

import (
	"context"
	"runtime"
	"time"

	"github.com/sourcegraph/conc/pool"
)

// DefaultWorkerMultiplier is the multiplier applied to NumCPU for worker count.
// 2x suits the mix of file I/O and CGO parsing.
const DefaultWorkerMultiplier = 2

// DefaultWorkers returns 2x NumCPU.
func DefaultWorkers() int {
	return runtime.NumCPU() * DefaultWorkerMultiplier
}

// Options configures Map.
type Options struct {
	// Workers bounds concurrency; <= 0 means DefaultWorkers.
	Workers int
	// Timeout bounds each item; 0 means no limit.
	Timeout time.Duration
}

// Map runs fn over every item and returns the results in input order. Items
// whose fn failed have a zero result and their error in the matching errs
// slot. Items not started because ctx ended are reported with ctx's error,
// which Map also returns.
func Map[In, Out any](ctx context.Context, items []In, opts Options, fn func(context.Context, In) (Out, error)) ([]Out, []error, error) {
	results := make([]Out, len(items))
	errs := make([]error, len(items))
	if len(items) == 0 {
		return results, errs, ctx.Err()
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers()
	}

	p := pool.New().WithMaxGoroutines(workers).WithContext(ctx)
	for i, item := range items {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			itemCtx := ctx
			if opts.Timeout > 0 {
				var cancel context.CancelFunc
				itemCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
				defer cancel()
			}
			out, err := fn(itemCtx, item)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = out
			return nil
		})
	}
	_ = p.Wait()

	return results, errs, ctx.Err()
}
