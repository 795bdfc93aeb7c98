package engine

// pool.go: bounded worker pool for the per-market phases.
//
// Results are written by index, so the output keeps the input order and no
// result channel is needed.

import (
	"context"
	"runtime"
	"sync"
)

// runPool applies fn to every item on at most workers goroutines. workers <= 0
// means runtime.NumCPU() × 2. Items are not started once ctx is done; their
// results are left at the zero value.
func runPool[T, R any](ctx context.Context, items []T, workers int, fn func(context.Context, T) R) []R {
	results := make([]R, len(items))
	if len(items) == 0 {
		return results
	}
	if workers <= 0 {
		workers = runtime.NumCPU() * 2
	}
	workers = min(workers, len(items))

	workCh := make(chan int, len(items))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range workCh {
				if ctx.Err() != nil {
					continue
				}
				results[idx] = fn(ctx, items[idx])
			}
		}()
	}

	for i := range items {
		workCh <- i
	}
	close(workCh)
	wg.Wait()
	return results
}
