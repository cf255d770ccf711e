// Package worker runs independent jobs with bounded concurrency.
package worker

import (
	"context"
	"sync"
)

// Result pairs one input with its output or error.
type Result[In, Out any] struct {
	Input  In
	Output Out
	Err    error
}

// Run calls fn for every input using at most concurrency goroutines and
// returns the results in input order. Inputs not yet started when ctx is
// done are reported with ctx.Err().
func Run[In, Out any](ctx context.Context, inputs []In, concurrency int, fn func(context.Context, In) (Out, error)) []Result[In, Out] {
	results := make([]Result[In, Out], len(inputs))
	if len(inputs) == 0 {
		return results
	}
	concurrency = min(max(concurrency, 1), len(inputs))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for range concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i].Input = inputs[i]
				if err := ctx.Err(); err != nil {
					results[i].Err = err
					continue
				}
				results[i].Output, results[i].Err = fn(ctx, inputs[i])
			}
		}()
	}
	for i := range inputs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}
