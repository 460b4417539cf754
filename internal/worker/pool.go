// Package worker runs independent tasks on a bounded set of goroutines and
// returns their results in submission order.
package worker

import (
	"context"
	"runtime"
	"sync"
)

// Task is one unit of work. It should return promptly once ctx is done.
type Task[T any] func(ctx context.Context) (T, error)

// Result pairs a task's value with its submission index.
type Result[T any] struct {
	Index int
	Value T
	Err   error
}

// Pool fans tasks out to a fixed number of workers.
type Pool[T any] struct {
	concurrency int
}

// NewPool creates a pool with the given concurrency.
// If concurrency <= 0, defaults to runtime.NumCPU().
func NewPool[T any](concurrency int) *Pool[T] {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &Pool[T]{concurrency: concurrency}
}

// Run executes tasks and returns one result per task, in input order.
// A task error is recorded on its result and does not stop the others.
// Tasks not yet started when ctx is done are skipped with ctx.Err().
func (p *Pool[T]) Run(ctx context.Context, tasks []Task[T]) []Result[T] {
	if len(tasks) == 0 {
		return nil
	}

	workers := p.concurrency
	if workers > len(tasks) {
		workers = len(tasks)
	}

	jobs := make(chan int, len(tasks))
	results := make([]Result[T], len(tasks))
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i].Index = i
				if err := ctx.Err(); err != nil {
					results[i].Err = err
					continue
				}
				results[i].Value, results[i].Err = tasks[i](ctx)
			}
		}()
	}

	for i := range tasks {
		jobs <- i
	}
	close(jobs)

	wg.Wait()
	return results
}
