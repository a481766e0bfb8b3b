package concurrent

import (
	"context"
	"sync"
)

// Result represents the result of a parallel operation
type Result[T any] struct {
	Value T
	Error error
	Index int // Original index in the input slice
}

// Task represents a function to be executed in parallel
type Task[T any] func(ctx context.Context) (T, error)

// ParallelExecute executes tasks in parallel and returns all results.
// It waits for all tasks to complete, even if some fail.
func ParallelExecute[T any](ctx context.Context, tasks []Task[T]) []Result[T] {
	results := make([]Result[T], len(tasks))
	var wg sync.WaitGroup

	for i, task := range tasks {
		wg.Add(1)
		go func(index int, t Task[T]) {
			defer wg.Done()
			value, err := t(ctx)
			results[index] = Result[T]{
				Value: value,
				Error: err,
				Index: index,
			}
		}(i, task)
	}

	wg.Wait()
	return results
}

// ParallelMap executes a function on each item in parallel and returns
// the results in input order
func ParallelMap[T any, R any](ctx context.Context, items []T, fn func(ctx context.Context, item T) (R, error)) []Result[R] {
	tasks := make([]Task[R], len(items))
	for i, item := range items {
		item := item
		tasks[i] = func(ctx context.Context) (R, error) {
			return fn(ctx, item)
		}
	}
	return ParallelExecute(ctx, tasks)
}

// FirstError returns the first error from results, or nil if all succeeded
func FirstError[T any](results []Result[T]) error {
	for _, result := range results {
		if result.Error != nil {
			return result.Error
		}
	}
	return nil
}
