package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Task is one unit of work run by Dispatch.
type Task[R any] interface {
	Run(ctx context.Context) R
}

// TaskFunc adapts a function to Task.
type TaskFunc[R any] func(ctx context.Context) R

// Run implements Task.
func (f TaskFunc[R]) Run(ctx context.Context) R { return f(ctx) }

// Dispatch runs tasks on at most workers goroutines and returns their
// results in task order. Tasks report failure in their result, so one task
// failing never cancels the others; only ctx does.
func Dispatch[R any](ctx context.Context, workers int, tasks []Task[R]) []R {
	results := make([]R, len(tasks))
	if len(tasks) == 0 {
		return results
	}
	if workers < 1 || len(tasks) == 1 {
		workers = 1
	}
	if workers > len(tasks) {
		workers = len(tasks)
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			results[i] = task.Run(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
