package backfill

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Dispatcher runs a set of jobs with bounded concurrency. The production
// implementation fans out on goroutines; tests substitute a synchronous one.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobs []func(context.Context) error) error
}

type groupDispatcher struct {
	maxParallel int
}

// NewDispatcher returns a Dispatcher running at most maxParallel jobs at
// once. A first failing job cancels the rest.
func NewDispatcher(maxParallel int) Dispatcher {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &groupDispatcher{maxParallel: maxParallel}
}

func (d *groupDispatcher) Dispatch(ctx context.Context, jobs []func(context.Context) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.maxParallel)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			return job(ctx)
		})
	}
	return g.Wait()
}
