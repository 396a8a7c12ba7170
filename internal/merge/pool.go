package merge

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool runs jobs on at most a fixed number of goroutines at once.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool returns a pool of the given width. Widths below one mean one.
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(workers))}
}

// Job is a function submitted to a Pool.
type Job struct {
	done   chan struct{}
	cancel context.CancelFunc
	err    error
}

// Submit schedules fn. The job's context is cancelled by Cancel or when ctx
// is done; a job cancelled before it got a worker never runs.
func (p *Pool) Submit(ctx context.Context, fn func(ctx context.Context) error) *Job {
	jobCtx, cancel := context.WithCancel(ctx)
	j := &Job{done: make(chan struct{}), cancel: cancel}
	go func() {
		defer close(j.done)
		defer cancel()
		if err := p.sem.Acquire(jobCtx, 1); err != nil {
			j.err = err
			return
		}
		defer p.sem.Release(1)
		j.err = fn(jobCtx)
	}()
	return j
}

// Wait blocks until the job finished or ctx is done, and returns the job's
// error or ctx's.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel cancels the job's context.
func (j *Job) Cancel() {
	j.cancel()
}

// Done is closed when the job returned.
func (j *Job) Done() <-chan struct{} {
	return j.done
}
