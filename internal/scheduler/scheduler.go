// Package scheduler runs the engine's periodic jobs: each job ticks on its
// own interval and a failed tick is logged and retried on the next one, so
// one bad cycle never takes down the loop.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/skywatch-data/skywatch/internal/monitoring"
	"github.com/skywatch-data/skywatch/internal/timeutil"
)

// Job is one periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	// RunOnStart fires the job once immediately instead of waiting a full
	// interval.
	RunOnStart bool
	Fn         func(ctx context.Context) error
}

// Runner drives a fixed set of jobs.
type Runner struct {
	jobs  []Job
	clock timeutil.Clock

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewRunner builds a Runner. A nil clock falls back to the real one.
func NewRunner(jobs []Job, clock timeutil.Clock) *Runner {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Runner{
		jobs:   jobs,
		clock:  clock,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Run starts every job loop and blocks until the context is cancelled or
// Stop() is called. Returns nil on clean shutdown.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	defer func() {
		close(r.doneCh)
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, job := range r.jobs {
		if job.Interval <= 0 {
			monitoring.Logf("scheduler: job %s has no interval, skipping", job.Name)
			continue
		}
		wg.Add(1)
		go func(j Job) {
			defer wg.Done()
			r.loop(jobCtx, j)
		}(job)
	}

	select {
	case <-ctx.Done():
	case <-r.stopCh:
	}
	cancel()
	wg.Wait()
	return nil
}

// Stop requests shutdown and waits for every job loop to drain. Safe to
// call multiple times.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	select {
	case <-r.stopCh:
	default:
		close(r.stopCh)
	}
	r.mu.Unlock()

	<-r.doneCh
}

// IsRunning reports whether the runner is live.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Runner) loop(ctx context.Context, j Job) {
	monitoring.Logf("scheduler: %s started, interval=%v", j.Name, j.Interval)

	if j.RunOnStart {
		r.tick(ctx, j)
	}
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("scheduler: %s stopped", j.Name)
			return
		case <-r.clock.After(j.Interval):
			r.tick(ctx, j)
		}
	}
}

func (r *Runner) tick(ctx context.Context, j Job) {
	if err := j.Fn(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		monitoring.Logf("scheduler: %s tick failed: %v", j.Name, err)
	}
}
