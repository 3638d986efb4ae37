// Package worker runs detached background jobs (vector backfill,
// best-effort message indexing) on a fixed-size pool with its own error
// handling, so fire-and-forget failures are logged instead of vanishing.
package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sandevgo/chorus/pkg/log"
)

type Job func(ctx context.Context) error

const (
	defaultWorkers = 2
	defaultBacklog = 256
)

type Pool struct {
	jobs    chan Job
	workers int

	dropped atomic.Int64

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func NewPool(workers, backlog int) *Pool {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if backlog <= 0 {
		backlog = defaultBacklog
	}
	return &Pool{
		jobs:    make(chan Job, backlog),
		workers: workers,
	}
}

// Start launches the workers and blocks until ctx is cancelled.
// Implements the srv.Service interface.
func (p *Pool) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx).With().Str("component", "worker_pool").Logger()

	// Jobs keep the Start context's values but not its cancellation: the
	// backlog is drained during Shutdown, after Start's context is already
	// done, and drained jobs must still be able to finish.
	jobCtx := context.WithoutCancel(ctx)

	p.startOnce.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				for job := range p.jobs {
					if err := job(jobCtx); err != nil {
						logger.Warn().Err(err).Msg("background job failed")
					}
				}
			}()
		}
	})

	<-ctx.Done()
	return nil
}

func (p *Pool) Shutdown(ctx context.Context) error {
	p.stopOnce.Do(func() {
		close(p.jobs)
	})
	p.wg.Wait()
	if n := p.dropped.Load(); n > 0 {
		log.FromCtx(ctx).Warn().Int64("dropped", n).Msg("worker pool dropped jobs under saturation")
	}
	return nil
}

// Submit hands a job to the pool without blocking. When the backlog is
// saturated the job is dropped and counted; callers treat submission as
// best-effort.
func (p *Pool) Submit(job Job) bool {
	select {
	case p.jobs <- job:
		return true
	default:
		p.dropped.Add(1)
		return false
	}
}
