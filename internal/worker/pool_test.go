package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsSubmittedJobs(t *testing.T) {
	p := NewPool(2, 16)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		_ = p.Start(ctx)
		close(done)
	}()

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		if !p.Submit(func(ctx context.Context) error {
			ran.Add(1)
			return nil
		}) {
			t.Fatal("submit rejected with free backlog")
		}
	}

	cancel()
	<-done
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}

	if got := ran.Load(); got != 5 {
		t.Fatalf("ran %d jobs, want 5", got)
	}
}

func TestPoolJobErrorDoesNotStopWorkers(t *testing.T) {
	p := NewPool(1, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Start(ctx) }()

	var ran atomic.Int32
	p.Submit(func(ctx context.Context) error { return errors.New("boom") })
	p.Submit(func(ctx context.Context) error {
		ran.Add(1)
		return nil
	})

	cancel()
	_ = p.Shutdown(context.Background())
	if ran.Load() != 1 {
		t.Fatal("job after a failing job did not run")
	}
}

func TestPoolDrainedJobsOutliveStartContext(t *testing.T) {
	p := NewPool(1, 4)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		_ = p.Start(ctx)
		close(done)
	}()

	// Make sure the worker is up before cancelling.
	ready := make(chan struct{})
	p.Submit(func(ctx context.Context) error {
		close(ready)
		return nil
	})
	<-ready

	cancel()
	<-done

	// This job is drained by Shutdown, after Start's context is done. It
	// must still run with a live context.
	errCh := make(chan error, 1)
	p.Submit(func(ctx context.Context) error {
		errCh <- ctx.Err()
		return nil
	})
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("drained job saw cancelled context: %v", err)
		}
	default:
		t.Fatal("drained job never ran")
	}
}

func TestPoolSubmitDropsWhenSaturated(t *testing.T) {
	// Pool never started: backlog of one fills immediately.
	p := NewPool(1, 1)

	if !p.Submit(func(ctx context.Context) error { return nil }) {
		t.Fatal("first submit should be accepted")
	}
	if p.Submit(func(ctx context.Context) error { return nil }) {
		t.Fatal("saturated submit should be dropped")
	}
	if p.dropped.Load() != 1 {
		t.Fatalf("dropped = %d, want 1", p.dropped.Load())
	}

	// Drain so Shutdown does not hang on queued jobs.
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = p.Start(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	_ = p.Shutdown(context.Background())
}
