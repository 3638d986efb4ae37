// Package queue serializes tasks that share a key while letting tasks
// under different keys run concurrently. One queue instance is owned by
// the orchestrator for the lifetime of the process and keys tasks by
// persona name, so each persona handles one model call at a time.
package queue

import (
	"context"
	"sync"
)

type Task func(ctx context.Context) error

type entry struct {
	// tail is the completion signal of the most recently submitted task
	// under this key. It closes when that task settles, success or not.
	tail    chan struct{}
	pending int
}

type Queue struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *Queue {
	return &Queue{entries: make(map[string]*entry)}
}

// Do submits task under key and blocks until it has run, returning the
// task's own error. Tasks sharing a key run strictly in Do-call order with
// no overlap; a predecessor's failure only delays its successor until the
// predecessor settles, it never propagates to it.
func (q *Queue) Do(ctx context.Context, key string, task Task) error {
	// The position in the key's order is claimed synchronously, before any
	// waiting, so concurrent Do calls cannot race for it.
	q.mu.Lock()
	e, ok := q.entries[key]
	if !ok {
		e = &entry{tail: closedSignal()}
		q.entries[key] = e
	}
	prev := e.tail
	done := make(chan struct{})
	e.tail = done
	e.pending++
	q.mu.Unlock()

	defer func() {
		// The sequencing signal resolves no matter how the task ended, so
		// the next task under this key is never blocked by our outcome.
		close(done)

		q.mu.Lock()
		e.pending--
		if e.pending == 0 {
			delete(q.entries, key)
		}
		q.mu.Unlock()
	}()

	// Wait for the predecessor to settle. Completion only; its result is
	// irrelevant here.
	<-prev

	return task(ctx)
}

// Len reports the number of pending-plus-active tasks under key. A drained
// key reports zero and holds no bookkeeping.
func (q *Queue) Len(key string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.entries[key]; ok {
		return e.pending
	}
	return 0
}

func closedSignal() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
