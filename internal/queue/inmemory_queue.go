package queue

import (
	"context"
	"time"
)

// InMemoryQueue is a Queue backed by a buffered channel. It is the broker
// for single-process deployments and tests.
type InMemoryQueue struct {
	ch chan Task
}

// NewInMemoryQueue creates a queue with the given capacity.
// For tests and small deployments, a modest capacity (e.g. 1024) is fine.
func NewInMemoryQueue(capacity int) *InMemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &InMemoryQueue{
		ch: make(chan Task, capacity),
	}
}

var _ Queue = (*InMemoryQueue)(nil)

func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) error {
	select {
	case q.ch <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue returns the next task, holding tasks with a future NotBefore
// until they become eligible. FIFO order is preserved, so a deferred task
// at the head delays the ones behind it; deferred work is rare enough
// here that a priority structure is not worth it.
func (q *InMemoryQueue) Dequeue(ctx context.Context) (*Task, error) {
	select {
	case t := <-q.ch:
		wait := time.Until(t.eligibleAt())
		if wait <= 0 {
			return &t, nil
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
			return &t, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *InMemoryQueue) Len() int {
	return len(q.ch)
}
