// Package queue coalesces rapid successions of requests so only the newest result is applied.
package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrSuperseded is returned to callers whose request was overtaken by a newer one
var ErrSuperseded = errors.New("request superseded by a newer request")

// Task is one unit of asynchronous work
type Task[T any] func(ctx context.Context) (T, error)

// LastQueue delivers only the result of the most recently enqueued task.
// Tasks are issued in the order they are enqueued and are never aborted;
// results of tasks overtaken by a newer Enqueue are discarded and their
// callers receive ErrSuperseded.
type LastQueue[T any] struct {
	mu       sync.Mutex
	latest   uint64
	inFlight int

	// OnSuperseded is called once per dropped result
	OnSuperseded func()
}

// New creates an empty queue
func New[T any]() *LastQueue[T] {
	return &LastQueue[T]{}
}

// Enqueue issues task and blocks until it completes. The task's result is
// returned only if no newer task was enqueued in the meantime.
func (q *LastQueue[T]) Enqueue(ctx context.Context, task Task[T]) (T, error) {
	return q.EnqueueApply(ctx, task, nil)
}

// EnqueueApply is Enqueue with a delivery step. apply runs on a successful
// result while the task is still the newest, and no newer task is issued
// until it returns. Its error is returned to the caller.
func (q *LastQueue[T]) EnqueueApply(ctx context.Context, task Task[T], apply func(T) error) (T, error) {
	q.mu.Lock()
	q.latest++
	ticket := q.latest
	q.inFlight++
	q.mu.Unlock()

	result, err := task(ctx)

	q.mu.Lock()
	q.inFlight--
	if ticket != q.latest {
		q.mu.Unlock()
		if q.OnSuperseded != nil {
			q.OnSuperseded()
		}
		var zero T
		return zero, ErrSuperseded
	}
	if err == nil && apply != nil {
		err = apply(result)
	}
	q.mu.Unlock()
	return result, err
}

// Pending returns the number of tasks still in flight
func (q *LastQueue[T]) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inFlight
}

// Issued returns how many tasks have been enqueued so far
func (q *LastQueue[T]) Issued() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.latest
}
