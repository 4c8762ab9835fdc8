// Package queue implements the ingestion queue between producers and the
// single recorder worker.
package queue

import (
	"sync"
	"sync/atomic"
)

// Queue is a FIFO list guarded by a mutex. Push never blocks on the
// consumer; the lock is held only while the slice is mutated.
//
// A Queue created with a positive limit drops its oldest item when a push
// would exceed the limit. A limit of zero means unbounded.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	limit int

	ready   chan struct{}
	dropped atomic.Uint64
}

func New[T any](limit int) *Queue[T] {
	if limit < 0 {
		limit = 0
	}
	return &Queue[T]{
		limit: limit,
		ready: make(chan struct{}, 1),
	}
}

// Push appends v and signals Ready.
func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	if q.limit > 0 && len(q.items) >= q.limit {
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
		q.dropped.Add(1)
	}
	q.items = append(q.items, v)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// PopFront removes and returns the oldest item. ok is false when the queue
// is empty.
func (q *Queue[T]) PopFront() (v T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return v, false
	}
	v = q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return v, true
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Ready delivers a value after one or more pushes. It is a hint only: the
// consumer must still treat an empty PopFront as normal.
func (q *Queue[T]) Ready() <-chan struct{} { return q.ready }

// Dropped returns how many items were evicted by the limit.
func (q *Queue[T]) Dropped() uint64 { return q.dropped.Load() }
