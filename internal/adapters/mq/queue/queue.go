// Package queue buffers raw delivery events between ingestion and the worker pool.
package queue

import (
	"context"
	"sync"

	"github.com/okian/slarisk/internal/domain/model"
	"github.com/okian/slarisk/pkg/metrics"
)

const defaultQueueCapacity = 100000

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an event without blocking. It returns ErrQueueFull when the
	// queue is at capacity and ErrStopped after Close.
	Enqueue(ctx context.Context, e model.Event) error

	// Dequeue returns the channel consumers range over. It is closed by Close
	// once buffered events are drained.
	Dequeue(ctx context.Context) <-chan model.Event

	// Len returns the current number of queued events.
	Len(ctx context.Context) int

	// Cap returns the queue capacity.
	Cap() int

	// Close stops accepting events. Buffered events stay readable.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	events   chan model.Event
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a bounded in-memory queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.events = make(chan model.Event, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue implements Queue.Enqueue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e model.Event) error { //nolint:gocritic // hugeParam: events travel by value
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueRejected("closed")
		return ErrStopped
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueRejected("context_cancelled")
		return err
	}

	select {
	case q.events <- e:
		metrics.UpdateQueueSize(len(q.events))
		return nil
	default:
		metrics.RecordQueueRejected("queue_full")
		return ErrQueueFull
	}
}

// Dequeue implements Queue.Dequeue. All callers share one channel.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan model.Event {
	return q.events
}

// Len implements Queue.Len.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.events)
	metrics.UpdateQueueSize(size)
	return size
}

// Cap implements Queue.Cap.
func (q *InMemoryQueue) Cap() int {
	return q.capacity
}

// Close implements Queue.Close.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.events)
	q.closed = true
	return nil
}

// IsClosed implements Queue.IsClosed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
