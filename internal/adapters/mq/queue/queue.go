// Package queue carries timestamped message copies from the ingest adapters
// to the correlation tracker. The queue is an in-memory bounded channel:
// enqueue never blocks the receive path, and observations that arrive faster
// than the tracker can group them are dropped and counted.
package queue

import (
	"context"
	"sync"

	"github.com/skysieve/mlatd/internal/domain/model"
	"github.com/skysieve/mlatd/pkg/metrics"
)

const (
	defaultCapacity   = 65536
	defaultBufferSize = 65536
)

// Observation is the payload type flowing through the queue.
type Observation = model.Observation

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an observation. Returns false if the queue is full or
	// closed and the observation was dropped.
	Enqueue(ctx context.Context, o Observation) bool

	// Dequeue returns a channel receiving observations as they become
	// available. The channel is closed when the queue is closed.
	Dequeue(ctx context.Context) <-chan Observation

	// Len returns the current number of queued observations.
	Len(ctx context.Context) int

	// Close shuts down the queue. After closing, Enqueue returns false and
	// the dequeue channel drains then closes.
	Close() error
}

// InMemoryQueue implements Queue on a buffered channel.
type InMemoryQueue struct {
	observations chan Observation
	capacity     int
	bufferSize   int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a queue with the given options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity:   defaultCapacity,
		bufferSize: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(q)
	}

	q.observations = make(chan Observation, q.bufferSize)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)

	return q
}

// Enqueue adds an observation to the queue without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, o Observation) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueDropped()
		return false
	}

	if len(q.observations) >= q.capacity {
		metrics.RecordQueueDropped()
		return false
	}

	select {
	case q.observations <- o:
		metrics.UpdateQueueSize(len(q.observations))
		return true
	case <-ctx.Done():
		metrics.RecordQueueDropped()
		return false
	default:
		metrics.RecordQueueDropped()
		return false
	}
}

// Dequeue returns a channel receiving observations until the queue closes or
// ctx is cancelled.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Observation {
	out := make(chan Observation)
	go func() {
		defer close(out)
		for o := range q.observations {
			select {
			case out <- o:
				metrics.UpdateQueueSize(len(q.observations))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued observations.
func (q *InMemoryQueue) Len(ctx context.Context) int {
	return len(q.observations)
}

// Close shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	close(q.observations)
	q.closed = true
	return nil
}
