// Package queue carries rebuild jobs from producers to the worker pool.
//
// The in-memory queue is a bounded channel. Enqueue never blocks; producers
// that must not drop jobs use EnqueueWait.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 10000
	defaultBufferSize    = 10000
)

// Job kinds.
const (
	// KindReplay rebuilds a user's stage bests from the run ledger and then
	// recomputes their career summary.
	KindReplay = "replay"
	// KindRecompute only recomputes the career summary.
	KindRecompute = "recompute"
)

// Job is one unit of rebuild work for a single user.
type Job struct {
	ID         string
	UserID     int64
	Kind       string
	EnqueuedAt time.Time
}

// NewJob creates a job with a fresh id.
func NewJob(kind string, userID int64) Job {
	return Job{ID: uuid.NewString(), UserID: userID, Kind: kind, EnqueuedAt: time.Now()}
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a job. It returns false if the queue is full or closed.
	Enqueue(ctx context.Context, j Job) bool

	// EnqueueWait adds a job, waiting for room until ctx is done.
	EnqueueWait(ctx context.Context, j Job) error

	// Dequeue returns a channel of jobs. It is closed after Close once the
	// remaining jobs have been drained.
	Dequeue(ctx context.Context) <-chan Job

	Len(ctx context.Context) int
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	jobs       chan Job
	capacity   int
	bufferSize int

	mu     sync.RWMutex
	closed bool
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a new in-memory queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity:   defaultQueueCapacity,
		bufferSize: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.bufferSize < q.capacity {
		q.bufferSize = q.capacity
	}
	q.jobs = make(chan Job, q.bufferSize)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue implements Queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j Job) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}
	if len(q.jobs) >= q.capacity {
		metrics.RecordErrorByComponent("queue", "capacity_exceeded")
		return false
	}
	select {
	case q.jobs <- j:
		metrics.UpdateQueueSize(len(q.jobs))
		return true
	case <-ctx.Done():
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false
	default:
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// EnqueueWait implements Queue.
func (q *InMemoryQueue) EnqueueWait(ctx context.Context, j Job) error {
	const backoff = 5 * time.Millisecond
	for {
		if q.IsClosed() {
			return ErrClosed
		}
		if q.Enqueue(ctx, j) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// Dequeue implements Queue.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Job {
	out := make(chan Job)
	go func() {
		defer close(out)
		for j := range q.jobs {
			select {
			case out <- j:
				metrics.UpdateQueueSize(len(q.jobs))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len implements Queue.
func (q *InMemoryQueue) Len(context.Context) int {
	size := len(q.jobs)
	metrics.UpdateQueueSize(size)
	return size
}

// Close stops accepting jobs. Jobs already queued are still delivered.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// IsClosed implements Queue.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
