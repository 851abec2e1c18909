// Package worker runs rebuild jobs off the queue.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/adapters/mq/queue"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/pkg/logger"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Processor handles one job.
type Processor interface {
	Process(ctx context.Context, j queue.Job) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, j queue.Job) error

// Process implements Processor.
func (f ProcessorFunc) Process(ctx context.Context, j queue.Job) error { return f(ctx, j) }

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker consumes jobs until the queue closes, ctx ends or Shutdown is
// called.
type Worker struct {
	queue     Queue
	processor Processor
	name      string
	logger    logger.Logger

	shutdown chan struct{}
	done     chan struct{}

	processed atomic.Int64
	failed    atomic.Int64
}

// New creates a worker.
func New(q Queue, p Processor, opts ...Option) *Worker {
	w := &Worker{
		queue:     q,
		processor: p,
		name:      "worker",
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Named(w.name)
	}
	return w
}

// Run processes jobs until stopped. It returns once the worker is done.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	metrics.AddActiveWorkers(1)
	defer metrics.AddActiveWorkers(-1)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			w.process(ctx, j)
		}
	}
}

func (w *Worker) process(ctx context.Context, j queue.Job) {
	start := time.Now()
	err := w.processor.Process(ctx, j)
	if err != nil {
		w.failed.Add(1)
		metrics.RecordRebuildJob("failed")
		metrics.RecordErrorByComponent("worker", j.Kind)
		w.logger.Error(ctx, "job failed",
			logger.String("job_id", j.ID),
			logger.String("kind", j.Kind),
			logger.Int64("user_id", j.UserID),
			logger.Error(err))
		return
	}
	w.processed.Add(1)
	metrics.RecordRebuildJob("ok")
	w.logger.Debug(ctx, "job done",
		logger.String("job_id", j.ID),
		logger.Int64("user_id", j.UserID),
		logger.Duration("elapsed", time.Since(start)))
}

// Shutdown stops the worker after its current job.
func (w *Worker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Stats is a snapshot of job outcomes.
type Stats struct {
	Workers   int   `json:"workers"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

// Pool runs several workers on one queue.
type Pool struct {
	workers []*Worker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a pool. A count below one means one worker per CPU.
func NewPool(count int, q Queue, p Processor, opts ...Option) *Pool {
	if count < 1 {
		count = runtime.NumCPU()
	}
	pool := &Pool{workers: make([]*Worker, count), queue: q}
	for i := range pool.workers {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		pool.workers[i] = New(q, p, wopts...)
	}
	pool.logger = pool.workers[0].logger
	return pool
}

// Start runs every worker in its own goroutine.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Wait blocks until every worker has returned, which happens once the queue
// is closed and drained, or ctx ends.
func (p *Pool) Wait(ctx context.Context) error {
	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Stats sums the outcomes of every worker.
func (p *Pool) Stats() Stats {
	s := Stats{Workers: len(p.workers)}
	for _, w := range p.workers {
		s.Processed += w.processed.Load()
		s.Failed += w.failed.Load()
	}
	return s
}

// Shutdown closes the queue, if it can be closed, and stops every worker.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()
	for i, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	return nil
}
