// Package worker drains the event queue with a fixed pool of goroutines.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/slarisk/internal/domain/model"
	"github.com/okian/slarisk/pkg/logger"
	"github.com/okian/slarisk/pkg/metrics"
)

const (
	defaultWorkerMultiplier = 4 // multiplier for runtime.NumCPU()
	poolShutdownTimeout     = 30 * time.Second
)

// Handler applies one event. Errors are logged and counted; the worker moves on.
type Handler interface {
	Handle(ctx context.Context, e model.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, e model.Event) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, e model.Event) error { //nolint:gocritic // hugeParam
	return f(ctx, e)
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Event
}

// Worker processes events from a queue.
type Worker interface {
	// Run starts the worker loop until ctx is canceled, Shutdown is called or the queue closes.
	Run(ctx context.Context)

	// Shutdown stops the worker without draining.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue   Queue
	handler Handler
	name    string

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	processed atomic.Int64
	logger    logger.Logger
}

// NewInMemoryWorker creates a worker.
func NewInMemoryWorker(queue Queue, handler Handler, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		handler:  handler,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run implements Worker.Run.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	events := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			w.process(ctx, e)
		}
	}
}

func (w *InMemoryWorker) stop() {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
}

// Shutdown implements Worker.Shutdown.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stop()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Processed returns the number of events this worker handled.
func (w *InMemoryWorker) Processed() int64 {
	return w.processed.Load()
}

func (w *InMemoryWorker) process(ctx context.Context, e model.Event) { //nolint:gocritic // hugeParam
	start := time.Now()
	defer func() {
		metrics.RecordWorkerLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	w.processed.Add(1)
	if err := w.handler.Handle(ctx, e); err != nil {
		metrics.RecordWorkerError()
		w.logger.Warn(ctx, "event rejected",
			logger.String("event_id", e.EventID),
			logger.String("task_id", e.TaskID),
			logger.Error(err),
		)
	}
}

// Pool manages multiple workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
	started atomic.Bool
}

// NewPool creates a pool. A non-positive count selects NumCPU*4 workers.
func NewPool(workerCount int, queue Queue, handler Handler, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  logger.NewNop(),
	}
	scratch := &InMemoryWorker{logger: p.logger}
	for _, opt := range opts {
		opt(scratch)
	}
	p.logger = scratch.logger.Named("worker-pool")

	for i := range p.workers {
		wopts := append(append([]Option(nil), opts...), WithName("worker-"+strconv.Itoa(i)))
		p.workers[i] = NewInMemoryWorker(queue, handler, wopts...)
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Processed returns the number of events handled by all workers.
func (p *Pool) Processed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Processed()
	}
	return n
}

// Shutdown closes the queue, lets the workers drain what is buffered and waits
// for them. Workers still busy when ctx or the pool timeout expires are stopped.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	if !p.started.Load() {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut int
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			w.stop()
			timedOut++
			p.logger.Warn(ctx, "worker drain timed out", logger.Int("worker_id", i))
		}
	}
	if timedOut > 0 {
		return fmt.Errorf("%d workers did not drain: %w", timedOut, shutdownCtx.Err())
	}
	return nil
}
