// Package worker drains a message queue with a fixed pool of goroutines.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/okian/gaitlog/internal/adapters/mq/queue"
	"github.com/okian/gaitlog/pkg/logger"
	"github.com/okian/gaitlog/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Handler processes one queued message.
type Handler interface {
	Handle(ctx context.Context, m queue.Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, m queue.Message) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, m queue.Message) error { return f(ctx, m) }

// Source is where workers receive messages from.
type Source interface {
	Dequeue(ctx context.Context) <-chan queue.Message
}

// Worker runs a handler over messages from a source.
type Worker struct {
	source  Source
	handler Handler
	name    string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewWorker creates a worker. Run starts it.
func NewWorker(source Source, handler Handler, opts ...Option) *Worker {
	w := &Worker{
		source:   source,
		handler:  handler,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run handles messages until ctx is cancelled, Shutdown is called or the
// source channel closes.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	messages := w.source.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case m, ok := <-messages:
			if !ok {
				return
			}
			w.process(ctx, m)
		}
	}
}

// Shutdown stops the worker after its current message.
func (w *Worker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run returns.
func (w *Worker) Done() <-chan struct{} { return w.done }

func (w *Worker) process(ctx context.Context, m queue.Message) {
	start := time.Now()
	err := w.handler.Handle(ctx, m)
	metrics.RecordWorkerLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordWorkerFailure()
		w.logger.Error(ctx, "handle message",
			logger.String("topic", m.Topic),
			logger.Duration("queued", start.Sub(m.Received)),
			logger.Error(err),
		)
	}
}

// Pool manages a set of workers.
type Pool struct {
	workers []*Worker
	sources []Source
	logger  logger.Logger
}

// NewPool creates n workers sharing one source. n < 1 means one per CPU.
func NewPool(n int, source Source, handler Handler, opts ...Option) *Pool {
	if n < 1 {
		n = runtime.NumCPU()
	}
	sources := make([]Source, n)
	for i := range sources {
		sources[i] = source
	}
	return newPool(sources, handler, opts)
}

// NewShardedPool creates one worker per source, so each source is drained
// in order.
func NewShardedPool(sources []Source, handler Handler, opts ...Option) *Pool {
	return newPool(sources, handler, opts)
}

func newPool(sources []Source, handler Handler, opts []Option) *Pool {
	p := &Pool{
		workers: make([]*Worker, len(sources)),
		sources: sources,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i, src := range sources {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewWorker(src, handler, wopts...)
	}
	return p
}

// Size is the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start runs every worker in its own goroutine.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the sources that can be closed and waits for the
// workers to drain what was already queued.
func (p *Pool) Shutdown(ctx context.Context) error {
	for _, src := range p.sources {
		if closer, ok := src.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				p.logger.Error(ctx, "close queue", logger.Error(err))
			}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("pool shutdown: %w", ctx.Err())
		}
	}
	return nil
}
