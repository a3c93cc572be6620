// Package worker runs lookup sessions against the job queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/okian/shipaudit/internal/domain/model"
	"github.com/okian/shipaudit/pkg/logger"
	"github.com/okian/shipaudit/pkg/metrics"
)

// Processor handles one job. A returned error is fatal for the whole pool,
// except ErrRetire; record-level failures must be handled inside Process.
type Processor interface {
	Process(ctx context.Context, job model.Job) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, job model.Job) error

// Process implements Processor.
func (f ProcessorFunc) Process(ctx context.Context, job model.Job) error { return f(ctx, job) }

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Job
}

// InMemoryWorker feeds jobs from a queue to one processor, one at a time.
type InMemoryWorker struct {
	queue     Queue
	processor Processor
	name      string
	logger    logger.Logger
	processed atomic.Int64
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, processor Processor, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     queue,
		processor: processor,
		name:      "worker",
		logger:    logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run processes jobs until the queue is drained, ctx ends, the processor
// fails or it asks to retire. Cancellation is checked between jobs, never
// mid-job.
func (w *InMemoryWorker) Run(ctx context.Context) error {
	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case job, ok := <-jobs:
			if !ok {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			if err := w.processor.Process(ctx, job); err != nil {
				if errors.Is(err, ErrRetire) {
					w.processed.Add(1)
					w.logger.Warn(ctx, "worker retired",
						logger.String("worker", w.name),
						logger.Int("seq", job.Seq),
						logger.Error(err),
					)
					return nil
				}
				w.logger.Error(ctx, "processor failed, stopping",
					logger.String("worker", w.name),
					logger.Int("seq", job.Seq),
					logger.Error(err),
				)
				return fmt.Errorf("%s: job %d: %w", w.name, job.Seq, err)
			}
			w.processed.Add(1)
		}
	}
}

// Processed returns the number of jobs this worker completed.
func (w *InMemoryWorker) Processed() int64 { return w.processed.Load() }

// Pool runs one worker per processor.
type Pool struct {
	workers []*InMemoryWorker
	logger  logger.Logger
}

// NewPool creates a pool with one worker per processor, all reading q.
func NewPool(q Queue, processors []Processor, opts ...PoolOption) *Pool {
	p := &Pool{logger: logger.Get().Named("worker-pool")}
	for _, opt := range opts {
		opt(p)
	}
	p.workers = make([]*InMemoryWorker, len(processors))
	for i, proc := range processors {
		p.workers[i] = NewInMemoryWorker(q, proc,
			WithName("session-"+strconv.Itoa(i)),
			WithLogger(p.logger),
		)
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Run blocks until every worker returns. The first worker error cancels the
// others and is returned. A retired worker leaves its jobs to the rest; if
// all retire, Run returns nil with jobs possibly still queued.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	var active atomic.Int64
	for _, w := range p.workers {
		g.Go(func() error {
			metrics.UpdateActiveSessions(int(active.Add(1)))
			defer func() { metrics.UpdateActiveSessions(int(active.Add(-1))) }()
			return w.Run(gctx)
		})
	}
	err := g.Wait()

	var total int64
	for _, w := range p.workers {
		total += w.Processed()
	}
	p.logger.Debug(ctx, "worker pool finished",
		logger.Int("workers", len(p.workers)),
		logger.Int64("processed", total),
	)
	return err
}
