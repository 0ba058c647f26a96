// Package worker applies queued rating jobs with bounded retries.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/tourney/internal/adapters/mq/queue"
	"github.com/okian/tourney/pkg/logger"
	"github.com/okian/tourney/pkg/metrics"
)

// Default worker configuration.
const (
	DefaultMaxAttempts  = 3
	DefaultBackoff      = 50 * time.Millisecond
	poolShutdownTimeout = 30 * time.Second
)

// Job is what workers read off the queue.
type Job = queue.Job

// Processor applies one rating job.
type Processor interface {
	Process(ctx context.Context, job Job) error
}

// DeadLetterFunc receives a job that will not be retried again. job.LastError
// holds the final failure.
type DeadLetterFunc func(ctx context.Context, job Job)

// Source defines how workers receive jobs.
type Source interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Worker processes jobs until stopped.
type Worker interface {
	Run(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	source      Source
	processor   Processor
	name        string
	maxAttempts int
	backoff     time.Duration
	deadLetter  DeadLetterFunc

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker reading from source.
func NewInMemoryWorker(source Source, processor Processor, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		source:      source,
		processor:   processor,
		name:        "worker",
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultBackoff,
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
		logger:      logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run processes jobs until ctx is cancelled, Shutdown is called or the
// source closes.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.source.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.Handle(ctx, job); err != nil {
				w.logger.Error(ctx, "rating job failed",
					logger.String("match_id", job.MatchID),
					logger.Int("attempt", job.Attempt),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown stops the worker after its current job.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stop()
	return w.wait(ctx)
}

func (w *InMemoryWorker) stop() {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}
}

func (w *InMemoryWorker) wait(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("%w: %w", ErrShutdownTimeout, ctx.Err())
	}
}

// Handle runs job with retries. A job that still fails after its last
// attempt, or fails permanently, is handed to the dead-letter handler.
func (w *InMemoryWorker) Handle(ctx context.Context, job Job) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	delay := w.backoff
	for {
		job.Attempt++
		err := w.processor.Process(ctx, job)
		if err == nil {
			return nil
		}
		job.LastError = err.Error()
		metrics.RecordWorkerError()
		metrics.RecordRatingUpdateError()

		if errors.Is(err, ErrPermanent) || job.Attempt >= w.maxAttempts {
			w.dead(ctx, job)
			return fmt.Errorf("match %s after %d attempts: %w", job.MatchID, job.Attempt, err)
		}

		metrics.RecordRatingUpdateRetry()
		w.logger.Warn(ctx, "retrying rating job",
			logger.String("match_id", job.MatchID),
			logger.Int("attempt", job.Attempt),
			logger.Duration("backoff", delay),
			logger.Error(err),
		)
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			w.dead(ctx, job)
			return ctx.Err()
		}
		delay *= 2
	}
}

func (w *InMemoryWorker) dead(ctx context.Context, job Job) {
	metrics.RecordErrorByComponent("worker", "dead_letter")
	metrics.RecordErrorByType("rating_error", "high")
	if w.deadLetter != nil {
		w.deadLetter(context.WithoutCancel(ctx), job)
	}
}

// Pool manages a fixed set of workers sharing one source.
type Pool struct {
	workers []*InMemoryWorker
	source  Source
	active  atomic.Int64
	logger  logger.Logger
}

// NewPool creates workerCount workers. A count below 1 uses one worker per CPU.
func NewPool(workerCount int, source Source, processor Processor, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		source:  source,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewInMemoryWorker(source, processor, wopts...)
	}
	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start launches every worker.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		metrics.UpdateWorkerActiveCount(int(p.active.Add(1)))
		go func(w *InMemoryWorker) {
			defer func() { metrics.UpdateWorkerActiveCount(int(p.active.Add(-1))) }()
			w.Run(ctx)
		}(w)
	}
}

// Shutdown closes the source if it can be closed and lets the workers drain
// what is queued. Otherwise the workers stop after their current job.
func (p *Pool) Shutdown(ctx context.Context) error {
	drain := false
	if closer, ok := p.source.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		} else {
			drain = true
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var errs []error
	for _, w := range p.workers {
		if !drain {
			w.stop()
		}
		if err := w.wait(shutdownCtx); err != nil {
			w.stop()
			errs = append(errs, fmt.Errorf("%s: %w", w.name, err))
		}
	}
	return errors.Join(errs...)
}
