package worker

import (
	"time"

	"github.com/okian/tourney/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name used in logs.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithMaxAttempts sets how many times a job is tried before it is dead-lettered.
func WithMaxAttempts(n int) Option {
	return func(w *InMemoryWorker) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

// WithBackoff sets the delay before the first retry. Later retries double it.
func WithBackoff(d time.Duration) Option {
	return func(w *InMemoryWorker) {
		if d >= 0 {
			w.backoff = d
		}
	}
}

// WithDeadLetter sets the handler for jobs that exhausted their attempts.
func WithDeadLetter(fn DeadLetterFunc) Option {
	return func(w *InMemoryWorker) {
		if fn != nil {
			w.deadLetter = fn
		}
	}
}
