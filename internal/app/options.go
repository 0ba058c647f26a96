package service

import (
	"time"

	"github.com/okian/tourney/internal/adapters/repository"
	"github.com/okian/tourney/internal/domain/pairing"
	"github.com/okian/tourney/internal/domain/rating"
	"github.com/okian/tourney/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the persistence backend. The service closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithEngine sets the rating engine.
func WithEngine(e *rating.Engine) Option {
	return func(s *Service) {
		if e != nil {
			s.engine = e
		}
	}
}

// WithGenerator sets the pairing generator.
func WithGenerator(g *pairing.Generator) Option {
	return func(s *Service) {
		if g != nil {
			s.generator = g
		}
	}
}

// WithMatchups replaces the archetype matchup table.
func WithMatchups(t pairing.MatchupTable) Option {
	return func(s *Service) {
		if t != nil {
			s.matchups = t
		}
	}
}

// WithWorkerCount sets the number of rating workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the rating job queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many report IDs are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithPairingTimeout bounds a single round generation.
func WithPairingTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pairingTimeout = d
		}
	}
}

// WithRatingRetry sets attempts and initial backoff for rating jobs.
func WithRatingRetry(maxAttempts int, backoff time.Duration) Option {
	return func(s *Service) {
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
		if backoff > 0 {
			s.retryBackoff = backoff
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
