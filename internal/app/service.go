// Package service wires the pairing, rating and persistence layers into the
// operations exposed by the HTTP API.
package service

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/okian/tourney/internal/adapters/mq/queue"
	"github.com/okian/tourney/internal/adapters/mq/worker"
	"github.com/okian/tourney/internal/adapters/repository"
	"github.com/okian/tourney/internal/domain/dedupe"
	"github.com/okian/tourney/internal/domain/match"
	"github.com/okian/tourney/internal/domain/model"
	"github.com/okian/tourney/internal/domain/pairing"
	"github.com/okian/tourney/internal/domain/rating"
	"github.com/okian/tourney/pkg/logger"
	"github.com/okian/tourney/pkg/metrics"
)

// Defaults used when no option overrides them.
const (
	DefaultQueueSize      = 10_000
	DefaultDedupeSize     = 100_000
	DefaultPairingTimeout = 5 * time.Second

	// casAttempts bounds retries of a rating commit that lost a version race.
	casAttempts = 3
	// loadConcurrency bounds concurrent profile loads for a round.
	loadConcurrency = 8
)

// Service runs tournaments and keeps player ratings current.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	ladder    *repository.Ladder
	engine    *rating.Engine
	generator *pairing.Generator
	matchups  pairing.MatchupTable
	recorder  *match.Recorder
	deduper   dedupe.Deduper
	jobs      *queue.InMemoryQueue
	pool      *worker.Pool
	inline    *worker.InMemoryWorker
	locks     keyedMutex

	deadMu sync.Mutex
	dead   []model.RatingJob

	// Configuration
	workerCount    int
	queueSize      int
	dedupeSize     int
	pairingTimeout time.Duration
	maxAttempts    int
	retryBackoff   time.Duration
	now            func() time.Time

	// State
	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// New constructs a Service. Without WithStore it keeps everything in memory.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:    runtime.NumCPU(),
		queueSize:      DefaultQueueSize,
		dedupeSize:     DefaultDedupeSize,
		pairingTimeout: DefaultPairingTimeout,
		maxAttempts:    worker.DefaultMaxAttempts,
		retryBackoff:   worker.DefaultBackoff,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	if s.engine == nil {
		s.engine = rating.New()
	}
	if s.generator == nil {
		s.generator = pairing.NewGenerator()
	}
	if s.matchups == nil {
		s.matchups = pairing.DefaultMatchups()
	}
	s.ladder = repository.NewLadder()
	s.recorder = match.NewRecorder(match.WithClock(s.now))
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.inline = worker.NewInMemoryWorker(nil, s, s.workerOptions("inline")...)
	return s
}

func (s *Service) workerOptions(name string) []worker.Option {
	opts := []worker.Option{
		worker.WithLogger(s.logger),
		worker.WithMaxAttempts(s.maxAttempts),
		worker.WithBackoff(s.retryBackoff),
		worker.WithDeadLetter(s.deadLetter),
	}
	if name != "" {
		opts = append(opts, worker.WithName(name))
	}
	return opts
}

// Start seeds the leaderboard, starts the rating workers and re-enqueues
// completed matches whose ratings were never applied.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}

	s.logger.Info(ctx, "starting tournament service...")

	if err := s.ladder.Seed(ctx, s.store); err != nil {
		s.mu.Unlock()
		return err
	}

	s.jobs = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.jobs, s, s.workerOptions("")...)

	// Workers outlive the caller's context and stop in Stop.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool.Start(runCtx)
	s.started = true
	s.mu.Unlock()

	unrated, err := s.store.UnratedMatches(ctx)
	if err != nil {
		s.logger.Error(ctx, "failed to list unrated matches", logger.Error(err))
	}
	for _, m := range unrated {
		s.submit(ctx, model.RatingJob{MatchID: m.ID})
	}

	s.logger.Info(ctx, "tournament service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("rankedPlayers", s.ladder.Count()),
		logger.Int("resumedRatings", len(unrated)),
	)
	return nil
}

// Stop drains the rating queue and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping tournament service...")

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Error(ctx, "rating workers did not stop cleanly", logger.Error(err))
	}
	s.cancel()

	if err := s.store.Close(); err != nil {
		s.logger.Error(ctx, "error closing store", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "tournament service stopped")
}

func (s *Service) isStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// submit queues a rating job. When the queue is unavailable or full the job
// runs on the caller's goroutine.
func (s *Service) submit(ctx context.Context, job model.RatingJob) {
	s.mu.RLock()
	jobs, started := s.jobs, s.started
	s.mu.RUnlock()

	if started && jobs.Enqueue(ctx, job) {
		return
	}
	s.logger.Debug(ctx, "rating inline",
		logger.String("match_id", job.MatchID),
		logger.Bool("started", started),
	)
	if err := s.inline.Handle(context.WithoutCancel(ctx), job); err != nil {
		s.logger.Error(ctx, "inline rating failed", logger.String("match_id", job.MatchID), logger.Error(err))
	}
}

func (s *Service) deadLetter(ctx context.Context, job model.RatingJob) {
	s.deadMu.Lock()
	s.dead = append(s.dead, job)
	n := len(s.dead)
	s.deadMu.Unlock()

	metrics.UpdateRatingDeadLetters(n)
	s.logger.Error(ctx, "rating job dead-lettered",
		logger.String("match_id", job.MatchID),
		logger.Int("attempts", job.Attempt),
		logger.String("last_error", job.LastError),
	)
}

// DeadLetters returns the rating jobs that exhausted their attempts.
func (s *Service) DeadLetters() []model.RatingJob {
	s.deadMu.Lock()
	defer s.deadMu.Unlock()
	return append([]model.RatingJob(nil), s.dead...)
}

// RetryFailedRatings resubmits every dead-lettered job with a fresh attempt
// count and returns how many were resubmitted.
func (s *Service) RetryFailedRatings(ctx context.Context) int {
	s.deadMu.Lock()
	jobs := s.dead
	s.dead = nil
	s.deadMu.Unlock()
	metrics.UpdateRatingDeadLetters(0)

	for _, job := range jobs {
		job.Attempt = 0
		job.LastError = ""
		job.EnqueuedAt = time.Time{}
		s.submit(ctx, job)
	}
	if len(jobs) > 0 {
		s.logger.Info(ctx, "resubmitted dead-lettered rating jobs", logger.Int("count", len(jobs)))
	}
	return len(jobs)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":       s.started,
		"workerCount":   s.workerCount,
		"queueSize":     s.queueSize,
		"dedupeSize":    s.dedupeSize,
		"dedupeEntries": s.deduper.Size(),
		"rankedPlayers": s.ladder.Count(),
		"deadLetters":   len(s.DeadLetters()),
	}

	if s.started {
		queueLen := s.jobs.Len(ctx)
		stats["queueLength"] = queueLen
		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.workerCount)
	}

	return stats
}
