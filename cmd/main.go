package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/ulule/limiter/v3"

	"github.com/okian/tourney/internal/adapters/http/api"
	"github.com/okian/tourney/internal/adapters/repository"
	app "github.com/okian/tourney/internal/app"
	"github.com/okian/tourney/internal/config"
	"github.com/okian/tourney/internal/domain/pairing"
	"github.com/okian/tourney/internal/domain/rating"
	"github.com/okian/tourney/pkg/logger"
	"github.com/okian/tourney/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
	logFileMaxSizeMB          = 100
	logFileMaxBackups         = 5
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		// The logger may not be initialized yet.
		os.Stderr.WriteString("tourney: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load configuration (defaults -> .env -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(logOptions(cfg)...); err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	if err := config.Watch(ctx, func(level string) {
		if err := logger.SetLevelString(level); err != nil {
			log.Warn(ctx, "ignoring invalid log_level from config file", logger.String("log_level", level))
			return
		}
		log.Info(ctx, "log level changed", logger.String("log_level", level))
	}); err != nil {
		log.Warn(ctx, "config watch disabled", logger.Error(err))
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	svc := newService(cfg, store, log)
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	handler, err := newHandler(cfg, svc, log)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

func logOptions(cfg *config.Config) []logger.Option {
	opts := []logger.Option{logger.WithFormat(cfg.LogFormat)}
	if cfg.LogFile != "" {
		opts = append(opts, logger.WithFile(cfg.LogFile, logFileMaxSizeMB, logFileMaxBackups))
	}
	return opts
}

// openStore returns the configured store. SQL stores are migrated when
// auto_migrate is set and export connection pool metrics.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	driver := strings.ToLower(cfg.StoreDriver)
	if driver == config.DriverMemory {
		return repository.NewMemoryStore(), nil
	}

	db, err := repository.Open(ctx, driver, cfg.StoreDSN)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	if cfg.AutoMigrate {
		version, err := repository.Migrate(ctx, driver, db)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate %s store: %w", driver, err)
		}
		logger.Get().Info(ctx, "store migrated", logger.String("driver", driver), logger.Int("version", int(version)))
	}
	if err := metrics.Register(collectors.NewDBStatsCollector(db, "tourney")); err != nil {
		logger.Get().Warn(ctx, "db stats collector not registered", logger.Error(err))
	}
	return repository.NewSQLStore(db, driver), nil
}

func newService(cfg *config.Config, store repository.Store, log logger.Logger) *app.Service {
	engine := rating.New(
		rating.WithBeta(cfg.RatingBeta),
		rating.WithDrawProbability(cfg.RatingDrawProbability),
		rating.WithInactivityWindow(cfg.InactivityGraceDays),
		rating.WithMaxDecay(cfg.InactivityMaxPenalty),
	)
	generator := pairing.NewGenerator(
		pairing.WithExhaustiveLimit(cfg.PairingExhaustiveLimit),
		pairing.WithOptimalLimit(cfg.PairingOptimalLimit),
		pairing.WithStepBudget(cfg.PairingStepBudget),
	)
	return app.New(
		app.WithLogger(log.Named("service")),
		app.WithStore(store),
		app.WithEngine(engine),
		app.WithGenerator(generator),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithPairingTimeout(time.Duration(cfg.PairingTimeoutMS)*time.Millisecond),
		app.WithRatingRetry(cfg.RatingMaxAttempts, time.Duration(cfg.RatingRetryBackoffMS)*time.Millisecond),
	)
}

func newHandler(cfg *config.Config, svc *app.Service, log logger.Logger) (http.Handler, error) {
	rate, err := limiter.NewRateFromFormatted(cfg.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("rate_limit: %w", err)
	}
	server := api.NewServer(svc, svc,
		api.WithLogger(log.Named("http")),
		api.WithRateLimit(rate),
		api.WithCORSOrigins(cfg.CORSOrigins),
		api.WithMaxLeaderboardLimit(cfg.MaxLeaderboardLimit),
	)
	return server.Handler(), nil
}

// startSystemMetricsUpdater updates system metrics until ctx is done.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes service gauges until ctx is done.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics reads stats; GetStats itself refreshes the queue and
// worker gauges.
func updateServiceMetrics(svc *app.Service) {
	stats := svc.GetStats()
	if n, ok := stats["deadLetters"].(int); ok {
		metrics.UpdateRatingDeadLetters(n)
	}
	if n, ok := stats["rankedPlayers"].(int); ok {
		metrics.UpdatePlayersRated(n)
	}
}
