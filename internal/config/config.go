// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Keys are flat and underscored so env vars map 1:1 (TOURNEY_QUEUE_SIZE -> queue_size).
// - New(ctx) builds a Config with defaults; Load layers files and env on top.
// - External errors are wrapped with this package's sentinel kinds.
package config

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/ulule/limiter/v3"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is "text" or "json".
	LogFormat string `koanf:"log_format"`
	// LogFile, when set, sends logs to a rotated file instead of stdout.
	LogFile string `koanf:"log_file"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	StoreDriver string `koanf:"store_driver"`
	StoreDSN    string `koanf:"store_dsn"`
	AutoMigrate bool   `koanf:"auto_migrate"`

	// QueueSize bounds the in-memory rating job queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of rating workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize bounds the remembered result report IDs.
	DedupeSize int `koanf:"dedupe_size"`

	RatingBeta            float64 `koanf:"rating_beta"`
	RatingDrawProbability float64 `koanf:"rating_draw_probability"`
	InactivityGraceDays   int     `koanf:"inactivity_grace_days"`
	InactivityMaxPenalty  float64 `koanf:"inactivity_max_penalty"`

	// PairingExhaustiveLimit is the largest field enumerated in full.
	PairingExhaustiveLimit int `koanf:"pairing_exhaustive_limit"`
	// PairingOptimalLimit is the largest field solved exactly above the
	// exhaustive limit; 0 sends every larger field to the greedy search.
	PairingOptimalLimit int `koanf:"pairing_optimal_limit"`
	// PairingStepBudget caps recursion steps of a single pairing search.
	PairingStepBudget int `koanf:"pairing_step_budget"`
	PairingTimeoutMS  int `koanf:"pairing_timeout_ms"`

	RatingMaxAttempts    int `koanf:"rating_max_attempts"`
	RatingRetryBackoffMS int `koanf:"rating_retry_backoff_ms"`

	// RateLimit uses the "<limit>-<period>" format, e.g. "300-M".
	RateLimit   string   `koanf:"rate_limit"`
	CORSOrigins []string `koanf:"cors_origins"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`
}

// New creates a Config populated with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":9080",
		StoreDriver:            DriverMemory,
		AutoMigrate:            true,
		QueueSize:              10_000,
		WorkerCount:            runtime.NumCPU(),
		DedupeSize:             100_000,
		RatingBeta:             200,
		RatingDrawProbability:  0.1,
		InactivityGraceDays:    30,
		InactivityMaxPenalty:   100,
		PairingExhaustiveLimit: 12,
		PairingOptimalLimit:    20,
		PairingStepBudget:      2_000_000,
		PairingTimeoutMS:       5_000,
		RatingMaxAttempts:      3,
		RatingRetryBackoffMS:   50,
		RateLimit:              "600-M",
		CORSOrigins:            []string{"*"},
		MaxLeaderboardLimit:    100,
	}
}

// Validate checks ranges and cross-field rules.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.DedupeSize <= 0:
		return fmt.Errorf("%w: dedupe_size must be positive", ErrInvalidConfig)
	case c.RatingBeta <= 0:
		return fmt.Errorf("%w: rating_beta must be positive", ErrInvalidConfig)
	case c.RatingDrawProbability < 0 || c.RatingDrawProbability >= 1:
		return fmt.Errorf("%w: rating_draw_probability must be in [0,1)", ErrInvalidConfig)
	case c.InactivityGraceDays < 0 || c.InactivityMaxPenalty < 0:
		return fmt.Errorf("%w: inactivity settings must not be negative", ErrInvalidConfig)
	case c.PairingExhaustiveLimit < 2:
		return fmt.Errorf("%w: pairing_exhaustive_limit must be at least 2", ErrInvalidConfig)
	case c.PairingOptimalLimit < 0 || c.PairingOptimalLimit > 24:
		return fmt.Errorf("%w: pairing_optimal_limit must be in [0,24]", ErrInvalidConfig)
	case c.PairingStepBudget <= 0 || c.PairingTimeoutMS <= 0:
		return fmt.Errorf("%w: pairing budget and timeout must be positive", ErrInvalidConfig)
	case c.RatingMaxAttempts <= 0:
		return fmt.Errorf("%w: rating_max_attempts must be positive", ErrInvalidConfig)
	case c.MaxLeaderboardLimit <= 0:
		return fmt.Errorf("%w: max_leaderboard_limit must be positive", ErrInvalidConfig)
	}

	switch strings.ToLower(c.StoreDriver) {
	case DriverMemory:
	case DriverPostgres, DriverSQLite:
		if c.StoreDSN == "" {
			return fmt.Errorf("%w: store_dsn is required for %s", ErrInvalidConfig, c.StoreDriver)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}

	if _, err := limiter.NewRateFromFormatted(c.RateLimit); err != nil {
		return fmt.Errorf("%w: rate_limit: %v", ErrInvalidConfig, err)
	}
	return nil
}
