// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/okian/tourney/internal/adapters/http/swagger"
	service "github.com/okian/tourney/internal/app"
	"github.com/okian/tourney/internal/domain/match"
	"github.com/okian/tourney/internal/domain/model"
	"github.com/okian/tourney/internal/domain/types"
	"github.com/okian/tourney/pkg/logger"
)

// Defaults applied when no option overrides them.
const (
	DefaultMaxLeaderboardLimit = 100
	DefaultLeaderboardLimit    = 10
	DefaultRateLimit           = "600-M"
	maxBodyBytes               = 1 << 20
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	CreateTournament(ctx context.Context, in service.CreateTournamentInput) (model.Tournament, error)
	GetTournament(ctx context.Context, id string) (model.Tournament, error)
	JoinTournament(ctx context.Context, tournamentID, playerID string) (model.Tournament, error)
	StartTournament(ctx context.Context, tournamentID string) (model.Tournament, []model.Match, error)
	GenerateNextRound(ctx context.Context, tournamentID string) (model.Tournament, []model.Match, error)
	UpdateSettings(ctx context.Context, tournamentID string, patch model.SettingsPatch) (model.Tournament, error)
	ListMatches(ctx context.Context, tournamentID string, round int) ([]model.Match, error)
	Standings(ctx context.Context, tournamentID string) ([]model.StandingRow, error)
	Analytics(ctx context.Context, tournamentID string) (match.Analytics, error)

	ReportResult(ctx context.Context, matchID string, in service.ReportInput) (model.Match, error)
	RetryFailedRatings(ctx context.Context) int

	PlayerRating(ctx context.Context, playerID, format string) (service.PlayerRating, error)
	Rank(ctx context.Context, playerID string) (Entry, error)
	Leaderboard(ctx context.Context, n int) ([]Entry, error)
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Option configures a Server.
type Option func(*Server)

// WithMaxLeaderboardLimit caps GET /leaderboard?limit.
func WithMaxLeaderboardLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithRateLimit sets the per-client limit on write endpoints.
func WithRateLimit(rate limiter.Rate) Option {
	return func(s *Server) {
		if rate.Limit > 0 && rate.Period > 0 {
			s.rate = rate
		}
	}
}

// WithCORSOrigins sets the allowed CORS origins.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps    Dependencies
	router  *chi.Mux
	logger  logger.Logger
	rate    limiter.Rate
	origins []string

	writeLimit func(http.Handler) http.Handler

	maxLimit int

	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
}

// NewServer creates a new API server with all handlers and routes.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	rate, _ := limiter.NewRateFromFormatted(DefaultRateLimit)
	s := &Server{
		deps:     deps,
		router:   chi.NewRouter(),
		rate:     rate,
		origins:  []string{"*"},
		maxLimit: DefaultMaxLeaderboardLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("http")
	}

	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider, deps)
	s.leaderboardHandler = NewLeaderboardHandler(deps, s.maxLimit)
	s.rankHandler = NewRankHandler(deps)
	s.writeLimit = newRateLimitMiddleware(limiter.New(memory.NewStore(), s.rate))

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(MetricsMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Handle("/metrics", s.healthHandler.MetricsHandler())
	r.Get("/stats", s.statsHandler.HandleStats)
	swagger.Register(context.Background(), r)

	r.Get("/leaderboard", s.leaderboardHandler.HandleGetLeaderboard)
	r.Get("/players/{id}/rank", s.rankHandler.HandleGetRank)
	r.Get("/players/{id}/rating", s.rankHandler.HandleGetRating)

	r.Route("/tournaments", func(r chi.Router) {
		r.Get("/{id}", s.handleGetTournament)
		r.Get("/{id}/matches", s.handleListMatches)
		r.Get("/{id}/standings", s.handleStandings)
		r.Get("/{id}/analytics", s.handleAnalytics)

		r.Group(func(r chi.Router) {
			r.Use(s.writeLimit, jsonContentType)
			r.Post("/", s.handleCreateTournament)
			r.Post("/{id}/participants", s.handleJoinTournament)
			r.Post("/{id}/start", s.handleStartTournament)
			r.Post("/{id}/rounds", s.handleNextRound)
			r.Patch("/{id}/settings", s.handleUpdateSettings)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.writeLimit, jsonContentType)
		r.Post("/matches/{id}/result", s.handleReportResult)
		r.Post("/admin/ratings/retry", s.statsHandler.HandleRetryRatings)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, NewKind("api.route", ErrRouteNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Code: "method_not_allowed", Message: http.StatusText(http.StatusMethodNotAllowed)})
	})
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status code. Server errors are logged; their
// details are not echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logger.Get().Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.String("request_id", middleware.GetReqID(r.Context())),
			logger.Error(err),
		)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// decodeJSON reads a single JSON value into dst. Unknown fields are rejected.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	if dec.More() {
		return errors.New("decode body: trailing data")
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug(r.Context(), "http request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", ww.Status()),
			logger.Int("bytes", ww.BytesWritten()),
			logger.Duration("elapsed", time.Since(start)),
			logger.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
