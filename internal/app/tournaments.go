package service

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/okian/tourney/internal/adapters/repository"
	"github.com/okian/tourney/internal/domain/match"
	"github.com/okian/tourney/internal/domain/model"
	"github.com/okian/tourney/internal/domain/pairing"
	"github.com/okian/tourney/internal/domain/standings"
	"github.com/okian/tourney/pkg/logger"
	"github.com/okian/tourney/pkg/metrics"
)

// CreateTournamentInput describes a new tournament.
type CreateTournamentInput struct {
	Name       string               `json:"name" validate:"required,max=200"`
	Format     string               `json:"format" validate:"max=64"`
	MaxPlayers int                  `json:"max_players" validate:"gte=0,lte=4096"`
	Rounds     int                  `json:"rounds" validate:"gte=0,lte=64"`
	Settings   *model.SettingsPatch `json:"settings,omitempty"`
}

func tournamentKey(id string) string { return "t:" + id }

func (s *Service) tournament(ctx context.Context, id string) (model.Tournament, error) {
	t, err := s.store.GetTournament(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Tournament{}, fmt.Errorf("%w: %s", ErrTournamentNotFound, id)
	}
	return t, err
}

// CreateTournament registers an upcoming tournament.
func (s *Service) CreateTournament(ctx context.Context, in CreateTournamentInput) (model.Tournament, error) {
	if err := validateInput(in); err != nil {
		return model.Tournament{}, err
	}
	settings := model.DefaultSettings()
	if in.Settings != nil {
		settings = settings.Merge(*in.Settings)
	}
	if err := settings.Validate(); err != nil {
		return model.Tournament{}, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	if in.MaxPlayers == 0 {
		in.MaxPlayers = model.DefaultMaxPlayers
	}

	t, err := s.store.CreateTournament(ctx, model.Tournament{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Format:       in.Format,
		Status:       model.TournamentUpcoming,
		Participants: []string{},
		MaxPlayers:   in.MaxPlayers,
		Rounds:       in.Rounds,
		Settings:     settings,
		CreatedAt:    s.now(),
	})
	if err != nil {
		return model.Tournament{}, err
	}
	s.logger.Info(ctx, "tournament created",
		logger.String("tournament_id", t.ID),
		logger.String("format", t.Format),
		logger.Int("maxPlayers", t.MaxPlayers),
	)
	return t, nil
}

// GetTournament returns a tournament by ID.
func (s *Service) GetTournament(ctx context.Context, id string) (model.Tournament, error) {
	return s.tournament(ctx, id)
}

// JoinTournament registers playerID. A player seen for the first time gets
// a default profile.
func (s *Service) JoinTournament(ctx context.Context, tournamentID, playerID string) (model.Tournament, error) {
	if playerID == "" || len(playerID) > 128 {
		return model.Tournament{}, fmt.Errorf("%w: player_id must be 1 to 128 characters", ErrInvalidInput)
	}
	defer s.locks.Lock(tournamentKey(tournamentID))()

	t, err := s.tournament(ctx, tournamentID)
	if err != nil {
		return model.Tournament{}, err
	}
	switch {
	case t.Status != model.TournamentUpcoming:
		return model.Tournament{}, fmt.Errorf("%w: tournament is %s", ErrRegistrationClosed, t.Status)
	case t.HasParticipant(playerID):
		return model.Tournament{}, fmt.Errorf("%w: %s", ErrAlreadyRegistered, playerID)
	case t.IsFull():
		return model.Tournament{}, fmt.Errorf("%w: %d players", ErrTournamentFull, t.MaxPlayers)
	}
	p, err := s.store.LoadProfile(ctx, playerID)
	if err != nil {
		return model.Tournament{}, err
	}
	s.ladder.Set(p.PlayerID, p.Overall)

	t.Participants = append(t.Participants, playerID)
	return s.store.SaveTournament(ctx, t)
}

// roundsFor is ceil(log2 n), at least 1.
func roundsFor(n int) int {
	return max(1, bits.Len(uint(n-1)))
}

// StartTournament closes registration and generates round 1. When pairing
// fails nothing is saved and the tournament stays upcoming.
func (s *Service) StartTournament(ctx context.Context, tournamentID string) (model.Tournament, []model.Match, error) {
	defer s.locks.Lock(tournamentKey(tournamentID))()

	t, err := s.tournament(ctx, tournamentID)
	if err != nil {
		return model.Tournament{}, nil, err
	}
	if t.Status != model.TournamentUpcoming {
		return model.Tournament{}, nil, fmt.Errorf("%w: tournament is %s", ErrRegistrationClosed, t.Status)
	}
	if !t.CanStart() {
		return model.Tournament{}, nil, fmt.Errorf("%w: %d registered", ErrNotEnoughPlayers, len(t.Participants))
	}
	if t.Rounds == 0 {
		t.Rounds = roundsFor(len(t.Participants))
	}
	t.Status = model.TournamentOngoing
	t.CurrentRound = 1
	return s.generateRound(ctx, t)
}

// GenerateNextRound pairs the next round once every match of the current
// round is reported. After the last round the tournament is completed and
// ErrTournamentComplete is returned.
func (s *Service) GenerateNextRound(ctx context.Context, tournamentID string) (model.Tournament, []model.Match, error) {
	defer s.locks.Lock(tournamentKey(tournamentID))()

	t, err := s.tournament(ctx, tournamentID)
	if err != nil {
		return model.Tournament{}, nil, err
	}
	switch t.Status {
	case model.TournamentUpcoming:
		return model.Tournament{}, nil, ErrTournamentNotStarted
	case model.TournamentCompleted:
		return model.Tournament{}, nil, ErrTournamentComplete
	}

	current, err := s.store.ListMatches(ctx, t.ID, t.CurrentRound)
	if err != nil {
		return model.Tournament{}, nil, err
	}
	pending := lo.CountBy(current, func(m model.Match) bool { return m.Status == model.MatchPending })
	if pending > 0 {
		return model.Tournament{}, nil, fmt.Errorf("%w: %d in round %d", ErrRoundIncomplete, pending, t.CurrentRound)
	}

	if t.CurrentRound >= t.Rounds {
		t.Status = model.TournamentCompleted
		if _, err := s.store.SaveTournament(ctx, t); err != nil {
			return model.Tournament{}, nil, err
		}
		s.logger.Info(ctx, "tournament completed",
			logger.String("tournament_id", t.ID),
			logger.Int("rounds", t.Rounds),
		)
		return model.Tournament{}, nil, ErrTournamentComplete
	}

	t.CurrentRound++
	return s.generateRound(ctx, t)
}

// generateRound pairs t.CurrentRound and commits it together with t.
func (s *Service) generateRound(ctx context.Context, t model.Tournament) (model.Tournament, []model.Match, error) {
	start := time.Now()

	players, err := s.pairingPlayers(ctx, t)
	if err != nil {
		return model.Tournament{}, nil, err
	}
	history, err := s.store.PreviousPairs(ctx, t.ID, t.Participants)
	if err != nil {
		return model.Tournament{}, nil, err
	}
	byes, err := s.store.ByeCounts(ctx, t.ID)
	if err != nil {
		return model.Tournament{}, nil, err
	}

	pctx, cancel := context.WithTimeout(ctx, s.pairingTimeout)
	defer cancel()
	scorer := pairing.NewScorer(s.engine, s.matchups, t.Settings)
	plan, err := s.generator.Plan(pctx, scorer, players, history, byes)
	if err != nil {
		metrics.RecordPairingFailure(failureReason(err))
		s.logger.Warn(ctx, "round generation failed",
			logger.String("tournament_id", t.ID),
			logger.Int("round", t.CurrentRound),
			logger.String("strategy", plan.Strategy),
			logger.Int("steps", plan.Steps),
			logger.Error(err),
		)
		return model.Tournament{}, nil, fmt.Errorf("round %d of %s: %w", t.CurrentRound, t.ID, err)
	}
	elapsed := time.Since(start)
	metrics.RecordPairingPlan(plan.Strategy, plan.Evaluated, plan.Steps, float64(elapsed.Milliseconds()), plan.Best.Score)

	matches := s.recorder.Record(t.ID, t.CurrentRound, plan.Best, t.Settings.Algorithm)
	saved, err := s.store.CommitRound(ctx, t, matches)
	if err != nil {
		return model.Tournament{}, nil, err
	}
	metrics.RecordRoundGenerated()

	s.logger.Info(ctx, "round generated",
		logger.String("tournament_id", t.ID),
		logger.Int("round", t.CurrentRound),
		logger.Int("players", len(players)),
		logger.String("strategy", plan.Strategy),
		logger.Int("evaluated", plan.Evaluated),
		logger.Float64("quality", plan.Best.Score),
		logger.Duration("elapsed", elapsed),
	)
	return saved, matches, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, pairing.ErrNoValidPairing):
		return "no_valid_pairing"
	case errors.Is(err, pairing.ErrSearchBudgetExceeded):
		return "budget_exceeded"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}

// pairingPlayers loads every participant's format rating, with inactivity
// decay applied, and preferred archetype.
func (s *Service) pairingPlayers(ctx context.Context, t model.Tournament) ([]pairing.Player, error) {
	now := s.now()
	players := make([]pairing.Player, len(t.Participants))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i, id := range t.Participants {
		g.Go(func() error {
			p, err := s.store.LoadProfile(gctx, id)
			if err != nil {
				return fmt.Errorf("load %s: %w", id, err)
			}
			players[i] = pairing.Player{
				ID:        id,
				Rating:    s.engine.ApplyInactivityDecay(p.FormatRating(t.Format), now),
				Archetype: p.PreferredArchetype(),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return players, nil
}

// UpdateSettings merges patch over the tournament's settings.
func (s *Service) UpdateSettings(ctx context.Context, tournamentID string, patch model.SettingsPatch) (model.Tournament, error) {
	defer s.locks.Lock(tournamentKey(tournamentID))()

	t, err := s.tournament(ctx, tournamentID)
	if err != nil {
		return model.Tournament{}, err
	}
	if t.Status == model.TournamentCompleted {
		return model.Tournament{}, ErrTournamentComplete
	}
	merged := t.Settings.Merge(patch)
	if err := merged.Validate(); err != nil {
		return model.Tournament{}, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	t.Settings = merged
	return s.store.SaveTournament(ctx, t)
}

// ListMatches returns a tournament's matches; round 0 lists all rounds.
func (s *Service) ListMatches(ctx context.Context, tournamentID string, round int) ([]model.Match, error) {
	if round < 0 {
		return nil, fmt.Errorf("%w: round must not be negative", ErrInvalidInput)
	}
	if _, err := s.tournament(ctx, tournamentID); err != nil {
		return nil, err
	}
	return s.store.ListMatches(ctx, tournamentID, round)
}

// Standings ranks the participants over completed matches.
func (s *Service) Standings(ctx context.Context, tournamentID string) ([]model.StandingRow, error) {
	t, err := s.tournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	matches, err := s.store.ListMatches(ctx, t.ID, 0)
	if err != nil {
		return nil, err
	}
	return standings.Calculate(t.Participants, matches), nil
}

// Analytics summarizes how well the tournament's pairings predicted results.
func (s *Service) Analytics(ctx context.Context, tournamentID string) (match.Analytics, error) {
	if _, err := s.tournament(ctx, tournamentID); err != nil {
		return match.Analytics{}, err
	}
	matches, err := s.store.ListMatches(ctx, tournamentID, 0)
	if err != nil {
		return match.Analytics{}, err
	}
	return match.Analyze(matches), nil
}
