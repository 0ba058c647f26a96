package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/tourney/internal/adapters/mq/worker"
	"github.com/okian/tourney/internal/adapters/repository"
	"github.com/okian/tourney/internal/domain/match"
	"github.com/okian/tourney/internal/domain/model"
	"github.com/okian/tourney/internal/domain/rating"
	"github.com/okian/tourney/internal/domain/types"
	"github.com/okian/tourney/pkg/logger"
	"github.com/okian/tourney/pkg/metrics"
)

// ReportInput is a reported match result. An empty Winner is a draw.
type ReportInput struct {
	Winner      string       `json:"winner" validate:"max=128"`
	Games       []model.Game `json:"games" validate:"max=9"`
	Player1Deck string       `json:"player1_deck" validate:"max=64"`
	Player2Deck string       `json:"player2_deck" validate:"max=64"`
	// ReportID makes a report idempotent; a repeat is acknowledged and ignored.
	ReportID string `json:"report_id" validate:"max=128"`
}

// PlayerRating is a player's profile together with the rating that would be
// used for pairing right now.
type PlayerRating struct {
	Profile            model.Profile `json:"profile"`
	Format             string        `json:"format,omitempty"`
	Rating             model.Rating  `json:"rating"`
	Conservative       float64       `json:"conservative_rating"`
	PreferredArchetype string        `json:"preferred_archetype,omitempty"`
}

func playerKey(id string) string { return "p:" + id }

func (s *Service) getMatch(ctx context.Context, id string) (model.Match, error) {
	m, err := s.store.GetMatch(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Match{}, fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	}
	return m, err
}

// ReportResult completes a pending match and schedules its rating update.
func (s *Service) ReportResult(ctx context.Context, matchID string, in ReportInput) (model.Match, error) {
	if err := validateInput(in); err != nil {
		return model.Match{}, err
	}
	if in.ReportID != "" && s.deduper.SeenAndRecord(ctx, in.ReportID) {
		metrics.RecordResultDuplicate()
		s.logger.Debug(ctx, "duplicate result report",
			logger.String("report_id", in.ReportID),
			logger.String("match_id", matchID),
		)
		return s.getMatch(ctx, matchID)
	}

	m, err := s.complete(ctx, matchID, in)
	if err != nil {
		if in.ReportID != "" {
			s.deduper.Unrecord(ctx, in.ReportID)
		}
		return model.Match{}, err
	}
	metrics.RecordResultReported()
	s.logger.Info(ctx, "result reported",
		logger.String("match_id", m.ID),
		logger.String("tournament_id", m.TournamentID),
		logger.String("winner", m.Winner),
	)

	s.submit(ctx, model.RatingJob{MatchID: m.ID})
	return m, nil
}

func (s *Service) complete(ctx context.Context, matchID string, in ReportInput) (model.Match, error) {
	m, err := s.getMatch(ctx, matchID)
	if err != nil {
		return model.Match{}, err
	}
	defer s.locks.Lock(tournamentKey(m.TournamentID))()

	// Re-read under the lock; a concurrent report may have completed it.
	if m, err = s.getMatch(ctx, matchID); err != nil {
		return model.Match{}, err
	}
	done, err := match.Complete(m, match.Result{
		Winner:      in.Winner,
		Games:       in.Games,
		Player1Deck: in.Player1Deck,
		Player2Deck: in.Player2Deck,
		ReportID:    in.ReportID,
		At:          s.now(),
	})
	if err != nil {
		return model.Match{}, err
	}
	if err := s.store.UpdateMatch(ctx, done); err != nil {
		return model.Match{}, err
	}
	return done, nil
}

// Process applies the rating update of one completed match. It implements
// worker.Processor. Replaying a job for an already rated match is a no-op.
func (s *Service) Process(ctx context.Context, job model.RatingJob) error {
	m, err := s.getMatch(ctx, job.MatchID)
	if errors.Is(err, ErrMatchNotFound) {
		return worker.Permanent(err)
	}
	if err != nil {
		return err
	}
	if m.RatingsApplied {
		return nil
	}
	if m.Status != model.MatchCompleted || m.IsBye() {
		return worker.Permanent(fmt.Errorf("%w: match %s is %s", match.ErrMatchNotReportable, m.ID, m.Status))
	}
	t, err := s.tournament(ctx, m.TournamentID)
	if err != nil {
		return err
	}

	defer s.locks.LockAll(playerKey(m.Player1), playerKey(m.Player2))()

	for attempt := 1; ; attempt++ {
		err := s.applyRatings(ctx, t.Format, m.ID)
		if err == nil || !errors.Is(err, repository.ErrVersionConflict) || attempt >= casAttempts {
			return err
		}
		metrics.RecordRatingUpdateRetry()
		s.logger.Debug(ctx, "rating commit lost a version race",
			logger.String("match_id", m.ID),
			logger.Int("attempt", attempt),
		)
	}
}

// applyRatings reads both profiles, computes the update and commits it with
// the enriched match.
func (s *Service) applyRatings(ctx context.Context, format, matchID string) error {
	m, err := s.getMatch(ctx, matchID)
	if err != nil {
		return err
	}
	if m.RatingsApplied {
		return nil
	}
	p1, err := s.store.LoadProfile(ctx, m.Player1)
	if err != nil {
		return err
	}
	p2, err := s.store.LoadProfile(ctx, m.Player2)
	if err != nil {
		return err
	}

	now := s.now()
	before1 := s.engine.ApplyInactivityDecay(p1.FormatRating(format), now)
	before2 := s.engine.ApplyInactivityDecay(p2.FormatRating(format), now)
	outcome := m.Outcome()
	after1, after2, err := s.engine.UpdateAfterMatch(before1, before2, outcome)
	if err != nil {
		return worker.Permanent(fmt.Errorf("rate match %s: %w", m.ID, err))
	}

	at := m.CompletedAt
	if at.IsZero() {
		at = now
	}
	next1 := rating.Record(p1, rating.MatchRecord{
		TournamentID: m.TournamentID, MatchID: m.ID, Format: format,
		OpponentID: m.Player2, Result: outcome.ResultFor(true),
		PlayerDeck: m.Player1Deck, OpponentDeck: m.Player2Deck,
		Before: before1, After: after1, At: at,
	})
	next2 := rating.Record(p2, rating.MatchRecord{
		TournamentID: m.TournamentID, MatchID: m.ID, Format: format,
		OpponentID: m.Player1, Result: outcome.ResultFor(false),
		PlayerDeck: m.Player2Deck, OpponentDeck: m.Player1Deck,
		Before: before2, After: after2, At: at,
	})
	enriched := match.Enrich(m, before1, after1, before2, after2)

	saved, err := s.store.CommitRatings(ctx, []model.Profile{next1, next2}, enriched)
	if err != nil {
		return err
	}
	for _, p := range saved {
		s.ladder.Set(p.PlayerID, p.Overall)
	}

	metrics.RecordRatingUpdate()
	if sf := enriched.Snapshot.SurpriseFactor; sf != nil {
		metrics.RecordSurpriseFactor(*sf)
	}
	s.logger.Debug(ctx, "ratings applied",
		logger.String("match_id", m.ID),
		logger.String("outcome", outcome.String()),
		logger.Float64("player1_change", enriched.RatingChanges.Player1.Change),
		logger.Float64("player2_change", enriched.RatingChanges.Player2.Change),
	)
	return nil
}

// LoadRating returns the rating used for playerID in format, with inactivity
// decay applied. An unseen player gets a persisted default profile.
func (s *Service) LoadRating(ctx context.Context, playerID, format string) (model.Rating, error) {
	p, err := s.store.LoadProfile(ctx, playerID)
	if err != nil {
		return model.Rating{}, err
	}
	return s.engine.ApplyInactivityDecay(p.FormatRating(format), s.now()), nil
}

// PlayerRating returns the profile view of playerID.
func (s *Service) PlayerRating(ctx context.Context, playerID, format string) (PlayerRating, error) {
	if playerID == "" {
		return PlayerRating{}, fmt.Errorf("%w: player id is required", ErrInvalidInput)
	}
	p, err := s.store.LoadProfile(ctx, playerID)
	if err != nil {
		return PlayerRating{}, err
	}
	r := s.engine.ApplyInactivityDecay(p.FormatRating(format), s.now())
	return PlayerRating{
		Profile:            p,
		Format:             format,
		Rating:             r,
		Conservative:       r.Conservative(),
		PreferredArchetype: p.PreferredArchetype(),
	}, nil
}

// Leaderboard returns the top n players by conservative rating.
func (s *Service) Leaderboard(ctx context.Context, n int) ([]types.Entry, error) {
	return s.ladder.TopN(ctx, n)
}

// Rank returns a player's leaderboard position.
func (s *Service) Rank(ctx context.Context, playerID string) (types.Entry, error) {
	return s.ladder.Rank(ctx, playerID)
}
