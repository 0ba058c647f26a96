// Package match turns a selected pairing into match records, applies
// reported results, enriches completed matches with rating changes and
// summarizes a tournament's matches.
package match

import (
	"time"

	"github.com/google/uuid"

	"github.com/okian/tourney/internal/domain/model"
	"github.com/okian/tourney/internal/domain/pairing"
)

// Recorder builds match records for a round.
type Recorder struct {
	newID func() string
	now   func() time.Time
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithIDGenerator overrides the match ID source.
func WithIDGenerator(fn func() string) RecorderOption {
	return func(r *Recorder) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRecorder returns a Recorder that issues UUIDs.
func NewRecorder(opts ...RecorderOption) *Recorder {
	r := &Recorder{newID: uuid.NewString, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record returns one match per pairing, numbered from table 1 in set order.
func (r *Recorder) Record(tournamentID string, round int, set pairing.ScoredSet, algorithm string) []model.Match {
	if algorithm == "" {
		algorithm = model.AlgorithmBayesian
	}
	now := r.now()
	out := make([]model.Match, 0, len(set.Pairings))
	for i, c := range set.Pairings {
		m := model.Match{
			ID:           r.newID(),
			TournamentID: tournamentID,
			Round:        round,
			Table:        i + 1,
			Player1:      c.PlayerA,
			Status:       model.MatchPending,
			CreatedAt:    now,
			Snapshot: model.Snapshot{
				QualityScore: c.Score,
				Algorithm:    algorithm,
			},
		}
		if c.IsBye {
			m.Status = model.MatchBye
		} else {
			m.Player2 = c.PlayerB
			m.Snapshot.PredictedWinProbability = ptr(c.Metrics.WinProbability)
			m.Snapshot.SkillDifference = ptr(c.Metrics.SkillDifference)
			m.Snapshot.DeckMatchupFactor = ptr(c.Metrics.DiversityScore)
			m.Snapshot.Player1Archetype = c.Metrics.P1Archetype
			m.Snapshot.Player2Archetype = c.Metrics.P2Archetype
		}
		out = append(out, m)
	}
	return out
}

func ptr(v float64) *float64 { return &v }
