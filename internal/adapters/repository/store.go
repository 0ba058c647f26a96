// Package repository persists tournaments, matches and player profiles.
package repository

import (
	"context"

	"github.com/okian/tourney/internal/domain/model"
)

// RatingStore holds player profiles.
type RatingStore interface {
	// LoadProfile returns the stored profile, creating and persisting the
	// default one for an unseen player.
	LoadProfile(ctx context.Context, playerID string) (model.Profile, error)

	// SaveProfile stores p if p.Version matches the stored version and
	// returns it with the bumped version. A stale version yields
	// ErrVersionConflict.
	SaveProfile(ctx context.Context, p model.Profile) (model.Profile, error)

	ListProfiles(ctx context.Context) ([]model.Profile, error)
}

// TournamentStore holds tournaments.
type TournamentStore interface {
	CreateTournament(ctx context.Context, t model.Tournament) (model.Tournament, error)
	GetTournament(ctx context.Context, id string) (model.Tournament, error)

	// SaveTournament is a compare-and-swap on t.Version.
	SaveTournament(ctx context.Context, t model.Tournament) (model.Tournament, error)
}

// MatchStore holds matches.
type MatchStore interface {
	// SaveMatch inserts one match and returns its ID.
	SaveMatch(ctx context.Context, m model.Match) (string, error)
	GetMatch(ctx context.Context, id string) (model.Match, error)
	UpdateMatch(ctx context.Context, m model.Match) error

	// ListMatches returns a tournament's matches ordered by round and table.
	// Round 0 lists every round.
	ListMatches(ctx context.Context, tournamentID string, round int) ([]model.Match, error)

	// PreviousPairs returns the pairs already played in a tournament among
	// playerIDs. A nil playerIDs returns every pair.
	PreviousPairs(ctx context.Context, tournamentID string, playerIDs []string) (model.PairSet, error)

	// ByeCounts returns how many byes each player received in a tournament.
	ByeCounts(ctx context.Context, tournamentID string) (map[string]int, error)

	// UnratedMatches lists completed matches whose ratings were not applied.
	UnratedMatches(ctx context.Context) ([]model.Match, error)
}

// Store is the full persistence surface used by the service.
type Store interface {
	RatingStore
	TournamentStore
	MatchStore

	// CommitRound saves t (compare-and-swap) and inserts matches in one
	// transaction. A pair already played in the tournament yields
	// ErrDuplicatePair and nothing is written.
	CommitRound(ctx context.Context, t model.Tournament, matches []model.Match) (model.Tournament, error)

	// CommitRatings saves profiles (compare-and-swap each) and updates m in
	// one transaction.
	CommitRatings(ctx context.Context, profiles []model.Profile, m model.Match) ([]model.Profile, error)

	Close() error
}
