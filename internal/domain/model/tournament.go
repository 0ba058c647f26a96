package model

import (
	"slices"
	"time"
)

// TournamentStatus is the lifecycle state of a tournament.
type TournamentStatus string

const (
	TournamentUpcoming  TournamentStatus = "upcoming"
	TournamentOngoing   TournamentStatus = "ongoing"
	TournamentCompleted TournamentStatus = "completed"
)

// DefaultMaxPlayers applies when a tournament is created without a cap.
const DefaultMaxPlayers = 64

// Tournament is a Swiss event.
type Tournament struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Format       string           `json:"format"`
	Status       TournamentStatus `json:"status"`
	Participants []string         `json:"participants"`
	MaxPlayers   int              `json:"max_players"`
	Rounds       int              `json:"rounds"`
	CurrentRound int              `json:"current_round"`
	Settings     Settings         `json:"settings"`
	CreatedAt    time.Time        `json:"created_at"`
	// Version is bumped on every successful save and used for compare-and-swap.
	Version int64 `json:"version"`
}

// HasParticipant reports whether playerID is registered.
func (t Tournament) HasParticipant(playerID string) bool {
	return slices.Contains(t.Participants, playerID)
}

// IsFull reports whether registration reached MaxPlayers.
func (t Tournament) IsFull() bool {
	return t.MaxPlayers > 0 && len(t.Participants) >= t.MaxPlayers
}

// CanStart reports whether the tournament can move to ongoing.
func (t Tournament) CanStart() bool {
	return t.Status == TournamentUpcoming && len(t.Participants) >= 2
}

// Clone returns a deep copy.
func (t Tournament) Clone() Tournament {
	c := t
	c.Participants = append([]string(nil), t.Participants...)
	return c
}
