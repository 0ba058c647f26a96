package service

import "errors"

// Sentinel kinds returned by Service. Callers match them with errors.Is.
var (
	ErrTournamentNotFound   = errors.New("tournament not found")
	ErrMatchNotFound        = errors.New("match not found")
	ErrRegistrationClosed   = errors.New("registration closed")
	ErrTournamentFull       = errors.New("tournament full")
	ErrAlreadyRegistered    = errors.New("player already registered")
	ErrNotEnoughPlayers     = errors.New("not enough players")
	ErrTournamentNotStarted = errors.New("tournament not started")
	ErrRoundIncomplete      = errors.New("current round has unreported matches")
	ErrTournamentComplete   = errors.New("tournament complete")
	ErrInvalidSettings      = errors.New("invalid settings")
	ErrInvalidInput         = errors.New("invalid input")
)
