package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrVersionConflict = errors.New("version conflict")
	ErrDuplicatePair   = errors.New("pair already played in tournament")
	ErrInvalidLimit    = errors.New("invalid leaderboard limit")
	ErrUnknownDriver   = errors.New("unknown store driver")
)
