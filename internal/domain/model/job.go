package model

import "time"

// RatingJob asks the rating workers to apply a completed match.
type RatingJob struct {
	MatchID    string    `json:"match_id"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	LastError  string    `json:"last_error,omitempty"`
}
