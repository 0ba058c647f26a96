// Package model contains domain models passed between layers.
//
// Values in this package are plain data. Functions that derive a new value
// (rating updates, match enrichment) live in the domain packages and return
// copies instead of mutating their inputs.
package model

import "time"

// Rating bounds and defaults.
const (
	DefaultMean        = 1500.0
	DefaultUncertainty = 350.0
	MinUncertainty     = 1.0
	MaxUncertainty     = 350.0
)

// Rating is a Gaussian skill estimate.
type Rating struct {
	Mean         float64   `json:"mean"`
	Uncertainty  float64   `json:"uncertainty"`
	GamesPlayed  int       `json:"games_played"`
	LastActiveAt time.Time `json:"last_active_at,omitempty"`
}

// NewRating returns the rating assigned to an unseen player.
func NewRating() Rating {
	return Rating{Mean: DefaultMean, Uncertainty: DefaultUncertainty}
}

// Conservative is mean minus three standard deviations.
func (r Rating) Conservative() float64 {
	return r.Mean - 3*r.Uncertainty
}

// ClampUncertainty bounds sigma to [MinUncertainty, MaxUncertainty].
func ClampUncertainty(sigma float64) float64 {
	switch {
	case sigma < MinUncertainty:
		return MinUncertainty
	case sigma > MaxUncertainty:
		return MaxUncertainty
	default:
		return sigma
	}
}
