// Package types contains common types used across the application
package types

// Entry represents a leaderboard entry ordered by conservative rating.
type Entry struct {
	Rank         int     `json:"rank"`
	PlayerID     string  `json:"player_id"`
	Conservative float64 `json:"conservative_rating"`
	Mean         float64 `json:"mean"`
	Uncertainty  float64 `json:"uncertainty"`
}
