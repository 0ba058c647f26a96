// Package pairing builds Swiss rounds: it enumerates or searches the rematch
// free partitions of the active players, scores them, and selects one.
package pairing

import "github.com/okian/tourney/internal/domain/model"

// Player is the pairing view of a participant.
type Player struct {
	ID        string
	Rating    model.Rating
	Archetype string
}

// Metrics break down a pair's score.
type Metrics struct {
	SkillDifference     float64 `json:"skill_difference"`
	SkillScore          float64 `json:"skill_score"`
	UncertaintyScore    float64 `json:"uncertainty_score"`
	BalanceScore        float64 `json:"balance_score"`
	DiversityScore      float64 `json:"diversity_score"`
	WinProbability      float64 `json:"win_probability"`
	CombinedUncertainty float64 `json:"combined_uncertainty"`
	P1Archetype         string  `json:"p1_archetype"`
	P2Archetype         string  `json:"p2_archetype"`
}

// Candidate is one table of a proposed round. PlayerB is empty for a bye.
type Candidate struct {
	PlayerA string
	PlayerB string
	IsBye   bool
	Score   float64
	Metrics Metrics
}

// Set partitions the active players. A bye, if any, is the last entry.
type Set []Candidate

// ScoredSet is a Set with its aggregate score.
type ScoredSet struct {
	Pairings Set
	Score    float64
}

// Bye returns the player receiving the bye, or "".
func (s Set) Bye() string {
	for _, c := range s {
		if c.IsBye {
			return c.PlayerA
		}
	}
	return ""
}
