package model

import "time"

// MatchStatus is the lifecycle state of a match.
type MatchStatus string

const (
	MatchPending   MatchStatus = "pending"
	MatchCompleted MatchStatus = "completed"
	MatchBye       MatchStatus = "bye"
)

// Game is one game inside a match. Winner is a player ID or "" for a drawn game.
type Game struct {
	Winner string `json:"winner"`
}

// Snapshot captures how the pairing looked when it was made, plus the
// realized outcome once known. Pointer fields are absent for byes.
type Snapshot struct {
	QualityScore            float64  `json:"quality_score"`
	PredictedWinProbability *float64 `json:"predicted_win_probability,omitempty"`
	SkillDifference         *float64 `json:"skill_difference,omitempty"`
	DeckMatchupFactor       *float64 `json:"deck_matchup_factor,omitempty"`
	Algorithm               string   `json:"algorithm"`
	ActualOutcome           *float64 `json:"actual_outcome,omitempty"`
	SurpriseFactor          *float64 `json:"surprise_factor,omitempty"`
	Player1Archetype        string   `json:"player1_archetype,omitempty"`
	Player2Archetype        string   `json:"player2_archetype,omitempty"`
}

// RatingChange is the before/after view of one player's rating.
type RatingChange struct {
	RatingBefore      float64 `json:"rating_before"`
	RatingAfter       float64 `json:"rating_after"`
	UncertaintyBefore float64 `json:"uncertainty_before"`
	UncertaintyAfter  float64 `json:"uncertainty_after"`
	Change            float64 `json:"change"`
}

// RatingChanges holds both players' changes for a rated match.
type RatingChanges struct {
	Player1 RatingChange `json:"player1"`
	Player2 RatingChange `json:"player2"`
}

// Match is one table of one round. Player2 is empty for a bye.
type Match struct {
	ID            string         `json:"id"`
	TournamentID  string         `json:"tournament_id"`
	Round         int            `json:"round"`
	Table         int            `json:"table"`
	Player1       string         `json:"player1"`
	Player2       string         `json:"player2,omitempty"`
	Player1Deck   string         `json:"player1_deck,omitempty"`
	Player2Deck   string         `json:"player2_deck,omitempty"`
	Status        MatchStatus    `json:"status"`
	Winner        string         `json:"winner,omitempty"`
	Games         []Game         `json:"games,omitempty"`
	Snapshot      Snapshot       `json:"snapshot"`
	RatingChanges *RatingChanges `json:"rating_changes,omitempty"`
	// RatingsApplied makes the rating step idempotent.
	RatingsApplied bool      `json:"ratings_applied"`
	ReportID       string    `json:"report_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	CompletedAt    time.Time `json:"completed_at,omitempty"`
}

// IsBye reports whether the match is a bye.
func (m Match) IsBye() bool { return m.Player2 == "" }

// PairKey is the unordered pair key, or "" for a bye.
func (m Match) PairKey() string {
	if m.IsBye() {
		return ""
	}
	return PairKey(m.Player1, m.Player2)
}

// Outcome maps the recorded winner to an outcome for player1.
func (m Match) Outcome() Outcome {
	switch m.Winner {
	case "":
		return OutcomeDraw
	case m.Player1:
		return OutcomeAWins
	default:
		return OutcomeBWins
	}
}

// Involves reports whether id plays in the match.
func (m Match) Involves(id string) bool {
	return m.Player1 == id || (m.Player2 != "" && m.Player2 == id)
}

// Clone returns a deep copy.
func (m Match) Clone() Match {
	c := m
	c.Games = append([]Game(nil), m.Games...)
	if m.RatingChanges != nil {
		rc := *m.RatingChanges
		c.RatingChanges = &rc
	}
	c.Snapshot.PredictedWinProbability = clonePtr(m.Snapshot.PredictedWinProbability)
	c.Snapshot.SkillDifference = clonePtr(m.Snapshot.SkillDifference)
	c.Snapshot.DeckMatchupFactor = clonePtr(m.Snapshot.DeckMatchupFactor)
	c.Snapshot.ActualOutcome = clonePtr(m.Snapshot.ActualOutcome)
	c.Snapshot.SurpriseFactor = clonePtr(m.Snapshot.SurpriseFactor)
	return c
}

func clonePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
