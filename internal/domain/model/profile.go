package model

import "time"

// Profile bookkeeping limits.
const (
	MaxHistory        = 100
	InitialConfidence = 0.5
	MaxConfidence     = 0.95
	ConfidenceStep    = 0.01
	UnknownArchetype  = "Unknown"
)

// ArchetypeRating tracks how a player performs with one deck archetype.
type ArchetypeRating struct {
	Archetype   string  `json:"archetype"`
	Rating      float64 `json:"rating"`
	Uncertainty float64 `json:"uncertainty"`
	GamesPlayed int     `json:"games_played"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	Draws       int     `json:"draws"`
}

// Stats are lifetime counters.
type Stats struct {
	TotalGames        int `json:"total_games"`
	Wins              int `json:"wins"`
	Losses            int `json:"losses"`
	Draws             int `json:"draws"`
	WinStreak         int `json:"win_streak"`
	LossStreak        int `json:"loss_streak"`
	LongestWinStreak  int `json:"longest_win_streak"`
	LongestLossStreak int `json:"longest_loss_streak"`
}

// HistoryEntry records one rated match from the player's side.
type HistoryEntry struct {
	TournamentID      string    `json:"tournament_id"`
	MatchID           string    `json:"match_id"`
	OpponentID        string    `json:"opponent_id"`
	Result            Result    `json:"result"`
	PlayerDeck        string    `json:"player_deck"`
	OpponentDeck      string    `json:"opponent_deck"`
	RatingBefore      float64   `json:"rating_before"`
	RatingAfter       float64   `json:"rating_after"`
	UncertaintyBefore float64   `json:"uncertainty_before"`
	UncertaintyAfter  float64   `json:"uncertainty_after"`
	Date              time.Time `json:"date"`
}

// Profile is everything persisted for one player.
type Profile struct {
	PlayerID   string            `json:"player_id"`
	Overall    Rating            `json:"overall"`
	Formats    map[string]Rating `json:"formats,omitempty"`
	Archetypes []ArchetypeRating `json:"archetypes,omitempty"`
	Stats      Stats             `json:"stats"`
	History    []HistoryEntry    `json:"history,omitempty"`
	Confidence float64           `json:"confidence"`
	// Version is bumped on every successful save and used for compare-and-swap.
	Version int64 `json:"version"`
}

// NewProfile returns the default profile for an unseen player.
func NewProfile(playerID string) Profile {
	return Profile{
		PlayerID:   playerID,
		Overall:    NewRating(),
		Confidence: InitialConfidence,
	}
}

// FormatRating returns the rating used for a match in format. Without a
// format-specific entry the overall rating is used, counted by total games.
func (p Profile) FormatRating(format string) Rating {
	if r, ok := p.Formats[format]; ok && format != "" {
		return r
	}
	r := p.Overall
	r.GamesPlayed = p.Stats.TotalGames
	return r
}

// PreferredArchetype is the archetype with the most games. Ties go to the
// later entry. Returns "" when the player has no archetype history.
func (p Profile) PreferredArchetype() string {
	best := -1
	for i, a := range p.Archetypes {
		if best < 0 || a.GamesPlayed >= p.Archetypes[best].GamesPlayed {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return p.Archetypes[best].Archetype
}

// Clone returns a deep copy.
func (p Profile) Clone() Profile {
	c := p
	if p.Formats != nil {
		c.Formats = make(map[string]Rating, len(p.Formats))
		for k, v := range p.Formats {
			c.Formats[k] = v
		}
	}
	c.Archetypes = append([]ArchetypeRating(nil), p.Archetypes...)
	c.History = append([]HistoryEntry(nil), p.History...)
	return c
}
