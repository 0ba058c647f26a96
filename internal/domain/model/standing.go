package model

// StandingRow is a derived, never persisted, standings line.
type StandingRow struct {
	PlayerID       string   `json:"player_id"`
	Points         int      `json:"points"`
	Wins           int      `json:"wins"`
	Losses         int      `json:"losses"`
	Draws          int      `json:"draws"`
	GameWins       int      `json:"game_wins"`
	GameLosses     int      `json:"game_losses"`
	Opponents      []string `json:"opponents"`
	OpponentWinPct float64  `json:"opponent_win_pct"`
	GameWinPct     float64  `json:"game_win_pct"`
	Rank           int      `json:"rank"`
}
