// Package standings derives the Swiss table from completed matches.
package standings

import (
	"sort"

	"github.com/okian/tourney/internal/domain/model"
)

// Match points.
const (
	WinPoints  = 3
	DrawPoints = 1
)

// opponentTieEpsilon is the smallest opponent win percentage gap that decides
// a points tie; anything closer falls through to game win percentage.
const opponentTieEpsilon = 0.01

// Calculate returns one row per participant in rank order. Only completed
// matches between two participants count. Rows that tie on every criterion
// keep participant order.
func Calculate(participants []string, matches []model.Match) []model.StandingRow {
	rows := make([]model.StandingRow, len(participants))
	index := make(map[string]int, len(participants))
	for i, id := range participants {
		rows[i] = model.StandingRow{PlayerID: id, Opponents: []string{}}
		index[id] = i
	}

	for _, m := range matches {
		if m.Status != model.MatchCompleted || m.IsBye() {
			continue
		}
		i1, ok1 := index[m.Player1]
		i2, ok2 := index[m.Player2]
		if !ok1 || !ok2 {
			continue
		}
		p1, p2 := &rows[i1], &rows[i2]
		p1.Opponents = append(p1.Opponents, m.Player2)
		p2.Opponents = append(p2.Opponents, m.Player1)

		for _, g := range m.Games {
			switch g.Winner {
			case "":
			case m.Player1:
				p1.GameWins++
				p2.GameLosses++
			default:
				p2.GameWins++
				p1.GameLosses++
			}
		}

		switch m.Outcome() {
		case model.OutcomeAWins:
			p1.Wins++
			p1.Points += WinPoints
			p2.Losses++
		case model.OutcomeBWins:
			p2.Wins++
			p2.Points += WinPoints
			p1.Losses++
		default:
			p1.Draws++
			p2.Draws++
			p1.Points += DrawPoints
			p2.Points += DrawPoints
		}
	}

	for i := range rows {
		r := &rows[i]
		if games := r.GameWins + r.GameLosses; games > 0 {
			r.GameWinPct = float64(r.GameWins) / float64(games) * 100
		}
		oppWins, oppPlayed := 0, 0
		for _, id := range r.Opponents {
			o := rows[index[id]]
			oppWins += o.Wins
			oppPlayed += o.Wins + o.Losses + o.Draws
		}
		if oppPlayed > 0 {
			r.OpponentWinPct = float64(oppWins) / float64(oppPlayed) * 100
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if d := a.OpponentWinPct - b.OpponentWinPct; d > opponentTieEpsilon || d < -opponentTieEpsilon {
			return d > 0
		}
		return a.GameWinPct > b.GameWinPct
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}
