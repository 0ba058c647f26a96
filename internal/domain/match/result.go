package match

import (
	"fmt"
	"math"
	"time"

	"github.com/okian/tourney/internal/domain/model"
	"github.com/okian/tourney/internal/domain/rating"
)

// Result is a reported match result. An empty Winner is a draw.
type Result struct {
	Winner      string
	Games       []model.Game
	Player1Deck string
	Player2Deck string
	ReportID    string
	At          time.Time
}

// Complete validates res against m and returns the completed match.
func Complete(m model.Match, res Result) (model.Match, error) {
	if m.IsBye() || m.Status != model.MatchPending {
		return m, fmt.Errorf("%w: match %s is %s", ErrMatchNotReportable, m.ID, m.Status)
	}
	if !validWinner(m, res.Winner) {
		return m, fmt.Errorf("%w: winner %q is not in match %s", rating.ErrInvalidOutcome, res.Winner, m.ID)
	}
	for i, g := range res.Games {
		if !validWinner(m, g.Winner) {
			return m, fmt.Errorf("%w: game %d winner %q is not in match %s", rating.ErrInvalidOutcome, i+1, g.Winner, m.ID)
		}
	}

	out := m.Clone()
	out.Status = model.MatchCompleted
	out.Winner = res.Winner
	out.Games = append([]model.Game(nil), res.Games...)
	out.ReportID = res.ReportID
	out.CompletedAt = res.At
	if res.Player1Deck != "" {
		out.Player1Deck = res.Player1Deck
	}
	if res.Player2Deck != "" {
		out.Player2Deck = res.Player2Deck
	}
	return out, nil
}

func validWinner(m model.Match, winner string) bool {
	return winner == "" || winner == m.Player1 || winner == m.Player2
}

// Enrich records the rating movement of a completed match together with the
// realized outcome and how surprising it was against the prediction.
func Enrich(m model.Match, before1, after1, before2, after2 model.Rating) model.Match {
	out := m.Clone()
	out.RatingChanges = &model.RatingChanges{
		Player1: change(before1, after1),
		Player2: change(before2, after2),
	}
	actual := m.Outcome().Score()
	out.Snapshot.ActualOutcome = &actual
	if p := m.Snapshot.PredictedWinProbability; p != nil {
		surprise := math.Abs(actual - *p)
		out.Snapshot.SurpriseFactor = &surprise
	}
	out.RatingsApplied = true
	return out
}

func change(before, after model.Rating) model.RatingChange {
	return model.RatingChange{
		RatingBefore:      before.Mean,
		RatingAfter:       after.Mean,
		UncertaintyBefore: before.Uncertainty,
		UncertaintyAfter:  after.Uncertainty,
		Change:            after.Mean - before.Mean,
	}
}
