package simulation

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/okian/tourney/internal/domain/model"
)

// Violation is one broken pairing rule found in a finished event.
type Violation struct {
	Round   int    `json:"round"`
	Message string `json:"message"`
}

// VerifyPairings checks the pairing rules over every match of an event:
//   - every participant plays exactly once per round
//   - no pair meets twice
//   - odd rounds carry exactly one bye
//   - nobody takes a second bye while a byeless player remains
func VerifyPairings(participants []string, matches []model.Match) []Violation {
	var out []Violation
	byRound := map[int][]model.Match{}
	for _, m := range matches {
		byRound[m.Round] = append(byRound[m.Round], m)
	}
	rounds := make([]int, 0, len(byRound))
	for r := range byRound {
		rounds = append(rounds, r)
	}
	sort.Ints(rounds)

	met := model.PairSet{}
	byes := map[string]int{}
	for _, r := range rounds {
		seen := map[string]int{}
		roundByes := 0
		for _, m := range byRound[r] {
			seen[m.Player1]++
			if m.IsBye() {
				roundByes++
				if byes[m.Player1] > 0 && hasByeless(participants, byes) {
					out = append(out, Violation{r, fmt.Sprintf("%s received a second bye", m.Player1)})
				}
				byes[m.Player1]++
				continue
			}
			seen[m.Player2]++
			if met.Has(m.Player1, m.Player2) {
				out = append(out, Violation{r, fmt.Sprintf("rematch %s vs %s", m.Player1, m.Player2)})
			}
			met.Add(m.Player1, m.Player2)
		}
		for _, p := range participants {
			if seen[p] != 1 {
				out = append(out, Violation{r, fmt.Sprintf("%s appears %d times", p, seen[p])})
			}
		}
		if want := len(participants) % 2; roundByes != want {
			out = append(out, Violation{r, fmt.Sprintf("%d byes, want %d", roundByes, want)})
		}
	}
	return out
}

func hasByeless(participants []string, byes map[string]int) bool {
	for _, p := range participants {
		if byes[p] == 0 {
			return true
		}
	}
	return false
}

// RankCorrelation is the Spearman correlation between two scorings of the
// same players. Ties share their average rank. Players missing from either
// map are ignored.
func RankCorrelation(x, y map[string]float64) float64 {
	ids := make([]string, 0, len(x))
	for id := range x {
		if _, ok := y[id]; ok {
			ids = append(ids, id)
		}
	}
	if len(ids) < 2 {
		return 0
	}
	sort.Strings(ids)
	return stat.Correlation(ranks(ids, x), ranks(ids, y), nil)
}

// ranks returns the fractional rank of each id's value.
func ranks(ids []string, v map[string]float64) []float64 {
	order := make([]int, len(ids))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return v[ids[order[a]]] < v[ids[order[b]]] })

	out := make([]float64, len(ids))
	for i := 0; i < len(order); {
		j := i
		for j+1 < len(order) && v[ids[order[j+1]]] == v[ids[order[i]]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[order[k]] = avg
		}
		i = j + 1
	}
	return out
}

// PredictionAccuracy is the share of decisive matches won by the player the
// pairing snapshot favoured. Matches without a prediction are skipped.
func PredictionAccuracy(matches []model.Match) (float64, int) {
	hits, total := 0, 0
	for _, m := range matches {
		p := m.Snapshot.PredictedWinProbability
		if m.Status != model.MatchCompleted || m.Winner == "" || p == nil || *p == 0.5 {
			continue
		}
		total++
		if (*p > 0.5) == (m.Winner == m.Player1) {
			hits++
		}
	}
	if total == 0 {
		return 0, 0
	}
	return float64(hits) / float64(total), total
}
