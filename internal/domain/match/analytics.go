package match

import (
	"sort"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"

	"github.com/okian/tourney/internal/domain/model"
)

// RoundAnalytics summarizes the completed matches of one round.
type RoundAnalytics struct {
	Round                  int     `json:"round"`
	Matches                int     `json:"matches"`
	AverageQualityScore    float64 `json:"average_quality_score"`
	SurpriseFactorAverage  float64 `json:"surprise_factor_average"`
	SkillDifferenceAverage float64 `json:"skill_difference_average"`
	PredictionAccuracy     float64 `json:"prediction_accuracy"`
}

// Analytics summarizes how well pairing predictions held up.
// Quality, surprise and accuracy are percentages.
type Analytics struct {
	TotalMatches              int              `json:"total_matches"`
	AverageQualityScore       float64          `json:"average_quality_score"`
	SurpriseFactorAverage     float64          `json:"surprise_factor_average"`
	SkillDifferenceAverage    float64          `json:"skill_difference_average"`
	PredictionAccuracy        float64          `json:"prediction_accuracy"`
	DeckArchetypeDistribution map[string]int   `json:"deck_archetype_distribution"`
	RoundAnalytics            []RoundAnalytics `json:"round_analytics"`
}

// Analyze reports over completed matches; pending matches and byes are
// skipped. Missing snapshot values count as zero in the averages.
func Analyze(matches []model.Match) Analytics {
	done := lo.Filter(matches, func(m model.Match, _ int) bool {
		return m.Status == model.MatchCompleted && !m.IsBye()
	})

	out := Analytics{
		TotalMatches:              len(done),
		DeckArchetypeDistribution: map[string]int{},
		RoundAnalytics:            []RoundAnalytics{},
	}
	if len(done) == 0 {
		return out
	}

	s := summarize(done)
	out.AverageQualityScore = s.quality
	out.SurpriseFactorAverage = s.surprise
	out.SkillDifferenceAverage = s.skillDiff
	out.PredictionAccuracy = s.accuracy

	decks := lo.FlatMap(done, func(m model.Match, _ int) []string {
		return lo.Compact([]string{m.Player1Deck, m.Player2Deck})
	})
	out.DeckArchetypeDistribution = lo.CountValues(decks)

	for round, ms := range lo.GroupBy(done, func(m model.Match) int { return m.Round }) {
		rs := summarize(ms)
		out.RoundAnalytics = append(out.RoundAnalytics, RoundAnalytics{
			Round:                  round,
			Matches:                len(ms),
			AverageQualityScore:    rs.quality,
			SurpriseFactorAverage:  rs.surprise,
			SkillDifferenceAverage: rs.skillDiff,
			PredictionAccuracy:     rs.accuracy,
		})
	}
	sort.Slice(out.RoundAnalytics, func(i, j int) bool {
		return out.RoundAnalytics[i].Round < out.RoundAnalytics[j].Round
	})
	return out
}

type summary struct {
	quality, surprise, skillDiff, accuracy float64
}

func summarize(ms []model.Match) summary {
	quality := lo.Map(ms, func(m model.Match, _ int) float64 { return m.Snapshot.QualityScore })
	surprise := lo.Map(ms, func(m model.Match, _ int) float64 { return deref(m.Snapshot.SurpriseFactor) })
	skill := lo.Map(ms, func(m model.Match, _ int) float64 { return deref(m.Snapshot.SkillDifference) })
	correct := lo.Map(ms, func(m model.Match, _ int) float64 {
		p, a := m.Snapshot.PredictedWinProbability, m.Snapshot.ActualOutcome
		if p == nil || a == nil {
			return 0
		}
		if (*p > 0.5) == (*a > 0.5) {
			return 1
		}
		return 0
	})
	return summary{
		quality:   stat.Mean(quality, nil) * 100,
		surprise:  stat.Mean(surprise, nil) * 100,
		skillDiff: stat.Mean(skill, nil),
		accuracy:  stat.Mean(correct, nil) * 100,
	}
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
