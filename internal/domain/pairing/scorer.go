package pairing

import (
	"math"

	"github.com/okian/tourney/internal/domain/model"
)

// ByeScore is the fixed score of a bye entry.
const ByeScore = 0.5

// Fixed component weights and fallbacks for zero-valued settings.
const (
	uncertaintyWeight = 0.3
	balanceWeight     = 0.4

	fallbackSkillVariance   = 0.3
	fallbackDiversityWeight = 0.4
	fallbackMinSkillDiff    = 100.0
	fallbackMaxSkillDiff    = 500.0

	tooFarSkillScore    = 0.1
	veryCloseSkillScore = 0.8
	minUncertaintyScore = 0.1
	sameArchetypeScore  = 0.7
	unknownMatchupValue = 0.5
	uncertaintyScale    = 2 * model.MaxUncertainty
)

// Predictor returns the probability that a beats b.
type Predictor interface {
	WinProbability(a, b model.Rating) float64
}

// Scorer rates how good a pairing is for one tournament's settings.
type Scorer struct {
	predictor Predictor
	matchups  MatchupTable

	skillWeight     float64
	diversityWeight float64
	minDiff         float64
	maxDiff         float64
	totalWeight     float64
}

// NewScorer builds a Scorer. A nil matchup table uses DefaultMatchups.
func NewScorer(p Predictor, matchups MatchupTable, s model.Settings) *Scorer {
	if matchups == nil {
		matchups = DefaultMatchups()
	}
	variance := orDefault(s.SkillVariance, fallbackSkillVariance)
	sc := &Scorer{
		predictor:       p,
		matchups:        matchups,
		skillWeight:     1 - variance,
		diversityWeight: orDefault(s.DeckDiversityWeight, fallbackDiversityWeight),
		minDiff:         orDefault(s.MinSkillDifference, fallbackMinSkillDiff),
		maxDiff:         orDefault(s.MaxSkillDifference, fallbackMaxSkillDiff),
	}
	sc.totalWeight = sc.skillWeight + sc.diversityWeight + uncertaintyWeight + balanceWeight
	return sc
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

// ScorePair scores a against b. The result is in [0, 1].
func (s *Scorer) ScorePair(a, b Player) Candidate {
	diff := math.Abs(a.Rating.Mean - b.Rating.Mean)

	var skill float64
	switch {
	case diff > s.maxDiff:
		skill = tooFarSkillScore
	case diff < s.minDiff:
		skill = veryCloseSkillScore
	default:
		skill = 1 - 0.5*diff/s.maxDiff
	}

	combined := a.Rating.Uncertainty + b.Rating.Uncertainty
	uncertainty := math.Max(minUncertaintyScore, 1-combined/uncertaintyScale)

	winProb := s.predictor.WinProbability(a.Rating, b.Rating)
	balance := 1 - math.Abs(0.5-winProb)

	diversity := s.diversity(a.Archetype, b.Archetype)

	score := (skill*s.skillWeight +
		diversity*s.diversityWeight +
		uncertainty*uncertaintyWeight +
		balance*balanceWeight) / s.totalWeight

	return Candidate{
		PlayerA: a.ID,
		PlayerB: b.ID,
		Score:   score,
		Metrics: Metrics{
			SkillDifference:     diff,
			SkillScore:          skill,
			UncertaintyScore:    uncertainty,
			BalanceScore:        balance,
			DiversityScore:      diversity,
			WinProbability:      winProb,
			CombinedUncertainty: combined,
			P1Archetype:         a.Archetype,
			P2Archetype:         b.Archetype,
		},
	}
}

func (s *Scorer) diversity(a, b string) float64 {
	switch {
	case a == "" || b == "":
		return 1
	case a == b:
		return sameArchetypeScore
	}
	v, ok := s.matchups.Lookup(a, b)
	if !ok {
		v = unknownMatchupValue
	}
	return 1 - math.Abs(0.5-v)
}

// Bye returns the bye candidate for id.
func Bye(id string) Candidate {
	return Candidate{PlayerA: id, IsBye: true, Score: ByeScore}
}

// ScoreSet scores every pair in set using players and returns the set with
// its mean score. The bye counts as ByeScore in the mean.
func (s *Scorer) ScoreSet(set Set, players map[string]Player) ScoredSet {
	out := make(Set, len(set))
	total := 0.0
	for i, c := range set {
		if c.IsBye {
			out[i] = Bye(c.PlayerA)
		} else {
			out[i] = s.ScorePair(players[c.PlayerA], players[c.PlayerB])
		}
		total += out[i].Score
	}
	mean := 0.0
	if len(out) > 0 {
		mean = total / float64(len(out))
	}
	return ScoredSet{Pairings: out, Score: mean}
}
