package rating

import (
	"math"
	"time"

	"github.com/okian/tourney/internal/domain/model"
)

// MatchRecord is one side of a rated match, ready to be folded into a profile.
type MatchRecord struct {
	TournamentID string
	MatchID      string
	Format       string
	OpponentID   string
	Result       model.Result
	PlayerDeck   string
	OpponentDeck string
	Before       model.Rating
	After        model.Rating
	At           time.Time
}

// Record returns p with rec applied. p is not modified.
//
// The overall rating takes the new format-scoped values, so a player active
// in several formats sees the overall rating follow the latest match.
func Record(p model.Profile, rec MatchRecord) model.Profile {
	out := p.Clone()

	out.Overall.Mean = rec.After.Mean
	out.Overall.Uncertainty = rec.After.Uncertainty
	out.Overall.GamesPlayed = p.Stats.TotalGames + 1
	out.Overall.LastActiveAt = rec.At

	if rec.Format != "" {
		if out.Formats == nil {
			out.Formats = make(map[string]model.Rating, 1)
		}
		f := out.Formats[rec.Format]
		f.Mean = rec.After.Mean
		f.Uncertainty = rec.After.Uncertainty
		f.GamesPlayed++
		f.LastActiveAt = rec.At
		out.Formats[rec.Format] = f
	}

	s := &out.Stats
	s.TotalGames++
	switch rec.Result {
	case model.ResultWin:
		s.Wins++
		s.WinStreak++
		s.LossStreak = 0
		s.LongestWinStreak = max(s.LongestWinStreak, s.WinStreak)
	case model.ResultLoss:
		s.Losses++
		s.LossStreak++
		s.WinStreak = 0
		s.LongestLossStreak = max(s.LongestLossStreak, s.LossStreak)
	default:
		s.Draws++
		s.WinStreak = 0
		s.LossStreak = 0
	}

	if rec.PlayerDeck != "" {
		out.Archetypes = recordArchetype(out.Archetypes, rec)
	}

	out.History = append(out.History, model.HistoryEntry{
		TournamentID:      rec.TournamentID,
		MatchID:           rec.MatchID,
		OpponentID:        rec.OpponentID,
		Result:            rec.Result,
		PlayerDeck:        orUnknown(rec.PlayerDeck),
		OpponentDeck:      orUnknown(rec.OpponentDeck),
		RatingBefore:      rec.Before.Mean,
		RatingAfter:       rec.After.Mean,
		UncertaintyBefore: rec.Before.Uncertainty,
		UncertaintyAfter:  rec.After.Uncertainty,
		Date:              rec.At,
	})
	if n := len(out.History); n > model.MaxHistory {
		out.History = append([]model.HistoryEntry(nil), out.History[n-model.MaxHistory:]...)
	}

	out.Confidence = math.Min(model.MaxConfidence, out.Confidence+model.ConfidenceStep)
	return out
}

func recordArchetype(list []model.ArchetypeRating, rec MatchRecord) []model.ArchetypeRating {
	idx := -1
	for i := range list {
		if list[i].Archetype == rec.PlayerDeck {
			idx = i
			break
		}
	}
	if idx < 0 {
		list = append(list, model.ArchetypeRating{Archetype: rec.PlayerDeck})
		idx = len(list) - 1
	}

	a := &list[idx]
	a.Rating = rec.After.Mean
	a.Uncertainty = rec.After.Uncertainty
	a.GamesPlayed++
	switch rec.Result {
	case model.ResultWin:
		a.Wins++
	case model.ResultLoss:
		a.Losses++
	default:
		a.Draws++
	}
	return list
}

func orUnknown(deck string) string {
	if deck == "" {
		return model.UnknownArchetype
	}
	return deck
}
