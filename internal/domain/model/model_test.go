package model_test

import (
	"errors"
	"testing"

	model "github.com/okian/tourney/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestRating(t *testing.T) {
	convey.Convey("Given ratings", t, func() {
		convey.Convey("The conservative rating is mean minus three sigma", func() {
			for _, r := range []model.Rating{
				model.NewRating(),
				{Mean: 1800, Uncertainty: 60},
				{Mean: 900, Uncertainty: 1},
			} {
				convey.So(r.Conservative(), convey.ShouldEqual, r.Mean-3*r.Uncertainty)
			}
		})

		convey.Convey("Uncertainty is clamped to [1, 350]", func() {
			convey.So(model.ClampUncertainty(0.2), convey.ShouldEqual, 1)
			convey.So(model.ClampUncertainty(900), convey.ShouldEqual, 350)
			convey.So(model.ClampUncertainty(42), convey.ShouldEqual, 42)
		})
	})
}

func TestProfile(t *testing.T) {
	convey.Convey("Given a profile without format entries", t, func() {
		p := model.NewProfile("alice")
		p.Stats.TotalGames = 7

		convey.Convey("FormatRating falls back to overall counted by total games", func() {
			r := p.FormatRating("standard")
			convey.So(r.Mean, convey.ShouldEqual, model.DefaultMean)
			convey.So(r.GamesPlayed, convey.ShouldEqual, 7)
		})

		convey.Convey("When a format entry exists it is used", func() {
			p.Formats = map[string]model.Rating{"standard": {Mean: 1600, Uncertainty: 200, GamesPlayed: 3}}
			convey.So(p.FormatRating("standard").Mean, convey.ShouldEqual, 1600)
			convey.So(p.FormatRating("modern").Mean, convey.ShouldEqual, model.DefaultMean)
		})

		convey.Convey("Clone does not share maps or slices", func() {
			p.Formats = map[string]model.Rating{"standard": model.NewRating()}
			p.History = []model.HistoryEntry{{MatchID: "m1"}}
			c := p.Clone()
			c.Formats["standard"] = model.Rating{Mean: 1}
			c.History[0].MatchID = "changed"
			convey.So(p.Formats["standard"].Mean, convey.ShouldEqual, model.DefaultMean)
			convey.So(p.History[0].MatchID, convey.ShouldEqual, "m1")
		})
	})

	convey.Convey("Given archetype history", t, func() {
		p := model.NewProfile("bob")

		convey.Convey("No history means no preference", func() {
			convey.So(p.PreferredArchetype(), convey.ShouldEqual, "")
		})

		convey.Convey("The most played archetype wins and ties go to the later entry", func() {
			p.Archetypes = []model.ArchetypeRating{
				{Archetype: "Aggro", GamesPlayed: 4},
				{Archetype: "Control", GamesPlayed: 2},
				{Archetype: "Combo", GamesPlayed: 4},
			}
			convey.So(p.PreferredArchetype(), convey.ShouldEqual, "Combo")
		})
	})
}

func TestPairs(t *testing.T) {
	convey.Convey("Given a pair set", t, func() {
		s := model.NewPairSet([2]string{"b", "a"})

		convey.Convey("Keys are order independent", func() {
			convey.So(model.PairKey("a", "b"), convey.ShouldEqual, model.PairKey("b", "a"))
			convey.So(s.Has("a", "b"), convey.ShouldBeTrue)
			convey.So(s.Has("b", "a"), convey.ShouldBeTrue)
			convey.So(s.Has("a", "c"), convey.ShouldBeFalse)
		})

		convey.Convey("IDs containing the separator do not collide", func() {
			split := model.NewPairSet([2]string{"a|b", "c"})
			convey.So(model.PairKey("a|b", "c"), convey.ShouldNotEqual, model.PairKey("a", "b|c"))
			convey.So(split.Has("a", "b|c"), convey.ShouldBeFalse)
			convey.So(split.Has("c", "a|b"), convey.ShouldBeTrue)
		})
	})
}

func TestOutcome(t *testing.T) {
	convey.Convey("Given outcomes", t, func() {
		convey.So(model.OutcomeAWins.Score(), convey.ShouldEqual, 1)
		convey.So(model.OutcomeBWins.Score(), convey.ShouldEqual, 0)
		convey.So(model.OutcomeDraw.Score(), convey.ShouldEqual, 0.5)
		convey.So(model.Outcome(0).Valid(), convey.ShouldBeFalse)
		convey.So(model.Outcome(4).Valid(), convey.ShouldBeFalse)
		convey.So(model.OutcomeBWins.ResultFor(true), convey.ShouldEqual, model.ResultLoss)
		convey.So(model.OutcomeBWins.ResultFor(false), convey.ShouldEqual, model.ResultWin)
		convey.So(model.OutcomeDraw.ResultFor(false), convey.ShouldEqual, model.ResultDraw)
	})

	convey.Convey("Given a completed match", t, func() {
		m := model.Match{Player1: "a", Player2: "b"}

		convey.So(m.Outcome(), convey.ShouldEqual, model.OutcomeDraw)
		m.Winner = "a"
		convey.So(m.Outcome(), convey.ShouldEqual, model.OutcomeAWins)
		m.Winner = "b"
		convey.So(m.Outcome(), convey.ShouldEqual, model.OutcomeBWins)
		convey.So(model.Match{Player1: "a"}.IsBye(), convey.ShouldBeTrue)
		convey.So(model.Match{Player1: "a"}.PairKey(), convey.ShouldEqual, "")
	})
}

func TestSettings(t *testing.T) {
	convey.Convey("Given default settings", t, func() {
		s := model.DefaultSettings()

		convey.Convey("They validate", func() {
			convey.So(s.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("A patch only touches the fields it sets", func() {
			v := 0.8
			merged := s.Merge(model.SettingsPatch{SkillVariance: &v})
			convey.So(merged.SkillVariance, convey.ShouldEqual, 0.8)
			convey.So(merged.DeckDiversityWeight, convey.ShouldEqual, s.DeckDiversityWeight)
		})

		convey.Convey("Out of range values are rejected", func() {
			cases := []model.SettingsPatch{
				{Algorithm: ptr("glicko")},
				{SkillVariance: fptr(0.05)},
				{DeckDiversityWeight: fptr(1.5)},
				{MinSkillDifference: fptr(20)},
				{MaxSkillDifference: fptr(1200)},
			}
			for _, c := range cases {
				err := s.Merge(c).Validate()
				convey.So(errors.Is(err, model.ErrInvalidSettings), convey.ShouldBeTrue)
			}
		})

		convey.Convey("The elo algorithm is accepted", func() {
			convey.So(s.Merge(model.SettingsPatch{Algorithm: ptr("elo")}).Validate(), convey.ShouldBeNil)
		})
	})
}

func ptr(s string) *string     { return &s }
func fptr(f float64) *float64 { return &f }
