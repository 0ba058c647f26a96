package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/tourney/internal/adapters/mq/worker"
	"github.com/okian/tourney/internal/adapters/repository"
	service "github.com/okian/tourney/internal/app"
	"github.com/okian/tourney/internal/domain/match"
	"github.com/okian/tourney/internal/domain/model"
	"github.com/okian/tourney/internal/domain/rating"
	"github.com/okian/tourney/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// newTournament creates a tournament and registers p1..pn.
func newTournament(ctx context.Context, svc *service.Service, n int) model.Tournament {
	t, err := svc.CreateTournament(ctx, service.CreateTournamentInput{Name: "Weekly", Format: "standard"})
	So(err, ShouldBeNil)
	for i := 1; i <= n; i++ {
		t, err = svc.JoinTournament(ctx, t.ID, fmt.Sprintf("p%d", i))
		So(err, ShouldBeNil)
	}
	return t
}

// reportAll reports every pending match of the round as a player1 win.
func reportAll(ctx context.Context, svc *service.Service, matches []model.Match) {
	for _, m := range matches {
		if m.IsBye() {
			continue
		}
		_, err := svc.ReportResult(ctx, m.ID, service.ReportInput{
			Winner: m.Player1,
			Games:  []model.Game{{Winner: m.Player1}, {Winner: m.Player1}},
		})
		So(err, ShouldBeNil)
	}
}

func byePlayer(matches []model.Match) string {
	for _, m := range matches {
		if m.IsBye() {
			return m.Player1
		}
	}
	return ""
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it reports itself as not started", func() {
			So(svc, ShouldNotBeNil)
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, false)
			So(stats["deadLetters"], ShouldEqual, 0)
		})
	})

	Convey("Given a service with custom options", t, func() {
		svc := service.New(
			service.WithWorkerCount(2),
			service.WithQueueSize(64),
			service.WithDedupeSize(32),
			service.WithPairingTimeout(time.Second),
			service.WithRatingRetry(5, time.Millisecond),
		)

		Convey("Then the configuration shows in stats", func() {
			stats := svc.GetStats()
			So(stats["workerCount"], ShouldEqual, 2)
			So(stats["queueSize"], ShouldEqual, 64)
			So(stats["dedupeSize"], ShouldEqual, 32)
		})
	})
}

func TestService_StartStop(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		svc := service.New(service.WithWorkerCount(2))
		So(svc.Start(ctx), ShouldBeNil)

		Convey("Then starting again is a no-op", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.GetStats()["started"], ShouldEqual, true)
			So(svc.GetStats()["queueLength"], ShouldEqual, 0)
			svc.Stop()
		})

		Convey("When stopping the service", func() {
			svc.Stop()

			Convey("Then it is marked as stopped and stopping again is safe", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
				svc.Stop()
			})
		})
	})
}

func TestService_Registration(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new tournament", t, func() {
		svc := service.New()
		tr, err := svc.CreateTournament(ctx, service.CreateTournamentInput{Name: "Cup", MaxPlayers: 2})
		So(err, ShouldBeNil)

		Convey("Then it is upcoming with default settings", func() {
			So(tr.Status, ShouldEqual, model.TournamentUpcoming)
			So(tr.Settings, ShouldResemble, model.DefaultSettings())
			So(tr.Participants, ShouldBeEmpty)
		})

		Convey("When players join", func() {
			_, err := svc.JoinTournament(ctx, tr.ID, "a")
			So(err, ShouldBeNil)

			Convey("Then a duplicate registration is rejected", func() {
				_, err := svc.JoinTournament(ctx, tr.ID, "a")
				So(errors.Is(err, service.ErrAlreadyRegistered), ShouldBeTrue)
			})

			Convey("Then registration stops at the cap", func() {
				_, err := svc.JoinTournament(ctx, tr.ID, "b")
				So(err, ShouldBeNil)
				_, err = svc.JoinTournament(ctx, tr.ID, "c")
				So(errors.Is(err, service.ErrTournamentFull), ShouldBeTrue)
			})

			Convey("Then a single player cannot start", func() {
				_, _, err := svc.StartTournament(ctx, tr.ID)
				So(errors.Is(err, service.ErrNotEnoughPlayers), ShouldBeTrue)
			})

			Convey("Then the new player has a default rating and a ladder entry", func() {
				r, err := svc.LoadRating(ctx, "a", "")
				So(err, ShouldBeNil)
				So(r.Mean, ShouldEqual, model.DefaultMean)
				e, err := svc.Rank(ctx, "a")
				So(err, ShouldBeNil)
				So(e.Rank, ShouldEqual, 1)
			})
		})
	})

	Convey("Given invalid input", t, func() {
		svc := service.New()

		Convey("Then a nameless tournament is rejected", func() {
			_, err := svc.CreateTournament(ctx, service.CreateTournamentInput{})
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
		})

		Convey("Then out of range settings are rejected", func() {
			bad := 5.0
			_, err := svc.CreateTournament(ctx, service.CreateTournamentInput{
				Name:     "Cup",
				Settings: &model.SettingsPatch{SkillVariance: &bad},
			})
			So(errors.Is(err, service.ErrInvalidSettings), ShouldBeTrue)
			So(errors.Is(err, model.ErrInvalidSettings), ShouldBeTrue)
		})

		Convey("Then unknown tournaments are not found", func() {
			_, err := svc.JoinTournament(ctx, "missing", "a")
			So(errors.Is(err, service.ErrTournamentNotFound), ShouldBeTrue)
			_, err = svc.Standings(ctx, "missing")
			So(errors.Is(err, service.ErrTournamentNotFound), ShouldBeTrue)
		})

		Convey("Then an empty player ID is rejected", func() {
			_, err := svc.JoinTournament(ctx, "missing", "")
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
		})
	})
}

func TestService_Rounds(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started tournament of five players", t, func() {
		svc := service.New()
		tr := newTournament(ctx, svc, 5)
		tr, round1, err := svc.StartTournament(ctx, tr.ID)
		So(err, ShouldBeNil)

		Convey("Then round one has two pairs and a bye for the last player", func() {
			So(tr.Status, ShouldEqual, model.TournamentOngoing)
			So(tr.Rounds, ShouldEqual, 3)
			So(tr.CurrentRound, ShouldEqual, 1)
			So(round1, ShouldHaveLength, 3)
			So(byePlayer(round1), ShouldEqual, "p5")
			So(round1[2].Table, ShouldEqual, 3)
			So(round1[0].Snapshot.Algorithm, ShouldEqual, model.AlgorithmBayesian)
		})

		Convey("Then registration is closed", func() {
			_, err := svc.JoinTournament(ctx, tr.ID, "late")
			So(errors.Is(err, service.ErrRegistrationClosed), ShouldBeTrue)
			_, _, err = svc.StartTournament(ctx, tr.ID)
			So(errors.Is(err, service.ErrRegistrationClosed), ShouldBeTrue)
		})

		Convey("Then the next round waits for results", func() {
			_, _, err := svc.GenerateNextRound(ctx, tr.ID)
			So(errors.Is(err, service.ErrRoundIncomplete), ShouldBeTrue)
		})

		Convey("When round one is reported", func() {
			reportAll(ctx, svc, round1)
			tr2, round2, err := svc.GenerateNextRound(ctx, tr.ID)
			So(err, ShouldBeNil)

			Convey("Then round two avoids rematches and moves the bye", func() {
				So(tr2.CurrentRound, ShouldEqual, 2)
				So(byePlayer(round2), ShouldEqual, "p4")
				played := model.PairSet{}
				for _, m := range round1 {
					if !m.IsBye() {
						played.Add(m.Player1, m.Player2)
					}
				}
				for _, m := range round2 {
					if !m.IsBye() {
						So(played.Has(m.Player1, m.Player2), ShouldBeFalse)
					}
				}
			})

			Convey("Then standings credit the winners and the bye scores nothing", func() {
				rows, err := svc.Standings(ctx, tr.ID)
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 5)
				So(rows[0].Points, ShouldEqual, 3)
				So(rows[1].Points, ShouldEqual, 3)
				So(rows[4].Points, ShouldEqual, 0)
			})

			Convey("Then analytics cover the completed matches", func() {
				a, err := svc.Analytics(ctx, tr.ID)
				So(err, ShouldBeNil)
				So(a.TotalMatches, ShouldEqual, 2)
				So(a.PredictionAccuracy, ShouldBeBetweenOrEqual, 0, 100)
			})

			Convey("Then listing by round returns only that round", func() {
				ms, err := svc.ListMatches(ctx, tr.ID, 2)
				So(err, ShouldBeNil)
				So(ms, ShouldHaveLength, 3)
				all, err := svc.ListMatches(ctx, tr.ID, 0)
				So(err, ShouldBeNil)
				So(all, ShouldHaveLength, 6)
			})
		})
	})

	Convey("Given a six player tournament played to the end", t, func() {
		svc := service.New()
		tr := newTournament(ctx, svc, 6)
		tr, matches, err := svc.StartTournament(ctx, tr.ID)
		So(err, ShouldBeNil)
		So(tr.Rounds, ShouldEqual, 3)

		for round := 1; round < 3; round++ {
			reportAll(ctx, svc, matches)
			tr, matches, err = svc.GenerateNextRound(ctx, tr.ID)
			So(err, ShouldBeNil)
			So(byePlayer(matches), ShouldBeEmpty)
		}
		reportAll(ctx, svc, matches)

		Convey("Then asking for another round completes the tournament", func() {
			_, _, err := svc.GenerateNextRound(ctx, tr.ID)
			So(errors.Is(err, service.ErrTournamentComplete), ShouldBeTrue)

			got, err := svc.GetTournament(ctx, tr.ID)
			So(err, ShouldBeNil)
			So(got.Status, ShouldEqual, model.TournamentCompleted)

			_, _, err = svc.GenerateNextRound(ctx, tr.ID)
			So(errors.Is(err, service.ErrTournamentComplete), ShouldBeTrue)
			_, err = svc.UpdateSettings(ctx, tr.ID, model.SettingsPatch{})
			So(errors.Is(err, service.ErrTournamentComplete), ShouldBeTrue)
		})

		Convey("Then every match was rated exactly once", func() {
			all, err := svc.ListMatches(ctx, tr.ID, 0)
			So(err, ShouldBeNil)
			So(all, ShouldHaveLength, 9)
			for _, m := range all {
				So(m.RatingsApplied, ShouldBeTrue)
				So(m.RatingChanges, ShouldNotBeNil)
			}
			games := 0
			for i := 1; i <= 6; i++ {
				pr, err := svc.PlayerRating(ctx, fmt.Sprintf("p%d", i), "standard")
				So(err, ShouldBeNil)
				So(pr.Profile.Stats.TotalGames, ShouldEqual, 3)
				games += pr.Profile.Stats.TotalGames
			}
			So(games, ShouldEqual, 18)
		})

		Convey("Then the leaderboard ranks all six", func() {
			top, err := svc.Leaderboard(ctx, 10)
			So(err, ShouldBeNil)
			So(top, ShouldHaveLength, 6)
			for i := 1; i < len(top); i++ {
				So(top[i].Conservative, ShouldBeLessThanOrEqualTo, top[i-1].Conservative)
			}
		})
	})

	Convey("Given a tournament that has not started", t, func() {
		svc := service.New()
		tr := newTournament(ctx, svc, 2)

		Convey("Then no next round can be generated", func() {
			_, _, err := svc.GenerateNextRound(ctx, tr.ID)
			So(errors.Is(err, service.ErrTournamentNotStarted), ShouldBeTrue)
		})

		Convey("Then settings can be patched and are validated", func() {
			elo := model.AlgorithmElo
			updated, err := svc.UpdateSettings(ctx, tr.ID, model.SettingsPatch{Algorithm: &elo})
			So(err, ShouldBeNil)
			So(updated.Settings.Algorithm, ShouldEqual, model.AlgorithmElo)
			So(updated.Settings.SkillVariance, ShouldEqual, 0.3)

			bad := "glicko"
			_, err = svc.UpdateSettings(ctx, tr.ID, model.SettingsPatch{Algorithm: &bad})
			So(errors.Is(err, service.ErrInvalidSettings), ShouldBeTrue)

			_, round1, err := svc.StartTournament(ctx, tr.ID)
			So(err, ShouldBeNil)
			So(round1[0].Snapshot.Algorithm, ShouldEqual, model.AlgorithmElo)
		})
	})
}

func TestService_ReportResult(t *testing.T) {
	ctx := context.Background()

	Convey("Given round one of a two player tournament", t, func() {
		svc := service.New()
		tr := newTournament(ctx, svc, 2)
		_, round1, err := svc.StartTournament(ctx, tr.ID)
		So(err, ShouldBeNil)
		m := round1[0]

		Convey("When player2 wins", func() {
			done, err := svc.ReportResult(ctx, m.ID, service.ReportInput{
				Winner:      m.Player2,
				Games:       []model.Game{{Winner: m.Player2}, {Winner: m.Player1}, {Winner: m.Player2}},
				Player1Deck: "Aggro",
				Player2Deck: "Control",
				ReportID:    "r-1",
			})
			So(err, ShouldBeNil)
			So(done.Status, ShouldEqual, model.MatchCompleted)

			Convey("Then ratings move toward the winner", func() {
				winner, err := svc.PlayerRating(ctx, m.Player2, "standard")
				So(err, ShouldBeNil)
				loser, err := svc.PlayerRating(ctx, m.Player1, "standard")
				So(err, ShouldBeNil)
				So(winner.Rating.Mean, ShouldBeGreaterThan, model.DefaultMean)
				So(loser.Rating.Mean, ShouldBeLessThan, model.DefaultMean)
				So(winner.Rating.Uncertainty, ShouldBeLessThan, model.DefaultUncertainty)
				So(winner.PreferredArchetype, ShouldEqual, "Control")
				So(winner.Profile.Stats.Wins, ShouldEqual, 1)
				So(loser.Profile.History, ShouldHaveLength, 1)

				first, err := svc.Rank(ctx, m.Player2)
				So(err, ShouldBeNil)
				So(first.Rank, ShouldEqual, 1)
			})

			Convey("Then the stored match is enriched", func() {
				ms, err := svc.ListMatches(ctx, tr.ID, 1)
				So(err, ShouldBeNil)
				So(ms[0].RatingsApplied, ShouldBeTrue)
				So(*ms[0].Snapshot.ActualOutcome, ShouldEqual, 0)
				So(ms[0].Snapshot.SurpriseFactor, ShouldNotBeNil)
			})

			Convey("Then a repeated report ID is acknowledged without effect", func() {
				again, err := svc.ReportResult(ctx, m.ID, service.ReportInput{Winner: m.Player1, ReportID: "r-1"})
				So(err, ShouldBeNil)
				So(again.Winner, ShouldEqual, m.Player2)
			})

			Convey("Then a second report with a new ID is rejected", func() {
				_, err := svc.ReportResult(ctx, m.ID, service.ReportInput{Winner: m.Player1, ReportID: "r-2"})
				So(errors.Is(err, match.ErrMatchNotReportable), ShouldBeTrue)
			})

			Convey("Then replaying the rating job changes nothing", func() {
				before, _ := svc.PlayerRating(ctx, m.Player2, "standard")
				So(svc.Process(ctx, model.RatingJob{MatchID: m.ID}), ShouldBeNil)
				after, _ := svc.PlayerRating(ctx, m.Player2, "standard")
				So(after.Profile.Version, ShouldEqual, before.Profile.Version)
			})
		})

		Convey("When the result is a draw", func() {
			_, err := svc.ReportResult(ctx, m.ID, service.ReportInput{})
			So(err, ShouldBeNil)

			Convey("Then means stay put and games are counted", func() {
				r, err := svc.LoadRating(ctx, m.Player1, "standard")
				So(err, ShouldBeNil)
				So(r.Mean, ShouldAlmostEqual, model.DefaultMean, 1e-6)
				So(r.GamesPlayed, ShouldEqual, 1)
			})
		})

		Convey("When the winner is not in the match", func() {
			_, err := svc.ReportResult(ctx, m.ID, service.ReportInput{Winner: "stranger", ReportID: "r-3"})

			Convey("Then it is rejected and the report ID can be reused", func() {
				So(errors.Is(err, rating.ErrInvalidOutcome), ShouldBeTrue)
				_, err := svc.ReportResult(ctx, m.ID, service.ReportInput{Winner: m.Player1, ReportID: "r-3"})
				So(err, ShouldBeNil)
			})
		})

		Convey("When the match is unknown", func() {
			_, err := svc.ReportResult(ctx, "nope", service.ReportInput{Winner: "x"})
			So(errors.Is(err, service.ErrMatchNotFound), ShouldBeTrue)
		})

		Convey("When a rating job names an unknown match", func() {
			err := svc.Process(ctx, model.RatingJob{MatchID: "nope"})
			So(errors.Is(err, worker.ErrPermanent), ShouldBeTrue)
		})
	})

	Convey("Given a bye", t, func() {
		svc := service.New()
		tr := newTournament(ctx, svc, 3)
		_, round1, err := svc.StartTournament(ctx, tr.ID)
		So(err, ShouldBeNil)

		Convey("Then it cannot be reported", func() {
			_, err := svc.ReportResult(ctx, round1[1].ID, service.ReportInput{Winner: round1[1].Player1})
			So(errors.Is(err, match.ErrMatchNotReportable), ShouldBeTrue)
		})
	})
}

// flakyStore fails rating commits while failing is set.
type flakyStore struct {
	repository.Store
	failing atomic.Bool
	calls   atomic.Int32
}

func (f *flakyStore) CommitRatings(ctx context.Context, ps []model.Profile, m model.Match) ([]model.Profile, error) {
	f.calls.Add(1)
	if f.failing.Load() {
		return nil, errors.New("disk full")
	}
	return f.Store.CommitRatings(ctx, ps, m)
}

func TestService_DeadLetters(t *testing.T) {
	ctx := context.Background()

	Convey("Given a store that cannot commit ratings", t, func() {
		store := &flakyStore{Store: repository.NewMemoryStore()}
		store.failing.Store(true)
		svc := service.New(service.WithStore(store), service.WithRatingRetry(2, time.Millisecond))
		tr := newTournament(ctx, svc, 2)
		_, round1, err := svc.StartTournament(ctx, tr.ID)
		So(err, ShouldBeNil)

		_, err = svc.ReportResult(ctx, round1[0].ID, service.ReportInput{Winner: round1[0].Player1})

		Convey("Then the report succeeds and the rating job is dead-lettered", func() {
			So(err, ShouldBeNil)
			So(store.calls.Load(), ShouldEqual, 2)
			dead := svc.DeadLetters()
			So(dead, ShouldHaveLength, 1)
			So(dead[0].MatchID, ShouldEqual, round1[0].ID)
			So(dead[0].LastError, ShouldContainSubstring, "disk full")
			So(svc.GetStats()["deadLetters"], ShouldEqual, 1)
		})

		Convey("When the store recovers and dead letters are retried", func() {
			store.failing.Store(false)
			n := svc.RetryFailedRatings(ctx)

			Convey("Then the rating is applied", func() {
				So(n, ShouldEqual, 1)
				So(svc.DeadLetters(), ShouldBeEmpty)
				ms, err := svc.ListMatches(ctx, tr.ID, 1)
				So(err, ShouldBeNil)
				So(ms[0].RatingsApplied, ShouldBeTrue)
			})
		})
	})
}

func TestService_Decay(t *testing.T) {
	ctx := context.Background()

	Convey("Given a player last active long ago", t, func() {
		now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
		clock := now
		svc := service.New(service.WithClock(func() time.Time { return clock }))
		tr := newTournament(ctx, svc, 2)
		_, round1, err := svc.StartTournament(ctx, tr.ID)
		So(err, ShouldBeNil)
		_, err = svc.ReportResult(ctx, round1[0].ID, service.ReportInput{Winner: round1[0].Player1})
		So(err, ShouldBeNil)

		fresh, err := svc.LoadRating(ctx, round1[0].Player1, "standard")
		So(err, ShouldBeNil)

		Convey("Then reads widen uncertainty past the grace window without persisting it", func() {
			clock = now.Add(45 * 24 * time.Hour)
			decayed, err := svc.LoadRating(ctx, round1[0].Player1, "standard")
			So(err, ShouldBeNil)
			So(decayed.Uncertainty, ShouldAlmostEqual, fresh.Uncertainty+15, 1e-9)

			again, err := svc.LoadRating(ctx, round1[0].Player1, "standard")
			So(err, ShouldBeNil)
			So(again.Uncertainty, ShouldEqual, decayed.Uncertainty)
		})
	})
}
