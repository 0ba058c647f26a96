package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/tourney/internal/adapters/repository"
	"github.com/okian/tourney/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func openSQLite(t *testing.T) repository.Store {
	t.Helper()
	ctx := context.Background()
	db, err := repository.Open(ctx, repository.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if _, err := repository.Migrate(ctx, repository.DriverSQLite, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repository.NewSQLStore(db, repository.DriverSQLite)
}

func stores(t *testing.T) map[string]func() repository.Store {
	return map[string]func() repository.Store{
		"memory": func() repository.Store { return repository.NewMemoryStore() },
		"sqlite": func() repository.Store { return openSQLite(t) },
	}
}

func tournament(id string) model.Tournament {
	return model.Tournament{
		ID:           id,
		Name:         "Friday Night",
		Format:       "standard",
		Status:       model.TournamentUpcoming,
		Participants: []string{"a", "b", "c"},
		MaxPlayers:   8,
		Settings:     model.DefaultSettings(),
		CreatedAt:    time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC),
	}
}

func pair(id, tid string, round, table int, p1, p2 string) model.Match {
	m := model.Match{
		ID: id, TournamentID: tid, Round: round, Table: table,
		Player1: p1, Player2: p2, Status: model.MatchPending,
	}
	if p2 == "" {
		m.Status = model.MatchBye
	}
	return m
}

func TestProfiles(t *testing.T) {
	for name, open := range stores(t) {
		Convey("Given an empty "+name+" store", t, func() {
			ctx := context.Background()
			s := open()
			defer s.Close()

			Convey("When an unseen player is loaded", func() {
				p, err := s.LoadProfile(ctx, "alice")

				Convey("Then the default profile is created and persisted", func() {
					So(err, ShouldBeNil)
					So(p.Overall, ShouldResemble, model.NewRating())
					So(p.Confidence, ShouldEqual, model.InitialConfidence)
					So(p.Version, ShouldEqual, 1)

					all, err := s.ListProfiles(ctx)
					So(err, ShouldBeNil)
					So(all, ShouldHaveLength, 1)
				})

				Convey("Then saving bumps the version", func() {
					p.Overall.Mean = 1612
					saved, err := s.SaveProfile(ctx, p)
					So(err, ShouldBeNil)
					So(saved.Version, ShouldEqual, 2)

					again, err := s.LoadProfile(ctx, "alice")
					So(err, ShouldBeNil)
					So(again.Overall.Mean, ShouldEqual, 1612)
				})

				Convey("Then a stale save is a version conflict", func() {
					_, err := s.SaveProfile(ctx, p)
					So(err, ShouldBeNil)
					_, err = s.SaveProfile(ctx, p)
					So(errors.Is(err, repository.ErrVersionConflict), ShouldBeTrue)
				})
			})

			Convey("When a new profile is saved at version zero", func() {
				saved, err := s.SaveProfile(ctx, model.NewProfile("bob"))
				So(err, ShouldBeNil)
				So(saved.Version, ShouldEqual, 1)

				_, err = s.SaveProfile(ctx, model.NewProfile("bob"))
				So(errors.Is(err, repository.ErrVersionConflict), ShouldBeTrue)
			})
		})
	}
}

func TestTournaments(t *testing.T) {
	for name, open := range stores(t) {
		Convey("Given a "+name+" store with a tournament", t, func() {
			ctx := context.Background()
			s := open()
			defer s.Close()

			created, err := s.CreateTournament(ctx, tournament("t1"))
			So(err, ShouldBeNil)
			So(created.Version, ShouldEqual, 1)

			Convey("Then it reads back unchanged", func() {
				got, err := s.GetTournament(ctx, "t1")
				So(err, ShouldBeNil)
				So(got.Participants, ShouldResemble, []string{"a", "b", "c"})
				So(got.CreatedAt.Equal(created.CreatedAt), ShouldBeTrue)
			})

			Convey("Then creating it twice fails", func() {
				_, err := s.CreateTournament(ctx, tournament("t1"))
				So(errors.Is(err, repository.ErrAlreadyExists), ShouldBeTrue)
			})

			Convey("Then saves are compare-and-swap", func() {
				created.Status = model.TournamentOngoing
				saved, err := s.SaveTournament(ctx, created)
				So(err, ShouldBeNil)
				So(saved.Version, ShouldEqual, 2)

				_, err = s.SaveTournament(ctx, created)
				So(errors.Is(err, repository.ErrVersionConflict), ShouldBeTrue)
			})

			Convey("Then unknown tournaments are not found", func() {
				_, err := s.GetTournament(ctx, "nope")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				_, err = s.SaveTournament(ctx, tournament("nope"))
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})
	}
}

func TestMatches(t *testing.T) {
	for name, open := range stores(t) {
		Convey("Given a "+name+" store with a committed round", t, func() {
			ctx := context.Background()
			s := open()
			defer s.Close()

			tr, err := s.CreateTournament(ctx, tournament("t1"))
			So(err, ShouldBeNil)
			tr.Status = model.TournamentOngoing
			tr.CurrentRound = 1
			round1 := []model.Match{
				pair("m1", "t1", 1, 1, "a", "b"),
				pair("m2", "t1", 1, 2, "c", ""),
			}
			tr, err = s.CommitRound(ctx, tr, round1)
			So(err, ShouldBeNil)
			So(tr.Version, ShouldEqual, 2)

			Convey("Then matches list in table order", func() {
				ms, err := s.ListMatches(ctx, "t1", 1)
				So(err, ShouldBeNil)
				So(ms, ShouldHaveLength, 2)
				So(ms[0].ID, ShouldEqual, "m1")
				So(ms[1].IsBye(), ShouldBeTrue)

				none, err := s.ListMatches(ctx, "t1", 2)
				So(err, ShouldBeNil)
				So(none, ShouldBeEmpty)
			})

			Convey("Then history and byes are derived from stored matches", func() {
				pairs, err := s.PreviousPairs(ctx, "t1", nil)
				So(err, ShouldBeNil)
				So(pairs.Has("b", "a"), ShouldBeTrue)
				So(pairs, ShouldHaveLength, 1)

				scoped, err := s.PreviousPairs(ctx, "t1", []string{"a", "c"})
				So(err, ShouldBeNil)
				So(scoped, ShouldBeEmpty)

				byes, err := s.ByeCounts(ctx, "t1")
				So(err, ShouldBeNil)
				So(byes, ShouldResemble, map[string]int{"c": 1})
			})

			Convey("When a later round repeats a pair", func() {
				tr.CurrentRound = 2
				_, err := s.CommitRound(ctx, tr, []model.Match{
					pair("m3", "t1", 2, 1, "b", "a"),
					pair("m4", "t1", 2, 2, "c", ""),
				})

				Convey("Then the whole round is rejected", func() {
					So(errors.Is(err, repository.ErrDuplicatePair), ShouldBeTrue)
					ms, _ := s.ListMatches(ctx, "t1", 2)
					So(ms, ShouldBeEmpty)
					got, _ := s.GetTournament(ctx, "t1")
					So(got.CurrentRound, ShouldEqual, 1)
				})
			})

			Convey("When the round is committed from a stale tournament", func() {
				stale := tr
				stale.Version = 1
				_, err := s.CommitRound(ctx, stale, []model.Match{pair("m5", "t1", 2, 1, "a", "c")})

				Convey("Then nothing is written", func() {
					So(errors.Is(err, repository.ErrVersionConflict), ShouldBeTrue)
					_, err := s.GetMatch(ctx, "m5")
					So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				})
			})

			Convey("When a match is completed", func() {
				m, err := s.GetMatch(ctx, "m1")
				So(err, ShouldBeNil)
				m.Status = model.MatchCompleted
				m.Winner = "a"
				m.CompletedAt = time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)
				So(s.UpdateMatch(ctx, m), ShouldBeNil)

				Convey("Then it is unrated until ratings are committed", func() {
					unrated, err := s.UnratedMatches(ctx)
					So(err, ShouldBeNil)
					So(unrated, ShouldHaveLength, 1)
					So(unrated[0].Winner, ShouldEqual, "a")

					pa, _ := s.LoadProfile(ctx, "a")
					pb, _ := s.LoadProfile(ctx, "b")
					pa.Overall.Mean, pb.Overall.Mean = 1540, 1460
					m.RatingsApplied = true
					saved, err := s.CommitRatings(ctx, []model.Profile{pa, pb}, m)
					So(err, ShouldBeNil)
					So(saved[0].Version, ShouldEqual, 2)

					unrated, err = s.UnratedMatches(ctx)
					So(err, ShouldBeNil)
					So(unrated, ShouldBeEmpty)
				})

				Convey("Then a stale profile rolls the rating commit back", func() {
					pa, _ := s.LoadProfile(ctx, "a")
					pb, _ := s.LoadProfile(ctx, "b")
					stale := pb
					_, err := s.SaveProfile(ctx, pb)
					So(err, ShouldBeNil)

					m.RatingsApplied = true
					_, err = s.CommitRatings(ctx, []model.Profile{pa, stale}, m)
					So(errors.Is(err, repository.ErrVersionConflict), ShouldBeTrue)

					got, _ := s.GetMatch(ctx, "m1")
					So(got.RatingsApplied, ShouldBeFalse)
					again, _ := s.LoadProfile(ctx, "a")
					So(again.Version, ShouldEqual, pa.Version)
				})
			})

			Convey("Then a match cannot change its players", func() {
				m, _ := s.GetMatch(ctx, "m1")
				m.Player2 = "c"
				So(errors.Is(s.UpdateMatch(ctx, m), repository.ErrVersionConflict), ShouldBeTrue)
				So(errors.Is(s.UpdateMatch(ctx, pair("zz", "t1", 1, 9, "a", "b")), repository.ErrNotFound), ShouldBeTrue)
			})

			Convey("Then a duplicate match ID is rejected", func() {
				_, err := s.SaveMatch(ctx, pair("m1", "t1", 3, 1, "x", "y"))
				So(errors.Is(err, repository.ErrAlreadyExists), ShouldBeTrue)
			})

			Convey("Then player IDs containing the key separator are distinct pairs", func() {
				_, err := s.SaveMatch(ctx, pair("m8", "t1", 3, 1, "a|b", "c"))
				So(err, ShouldBeNil)
				_, err = s.SaveMatch(ctx, pair("m9", "t1", 3, 2, "a", "b|c"))
				So(err, ShouldBeNil)

				pairs, err := s.PreviousPairs(ctx, "t1", nil)
				So(err, ShouldBeNil)
				So(pairs.Has("c", "a|b"), ShouldBeTrue)
				So(pairs.Has("b|c", "a"), ShouldBeTrue)
			})
		})
	}
}

func TestSQLStoreSetup(t *testing.T) {
	Convey("Given an unknown driver", t, func() {
		_, err := repository.Open(context.Background(), "mongo", "")

		Convey("Then opening fails", func() {
			So(errors.Is(err, repository.ErrUnknownDriver), ShouldBeTrue)
		})
	})

	Convey("Given a migrated sqlite database", t, func() {
		ctx := context.Background()
		db, err := repository.Open(ctx, repository.DriverSQLite, ":memory:")
		So(err, ShouldBeNil)
		defer db.Close()

		v, err := repository.Migrate(ctx, repository.DriverSQLite, db)
		So(err, ShouldBeNil)

		Convey("Then every migration is applied and re-running is a no-op", func() {
			So(v, ShouldEqual, 2)
			again, err := repository.Migrate(ctx, repository.DriverSQLite, db)
			So(err, ShouldBeNil)
			So(again, ShouldEqual, 2)
		})
	})
}
