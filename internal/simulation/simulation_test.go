package simulation_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/ulule/limiter/v3"

	"github.com/okian/tourney/internal/adapters/http/api"
	service "github.com/okian/tourney/internal/app"
	"github.com/okian/tourney/internal/domain/model"
	"github.com/okian/tourney/internal/simulation"
	"github.com/okian/tourney/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func testConfig(url string, players int) *simulation.Config {
	return &simulation.Config{
		BaseURL:       url,
		Name:          "Sim",
		Format:        "standard",
		Players:       players,
		Workers:       4,
		RPS:           1000,
		Timeout:       5 * time.Second,
		SettleTimeout: 5 * time.Second,
		DrawRate:      0.1,
		SkillSpread:   300,
		Seed:          42,
	}
}

func newService(t *testing.T) *httptest.Server {
	svc := service.New()
	srv := api.NewServer(svc, svc, api.WithRateLimit(limiter.Rate{Limit: 100000, Period: time.Minute}))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestParseArgs(t *testing.T) {
	Convey("Given command line arguments", t, func() {
		Convey("When none are passed the defaults apply", func() {
			cfg, err := simulation.ParseArgs(nil)
			So(err, ShouldBeNil)
			So(cfg.BaseURL, ShouldEqual, "http://localhost:9080")
			So(cfg.Players, ShouldEqual, 16)
			So(cfg.Timeout, ShouldEqual, 10*time.Second)
			So(cfg.DrawRate, ShouldEqual, 0.05)
			So(cfg.Seed, ShouldNotEqual, 0)
		})

		Convey("When options are given they override the defaults", func() {
			cfg, err := simulation.ParseArgs([]string{"-n", "9", "--rounds=4", "--url", "http://x:1", "--seed", "7", "--settle", "2s"})
			So(err, ShouldBeNil)
			So(cfg.Players, ShouldEqual, 9)
			So(cfg.Rounds, ShouldEqual, 4)
			So(cfg.BaseURL, ShouldEqual, "http://x:1")
			So(cfg.Seed, ShouldEqual, 7)
			So(cfg.SettleTimeout, ShouldEqual, 2*time.Second)
		})

		Convey("When help is requested", func() {
			_, err := simulation.ParseArgs([]string{"--help"})
			So(errors.Is(err, simulation.ErrHelp), ShouldBeTrue)
		})

		Convey("When values are out of range", func() {
			_, err := simulation.ParseArgs([]string{"--players", "1"})
			So(err, ShouldNotBeNil)
			_, err = simulation.ParseArgs([]string{"--draw-rate", "1"})
			So(err, ShouldNotBeNil)
		})

		Convey("When an unknown flag is passed", func() {
			_, err := simulation.ParseArgs([]string{"--bogus"})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestField(t *testing.T) {
	Convey("Given two fields with the same seed", t, func() {
		a := simulation.NewField(3, 6, 200, 0)
		b := simulation.NewField(3, 6, 200, 0)

		Convey("Then they draw the same players", func() {
			So(a.Players(), ShouldResemble, b.Players())
			So(a.Players(), ShouldHaveLength, 6)
		})

		Convey("Then win probabilities are complementary", func() {
			ps := a.Players()
			p := a.WinProbability(ps[0].ID, ps[1].ID)
			So(p, ShouldBeBetween, 0, 1)
			So(p+a.WinProbability(ps[1].ID, ps[0].ID), ShouldAlmostEqual, 1, 1e-12)
			So(a.WinProbability(ps[2].ID, ps[2].ID), ShouldAlmostEqual, 0.5, 1e-12)
		})
	})

	Convey("Given a match between two simulated players", t, func() {
		f := simulation.NewField(11, 2, 0, 0)
		ps := f.Players()
		m := model.Match{ID: "m1", Player1: ps[0].ID, Player2: ps[1].ID}

		Convey("Then every result names a player and a best-of-three score", func() {
			wins := map[string]int{}
			for i := 0; i < 200; i++ {
				req := f.Play(m)
				wins[req.Winner]++
			}
			So(wins[""], ShouldEqual, 0)
			So(wins[ps[0].ID]+wins[ps[1].ID], ShouldEqual, 200)
			// Equal skills give both players a real share of wins.
			So(wins[ps[0].ID], ShouldBeGreaterThan, 50)
			So(wins[ps[1].ID], ShouldBeGreaterThan, 50)
		})

		Convey("Then a certain draw rate always draws", func() {
			draws := simulation.NewField(5, 2, 100, 0.999999)
			dp := draws.Players()
			req := draws.Play(model.Match{ID: "m2", Player1: dp[0].ID, Player2: dp[1].ID})
			So(req.Winner, ShouldBeEmpty)
			So(req.Games, ShouldHaveLength, 3)
			So(req.ReportID, ShouldEqual, "sim-m2")
		})
	})
}

func TestVerifyPairings(t *testing.T) {
	pair := func(r int, a, b string) model.Match {
		return model.Match{Round: r, Player1: a, Player2: b}
	}
	bye := func(r int, a string) model.Match { return model.Match{Round: r, Player1: a} }
	players := []string{"a", "b", "c"}

	Convey("Given a clean three player event", t, func() {
		ms := []model.Match{
			pair(1, "a", "b"), bye(1, "c"),
			pair(2, "a", "c"), bye(2, "b"),
			pair(3, "b", "c"), bye(3, "a"),
		}
		So(simulation.VerifyPairings(players, ms), ShouldBeEmpty)
	})

	Convey("Given a rematch and a repeated bye", t, func() {
		ms := []model.Match{
			pair(1, "a", "b"), bye(1, "c"),
			pair(2, "a", "b"), bye(2, "c"),
		}
		vs := simulation.VerifyPairings(players, ms)
		So(vs, ShouldHaveLength, 2)
		So(vs[0].Round, ShouldEqual, 2)
		So(vs[0].Message, ShouldEqual, "rematch a vs b")
		So(vs[1].Message, ShouldEqual, "c received a second bye")
	})

	Convey("Given a round that skips a player", t, func() {
		vs := simulation.VerifyPairings(players, []model.Match{pair(1, "a", "b")})
		So(vs, ShouldHaveLength, 2)
		So(vs[0].Message, ShouldEqual, "c appears 0 times")
		So(vs[1].Message, ShouldEqual, "0 byes, want 1")
	})
}

func TestRankCorrelation(t *testing.T) {
	Convey("Given two scorings", t, func() {
		x := map[string]float64{"a": 1, "b": 2, "c": 3, "d": 4}

		Convey("Then the same order correlates fully", func() {
			y := map[string]float64{"a": 10, "b": 20, "c": 35, "d": 90}
			So(simulation.RankCorrelation(x, y), ShouldAlmostEqual, 1, 1e-12)
		})

		Convey("Then the reverse order anticorrelates fully", func() {
			y := map[string]float64{"a": 4, "b": 3, "c": 2, "d": 1}
			So(simulation.RankCorrelation(x, y), ShouldAlmostEqual, -1, 1e-12)
		})

		Convey("Then ties share their rank", func() {
			y := map[string]float64{"a": 1, "b": 1, "c": 2, "d": 2}
			So(simulation.RankCorrelation(x, y), ShouldAlmostEqual, 0.8944271909999159, 1e-9)
		})

		Convey("Then too few shared players give zero", func() {
			So(simulation.RankCorrelation(x, map[string]float64{"a": 1, "z": 2}), ShouldEqual, 0)
		})
	})
}

func TestPredictionAccuracy(t *testing.T) {
	p := func(v float64) *float64 { return &v }
	Convey("Given completed matches with predictions", t, func() {
		ms := []model.Match{
			{Player1: "a", Player2: "b", Winner: "a", Status: model.MatchCompleted, Snapshot: model.Snapshot{PredictedWinProbability: p(0.7)}},
			{Player1: "c", Player2: "d", Winner: "c", Status: model.MatchCompleted, Snapshot: model.Snapshot{PredictedWinProbability: p(0.3)}},
			{Player1: "e", Player2: "f", Winner: "f", Status: model.MatchCompleted, Snapshot: model.Snapshot{PredictedWinProbability: p(0.4)}},
			{Player1: "g", Player2: "h", Status: model.MatchCompleted, Snapshot: model.Snapshot{PredictedWinProbability: p(0.9)}},
			{Player1: "i", Player2: "j", Winner: "i", Status: model.MatchCompleted, Snapshot: model.Snapshot{PredictedWinProbability: p(0.5)}},
		}
		acc, n := simulation.PredictionAccuracy(ms)
		So(n, ShouldEqual, 3)
		So(acc, ShouldAlmostEqual, 2.0/3, 1e-12)
	})
}

func TestClient(t *testing.T) {
	Convey("Given a service that throttles the first request", t, func() {
		var calls int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if atomic.AddInt32(&calls, 1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"code":"rate_limit","message":"slow down"}`))
				return
			}
			if r.URL.Path == "/tournaments/missing/standings" {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"code":"not_found","message":"tournament not found"}`))
				return
			}
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		}))
		defer ts.Close()
		client := simulation.NewClient(testConfig(ts.URL, 2), logger.Get())

		Convey("Then the request is retried", func() {
			So(client.Health(context.Background()), ShouldBeNil)
			So(atomic.LoadInt32(&calls), ShouldEqual, 2)

			Convey("And error bodies become API errors", func() {
				_, err := client.Standings(context.Background(), "missing")
				So(simulation.IsCode(err, "not_found"), ShouldBeTrue)
				var apiErr *simulation.APIError
				So(errors.As(err, &apiErr), ShouldBeTrue)
				So(apiErr.Status, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a running tournament service", t, func() {
		ts := newService(t)
		ctx := context.Background()

		Convey("When an odd field plays a full event", func() {
			report, err := simulation.Run(ctx, testConfig(ts.URL, 7), logger.Get())

			Convey("Then every round is paired cleanly and rated", func() {
				So(err, ShouldBeNil)
				So(report.Rounds, ShouldEqual, 3)
				So(report.MatchesReported, ShouldEqual, 9)
				So(report.Byes, ShouldEqual, 3)
				So(report.Violations, ShouldBeEmpty)
				So(report.RatingsSettled, ShouldBeTrue)
				So(report.FinalRatings, ShouldHaveLength, 7)
				So(report.Standings, ShouldHaveLength, 7)
				So(report.Leaderboard, ShouldHaveLength, 7)
				So(report.Analytics.TotalMatches, ShouldEqual, 9)
				So(report.SkillCorrelation, ShouldBeBetweenOrEqual, -1, 1)
				So(report.PredictionAccuracy, ShouldBeBetweenOrEqual, 0, 1)
			})

			Convey("Then the report can be saved", func() {
				So(err, ShouldBeNil)
				path := filepath.Join(t.TempDir(), "out", "report.json")
				So(report.Save(path), ShouldBeNil)
			})
		})

		Convey("When the round count is fixed", func() {
			cfg := testConfig(ts.URL, 8)
			cfg.Rounds = 2
			report, err := simulation.Run(ctx, cfg, logger.Get())
			So(err, ShouldBeNil)
			So(report.Rounds, ShouldEqual, 2)
			So(report.MatchesReported, ShouldEqual, 8)
			So(report.Byes, ShouldEqual, 0)
		})
	})

	Convey("Given no service", t, func() {
		_, err := simulation.Run(context.Background(), testConfig("http://127.0.0.1:1", 4), logger.Get())
		So(err, ShouldNotBeNil)
	})
}
