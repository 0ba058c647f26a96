package simulation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/tourney/internal/domain/match"
	"github.com/okian/tourney/internal/domain/model"
	"github.com/okian/tourney/internal/domain/types"
	"github.com/okian/tourney/pkg/logger"
)

const (
	codeTournamentComplete = "tournament_complete"
	settlePollInterval     = 100 * time.Millisecond
	directoryPermission    = 0750
	reportFilePermission   = 0600
)

// Report summarizes a simulated event.
type Report struct {
	TournamentID       string              `json:"tournament_id"`
	Seed               int64               `json:"seed"`
	Players            []Player            `json:"players"`
	Rounds             int                 `json:"rounds"`
	MatchesReported    int                 `json:"matches_reported"`
	Byes               int                 `json:"byes"`
	Violations         []Violation         `json:"violations"`
	Standings          []model.StandingRow `json:"standings"`
	Leaderboard        []types.Entry       `json:"leaderboard"`
	Analytics          match.Analytics     `json:"analytics"`
	FinalRatings       map[string]float64  `json:"final_ratings"`
	SkillCorrelation   float64             `json:"skill_correlation"`
	StandingsAgreement float64             `json:"standings_agreement"`
	PredictionAccuracy float64             `json:"prediction_accuracy"`
	RatingsSettled     bool                `json:"ratings_settled"`
	StartTime          time.Time           `json:"start_time"`
	Duration           time.Duration       `json:"duration"`
}

// Run plays one full event against the service at cfg.BaseURL and collects
// the final standings and ratings.
func Run(ctx context.Context, cfg *Config, log logger.Logger) (*Report, error) {
	client := NewClient(cfg, log)
	field := NewField(cfg.Seed, cfg.Players, cfg.SkillSpread, cfg.DrawRate)
	report := &Report{Seed: cfg.Seed, Players: field.Players(), StartTime: time.Now()}

	log.Info(ctx, "starting simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("players", cfg.Players),
		logger.Int("workers", cfg.Workers),
		logger.Float64("rps", cfg.RPS),
		logger.Any("seed", cfg.Seed))

	if err := client.Health(ctx); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	t, err := client.CreateTournament(ctx, cfg.Name, cfg.Format, cfg.Players, cfg.Rounds)
	if err != nil {
		return nil, fmt.Errorf("create tournament: %w", err)
	}
	report.TournamentID = t.ID

	if err := register(ctx, cfg, client, t.ID, report.Players); err != nil {
		return nil, err
	}

	round, err := client.Start(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("start tournament: %w", err)
	}
	for {
		report.Rounds = round.Tournament.CurrentRound
		n, byes, err := playRound(ctx, cfg, client, field, round.Matches)
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", report.Rounds, err)
		}
		report.MatchesReported += n
		report.Byes += byes
		log.Info(ctx, "round played", logger.Int("round", report.Rounds), logger.Int("matches", n), logger.Int("byes", byes))

		round, err = client.NextRound(ctx, t.ID)
		if IsCode(err, codeTournamentComplete) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("generate round %d: %w", report.Rounds+1, err)
		}
	}

	matches, err := client.Matches(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	report.Violations = VerifyPairings(playerIDs(report.Players), matches)
	if report.Standings, err = client.Standings(ctx, t.ID); err != nil {
		return nil, fmt.Errorf("standings: %w", err)
	}

	report.RatingsSettled, report.FinalRatings, err = settle(ctx, cfg, client, report.Players, gamesPerPlayer(matches))
	if err != nil {
		return nil, err
	}
	if report.Analytics, err = client.Analytics(ctx, t.ID); err != nil {
		return nil, fmt.Errorf("analytics: %w", err)
	}
	if report.Leaderboard, err = client.Leaderboard(ctx, min(cfg.Players, 100)); err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}

	// Enriched matches carry the outcome; list them again once ratings settled.
	if matches, err = client.Matches(ctx, t.ID); err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	report.PredictionAccuracy, _ = PredictionAccuracy(matches)

	skills := map[string]float64{}
	for _, p := range report.Players {
		skills[p.ID] = p.Skill
	}
	points := map[string]float64{}
	for _, row := range report.Standings {
		points[row.PlayerID] = -float64(row.Rank)
	}
	report.SkillCorrelation = RankCorrelation(skills, report.FinalRatings)
	report.StandingsAgreement = RankCorrelation(points, report.FinalRatings)
	report.Duration = time.Since(report.StartTime)

	log.Info(ctx, "simulation finished",
		logger.String("tournament", report.TournamentID),
		logger.Int("rounds", report.Rounds),
		logger.Int("matches", report.MatchesReported),
		logger.Int("violations", len(report.Violations)),
		logger.Float64("skillCorrelation", report.SkillCorrelation),
		logger.Float64("predictionAccuracy", report.PredictionAccuracy),
		logger.Bool("ratingsSettled", report.RatingsSettled),
		logger.Duration("duration", report.Duration))
	return report, nil
}

func register(ctx context.Context, cfg *Config, client *Client, tournamentID string, players []Player) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, p := range players {
		g.Go(func() error {
			if err := client.Join(gctx, tournamentID, p.ID); err != nil {
				return fmt.Errorf("join %s: %w", p.ID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// playRound reports a result for every pending match and returns how many
// results and byes the round had.
func playRound(ctx context.Context, cfg *Config, client *Client, field *Field, matches []model.Match) (int, int, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	reported, byes := 0, 0
	for _, m := range matches {
		if m.IsBye() {
			byes++
			continue
		}
		if m.Status != model.MatchPending {
			continue
		}
		reported++
		req := field.Play(m)
		g.Go(func() error {
			if err := client.Report(gctx, m.ID, req); err != nil {
				return fmt.Errorf("report %s: %w", m.ID, err)
			}
			return nil
		})
	}
	return reported, byes, g.Wait()
}

// settle polls player ratings until each reflects every game the player
// played, or until cfg.SettleTimeout elapses.
func settle(ctx context.Context, cfg *Config, client *Client, players []Player, games map[string]int) (bool, map[string]float64, error) {
	deadline := time.Now().Add(cfg.SettleTimeout)
	for {
		ratings := make(map[string]float64, len(players))
		settled := true
		for _, p := range players {
			r, err := client.Rating(ctx, p.ID, "")
			if err != nil {
				return false, nil, fmt.Errorf("rating %s: %w", p.ID, err)
			}
			ratings[p.ID] = r.Profile.Overall.Mean
			if r.Profile.Stats.TotalGames < games[p.ID] {
				settled = false
			}
		}
		if settled || time.Now().After(deadline) {
			return settled, ratings, nil
		}
		select {
		case <-ctx.Done():
			return false, ratings, ctx.Err()
		case <-time.After(settlePollInterval):
		}
	}
}

func gamesPerPlayer(matches []model.Match) map[string]int {
	out := map[string]int{}
	for _, m := range matches {
		if m.Status == model.MatchCompleted && !m.IsBye() {
			out[m.Player1]++
			out[m.Player2]++
		}
	}
	return out
}

func playerIDs(players []Player) []string {
	out := make([]string, len(players))
	for i, p := range players {
		out[i] = p.ID
	}
	return out
}

// Save writes the report as indented JSON, creating parent directories.
func (r *Report) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return os.WriteFile(path, data, reportFilePermission)
}
