package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/okian/tourney/internal/domain/model"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// SQLStore is a Store over database/sql. Documents are kept as JSON next to
// the columns needed for lookups and constraints.
type SQLStore struct {
	db     *sql.DB
	driver string
}

var _ Store = (*SQLStore)(nil)

// Open connects to dsn with driver and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// SQLite allows one writer. A single connection also keeps a
		// ":memory:" database alive across calls.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// NewSQLStore wraps an open database. The schema must already be migrated.
func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

// DB exposes the underlying pool, for stats collection.
func (s *SQLStore) DB() *sql.DB { return s.db }

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) rebind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) inTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", what, id, err)
}

func unmarshal[T any](data string) (T, error) {
	var v T
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return v, fmt.Errorf("decode: %w", err)
	}
	return v, nil
}

// Profiles

func (s *SQLStore) LoadProfile(ctx context.Context, playerID string) (model.Profile, error) {
	defer observeRead(time.Now())

	p, err := s.getProfile(ctx, s.db, playerID)
	if !errors.Is(err, ErrNotFound) {
		return p, err
	}
	p = model.NewProfile(playerID)
	saved, err := s.insertProfile(ctx, s.db, p)
	if err != nil && isUniqueViolation(err) {
		// Created concurrently.
		return s.getProfile(ctx, s.db, playerID)
	}
	return saved, err
}

func (s *SQLStore) getProfile(ctx context.Context, q querier, playerID string) (model.Profile, error) {
	var data string
	err := q.QueryRowContext(ctx, s.rebind(`SELECT data FROM profiles WHERE player_id = ?`), playerID).Scan(&data)
	if err != nil {
		return model.Profile{}, notFound(err, "profile", playerID)
	}
	return unmarshal[model.Profile](data)
}

func (s *SQLStore) insertProfile(ctx context.Context, q querier, p model.Profile) (model.Profile, error) {
	p = p.Clone()
	p.Version = 1
	data, err := json.Marshal(p)
	if err != nil {
		return model.Profile{}, fmt.Errorf("encode profile: %w", err)
	}
	_, err = q.ExecContext(ctx, s.rebind(
		`INSERT INTO profiles (player_id, version, conservative, data) VALUES (?, ?, ?, ?)`),
		p.PlayerID, p.Version, p.Overall.Conservative(), string(data))
	if err != nil {
		return model.Profile{}, fmt.Errorf("insert profile %s: %w", p.PlayerID, err)
	}
	return p, nil
}

func (s *SQLStore) saveProfile(ctx context.Context, q querier, p model.Profile) (model.Profile, error) {
	if p.Version == 0 {
		saved, err := s.insertProfile(ctx, q, p)
		if err != nil && isUniqueViolation(err) {
			return model.Profile{}, fmt.Errorf("profile %s at version 0: %w", p.PlayerID, ErrVersionConflict)
		}
		return saved, err
	}
	next := p.Clone()
	next.Version++
	data, err := json.Marshal(next)
	if err != nil {
		return model.Profile{}, fmt.Errorf("encode profile: %w", err)
	}
	res, err := q.ExecContext(ctx, s.rebind(
		`UPDATE profiles SET version = ?, conservative = ?, data = ? WHERE player_id = ? AND version = ?`),
		next.Version, next.Overall.Conservative(), string(data), p.PlayerID, p.Version)
	if err != nil {
		return model.Profile{}, fmt.Errorf("update profile %s: %w", p.PlayerID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Profile{}, fmt.Errorf("profile %s at version %d: %w", p.PlayerID, p.Version, ErrVersionConflict)
	}
	return next, nil
}

func (s *SQLStore) SaveProfile(ctx context.Context, p model.Profile) (model.Profile, error) {
	defer observeWrite(time.Now())
	return s.saveProfile(ctx, s.db, p)
}

func (s *SQLStore) ListProfiles(ctx context.Context) ([]model.Profile, error) {
	defer observeRead(time.Now())

	rows, err := s.db.QueryContext(ctx, `SELECT data FROM profiles ORDER BY player_id`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return scanAll[model.Profile](rows)
}

func scanAll[T any](rows *sql.Rows) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		v, err := unmarshal[T](data)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// Tournaments

func (s *SQLStore) CreateTournament(ctx context.Context, t model.Tournament) (model.Tournament, error) {
	defer observeWrite(time.Now())

	t = t.Clone()
	t.Version = 1
	data, err := json.Marshal(t)
	if err != nil {
		return model.Tournament{}, fmt.Errorf("encode tournament: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO tournaments (id, status, version, created_at, data) VALUES (?, ?, ?, ?, ?)`),
		t.ID, string(t.Status), t.Version, t.CreatedAt.UnixNano(), string(data))
	if err != nil {
		if isUniqueViolation(err) {
			return model.Tournament{}, fmt.Errorf("tournament %s: %w", t.ID, ErrAlreadyExists)
		}
		return model.Tournament{}, fmt.Errorf("insert tournament %s: %w", t.ID, err)
	}
	return t, nil
}

func (s *SQLStore) GetTournament(ctx context.Context, id string) (model.Tournament, error) {
	defer observeRead(time.Now())

	var data string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT data FROM tournaments WHERE id = ?`), id).Scan(&data)
	if err != nil {
		return model.Tournament{}, notFound(err, "tournament", id)
	}
	return unmarshal[model.Tournament](data)
}

func (s *SQLStore) saveTournament(ctx context.Context, q querier, t model.Tournament) (model.Tournament, error) {
	next := t.Clone()
	next.Version++
	data, err := json.Marshal(next)
	if err != nil {
		return model.Tournament{}, fmt.Errorf("encode tournament: %w", err)
	}
	res, err := q.ExecContext(ctx, s.rebind(
		`UPDATE tournaments SET status = ?, version = ?, data = ? WHERE id = ? AND version = ?`),
		string(next.Status), next.Version, string(data), t.ID, t.Version)
	if err != nil {
		return model.Tournament{}, fmt.Errorf("update tournament %s: %w", t.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var v int64
		if err := q.QueryRowContext(ctx, s.rebind(`SELECT version FROM tournaments WHERE id = ?`), t.ID).Scan(&v); err != nil {
			return model.Tournament{}, notFound(err, "tournament", t.ID)
		}
		return model.Tournament{}, fmt.Errorf("tournament %s at version %d: %w", t.ID, t.Version, ErrVersionConflict)
	}
	return next, nil
}

func (s *SQLStore) SaveTournament(ctx context.Context, t model.Tournament) (model.Tournament, error) {
	defer observeWrite(time.Now())
	return s.saveTournament(ctx, s.db, t)
}

// Matches

func (s *SQLStore) matchExists(ctx context.Context, q querier, id string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM matches WHERE id = ?`), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("match %s: %w", id, err)
	}
	return true, nil
}

func (s *SQLStore) insertMatch(ctx context.Context, q querier, m model.Match) error {
	exists, err := s.matchExists(ctx, q, m.ID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("match %s: %w", m.ID, ErrAlreadyExists)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode match: %w", err)
	}
	_, err = q.ExecContext(ctx, s.rebind(`INSERT INTO matches
		(id, tournament_id, round, table_no, player1, player2, pair_key, status, ratings_applied, completed_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		m.ID, m.TournamentID, m.Round, m.Table, m.Player1, m.Player2, m.PairKey(),
		string(m.Status), m.RatingsApplied, completedAt(m), string(data))
	if err != nil {
		if isUniqueViolation(err) && !m.IsBye() {
			return fmt.Errorf("%s in %s: %w", m.PairKey(), m.TournamentID, ErrDuplicatePair)
		}
		return fmt.Errorf("insert match %s: %w", m.ID, err)
	}
	return nil
}

func completedAt(m model.Match) int64 {
	if m.CompletedAt.IsZero() {
		return 0
	}
	return m.CompletedAt.UnixNano()
}

func (s *SQLStore) SaveMatch(ctx context.Context, m model.Match) (string, error) {
	defer observeWrite(time.Now())
	if err := s.insertMatch(ctx, s.db, m); err != nil {
		return "", err
	}
	return m.ID, nil
}

func (s *SQLStore) GetMatch(ctx context.Context, id string) (model.Match, error) {
	defer observeRead(time.Now())

	var data string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT data FROM matches WHERE id = ?`), id).Scan(&data)
	if err != nil {
		return model.Match{}, notFound(err, "match", id)
	}
	return unmarshal[model.Match](data)
}

func (s *SQLStore) updateMatch(ctx context.Context, q querier, m model.Match) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode match: %w", err)
	}
	res, err := q.ExecContext(ctx, s.rebind(`UPDATE matches
		SET status = ?, ratings_applied = ?, completed_at = ?, data = ?
		WHERE id = ? AND tournament_id = ? AND pair_key = ?`),
		string(m.Status), m.RatingsApplied, completedAt(m), string(data), m.ID, m.TournamentID, m.PairKey())
	if err != nil {
		return fmt.Errorf("update match %s: %w", m.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		exists, err := s.matchExists(ctx, q, m.ID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("match %s cannot change its players: %w", m.ID, ErrVersionConflict)
		}
		return fmt.Errorf("match %s: %w", m.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLStore) UpdateMatch(ctx context.Context, m model.Match) error {
	defer observeWrite(time.Now())
	return s.updateMatch(ctx, s.db, m)
}

func (s *SQLStore) ListMatches(ctx context.Context, tournamentID string, round int) ([]model.Match, error) {
	defer observeRead(time.Now())

	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT data FROM matches
		WHERE tournament_id = ? AND (? = 0 OR round = ?)
		ORDER BY round, table_no`), tournamentID, round, round)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	return scanAll[model.Match](rows)
}

func (s *SQLStore) PreviousPairs(ctx context.Context, tournamentID string, playerIDs []string) (model.PairSet, error) {
	defer observeRead(time.Now())

	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT player1, player2 FROM matches WHERE tournament_id = ? AND player2 <> ''`), tournamentID)
	if err != nil {
		return nil, fmt.Errorf("previous pairs: %w", err)
	}
	defer rows.Close()

	var keep map[string]bool
	if playerIDs != nil {
		keep = make(map[string]bool, len(playerIDs))
		for _, id := range playerIDs {
			keep[id] = true
		}
	}
	out := model.PairSet{}
	for rows.Next() {
		var a, b string
		if err := rows.Scan(&a, &b); err != nil {
			return nil, fmt.Errorf("scan pair: %w", err)
		}
		if keep == nil || keep[a] && keep[b] {
			out.Add(a, b)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *SQLStore) ByeCounts(ctx context.Context, tournamentID string) (map[string]int, error) {
	defer observeRead(time.Now())

	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT player1, COUNT(*) FROM matches WHERE tournament_id = ? AND player2 = '' GROUP BY player1`), tournamentID)
	if err != nil {
		return nil, fmt.Errorf("bye counts: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan bye count: %w", err)
		}
		out[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *SQLStore) UnratedMatches(ctx context.Context) ([]model.Match, error) {
	defer observeRead(time.Now())

	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT data FROM matches
		WHERE status = ? AND ratings_applied = ? ORDER BY completed_at`), string(model.MatchCompleted), false)
	if err != nil {
		return nil, fmt.Errorf("unrated matches: %w", err)
	}
	return scanAll[model.Match](rows)
}

// Transactions

func (s *SQLStore) CommitRound(ctx context.Context, t model.Tournament, matches []model.Match) (model.Tournament, error) {
	defer observeWrite(time.Now())

	var saved model.Tournament
	err := s.inTx(ctx, func(q querier) error {
		var err error
		if saved, err = s.saveTournament(ctx, q, t); err != nil {
			return err
		}
		for _, m := range matches {
			if err := s.insertMatch(ctx, q, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return model.Tournament{}, err
	}
	return saved, nil
}

func (s *SQLStore) CommitRatings(ctx context.Context, profiles []model.Profile, m model.Match) ([]model.Profile, error) {
	defer observeWrite(time.Now())

	out := make([]model.Profile, len(profiles))
	err := s.inTx(ctx, func(q querier) error {
		for i, p := range profiles {
			saved, err := s.saveProfile(ctx, q, p)
			if err != nil {
				return err
			}
			out[i] = saved
		}
		return s.updateMatch(ctx, q, m)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the database.
func (s *SQLStore) Close() error { return s.db.Close() }
