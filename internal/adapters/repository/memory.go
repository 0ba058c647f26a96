package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/tourney/internal/domain/model"
	"github.com/okian/tourney/pkg/metrics"
)

// MemoryStore is an in-process Store. All reads return copies.
type MemoryStore struct {
	mu          sync.RWMutex
	profiles    map[string]model.Profile
	tournaments map[string]model.Tournament
	matches     map[string]model.Match
	// byTournament keeps match IDs per tournament in insertion order.
	byTournament map[string][]string
	pairs        map[string]model.PairSet
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles:     make(map[string]model.Profile),
		tournaments:  make(map[string]model.Tournament),
		matches:      make(map[string]model.Match),
		byTournament: make(map[string][]string),
		pairs:        make(map[string]model.PairSet),
	}
}

func observeWrite(start time.Time) {
	metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Milliseconds()))
}

func observeRead(start time.Time) {
	metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds()))
}

func (s *MemoryStore) LoadProfile(_ context.Context, playerID string) (model.Profile, error) {
	defer observeRead(time.Now())

	s.mu.RLock()
	p, ok := s.profiles[playerID]
	s.mu.RUnlock()
	if ok {
		return p.Clone(), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.profiles[playerID]; ok {
		return p.Clone(), nil
	}
	p = model.NewProfile(playerID)
	p.Version = 1
	s.profiles[playerID] = p
	return p.Clone(), nil
}

func (s *MemoryStore) SaveProfile(_ context.Context, p model.Profile) (model.Profile, error) {
	defer observeWrite(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveProfileLocked(p)
}

func (s *MemoryStore) saveProfileLocked(p model.Profile) (model.Profile, error) {
	if err := s.checkProfileLocked(p); err != nil {
		return model.Profile{}, err
	}
	p = p.Clone()
	p.Version++
	s.profiles[p.PlayerID] = p
	return p.Clone(), nil
}

func (s *MemoryStore) checkProfileLocked(p model.Profile) error {
	if cur, ok := s.profiles[p.PlayerID]; ok && cur.Version != p.Version || !ok && p.Version != 0 {
		return fmt.Errorf("profile %s at version %d: %w", p.PlayerID, p.Version, ErrVersionConflict)
	}
	return nil
}

func (s *MemoryStore) ListProfiles(_ context.Context) ([]model.Profile, error) {
	defer observeRead(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out, nil
}

func (s *MemoryStore) CreateTournament(_ context.Context, t model.Tournament) (model.Tournament, error) {
	defer observeWrite(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tournaments[t.ID]; ok {
		return model.Tournament{}, fmt.Errorf("tournament %s: %w", t.ID, ErrAlreadyExists)
	}
	t = t.Clone()
	t.Version = 1
	s.tournaments[t.ID] = t
	return t.Clone(), nil
}

func (s *MemoryStore) GetTournament(_ context.Context, id string) (model.Tournament, error) {
	defer observeRead(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tournaments[id]
	if !ok {
		return model.Tournament{}, fmt.Errorf("tournament %s: %w", id, ErrNotFound)
	}
	return t.Clone(), nil
}

func (s *MemoryStore) SaveTournament(_ context.Context, t model.Tournament) (model.Tournament, error) {
	defer observeWrite(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveTournamentLocked(t)
}

func (s *MemoryStore) saveTournamentLocked(t model.Tournament) (model.Tournament, error) {
	cur, ok := s.tournaments[t.ID]
	if !ok {
		return model.Tournament{}, fmt.Errorf("tournament %s: %w", t.ID, ErrNotFound)
	}
	if cur.Version != t.Version {
		return model.Tournament{}, fmt.Errorf("tournament %s at version %d: %w", t.ID, t.Version, ErrVersionConflict)
	}
	t = t.Clone()
	t.Version++
	s.tournaments[t.ID] = t
	return t.Clone(), nil
}

func (s *MemoryStore) SaveMatch(_ context.Context, m model.Match) (string, error) {
	defer observeWrite(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkMatchesLocked([]model.Match{m}); err != nil {
		return "", err
	}
	s.insertMatchLocked(m)
	return m.ID, nil
}

// checkMatchesLocked rejects known IDs and pairs already played, including
// repeats inside the batch.
func (s *MemoryStore) checkMatchesLocked(ms []model.Match) error {
	batch := map[string]model.PairSet{}
	ids := map[string]bool{}
	for _, m := range ms {
		if _, ok := s.matches[m.ID]; ok || ids[m.ID] {
			return fmt.Errorf("match %s: %w", m.ID, ErrAlreadyExists)
		}
		ids[m.ID] = true
		if m.IsBye() {
			continue
		}
		if s.pairs[m.TournamentID].Has(m.Player1, m.Player2) || batch[m.TournamentID].Has(m.Player1, m.Player2) {
			return fmt.Errorf("%s in %s: %w", m.PairKey(), m.TournamentID, ErrDuplicatePair)
		}
		if batch[m.TournamentID] == nil {
			batch[m.TournamentID] = model.PairSet{}
		}
		batch[m.TournamentID].Add(m.Player1, m.Player2)
	}
	return nil
}

func (s *MemoryStore) insertMatchLocked(m model.Match) {
	s.matches[m.ID] = m.Clone()
	s.byTournament[m.TournamentID] = append(s.byTournament[m.TournamentID], m.ID)
	if !m.IsBye() {
		if s.pairs[m.TournamentID] == nil {
			s.pairs[m.TournamentID] = model.PairSet{}
		}
		s.pairs[m.TournamentID].Add(m.Player1, m.Player2)
	}
}

func (s *MemoryStore) GetMatch(_ context.Context, id string) (model.Match, error) {
	defer observeRead(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[id]
	if !ok {
		return model.Match{}, fmt.Errorf("match %s: %w", id, ErrNotFound)
	}
	return m.Clone(), nil
}

func (s *MemoryStore) UpdateMatch(_ context.Context, m model.Match) error {
	defer observeWrite(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateMatchLocked(m)
}

func (s *MemoryStore) updateMatchLocked(m model.Match) error {
	cur, ok := s.matches[m.ID]
	if !ok {
		return fmt.Errorf("match %s: %w", m.ID, ErrNotFound)
	}
	if cur.TournamentID != m.TournamentID || cur.PairKey() != m.PairKey() {
		return fmt.Errorf("match %s cannot change its players: %w", m.ID, ErrVersionConflict)
	}
	s.matches[m.ID] = m.Clone()
	return nil
}

func (s *MemoryStore) ListMatches(_ context.Context, tournamentID string, round int) ([]model.Match, error) {
	defer observeRead(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Match
	for _, id := range s.byTournament[tournamentID] {
		m := s.matches[id]
		if round == 0 || m.Round == round {
			out = append(out, m.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Round != out[j].Round {
			return out[i].Round < out[j].Round
		}
		return out[i].Table < out[j].Table
	})
	return out, nil
}

func (s *MemoryStore) PreviousPairs(_ context.Context, tournamentID string, playerIDs []string) (model.PairSet, error) {
	defer observeRead(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	var keep map[string]bool
	if playerIDs != nil {
		keep = make(map[string]bool, len(playerIDs))
		for _, id := range playerIDs {
			keep[id] = true
		}
	}
	out := model.PairSet{}
	for _, id := range s.byTournament[tournamentID] {
		m := s.matches[id]
		if m.IsBye() || keep != nil && (!keep[m.Player1] || !keep[m.Player2]) {
			continue
		}
		out.Add(m.Player1, m.Player2)
	}
	return out, nil
}

func (s *MemoryStore) ByeCounts(_ context.Context, tournamentID string) (map[string]int, error) {
	defer observeRead(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[string]int{}
	for _, id := range s.byTournament[tournamentID] {
		if m := s.matches[id]; m.IsBye() {
			out[m.Player1]++
		}
	}
	return out, nil
}

func (s *MemoryStore) UnratedMatches(_ context.Context) ([]model.Match, error) {
	defer observeRead(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Match
	for _, m := range s.matches {
		if m.Status == model.MatchCompleted && !m.RatingsApplied {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.Before(out[j].CompletedAt) })
	return out, nil
}

func (s *MemoryStore) CommitRound(_ context.Context, t model.Tournament, matches []model.Match) (model.Tournament, error) {
	defer observeWrite(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkMatchesLocked(matches); err != nil {
		return model.Tournament{}, err
	}
	saved, err := s.saveTournamentLocked(t)
	if err != nil {
		return model.Tournament{}, err
	}
	for _, m := range matches {
		s.insertMatchLocked(m)
	}
	return saved, nil
}

func (s *MemoryStore) CommitRatings(_ context.Context, profiles []model.Profile, m model.Match) ([]model.Profile, error) {
	defer observeWrite(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range profiles {
		if err := s.checkProfileLocked(p); err != nil {
			return nil, err
		}
	}
	if _, ok := s.matches[m.ID]; !ok {
		return nil, fmt.Errorf("match %s: %w", m.ID, ErrNotFound)
	}
	if err := s.updateMatchLocked(m); err != nil {
		return nil, err
	}
	out := make([]model.Profile, len(profiles))
	for i, p := range profiles {
		// Checked above; cannot fail.
		out[i], _ = s.saveProfileLocked(p)
	}
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
