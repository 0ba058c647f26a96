package repository

import (
	"context"
	"sync"
	"time"

	"github.com/okian/tourney/internal/domain/model"
	"github.com/okian/tourney/internal/domain/types"
	"github.com/okian/tourney/pkg/metrics"
	"github.com/twmb/murmur3"
)

// Ladder is an in-memory leaderboard ordered by conservative rating
// descending, then player ID ascending. It is a treap with subtree sizes,
// so updates, ranks and top-N reads are O(log n) expected.
type Ladder struct {
	mu   sync.RWMutex
	root *node
	byID map[string]types.Entry
}

type node struct {
	id    string
	score float64
	prio  uint32
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	n.size = 1 + nsize(n.left) + nsize(n.right)
}

// before reports whether (aScore, aID) ranks ahead of (bScore, bID).
func before(aScore float64, aID string, bScore float64, bID string) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, score float64) *node {
	if n == nil {
		return &node{id: id, score: score, prio: murmur3.StringSum32(id), size: 1}
	}
	if before(score, id, n.score, n.id) {
		n.left = insert(n.left, id, score)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, score)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func remove(n *node, id string, score float64) *node {
	if n == nil {
		return nil
	}
	switch {
	case n.id == id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = remove(n.right, id, score)
		} else {
			n = rotateLeft(n)
			n.left = remove(n.left, id, score)
		}
	case before(score, id, n.score, n.id):
		n.left = remove(n.left, id, score)
	default:
		n.right = remove(n.right, id, score)
	}
	fix(n)
	return n
}

// collect appends up to limit IDs in rank order.
func collect(n *node, limit int, out *[]string) {
	if n == nil || len(*out) >= limit {
		return
	}
	collect(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, n.id)
	}
	collect(n.right, limit, out)
}

// NewLadder returns an empty ladder.
func NewLadder() *Ladder {
	return &Ladder{byID: make(map[string]types.Entry)}
}

// Seed loads every stored profile.
func (l *Ladder) Seed(ctx context.Context, store RatingStore) error {
	profiles, err := store.ListProfiles(ctx)
	if err != nil {
		return err
	}
	for _, p := range profiles {
		l.Set(p.PlayerID, p.Overall)
	}
	return nil
}

// Set inserts or moves a player.
func (l *Ladder) Set(playerID string, r model.Rating) {
	defer observeWrite(time.Now())

	e := types.Entry{
		PlayerID:     playerID,
		Conservative: r.Conservative(),
		Mean:         r.Mean,
		Uncertainty:  r.Uncertainty,
	}

	l.mu.Lock()
	if old, ok := l.byID[playerID]; ok {
		l.root = remove(l.root, playerID, old.Conservative)
	}
	l.byID[playerID] = e
	l.root = insert(l.root, playerID, e.Conservative)
	n := len(l.byID)
	l.mu.Unlock()

	metrics.UpdateRepositoryRecordsTotal(n)
	metrics.UpdatePlayersRated(n)
}

// Remove drops a player. Unknown IDs are ignored.
func (l *Ladder) Remove(playerID string) {
	l.mu.Lock()
	if old, ok := l.byID[playerID]; ok {
		l.root = remove(l.root, playerID, old.Conservative)
		delete(l.byID, playerID)
	}
	n := len(l.byID)
	l.mu.Unlock()

	metrics.UpdateRepositoryRecordsTotal(n)
	metrics.UpdatePlayersRated(n)
}

// Rank returns a player's entry with its 1-based position.
func (l *Ladder) Rank(_ context.Context, playerID string) (types.Entry, error) {
	defer observeRead(time.Now())

	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.byID[playerID]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return types.Entry{}, ErrNotFound
	}
	ahead := 0
	for n := l.root; n != nil; {
		switch {
		case n.id == playerID:
			ahead += nsize(n.left)
			n = nil
		case before(e.Conservative, playerID, n.score, n.id):
			n = n.left
		default:
			ahead += nsize(n.left) + 1
			n = n.right
		}
	}
	e.Rank = ahead + 1
	return e, nil
}

// TopN returns the best n entries.
func (l *Ladder) TopN(_ context.Context, n int) ([]types.Entry, error) {
	defer observeRead(time.Now())

	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]string, 0, min(n, len(l.byID)))
	collect(l.root, n, &ids)
	out := make([]types.Entry, len(ids))
	for i, id := range ids {
		out[i] = l.byID[id]
		out[i].Rank = i + 1
	}
	return out, nil
}

// Count returns the number of ranked players.
func (l *Ladder) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byID)
}
