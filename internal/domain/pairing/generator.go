package pairing

import (
	"context"
	"errors"
	"math"
	"math/bits"
	"sort"

	"github.com/bits-and-blooms/bitset"

	"github.com/okian/tourney/internal/domain/model"
)

// Generator defaults.
const (
	DefaultExhaustiveLimit = 12
	DefaultOptimalLimit    = 20
	DefaultStepBudget      = 2_000_000

	// Hard ceiling for the bitmask solver; its tables grow as 2^n.
	maxOptimalLimit  = 24
	ctxCheckInterval = 1024
)

// Strategies reported by Plan.
const (
	StrategyExhaustive = "exhaustive"
	StrategyOptimal    = "optimal"
	StrategyGreedy     = "greedy"
)

// Generator produces rematch free partitions of a field.
//
// Fields up to the exhaustive limit are enumerated in full and the best set
// is picked by Select. Larger fields up to the optimal limit are solved
// exactly with a bitmask dynamic program over maximum total pair score.
// Anything larger falls back to a best-first depth-first search that takes
// the first complete partition, trying higher scoring opponents first.
// Every strategy honours the step budget and the context.
type Generator struct {
	exhaustiveLimit int
	optimalLimit    int
	stepBudget      int
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithExhaustiveLimit sets the largest field (after the bye) enumerated in full.
func WithExhaustiveLimit(n int) GeneratorOption {
	return func(g *Generator) {
		if n >= 0 {
			g.exhaustiveLimit = n
		}
	}
}

// WithOptimalLimit sets the largest field solved exactly by the bitmask solver.
func WithOptimalLimit(n int) GeneratorOption {
	return func(g *Generator) {
		if n >= 0 {
			g.optimalLimit = min(n, maxOptimalLimit)
		}
	}
}

// WithStepBudget caps the search steps of one call.
func WithStepBudget(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.stepBudget = n
		}
	}
}

// NewGenerator returns a Generator with defaults overridden by opts.
func NewGenerator(opts ...GeneratorOption) *Generator {
	g := &Generator{
		exhaustiveLimit: DefaultExhaustiveLimit,
		optimalLimit:    DefaultOptimalLimit,
		stepBudget:      DefaultStepBudget,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Plan is the chosen round together with how it was found.
type Plan struct {
	Best      ScoredSet
	Strategy  string
	Steps     int
	Evaluated int
}

// Enumerate returns every rematch free partition of ids in generation order.
// For an odd field one player sits out with a bye, appended to every set.
func (g *Generator) Enumerate(ctx context.Context, ids []string, history model.PairSet, byes map[string]int) ([]Set, error) {
	return g.enumerateWith(g.newSearch(ctx, history), ids, byes)
}

// Search returns one rematch free partition using the bitmask solver or the
// best-first search depending on field size. score weighs a pair.
func (g *Generator) Search(ctx context.Context, ids []string, history model.PairSet, byes map[string]int, score func(a, b string) float64) (Set, error) {
	return g.searchWith(g.newSearch(ctx, history), ids, byes, score)
}

// Plan generates, scores and selects the round for players.
func (g *Generator) Plan(ctx context.Context, scorer *Scorer, players []Player, history model.PairSet, byes map[string]int) (Plan, error) {
	ids := make([]string, len(players))
	byID := make(map[string]Player, len(players))
	for i, p := range players {
		ids[i] = p.ID
		byID[p.ID] = p
	}
	s := g.newSearch(ctx, history)

	field := len(ids) - len(ids)%2
	if field <= g.exhaustiveLimit {
		sets, err := g.enumerateWith(s, ids, byes)
		if err != nil {
			return Plan{Strategy: StrategyExhaustive, Steps: s.steps}, err
		}
		scored := make([]ScoredSet, len(sets))
		for i, set := range sets {
			scored[i] = scorer.ScoreSet(set, byID)
		}
		best, err := Select(scored)
		return Plan{Best: best, Strategy: StrategyExhaustive, Steps: s.steps, Evaluated: len(sets)}, err
	}

	strategy := StrategyGreedy
	if field <= g.optimalLimit {
		strategy = StrategyOptimal
	}
	weight := func(a, b string) float64 { return scorer.ScorePair(byID[a], byID[b]).Score }
	set, err := g.searchWith(s, ids, byes, weight)
	if err != nil {
		return Plan{Strategy: strategy, Steps: s.steps}, err
	}
	return Plan{Best: scorer.ScoreSet(set, byID), Strategy: strategy, Steps: s.steps, Evaluated: 1}, nil
}

func (g *Generator) enumerateWith(s *search, ids []string, byes map[string]int) ([]Set, error) {
	var out []Set
	bye, err := s.withBye(ids, byes, func(field []string) error {
		out = out[:0]
		if err := s.enumerate(field, func(set Set) { out = append(out, set) }); err != nil {
			return err
		}
		if len(out) == 0 {
			return ErrNoValidPairing
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if bye != "" {
		for i := range out {
			out[i] = append(out[i], Bye(bye))
		}
	}
	return out, nil
}

func (g *Generator) searchWith(s *search, ids []string, byes map[string]int, weight func(a, b string) float64) (Set, error) {
	var set Set
	bye, err := s.withBye(ids, byes, func(field []string) error {
		var err error
		if len(field) <= g.optimalLimit {
			set, err = s.optimal(field, weight)
		} else {
			set, err = s.greedy(field, weight)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if bye != "" {
		set = append(set, Bye(bye))
	}
	return set, nil
}

type search struct {
	ctx     context.Context
	history model.PairSet
	budget  int
	steps   int
}

func (g *Generator) newSearch(ctx context.Context, history model.PairSet) *search {
	if history == nil {
		history = model.PairSet{}
	}
	return &search{ctx: ctx, history: history, budget: g.stepBudget}
}

func (s *search) step() error {
	s.steps++
	if s.steps > s.budget {
		return ErrSearchBudgetExceeded
	}
	if s.steps%ctxCheckInterval == 0 {
		return s.ctx.Err()
	}
	return nil
}

// byeOrder lists bye candidates: fewest prior byes first, then from the end
// of the list backwards.
func byeOrder(ids []string, byes map[string]int) []int {
	idx := make([]int, len(ids))
	for i := range idx {
		idx[i] = len(ids) - 1 - i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return byes[ids[idx[a]]] < byes[ids[idx[b]]]
	})
	return idx
}

// withBye calls fn on the even field. For an odd field it tries bye
// candidates in byeOrder until fn succeeds or fails with something other
// than ErrNoValidPairing.
func (s *search) withBye(ids []string, byes map[string]int, fn func(field []string) error) (string, error) {
	if len(ids) == 0 {
		return "", ErrNoValidPairing
	}
	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	if len(ids)%2 == 0 {
		return "", fn(ids)
	}
	for _, i := range byeOrder(ids, byes) {
		field := make([]string, 0, len(ids)-1)
		field = append(field, ids[:i]...)
		field = append(field, ids[i+1:]...)
		err := fn(field)
		if errors.Is(err, ErrNoValidPairing) {
			continue
		}
		return ids[i], err
	}
	return "", ErrNoValidPairing
}

// enumerate pairs the first free player with every later free player it has
// not met, recursing until everyone is placed.
func (s *search) enumerate(ids []string, emit func(Set)) error {
	used := bitset.New(uint(len(ids)))
	cur := make(Set, 0, len(ids)/2)

	var rec func() error
	rec = func() error {
		if err := s.step(); err != nil {
			return err
		}
		i, ok := used.NextClear(0)
		if !ok {
			emit(append(Set(nil), cur...))
			return nil
		}
		used.Set(i)
		defer used.Clear(i)
		for j := i + 1; j < uint(len(ids)); j++ {
			if used.Test(j) || s.history.Has(ids[i], ids[j]) {
				continue
			}
			used.Set(j)
			cur = append(cur, Candidate{PlayerA: ids[i], PlayerB: ids[j]})
			err := rec()
			cur = cur[:len(cur)-1]
			used.Clear(j)
			if err != nil {
				return err
			}
		}
		return nil
	}
	return rec()
}

// optimal finds the partition with the maximum total weight. Among equal
// totals it keeps the one enumerate would produce first.
func (s *search) optimal(ids []string, weight func(a, b string) float64) (Set, error) {
	n := len(ids)
	if n > maxOptimalLimit {
		return nil, ErrSearchBudgetExceeded
	}
	w := weights(ids, s.history, weight)

	size := 1 << n
	best := make([]float64, size)
	choice := make([]int8, size)
	seen := bitset.New(uint(size))

	var solve func(mask uint32) (float64, error)
	solve = func(mask uint32) (float64, error) {
		if mask == 0 {
			return 0, nil
		}
		if seen.Test(uint(mask)) {
			return best[mask], nil
		}
		if err := s.step(); err != nil {
			return 0, err
		}
		i := bits.TrailingZeros32(mask)
		rest := mask &^ (1 << i)
		val, pick := math.Inf(-1), -1
		for r := rest; r != 0; r &= r - 1 {
			j := bits.TrailingZeros32(r)
			if math.IsNaN(w[i][j]) {
				continue
			}
			sub, err := solve(rest &^ (1 << j))
			if err != nil {
				return 0, err
			}
			if math.IsInf(sub, -1) {
				continue
			}
			if v := sub + w[i][j]; v > val {
				val, pick = v, j
			}
		}
		best[mask], choice[mask] = val, int8(pick)
		seen.Set(uint(mask))
		return val, nil
	}

	full := uint32(size - 1)
	total, err := solve(full)
	if err != nil {
		return nil, err
	}
	if math.IsInf(total, -1) {
		return nil, ErrNoValidPairing
	}

	set := make(Set, 0, n/2)
	for mask := full; mask != 0; {
		i := bits.TrailingZeros32(mask)
		j := int(choice[mask])
		set = append(set, Candidate{PlayerA: ids[i], PlayerB: ids[j]})
		mask &^= 1<<i | 1<<j
	}
	return set, nil
}

// greedy is a depth-first search that tries each player's opponents in
// descending weight and stops at the first complete partition.
func (s *search) greedy(ids []string, weight func(a, b string) float64) (Set, error) {
	n := len(ids)
	w := weights(ids, s.history, weight)
	order := make([][]int, n)
	for i := range ids {
		for j := i + 1; j < n; j++ {
			if !math.IsNaN(w[i][j]) {
				order[i] = append(order[i], j)
			}
		}
		row := w[i]
		sort.SliceStable(order[i], func(a, b int) bool { return row[order[i][a]] > row[order[i][b]] })
	}

	used := bitset.New(uint(n))
	cur := make(Set, 0, n/2)

	var rec func() (bool, error)
	rec = func() (bool, error) {
		if err := s.step(); err != nil {
			return false, err
		}
		i, ok := used.NextClear(0)
		if !ok {
			return true, nil
		}
		used.Set(i)
		for _, j := range order[i] {
			if used.Test(uint(j)) {
				continue
			}
			used.Set(uint(j))
			cur = append(cur, Candidate{PlayerA: ids[i], PlayerB: ids[j]})
			done, err := rec()
			if done || err != nil {
				return done, err
			}
			cur = cur[:len(cur)-1]
			used.Clear(uint(j))
		}
		used.Clear(i)
		return false, nil
	}

	done, err := rec()
	if err != nil {
		return nil, err
	}
	if !done {
		return nil, ErrNoValidPairing
	}
	return cur, nil
}

// weights is the pair weight matrix with NaN marking a rematch.
func weights(ids []string, history model.PairSet, weight func(a, b string) float64) [][]float64 {
	n := len(ids)
	w := make([][]float64, n)
	for i := range w {
		w[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := math.NaN()
			if !history.Has(ids[i], ids[j]) {
				v = weight(ids[i], ids[j])
			}
			w[i][j], w[j][i] = v, v
		}
	}
	return w
}
