package pairing

import "sort"

// Select returns the highest scoring set. Equal scores keep input order.
func Select(sets []ScoredSet) (ScoredSet, error) {
	if len(sets) == 0 {
		return ScoredSet{}, ErrNoValidPairing
	}
	ranked := append([]ScoredSet(nil), sets...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked[0], nil
}
