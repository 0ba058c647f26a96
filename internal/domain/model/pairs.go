package model

import "strconv"

// PairKey returns an order-independent key for two player IDs. The first ID
// is length-prefixed, so IDs containing the separator cannot collide.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return strconv.Itoa(len(a)) + ":" + a + "|" + b
}

// PairSet holds the unordered pairs already played in a tournament.
type PairSet map[string]struct{}

// NewPairSet builds a set from pairs of player IDs.
func NewPairSet(pairs ...[2]string) PairSet {
	s := make(PairSet, len(pairs))
	for _, p := range pairs {
		s.Add(p[0], p[1])
	}
	return s
}

// Add records that a and b have played.
func (s PairSet) Add(a, b string) { s[PairKey(a, b)] = struct{}{} }

// Has reports whether a and b have played, in either order.
func (s PairSet) Has(a, b string) bool {
	_, ok := s[PairKey(a, b)]
	return ok
}
