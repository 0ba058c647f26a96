package pairing

import "errors"

var (
	// ErrNoValidPairing means no partition of the players avoids every rematch.
	ErrNoValidPairing = errors.New("no valid pairings")
	// ErrSearchBudgetExceeded means the search hit its step budget before finishing.
	ErrSearchBudgetExceeded = errors.New("pairing search budget exceeded")
)
