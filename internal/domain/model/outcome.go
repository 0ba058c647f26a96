package model

// Outcome is a match result seen from player A (player1).
type Outcome int

const (
	OutcomeAWins Outcome = iota + 1
	OutcomeBWins
	OutcomeDraw
)

// Valid reports whether o is one of the three defined outcomes.
func (o Outcome) Valid() bool {
	return o >= OutcomeAWins && o <= OutcomeDraw
}

// Score is the actual outcome for player A: 1, 0 or 0.5.
func (o Outcome) Score() float64 {
	switch o {
	case OutcomeAWins:
		return 1
	case OutcomeBWins:
		return 0
	default:
		return 0.5
	}
}

func (o Outcome) String() string {
	switch o {
	case OutcomeAWins:
		return "a_wins"
	case OutcomeBWins:
		return "b_wins"
	case OutcomeDraw:
		return "draw"
	default:
		return "invalid"
	}
}

// Result is a single player's view of an outcome.
type Result string

const (
	ResultWin  Result = "win"
	ResultLoss Result = "loss"
	ResultDraw Result = "draw"
)

// ResultFor returns the result for player A (forA) or player B.
func (o Outcome) ResultFor(forA bool) Result {
	switch {
	case o == OutcomeDraw:
		return ResultDraw
	case (o == OutcomeAWins) == forA:
		return ResultWin
	default:
		return ResultLoss
	}
}
