package pairing

// Archetype names used by the default matchup table.
const (
	Aggro    = "Aggro"
	Control  = "Control"
	Midrange = "Midrange"
	Combo    = "Combo"
	Tempo    = "Tempo"
	Ramp     = "Ramp"
)

// MatchupTable maps row archetype -> column archetype -> probability that the
// row archetype wins.
type MatchupTable map[string]map[string]float64

// DefaultMatchups returns a fresh copy of the built-in table.
func DefaultMatchups() MatchupTable {
	return MatchupTable{
		Aggro:    {Aggro: 0.50, Control: 0.65, Midrange: 0.55, Combo: 0.70, Tempo: 0.45, Ramp: 0.75},
		Control:  {Aggro: 0.35, Control: 0.50, Midrange: 0.60, Combo: 0.40, Tempo: 0.55, Ramp: 0.45},
		Midrange: {Aggro: 0.45, Control: 0.40, Midrange: 0.50, Combo: 0.65, Tempo: 0.60, Ramp: 0.50},
		Combo:    {Aggro: 0.30, Control: 0.60, Midrange: 0.35, Combo: 0.50, Tempo: 0.40, Ramp: 0.80},
		Tempo:    {Aggro: 0.55, Control: 0.45, Midrange: 0.40, Combo: 0.60, Tempo: 0.50, Ramp: 0.65},
		Ramp:     {Aggro: 0.25, Control: 0.55, Midrange: 0.50, Combo: 0.20, Tempo: 0.35, Ramp: 0.50},
	}
}

// Lookup returns table[a][b] and whether it is defined.
func (t MatchupTable) Lookup(a, b string) (float64, bool) {
	row, ok := t[a]
	if !ok {
		return 0, false
	}
	v, ok := row[b]
	return v, ok
}
