package simulation

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/okian/tourney/internal/domain/model"
	"github.com/okian/tourney/internal/domain/pairing"
)

// performanceBeta scales how much hidden skill decides a single match.
const performanceBeta = 200.0

var archetypes = []string{
	pairing.Aggro, pairing.Control, pairing.Midrange,
	pairing.Combo, pairing.Tempo, pairing.Ramp,
}

// Player is a simulated entrant with a hidden true skill.
type Player struct {
	ID        string  `json:"id"`
	Skill     float64 `json:"skill"`
	Archetype string  `json:"archetype"`
}

// Field generates players and decides match results. It is safe for
// concurrent use.
type Field struct {
	mu       sync.Mutex
	rng      *rand.Rand
	drawRate float64
	players  map[string]Player
	ordered  []Player
}

// NewField draws n players with skills spread normally around the default
// rating.
func NewField(seed int64, n int, spread, drawRate float64) *Field {
	rng := rand.New(rand.NewSource(seed))
	f := &Field{rng: rng, drawRate: drawRate, players: make(map[string]Player, n)}
	for i := 0; i < n; i++ {
		p := Player{
			ID:        fmt.Sprintf("sim-%03d", i+1),
			Skill:     model.DefaultMean + rng.NormFloat64()*spread,
			Archetype: archetypes[rng.Intn(len(archetypes))],
		}
		f.players[p.ID] = p
		f.ordered = append(f.ordered, p)
	}
	return f
}

// Players returns the field in registration order.
func (f *Field) Players() []Player {
	out := make([]Player, len(f.ordered))
	copy(out, f.ordered)
	return out
}

// WinProbability is the chance that a beats b given hidden skills.
func (f *Field) WinProbability(a, b string) float64 {
	diff := f.players[a].Skill - f.players[b].Skill
	return distuv.UnitNormal.CDF(diff / (math.Sqrt2 * performanceBeta))
}

// Play decides the result of m. Draws are best-of-three splits with a
// drawn third game; decisive results are 2-0 or 2-1.
func (f *Field) Play(m model.Match) reportRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	req := reportRequest{
		Player1Deck: f.players[m.Player1].Archetype,
		Player2Deck: f.players[m.Player2].Archetype,
		ReportID:    "sim-" + m.ID,
	}
	if f.rng.Float64() < f.drawRate {
		req.Games = []model.Game{{Winner: m.Player1}, {Winner: m.Player2}, {}}
		return req
	}

	winner, loser := m.Player1, m.Player2
	if f.rng.Float64() >= f.WinProbability(m.Player1, m.Player2) {
		winner, loser = loser, winner
	}
	req.Winner = winner
	if f.rng.Intn(2) == 0 {
		req.Games = []model.Game{{Winner: winner}, {Winner: winner}}
	} else {
		req.Games = []model.Game{{Winner: winner}, {Winner: loser}, {Winner: winner}}
	}
	return req
}
