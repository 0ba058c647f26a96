// Package rating implements the Gaussian skill model: win probabilities,
// the TrueSkill-style update after a match, inactivity decay and the
// bookkeeping that folds a rated match into a player profile.
package rating

import (
	"fmt"
	"math"
	"time"

	"github.com/okian/tourney/internal/domain/model"
)

// Engine defaults.
const (
	DefaultBeta            = 200.0
	DefaultDrawProbability = 0.1
	DefaultGraceDays       = 30
	DefaultMaxDecay        = 100.0
)

// Engine holds the model constants. It is immutable after New and safe for
// concurrent use.
type Engine struct {
	beta      float64
	drawProb  float64
	graceDays int
	maxDecay  float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithBeta sets the performance variance scale.
func WithBeta(beta float64) Option {
	return func(e *Engine) {
		if beta > 0 {
			e.beta = beta
		}
	}
}

// WithDrawProbability sets the draw margin used to scale decisive updates.
func WithDrawProbability(p float64) Option {
	return func(e *Engine) {
		if p >= 0 && p < 1 {
			e.drawProb = p
		}
	}
}

// WithInactivityWindow sets how many idle days pass before decay starts.
func WithInactivityWindow(days int) Option {
	return func(e *Engine) {
		if days >= 0 {
			e.graceDays = days
		}
	}
}

// WithMaxDecay caps the uncertainty added by inactivity.
func WithMaxDecay(sigma float64) Option {
	return func(e *Engine) {
		if sigma >= 0 {
			e.maxDecay = sigma
		}
	}
}

// New returns an Engine with defaults overridden by opts.
func New(opts ...Option) *Engine {
	e := &Engine{
		beta:      DefaultBeta,
		drawProb:  DefaultDrawProbability,
		graceDays: DefaultGraceDays,
		maxDecay:  DefaultMaxDecay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WinProbability is the probability that a beats b.
func (e *Engine) WinProbability(a, b model.Rating) float64 {
	combined := math.Sqrt(a.Uncertainty*a.Uncertainty + b.Uncertainty*b.Uncertainty)
	if combined == 0 {
		switch {
		case a.Mean > b.Mean:
			return 1
		case a.Mean < b.Mean:
			return 0
		default:
			return 0.5
		}
	}
	return NormalCDF((a.Mean - b.Mean) / (math.Sqrt2 * combined))
}

// UpdateAfterMatch returns both ratings after a match with outcome seen from a.
// A draw leaves means and uncertainties unchanged; only GamesPlayed moves.
func (e *Engine) UpdateAfterMatch(a, b model.Rating, outcome model.Outcome) (model.Rating, model.Rating, error) {
	if !outcome.Valid() {
		return a, b, fmt.Errorf("%w: %d", ErrInvalidOutcome, int(outcome))
	}
	if err := checkFinite(a, b); err != nil {
		return a, b, err
	}

	va, vb := a.Uncertainty*a.Uncertainty, b.Uncertainty*b.Uncertainty
	c := math.Sqrt(2*e.beta*e.beta + va + vb)

	// v and w are taken from the winner's side; sign points the means at the
	// winner. A draw leaves all three zero.
	var v, w, sign float64
	switch outcome {
	case model.OutcomeAWins:
		p := NormalCDF((a.Mean - b.Mean) / c)
		v = NormalPDF(p) / (1 - e.drawProb)
		w = v * (v + p)
		sign = 1
	case model.OutcomeBWins:
		p := NormalCDF((b.Mean - a.Mean) / c)
		v = NormalPDF(p) / (1 - e.drawProb)
		w = v * (v + p)
		sign = -1
	}

	na, nb := a, b
	na.Mean = a.Mean + sign*va/c*v
	nb.Mean = b.Mean - sign*vb/c*v
	na.Uncertainty = shrink(va, c, w)
	nb.Uncertainty = shrink(vb, c, w)
	na.GamesPlayed++
	nb.GamesPlayed++

	if err := checkFinite(na, nb); err != nil {
		return a, b, err
	}
	return na, nb, nil
}

func shrink(variance, c, w float64) float64 {
	s := math.Sqrt(math.Max(variance*(1-variance/(c*c)*w), model.MinUncertainty))
	return model.ClampUncertainty(s)
}

// ApplyInactivityDecay widens uncertainty by one point per idle day beyond the
// grace window, capped by the max decay and by MaxUncertainty. The result
// depends only on r and now, so calling it on the same stored rating twice
// never compounds.
func (e *Engine) ApplyInactivityDecay(r model.Rating, now time.Time) model.Rating {
	if r.LastActiveAt.IsZero() || !now.After(r.LastActiveAt) {
		return r
	}
	days := int(now.Sub(r.LastActiveAt) / (24 * time.Hour))
	if days <= e.graceDays {
		return r
	}
	penalty := math.Min(float64(days-e.graceDays), e.maxDecay)
	r.Uncertainty = math.Min(r.Uncertainty+penalty, model.MaxUncertainty)
	return r
}

func checkFinite(rs ...model.Rating) error {
	for _, r := range rs {
		for _, f := range [...]float64{r.Mean, r.Uncertainty} {
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return fmt.Errorf("%w: mean=%v uncertainty=%v", ErrNumericDomain, r.Mean, r.Uncertainty)
			}
		}
	}
	return nil
}
