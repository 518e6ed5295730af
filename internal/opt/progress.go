package opt

import (
	"log/slog"
	"math"
)

// negativeGapTolerance absorbs rounding in Upper - Lower before the tracker
// treats a negative gap as evidence that L is too small.
const negativeGapTolerance = 1e-12

// Tracker follows the incumbent (best sampled point) and the certified lower
// bound of a run.
type Tracker struct {
	best         Sample
	lowerBound   float64
	lowerHistory []float64
	gapHistory   []float64
	violations   int
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		best:         Sample{X: math.NaN(), Y: math.Inf(1)},
		lowerBound:   math.Inf(-1),
		lowerHistory: []float64{},
		gapHistory:   []float64{},
	}
}

// Observe records a sampled point and updates the incumbent.
func (t *Tracker) Observe(s Sample) {
	if s.Y < t.best.Y {
		t.best = s
	}
}

// Update records the candidate selected in one iteration. Its Lower is the
// minimum over the whole envelope and therefore the current global lower bound.
func (t *Tracker) Update(iteration int, c Candidate) {
	t.lowerBound = c.Lower
	t.lowerHistory = append(t.lowerHistory, c.Lower)
	t.gapHistory = append(t.gapHistory, c.Delta())

	if c.Delta() < -negativeGapTolerance {
		t.violations++
		slog.Warn("Objective below lower envelope, Lipschitz constant is too small",
			"iteration", iteration,
			"x", c.X,
			"lower", c.Lower,
			"upper", c.Upper,
		)
		return
	}

	slog.Debug("Iteration bound",
		"iteration", iteration,
		"lower_bound", c.Lower,
		"delta", c.Delta(),
		"best", t.best.Y,
	)
}

// Best returns the best sampled point seen so far.
func (t *Tracker) Best() Sample {
	return t.best
}

// LowerBound returns the latest certified lower bound, or -Inf before the
// first iteration.
func (t *Tracker) LowerBound() float64 {
	return t.lowerBound
}

// Gap returns best - lowerBound, the global optimality gap.
func (t *Tracker) Gap() float64 {
	return t.best.Y - t.lowerBound
}

// History returns a copy of the lower bound after each iteration.
func (t *Tracker) History() []float64 {
	return append([]float64{}, t.lowerHistory...)
}

// Gaps returns a copy of the selected-candidate gap after each iteration.
func (t *Tracker) Gaps() []float64 {
	return append([]float64{}, t.gapHistory...)
}

// Violations counts iterations whose gap was negative.
func (t *Tracker) Violations() int {
	return t.violations
}

// Reset clears the tracker's state.
func (t *Tracker) Reset() {
	*t = *NewTracker()
}
