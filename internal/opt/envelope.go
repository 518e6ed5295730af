package opt

import "math"

// LeftBoundLine returns p.Y + L*(x - p.X) for each x: the line of slope +L
// through p. Left of p it bounds the objective from below.
func LeftBoundLine(p Sample, L float64, xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = p.Y + L*(x-p.X)
	}
	return out
}

// RightBoundLine returns p.Y - L*(x - p.X) for each x: the line of slope -L
// through p. Right of p it bounds the objective from below.
func RightBoundLine(p Sample, L float64, xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = p.Y - L*(x-p.X)
	}
	return out
}

// LowerEnvelopeAt evaluates the saw-tooth minorant max_p(p.Y - L*|x - p.X|)
// over samples at each x. Used for diagnostics only; the iterator never needs it.
func LowerEnvelopeAt(xs []float64, samples []Sample, L float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		v := math.Inf(-1)
		for _, p := range samples {
			if c := p.Y - L*math.Abs(x-p.X); c > v {
				v = c
			}
		}
		out[i] = v
	}
	return out
}

// Intersect finds where the descending line anchored at left meets the
// ascending line anchored at right. Lower is the envelope value there, a
// certified lower bound on f over [left.X, right.X]; Upper is f at the
// intersection. f is evaluated exactly once.
func Intersect(left, right Sample, L float64, f Objective) (Candidate, error) {
	if err := checkLipschitz(L); err != nil {
		return Candidate{}, err
	}
	if !(left.X < right.X) {
		return Candidate{}, &DomainError{Field: "pair", Value: left.X, Reason: "left point must be strictly less than right point"}
	}

	x, lower := pairMinimum(left, right, L)

	upper, err := evaluate(f, x)
	return Candidate{X: x, Lower: lower, Upper: upper}, err
}

// pairMinimum is the lowest point of the envelope between two adjacent samples.
func pairMinimum(left, right Sample, L float64) (x, lower float64) {
	x = (left.Y-right.Y)/(2*L) + (left.X+right.X)/2
	lower = left.Y - L*(x-left.X)
	return x, lower
}

// EnvelopeMinimum returns the lowest point of the envelope spanned by sorted
// samples. It needs no objective evaluations.
func EnvelopeMinimum(samples []Sample, L float64) Sample {
	best := Sample{X: math.NaN(), Y: math.Inf(1)}
	for j := 0; j+1 < len(samples); j++ {
		if x, lower := pairMinimum(samples[j], samples[j+1], L); lower < best.Y {
			best = Sample{X: x, Y: lower}
		}
	}
	return best
}

func checkLipschitz(L float64) error {
	if !(L > 0) || math.IsInf(L, 0) {
		return &DomainError{Field: "lipschitz constant", Value: L, Reason: "must be positive and finite"}
	}
	return nil
}
