package opt

import "math"

// Objective is the function being minimised. It must be deterministic and,
// when Config.Parallelism > 1, safe for concurrent use.
type Objective func(x float64) (float64, error)

// Func adapts an infallible function to an Objective.
func Func(f func(float64) float64) Objective {
	return func(x float64) (float64, error) {
		return f(x), nil
	}
}

// evaluate calls f once and turns failures and non-finite results into *EvaluationError.
func evaluate(f Objective, x float64) (float64, error) {
	y, err := f(x)
	if err != nil {
		return math.NaN(), &EvaluationError{X: x, Value: y, Err: err}
	}
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return y, &EvaluationError{X: x, Value: y, Err: errNonFinite}
	}
	return y, nil
}

// EvalMany evaluates f at every x in xs.
func EvalMany(f Objective, xs []float64) ([]float64, error) {
	ys := make([]float64, len(xs))
	for i, x := range xs {
		y, err := evaluate(f, x)
		if err != nil {
			return nil, err
		}
		ys[i] = y
	}
	return ys, nil
}
