package opt

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square(x float64) float64 { return x * x }

func TestBoundLines(t *testing.T) {
	p := Sample{X: 1, Y: 3}
	xs := []float64{-1, 1, 2}

	assert.Equal(t, []float64{-1, 3, 5}, LeftBoundLine(p, 2, xs))
	assert.Equal(t, []float64{7, 3, 1}, RightBoundLine(p, 2, xs))
}

func TestLowerEnvelopeAt(t *testing.T) {
	samples := []Sample{{X: -1, Y: 1}, {X: 1, Y: 1}}
	env := LowerEnvelopeAt([]float64{-1, 0, 0.5, 1}, samples, 2)

	assert.Equal(t, []float64{1, -1, 0, 1}, env)
}

func TestLowerEnvelopeIsBelowObjective(t *testing.T) {
	f := func(x float64) float64 { return math.Sin(3*x) + 0.3*x }
	samples := []Sample{}
	for _, x := range []float64{-3, -1.2, 0.4, 2, 3} {
		samples = append(samples, Sample{X: x, Y: f(x)})
	}

	xs := make([]float64, 200)
	for i := range xs {
		xs[i] = -3 + 6*float64(i)/float64(len(xs)-1)
	}
	env := LowerEnvelopeAt(xs, samples, 3.3)
	for i, x := range xs {
		assert.LessOrEqual(t, env[i], f(x)+1e-12, "envelope above objective at x=%g", x)
	}
}

func TestIntersect_Square(t *testing.T) {
	calls := 0
	f := func(x float64) (float64, error) {
		calls++
		return x * x, nil
	}

	c, err := Intersect(Sample{X: -1, Y: 1}, Sample{X: 1, Y: 1}, 2, f)
	require.NoError(t, err)

	assert.Equal(t, 0.0, c.X)
	assert.Equal(t, -1.0, c.Lower)
	assert.Equal(t, 0.0, c.Upper)
	assert.Equal(t, 1.0, c.Delta())
	assert.Equal(t, 1, calls, "intersect must evaluate the objective exactly once")
}

func TestIntersect_Asymmetric(t *testing.T) {
	// Lines y = 4 - 1*(x-0) and y = 0 + 1*(x-2) meet at x=3, y=1.
	c, err := Intersect(Sample{X: 0, Y: 4}, Sample{X: 2, Y: 0}, 1, Func(square))
	require.NoError(t, err)

	assert.InDelta(t, 3.0, c.X, 1e-15)
	assert.InDelta(t, 1.0, c.Lower, 1e-15)
	assert.InDelta(t, 9.0, c.Upper, 1e-15)
}

func TestIntersect_Idempotent(t *testing.T) {
	f := Func(func(x float64) float64 { return math.Cos(5*x) * math.Exp(-x) })
	left, right := Sample{X: 0.1, Y: 0.3}, Sample{X: 0.77, Y: -0.2}

	c1, err := Intersect(left, right, 7.3, f)
	require.NoError(t, err)
	c2, err := Intersect(left, right, 7.3, f)
	require.NoError(t, err)

	assert.Equal(t, math.Float64bits(c1.X), math.Float64bits(c2.X))
	assert.Equal(t, math.Float64bits(c1.Lower), math.Float64bits(c2.Lower))
	assert.Equal(t, math.Float64bits(c1.Upper), math.Float64bits(c2.Upper))
}

func TestIntersect_DomainErrors(t *testing.T) {
	tests := []struct {
		name        string
		left, right Sample
		L           float64
	}{
		{"zero L", Sample{X: 0}, Sample{X: 1}, 0},
		{"negative L", Sample{X: 0}, Sample{X: 1}, -2},
		{"NaN L", Sample{X: 0}, Sample{X: 1}, math.NaN()},
		{"infinite L", Sample{X: 0}, Sample{X: 1}, math.Inf(1)},
		{"equal points", Sample{X: 1}, Sample{X: 1}, 1},
		{"reversed points", Sample{X: 2}, Sample{X: 1}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			f := func(x float64) (float64, error) {
				calls++
				return x, nil
			}

			_, err := Intersect(tt.left, tt.right, tt.L, f)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDomain)

			var domainErr *DomainError
			assert.True(t, errors.As(err, &domainErr))
			assert.Zero(t, calls)
		})
	}
}

func TestIntersect_EvaluationError(t *testing.T) {
	boom := errors.New("boom")

	_, err := Intersect(Sample{X: -1, Y: 1}, Sample{X: 1, Y: 1}, 2, func(float64) (float64, error) {
		return 0, boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEvaluation)
	assert.ErrorIs(t, err, boom)

	_, err = Intersect(Sample{X: -1, Y: 1}, Sample{X: 1, Y: 1}, 2, Func(func(x float64) float64 {
		return 1 / x
	}))
	require.Error(t, err)

	var evalErr *EvaluationError
	require.True(t, errors.As(err, &evalErr))
	assert.Equal(t, 0.0, evalErr.X)
	assert.True(t, math.IsInf(evalErr.Value, 1))
}

func TestEnvelopeMinimum(t *testing.T) {
	samples := []Sample{{X: -1, Y: 1}, {X: 0, Y: 0}, {X: 1, Y: 1}}
	m := EnvelopeMinimum(samples, 2)

	// Both pairs bottom out at -0.5; the leftmost wins.
	assert.Equal(t, -0.25, m.X)
	assert.Equal(t, -0.5, m.Y)
}

func TestEvalMany(t *testing.T) {
	ys, err := EvalMany(Func(square), []float64{-2, 0, 3})
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 0, 9}, ys)

	_, err = EvalMany(Func(math.Log), []float64{1, -1})
	assert.ErrorIs(t, err, ErrEvaluation)
}
