package expr

import (
	"fmt"
	"math"

	"github.com/Knetic/govaluate"
)

// constants are bound as parameters on every evaluation.
var constants = map[string]float64{
	"pi": math.Pi,
	"e":  math.E,
}

// functions is the complete set of callables an expression may use.
var functions = map[string]govaluate.ExpressionFunction{
	// trigonometric
	"sin":    unary("sin", math.Sin),
	"cos":    unary("cos", math.Cos),
	"tan":    unary("tan", math.Tan),
	"arcsin": unary("arcsin", math.Asin),
	"arccos": unary("arccos", math.Acos),
	"arctan": unary("arctan", math.Atan),
	"asin":   unary("asin", math.Asin),
	"acos":   unary("acos", math.Acos),
	"atan":   unary("atan", math.Atan),

	// hyperbolic
	"sinh": unary("sinh", math.Sinh),
	"cosh": unary("cosh", math.Cosh),
	"tanh": unary("tanh", math.Tanh),

	// exponential and logarithms
	"exp":   unary("exp", math.Exp),
	"log":   unary("log", math.Log),
	"log10": unary("log10", math.Log10),

	// powers and roots
	"sqrt":  unary("sqrt", math.Sqrt),
	"abs":   unary("abs", math.Abs),
	"power": binary("power", math.Pow),
	"pow":   binary("pow", math.Pow),

	// rounding
	"sign":  unary("sign", sign),
	"floor": unary("floor", math.Floor),
	"ceil":  unary("ceil", math.Ceil),
}

func unary(name string, fn func(float64) float64) govaluate.ExpressionFunction {
	return func(args ...interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("%s expects 1 argument, got %d", name, len(args))
		}
		v, err := toFloat(name, args[0])
		if err != nil {
			return nil, err
		}
		return fn(v), nil
	}
}

func binary(name string, fn func(float64, float64) float64) govaluate.ExpressionFunction {
	return func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("%s expects 2 arguments, got %d", name, len(args))
		}
		a, err := toFloat(name, args[0])
		if err != nil {
			return nil, err
		}
		b, err := toFloat(name, args[1])
		if err != nil {
			return nil, err
		}
		return fn(a, b), nil
	}
}

func toFloat(name string, v interface{}) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	default:
		return math.NaN(), fmt.Errorf("%s: argument is not a number: %T", name, v)
	}
}

// sign returns -1, 0 or 1 and propagates NaN.
func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return x
	}
}
