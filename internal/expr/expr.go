// Package expr compiles textual objective functions of one variable x.
//
// Operators follow the usual mathematical precedence: ** binds tighter than
// unary minus and groups right to left, so -x**2 is -(x**2) and 2**3**2 is
// 512. ^ is accepted as a synonym for **.
//
// Expressions are parsed by a dedicated expression grammar and may only
// reference x, the constants pi and e, and the functions listed in
// functions.go. Nothing else is reachable from an expression.
package expr

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"

	"github.com/Knetic/govaluate"

	"github.com/cwbudde/piyavskiy/internal/opt"
)

// Variable is the name of the free variable.
const Variable = "x"

// numpyPrefix matches the "np." qualifier accepted for compatibility with
// expressions written as np.sin(x).
var numpyPrefix = regexp.MustCompile(`\bnp\.`)

// ParseError reports an expression that cannot be compiled.
type ParseError struct {
	Expr string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid expression %q: %v", e.Expr, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Expression is a compiled objective. It is safe for concurrent use.
type Expression struct {
	source   string
	compiled *govaluate.EvaluableExpression
}

// Compile parses src into an Expression.
func Compile(src string) (*Expression, error) {
	normalized := normalize(src)
	if normalized == "" {
		return nil, &ParseError{Expr: src, Err: fmt.Errorf("expression is empty")}
	}

	rewritten, err := rewrite(normalized)
	if err != nil {
		return nil, &ParseError{Expr: src, Err: err}
	}

	compiled, err := govaluate.NewEvaluableExpressionWithFunctions(rewritten, functions)
	if err != nil {
		return nil, &ParseError{Expr: src, Err: err}
	}

	for _, name := range compiled.Vars() {
		if name == Variable {
			continue
		}
		if _, ok := constants[name]; ok {
			continue
		}
		return nil, &ParseError{Expr: src, Err: fmt.Errorf("unknown identifier %q (allowed: x, %s)", name, strings.Join(Names(), ", "))}
	}

	return &Expression{source: src, compiled: compiled}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(src string) *Expression {
	e, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return e
}

// normalize trims src and rewrites notation the grammar spells differently.
func normalize(src string) string {
	s := strings.TrimSpace(src)
	s = numpyPrefix.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "^", "**")
	return s
}

// String returns the source text.
func (e *Expression) String() string {
	return e.source
}

// Eval evaluates the expression at x.
func (e *Expression) Eval(x float64) (float64, error) {
	params := make(map[string]interface{}, len(constants)+1)
	for name, v := range constants {
		params[name] = v
	}
	params[Variable] = x

	v, err := e.compiled.Evaluate(params)
	if err != nil {
		return math.NaN(), err
	}

	switch t := v.(type) {
	case float64:
		return t, nil
	case bool:
		return math.NaN(), fmt.Errorf("expression evaluated to a boolean, not a number")
	default:
		return math.NaN(), fmt.Errorf("expression did not return a number: %T", v)
	}
}

// EvalMany evaluates the expression at every x in xs.
func (e *Expression) EvalMany(xs []float64) ([]float64, error) {
	return opt.EvalMany(e.Objective(), xs)
}

// Objective returns the expression as an opt.Objective.
func (e *Expression) Objective() opt.Objective {
	return e.Eval
}

// Names lists the constants and functions an expression may use, sorted.
func Names() []string {
	names := make([]string, 0, len(constants)+len(functions))
	for name := range constants {
		names = append(names, name)
	}
	for name := range functions {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
