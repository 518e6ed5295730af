package opt

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrDomain matches any *DomainError via errors.Is.
var ErrDomain = &DomainError{}

// ErrEvaluation matches any *EvaluationError via errors.Is.
var ErrEvaluation = &EvaluationError{}

// ErrStopped is returned by an IterationFunc to end a run early without failing it.
var ErrStopped = errors.New("piyavskiy: stopped by observer")

// errNonFinite is wrapped by EvaluationError when the objective returns NaN or ±Inf.
var errNonFinite = errors.New("objective returned a non-finite value")

// DomainError reports an invalid run configuration or geometry input.
// It is raised before any iteration executes.
type DomainError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *DomainError) Error() string {
	if e.Field == "" {
		return "invalid configuration"
	}
	return fmt.Sprintf("invalid %s %s: %s", e.Field, strconv.FormatFloat(e.Value, 'g', -1, 64), e.Reason)
}

func (e *DomainError) Is(target error) bool {
	_, ok := target.(*DomainError)
	return ok
}

// EvaluationError reports that the objective failed or returned a non-finite
// value at X. Err is the objective's own error and is reachable via errors.Unwrap.
type EvaluationError struct {
	X     float64
	Value float64
	Err   error
}

func (e *EvaluationError) Error() string {
	if e.Err == nil {
		return "objective evaluation failed"
	}
	if errors.Is(e.Err, errNonFinite) {
		return fmt.Sprintf("objective evaluation failed at x=%g: %v (%g)", e.X, e.Err, e.Value)
	}
	return fmt.Sprintf("objective evaluation failed at x=%g: %v", e.X, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

func (e *EvaluationError) Is(target error) bool {
	_, ok := target.(*EvaluationError)
	return ok
}
