package opt

import "context"

// Optimizer drives one optimization run to completion
type Optimizer interface {
	// Run executes the optimization
	// ctx: checked between iterations, cancelling stops the run
	// onIter: optional observer called after every iteration
	// Returns: the run result (never nil) and the error that ended it, if any
	Run(ctx context.Context, onIter IterationFunc) (*Result, error)
}

var _ Optimizer = (*Piyavskiy)(nil)

// Minimize runs Piyavskiy's method on f over the configured interval.
func Minimize(ctx context.Context, cfg Config, f Objective, onIter IterationFunc) (*Result, error) {
	p, err := NewPiyavskiy(cfg, f)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, onIter)
}
