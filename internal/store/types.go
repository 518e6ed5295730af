package store

import (
	"fmt"
	"time"

	"github.com/cwbudde/piyavskiy/internal/config"
	"github.com/cwbudde/piyavskiy/internal/opt"
)

// Checkpoint is the persisted state of a run. It holds everything needed to
// export the results again or to resume the run with a larger iteration budget.
//
// The objective itself is not stored, only its source text in Config.Expr.
// Resuming recompiles the expression; the sample values are reused as saved,
// so the objective must be the same deterministic function.
type Checkpoint struct {
	// RunID identifies the run and names its directory
	RunID string `json:"runId"`

	// Config holds the run parameters
	Config config.Run `json:"config"`

	// Status is the terminal state reached by the run
	Status opt.Status `json:"status"`

	// Samples is the sorted sample set at the end of the run
	Samples []opt.Sample `json:"samples"`

	// Records is the full iteration sequence
	Records []opt.IterationRecord `json:"records"`

	BestX      float64 `json:"bestX"`
	BestValue  float64 `json:"bestValue"`
	LowerBound float64 `json:"lowerBound"`

	// Evaluations counts objective calls across all sessions of the run
	Evaluations int `json:"evaluations"`

	// Violations counts iterations with a negative gap
	Violations int `json:"violations,omitempty"`

	// Timestamp records when this checkpoint was created
	Timestamp time.Time `json:"timestamp"`

	// Error is the message of the error that ended the run, if any
	Error string `json:"error,omitempty"`
}

// RunInfo contains metadata about a run without its samples and records.
type RunInfo struct {
	RunID      string     `json:"runId"`
	Status     opt.Status `json:"status"`
	Expr       string     `json:"expr"`
	Iterations int        `json:"iterations"`
	BestX      float64    `json:"bestX"`
	BestValue  float64    `json:"bestValue"`
	Timestamp  time.Time  `json:"timestamp"`
}

// NewCheckpoint creates a checkpoint from the result of a run.
// runErr may be nil; res must not be.
func NewCheckpoint(runID string, cfg config.Run, res *opt.Result, runErr error) *Checkpoint {
	cp := &Checkpoint{
		RunID:       runID,
		Config:      cfg,
		Status:      res.Status,
		Samples:     res.Samples,
		Records:     res.Records,
		BestX:       res.BestX,
		BestValue:   res.BestValue,
		LowerBound:  res.LowerBound,
		Evaluations: res.Evaluations,
		Violations:  res.Violations,
		Timestamp:   time.Now(),
	}
	if runErr != nil {
		cp.Error = runErr.Error()
	}
	return cp
}

// Result converts the checkpoint back into an optimizer result.
func (c *Checkpoint) Result() *opt.Result {
	return &opt.Result{
		Status:      c.Status,
		Records:     c.Records,
		Samples:     c.Samples,
		BestX:       c.BestX,
		BestValue:   c.BestValue,
		LowerBound:  c.LowerBound,
		Evaluations: c.Evaluations,
		Violations:  c.Violations,
	}
}

// ToInfo converts a full Checkpoint to RunInfo (metadata only).
func (c *Checkpoint) ToInfo() RunInfo {
	return RunInfo{
		RunID:      c.RunID,
		Status:     c.Status,
		Expr:       c.Config.Expr,
		Iterations: len(c.Records),
		BestX:      c.BestX,
		BestValue:  c.BestValue,
		Timestamp:  c.Timestamp,
	}
}

// Validate checks if the checkpoint has valid data.
// Returns an error if any required field is missing or invalid.
func (c *Checkpoint) Validate() error {
	if c.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	if err := c.Config.Validate(); err != nil {
		return &ValidationError{Field: "Config", Reason: err.Error()}
	}
	if !c.Status.Done() {
		return &ValidationError{Field: "Status", Reason: fmt.Sprintf("must be terminal, got %q", c.Status)}
	}
	if len(c.Samples) < 2 {
		return &ValidationError{Field: "Samples", Reason: "must contain both interval ends"}
	}
	if c.Samples[0].X != c.Config.A || c.Samples[len(c.Samples)-1].X != c.Config.B {
		return &ValidationError{Field: "Samples", Reason: "must start at a and end at b"}
	}
	for i := 1; i < len(c.Samples); i++ {
		if !(c.Samples[i-1].X < c.Samples[i].X) {
			return &ValidationError{Field: "Samples", Reason: fmt.Sprintf("not strictly ascending at index %d", i)}
		}
	}
	for i, r := range c.Records {
		if r.Iteration != i+1 {
			return &ValidationError{Field: "Records", Reason: fmt.Sprintf("iteration %d at index %d", r.Iteration, i)}
		}
	}
	if c.Evaluations < 0 {
		return &ValidationError{Field: "Evaluations", Reason: "cannot be negative"}
	}
	if c.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	return nil
}

// ValidationError represents a checkpoint validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks if this checkpoint can be resumed with the given config.
// The objective, interval and Lipschitz constant must match; eps, max_iter and
// parallelism may change.
func (c *Checkpoint) IsCompatible(cfg config.Run) error {
	if c.Config.Expr != cfg.Expr {
		return &CompatibilityError{Field: "Expr", Expected: c.Config.Expr, Actual: cfg.Expr}
	}
	if c.Config.A != cfg.A {
		return &CompatibilityError{Field: "A", Expected: fmt.Sprint(c.Config.A), Actual: fmt.Sprint(cfg.A)}
	}
	if c.Config.B != cfg.B {
		return &CompatibilityError{Field: "B", Expected: fmt.Sprint(c.Config.B), Actual: fmt.Sprint(cfg.B)}
	}
	if c.Config.L != cfg.L {
		return &CompatibilityError{Field: "L", Expected: fmt.Sprint(c.Config.L), Actual: fmt.Sprint(cfg.L)}
	}
	return nil
}

// CompatibilityError represents a checkpoint compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
