package store

// Store defines the interface for run persistence operations.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return nil error on success
//   - Return ErrNotFound if the run doesn't exist (for Load/Delete)
//   - Return descriptive errors for I/O, serialization, or validation failures
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveRun atomically saves the checkpoint of a run, replacing any earlier one.
	// The implementation should use atomic write strategies (e.g., temp file + rename)
	// so an interrupted save never leaves a truncated checkpoint behind.
	SaveRun(runID string, checkpoint *Checkpoint) error

	// LoadRun retrieves the checkpoint of a run.
	// Returns ErrNotFound if no checkpoint exists for this runID.
	LoadRun(runID string) (*Checkpoint, error)

	// ListRuns returns metadata for all stored runs in natural run-id order.
	// The returned slice may be empty if no runs exist.
	ListRuns() ([]RunInfo, error)

	// DeleteRun removes the run directory and every artifact in it:
	//   - run.json
	//   - trace.jsonl / trace.jsonl.gz
	//   - exported results
	//   - plots/
	//
	// Returns ErrNotFound if the run doesn't exist.
	DeleteRun(runID string) error
}

// ErrNotFound is returned when a requested run does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing run error.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	if e.RunID != "" {
		return "run not found: " + e.RunID
	}
	return "run not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
