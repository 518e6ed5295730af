package opt

// Sample is a point where the objective has been evaluated.
type Sample struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Candidate is the intersection of the bounding lines of one adjacent pair.
type Candidate struct {
	X     float64 `json:"x"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Delta is the optimality gap at the candidate.
func (c Candidate) Delta() float64 {
	return c.Upper - c.Lower
}

// IterationRecord is one completed iteration. Records are append-only.
type IterationRecord struct {
	Iteration int     `json:"iteration"`
	X         float64 `json:"x"`
	Lower     float64 `json:"lower"`
	Upper     float64 `json:"upper"`
	Delta     float64 `json:"delta"`
}

// Status is the terminal state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusConverged Status = "converged"
	StatusMaxIter   Status = "max_iter_reached"
	StatusStopped   Status = "stopped"
	StatusFailed    Status = "failed"
)

// Done reports whether s is terminal.
func (s Status) Done() bool {
	return s != StatusRunning && s != ""
}

// Snapshot is the state of one iteration handed to observers. Slices are
// copies and may be retained.
type Snapshot struct {
	Iteration int
	L         float64

	// Samples is the sample set the iteration selected from, before the
	// candidate was inserted. Candidates[j] belongs to Samples[j], Samples[j+1].
	Samples    []Sample
	Candidates []Candidate
	Selected   int
	Record     IterationRecord
	Best       Sample
	Status     Status
}

// Envelope evaluates the lower envelope of the snapshot's samples at xs.
func (s Snapshot) Envelope(xs []float64) []float64 {
	return LowerEnvelopeAt(xs, s.Samples, s.L)
}

// Candidate returns the selected candidate.
func (s Snapshot) Candidate() Candidate {
	return s.Candidates[s.Selected]
}

// Result is the outcome of a run. On evaluation failure it holds the records
// collected before the failure.
type Result struct {
	Status      Status            `json:"status"`
	Records     []IterationRecord `json:"records"`
	Samples     []Sample          `json:"samples"`
	BestX       float64           `json:"bestX"`
	BestValue   float64           `json:"bestValue"`
	LowerBound  float64           `json:"lowerBound"`
	Evaluations int               `json:"evaluations"`

	// Violations counts iterations with a negative gap, i.e. evidence that
	// L is below the objective's Lipschitz constant.
	Violations int `json:"violations,omitempty"`
}

// Last returns the final record, or false if no iteration completed.
func (r *Result) Last() (IterationRecord, bool) {
	if r == nil || len(r.Records) == 0 {
		return IterationRecord{}, false
	}
	return r.Records[len(r.Records)-1], true
}
