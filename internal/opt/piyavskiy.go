package opt

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"
)

const (
	// preallocCap bounds the capacity reserved up front; MaxIter may be huge.
	preallocCap = 1024

	// DefaultEps is the stopping tolerance on the optimality gap.
	DefaultEps = 0.1

	// DefaultMaxIter is the iteration ceiling used by the command line.
	DefaultMaxIter = 50
)

// ErrFinished is returned by Step once the run has reached a terminal state.
var ErrFinished = errors.New("piyavskiy: run already finished")

// Config defines a single Piyavskiy run.
type Config struct {
	// A and B are the search interval bounds, A < B.
	A float64 `json:"a"`
	B float64 `json:"b"`

	// L is the Lipschitz constant of the objective on [A, B].
	L float64 `json:"l"`

	// Eps stops the run once the selected candidate's gap drops strictly below it.
	// Zero disables convergence and the run always ends at MaxIter.
	Eps float64 `json:"eps"`

	// MaxIter is the iteration ceiling.
	MaxIter int `json:"maxIter"`

	// Parallelism bounds concurrent intersection evaluations within one
	// iteration. Values <= 1 evaluate sequentially.
	Parallelism int `json:"parallelism,omitempty"`
}

// DefaultConfig returns a config for [a, b] with Lipschitz constant l.
func DefaultConfig(a, b, l float64) Config {
	return Config{
		A:       a,
		B:       b,
		L:       l,
		Eps:     DefaultEps,
		MaxIter: DefaultMaxIter,
	}
}

// Validate checks the configuration and returns a *DomainError on the first violation.
func (c Config) Validate() error {
	if math.IsNaN(c.A) || math.IsInf(c.A, 0) {
		return &DomainError{Field: "lower bound", Value: c.A, Reason: "must be finite"}
	}
	if math.IsNaN(c.B) || math.IsInf(c.B, 0) {
		return &DomainError{Field: "upper bound", Value: c.B, Reason: "must be finite"}
	}
	if !(c.A < c.B) {
		return &DomainError{Field: "upper bound", Value: c.B, Reason: fmt.Sprintf("must be greater than lower bound %g", c.A)}
	}
	if err := checkLipschitz(c.L); err != nil {
		return err
	}
	if math.IsNaN(c.Eps) || c.Eps < 0 {
		return &DomainError{Field: "eps", Value: c.Eps, Reason: "must be non-negative"}
	}
	if c.MaxIter <= 0 {
		return &DomainError{Field: "max_iter", Value: float64(c.MaxIter), Reason: "must be positive"}
	}
	if c.Parallelism < 0 {
		return &DomainError{Field: "parallelism", Value: float64(c.Parallelism), Reason: "cannot be negative"}
	}
	return nil
}

// IterationFunc observes each completed iteration. Returning ErrStopped ends
// the run cleanly; any other error aborts it.
type IterationFunc func(Snapshot) error

// ChainObservers calls each non-nil observer in order, stopping at the first error.
func ChainObservers(fns ...IterationFunc) IterationFunc {
	return func(s Snapshot) error {
		for _, fn := range fns {
			if fn == nil {
				continue
			}
			if err := fn(s); err != nil {
				return err
			}
		}
		return nil
	}
}

type pairKey struct {
	left, right float64
}

// Piyavskiy is the iterator of a single run. It owns its sample set, record
// sequence and intersection cache; it is not safe for concurrent use.
type Piyavskiy struct {
	cfg     Config
	f       Objective
	samples []Sample
	records []IterationRecord
	cache   map[pairKey]Candidate
	tracker *Tracker
	evals   int
	status  Status
}

// NewPiyavskiy validates cfg and evaluates f at both interval ends.
func NewPiyavskiy(cfg Config, f Objective) (*Piyavskiy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if f == nil {
		return nil, errors.New("objective cannot be nil")
	}

	p := newPiyavskiy(cfg, f)
	for _, x := range []float64{cfg.A, cfg.B} {
		p.evals++
		y, err := evaluate(f, x)
		if err != nil {
			return nil, err
		}
		p.insert(Sample{X: x, Y: y})
	}
	return p, nil
}

// Restore rebuilds an iterator from the samples and records of an earlier run
// so it can continue. Iteration numbering resumes after the last record and
// cfg.MaxIter counts all iterations, restored ones included.
func Restore(cfg Config, f Objective, samples []Sample, records []IterationRecord) (*Piyavskiy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if f == nil {
		return nil, errors.New("objective cannot be nil")
	}
	if len(samples) < 2 {
		return nil, &DomainError{Field: "sample count", Value: float64(len(samples)), Reason: "at least the two interval ends are required"}
	}
	if samples[0].X != cfg.A || samples[len(samples)-1].X != cfg.B {
		return nil, &DomainError{Field: "samples", Value: samples[0].X, Reason: "must start at the lower bound and end at the upper bound"}
	}
	for i, s := range samples {
		if math.IsNaN(s.Y) || math.IsInf(s.Y, 0) {
			return nil, &DomainError{Field: "sample value", Value: s.Y, Reason: "must be finite"}
		}
		if i > 0 && !(samples[i-1].X < s.X) {
			return nil, &DomainError{Field: "sample", Value: s.X, Reason: "samples must be strictly ascending"}
		}
	}
	for i, r := range records {
		if r.Iteration != i+1 {
			return nil, &DomainError{Field: "record iteration", Value: float64(r.Iteration), Reason: fmt.Sprintf("expected %d", i+1)}
		}
	}
	if len(records) >= cfg.MaxIter {
		return nil, &DomainError{Field: "max_iter", Value: float64(cfg.MaxIter), Reason: fmt.Sprintf("must exceed the %d completed iterations", len(records))}
	}

	p := newPiyavskiy(cfg, f)
	p.samples = append(p.samples, samples...)
	p.records = append(p.records, records...)
	for _, s := range samples {
		p.tracker.Observe(s)
	}
	for _, r := range records {
		p.tracker.Update(r.Iteration, Candidate{X: r.X, Lower: r.Lower, Upper: r.Upper})
	}

	if last, ok := p.lastRecord(); ok && last.Delta < cfg.Eps {
		p.status = StatusConverged
	}
	return p, nil
}

func newPiyavskiy(cfg Config, f Objective) *Piyavskiy {
	return &Piyavskiy{
		cfg:     cfg,
		f:       f,
		samples: make([]Sample, 0, min(cfg.MaxIter, preallocCap)+2),
		records: make([]IterationRecord, 0, min(cfg.MaxIter, preallocCap)),
		cache:   make(map[pairKey]Candidate),
		tracker: NewTracker(),
		status:  StatusRunning,
	}
}

// Config returns the run configuration.
func (p *Piyavskiy) Config() Config {
	return p.cfg
}

// Status returns the current state of the run.
func (p *Piyavskiy) Status() Status {
	return p.status
}

// Samples returns a copy of the sorted sample set.
func (p *Piyavskiy) Samples() []Sample {
	return append([]Sample{}, p.samples...)
}

// Records returns a copy of the records emitted so far.
func (p *Piyavskiy) Records() []IterationRecord {
	return append([]IterationRecord{}, p.records...)
}

// Evaluations returns the number of objective calls made by this iterator.
func (p *Piyavskiy) Evaluations() int {
	return p.evals
}

// Tracker returns the run's progress tracker.
func (p *Piyavskiy) Tracker() *Tracker {
	return p.tracker
}

// Run iterates until the run converges, hits MaxIter, is cancelled through ctx,
// or onIter stops it. ctx is checked once per iteration boundary. The returned
// Result is never nil; on failure it carries the records collected so far.
func (p *Piyavskiy) Run(ctx context.Context, onIter IterationFunc) (*Result, error) {
	for !p.status.Done() {
		if err := ctx.Err(); err != nil {
			p.status = StatusStopped
			return p.Result(), fmt.Errorf("run cancelled after %d iterations: %w", len(p.records), err)
		}

		snap, err := p.Step()
		if err != nil {
			return p.Result(), err
		}

		if onIter == nil {
			continue
		}
		if err := onIter(snap); err != nil {
			if errors.Is(err, ErrStopped) {
				if !p.status.Done() {
					p.status = StatusStopped
				}
				return p.Result(), nil
			}
			p.status = StatusFailed
			return p.Result(), fmt.Errorf("iteration observer failed: %w", err)
		}
	}

	return p.Result(), nil
}

// Step performs one iteration and returns its snapshot.
func (p *Piyavskiy) Step() (Snapshot, error) {
	if p.status.Done() {
		return Snapshot{}, ErrFinished
	}

	candidates, err := p.candidates()
	if err != nil {
		p.status = StatusFailed
		return Snapshot{}, err
	}

	selected := selectCandidate(candidates)
	c := candidates[selected]
	samples := p.Samples()
	record := IterationRecord{
		Iteration: len(p.records) + 1,
		X:         c.X,
		Lower:     c.Lower,
		Upper:     c.Upper,
		Delta:     c.Delta(),
	}

	// A candidate can only leave [A, B] when two samples differ by more than
	// L times their distance. It never enters the sample set or the incumbent.
	inside := c.X >= p.cfg.A && c.X <= p.cfg.B
	if !inside && !(record.Delta < p.cfg.Eps) {
		p.status = StatusFailed
		return Snapshot{}, &DomainError{
			Field:  "lipschitz constant",
			Value:  p.cfg.L,
			Reason: fmt.Sprintf("too small for the objective: iteration %d selected x=%g outside [%g, %g]", record.Iteration, c.X, p.cfg.A, p.cfg.B),
		}
	}
	p.records = append(p.records, record)

	if inside {
		p.tracker.Observe(Sample{X: c.X, Y: c.Upper})
	}
	p.tracker.Update(record.Iteration, c)

	if record.Delta < p.cfg.Eps {
		p.status = StatusConverged
	} else {
		p.insert(Sample{X: c.X, Y: c.Upper})
		if len(p.records) >= p.cfg.MaxIter {
			p.status = StatusMaxIter
		}
	}

	return Snapshot{
		Iteration:  record.Iteration,
		L:          p.cfg.L,
		Samples:    samples,
		Candidates: candidates,
		Selected:   selected,
		Record:     record,
		Best:       p.tracker.Best(),
		Status:     p.status,
	}, nil
}

// Result summarises the run in its current state.
func (p *Piyavskiy) Result() *Result {
	best := p.tracker.Best()
	return &Result{
		Status:      p.status,
		Records:     p.Records(),
		Samples:     p.Samples(),
		BestX:       best.X,
		BestValue:   best.Y,
		LowerBound:  EnvelopeMinimum(p.samples, p.cfg.L).Y,
		Evaluations: p.evals,
		Violations:  p.tracker.Violations(),
	}
}

func (p *Piyavskiy) lastRecord() (IterationRecord, bool) {
	if len(p.records) == 0 {
		return IterationRecord{}, false
	}
	return p.records[len(p.records)-1], true
}

// insert adds s keeping samples sorted. A sample already present is ignored.
// The cached candidate of the pair that s splits is dropped.
func (p *Piyavskiy) insert(s Sample) bool {
	i := sort.Search(len(p.samples), func(i int) bool { return p.samples[i].X >= s.X })
	if i < len(p.samples) && p.samples[i].X == s.X {
		return false
	}
	if i > 0 && i < len(p.samples) {
		delete(p.cache, pairKey{left: p.samples[i-1].X, right: p.samples[i].X})
	}

	p.samples = append(p.samples, Sample{})
	copy(p.samples[i+1:], p.samples[i:])
	p.samples[i] = s
	p.tracker.Observe(s)
	return true
}

// candidates returns one candidate per adjacent pair, in pair order.
func (p *Piyavskiy) candidates() ([]Candidate, error) {
	n := len(p.samples) - 1
	out := make([]Candidate, n)

	var missing []int
	for j := 0; j < n; j++ {
		if c, ok := p.cache[p.pair(j)]; ok {
			out[j] = c
			continue
		}
		missing = append(missing, j)
	}

	if err := p.intersectAll(out, missing); err != nil {
		return nil, err
	}

	for _, j := range missing {
		p.cache[p.pair(j)] = out[j]
	}
	return out, nil
}

func (p *Piyavskiy) pair(j int) pairKey {
	return pairKey{left: p.samples[j].X, right: p.samples[j+1].X}
}

// intersectAll fills out[j] for every pair index j. When several pairs fail,
// the error of the leftmost one is returned regardless of completion order.
func (p *Piyavskiy) intersectAll(out []Candidate, pairs []int) error {
	if p.cfg.Parallelism <= 1 || len(pairs) < 2 {
		for _, j := range pairs {
			p.evals++
			c, err := Intersect(p.samples[j], p.samples[j+1], p.cfg.L, p.f)
			if err != nil {
				return err
			}
			out[j] = c
		}
		return nil
	}

	errs := make([]error, len(pairs))
	var g errgroup.Group
	g.SetLimit(p.cfg.Parallelism)
	for k, j := range pairs {
		k, j := k, j
		g.Go(func() error {
			c, err := Intersect(p.samples[j], p.samples[j+1], p.cfg.L, p.f)
			if err != nil {
				errs[k] = err
				return nil
			}
			out[j] = c
			return nil
		})
	}
	_ = g.Wait()
	p.evals += len(pairs)

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// selectCandidate returns the index of the minimum Lower; ties go to the
// lowest index.
func selectCandidate(cs []Candidate) int {
	best := 0
	for i := 1; i < len(cs); i++ {
		if cs[i].Lower < cs[best].Lower {
			best = i
		}
	}
	return best
}
