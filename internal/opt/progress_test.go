package opt

import (
	"math"
	"testing"
)

func TestTracker_Incumbent(t *testing.T) {
	tracker := NewTracker()

	if !math.IsInf(tracker.Best().Y, 1) {
		t.Errorf("Expected initial best to be +Inf, got %v", tracker.Best().Y)
	}
	if !math.IsInf(tracker.LowerBound(), -1) {
		t.Errorf("Expected initial lower bound to be -Inf, got %v", tracker.LowerBound())
	}

	tracker.Observe(Sample{X: -1, Y: 1})
	tracker.Observe(Sample{X: 1, Y: 3})
	tracker.Observe(Sample{X: 0.5, Y: 0.2})
	tracker.Observe(Sample{X: 0.7, Y: 0.2}) // equal value keeps the first one

	best := tracker.Best()
	if best.X != 0.5 || best.Y != 0.2 {
		t.Errorf("Expected best (0.5, 0.2), got (%v, %v)", best.X, best.Y)
	}
}

func TestTracker_History(t *testing.T) {
	tracker := NewTracker()
	tracker.Observe(Sample{X: 0, Y: 0})

	tracker.Update(1, Candidate{X: 0, Lower: -1, Upper: 0})
	tracker.Update(2, Candidate{X: -0.25, Lower: -0.5, Upper: 0.0625})

	if tracker.LowerBound() != -0.5 {
		t.Errorf("Expected lower bound -0.5, got %v", tracker.LowerBound())
	}
	if tracker.Gap() != 0.5 {
		t.Errorf("Expected gap 0.5, got %v", tracker.Gap())
	}

	history := tracker.History()
	if len(history) != 2 || history[0] != -1 || history[1] != -0.5 {
		t.Errorf("Unexpected history %v", history)
	}

	// Returned slices are copies
	history[0] = 42
	if tracker.History()[0] != -1 {
		t.Error("History should return a copy")
	}

	gaps := tracker.Gaps()
	if len(gaps) != 2 || gaps[0] != 1 || gaps[1] != 0.5625 {
		t.Errorf("Unexpected gaps %v", gaps)
	}
}

func TestTracker_Violations(t *testing.T) {
	tracker := NewTracker()

	tracker.Update(1, Candidate{X: 0, Lower: 0, Upper: -0.5})
	tracker.Update(2, Candidate{X: 0, Lower: 0, Upper: -1e-14}) // rounding noise

	if tracker.Violations() != 1 {
		t.Errorf("Expected 1 violation, got %d", tracker.Violations())
	}
}

func TestTracker_Reset(t *testing.T) {
	tracker := NewTracker()
	tracker.Observe(Sample{X: 1, Y: 1})
	tracker.Update(1, Candidate{Lower: 0, Upper: -1})

	tracker.Reset()

	if len(tracker.History()) != 0 {
		t.Errorf("Expected empty history after reset, got %v", tracker.History())
	}
	if tracker.Violations() != 0 {
		t.Errorf("Expected no violations after reset, got %d", tracker.Violations())
	}
	if !math.IsInf(tracker.Best().Y, 1) {
		t.Errorf("Expected best to be reset, got %v", tracker.Best().Y)
	}
}
