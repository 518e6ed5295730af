package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cwbudde/piyavskiy/internal/config"
	"github.com/cwbudde/piyavskiy/internal/opt"
	"github.com/cwbudde/piyavskiy/internal/store"
)

func TestRunJob_Success(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(testRun())

	err := runJob(context.Background(), jm, nil, job.ID)
	if err != nil {
		t.Fatalf("runJob should succeed: %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateCompleted {
		t.Errorf("Job should be completed, got %s", updated.State)
	}
	if updated.Status != opt.StatusConverged {
		t.Errorf("Expected converged status, got %s", updated.Status)
	}
	if updated.Iterations == 0 || len(updated.Records) != updated.Iterations {
		t.Errorf("Expected records for every iteration, got %d/%d", len(updated.Records), updated.Iterations)
	}
	if updated.Delta >= 0.01 {
		t.Errorf("Final delta %g should be below eps", updated.Delta)
	}
	if updated.BestValue > 0.01 {
		t.Errorf("BestValue %g should be near the minimum 0", updated.BestValue)
	}
	if updated.EndTime == nil {
		t.Error("EndTime should be set")
	}
	if want := 2 + 1 + 2*(updated.Iterations-1); updated.Evaluations != want {
		t.Errorf("Expected %d evaluations, got %d", want, updated.Evaluations)
	}
}

func TestRunJob_SavesRun(t *testing.T) {
	st, err := store.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	jm := NewJobManager()
	job := jm.CreateJob(testRun())

	if err := runJob(context.Background(), jm, st, job.ID); err != nil {
		t.Fatalf("runJob failed: %v", err)
	}

	cp, err := st.LoadRun(job.ID)
	if err != nil {
		t.Fatalf("Run was not saved: %v", err)
	}
	if err := cp.Validate(); err != nil {
		t.Errorf("Saved checkpoint invalid: %v", err)
	}
	updated, _ := jm.GetJob(job.ID)
	if len(cp.Records) != updated.Iterations {
		t.Errorf("Saved %d records, job has %d iterations", len(cp.Records), updated.Iterations)
	}
}

func TestRunJob_InvalidExpression(t *testing.T) {
	jm := NewJobManager()
	cfg := testRun()
	cfg.Expr = "x + y"
	job := jm.CreateJob(cfg)

	if err := runJob(context.Background(), jm, nil, job.ID); err == nil {
		t.Error("runJob should fail for an unknown variable")
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateFailed {
		t.Errorf("Job should be failed, got %s", updated.State)
	}
	if updated.Error == "" {
		t.Error("Error message should be set")
	}
}

func TestRunJob_EvaluationError(t *testing.T) {
	jm := NewJobManager()
	cfg := config.Run{Expr: "sqrt(x)", A: -1, B: 1, L: 2, Eps: 0.01, MaxIter: 10}
	job := jm.CreateJob(cfg)

	err := runJob(context.Background(), jm, nil, job.ID)
	if !errors.Is(err, opt.ErrEvaluation) {
		t.Fatalf("Expected evaluation error, got %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateFailed || updated.Status != opt.StatusFailed {
		t.Errorf("Job should be failed, got %s/%s", updated.State, updated.Status)
	}
}

func TestRunJob_Cancellation(t *testing.T) {
	jm := NewJobManager()
	cfg := testRun()
	cfg.Eps = 0
	cfg.MaxIter = 1000
	job := jm.CreateJob(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runJob(ctx, jm, nil, job.ID)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("runJob should return context.Canceled, got %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateCancelled {
		t.Errorf("Job should be cancelled, got %s", updated.State)
	}
	if updated.Status != opt.StatusStopped {
		t.Errorf("Expected stopped status, got %s", updated.Status)
	}
}

func TestRunJob_BroadcastsProgress(t *testing.T) {
	jm := NewJobManager()
	cfg := testRun()
	cfg.Eps = 0
	cfg.MaxIter = 5
	job := jm.CreateJob(cfg)

	ch := jm.broadcaster.Subscribe(job.ID)
	defer jm.broadcaster.Unsubscribe(job.ID, ch)

	if err := runJob(context.Background(), jm, nil, job.ID); err != nil {
		t.Fatalf("runJob failed: %v", err)
	}

	var events []ProgressEvent
	timeout := time.After(time.Second)
	for len(events) < 6 {
		select {
		case e := <-ch:
			events = append(events, e)
		case <-timeout:
			t.Fatalf("Expected 6 events, got %d", len(events))
		}
	}

	for i, e := range events[:5] {
		if e.Iterations != i+1 || e.State != StateRunning {
			t.Errorf("Event %d: got iteration %d state %s", i, e.Iterations, e.State)
		}
	}
	if last := events[5]; last.State != StateCompleted || last.Status != opt.StatusMaxIter {
		t.Errorf("Final event should be completed/max_iter_reached, got %s/%s", last.State, last.Status)
	}
}
