package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/piyavskiy/internal/opt"
	"github.com/cwbudde/piyavskiy/internal/store"
)

// runJob executes an optimization job in the background.
// If runStore is not nil, the finished run is saved under the job ID.
func runJob(ctx context.Context, jm *JobManager, runStore store.Store, jobID string) error {
	defer jm.clearCancel(jobID)

	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	})
	if err != nil {
		return err
	}

	slog.Info("Starting job", "job_id", jobID, "expr", job.Config.Expr, "a", job.Config.A, "b", job.Config.B, "l", job.Config.L)

	e, err := job.Config.Compile()
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	var optimizer opt.Optimizer
	optimizer, err = opt.NewPiyavskiy(job.Config.Options(), e.Objective())
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	start := time.Now()
	res, runErr := optimizer.Run(ctx, func(snap opt.Snapshot) error {
		jm.UpdateJob(jobID, func(j *Job) {
			j.Iterations = snap.Iteration
			j.Records = append(j.Records, snap.Record)
			j.BestX = snap.Best.X
			j.BestValue = snap.Best.Y
			j.Delta = snap.Record.Delta
		})
		jm.broadcaster.Broadcast(newProgressEvent(jobID, StateRunning, snap))
		return nil
	})
	elapsed := time.Since(start)

	endTime := time.Now()
	state := StateCompleted
	switch {
	case runErr != nil && ctx.Err() != nil:
		state = StateCancelled
	case runErr != nil:
		state = StateFailed
	}

	jm.UpdateJob(jobID, func(j *Job) {
		j.State = state
		j.Status = res.Status
		j.Iterations = len(res.Records)
		j.Records = res.Records
		j.BestX = res.BestX
		j.BestValue = res.BestValue
		j.LowerBound = res.LowerBound
		j.Evaluations = res.Evaluations
		if last, ok := res.Last(); ok {
			j.Delta = last.Delta
		}
		if runErr != nil && state == StateFailed {
			j.Error = runErr.Error()
		}
		j.EndTime = &endTime
	})

	if runStore != nil {
		if err := runStore.SaveRun(jobID, store.NewCheckpoint(jobID, job.Config, res, runErr)); err != nil {
			slog.Error("Failed to save run", "job_id", jobID, "error", err)
		}
	}

	final, _ := jm.GetJob(jobID)
	jm.broadcaster.Broadcast(ProgressEvent{
		JobID:      jobID,
		State:      state,
		Status:     res.Status,
		Iterations: final.Iterations,
		Delta:      final.Delta,
		BestX:      final.BestX,
		BestValue:  final.BestValue,
		Timestamp:  time.Now(),
	})

	switch state {
	case StateCancelled:
		slog.Info("Job cancelled", "job_id", jobID, "iterations", len(res.Records))
		return ctx.Err()
	case StateFailed:
		slog.Error("Job failed", "job_id", jobID, "error", runErr)
		return runErr
	}

	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", elapsed,
		"status", res.Status,
		"iterations", len(res.Records),
		"best_x", res.BestX,
		"best_value", res.BestValue,
		"lower_bound", res.LowerBound,
		"evaluations", res.Evaluations,
	)
	return nil
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Status = opt.StatusFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	jm.broadcaster.Broadcast(ProgressEvent{JobID: jobID, State: StateFailed, Status: opt.StatusFailed, Timestamp: endTime})

	level := slog.LevelError
	if errors.Is(err, opt.ErrDomain) {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "Job failed", "job_id", jobID, "error", err)
}
