package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"golang.org/x/time/rate"

	"github.com/cwbudde/piyavskiy/internal/config"
	"github.com/cwbudde/piyavskiy/internal/opt"
	"github.com/cwbudde/piyavskiy/internal/plot"
	"github.com/cwbudde/piyavskiy/internal/store"
)

// session owns the artifacts one CLI invocation writes for a run.
type session struct {
	runID string
	store *store.FSStore
	out   config.Output
	trace *store.TraceWriter
	plots *plot.Renderer
}

// openSession prepares the run directory, the trace and, when enabled, the
// plot renderer. appendTrace continues an existing trace in its own format.
func openSession(st *store.FSStore, runID string, run config.Run, out config.Output, f opt.Objective, appendTrace bool) (*session, error) {
	s := &session{runID: runID, store: st, out: out}

	compress := out.CompressTrace
	if appendTrace {
		if _, compressed, err := store.FindTrace(st.BaseDir(), runID); err == nil {
			compress = compressed
		}
	}

	trace, err := store.NewTraceWriter(st.BaseDir(), runID, appendTrace, compress)
	if err != nil {
		return nil, err
	}
	s.trace = trace

	if out.Plots {
		r, err := plot.NewRenderer(f, run.A, run.B, plot.Options{
			Dir:    filepath.Join(st.RunDir(runID), "plots"),
			Format: out.PlotFormat,
			Points: out.PlotPoints,
		})
		if err != nil {
			trace.Close()
			return nil, err
		}
		s.plots = r
	}

	return s, nil
}

// observer chains trace, plot and progress logging.
func (s *session) observer() opt.IterationFunc {
	var plots opt.IterationFunc
	if s.plots != nil {
		plots = s.plots.Observer()
	}
	return opt.ChainObservers(s.trace.Observer(), plots, progressObserver(s.runID))
}

// finish closes the trace, saves the checkpoint and exports the records.
// earlierEvals is added to the result's evaluation count for resumed runs.
func (s *session) finish(run config.Run, res *opt.Result, runErr error, earlierEvals int) (*store.Checkpoint, error) {
	var errs []error
	if err := s.trace.Close(); err != nil {
		errs = append(errs, err)
	}

	res.Evaluations += earlierEvals
	cp := store.NewCheckpoint(s.runID, run, res, runErr)
	if err := s.store.SaveRun(s.runID, cp); err != nil {
		errs = append(errs, fmt.Errorf("failed to save run: %w", err))
	}

	if s.out.Export != "none" && len(res.Records) > 0 {
		labels, err := store.LabelsFor(s.out.Labels)
		if err == nil {
			path := store.ExportPath(s.store.BaseDir(), s.runID, s.out.Export)
			err = store.ExportRecords(path, res.Records, labels)
			if err == nil {
				slog.Info("Results exported", "run_id", s.runID, "path", path)
			}
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to export results: %w", err))
		}
	}

	return cp, errors.Join(errs...)
}

func progressObserver(runID string) opt.IterationFunc {
	progress := rate.Sometimes{First: 1, Interval: time.Second}
	return func(snap opt.Snapshot) error {
		progress.Do(func() {
			slog.Info("Iteration",
				"run_id", runID,
				"iteration", snap.Iteration,
				"x", snap.Record.X,
				"delta", snap.Record.Delta,
				"best_x", snap.Best.X,
				"best_value", snap.Best.Y,
			)
		})
		return nil
	}
}

// printRecords writes the iteration table, values rounded for display.
func printRecords(w io.Writer, records []opt.IterationRecord, labels store.Labels) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	for i, h := range labels.Header() {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, h)
	}
	fmt.Fprintln(tw, "\t")

	for _, r := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t\n",
			r.Iteration,
			formatFloat(r.X),
			formatFloat(r.Lower),
			formatFloat(r.Upper),
			formatFloat(r.Delta),
		)
	}
	return tw.Flush()
}

func printSummary(w io.Writer, cp *store.Checkpoint, runDir string) {
	fmt.Fprintf(w, "\nRun %s: %s after %d iterations (%d evaluations)\n", cp.RunID, cp.Status, len(cp.Records), cp.Evaluations)
	fmt.Fprintf(w, "  best:        f(%s) = %s\n", formatFloat(cp.BestX), formatFloat(cp.BestValue))
	fmt.Fprintf(w, "  lower bound: %s\n", formatFloat(cp.LowerBound))
	if cp.Violations > 0 {
		fmt.Fprintf(w, "  warning:     %d iteration(s) had a negative gap; L is below the objective's Lipschitz constant\n", cp.Violations)
	}
	if cp.Error != "" {
		fmt.Fprintf(w, "  error:       %s\n", cp.Error)
	}
	fmt.Fprintf(w, "  artifacts:   %s\n", runDir)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(store.Round(v, store.ExportPrecision), 'f', -1, 64)
}
