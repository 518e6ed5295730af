package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cwbudde/piyavskiy/internal/config"
	"github.com/cwbudde/piyavskiy/internal/opt"
	"github.com/cwbudde/piyavskiy/internal/store"
)

var (
	configPath    string
	exprSrc       string
	lowerBound    float64
	upperBound    float64
	lipschitz     float64
	eps           float64
	maxIter       int
	parallelism   int
	dataDir       string
	runID         string
	plots         bool
	plotFormat    string
	plotPoints    int
	exportFormat  string
	labelSet      string
	compressTrace bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Minimize a function on an interval",
	Long: `Runs the Piyavskiy method for an expression in x on [a, b] with the
given Lipschitz constant. Parameters come from flags, an optional TOML file
(--config) and, for anything still missing, interactive prompts.

Artifacts are written to <data-dir>/runs/<run-id>/: run.json, the iteration
trace, the exported results table and, with --plots, one figure per iteration.`,
	Example: `  piyavskiy run --expr "sin(3*x) + 0.3*x" --a -3 --b 3 -L 3.3 --eps 0.01
  piyavskiy run --config run.toml --plots --labels ru --export xlsx`,
	RunE: runOptimization,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&configPath, "config", "", "TOML run file")
	f.StringVar(&exprSrc, "expr", "", "Objective expression in x, e.g. \"sin(3*x) + 0.3*x\"")
	f.Float64Var(&lowerBound, "a", 0, "Lower bound of the search interval")
	f.Float64Var(&upperBound, "b", 0, "Upper bound of the search interval")
	f.Float64VarP(&lipschitz, "lipschitz", "L", 0, "Lipschitz constant of the objective on [a, b]")
	addTuningFlags(f)
	addOutputFlags(f)
	f.StringVar(&runID, "run-id", "", "Run identifier (default: random UUID)")

	rootCmd.AddCommand(runCmd)
}

// addTuningFlags registers the flags run and resume share for the stopping rule.
func addTuningFlags(f *pflag.FlagSet) {
	f.Float64Var(&eps, "eps", opt.DefaultEps, "Stop once the optimality gap drops below eps")
	f.IntVar(&maxIter, "max-iter", opt.DefaultMaxIter, "Iteration ceiling")
	f.IntVar(&parallelism, "parallel", 0, "Concurrent objective evaluations per iteration (0 or 1 = sequential)")
}

// addOutputFlags registers the artifact flags run and resume share.
func addOutputFlags(f *pflag.FlagSet) {
	def := config.Default().Output
	f.StringVar(&dataDir, "data-dir", def.DataDir, "Base directory for run data")
	f.BoolVar(&plots, "plots", def.Plots, "Render one figure per iteration")
	f.StringVar(&plotFormat, "plot-format", def.PlotFormat, "Figure format (png, svg)")
	f.IntVar(&plotPoints, "plot-points", def.PlotPoints, "Grid points per figure")
	f.StringVar(&exportFormat, "export", def.Export, "Results table format (csv, xlsx, none)")
	f.StringVar(&labelSet, "labels", def.Labels, "Table headers (en, ru)")
	f.BoolVar(&compressTrace, "compress-trace", def.CompressTrace, "Write the trace zstd-compressed")
}

// applyFlags copies every flag set on the command line over file values.
func applyFlags(flags *pflag.FlagSet, file *config.File) {
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}

	set("expr", func() { file.Run.Expr = exprSrc })
	set("a", func() { file.Run.A = lowerBound })
	set("b", func() { file.Run.B = upperBound })
	set("lipschitz", func() { file.Run.L = lipschitz })
	set("eps", func() { file.Run.Eps = eps })
	set("max-iter", func() { file.Run.MaxIter = maxIter })
	set("parallel", func() { file.Run.Parallelism = parallelism })

	set("data-dir", func() { file.Output.DataDir = dataDir })
	set("plots", func() { file.Output.Plots = plots })
	set("plot-format", func() { file.Output.PlotFormat = plotFormat })
	set("plot-points", func() { file.Output.PlotPoints = plotPoints })
	set("export", func() { file.Output.Export = exportFormat })
	set("labels", func() { file.Output.Labels = labelSet })
	set("compress-trace", func() { file.Output.CompressTrace = compressTrace })
}

// loadRunFile reads --config if given, applies flags and reports which of
// the required run parameters are still unset.
func loadRunFile(flags *pflag.FlagSet) (config.File, []string, error) {
	file := config.Default()
	var meta toml.MetaData
	if configPath != "" {
		var err error
		file, meta, err = config.Load(configPath)
		if err != nil {
			return config.File{}, nil, err
		}
		slog.Debug("Loaded run file", "path", configPath)
	}

	applyFlags(flags, &file)

	var missing []string
	for _, p := range []struct{ flag, key string }{
		{"lipschitz", "lipschitz"},
		{"a", "a"},
		{"b", "b"},
		{"expr", "expr"},
	} {
		if !flags.Changed(p.flag) && !meta.IsDefined("run", p.key) {
			missing = append(missing, p.flag)
		}
	}
	return file, missing, nil
}

// promptMissing asks for each missing parameter on in, one line each.
func promptMissing(in io.Reader, out io.Writer, run *config.Run, missing []string) error {
	if len(missing) == 0 {
		return nil
	}

	prompts := map[string]string{
		"lipschitz": "Lipschitz constant L: ",
		"a":         "Lower bound a: ",
		"b":         "Upper bound b: ",
		"expr":      "Objective f(x): ",
	}

	reader := bufio.NewReader(in)
	for _, name := range missing {
		fmt.Fprint(out, prompts[name])
		line, err := reader.ReadString('\n')
		line = strings.TrimSpace(line)
		if err != nil && (err != io.EOF || line == "") {
			return fmt.Errorf("missing --%s", name)
		}

		if name == "expr" {
			run.Expr = line
			continue
		}

		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, line, err)
		}
		switch name {
		case "lipschitz":
			run.L = v
		case "a":
			run.A = v
		case "b":
			run.B = v
		}
	}
	return nil
}

func runOptimization(cmd *cobra.Command, args []string) error {
	file, missing, err := loadRunFile(cmd.Flags())
	if err != nil {
		return err
	}
	if err := promptMissing(cmd.InOrStdin(), cmd.OutOrStdout(), &file.Run, missing); err != nil {
		return err
	}
	if err := file.Output.Validate(); err != nil {
		return err
	}

	e, err := file.Run.Compile()
	if err != nil {
		return err
	}

	id := runID
	if id == "" {
		id = uuid.New().String()
	}

	st, err := store.NewFSStore(file.Output.DataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}
	if _, err := st.LoadRun(id); err == nil {
		return fmt.Errorf("run %s already exists; use resume to continue it", id)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	slog.Info("Starting run",
		"run_id", id,
		"expr", e.String(),
		"a", file.Run.A,
		"b", file.Run.B,
		"l", file.Run.L,
		"eps", file.Run.Eps,
		"max_iter", file.Run.MaxIter,
	)

	p, err := opt.NewPiyavskiy(file.Run.Options(), e.Objective())
	if err != nil {
		return err
	}

	sess, err := openSession(st, id, file.Run, file.Output, e.Objective(), false)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	res, runErr := p.Run(ctx, sess.observer())
	slog.Info("Run finished",
		"run_id", id,
		"status", res.Status,
		"iterations", len(res.Records),
		"elapsed", time.Since(start),
		"violations", p.Tracker().Violations(),
	)

	return report(cmd.OutOrStdout(), sess, file, res, runErr, 0)
}

// report saves and prints the outcome of a session. The run error, if any,
// takes precedence over artifact errors.
func report(w io.Writer, sess *session, file config.File, res *opt.Result, runErr error, earlierEvals int) error {
	cp, finishErr := sess.finish(file.Run, res, runErr, earlierEvals)

	labels, _ := store.LabelsFor(file.Output.Labels)
	if len(cp.Records) > 0 {
		if err := printRecords(w, cp.Records, labels); err != nil {
			return err
		}
	}
	printSummary(w, cp, sess.store.RunDir(sess.runID))

	if runErr != nil {
		return runErr
	}
	return finishErr
}
