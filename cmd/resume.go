package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cwbudde/piyavskiy/internal/opt"
	"github.com/cwbudde/piyavskiy/internal/store"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Continue a stored run",
	Long: `Continues a stored run from its saved samples. The objective, interval and
Lipschitz constant are taken from the run; --eps, --max-iter and --parallel
may change. --max-iter counts all iterations, earlier ones included.

With --config the run file must describe the same problem as the stored run.`,
	Example: `  piyavskiy resume 3f2c... --max-iter 200
  piyavskiy resume 3f2c... --eps 0.001 --max-iter 500`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	f := resumeCmd.Flags()
	f.StringVar(&configPath, "config", "", "TOML run file (must match the stored run)")
	addTuningFlags(f)
	addOutputFlags(f)

	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	id := args[0]
	flags := cmd.Flags()

	file, _, err := loadRunFile(flags)
	if err != nil {
		return err
	}
	if err := file.Output.Validate(); err != nil {
		return err
	}

	st, err := store.NewFSStore(file.Output.DataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}
	cp, err := st.LoadRun(id)
	if err != nil {
		return err
	}
	if err := cp.Validate(); err != nil {
		return fmt.Errorf("stored run %s is invalid: %w", id, err)
	}

	run := cp.Config
	if configPath != "" {
		if err := cp.IsCompatible(file.Run); err != nil {
			return fmt.Errorf("run file does not match run %s: %w", id, err)
		}
		run.Eps, run.MaxIter, run.Parallelism = file.Run.Eps, file.Run.MaxIter, file.Run.Parallelism
	}
	if flags.Changed("eps") {
		run.Eps = eps
	}
	if flags.Changed("max-iter") {
		run.MaxIter = maxIter
	}
	if flags.Changed("parallel") {
		run.Parallelism = parallelism
	}

	if len(cp.Records) >= run.MaxIter {
		return fmt.Errorf("run %s already has %d iterations; raise --max-iter", id, len(cp.Records))
	}

	e, err := run.Compile()
	if err != nil {
		return err
	}

	p, err := opt.Restore(run.Options(), e.Objective(), cp.Samples, cp.Records)
	if err != nil {
		return err
	}
	if p.Status() == opt.StatusConverged {
		last, _ := cp.Result().Last()
		fmt.Fprintf(cmd.OutOrStdout(), "Run %s already converged (delta %s < eps %g); lower --eps to refine it.\n", id, formatFloat(last.Delta), run.Eps)
		return nil
	}

	slog.Info("Resuming run",
		"run_id", id,
		"from_iteration", len(cp.Records),
		"max_iter", run.MaxIter,
		"eps", run.Eps,
	)

	sess, err := openSession(st, id, run, file.Output, e.Objective(), true)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, runErr := p.Run(ctx, sess.observer())

	file.Run = run
	return report(cmd.OutOrStdout(), sess, file, res, runErr, cp.Evaluations)
}
