package main

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/piyavskiy/internal/config"
	"github.com/cwbudde/piyavskiy/internal/opt"
	"github.com/cwbudde/piyavskiy/internal/store"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(append(args, "--log-level", "error"))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRunAndResume(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "run",
		"--expr", "x^2", "--a", "-1", "--b", "1", "-L", "2",
		"--eps", "0.01", "--max-iter", "2",
		"--data-dir", dir, "--run-id", "demo", "--compress-trace",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Run demo: max_iter_reached after 2 iterations (5 evaluations)")
	assert.Contains(t, out, "-0.25")

	st, err := store.NewFSStore(dir)
	require.NoError(t, err)
	cp, err := st.LoadRun("demo")
	require.NoError(t, err)
	require.NoError(t, cp.Validate())
	assert.Equal(t, opt.StatusMaxIter, cp.Status)
	assert.Equal(t, []opt.IterationRecord{
		{Iteration: 1, X: 0, Lower: -1, Upper: 0, Delta: 1},
		{Iteration: 2, X: -0.25, Lower: -0.5, Upper: 0.0625, Delta: 0.5625},
	}, cp.Records)

	_, err = os.Stat(store.ExportPath(dir, "demo", "csv"))
	assert.NoError(t, err)

	_, err = execute(t, "run",
		"--expr", "x^2", "--a", "-1", "--b", "1", "-L", "2",
		"--data-dir", dir, "--run-id", "demo",
	)
	assert.ErrorContains(t, err, "already exists")

	out, err = execute(t, "resume", "demo", "--data-dir", dir, "--max-iter", "200")
	require.NoError(t, err)
	assert.Contains(t, out, "Run demo: converged")

	cp, err = st.LoadRun("demo")
	require.NoError(t, err)
	assert.Equal(t, opt.StatusConverged, cp.Status)
	assert.Greater(t, len(cp.Records), 2)
	assert.Greater(t, cp.Evaluations, 5)
	assert.Equal(t, 200, cp.Config.MaxIter)
	for i, r := range cp.Records {
		assert.Equal(t, i+1, r.Iteration)
	}
	last := cp.Records[len(cp.Records)-1]
	assert.Less(t, last.Delta, 0.01)

	// The trace keeps its compression across sessions and covers both.
	path, compressed, err := store.FindTrace(dir, "demo")
	require.NoError(t, err)
	assert.True(t, compressed)
	assert.True(t, strings.HasSuffix(path, ".zst"))

	tr, err := store.NewTraceReader(dir, "demo")
	require.NoError(t, err)
	defer tr.Close()
	entries, err := tr.ReadAll()
	require.NoError(t, err)
	assert.Len(t, entries, len(cp.Records))

	// Nothing left to do once converged.
	out, err = execute(t, "resume", "demo", "--data-dir", dir, "--max-iter", "300")
	require.NoError(t, err)
	assert.Contains(t, out, "already converged")
}

func TestResume_NotFound(t *testing.T) {
	_, err := execute(t, "resume", "missing", "--data-dir", t.TempDir())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestApplyFlags(t *testing.T) {
	f := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f.StringVar(&exprSrc, "expr", "", "")
	f.Float64Var(&lowerBound, "a", 0, "")
	f.Float64Var(&upperBound, "b", 0, "")
	f.Float64VarP(&lipschitz, "lipschitz", "L", 0, "")
	addTuningFlags(f)
	addOutputFlags(f)

	require.NoError(t, f.Parse([]string{"--expr", "sin(x)", "-L", "1.5", "--labels", "ru"}))

	file := config.Default()
	file.Run.A, file.Run.B = -2, 2
	applyFlags(f, &file)

	assert.Equal(t, "sin(x)", file.Run.Expr)
	assert.Equal(t, 1.5, file.Run.L)
	assert.Equal(t, -2.0, file.Run.A, "unset flags keep file values")
	assert.Equal(t, 2.0, file.Run.B)
	assert.Equal(t, opt.DefaultEps, file.Run.Eps)
	assert.Equal(t, "ru", file.Output.Labels)
	assert.Equal(t, "csv", file.Output.Export)
}

func TestPromptMissing(t *testing.T) {
	var run config.Run
	var out bytes.Buffer
	in := strings.NewReader("3.3\n-3\n3\nsin(3*x) + 0.3*x\n")

	err := promptMissing(in, &out, &run, []string{"lipschitz", "a", "b", "expr"})
	require.NoError(t, err)

	assert.Equal(t, config.Run{Expr: "sin(3*x) + 0.3*x", A: -3, B: 3, L: 3.3}, run)
	assert.Equal(t, "Lipschitz constant L: Lower bound a: Upper bound b: Objective f(x): ", out.String())
}

func TestPromptMissing_Errors(t *testing.T) {
	var run config.Run

	err := promptMissing(strings.NewReader("abc\n"), &bytes.Buffer{}, &run, []string{"a"})
	assert.ErrorContains(t, err, `invalid a "abc"`)

	err = promptMissing(strings.NewReader(""), &bytes.Buffer{}, &run, []string{"expr"})
	assert.ErrorContains(t, err, "missing --expr")

	assert.NoError(t, promptMissing(strings.NewReader(""), &bytes.Buffer{}, &run, nil))
}

func TestPrintRecords(t *testing.T) {
	records := []opt.IterationRecord{
		{Iteration: 1, X: 0, Lower: -1, Upper: 0, Delta: 1},
		{Iteration: 2, X: -0.25, Lower: -0.5, Upper: 0.0625, Delta: 0.5625},
	}

	var out bytes.Buffer
	require.NoError(t, printRecords(&out, records, store.EnglishLabels))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"iteration", "x", "lower", "upper", "delta"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"2", "-0.25", "-0.5", "0.0625", "0.5625"}, strings.Fields(lines[2]))
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "0.3333", formatFloat(1.0/3))
	assert.Equal(t, "0", formatFloat(-0.00001))
	assert.Equal(t, "-2.6511", formatFloat(-2.65109))
}

func TestPrintSummary_Violations(t *testing.T) {
	cp := &store.Checkpoint{RunID: "demo", Status: opt.StatusConverged, Violations: 1}

	var out bytes.Buffer
	printSummary(&out, cp, "data/runs/demo")
	assert.Contains(t, out.String(), "1 iteration(s) had a negative gap")

	out.Reset()
	cp.Violations = 0
	printSummary(&out, cp, "data/runs/demo")
	assert.NotContains(t, out.String(), "warning")
}
