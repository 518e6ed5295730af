package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/piyavskiy/internal/opt"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
[run]
expr = "sin(3 * x) + 0.3 * x"
a = -3
b = 3.0
lipschitz = 3.3
max_iter = 200

[output]
plots = true
labels = "ru"
`)

	cfg, meta, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sin(3 * x) + 0.3 * x", cfg.Run.Expr)
	assert.Equal(t, -3.0, cfg.Run.A)
	assert.Equal(t, 3.0, cfg.Run.B)
	assert.Equal(t, 3.3, cfg.Run.L)
	assert.Equal(t, 200, cfg.Run.MaxIter)
	assert.Equal(t, opt.DefaultEps, cfg.Run.Eps, "unset keys keep defaults")
	assert.True(t, cfg.Output.Plots)
	assert.Equal(t, "ru", cfg.Output.Labels)
	assert.Equal(t, "csv", cfg.Output.Export)

	assert.True(t, meta.IsDefined("run", "max_iter"))
	assert.False(t, meta.IsDefined("run", "eps"))
	assert.NoError(t, cfg.Validate())
}

func TestLoad_UnknownKey(t *testing.T) {
	path := writeConfig(t, `
[run]
expr = "x"
lipshitz = 2
`)

	_, _, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run.lipshitz")
}

func TestLoad_MissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestRun_Validate(t *testing.T) {
	valid := Run{Expr: "x^2", A: -1, B: 1, L: 2, Eps: 0.01, MaxIter: 50}
	require.NoError(t, valid.Validate())

	e, err := valid.Compile()
	require.NoError(t, err)
	assert.Equal(t, "x^2", e.String())

	noExpr := valid
	noExpr.Expr = " "
	assert.Error(t, noExpr.Validate())

	degenerate := valid
	degenerate.B = degenerate.A
	assert.ErrorIs(t, degenerate.Validate(), opt.ErrDomain)

	badL := valid
	badL.L = 0
	assert.ErrorIs(t, badL.Validate(), opt.ErrDomain)

	badExpr := valid
	badExpr.Expr = "foo(x)"
	_, err = badExpr.Compile()
	assert.Error(t, err)
}

func TestRun_Options(t *testing.T) {
	r := Run{Expr: "x", A: 1, B: 2, L: 3, Eps: 0.5, MaxIter: 7, Parallelism: 2}
	assert.Equal(t, opt.Config{A: 1, B: 2, L: 3, Eps: 0.5, MaxIter: 7, Parallelism: 2}, r.Options())
}

func TestOutput_Validate(t *testing.T) {
	out := Default().Output
	require.NoError(t, out.Validate())

	bad := out
	bad.PlotFormat = "gif"
	assert.Error(t, bad.Validate())

	bad = out
	bad.Export = "json"
	assert.Error(t, bad.Validate())

	bad = out
	bad.Labels = "de"
	assert.Error(t, bad.Validate())

	bad = out
	bad.PlotPoints = 1
	assert.Error(t, bad.Validate())
}
