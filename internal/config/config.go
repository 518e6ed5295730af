package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/cwbudde/piyavskiy/internal/expr"
	"github.com/cwbudde/piyavskiy/internal/opt"
)

// Run holds the parameters of one optimization run. It is shared by the
// command line, the TOML file, the HTTP API and stored checkpoints.
type Run struct {
	Expr        string  `toml:"expr" json:"expr"`
	A           float64 `toml:"a" json:"a"`
	B           float64 `toml:"b" json:"b"`
	L           float64 `toml:"lipschitz" json:"l"`
	Eps         float64 `toml:"eps" json:"eps"`
	MaxIter     int     `toml:"max_iter" json:"maxIter"`
	Parallelism int     `toml:"parallelism" json:"parallelism,omitempty"`
}

// Output controls the artifacts a run writes.
type Output struct {
	DataDir       string `toml:"data_dir"`
	Plots         bool   `toml:"plots"`
	PlotFormat    string `toml:"plot_format"`
	PlotPoints    int    `toml:"plot_points"`
	Export        string `toml:"export"`
	Labels        string `toml:"labels"`
	CompressTrace bool   `toml:"compress_trace"`
}

// File is the layout of a TOML run file:
//
//	[run]
//	expr = "sin(3 * x) + 0.3 * x"
//	a = -3
//	b = 3
//	lipschitz = 3.3
//
//	[output]
//	plots = true
type File struct {
	Run    Run    `toml:"run"`
	Output Output `toml:"output"`
}

// Default returns the configuration used when nothing is specified.
func Default() File {
	return File{
		Run: Run{
			Eps:     opt.DefaultEps,
			MaxIter: opt.DefaultMaxIter,
		},
		Output: Output{
			DataDir:    "./data",
			PlotFormat: "png",
			PlotPoints: 600,
			Export:     "csv",
			Labels:     "en",
		},
	}
}

// Load decodes path over the defaults. Keys the file sets that do not map to
// a field are rejected so typos do not pass silently.
func Load(path string) (File, toml.MetaData, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return File{}, meta, fmt.Errorf("failed to decode config %s: %w", path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return File{}, meta, fmt.Errorf("unknown keys in config %s: %s", path, strings.Join(keys, ", "))
	}

	return cfg, meta, nil
}

// Options converts the run parameters to an optimizer config.
func (r Run) Options() opt.Config {
	return opt.Config{
		A:           r.A,
		B:           r.B,
		L:           r.L,
		Eps:         r.Eps,
		MaxIter:     r.MaxIter,
		Parallelism: r.Parallelism,
	}
}

// Validate checks the run parameters without compiling the expression.
func (r Run) Validate() error {
	if strings.TrimSpace(r.Expr) == "" {
		return errors.New("expression is required")
	}
	return r.Options().Validate()
}

// Compile validates the run and compiles its expression.
func (r Run) Compile() (*expr.Expression, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return expr.Compile(r.Expr)
}

// Validate checks the output settings.
func (o Output) Validate() error {
	switch o.PlotFormat {
	case "png", "svg":
	default:
		return fmt.Errorf("unsupported plot format %q (png, svg)", o.PlotFormat)
	}
	switch o.Export {
	case "csv", "xlsx", "none":
	default:
		return fmt.Errorf("unsupported export format %q (csv, xlsx, none)", o.Export)
	}
	switch o.Labels {
	case "en", "ru":
	default:
		return fmt.Errorf("unsupported label set %q (en, ru)", o.Labels)
	}
	if o.PlotPoints < 2 {
		return fmt.Errorf("plot_points must be at least 2, got %d", o.PlotPoints)
	}
	return nil
}

// Validate checks the whole file.
func (f File) Validate() error {
	if err := f.Run.Validate(); err != nil {
		return err
	}
	return f.Output.Validate()
}
