// Package plot renders one diagnostic figure per iteration: the objective,
// the saw-tooth minorant built from the samples, the bounding lines of every
// sample and the candidate selected by the iteration.
package plot

import (
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/cwbudde/piyavskiy/internal/opt"
)

// DefaultPoints is the grid resolution used when Options.Points is zero.
const DefaultPoints = 600

var (
	objectiveColor = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	boundColor     = color.RGBA{G: 0x80, A: 0x66}
	envelopeColor  = color.RGBA{G: 0x80, A: 0xff}
	lowerColor     = color.RGBA{R: 0xff, A: 0xff}
	upperColor     = color.RGBA{R: 0xe6, G: 0xc2, A: 0xff}
)

// Options controls plot output.
type Options struct {
	Dir    string // output directory, created on demand
	Format string // "png" or "svg"
	Points int    // grid resolution
	Width  vg.Length
	Height vg.Length
}

func (o Options) withDefaults() Options {
	if o.Format == "" {
		o.Format = "png"
	}
	if o.Points == 0 {
		o.Points = DefaultPoints
	}
	if o.Width == 0 {
		o.Width = 10 * vg.Inch
	}
	if o.Height == 0 {
		o.Height = 6 * vg.Inch
	}
	return o
}

// Grid returns n evenly spaced points from a to b inclusive.
func Grid(a, b float64, n int) []float64 {
	return floats.Span(make([]float64, n), a, b)
}

// Renderer draws iteration snapshots of one run. The objective is sampled on
// the grid once, up front.
type Renderer struct {
	opts Options
	xs   []float64
	ys   []float64
}

// NewRenderer samples f on [a, b]. Grid points where f fails are left out of
// the figure rather than failing the run.
func NewRenderer(f opt.Objective, a, b float64, opts Options) (*Renderer, error) {
	opts = opts.withDefaults()
	if !(a < b) {
		return nil, fmt.Errorf("invalid plot range [%g, %g]", a, b)
	}
	if opts.Points < 2 {
		return nil, fmt.Errorf("plot needs at least 2 grid points, got %d", opts.Points)
	}
	switch opts.Format {
	case "png", "svg":
	default:
		return nil, fmt.Errorf("unsupported plot format %q", opts.Format)
	}
	if opts.Dir == "" {
		return nil, errors.New("plot directory is required")
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create plot directory: %w", err)
	}

	xs := Grid(a, b, opts.Points)
	ys := make([]float64, len(xs))
	skipped := 0
	for i, x := range xs {
		y, err := f(x)
		if err != nil || math.IsInf(y, 0) {
			y = math.NaN()
		}
		if math.IsNaN(y) {
			skipped++
		}
		ys[i] = y
	}
	if skipped > 0 {
		slog.Warn("Objective undefined on part of the plot grid", "points", skipped, "of", len(xs))
	}

	return &Renderer{opts: opts, xs: xs, ys: ys}, nil
}

// Path returns the file the figure of an iteration is written to.
func (r *Renderer) Path(iteration int) string {
	return filepath.Join(r.opts.Dir, fmt.Sprintf("iter_%d.%s", iteration, r.opts.Format))
}

// Render draws snap and saves it. It returns the written path.
func (r *Renderer) Render(snap opt.Snapshot) (string, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Iteration %d", snap.Iteration)
	p.X.Label.Text = "x"
	p.Y.Label.Text = "f(x)"
	p.Add(plotter.NewGrid())

	if err := addCurve(p, r.xs, r.ys, draw.LineStyle{Color: objectiveColor, Width: vg.Points(1.5)}, "f(x)"); err != nil {
		return "", err
	}

	bound := draw.LineStyle{Color: boundColor, Width: vg.Points(1), Dashes: []vg.Length{vg.Points(4), vg.Points(3)}}
	for _, s := range snap.Samples {
		left := clip(opt.LeftBoundLine(s, snap.L, r.xs), r.ys)
		right := clip(opt.RightBoundLine(s, snap.L, r.xs), r.ys)
		if err := addCurve(p, r.xs, left, bound, ""); err != nil {
			return "", err
		}
		if err := addCurve(p, r.xs, right, bound, ""); err != nil {
			return "", err
		}
	}

	envelope := snap.Envelope(r.xs)
	if err := addCurve(p, r.xs, envelope, draw.LineStyle{Color: envelopeColor, Width: vg.Points(2)}, "minorant"); err != nil {
		return "", err
	}

	samples := make(plotter.XYs, len(snap.Samples))
	for i, s := range snap.Samples {
		samples[i] = plotter.XY{X: s.X, Y: s.Y}
	}
	if err := addPoints(p, samples, color.Black, vg.Points(3), ""); err != nil {
		return "", err
	}

	c := snap.Candidate()
	gap, err := plotter.NewLine(plotter.XYs{{X: c.X, Y: c.Lower}, {X: c.X, Y: c.Upper}})
	if err != nil {
		return "", fmt.Errorf("failed to draw gap: %w", err)
	}
	gap.LineStyle = draw.LineStyle{Color: color.Black, Width: vg.Points(1), Dashes: []vg.Length{vg.Points(4), vg.Points(3)}}
	p.Add(gap)

	if err := addPoints(p, plotter.XYs{{X: c.X, Y: c.Lower}}, lowerColor, vg.Points(4), "lower bound"); err != nil {
		return "", err
	}
	if err := addPoints(p, plotter.XYs{{X: c.X, Y: c.Upper}}, upperColor, vg.Points(4), "f(candidate)"); err != nil {
		return "", err
	}

	path := r.Path(snap.Iteration)
	if err := p.Save(r.opts.Width, r.opts.Height, path); err != nil {
		return "", fmt.Errorf("failed to save plot: %w", err)
	}

	slog.Debug("Plot saved", "iteration", snap.Iteration, "path", path)
	return path, nil
}

// Observer returns an iteration observer that renders every snapshot.
func (r *Renderer) Observer() opt.IterationFunc {
	return func(snap opt.Snapshot) error {
		_, err := r.Render(snap)
		return err
	}
}

// clip keeps a bounding line below the objective: min(line, f) pointwise,
// undefined wherever f is.
func clip(line, ys []float64) []float64 {
	for i, y := range ys {
		if y < line[i] || math.IsNaN(y) {
			line[i] = y
		}
	}
	return line
}

// segments splits a curve at undefined points, which plotter rejects.
func segments(xs, ys []float64) []plotter.XYs {
	var out []plotter.XYs
	var cur plotter.XYs
	for i, y := range ys {
		if math.IsNaN(y) || math.IsInf(y, 0) {
			if len(cur) > 1 {
				out = append(out, cur)
			}
			cur = nil
			continue
		}
		cur = append(cur, plotter.XY{X: xs[i], Y: y})
	}
	if len(cur) > 1 {
		out = append(out, cur)
	}
	return out
}

func addCurve(p *plot.Plot, xs, ys []float64, style draw.LineStyle, label string) error {
	for i, seg := range segments(xs, ys) {
		line, err := plotter.NewLine(seg)
		if err != nil {
			return fmt.Errorf("failed to draw line: %w", err)
		}
		line.LineStyle = style
		p.Add(line)
		if i == 0 && label != "" {
			p.Legend.Add(label, line)
		}
	}
	return nil
}

func addPoints(p *plot.Plot, pts plotter.XYs, c color.Color, radius vg.Length, label string) error {
	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("failed to draw points: %w", err)
	}
	sc.GlyphStyle = draw.GlyphStyle{Color: c, Radius: radius, Shape: draw.CircleGlyph{}}
	p.Add(sc)
	if label != "" {
		p.Legend.Add(label, sc)
	}
	return nil
}
