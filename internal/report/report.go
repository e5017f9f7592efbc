// Package report summarises recorded hip heading error series: windowing,
// ground truth correction, averages and line plots.
package report

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/locomotion.vr/internal/metrics"
)

var ErrNoGroundTruth = errors.New("report: ground truth series is empty")

// Config bounds the analysed time window (exclusive, seconds).
type Config struct {
	MinTime float64
	MaxTime float64
}

// DefaultConfig skips the first two seconds of warm up and stops at 50 s.
func DefaultConfig() Config {
	return Config{MinTime: 2, MaxTime: 50}
}

// Series is a named sample sequence.
type Series struct {
	Name    string
	Samples []metrics.Sample
}

// Summary is the outcome for one series.
type Summary struct {
	Name  string
	Mean  float64 // degrees, NaN when Count is 0
	Count int
}

// Window keeps the samples with MinTime < Time < MaxTime.
func (c Config) Window(samples []metrics.Sample) []metrics.Sample {
	out := make([]metrics.Sample, 0, len(samples))
	for _, s := range samples {
		if s.Time > c.MinTime && s.Time < c.MaxTime {
			out = append(out, s)
		}
	}
	return out
}

// GroundTruth predicts the baseline error of the ground truth setup at any
// time by linear interpolation, holding the end values outside its range.
type GroundTruth struct {
	pl       interp.PiecewiseLinear
	constant *float64
}

// NewGroundTruth fits samples. Samples are sorted by time and repeated
// timestamps keep the first value.
func NewGroundTruth(samples []metrics.Sample) (*GroundTruth, error) {
	if len(samples) == 0 {
		return nil, ErrNoGroundTruth
	}
	sorted := append([]metrics.Sample(nil), samples...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })

	xs := make([]float64, 0, len(sorted))
	ys := make([]float64, 0, len(sorted))
	for _, s := range sorted {
		if len(xs) > 0 && s.Time == xs[len(xs)-1] {
			continue
		}
		xs = append(xs, s.Time)
		ys = append(ys, s.Angle)
	}

	gt := &GroundTruth{}
	if len(xs) == 1 {
		gt.constant = &ys[0]
		return gt, nil
	}
	if err := gt.pl.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("report: fit ground truth: %w", err)
	}
	return gt, nil
}

// GroundTruth windows samples to the analysed range and fits them, so
// samples outside the window never shape the correction.
func (c Config) GroundTruth(samples []metrics.Sample) (*GroundTruth, error) {
	return NewGroundTruth(c.Window(samples))
}

// At returns the interpolated ground truth error at t.
func (g *GroundTruth) At(t float64) float64 {
	if g.constant != nil {
		return *g.constant
	}
	return g.pl.Predict(t)
}

// Correct subtracts the ground truth error from every sample.
func (g *GroundTruth) Correct(samples []metrics.Sample) []metrics.Sample {
	out := make([]metrics.Sample, len(samples))
	for i, s := range samples {
		out[i] = metrics.Sample{Time: s.Time, Angle: s.Angle - g.At(s.Time)}
	}
	return out
}

// Mean returns the average angle, or NaN for no samples.
func Mean(samples []metrics.Sample) float64 {
	if len(samples) == 0 {
		return math.NaN()
	}
	angles := make([]float64, len(samples))
	for i, s := range samples {
		angles[i] = s.Angle
	}
	return stat.Mean(angles, nil)
}

// Analyse windows every series, corrects it by gt when gt is non-nil, and
// returns the processed series with their summaries.
func (c Config) Analyse(gt *GroundTruth, series []Series) ([]Series, []Summary) {
	processed := make([]Series, len(series))
	summaries := make([]Summary, len(series))
	for i, s := range series {
		samples := c.Window(s.Samples)
		if gt != nil {
			samples = gt.Correct(samples)
		}
		processed[i] = Series{Name: s.Name, Samples: samples}
		summaries[i] = Summary{Name: s.Name, Mean: Mean(samples), Count: len(samples)}
	}
	return processed, summaries
}

// Plot draws every series as a line and writes a PNG to w.
func Plot(w io.Writer, title string, series []Series) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = "angular error (degrees)"

	colors := generateColors(len(series))
	for i, s := range series {
		if len(s.Samples) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(s.Samples))
		for j, sample := range s.Samples {
			pts[j] = plotter.XY{X: sample.Time, Y: sample.Angle}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("report: %s: %w", s.Name, err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(s.Name, line)
	}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	wt, err := p.WriterTo(10*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("report: render plot: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// generateColors spreads n line colours evenly over the hue circle.
func generateColors(n int) []color.Color {
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.45)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

func hslToRGB(h, s, l float64) (r, g, b uint8) {
	q := l + s - l*s
	if l < 0.5 {
		q = l * (1 + s)
	}
	p := 2*l - q
	return channel(p, q, h+1.0/3.0), channel(p, q, h), channel(p, q, h-1.0/3.0)
}

func channel(p, q, t float64) uint8 {
	t -= math.Floor(t)
	var v float64
	switch {
	case t < 1.0/6.0:
		v = p + (q-p)*6*t
	case t < 1.0/2.0:
		v = q
	case t < 2.0/3.0:
		v = p + (q-p)*(2.0/3.0-t)*6
	default:
		v = p
	}
	return uint8(math.Round(v * 255))
}
