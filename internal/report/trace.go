// Package report renders the per-frame decision trace of a run.
package report

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/kai5263499/keyframe-sentry/internal/keyframe"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// ErrUnsupportedFormat is returned by Save for unknown file extensions.
var ErrUnsupportedFormat = errors.New("unsupported trace format")

var decisionOrder = []keyframe.Decision{
	keyframe.DecisionReject,
	keyframe.DecisionAcceptImmediate,
	keyframe.DecisionEscalateConfirm,
	keyframe.DecisionEscalateReject,
}

// Trace collects samples from a pipeline.
type Trace struct {
	mu      sync.Mutex
	samples []keyframe.Sample
}

func NewTrace() *Trace {
	return &Trace{}
}

// Observe implements keyframe.Observer.
func (t *Trace) Observe(s keyframe.Sample) {
	t.mu.Lock()
	t.samples = append(t.samples, s)
	t.mu.Unlock()
}

// Samples returns a copy of the collected samples.
func (t *Trace) Samples() []keyframe.Sample {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]keyframe.Sample, len(t.samples))
	copy(out, t.samples)
	return out
}

// Save writes the trace to path, choosing the format from the extension:
// .html for an interactive page, .png for a static chart.
func (t *Trace) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create trace dir: %w", err)
		}
	}

	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".html", ".htm":
		err = t.saveHTML(path)
	case ".png":
		err = t.SavePNG(path)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return err
	}
	log.Info().Str("path", path).Int("samples", len(t.Samples())).Msg("Decision trace written")
	return nil
}

func (t *Trace) saveHTML(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create trace: %w", err)
	}
	if err := t.WriteHTML(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteHTML renders the motion and threshold series plus a decision
// histogram as a single page.
func (t *Trace) WriteHTML(w io.Writer) error {
	samples := t.Samples()

	frames := make([]int, 0, len(samples))
	motion1 := make([]opts.LineData, 0, len(samples))
	motion2 := make([]opts.LineData, 0, len(samples))
	low := make([]opts.LineData, 0, len(samples))
	high := make([]opts.LineData, 0, len(samples))
	for _, s := range samples {
		frames = append(frames, s.FrameIndex)
		motion1 = append(motion1, opts.LineData{Value: s.Motion1})
		if s.Motion2 >= 0 {
			motion2 = append(motion2, opts.LineData{Value: s.Motion2})
		} else {
			motion2 = append(motion2, opts.LineData{Value: nil})
		}
		low = append(low, opts.LineData{Value: s.Thresholds.Low})
		high = append(high, opts.LineData{Value: s.Thresholds.High})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Keyframe decisions", Width: "100%", Height: "520px"}),
		charts.WithTitleOpts(opts.Title{Title: "Motion scores", Subtitle: fmt.Sprintf("frames=%d", len(samples))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frame", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Foreground pixels"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(frames).
		AddSeries("motion1", motion1).
		AddSeries("motion2", motion2).
		AddSeries("low", low).
		AddSeries("high", high)

	counts := make(map[keyframe.Decision]int)
	for _, s := range samples {
		counts[s.Decision]++
	}
	names := make([]string, 0, len(decisionOrder))
	bars := make([]opts.BarData, 0, len(decisionOrder))
	for _, d := range decisionOrder {
		names = append(names, d.String())
		bars = append(bars, opts.BarData{Value: counts[d]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Decisions"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(names).
		AddSeries("frames", bars,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.AddCharts(line, bar)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render error: %w", err)
	}
	return nil
}

// SavePNG plots the motion scores against the thresholds.
func (t *Trace) SavePNG(path string) error {
	samples := t.Samples()

	p := plot.New()
	p.Title.Text = "Keyframe decisions"
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Foreground pixels"

	var m1, m2, lo, hi plotter.XYs
	for _, s := range samples {
		x := float64(s.FrameIndex)
		m1 = append(m1, plotter.XY{X: x, Y: float64(s.Motion1)})
		if s.Motion2 >= 0 {
			m2 = append(m2, plotter.XY{X: x, Y: float64(s.Motion2)})
		}
		lo = append(lo, plotter.XY{X: x, Y: float64(s.Thresholds.Low)})
		hi = append(hi, plotter.XY{X: x, Y: float64(s.Thresholds.High)})
	}

	if len(m1) > 0 {
		if err := addLine(p, "motion1", m1, 0); err != nil {
			return err
		}
		if err := addLine(p, "low", lo, 1); err != nil {
			return err
		}
		if err := addLine(p, "high", hi, 2); err != nil {
			return err
		}
	}
	if len(m2) > 0 {
		sc, err := plotter.NewScatter(m2)
		if err != nil {
			return err
		}
		sc.GlyphStyle.Color = plotutil.Color(3)
		p.Add(sc)
		p.Legend.Add("motion2", sc)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}

func addLine(p *plot.Plot, name string, pts plotter.XYs, idx int) error {
	l, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	l.Color = plotutil.Color(idx)
	l.Width = vg.Points(1)
	p.Add(l)
	p.Legend.Add(name, l)
	return nil
}
