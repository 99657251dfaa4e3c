package viewer

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/okian/gaitlog/internal/domain/model"
	"github.com/okian/gaitlog/internal/domain/types"
)

// Curve colours. Sessions are coloured by foot, not individually.
const (
	ColorPitchLeft  = "1f77b4"
	ColorRollLeft   = "ff7f0e"
	ColorPitchRight = "2ca02c"
	ColorRollRight  = "d62728"
)

const (
	defaultWidth  = 700
	defaultHeight = 380
)

// Scale is a closed axis domain.
type Scale struct {
	Min, Max float64
}

// Curve is one line of the overlay.
type Curve struct {
	SessionID string
	Kind      string // pitch or roll
	Color     string
	Time      []float64
	Values    []float64
}

// Plot is the renderable model of a selection: every curve on one pair of
// scales spanning the union of all values.
type Plot struct {
	X, Y   Scale
	Curves []Curve
}

// BuildPlot lays out the average steps of details on shared scales. An empty
// input yields an empty plot.
func BuildPlot(details []types.Detail) Plot {
	var (
		p    Plot
		xs   = newExtent()
		ys   = newExtent()
		have bool
	)
	for _, d := range details {
		step := d.AverageStep
		n := min(len(step.Time), len(step.Pitch), len(step.Roll))
		if n == 0 {
			continue
		}
		have = true
		xs.add(step.Time[:n]...)
		ys.add(step.Pitch[:n]...)
		ys.add(step.Roll[:n]...)

		pitchColor, rollColor := ColorPitchRight, ColorRollRight
		if model.IsLeftFoot(d.SessionID) {
			pitchColor, rollColor = ColorPitchLeft, ColorRollLeft
		}
		p.Curves = append(p.Curves,
			Curve{SessionID: d.SessionID, Kind: "pitch", Color: pitchColor, Time: step.Time[:n], Values: step.Pitch[:n]},
			Curve{SessionID: d.SessionID, Kind: "roll", Color: rollColor, Time: step.Time[:n], Values: step.Roll[:n]},
		)
	}
	if !have {
		return Plot{}
	}
	p.X, p.Y = xs.scale(), ys.scale()
	return p
}

type extent struct{ lo, hi float64 }

func newExtent() *extent { return &extent{lo: math.Inf(1), hi: math.Inf(-1)} }

func (e *extent) add(vs ...float64) {
	for _, v := range vs {
		if math.IsNaN(v) {
			continue
		}
		e.lo = math.Min(e.lo, v)
		e.hi = math.Max(e.hi, v)
	}
}

// scale pads a degenerate domain so the chart has a non-zero span.
func (e *extent) scale() Scale {
	if math.IsInf(e.lo, 0) || math.IsInf(e.hi, 0) {
		return Scale{Min: -1, Max: 1}
	}
	if e.lo == e.hi {
		return Scale{Min: e.lo - 1, Max: e.hi + 1}
	}
	return Scale{Min: e.lo, Max: e.hi}
}

// Canvas receives rendered frames.
type Canvas interface {
	Draw(png []byte) error
	Clear() error
}

// Renderer draws a Selection onto a Canvas. Every call is a full redraw.
type Renderer struct {
	canvas Canvas
	width  int
	height int
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithSize sets the chart size in pixels.
func WithSize(width, height int) RendererOption {
	return func(r *Renderer) {
		if width > 0 && height > 0 {
			r.width, r.height = width, height
		}
	}
}

// NewRenderer creates a renderer drawing onto c.
func NewRenderer(c Canvas, opts ...RendererOption) *Renderer {
	r := &Renderer{canvas: c, width: defaultWidth, height: defaultHeight}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render redraws sel. An empty selection clears the canvas.
func (r *Renderer) Render(sel *Selection) error {
	plot := BuildPlot(sel.Details())
	if len(plot.Curves) == 0 {
		return r.canvas.Clear()
	}
	png, err := r.PNG(plot)
	if err != nil {
		return err
	}
	return r.canvas.Draw(png)
}

// PNG renders plot with go-chart.
func (r *Renderer) PNG(plot Plot) ([]byte, error) {
	series := make([]chart.Series, 0, len(plot.Curves))
	for _, c := range plot.Curves {
		series = append(series, chart.ContinuousSeries{
			Name:    c.SessionID + " " + c.Kind,
			XValues: c.Time,
			YValues: c.Values,
			Style: chart.Style{
				StrokeColor: drawing.ColorFromHex(c.Color),
				StrokeWidth: 2,
			},
		})
	}

	ch := chart.Chart{
		Width:  r.width,
		Height: r.height,
		Background: chart.Style{
			Padding: chart.Box{Top: 20, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: chart.XAxis{
			Name:           "time (s)",
			Range:          &chart.ContinuousRange{Min: plot.X.Min, Max: plot.X.Max},
			ValueFormatter: func(v interface{}) string { return fmt.Sprintf("%.1f", v) },
		},
		YAxis: chart.YAxis{
			Name:  "degrees",
			Range: &chart.ContinuousRange{Min: plot.Y.Min, Max: plot.Y.Max},
		},
		Series: series,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}

	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return buf.Bytes(), nil
}

// FileCanvas writes each frame to Path; clearing removes the file.
type FileCanvas struct {
	Path string
}

// Draw replaces the file with png.
func (c FileCanvas) Draw(png []byte) error {
	return os.WriteFile(c.Path, png, 0o644)
}

// Clear removes the file.
func (c FileCanvas) Clear() error {
	if err := os.Remove(c.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// MemoryCanvas keeps the current frame in memory.
type MemoryCanvas struct {
	mu     sync.Mutex
	frame  []byte
	draws  int
	clears int
}

// Draw replaces the current frame.
func (c *MemoryCanvas) Draw(png []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frame = append([]byte(nil), png...)
	c.draws++
	return nil
}

// Clear drops the current frame.
func (c *MemoryCanvas) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frame = nil
	c.clears++
	return nil
}

// Frame returns the current frame, nil when cleared.
func (c *MemoryCanvas) Frame() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame
}

// Counts returns how many draws and clears the canvas has seen.
func (c *MemoryCanvas) Counts() (draws, clears int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draws, c.clears
}
