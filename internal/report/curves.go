package report

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"epiworld.sim/internal/sim/database"
)

// Curves accumulates per-day status counts across replicates.
type Curves struct {
	Statuses []string
	sum      [][]float64
	n        int
}

func NewCurves(statuses []string) *Curves {
	return &Curves{Statuses: append([]string(nil), statuses...)}
}

// Add folds one replicate's history into the running sums. Replicates with a shorter
// history only contribute to the days they have.
func (c *Curves) Add(db *database.Database) {
	for day, row := range db.History() {
		if day >= len(c.sum) {
			c.sum = append(c.sum, make([]float64, len(c.Statuses)))
		}
		for s, v := range row {
			if s < len(c.Statuses) {
				c.sum[day][s] += float64(v)
			}
		}
	}
	c.n++
}

func (c *Curves) Replicates() int { return c.n }
func (c *Curves) Days() int       { return len(c.sum) }

// Mean returns the day x status matrix of mean counts.
func (c *Curves) Mean() [][]float64 {
	out := make([][]float64, len(c.sum))
	for d, row := range c.sum {
		out[d] = make([]float64, len(row))
		if c.n == 0 {
			continue
		}
		for s, v := range row {
			out[d][s] = v / float64(c.n)
		}
	}
	return out
}

var palette = []drawing.Color{
	chart.ColorBlue,
	drawing.Color{R: 255, G: 165, B: 0, A: 255},
	chart.ColorRed,
	chart.ColorGreen,
	chart.ColorBlack,
	drawing.Color{R: 128, G: 0, B: 128, A: 255},
}

// RenderCurves draws the mean epidemic curve of every status as a PNG.
func RenderCurves(w io.Writer, c *Curves, title string) error {
	mean := c.Mean()
	if len(mean) < 2 {
		return fmt.Errorf("render curves: need at least 2 days, have %d", len(mean))
	}
	xs := make([]float64, len(mean))
	for d := range xs {
		xs[d] = float64(d)
	}
	series := make([]chart.Series, 0, len(c.Statuses))
	for s, name := range c.Statuses {
		ys := make([]float64, len(mean))
		for d := range mean {
			ys[d] = mean[d][s]
		}
		series = append(series, chart.ContinuousSeries{
			Name:    name,
			XValues: xs,
			YValues: ys,
			Style:   chart.Style{StrokeColor: palette[s%len(palette)], StrokeWidth: 3.0},
		})
	}

	graph := chart.Chart{
		Title:  title,
		Width:  960,
		Height: 540,
		XAxis: chart.XAxis{
			Name:  "day",
			Style: chart.Style{FontSize: 10.0},
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("%d", int(v.(float64)))
			},
		},
		YAxis: chart.YAxis{
			Name:  "agents",
			Style: chart.Style{FontSize: 10.0},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return fmt.Errorf("render curves: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// WriteCurvesPNG renders the curves to path.
func WriteCurvesPNG(path string, c *Curves, title string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := RenderCurves(&buf, c, title); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
