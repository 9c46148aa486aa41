package report

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/guregu/null/v6"
	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Line is one plotted series; undefined values are left out of the line.
type Line struct {
	Name   string
	Values []null.Float
	Dashed bool
}

// ChartSpec describes a time-series line chart.
type ChartSpec struct {
	Title  string
	XLabel string
	YLabel string
	Times  []time.Time
	Lines  []Line
}

// Renderer draws a ChartSpec into inlinable image bytes.
type Renderer interface {
	Render(spec ChartSpec) ([]byte, error)
	MIMEType() string
}

var (
	backgroundColor = drawing.ColorFromHex("1e1e1e")
	textColor       = drawing.ColorFromHex("e0e0e0")
	gridColor       = drawing.ColorFromHex("3a3a3a")
	lineColors      = []drawing.Color{
		drawing.ColorFromHex("00e5ff"),
		drawing.ColorFromHex("ff4fd8"),
		drawing.ColorFromHex("ffd54f"),
	}
)

const axisTimeFormat = "01-02 15:04"

// formatAxisTime labels x ticks in UTC; go-chart would use the local zone.
func formatAxisTime(v interface{}) string {
	switch t := v.(type) {
	case float64:
		return time.Unix(0, int64(t)).UTC().Format(axisTimeFormat)
	case time.Time:
		return t.UTC().Format(axisTimeFormat)
	}
	return chart.TimeValueFormatterWithFormat(axisTimeFormat)(v)
}

// ChartRenderer renders PNG charts with go-chart.
type ChartRenderer struct {
	Width  int
	Height int
}

// NewChartRenderer returns a renderer with the default 1200x600 canvas.
func NewChartRenderer() *ChartRenderer {
	return &ChartRenderer{Width: 1200, Height: 600}
}

func (r *ChartRenderer) MIMEType() string { return "image/png" }

// Render draws every line with at least one defined point.
func (r *ChartRenderer) Render(spec ChartSpec) ([]byte, error) {
	if len(spec.Times) == 0 {
		return nil, errors.New("chart has no points")
	}

	var series []chart.Series
	yMin, yMax := math.Inf(1), math.Inf(-1)
	for i, line := range spec.Lines {
		if len(line.Values) != len(spec.Times) {
			return nil, fmt.Errorf("line %q: %d values for %d timestamps", line.Name, len(line.Values), len(spec.Times))
		}
		ts := chart.TimeSeries{
			Name: line.Name,
			Style: chart.Style{
				StrokeColor: lineColors[i%len(lineColors)],
				StrokeWidth: 1.5,
			},
		}
		if line.Dashed {
			ts.Style.StrokeWidth = 2
			ts.Style.StrokeDashArray = []float64{6, 4}
		}
		for j, v := range line.Values {
			if !v.Valid {
				continue
			}
			ts.XValues = append(ts.XValues, spec.Times[j])
			ts.YValues = append(ts.YValues, v.Float64)
			yMin = math.Min(yMin, v.Float64)
			yMax = math.Max(yMax, v.Float64)
		}
		if len(ts.XValues) > 0 {
			series = append(series, ts)
		}
	}
	if len(series) == 0 {
		return nil, errors.New("chart has no defined values")
	}

	axisStyle := chart.Style{FontColor: textColor, StrokeColor: textColor}
	graph := chart.Chart{
		Title:      spec.Title,
		TitleStyle: chart.Style{FontColor: textColor, FontSize: 14},
		Width:      r.Width,
		Height:     r.Height,
		Background: chart.Style{
			FillColor: backgroundColor,
			Padding:   chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		Canvas: chart.Style{FillColor: backgroundColor},
		XAxis: chart.XAxis{
			Name:      spec.XLabel,
			NameStyle: axisStyle,
			Style:     axisStyle,
			ValueFormatter: formatAxisTime,
			GridMajorStyle: chart.Style{StrokeColor: gridColor, StrokeWidth: 1},
		},
		YAxis: chart.YAxis{
			Name:           spec.YLabel,
			NameStyle:      axisStyle,
			Style:          axisStyle,
			GridMajorStyle: chart.Style{StrokeColor: gridColor, StrokeWidth: 1},
		},
		Series: series,
	}

	// go-chart refuses zero-width ranges, which a single row or a flat price produces.
	first, last := spec.Times[0], spec.Times[len(spec.Times)-1]
	if !last.After(first) {
		x := float64(first.UnixNano())
		pad := float64(time.Minute)
		graph.XAxis.Range = &chart.ContinuousRange{Min: x - pad, Max: x + pad}
	}
	if yMax == yMin {
		graph.YAxis.Range = &chart.ContinuousRange{Min: yMin - 1, Max: yMax + 1}
	}

	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return buf.Bytes(), nil
}
