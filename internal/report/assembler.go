// Package report assembles per-ticker moving-average series into a single
// self-contained HTML document: charts are embedded as data URIs and the
// combined table covers every included ticker in request order.
package report

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/guregu/null/v6"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/samarkanov/airflow-smolagents/internal/calculator"
	"github.com/samarkanov/airflow-smolagents/internal/model"
)

// DefaultTitle heads the document when none is configured.
const DefaultTitle = "NASDAQ Stock Analysis Report"

// TableTimeFormat is how timestamps appear in the combined table.
const TableTimeFormat = "2006-01-02 15:04:05"

// ErrNothingToReport is returned when every supplied series is empty.
var ErrNothingToReport = errors.New("no non-empty series to report")

// Assembler builds and writes reports.
type Assembler struct {
	Renderer    Renderer
	Title       string
	Concurrency int
	Now         func() time.Time
	Log         zerolog.Logger
}

// NewAssembler creates an Assembler drawing charts with renderer.
func NewAssembler(renderer Renderer, log zerolog.Logger) *Assembler {
	return &Assembler{
		Renderer:    renderer,
		Title:       DefaultTitle,
		Concurrency: 4,
		Now:         time.Now,
		Log:         log,
	}
}

// Assemble renders one chart per non-empty series and the combined table.
// series must be in request order; empty series are skipped.
func (a *Assembler) Assemble(ctx context.Context, series []model.MovingAverageSeries, window int) (*model.Report, error) {
	included := make([]model.MovingAverageSeries, 0, len(series))
	for _, s := range series {
		if s.Len() == 0 {
			a.Log.Debug().Str("ticker", s.Ticker).Msg("skipping empty series")
			continue
		}
		included = append(included, s)
	}
	if len(included) == 0 {
		return nil, ErrNothingToReport
	}

	charts := make([]model.Chart, len(included))
	g, ctx := errgroup.WithContext(ctx)
	if a.Concurrency > 0 {
		g.SetLimit(a.Concurrency)
	}
	for i, s := range included {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := a.Renderer.Render(chartSpec(s, window))
			if err != nil {
				return fmt.Errorf("chart %s: %w", s.Ticker, err)
			}
			charts[i] = model.Chart{Ticker: s.Ticker, MIMEType: a.Renderer.MIMEType(), Data: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep := &model.Report{
		Title:       a.title(),
		GeneratedAt: a.now(),
		Window:      window,
		Sections:    make(map[string]model.Chart, len(included)),
		Combined:    CombinedTable(included, window),
	}
	for i, s := range included {
		summary, err := calculator.Summarize(s)
		if err != nil {
			return nil, fmt.Errorf("summarize %s: %w", s.Ticker, err)
		}
		rep.Tickers = append(rep.Tickers, s.Ticker)
		rep.Summaries = append(rep.Summaries, summary)
		rep.Sections[s.Ticker] = charts[i]
	}
	return rep, nil
}

func (a *Assembler) title() string {
	if a.Title == "" {
		return DefaultTitle
	}
	return a.Title
}

func (a *Assembler) now() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}

func chartSpec(s model.MovingAverageSeries, window int) ChartSpec {
	times := make([]time.Time, len(s.Records))
	closes := make([]null.Float, len(s.Records))
	for i, r := range s.Records {
		times[i] = r.Timestamp
		closes[i] = null.FloatFrom(r.Close)
	}
	return ChartSpec{
		Title:  fmt.Sprintf("Closing Price vs. %d-Tick Moving Average for %s", window, s.Ticker),
		XLabel: "Date and Time",
		YLabel: "Price (USD)",
		Times:  times,
		Lines: []Line{
			{Name: "Close Price", Values: closes},
			{Name: fmt.Sprintf("%d-Tick MA", window), Values: s.MA, Dashed: true},
		},
	}
}

// CombinedTable concatenates series in the given order into one formatted table
// with the feed columns plus MA_<window>. Undefined averages render as empty cells.
func CombinedTable(series []model.MovingAverageSeries, window int) model.Table {
	columns := append(append([]string{}, model.FeedColumns...), fmt.Sprintf("MA_%d", window))
	table := model.Table{Columns: columns}
	for _, s := range series {
		for i, r := range s.Records {
			ma := ""
			if i < len(s.MA) && s.MA[i].Valid {
				ma = formatNumber(s.MA[i].Float64)
			}
			table.Rows = append(table.Rows, []string{
				r.Ticker,
				r.Period,
				r.Timestamp.Format(TableTimeFormat),
				formatNumber(r.Open),
				formatNumber(r.High),
				formatNumber(r.Low),
				formatNumber(r.Close),
				formatNumber(r.Volume),
				ma,
			})
		}
	}
	return table
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
