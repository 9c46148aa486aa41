// Package pipeline runs one fetch, clean, filter, compute and report cycle
// over a remote minute-bar feed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/samarkanov/airflow-smolagents/internal/calculator"
	"github.com/samarkanov/airflow-smolagents/internal/cleaner"
	"github.com/samarkanov/airflow-smolagents/internal/collector"
	"github.com/samarkanov/airflow-smolagents/internal/filter"
	"github.com/samarkanov/airflow-smolagents/internal/model"
	"github.com/samarkanov/airflow-smolagents/internal/report"
)

var (
	// ErrNoData is returned when the feed yields no usable rows.
	ErrNoData = errors.New("no data")
	// ErrNoMatchingTickers is returned when none of the requested tickers is present.
	ErrNoMatchingTickers = errors.New("no matching tickers")
)

// hintLimit caps how many available tickers an abort message lists.
const hintLimit = 10

// Params is the configuration of a single run.
type Params struct {
	Tickers    []string
	Window     int
	SourceURL  string
	OutputPath string
}

// Result describes a completed run.
type Result struct {
	Report      *model.Report
	Found       []string
	Missing     []string
	RowsFetched int
	RowsCleaned int
	OutputPath  string
	Bytes       int
}

// Partial reports whether some requested tickers were absent from the feed.
func (r *Result) Partial() bool { return len(r.Missing) > 0 }

// Pipeline wires the stages together.
type Pipeline struct {
	Fetcher     collector.Fetcher
	Assembler   *report.Assembler
	Concurrency int
	Log         zerolog.Logger
}

// New creates a Pipeline.
func New(fetcher collector.Fetcher, assembler *report.Assembler, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		Fetcher:     fetcher,
		Assembler:   assembler,
		Concurrency: 4,
		Log:         log,
	}
}

// Run executes one cycle. Any returned error means no output file was written.
func (p *Pipeline) Run(ctx context.Context, params Params) (res *Result, err error) {
	started := time.Now()
	log := p.Log.With().Str("source", params.SourceURL).Int("window", params.Window).Logger()
	defer func() {
		observeRun(err, res, time.Since(started))
		if err != nil {
			ev := log.Error().Err(err).Str("kind", Classify(err))
			if collector.IsTimeout(err) {
				ev = ev.Bool("timeout", true)
			}
			ev.Msg("run aborted")
		}
	}()

	if err := calculator.ValidateWindow(params.Window); err != nil {
		return nil, err
	}

	rows, err := collector.FetchRows(ctx, p.Fetcher, params.SourceURL)
	if err != nil {
		return nil, err
	}
	log.Info().Int("rows", len(rows)).Str("fetcher", p.Fetcher.Name()).Msg("rows fetched")
	if len(rows) == 0 {
		return nil, fmt.Errorf("fetch %s: %w", params.SourceURL, ErrNoData)
	}

	records, err := cleaner.Clean(rows)
	if err != nil {
		return nil, err
	}
	dropped := len(rows) - len(records)
	rowsTotal.WithLabelValues("fetched").Add(float64(len(rows)))
	rowsTotal.WithLabelValues("cleaned").Add(float64(len(records)))
	rowsTotal.WithLabelValues("dropped").Add(float64(dropped))
	log.Info().Int("kept", len(records)).Int("dropped", dropped).Msg("rows cleaned")
	if len(records) == 0 {
		return nil, fmt.Errorf("clean %d rows: %w", len(rows), ErrNoData)
	}

	available := filter.Tickers(records)
	found, missing := filter.Present(params.Tickers, available)
	if len(found) == 0 {
		return nil, fmt.Errorf("requested %s, available %s: %w",
			strings.Join(params.Tickers, ","), hint(available), ErrNoMatchingTickers)
	}
	if len(missing) > 0 {
		missingTickersTotal.Add(float64(len(missing)))
		log.Warn().
			Strs("requested", params.Tickers).
			Strs("found", found).
			Strs("missing", missing).
			Msg("partial ticker match")
	}

	series, err := p.compute(ctx, records, params.Tickers, params.Window)
	if err != nil {
		return nil, err
	}

	rep, err := p.Assembler.Assemble(ctx, series, params.Window)
	if err != nil {
		return nil, fmt.Errorf("assemble report: %w", err)
	}
	n, err := p.Assembler.WriteFile(rep, params.OutputPath)
	if err != nil {
		return nil, &OutputError{Path: params.OutputPath, Err: err}
	}

	return &Result{
		Report:      rep,
		Found:       found,
		Missing:     missing,
		RowsFetched: len(rows),
		RowsCleaned: len(records),
		OutputPath:  params.OutputPath,
		Bytes:       n,
	}, nil
}

// compute filters and averages each requested ticker. The result keeps request
// order; absent tickers yield empty series.
func (p *Pipeline) compute(ctx context.Context, records []model.TickRecord, tickers []string, window int) ([]model.MovingAverageSeries, error) {
	out := make([]model.MovingAverageSeries, len(tickers))
	g, ctx := errgroup.WithContext(ctx)
	if p.Concurrency > 0 {
		g.SetLimit(p.Concurrency)
	}
	for i, ticker := range tickers {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s := filter.ByTicker(records, ticker)
			if s.Empty() {
				out[i] = model.MovingAverageSeries{Ticker: ticker, Window: window}
				return nil
			}
			ma, err := calculator.MovingAverage(s, window)
			if err != nil {
				return fmt.Errorf("moving average %s: %w", ticker, err)
			}
			p.Log.Debug().Str("ticker", ticker).Int("rows", ma.Len()).Int("defined", ma.Defined()).Msg("moving average computed")
			out[i] = ma
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func hint(available []string) string {
	if len(available) > hintLimit {
		return strings.Join(available[:hintLimit], ",") + ",..."
	}
	return strings.Join(available, ",")
}
