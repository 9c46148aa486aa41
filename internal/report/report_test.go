package report

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samarkanov/airflow-smolagents/internal/calculator"
	"github.com/samarkanov/airflow-smolagents/internal/model"
)

var start = time.Date(2010, 4, 1, 9, 31, 0, 0, time.UTC)

// stubRenderer returns the chart title as image bytes.
type stubRenderer struct {
	mu     sync.Mutex
	specs  []ChartSpec
	failOn string
}

func (s *stubRenderer) MIMEType() string { return "image/png" }

func (s *stubRenderer) Render(spec ChartSpec) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specs = append(s.specs, spec)
	if s.failOn != "" && strings.Contains(spec.Title, s.failOn) {
		return nil, errors.New("boom")
	}
	return []byte(spec.Title), nil
}

func maSeries(t *testing.T, ticker string, window int, closes ...float64) model.MovingAverageSeries {
	t.Helper()
	s := model.TickerSeries{Ticker: ticker}
	for i, c := range closes {
		s.Records = append(s.Records, model.TickRecord{
			Ticker: ticker, Period: "1", Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open: c, High: c, Low: c, Close: c, Volume: 100,
		})
	}
	ma, err := calculator.MovingAverage(s, window)
	require.NoError(t, err)
	return ma
}

func newTestAssembler(r Renderer) *Assembler {
	a := NewAssembler(r, zerolog.Nop())
	a.Now = func() time.Time { return time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC) }
	return a
}

func TestAssemble(t *testing.T) {
	r := &stubRenderer{}
	a := newTestAssembler(r)

	series := []model.MovingAverageSeries{
		maSeries(t, "MSFT", 2, 10, 11, 12),
		{Ticker: "ZZZZ", Window: 2},
		maSeries(t, "AAPL", 2, 1, 2),
	}
	rep, err := a.Assemble(context.Background(), series, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"MSFT", "AAPL"}, rep.Tickers)
	assert.Equal(t, 2, rep.Window)
	assert.Equal(t, DefaultTitle, rep.Title)
	assert.Equal(t, time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC), rep.GeneratedAt)
	require.Len(t, rep.Sections, 2)
	assert.Equal(t, "Closing Price vs. 2-Tick Moving Average for MSFT", string(rep.Sections["MSFT"].Data))
	assert.Equal(t, "image/png", rep.Sections["AAPL"].MIMEType)
	assert.Len(t, r.specs, 2)

	require.Len(t, rep.Summaries, 2)
	assert.Equal(t, "MSFT", rep.Summaries[0].Ticker)
	assert.Equal(t, 11.5, rep.Summaries[0].LatestMA.Float64)

	// row count equals the sum of included series lengths, in request order
	require.Len(t, rep.Combined.Rows, 5)
	assert.Equal(t, "MSFT", rep.Combined.Rows[0][0])
	assert.Equal(t, "AAPL", rep.Combined.Rows[4][0])
}

func TestAssemble_Title(t *testing.T) {
	a := newTestAssembler(&stubRenderer{})
	series := []model.MovingAverageSeries{maSeries(t, "MSFT", 2, 10, 11)}

	a.Title = ""
	rep, err := a.Assemble(context.Background(), series, 2)
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, rep.Title)

	a.Title = "Custom"
	rep, err = a.Assemble(context.Background(), series, 2)
	require.NoError(t, err)
	assert.Equal(t, "Custom", rep.Title)
}

func TestAssemble_ChartSpec(t *testing.T) {
	r := &stubRenderer{}
	_, err := newTestAssembler(r).Assemble(context.Background(), []model.MovingAverageSeries{maSeries(t, "AAPL", 3, 1, 2, 3)}, 3)
	require.NoError(t, err)

	require.Len(t, r.specs, 1)
	spec := r.specs[0]
	assert.Len(t, spec.Times, 3)
	require.Len(t, spec.Lines, 2)
	assert.Equal(t, "Close Price", spec.Lines[0].Name)
	assert.Equal(t, "3-Tick MA", spec.Lines[1].Name)
	assert.True(t, spec.Lines[1].Dashed)
	assert.Equal(t, []null.Float{{}, {}, null.FloatFrom(2)}, spec.Lines[1].Values)
}

func TestAssemble_NothingToReport(t *testing.T) {
	_, err := newTestAssembler(&stubRenderer{}).Assemble(context.Background(),
		[]model.MovingAverageSeries{{Ticker: "ZZZZ"}}, 30)
	assert.ErrorIs(t, err, ErrNothingToReport)
}

func TestAssemble_RendererFailure(t *testing.T) {
	r := &stubRenderer{failOn: "GOOG"}
	_, err := newTestAssembler(r).Assemble(context.Background(), []model.MovingAverageSeries{
		maSeries(t, "AAPL", 1, 1), maSeries(t, "GOOG", 1, 2),
	}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chart GOOG")
}

func TestCombinedTable(t *testing.T) {
	table := CombinedTable([]model.MovingAverageSeries{maSeries(t, "AAPL", 2, 100, 101.5)}, 2)

	assert.Equal(t, []string{"ticker", "per", "date", "open", "high", "low", "close", "vol", "MA_2"}, table.Columns)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, []string{"AAPL", "1", "2010-04-01 09:31:00", "100", "100", "100", "100", "100", ""}, table.Rows[0])
	assert.Equal(t, "100.75", table.Rows[1][8])
}

func TestRenderHTML(t *testing.T) {
	rep, err := newTestAssembler(&stubRenderer{}).Assemble(context.Background(), []model.MovingAverageSeries{
		maSeries(t, "GOOG", 2, 5, 6), maSeries(t, "AAPL", 2, 1, 2, 3),
	}, 2)
	require.NoError(t, err)

	doc, err := RenderHTML(rep)
	require.NoError(t, err)
	html := string(doc)

	assert.Contains(t, html, "Generated on: 2026-10-16 12:00:00")
	assert.Contains(t, html, "<strong>GOOG, AAPL</strong>")
	assert.Contains(t, html, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(rep.Sections["AAPL"].Data))
	assert.Less(t, strings.Index(html, `id="plot-GOOG"`), strings.Index(html, `id="plot-AAPL"`))
	assert.Less(t, strings.Index(html, `id="plot-AAPL"`), strings.Index(html, `id="data"`))
	assert.Equal(t, 5, strings.Count(html, "<tr><td>GOOG</td><td>1</td>")+strings.Count(html, "<tr><td>AAPL</td><td>1</td>"))
	assert.Contains(t, html, "<th>MA_2</th>")
	assert.NotContains(t, html, "ZgotmplZ")
}

func TestRenderHTML_MissingChart(t *testing.T) {
	_, err := RenderHTML(&model.Report{Tickers: []string{"AAPL"}, Sections: map[string]model.Chart{}})
	assert.Error(t, err)
}

func TestWriteFile(t *testing.T) {
	a := newTestAssembler(&stubRenderer{})
	rep, err := a.Assemble(context.Background(), []model.MovingAverageSeries{maSeries(t, "AAPL", 1, 1)}, 1)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out", "report.html")
	n, err := a.WriteFile(rep, path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, n, len(data))
	assert.True(t, bytes.HasPrefix(data, []byte("<!DOCTYPE html>")))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestWriteAtomic_FailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	err := WriteAtomic(filepath.Join(blocker, "report.html"), []byte("doc"))
	require.Error(t, err)
	_, statErr := os.Stat(filepath.Join(blocker, "report.html"))
	assert.Error(t, statErr)
}

func TestWriteAtomic_ReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.html")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0644))

	require.NoError(t, WriteAtomic(path, []byte("new")))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}
