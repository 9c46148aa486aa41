package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samarkanov/airflow-smolagents/internal/calculator"
	"github.com/samarkanov/airflow-smolagents/internal/cleaner"
	"github.com/samarkanov/airflow-smolagents/internal/collector"
	"github.com/samarkanov/airflow-smolagents/internal/model"
	"github.com/samarkanov/airflow-smolagents/internal/report"
)

var sessionStart = time.Date(2010, 4, 1, 9, 31, 0, 0, time.UTC)

type stubRenderer struct{}

func (stubRenderer) MIMEType() string { return "image/png" }

func (stubRenderer) Render(spec report.ChartSpec) ([]byte, error) {
	return []byte(spec.Title), nil
}

func linear(from, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(from + i)
	}
	return out
}

func feed(groups ...[]model.RawRow) []byte {
	var rows []model.RawRow
	for _, g := range groups {
		rows = append(rows, g...)
	}
	return collector.EncodeRows(rows)
}

func newPipeline(body []byte) (*Pipeline, *collector.MockFetcher) {
	f := &collector.MockFetcher{Body: body}
	return New(f, report.NewAssembler(stubRenderer{}, zerolog.Nop()), zerolog.Nop()), f
}

func params(t *testing.T, window int, tickers ...string) Params {
	return Params{
		Tickers:    tickers,
		Window:     window,
		SourceURL:  "https://example.test/feed.txt",
		OutputPath: filepath.Join(t.TempDir(), "report.html"),
	}
}

func assertNoOutput(t *testing.T, p Params) {
	t.Helper()
	_, err := os.Stat(p.OutputPath)
	assert.True(t, os.IsNotExist(err), "output file must not exist")
}

func TestRun_LinearThirtyFive(t *testing.T) {
	p, f := newPipeline(feed(collector.GenerateRows("AAPL", sessionStart, linear(100, 35))))
	prm := params(t, 30, "AAPL")

	res, err := p.Run(context.Background(), prm)
	require.NoError(t, err)

	assert.Equal(t, []string{prm.SourceURL}, f.URLs)
	assert.Equal(t, 35, res.RowsFetched)
	assert.Equal(t, 35, res.RowsCleaned)
	assert.False(t, res.Partial())
	assert.Equal(t, []string{"AAPL"}, res.Report.Tickers)

	rows := res.Report.Combined.Rows
	require.Len(t, rows, 35)
	for i := 0; i < 29; i++ {
		assert.Empty(t, rows[i][8], "row %d", i)
	}
	assert.Equal(t, "114.5", rows[29][8])
	assert.Equal(t, "119.5", rows[34][8])
	assert.Equal(t, 119.5, res.Report.Summaries[0].LatestMA.Float64)

	data, err := os.ReadFile(prm.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, res.Bytes, len(data))
	assert.Contains(t, string(data), `id="plot-AAPL"`)
}

func TestRun_PartialMatch(t *testing.T) {
	p, _ := newPipeline(feed(
		collector.GenerateRows("MSFT", sessionStart, linear(20, 5)),
		collector.GenerateRows("AAPL", sessionStart, linear(100, 5)),
	))
	before := testutil.ToFloat64(missingTickersTotal)

	res, err := p.Run(context.Background(), params(t, 2, "AAPL", "ZZZZ"))
	require.NoError(t, err)

	assert.True(t, res.Partial())
	assert.Equal(t, []string{"AAPL"}, res.Found)
	assert.Equal(t, []string{"ZZZZ"}, res.Missing)
	assert.Equal(t, []string{"AAPL"}, res.Report.Tickers)
	assert.Len(t, res.Report.Sections, 1)
	assert.Len(t, res.Report.Combined.Rows, 5)
	assert.Equal(t, before+1, testutil.ToFloat64(missingTickersTotal))
}

func TestRun_RequestOrder(t *testing.T) {
	p, _ := newPipeline(feed(
		collector.GenerateRows("AAPL", sessionStart, linear(100, 3)),
		collector.GenerateRows("GOOG", sessionStart, linear(500, 4)),
	))

	res, err := p.Run(context.Background(), params(t, 2, "GOOG", "AAPL"))
	require.NoError(t, err)

	assert.Equal(t, []string{"GOOG", "AAPL"}, res.Report.Tickers)
	rows := res.Report.Combined.Rows
	require.Len(t, rows, 7)
	assert.Equal(t, "GOOG", rows[0][0])
	assert.Equal(t, "GOOG", rows[3][0])
	assert.Equal(t, "AAPL", rows[4][0])
}

func TestRun_NoMatchingTickers(t *testing.T) {
	var groups [][]model.RawRow
	for _, tk := range []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K", "L"} {
		groups = append(groups, collector.GenerateRows(tk, sessionStart, []float64{1}))
	}
	p, _ := newPipeline(feed(groups...))
	prm := params(t, 30, "ZZZZ")

	_, err := p.Run(context.Background(), prm)
	require.ErrorIs(t, err, ErrNoMatchingTickers)
	assert.Equal(t, KindNoMatch, Classify(err))
	assert.Contains(t, err.Error(), "A,B,C,D,E,F,G,H,I,J,...")
	assert.NotContains(t, err.Error(), "K")
	assertNoOutput(t, prm)
}

func TestRun_Aborts(t *testing.T) {
	timestampFeed := feed(collector.GenerateRows("AAPL", sessionStart, []float64{1, 2}))
	timestampFeed = []byte(strings.Replace(string(timestampFeed), "201004010932", "2010-04-01", 1))

	tests := []struct {
		name   string
		body   []byte
		err    error
		window int
		kind   string
	}{
		{name: "empty body", body: nil, window: 30, kind: KindNoData},
		{name: "header only", body: feed(), window: 30, kind: KindNoData},
		{name: "every row dropped", body: []byte("h1,h2,h3,h4,h5,h6,h7,h8\nAAPL,1,201004010931,x,1,1,1,1\n"), window: 30, kind: KindNoData},
		{name: "fetch failure", err: &collector.FetchError{URL: "u", StatusCode: 503, Err: errors.New("unavailable")}, window: 30, kind: KindFetch},
		{name: "field count", body: []byte("h\nAAPL,1,201004010931\n"), window: 30, kind: KindParse},
		{name: "bad timestamp", body: timestampFeed, window: 30, kind: KindTimestamp},
		{name: "zero window", body: feed(collector.GenerateRows("AAPL", sessionStart, []float64{1})), window: 0, kind: KindWindow},
		{name: "negative window", body: feed(collector.GenerateRows("AAPL", sessionStart, []float64{1})), window: -3, kind: KindWindow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, f := newPipeline(tt.body)
			f.Err = tt.err
			prm := params(t, tt.window, "AAPL")

			res, err := p.Run(context.Background(), prm)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.Equal(t, tt.kind, Classify(err))
			assertNoOutput(t, prm)
		})
	}
}

func TestRun_FetchTimeoutIsLogged(t *testing.T) {
	var buf bytes.Buffer
	f := &collector.MockFetcher{Err: &collector.FetchError{URL: "u", Err: context.DeadlineExceeded}}
	p := New(f, report.NewAssembler(stubRenderer{}, zerolog.Nop()), zerolog.New(&buf))

	_, err := p.Run(context.Background(), params(t, 30, "AAPL"))
	require.Error(t, err)
	assert.Equal(t, KindFetch, Classify(err))
	assert.Contains(t, buf.String(), `"timeout":true`)
	assert.Contains(t, buf.String(), `"kind":"fetch"`)

	buf.Reset()
	f.Err = &collector.FetchError{URL: "u", StatusCode: 503, Err: errors.New("unavailable")}
	_, err = p.Run(context.Background(), params(t, 30, "AAPL"))
	require.Error(t, err)
	assert.NotContains(t, buf.String(), "timeout")
}

func TestRun_InvalidWindowSkipsFetch(t *testing.T) {
	p, f := newPipeline(nil)
	_, err := p.Run(context.Background(), params(t, 0, "AAPL"))

	var windowErr *calculator.InvalidWindowError
	require.ErrorAs(t, err, &windowErr)
	assert.Zero(t, f.Calls)
}

func TestRun_OutputFailure(t *testing.T) {
	p, _ := newPipeline(feed(collector.GenerateRows("AAPL", sessionStart, linear(1, 3))))
	prm := params(t, 2, "AAPL")
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))
	prm.OutputPath = filepath.Join(blocker, "report.html")

	_, err := p.Run(context.Background(), prm)
	require.Error(t, err)
	assert.Equal(t, KindOutput, Classify(err))
}

func TestRun_Canceled(t *testing.T) {
	p, _ := newPipeline(feed(collector.GenerateRows("AAPL", sessionStart, linear(1, 3))))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, params(t, 2, "AAPL"))
	require.Error(t, err)
	assert.Equal(t, KindCanceled, Classify(err))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&collector.FetchError{URL: "u", Err: context.DeadlineExceeded}, KindFetch},
		{&collector.FetchError{URL: "u", Err: context.Canceled}, KindCanceled},
		{&cleaner.TimestampError{Line: 3, Value: "x", Err: errors.New("bad")}, KindTimestamp},
		{&calculator.SchemaError{Column: "close"}, KindSchema},
		{errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "%v", tt.err)
	}
}
