package model

import (
	"encoding/base64"
	"time"

	"github.com/guregu/null/v6"
)

// Chart is a rendered, inlinable image for one ticker.
type Chart struct {
	Ticker   string
	MIMEType string
	Data     []byte
}

// DataURI encodes the image as a data: URI suitable for an <img src>.
func (c Chart) DataURI() string {
	return "data:" + c.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(c.Data)
}

// TickerSummary is one line of the report's executive summary.
type TickerSummary struct {
	Ticker    string
	Rows      int
	First     time.Time
	Last      time.Time
	LastClose float64
	HighClose float64
	LowClose  float64
	LatestMA  null.Float
}

// Table is a fully rendered tabular section: every cell is already formatted.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Report is the assembled output of one pipeline run.
type Report struct {
	Title       string
	GeneratedAt time.Time
	Tickers     []string // included tickers, in request order
	Window      int
	Summaries   []TickerSummary
	Sections    map[string]Chart
	Combined    Table
}
