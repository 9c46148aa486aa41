package model

import (
	"strconv"
	"time"
)

// TimestampLayout is the fixed minute-resolution layout of the feed's date field (YYYYMMDDHHMM).
const TimestampLayout = "200601021504"

// Column names of the tabular feed, in positional order.
const (
	ColumnTicker = "ticker"
	ColumnPeriod = "per"
	ColumnDate   = "date"
	ColumnOpen   = "open"
	ColumnHigh   = "high"
	ColumnLow    = "low"
	ColumnClose  = "close"
	ColumnVolume = "vol"
)

// FeedColumns lists the positional columns of one feed row.
var FeedColumns = []string{
	ColumnTicker, ColumnPeriod, ColumnDate,
	ColumnOpen, ColumnHigh, ColumnLow, ColumnClose, ColumnVolume,
}

// RawRow is one untyped feed line split into its positional fields.
// Line is the 1-based line in the feed, header included; zero when unknown.
type RawRow struct {
	Line      int
	Ticker    string
	Period    string
	Timestamp string
	Open      string
	High      string
	Low       string
	Close     string
	Volume    string
}

// RawRowFromFields maps exactly len(FeedColumns) positional fields onto a RawRow.
func RawRowFromFields(fields []string) RawRow {
	return RawRow{
		Ticker:    fields[0],
		Period:    fields[1],
		Timestamp: fields[2],
		Open:      fields[3],
		High:      fields[4],
		Low:       fields[5],
		Close:     fields[6],
		Volume:    fields[7],
	}
}

// TickRecord is a validated quote observation for one security.
type TickRecord struct {
	Ticker    string
	Period    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Raw renders the record back into feed form.
func (r TickRecord) Raw() RawRow {
	return RawRow{
		Ticker:    r.Ticker,
		Period:    r.Period,
		Timestamp: r.Timestamp.Format(TimestampLayout),
		Open:      formatFloat(r.Open),
		High:      formatFloat(r.High),
		Low:       formatFloat(r.Low),
		Close:     formatFloat(r.Close),
		Volume:    formatFloat(r.Volume),
	}
}

// Value returns the numeric field named by column.
func (r TickRecord) Value(column string) (float64, bool) {
	switch column {
	case ColumnOpen:
		return r.Open, true
	case ColumnHigh:
		return r.High, true
	case ColumnLow:
		return r.Low, true
	case ColumnClose:
		return r.Close, true
	case ColumnVolume:
		return r.Volume, true
	default:
		return 0, false
	}
}

// TickerSeries holds the records of a single ticker.
type TickerSeries struct {
	Ticker  string
	Records []TickRecord
}

// Len returns the number of records.
func (s TickerSeries) Len() int { return len(s.Records) }

// Empty reports whether the series holds no records.
func (s TickerSeries) Empty() bool { return len(s.Records) == 0 }

// Column extracts the named numeric column. ok is false for unknown columns.
func (s TickerSeries) Column(name string) (values []float64, ok bool) {
	if _, known := (TickRecord{}).Value(name); !known {
		return nil, false
	}
	values = make([]float64, len(s.Records))
	for i, r := range s.Records {
		values[i], _ = r.Value(name)
	}
	return values, true
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
