// Package cleaner turns raw feed rows into validated tick records.
package cleaner

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/guregu/null/v6"

	"github.com/samarkanov/airflow-smolagents/internal/model"
)

// TimestampError reports a row whose date field does not match model.TimestampLayout.
// The layout is fixed, so one bad timestamp marks the whole feed as corrupt.
// Line is the 1-based feed line, counting the header, as in collector.ParseError.
type TimestampError struct {
	Line  int
	Value string
	Err   error
}

func (e *TimestampError) Error() string {
	return fmt.Sprintf("line %d: parse timestamp %q: %v", e.Line, e.Value, e.Err)
}

func (e *TimestampError) Unwrap() error { return e.Err }

// coerced is a row after the first pass: any numeric field may be missing.
type coerced struct {
	ticker    string
	period    string
	timestamp time.Time
	values    [5]null.Float // open, high, low, close, volume
}

func (c coerced) complete() bool {
	for _, v := range c.values {
		if !v.Valid {
			return false
		}
	}
	return true
}

// Clean converts rows into records in input order. Every numeric field of a row
// is coerced before the row is judged; rows with any missing field are then
// dropped as a unit. A malformed timestamp fails the whole batch.
func Clean(rows []model.RawRow) ([]model.TickRecord, error) {
	staged := make([]coerced, 0, len(rows))
	for i, r := range rows {
		ts, err := ParseTimestamp(r.Timestamp)
		if err != nil {
			line := r.Line
			if line == 0 {
				line = i + 2 // header, then 1-based
			}
			return nil, &TimestampError{Line: line, Value: r.Timestamp, Err: err}
		}
		staged = append(staged, coerced{
			ticker:    strings.TrimSpace(r.Ticker),
			period:    strings.TrimSpace(r.Period),
			timestamp: ts,
			values: [5]null.Float{
				coerce(r.Open), coerce(r.High), coerce(r.Low), coerce(r.Close), coerce(r.Volume),
			},
		})
	}

	records := make([]model.TickRecord, 0, len(staged))
	for _, c := range staged {
		if !c.complete() {
			continue
		}
		records = append(records, model.TickRecord{
			Ticker:    c.ticker,
			Period:    c.period,
			Timestamp: c.timestamp,
			Open:      c.values[0].Float64,
			High:      c.values[1].Float64,
			Low:       c.values[2].Float64,
			Close:     c.values[3].Float64,
			Volume:    c.values[4].Float64,
		})
	}
	return records, nil
}

// ParseTimestamp parses a YYYYMMDDHHMM value as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	return time.ParseInLocation(model.TimestampLayout, strings.TrimSpace(s), time.UTC)
}

// coerce parses a numeric field; failures and non-finite values become the missing marker.
func coerce(s string) null.Float {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return null.Float{}
	}
	return null.FloatFrom(v)
}
