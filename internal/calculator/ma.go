package calculator

import (
	"fmt"
	"sort"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"

	"github.com/samarkanov/airflow-smolagents/internal/model"
)

// meanPrecision is the number of decimal places kept when dividing a window sum.
const meanPrecision = 32

// InvalidWindowError reports a non-positive rolling window.
type InvalidWindowError struct {
	Window int
}

func (e *InvalidWindowError) Error() string {
	return fmt.Sprintf("window %d: must be a positive integer", e.Window)
}

// SchemaError reports a series lacking the column a computation needs.
type SchemaError struct {
	Column string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("series has no %q column", e.Column)
}

// ValidateWindow returns *InvalidWindowError unless window is positive.
func ValidateWindow(window int) error {
	if window <= 0 {
		return &InvalidWindowError{Window: window}
	}
	return nil
}

// MovingAverage computes the rolling mean of closing prices over window rows.
func MovingAverage(series model.TickerSeries, window int) (model.MovingAverageSeries, error) {
	return RollingMean(series, model.ColumnClose, window)
}

// RollingMean sorts a copy of series by timestamp (stable, so ties keep input
// order) and computes the mean of column over each trailing window. Positions
// before window-1 stay undefined; a window longer than the series leaves every
// position undefined.
func RollingMean(series model.TickerSeries, column string, window int) (model.MovingAverageSeries, error) {
	if err := ValidateWindow(window); err != nil {
		return model.MovingAverageSeries{}, err
	}

	sorted := model.TickerSeries{Ticker: series.Ticker, Records: SortChronological(series.Records)}
	values, ok := sorted.Column(column)
	if !ok {
		return model.MovingAverageSeries{}, &SchemaError{Column: column}
	}

	ma := make([]null.Float, len(values))
	size := decimal.NewFromInt(int64(window))
	sum := decimal.Zero
	for i, v := range values {
		sum = sum.Add(decimal.NewFromFloat(v))
		if i >= window {
			sum = sum.Sub(decimal.NewFromFloat(values[i-window]))
		}
		if i >= window-1 {
			ma[i] = null.FloatFrom(sum.DivRound(size, meanPrecision).InexactFloat64())
		}
	}

	return model.MovingAverageSeries{
		Ticker:  series.Ticker,
		Window:  window,
		Source:  column,
		Records: sorted.Records,
		MA:      ma,
	}, nil
}

// SortChronological returns a copy of records stably sorted by timestamp.
func SortChronological(records []model.TickRecord) []model.TickRecord {
	out := make([]model.TickRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}
