package calculator

import (
	"errors"
	"math"

	"github.com/samarkanov/airflow-smolagents/internal/model"
)

// CloseRange returns the highest and lowest closing price of the records.
func CloseRange(records []model.TickRecord) (high, low float64, err error) {
	if len(records) == 0 {
		return 0, 0, errors.New("no records provided")
	}
	high = math.Inf(-1)
	low = math.Inf(1)
	for _, r := range records {
		if r.Close > high {
			high = r.Close
		}
		if r.Close < low {
			low = r.Close
		}
	}
	return high, low, nil
}

// Summarize builds the executive-summary line for one computed series.
func Summarize(s model.MovingAverageSeries) (model.TickerSummary, error) {
	high, low, err := CloseRange(s.Records)
	if err != nil {
		return model.TickerSummary{}, err
	}
	first, last := s.Records[0], s.Records[len(s.Records)-1]
	return model.TickerSummary{
		Ticker:    s.Ticker,
		Rows:      len(s.Records),
		First:     first.Timestamp,
		Last:      last.Timestamp,
		LastClose: last.Close,
		HighClose: high,
		LowClose:  low,
		LatestMA:  s.Latest(),
	}, nil
}
