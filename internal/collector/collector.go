package collector

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/samarkanov/airflow-smolagents/internal/model"
)

// MockFetcher returns a fixed body or error, for development and testing.
type MockFetcher struct {
	Body  []byte
	Err   error
	Calls int
	URLs  []string
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	m.Calls++
	m.URLs = append(m.URLs, url)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Body, nil
}

// GenerateRows builds one-minute rows for ticker starting at start, one per close price.
func GenerateRows(ticker string, start time.Time, closes []float64) []model.RawRow {
	rows := make([]model.RawRow, len(closes))
	for i, c := range closes {
		p := strconv.FormatFloat(c, 'f', -1, 64)
		rows[i] = model.RawRow{
			Ticker:    ticker,
			Period:    "1",
			Timestamp: start.Add(time.Duration(i) * time.Minute).Format(model.TimestampLayout),
			Open:      p,
			High:      p,
			Low:       p,
			Close:     p,
			Volume:    "1000",
		}
	}
	return rows
}

// FetchRows retrieves url through f and parses the body into raw rows.
func FetchRows(ctx context.Context, f Fetcher, url string) ([]model.RawRow, error) {
	body, err := f.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	rows, err := ParseBytes(body)
	if err != nil {
		return nil, fmt.Errorf("parse %s feed: %w", f.Name(), err)
	}
	return rows, nil
}
