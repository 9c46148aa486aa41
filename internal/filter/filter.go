// Package filter partitions cleaned records by ticker.
package filter

import "github.com/samarkanov/airflow-smolagents/internal/model"

// ByTicker returns the records for ticker in their original relative order.
// The result never shares backing storage with records. An absent ticker
// yields an empty series.
func ByTicker(records []model.TickRecord, ticker string) model.TickerSeries {
	series := model.TickerSeries{Ticker: ticker, Records: []model.TickRecord{}}
	for _, r := range records {
		if r.Ticker == ticker {
			series.Records = append(series.Records, r)
		}
	}
	return series
}

// Tickers lists the distinct tickers of records in order of first appearance.
func Tickers(records []model.TickRecord) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range records {
		if _, ok := seen[r.Ticker]; ok {
			continue
		}
		seen[r.Ticker] = struct{}{}
		out = append(out, r.Ticker)
	}
	return out
}

// Present splits requested into the tickers found in available and those missing,
// preserving the requested order.
func Present(requested, available []string) (found, missing []string) {
	set := make(map[string]struct{}, len(available))
	for _, t := range available {
		set[t] = struct{}{}
	}
	for _, t := range requested {
		if _, ok := set[t]; ok {
			found = append(found, t)
		} else {
			missing = append(missing, t)
		}
	}
	return found, missing
}
