package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "report_runs_total", Help: "Pipeline runs by outcome"},
		[]string{"outcome"},
	)
	rowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "report_rows_total", Help: "Feed rows by stage"},
		[]string{"stage"},
	)
	missingTickersTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "report_missing_tickers_total", Help: "Requested tickers absent from the feed"},
	)
	runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "report_run_duration_seconds", Help: "Wall time of pipeline runs", Buckets: prometheus.DefBuckets},
	)
)

func init() {
	prometheus.MustRegister(runsTotal, rowsTotal, missingTickersTotal, runDuration)
}

// outcome is "succeeded", "partial" or the error kind.
func observeRun(err error, res *Result, elapsed time.Duration) {
	runDuration.Observe(elapsed.Seconds())
	switch {
	case err != nil:
		runsTotal.WithLabelValues(Classify(err)).Inc()
	case res != nil && res.Partial():
		runsTotal.WithLabelValues("partial").Inc()
	default:
		runsTotal.WithLabelValues("succeeded").Inc()
	}
}
