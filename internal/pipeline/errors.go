package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/samarkanov/airflow-smolagents/internal/calculator"
	"github.com/samarkanov/airflow-smolagents/internal/cleaner"
	"github.com/samarkanov/airflow-smolagents/internal/collector"
)

// Error kinds returned by Classify.
const (
	KindFetch     = "fetch"
	KindParse     = "parse"
	KindTimestamp = "timestamp"
	KindWindow    = "window"
	KindSchema    = "schema"
	KindNoData    = "no_data"
	KindNoMatch   = "no_match"
	KindOutput    = "output"
	KindCanceled  = "canceled"
	KindInternal  = "internal"
)

// OutputError wraps a failure to write the report document.
type OutputError struct {
	Path string
	Err  error
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("write report %s: %v", e.Path, e.Err)
}

func (e *OutputError) Unwrap() error { return e.Err }

// Classify maps a run error to a stable kind label. It returns "" for nil.
func Classify(err error) string {
	var (
		fetchErr  *collector.FetchError
		parseErr  *collector.ParseError
		tsErr     *cleaner.TimestampError
		windowErr *calculator.InvalidWindowError
		schemaErr *calculator.SchemaError
		outErr    *OutputError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.As(err, &fetchErr):
		return KindFetch
	case errors.As(err, &parseErr):
		return KindParse
	case errors.As(err, &tsErr):
		return KindTimestamp
	case errors.As(err, &windowErr):
		return KindWindow
	case errors.As(err, &schemaErr):
		return KindSchema
	case errors.Is(err, ErrNoData):
		return KindNoData
	case errors.Is(err, ErrNoMatchingTickers):
		return KindNoMatch
	case errors.As(err, &outErr):
		return KindOutput
	default:
		return KindInternal
	}
}
