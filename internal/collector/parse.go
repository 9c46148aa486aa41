package collector

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/samarkanov/airflow-smolagents/internal/model"
)

// ParseError reports a structurally malformed feed line. The feed is assumed
// well formed, so a ParseError aborts the whole stream.
type ParseError struct {
	Line   int
	Fields int
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("parse line %d: got %d fields, want %d", e.Line, e.Fields, len(model.FeedColumns))
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseRows reads a header-delimited comma-separated stream. The first line is
// discarded; every other non-blank line must have exactly len(model.FeedColumns) fields.
func ParseRows(r io.Reader) ([]model.RawRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, csvParseError(err, 1)
	}

	var rows []model.RawRow
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, csvParseError(err, 0)
		}
		line, _ := reader.FieldPos(0)
		if len(fields) != len(model.FeedColumns) {
			return nil, &ParseError{Line: line, Fields: len(fields)}
		}
		row := model.RawRowFromFields(fields)
		row.Line = line
		rows = append(rows, row)
	}
	return rows, nil
}

// ParseBytes is ParseRows over an in-memory body.
func ParseBytes(body []byte) ([]model.RawRow, error) {
	return ParseRows(bytes.NewReader(body))
}

func csvParseError(err error, line int) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		line = pe.Line
	}
	return &ParseError{Line: line, Err: err}
}

// EncodeRows writes rows back into feed form, header first.
func EncodeRows(rows []model.RawRow) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(model.FeedColumns)
	for _, r := range rows {
		_ = w.Write([]string{r.Ticker, r.Period, r.Timestamp, r.Open, r.High, r.Low, r.Close, r.Volume})
	}
	w.Flush()
	return buf.Bytes()
}
