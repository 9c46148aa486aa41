package model

import (
	"fmt"

	"github.com/guregu/null/v6"
)

// MovingAverageSeries is a chronologically ordered series plus its rolling-mean column.
// MA[i] is valid only when i >= Window-1.
type MovingAverageSeries struct {
	Ticker  string
	Window  int
	Source  string // column the mean was computed over
	Records []TickRecord
	MA      []null.Float
}

// ColumnName is the derived column's header, e.g. MA_30.
func (s MovingAverageSeries) ColumnName() string {
	return fmt.Sprintf("MA_%d", s.Window)
}

// Len returns the number of rows.
func (s MovingAverageSeries) Len() int { return len(s.Records) }

// Defined counts the positions holding a rolling mean.
func (s MovingAverageSeries) Defined() int {
	n := 0
	for _, v := range s.MA {
		if v.Valid {
			n++
		}
	}
	return n
}

// Latest returns the last defined rolling mean, if any.
func (s MovingAverageSeries) Latest() null.Float {
	for i := len(s.MA) - 1; i >= 0; i-- {
		if s.MA[i].Valid {
			return s.MA[i]
		}
	}
	return null.Float{}
}
