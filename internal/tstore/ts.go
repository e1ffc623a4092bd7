// Package tstore provides the time-series containers produced by the
// reshaping layer: TS (one time-indexed record per station or
// station-variable), TSArray (a column of TS values with missing entries)
// and Series (an ordered station → TS mapping backed by a TSArray).
package tstore

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/derickschaefer/stationcube/internal/frame"
)

// ErrDuplicateTimestamp is returned when a TS would contain the same
// timestamp twice.
var ErrDuplicateTimestamp = errors.New("duplicate timestamp in time index")

// TS is a time-indexed set of observation columns. The index is strictly
// increasing. A TS is immutable once built.
type TS struct {
	index []time.Time
	data  *frame.Frame
}

// New builds a TS from f, using the time column timeCol as the index. Every
// other column becomes a data column. Rows are ordered by time; equal
// timestamps are rejected with ErrDuplicateTimestamp.
func New(f *frame.Frame, timeCol string) (*TS, error) {
	times, err := f.Times(timeCol)
	if err != nil {
		return nil, fmt.Errorf("ts: %w", err)
	}
	order := make([]int, len(times))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return times[order[a]].Before(times[order[b]])
	})
	index := make([]time.Time, len(order))
	for i, r := range order {
		index[i] = times[r].UTC()
		if i > 0 && index[i].Equal(index[i-1]) {
			return nil, fmt.Errorf("ts: %w: %s", ErrDuplicateTimestamp, index[i].Format(time.RFC3339))
		}
	}

	data, err := f.Drop(timeCol)
	if err != nil {
		return nil, fmt.Errorf("ts: %w", err)
	}
	return &TS{index: index, data: data.Take(order)}, nil
}

// Len returns the number of timestamps.
func (ts *TS) Len() int { return len(ts.index) }

// Index returns the time index. The slice must not be modified.
func (ts *TS) Index() []time.Time { return ts.index }

// Columns returns the data column names.
func (ts *TS) Columns() []string { return ts.data.Names() }

// Frame returns the data columns, row-aligned with Index.
func (ts *TS) Frame() *frame.Frame { return ts.data }

// Floats returns a float data column.
func (ts *TS) Floats(name string) ([]float64, error) {
	return ts.data.Floats(name)
}

// Start returns the first timestamp, or the zero time for an empty TS.
func (ts *TS) Start() time.Time {
	if len(ts.index) == 0 {
		return time.Time{}
	}
	return ts.index[0]
}

// End returns the last timestamp, or the zero time for an empty TS.
func (ts *TS) End() time.Time {
	if len(ts.index) == 0 {
		return time.Time{}
	}
	return ts.index[len(ts.index)-1]
}

// Equal reports whether two containers hold the same index and columns.
// NaN compares equal to NaN.
func (ts *TS) Equal(o *TS) bool {
	if ts == nil || o == nil {
		return ts == o
	}
	if len(ts.index) != len(o.index) {
		return false
	}
	for i := range ts.index {
		if !ts.index[i].Equal(o.index[i]) {
			return false
		}
	}
	a, b := ts.data.Columns(), o.data.Columns()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !columnsEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func columnsEqual(a, b *frame.Column) bool {
	if a.Name != b.Name || a.Kind != b.Kind || a.Len() != b.Len() {
		return false
	}
	for i := 0; i < a.Len(); i++ {
		switch a.Kind {
		case frame.KindString:
			if a.Strings[i] != b.Strings[i] {
				return false
			}
		case frame.KindTime:
			if !a.Times[i].Equal(b.Times[i]) {
				return false
			}
		default:
			x, y := a.Floats[i], b.Floats[i]
			if x != y && !(math.IsNaN(x) && math.IsNaN(y)) {
				return false
			}
		}
	}
	return true
}
