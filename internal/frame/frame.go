// Package frame is a small in-memory columnar table used by the reshaping
// layer. It supports exactly the operations the reshapes need: membership
// filtering, stable grouping by a string key, row selection, column dropping
// and a pivot of one key column into value columns.
//
// Missing float values are NaN. Frames are never mutated after construction;
// every operation returns a new Frame that may share backing slices with its
// input.
package frame

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Kind identifies the element type of a Column.
type Kind int

const (
	KindString Kind = iota
	KindTime
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindTime:
		return "time"
	case KindFloat:
		return "float"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinel errors. Callers match with errors.Is.
var (
	ErrColumnNotFound = errors.New("column not found")
	ErrColumnKind     = errors.New("column has wrong kind")
	ErrDuplicateKey   = errors.New("duplicate key")
	ErrLengthMismatch = errors.New("column length mismatch")
	ErrDuplicateName  = errors.New("duplicate column name")
)

// Column is a named, typed slice of values. Exactly one of the backing
// slices is populated, matching Kind.
type Column struct {
	Name    string
	Kind    Kind
	Strings []string
	Times   []time.Time
	Floats  []float64
}

// StringColumn builds a string column.
func StringColumn(name string, vals []string) *Column {
	return &Column{Name: name, Kind: KindString, Strings: vals}
}

// TimeColumn builds a time column.
func TimeColumn(name string, vals []time.Time) *Column {
	return &Column{Name: name, Kind: KindTime, Times: vals}
}

// FloatColumn builds a float column. NaN marks a missing value.
func FloatColumn(name string, vals []float64) *Column {
	return &Column{Name: name, Kind: KindFloat, Floats: vals}
}

// Len returns the number of values in the column.
func (c *Column) Len() int {
	switch c.Kind {
	case KindString:
		return len(c.Strings)
	case KindTime:
		return len(c.Times)
	default:
		return len(c.Floats)
	}
}

// take returns a new column holding the values at rows, in order.
func (c *Column) take(rows []int) *Column {
	out := &Column{Name: c.Name, Kind: c.Kind}
	switch c.Kind {
	case KindString:
		out.Strings = make([]string, len(rows))
		for i, r := range rows {
			out.Strings[i] = c.Strings[r]
		}
	case KindTime:
		out.Times = make([]time.Time, len(rows))
		for i, r := range rows {
			out.Times[i] = c.Times[r]
		}
	default:
		out.Floats = make([]float64, len(rows))
		for i, r := range rows {
			out.Floats[i] = c.Floats[r]
		}
	}
	return out
}

// Frame is an ordered collection of equal-length, uniquely named columns.
type Frame struct {
	cols  []*Column
	index map[string]int
	rows  int
}

// New builds a Frame from columns. All columns must have the same length
// and distinct names.
func New(cols ...*Column) (*Frame, error) {
	f := &Frame{
		cols:  make([]*Column, 0, len(cols)),
		index: make(map[string]int, len(cols)),
	}
	for i, c := range cols {
		if _, dup := f.index[c.Name]; dup {
			return nil, fmt.Errorf("frame: %w: %q", ErrDuplicateName, c.Name)
		}
		if i == 0 {
			f.rows = c.Len()
		} else if c.Len() != f.rows {
			return nil, fmt.Errorf("frame: %w: %q has %d rows, expected %d",
				ErrLengthMismatch, c.Name, c.Len(), f.rows)
		}
		f.index[c.Name] = len(f.cols)
		f.cols = append(f.cols, c)
	}
	return f, nil
}

// Len returns the number of rows.
func (f *Frame) Len() int { return f.rows }

// Width returns the number of columns.
func (f *Frame) Width() int { return len(f.cols) }

// Names returns the column names in order.
func (f *Frame) Names() []string {
	out := make([]string, len(f.cols))
	for i, c := range f.cols {
		out[i] = c.Name
	}
	return out
}

// Has reports whether the frame has a column called name.
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Columns returns the columns in order. The slice is a copy; the columns
// themselves are shared and must not be modified.
func (f *Frame) Columns() []*Column {
	out := make([]*Column, len(f.cols))
	copy(out, f.cols)
	return out
}

// Column returns the named column or ErrColumnNotFound.
func (f *Frame) Column(name string) (*Column, error) {
	i, ok := f.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	return f.cols[i], nil
}

func (f *Frame) typed(name string, kind Kind) (*Column, error) {
	c, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	if c.Kind != kind {
		return nil, fmt.Errorf("%w: %q is %s, expected %s", ErrColumnKind, name, c.Kind, kind)
	}
	return c, nil
}

// Strings returns the values of a string column.
func (f *Frame) Strings(name string) ([]string, error) {
	c, err := f.typed(name, KindString)
	if err != nil {
		return nil, err
	}
	return c.Strings, nil
}

// Times returns the values of a time column.
func (f *Frame) Times(name string) ([]time.Time, error) {
	c, err := f.typed(name, KindTime)
	if err != nil {
		return nil, err
	}
	return c.Times, nil
}

// Floats returns the values of a float column.
func (f *Frame) Floats(name string) ([]float64, error) {
	c, err := f.typed(name, KindFloat)
	if err != nil {
		return nil, err
	}
	return c.Floats, nil
}

// Take returns a frame holding the given rows in the given order.
func (f *Frame) Take(rows []int) *Frame {
	out := &Frame{
		cols:  make([]*Column, len(f.cols)),
		index: f.index,
		rows:  len(rows),
	}
	for i, c := range f.cols {
		out.cols[i] = c.take(rows)
	}
	return out
}

// Drop returns a frame without the named columns.
func (f *Frame) Drop(names ...string) (*Frame, error) {
	skip := make(map[string]bool, len(names))
	for _, n := range names {
		if !f.Has(n) {
			return nil, fmt.Errorf("drop: %w: %q", ErrColumnNotFound, n)
		}
		skip[n] = true
	}
	keep := make([]*Column, 0, len(f.cols))
	for _, c := range f.cols {
		if !skip[c.Name] {
			keep = append(keep, c)
		}
	}
	out, err := New(keep...)
	if err != nil {
		return nil, err
	}
	// A frame with no columns left still has its row count.
	out.rows = f.rows
	return out, nil
}

// Concat stacks frames vertically. Every frame must have the same column
// names and kinds, in the same order.
func Concat(frames ...*Frame) (*Frame, error) {
	if len(frames) == 0 {
		return New()
	}
	first := frames[0]
	cols := make([]*Column, len(first.cols))
	for j, c := range first.cols {
		cols[j] = &Column{Name: c.Name, Kind: c.Kind}
	}
	for n, f := range frames {
		if len(f.cols) != len(cols) {
			return nil, fmt.Errorf("concat: frame %d has %d columns, expected %d", n, len(f.cols), len(cols))
		}
		for j, c := range f.cols {
			out := cols[j]
			if c.Name != out.Name || c.Kind != out.Kind {
				return nil, fmt.Errorf("concat: frame %d column %d is %s %q, expected %s %q",
					n, j, c.Kind, c.Name, out.Kind, out.Name)
			}
			out.Strings = append(out.Strings, c.Strings...)
			out.Times = append(out.Times, c.Times...)
			out.Floats = append(out.Floats, c.Floats...)
		}
	}
	return New(cols...)
}

// FilterIn keeps the rows whose value in the string column name is one of
// values. Values absent from the column simply match nothing.
func (f *Frame) FilterIn(name string, values []string) (*Frame, error) {
	col, err := f.Strings(name)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	want := make(map[string]struct{}, len(values))
	for _, v := range values {
		want[v] = struct{}{}
	}
	rows := make([]int, 0, len(col))
	for i, v := range col {
		if _, ok := want[v]; ok {
			rows = append(rows, i)
		}
	}
	return f.Take(rows), nil
}

// Row returns a human-readable rendering of row i keyed by column name.
// Float NaN values are returned as nil.
func (f *Frame) Row(i int) map[string]any {
	out := make(map[string]any, len(f.cols))
	for _, c := range f.cols {
		switch c.Kind {
		case KindString:
			out[c.Name] = c.Strings[i]
		case KindTime:
			out[c.Name] = c.Times[i]
		default:
			if math.IsNaN(c.Floats[i]) {
				out[c.Name] = nil
			} else {
				out[c.Name] = c.Floats[i]
			}
		}
	}
	return out
}
