// Package arrowio converts frames to and from the Arrow IPC stream format.
// String columns map to utf8, time columns to timestamp[us, UTC] and float
// columns to nullable float64, with NaN written as null.
package arrowio

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/apache/arrow/go/v18/arrow/memory"

	"github.com/derickschaefer/stationcube/internal/frame"
)

// Schema returns the Arrow schema for f.
func Schema(f *frame.Frame) *arrow.Schema {
	cols := f.Columns()
	fields := make([]arrow.Field, len(cols))
	for i, c := range cols {
		switch c.Kind {
		case frame.KindString:
			fields[i] = arrow.Field{Name: c.Name, Type: arrow.BinaryTypes.String}
		case frame.KindTime:
			fields[i] = arrow.Field{Name: c.Name, Type: arrow.FixedWidthTypes.Timestamp_us}
		default:
			fields[i] = arrow.Field{Name: c.Name, Type: arrow.PrimitiveTypes.Float64, Nullable: true}
		}
	}
	return arrow.NewSchema(fields, nil)
}

// Record builds an Arrow record from f. The caller must Release it.
func Record(mem memory.Allocator, f *frame.Frame) arrow.Record {
	b := array.NewRecordBuilder(mem, Schema(f))
	defer b.Release()

	for i, c := range f.Columns() {
		switch c.Kind {
		case frame.KindString:
			b.Field(i).(*array.StringBuilder).AppendValues(c.Strings, nil)
		case frame.KindTime:
			tb := b.Field(i).(*array.TimestampBuilder)
			tb.Reserve(len(c.Times))
			for _, t := range c.Times {
				tb.Append(arrow.Timestamp(t.UnixMicro()))
			}
		default:
			fb := b.Field(i).(*array.Float64Builder)
			fb.Reserve(len(c.Floats))
			for _, v := range c.Floats {
				if math.IsNaN(v) {
					fb.AppendNull()
				} else {
					fb.Append(v)
				}
			}
		}
	}
	return b.NewRecord()
}

// Write writes f to w as a single-record Arrow IPC stream.
func Write(w io.Writer, f *frame.Frame) error {
	mem := memory.NewGoAllocator()
	rec := Record(mem, f)
	defer rec.Release()

	wr := ipc.NewWriter(w, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(mem))
	if err := wr.Write(rec); err != nil {
		_ = wr.Close()
		return fmt.Errorf("arrow write: %w", err)
	}
	if err := wr.Close(); err != nil {
		return fmt.Errorf("arrow write: %w", err)
	}
	return nil
}

// Marshal encodes f as an Arrow IPC stream.
func Marshal(f *frame.Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes an Arrow IPC stream produced by Marshal.
func Unmarshal(data []byte) (*frame.Frame, error) {
	return Read(bytes.NewReader(data))
}

// column accumulates values across record batches.
type column struct {
	name    string
	kind    frame.Kind
	strings []string
	times   []time.Time
	floats  []float64
}

// Read decodes an Arrow IPC stream into a frame. Every record batch must
// share the stream schema. Integer columns are read as floats.
func Read(r io.Reader) (*frame.Frame, error) {
	mem := memory.NewGoAllocator()
	rdr, err := ipc.NewReader(r, ipc.WithAllocator(mem))
	if err != nil {
		return nil, fmt.Errorf("arrow read: %w", err)
	}
	defer rdr.Release()

	schema := rdr.Schema()
	cols := make([]*column, schema.NumFields())
	for i, fld := range schema.Fields() {
		c := &column{name: fld.Name}
		switch fld.Type.ID() {
		case arrow.STRING:
			c.kind = frame.KindString
		case arrow.TIMESTAMP:
			c.kind = frame.KindTime
		case arrow.FLOAT64, arrow.FLOAT32, arrow.INT64, arrow.INT32:
			c.kind = frame.KindFloat
		default:
			return nil, fmt.Errorf("arrow read: column %q: unsupported type %s", fld.Name, fld.Type)
		}
		cols[i] = c
	}

	for rdr.Next() {
		rec := rdr.Record()
		for i, c := range cols {
			if err := appendArray(c, rec.Column(i)); err != nil {
				return nil, fmt.Errorf("arrow read: column %q: %w", c.name, err)
			}
		}
	}
	if err := rdr.Err(); err != nil {
		return nil, fmt.Errorf("arrow read: %w", err)
	}

	out := make([]*frame.Column, len(cols))
	for i, c := range cols {
		switch c.kind {
		case frame.KindString:
			out[i] = frame.StringColumn(c.name, c.strings)
		case frame.KindTime:
			out[i] = frame.TimeColumn(c.name, c.times)
		default:
			out[i] = frame.FloatColumn(c.name, c.floats)
		}
	}
	return frame.New(out...)
}

func appendArray(c *column, arr arrow.Array) error {
	n := arr.Len()
	switch a := arr.(type) {
	case *array.String:
		for j := 0; j < n; j++ {
			c.strings = append(c.strings, a.Value(j))
		}
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		for j := 0; j < n; j++ {
			if a.IsNull(j) {
				c.times = append(c.times, time.Time{})
				continue
			}
			c.times = append(c.times, a.Value(j).ToTime(unit).UTC())
		}
	case *array.Float64:
		for j := 0; j < n; j++ {
			c.floats = append(c.floats, floatOrNaN(a.IsNull(j), a.Value(j)))
		}
	case *array.Float32:
		for j := 0; j < n; j++ {
			c.floats = append(c.floats, floatOrNaN(a.IsNull(j), float64(a.Value(j))))
		}
	case *array.Int64:
		for j := 0; j < n; j++ {
			c.floats = append(c.floats, floatOrNaN(a.IsNull(j), float64(a.Value(j))))
		}
	case *array.Int32:
		for j := 0; j < n; j++ {
			c.floats = append(c.floats, floatOrNaN(a.IsNull(j), float64(a.Value(j))))
		}
	default:
		return fmt.Errorf("unsupported array %T", arr)
	}
	return nil
}

func floatOrNaN(null bool, v float64) float64 {
	if null {
		return math.NaN()
	}
	return v
}
