package tstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/mebo/encoding"
	"github.com/arloliu/mebo/endian"

	"github.com/derickschaefer/stationcube/internal/frame"
)

// Binary layout:
//
//	magic "TS2"
//	uvarint rows
//	uvarint columns
//	section: index, delta-of-delta unix microseconds
//	section: column names, uvarint-prefixed strings
//	one kind byte per column
//	one section per column
//	  float:  raw little-endian float64
//	  time:   delta-of-delta unix microseconds
//	  string: uvarint-prefixed strings
//
// A section is a uvarint byte length followed by that many bytes. Times are
// stored at microsecond precision, the same precision the Arrow path uses.
const magic = "TS2"

// ErrCorrupt is returned when a TS payload cannot be decoded.
var ErrCorrupt = errors.New("corrupt ts payload")

var engine = endian.GetLittleEndianEngine()

func appendSection(buf, section []byte) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(section)))
	return append(buf, section...)
}

func encodeTimes(times []time.Time) []byte {
	enc := encoding.NewTimestampDeltaEncoder()
	defer enc.Finish()
	for _, t := range times {
		enc.Write(t.UnixMicro())
	}
	return append([]byte(nil), enc.Bytes()...)
}

func encodeFloats(vals []float64) []byte {
	enc := encoding.NewNumericRawEncoder(engine)
	defer enc.Finish()
	enc.WriteSlice(vals)
	return append([]byte(nil), enc.Bytes()...)
}

func encodeStrings(vals []string) []byte {
	enc := encoding.NewTagEncoder(engine)
	defer enc.Finish()
	enc.WriteSlice(vals)
	return append([]byte(nil), enc.Bytes()...)
}

// MarshalBinary encodes the container.
func (ts *TS) MarshalBinary() ([]byte, error) {
	cols := ts.data.Columns()
	names := make([]string, len(cols))
	kinds := make([]byte, len(cols))
	for i, c := range cols {
		names[i] = c.Name
		kinds[i] = byte(c.Kind)
	}

	buf := make([]byte, 0, 16+ts.Len()*(2+8*len(cols)))
	buf = append(buf, magic...)
	buf = binary.AppendUvarint(buf, uint64(ts.Len()))
	buf = binary.AppendUvarint(buf, uint64(len(cols)))
	buf = appendSection(buf, encodeTimes(ts.index))
	buf = appendSection(buf, encodeStrings(names))
	buf = append(buf, kinds...)

	for _, c := range cols {
		switch c.Kind {
		case frame.KindFloat:
			buf = appendSection(buf, encodeFloats(c.Floats))
		case frame.KindTime:
			buf = appendSection(buf, encodeTimes(c.Times))
		case frame.KindString:
			buf = appendSection(buf, encodeStrings(c.Strings))
		default:
			return nil, fmt.Errorf("ts: cannot encode column %q of kind %s", c.Name, c.Kind)
		}
	}
	return buf, nil
}

// reader walks a payload, remembering the first error.
type reader struct {
	b   []byte
	err error
}

func (r *reader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.b)
	if n <= 0 {
		r.err = ErrCorrupt
		return 0
	}
	r.b = r.b[n:]
	return v
}

func (r *reader) bytes(n uint64) []byte {
	if r.err != nil {
		return nil
	}
	if uint64(len(r.b)) < n {
		r.err = ErrCorrupt
		return nil
	}
	out := r.b[:n]
	r.b = r.b[n:]
	return out
}

func (r *reader) section() []byte { return r.bytes(r.uvarint()) }

func decodeTimes(data []byte, n int) ([]time.Time, error) {
	out := make([]time.Time, 0, n)
	for us := range encoding.NewTimestampDeltaDecoder().All(data, n) {
		out = append(out, time.UnixMicro(us).UTC())
	}
	if len(out) != n {
		return nil, fmt.Errorf("%w: %d of %d timestamps", ErrCorrupt, len(out), n)
	}
	return out, nil
}

func decodeFloats(data []byte, n int) ([]float64, error) {
	if len(data) != n*8 {
		return nil, fmt.Errorf("%w: %d bytes for %d floats", ErrCorrupt, len(data), n)
	}
	out := make([]float64, 0, n)
	for v := range encoding.NewNumericRawDecoder(engine).All(data, n) {
		out = append(out, v)
	}
	return out, nil
}

func decodeStrings(data []byte, n int) ([]string, error) {
	out := make([]string, 0, n)
	for s := range encoding.NewTagDecoder(engine).All(data, n) {
		out = append(out, s)
	}
	if len(out) != n {
		return nil, fmt.Errorf("%w: %d of %d strings", ErrCorrupt, len(out), n)
	}
	return out, nil
}

// UnmarshalTS decodes a payload produced by MarshalBinary.
func UnmarshalTS(data []byte) (*TS, error) {
	if len(data) < len(magic) || string(data[:len(magic)]) != magic {
		return nil, fmt.Errorf("ts: %w: bad magic", ErrCorrupt)
	}
	r := &reader{b: data[len(magic):]}
	rows := r.uvarint()
	ncols := r.uvarint()
	// Every timestamp and every column name takes at least one byte.
	if r.err == nil && (rows > uint64(len(r.b)) || ncols > uint64(len(r.b))) {
		return nil, fmt.Errorf("ts: %w: %d rows, %d columns in %d bytes", ErrCorrupt, rows, ncols, len(r.b))
	}
	indexData := r.section()
	nameData := r.section()
	kinds := r.bytes(ncols)
	if r.err != nil {
		return nil, fmt.Errorf("ts: %w", r.err)
	}

	index, err := decodeTimes(indexData, int(rows))
	if err != nil {
		return nil, fmt.Errorf("ts: index: %w", err)
	}
	names, err := decodeStrings(nameData, int(ncols))
	if err != nil {
		return nil, fmt.Errorf("ts: column names: %w", err)
	}

	cols := make([]*frame.Column, 0, ncols)
	for i, name := range names {
		raw := r.section()
		if r.err != nil {
			return nil, fmt.Errorf("ts: column %q: %w", name, r.err)
		}
		switch frame.Kind(kinds[i]) {
		case frame.KindFloat:
			vals, err := decodeFloats(raw, int(rows))
			if err != nil {
				return nil, fmt.Errorf("ts: column %q: %w", name, err)
			}
			cols = append(cols, frame.FloatColumn(name, vals))
		case frame.KindTime:
			vals, err := decodeTimes(raw, int(rows))
			if err != nil {
				return nil, fmt.Errorf("ts: column %q: %w", name, err)
			}
			cols = append(cols, frame.TimeColumn(name, vals))
		case frame.KindString:
			vals, err := decodeStrings(raw, int(rows))
			if err != nil {
				return nil, fmt.Errorf("ts: column %q: %w", name, err)
			}
			cols = append(cols, frame.StringColumn(name, vals))
		default:
			return nil, fmt.Errorf("ts: %w: column %q has kind %d", ErrCorrupt, name, kinds[i])
		}
	}

	df, err := frame.New(cols...)
	if err != nil {
		return nil, fmt.Errorf("ts: %w: %v", ErrCorrupt, err)
	}
	if len(cols) == 0 {
		// Keep the row count of an index-only container.
		df = df.Take(make([]int, rows))
	}
	return &TS{index: index, data: df}, nil
}
