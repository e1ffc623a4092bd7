// Package pipeline reads and writes tables via stdin/stdout. CSV is the
// interchange format for long observation tables; JSONL is the canonical
// pipe format between stationcube commands.
package pipeline

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/derickschaefer/stationcube/internal/frame"
	"github.com/derickschaefer/stationcube/internal/util"
)

// ErrEmptyInput is returned when a reader yields no data rows.
var ErrEmptyInput = errors.New("no rows read from input (is stdin empty?)")

// Options describes how raw text fields become typed columns. Columns named
// in Strings stay strings, columns named in Times are parsed with
// util.ParseTime, and every other column is parsed as a float.
type Options struct {
	Strings   []string
	Times     []string
	Delimiter rune // CSV only; 0 means ','
}

func (o Options) kind(name string) frame.Kind {
	for _, s := range o.Strings {
		if s == name {
			return frame.KindString
		}
	}
	for _, s := range o.Times {
		if s == name {
			return frame.KindTime
		}
	}
	return frame.KindFloat
}

// builder accumulates typed columns row by row.
type builder struct {
	names []string
	cols  []*frame.Column
	index map[string]int
}

func newBuilder(names []string, opts Options) (*builder, error) {
	b := &builder{names: names, index: make(map[string]int, len(names))}
	for i, n := range names {
		if _, dup := b.index[n]; dup {
			return nil, fmt.Errorf("header: %w: %q", frame.ErrDuplicateName, n)
		}
		b.index[n] = i
		b.cols = append(b.cols, &frame.Column{Name: n, Kind: opts.kind(n)})
	}
	return b, nil
}

func (b *builder) appendText(i int, s string) error {
	c := b.cols[i]
	switch c.Kind {
	case frame.KindString:
		c.Strings = append(c.Strings, s)
	case frame.KindTime:
		t, err := util.ParseTime(s)
		if err != nil {
			return fmt.Errorf("column %q: %w", c.Name, err)
		}
		c.Times = append(c.Times, t)
	default:
		v, err := util.ParseValue(s)
		if err != nil {
			return fmt.Errorf("column %q: %w", c.Name, err)
		}
		c.Floats = append(c.Floats, v)
	}
	return nil
}

func (b *builder) frame() (*frame.Frame, error) {
	return frame.New(b.cols...)
}

// ─── CSV ──────────────────────────────────────────────────────────────────────

// ReadCSV reads a headed CSV table from r.
func ReadCSV(r io.Reader, opts Options) (*frame.Frame, error) {
	cr := csv.NewReader(r)
	if opts.Delimiter != 0 {
		cr.Comma = opts.Delimiter
	}
	cr.Comment = '#'
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyInput
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	b, err := newBuilder(header, opts)
	if err != nil {
		return nil, err
	}

	rows := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
		line, _ := cr.FieldPos(0)
		for i, field := range rec {
			if err := b.appendText(i, field); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		}
		rows++
	}
	if rows == 0 {
		return nil, ErrEmptyInput
	}
	return b.frame()
}

// WriteCSV writes f as CSV with a header row. Times are RFC 3339 and
// missing floats are empty fields. delim 0 means ','.
func WriteCSV(w io.Writer, f *frame.Frame, delim rune) error {
	cw := csv.NewWriter(w)
	if delim != 0 {
		cw.Comma = delim
	}
	if err := cw.Write(f.Names()); err != nil {
		return err
	}
	cols := f.Columns()
	rec := make([]string, len(cols))
	for i := 0; i < f.Len(); i++ {
		for j, c := range cols {
			rec[j] = CellText(c, i)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CellText formats row i of c as plain text: RFC 3339 for times, the
// shortest representation for floats and "" for NaN.
func CellText(c *frame.Column, i int) string {
	switch c.Kind {
	case frame.KindString:
		return c.Strings[i]
	case frame.KindTime:
		return util.FormatTime(c.Times[i])
	default:
		v := c.Floats[i]
		if math.IsNaN(v) {
			return ""
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
}

// ─── JSONL ────────────────────────────────────────────────────────────────────

// ReadJSONL reads one JSON object per line from r. Blank lines and lines
// starting with "//" are skipped. Column order follows the keys of the first
// record; later records may omit keys (missing floats become NaN, missing
// strings become "") but may not introduce new ones.
func ReadJSONL(r io.Reader, opts Options) (*frame.Frame, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	var b *builder
	lineNum := 0
	rows := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineNum++
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		if b == nil {
			keys, err := objectKeys([]byte(line))
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid JSON: %w", lineNum, err)
			}
			if b, err = newBuilder(keys, opts); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
		}
		var rec map[string]any
		dec := json.NewDecoder(strings.NewReader(line))
		dec.UseNumber()
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("line %d: invalid JSON: %w", lineNum, err)
		}
		for k := range rec {
			if _, ok := b.index[k]; !ok {
				return nil, fmt.Errorf("line %d: unexpected key %q", lineNum, k)
			}
		}
		for i, name := range b.names {
			if err := b.appendJSON(i, rec[name]); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
		}
		rows++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	if rows == 0 {
		return nil, ErrEmptyInput
	}
	return b.frame()
}

func (b *builder) appendJSON(i int, v any) error {
	c := b.cols[i]
	switch x := v.(type) {
	case nil:
		if c.Kind == frame.KindTime {
			return fmt.Errorf("column %q: missing timestamp", c.Name)
		}
		return b.appendText(i, "")
	case string:
		return b.appendText(i, x)
	case json.Number:
		if c.Kind == frame.KindTime {
			return fmt.Errorf("column %q: unexpected number %s", c.Name, x)
		}
		return b.appendText(i, x.String())
	default:
		return fmt.Errorf("column %q: unexpected value type %T", c.Name, v)
	}
}

// objectKeys returns the top-level keys of a JSON object in document order.
func objectKeys(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object")
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		keys = append(keys, tok.(string))
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// WriteJSONL writes one JSON object per row of f. Keys follow column order,
// times are RFC 3339 and NaN is written as null.
func WriteJSONL(w io.Writer, f *frame.Frame) error {
	bw := bufio.NewWriter(w)
	cols := f.Columns()
	for i := 0; i < f.Len(); i++ {
		bw.WriteByte('{')
		for j, c := range cols {
			if j > 0 {
				bw.WriteByte(',')
			}
			key, _ := json.Marshal(c.Name)
			bw.Write(key)
			bw.WriteByte(':')
			bw.Write(jsonCell(c, i))
		}
		bw.WriteString("}\n")
	}
	return bw.Flush()
}

func jsonCell(c *frame.Column, i int) []byte {
	switch c.Kind {
	case frame.KindString:
		b, _ := json.Marshal(c.Strings[i])
		return b
	case frame.KindTime:
		return []byte(strconv.Quote(c.Times[i].UTC().Format(time.RFC3339Nano)))
	default:
		v := c.Floats[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return []byte("null")
		}
		return strconv.AppendFloat(nil, v, 'f', -1, 64)
	}
}

// IsTTY returns true if stdout is a terminal (not a pipe).
func IsTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
