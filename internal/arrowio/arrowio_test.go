package arrowio_test

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/apache/arrow/go/v18/arrow/memory"

	"github.com/derickschaefer/stationcube/internal/arrowio"
	"github.com/derickschaefer/stationcube/internal/frame"
)

func sampleFrame(t *testing.T) *frame.Frame {
	t.Helper()
	f, err := frame.New(
		frame.StringColumn("id", []string{"A", "B"}),
		frame.StringColumn("variable", []string{"temp", "temp"}),
		frame.TimeColumn("time", []time.Time{
			time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 1, 1, 0, 10, 0, 0, time.UTC),
		}),
		frame.FloatColumn("value", []float64{1.25, math.NaN()}),
	)
	if err != nil {
		t.Fatalf("frame.New: %v", err)
	}
	return f
}

func TestMarshalPreservesFrame(t *testing.T) {
	in := sampleFrame(t)
	data, err := arrowio.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out, err := arrowio.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Len() != 2 || out.Width() != 4 {
		t.Fatalf("expected 2x4 frame, got %dx%d", out.Len(), out.Width())
	}
	ids, _ := out.Strings("id")
	times, _ := out.Times("time")
	vals, _ := out.Floats("value")
	if ids[1] != "B" {
		t.Errorf("ids: %v", ids)
	}
	if !times[1].Equal(time.Date(2024, 1, 1, 0, 10, 0, 0, time.UTC)) {
		t.Errorf("times: %v", times)
	}
	if vals[0] != 1.25 || !math.IsNaN(vals[1]) {
		t.Errorf("values: %v", vals)
	}
}

func TestSchemaTypes(t *testing.T) {
	s := arrowio.Schema(sampleFrame(t))
	if s.Field(0).Type.ID() != arrow.STRING {
		t.Errorf("id: %s", s.Field(0).Type)
	}
	if s.Field(2).Type.ID() != arrow.TIMESTAMP {
		t.Errorf("time: %s", s.Field(2).Type)
	}
	if s.Field(3).Type.ID() != arrow.FLOAT64 || !s.Field(3).Nullable {
		t.Errorf("value: %s nullable=%v", s.Field(3).Type, s.Field(3).Nullable)
	}
}

func TestReadIntegerColumnAsFloat(t *testing.T) {
	mem := memory.NewGoAllocator()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.BinaryTypes.String},
		{Name: "count", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	}, nil)
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	b.Field(0).(*array.StringBuilder).AppendValues([]string{"A", "B"}, nil)
	b.Field(1).(*array.Int64Builder).AppendValues([]int64{7, 0}, []bool{true, false})
	rec := b.NewRecord()
	defer rec.Release()

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema))
	if err := w.Write(rec); err != nil {
		t.Fatalf("ipc write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("ipc close: %v", err)
	}

	f, err := arrowio.Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	counts, err := f.Floats("count")
	if err != nil {
		t.Fatalf("Floats: %v", err)
	}
	if counts[0] != 7 || !math.IsNaN(counts[1]) {
		t.Errorf("counts: %v", counts)
	}
}

func TestEmptyFrame(t *testing.T) {
	f, _ := frame.New(frame.StringColumn("id", nil), frame.FloatColumn("value", nil))
	data, err := arrowio.Marshal(f)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out, err := arrowio.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Len() != 0 || out.Width() != 2 {
		t.Errorf("expected 0x2 frame, got %dx%d", out.Len(), out.Width())
	}
}
