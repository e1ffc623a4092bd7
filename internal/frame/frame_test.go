package frame_test

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/derickschaefer/stationcube/internal/frame"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

func hour(h int) time.Time {
	return time.Date(2024, 1, 1, h, 0, 0, 0, time.UTC)
}

// longFrame builds an id/variable/time/value frame from parallel slices.
func longFrame(t *testing.T, ids, vars []string, hours []int, vals []float64) *frame.Frame {
	t.Helper()
	times := make([]time.Time, len(hours))
	for i, h := range hours {
		times[i] = hour(h)
	}
	f, err := frame.New(
		frame.StringColumn("id", ids),
		frame.StringColumn("variable", vars),
		frame.TimeColumn("time", times),
		frame.FloatColumn("value", vals),
	)
	if err != nil {
		t.Fatalf("frame.New: %v", err)
	}
	return f
}

// ─── New ──────────────────────────────────────────────────────────────────────

func TestNewLengthMismatch(t *testing.T) {
	_, err := frame.New(
		frame.StringColumn("a", []string{"x", "y"}),
		frame.FloatColumn("b", []float64{1}),
	)
	if !errors.Is(err, frame.ErrLengthMismatch) {
		t.Errorf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestNewDuplicateName(t *testing.T) {
	_, err := frame.New(
		frame.StringColumn("a", []string{"x"}),
		frame.FloatColumn("a", []float64{1}),
	)
	if !errors.Is(err, frame.ErrDuplicateName) {
		t.Errorf("expected ErrDuplicateName, got %v", err)
	}
}

func TestColumnNotFound(t *testing.T) {
	f := longFrame(t, []string{"A"}, []string{"temp"}, []int{1}, []float64{1})
	if _, err := f.Strings("missing"); !errors.Is(err, frame.ErrColumnNotFound) {
		t.Errorf("expected ErrColumnNotFound, got %v", err)
	}
	if _, err := f.Floats("id"); !errors.Is(err, frame.ErrColumnKind) {
		t.Errorf("expected ErrColumnKind, got %v", err)
	}
}

// ─── FilterIn / Drop / Take ───────────────────────────────────────────────────

func TestFilterIn(t *testing.T) {
	f := longFrame(t,
		[]string{"A", "A", "B"},
		[]string{"temp", "hum", "temp"},
		[]int{1, 1, 1},
		[]float64{10, 80, 9},
	)
	out, err := f.FilterIn("variable", []string{"temp", "absent"})
	if err != nil {
		t.Fatalf("FilterIn: %v", err)
	}
	if out.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", out.Len())
	}
	ids, _ := out.Strings("id")
	if ids[0] != "A" || ids[1] != "B" {
		t.Errorf("unexpected ids %v", ids)
	}
}

func TestFilterInEmptySet(t *testing.T) {
	f := longFrame(t, []string{"A"}, []string{"temp"}, []int{1}, []float64{1})
	out, err := f.FilterIn("variable", nil)
	if err != nil {
		t.Fatalf("FilterIn: %v", err)
	}
	if out.Len() != 0 || out.Width() != 4 {
		t.Errorf("expected 0x4 frame, got %dx%d", out.Len(), out.Width())
	}
}

func TestDrop(t *testing.T) {
	f := longFrame(t, []string{"A"}, []string{"temp"}, []int{1}, []float64{1})
	out, err := f.Drop("id", "variable")
	if err != nil {
		t.Fatalf("Drop: %v", err)
	}
	names := out.Names()
	if len(names) != 2 || names[0] != "time" || names[1] != "value" {
		t.Errorf("unexpected names %v", names)
	}
	if _, err := f.Drop("nope"); !errors.Is(err, frame.ErrColumnNotFound) {
		t.Errorf("expected ErrColumnNotFound, got %v", err)
	}
}

func TestTakeReorders(t *testing.T) {
	f := longFrame(t, []string{"A", "B", "C"}, []string{"t", "t", "t"}, []int{1, 2, 3}, []float64{1, 2, 3})
	out := f.Take([]int{2, 0})
	vals, _ := out.Floats("value")
	if len(vals) != 2 || vals[0] != 3 || vals[1] != 1 {
		t.Errorf("unexpected values %v", vals)
	}
}

func TestConcat(t *testing.T) {
	a := longFrame(t, []string{"A"}, []string{"temp"}, []int{1}, []float64{1})
	b := longFrame(t, []string{"B", "B"}, []string{"temp", "rh"}, []int{1, 2}, []float64{2, 3})
	out, err := frame.Concat(a, b)
	if err != nil {
		t.Fatalf("Concat: %v", err)
	}
	if out.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", out.Len())
	}
	ids, _ := out.Strings("id")
	if ids[0] != "A" || ids[2] != "B" {
		t.Errorf("unexpected ids %v", ids)
	}
}

func TestConcatSchemaMismatch(t *testing.T) {
	a := longFrame(t, []string{"A"}, []string{"temp"}, []int{1}, []float64{1})
	b, _ := a.Drop("variable")
	if _, err := frame.Concat(a, b); err == nil {
		t.Fatal("expected error for mismatched columns")
	}
}

// ─── GroupBy / Unique ─────────────────────────────────────────────────────────

func TestGroupBySortedStable(t *testing.T) {
	f := longFrame(t,
		[]string{"B", "A", "B", "A"},
		[]string{"t", "t", "t", "t"},
		[]int{1, 1, 2, 2},
		[]float64{1, 2, 3, 4},
	)
	groups, err := f.GroupBy("id")
	if err != nil {
		t.Fatalf("GroupBy: %v", err)
	}
	if len(groups) != 2 || groups[0].Key != "A" || groups[1].Key != "B" {
		t.Fatalf("unexpected groups %+v", groups)
	}
	vals, _ := groups[1].Frame.Floats("value")
	if vals[0] != 1 || vals[1] != 3 {
		t.Errorf("group B should keep source order, got %v", vals)
	}
}

func TestUnique(t *testing.T) {
	f := longFrame(t, []string{"A", "A", "B"}, []string{"wind", "temp", "wind"}, []int{1, 1, 1}, []float64{1, 2, 3})
	got, err := f.Unique("variable")
	if err != nil {
		t.Fatalf("Unique: %v", err)
	}
	if len(got) != 2 || got[0] != "temp" || got[1] != "wind" {
		t.Errorf("unexpected %v", got)
	}
}

// ─── Unstack ──────────────────────────────────────────────────────────────────

func TestUnstack(t *testing.T) {
	f := longFrame(t,
		[]string{"B", "A", "A", "A"},
		[]string{"temp", "temp", "hum", "temp"},
		[]int{1, 2, 1, 1},
		[]float64{9, 12, 80, 10},
	)
	out, err := f.Unstack("id", "time", "variable", "value")
	if err != nil {
		t.Fatalf("Unstack: %v", err)
	}
	names := out.Names()
	want := []string{"id", "time", "hum", "temp"}
	if len(names) != len(want) {
		t.Fatalf("names: expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names: expected %v, got %v", want, names)
		}
	}
	if out.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", out.Len())
	}
	ids, _ := out.Strings("id")
	times, _ := out.Times("time")
	temp, _ := out.Floats("temp")
	hum, _ := out.Floats("hum")

	// Rows sorted by (id, time): (A,1) (A,2) (B,1)
	if ids[0] != "A" || !times[0].Equal(hour(1)) || temp[0] != 10 || hum[0] != 80 {
		t.Errorf("row 0: %s %v %g %g", ids[0], times[0], temp[0], hum[0])
	}
	if ids[1] != "A" || !times[1].Equal(hour(2)) || temp[1] != 12 || !math.IsNaN(hum[1]) {
		t.Errorf("row 1: %s %v %g %g", ids[1], times[1], temp[1], hum[1])
	}
	if ids[2] != "B" || temp[2] != 9 || !math.IsNaN(hum[2]) {
		t.Errorf("row 2: %s %g %g", ids[2], temp[2], hum[2])
	}
}

func TestUnstackDuplicate(t *testing.T) {
	f := longFrame(t,
		[]string{"A", "A"},
		[]string{"temp", "temp"},
		[]int{1, 1},
		[]float64{1, 2},
	)
	_, err := f.Unstack("id", "time", "variable", "value")
	if !errors.Is(err, frame.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestUnstackHistoricalOrder(t *testing.T) {
	y1700 := time.Date(1700, 1, 1, 0, 0, 0, 0, time.UTC)
	y1600 := time.Date(1600, 1, 1, 0, 0, 0, 0, time.UTC)
	f, err := frame.New(
		frame.StringColumn("id", []string{"A", "A"}),
		frame.TimeColumn("time", []time.Time{y1700, y1600}),
		frame.StringColumn("variable", []string{"temp", "temp"}),
		frame.FloatColumn("value", []float64{17, 16}),
	)
	if err != nil {
		t.Fatalf("frame.New: %v", err)
	}
	out, err := f.Unstack("id", "time", "variable", "value")
	if err != nil {
		t.Fatalf("Unstack: %v", err)
	}
	times, _ := out.Times("time")
	temp, _ := out.Floats("temp")
	if !times[0].Equal(y1600) || !times[1].Equal(y1700) {
		t.Errorf("rows not in time order: %v", times)
	}
	if temp[0] != 16 || temp[1] != 17 {
		t.Errorf("values not aligned with times: %v", temp)
	}
}

func TestUnstackTimesInUTC(t *testing.T) {
	zurich := time.FixedZone("CET", 3600)
	local := time.Date(2024, 1, 1, 1, 0, 0, 0, zurich)
	f, _ := frame.New(
		frame.StringColumn("id", []string{"A", "A"}),
		frame.TimeColumn("time", []time.Time{local, local.UTC()}),
		frame.StringColumn("variable", []string{"temp", "hum"}),
		frame.FloatColumn("value", []float64{1, 80}),
	)
	out, err := f.Unstack("id", "time", "variable", "value")
	if err != nil {
		t.Fatalf("Unstack: %v", err)
	}
	if out.Len() != 1 {
		t.Fatalf("same instant in two zones should give one row, got %d", out.Len())
	}
	times, _ := out.Times("time")
	if times[0].Location() != time.UTC || !times[0].Equal(local) {
		t.Errorf("time = %v, want %v in UTC", times[0], local.UTC())
	}
}

func TestUnstackLevelNamedLikeKeyColumn(t *testing.T) {
	f := longFrame(t, []string{"A", "A"}, []string{"time", "temp"}, []int{1, 1}, []float64{1, 2})
	_, err := f.Unstack("id", "time", "variable", "value")
	if !errors.Is(err, frame.ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
	if !strings.Contains(err.Error(), `variable value "time"`) {
		t.Errorf("error should name the clashing value: %v", err)
	}
}

func TestUnstackMissingColumn(t *testing.T) {
	f := longFrame(t, []string{"A"}, []string{"temp"}, []int{1}, []float64{1})
	_, err := f.Unstack("station", "time", "variable", "value")
	if !errors.Is(err, frame.ErrColumnNotFound) {
		t.Errorf("expected ErrColumnNotFound, got %v", err)
	}
}

func TestRowNaNIsNil(t *testing.T) {
	f := longFrame(t, []string{"A"}, []string{"temp"}, []int{1}, []float64{math.NaN()})
	row := f.Row(0)
	if row["value"] != nil {
		t.Errorf("expected nil for NaN, got %v", row["value"])
	}
	if row["id"] != "A" {
		t.Errorf("expected id A, got %v", row["id"])
	}
}
