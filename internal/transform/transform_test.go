package transform_test

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/derickschaefer/stationcube/internal/frame"
	"github.com/derickschaefer/stationcube/internal/geo"
	"github.com/derickschaefer/stationcube/internal/transform"
	"github.com/derickschaefer/stationcube/internal/tstore"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// obs is one long-format row: station, variable, hour offset, value.
type obs struct {
	id  string
	v   string
	at  int
	val float64
}

func at(h int) time.Time {
	return time.Date(2024, 6, 1, h, 0, 0, 0, time.UTC)
}

// makeLong builds a long frame using the given column names.
func makeLong(t *testing.T, cols transform.Columns, rows ...obs) *frame.Frame {
	t.Helper()
	ids := make([]string, len(rows))
	vars := make([]string, len(rows))
	times := make([]time.Time, len(rows))
	vals := make([]float64, len(rows))
	for i, r := range rows {
		ids[i], vars[i], times[i], vals[i] = r.id, r.v, at(r.at), r.val
	}
	f, err := frame.New(
		frame.StringColumn(cols.ID, ids),
		frame.StringColumn(cols.Variable, vars),
		frame.TimeColumn(cols.Time, times),
		frame.FloatColumn(cols.Value, vals),
	)
	if err != nil {
		t.Fatalf("frame.New: %v", err)
	}
	return f
}

// scenario is the three-row temperature table used across tests.
func scenario(t *testing.T) *frame.Frame {
	return makeLong(t, transform.New(transform.Columns{}).Columns(),
		obs{"A", "temp", 1, 10},
		obs{"A", "temp", 2, 12},
		obs{"B", "temp", 1, 9},
	)
}

func floatsOf(t *testing.T, ts *tstore.TS, col string) []float64 {
	t.Helper()
	vals, err := ts.Floats(col)
	if err != nil {
		t.Fatalf("Floats(%q): %v", col, err)
	}
	return vals
}

// ─── Columns ──────────────────────────────────────────────────────────────────

func TestNewDefaults(t *testing.T) {
	c := transform.New(transform.Columns{}).Columns()
	if c.ID != "id" || c.Time != "time" || c.Variable != "variable" || c.Value != "value" {
		t.Errorf("unexpected defaults %+v", c)
	}
}

func TestNewPartialOverride(t *testing.T) {
	c := transform.New(transform.Columns{ID: "station"}).Columns()
	if c.ID != "station" || c.Time != "time" {
		t.Errorf("unexpected columns %+v", c)
	}
}

// ─── ToModuleFrame ────────────────────────────────────────────────────────────

func TestToModuleFrameScenario(t *testing.T) {
	tr := transform.New(transform.Columns{})
	wide, err := tr.ToModuleFrame(scenario(t), []string{"temp"})
	if err != nil {
		t.Fatalf("ToModuleFrame: %v", err)
	}
	names := wide.Names()
	if len(names) != 3 || names[2] != "temp" {
		t.Fatalf("expected [id time temp], got %v", names)
	}
	ids, _ := wide.Strings("id")
	times, _ := wide.Times("time")
	temp, _ := wide.Floats("temp")
	want := []obs{{"A", "", 1, 10}, {"A", "", 2, 12}, {"B", "", 1, 9}}
	if wide.Len() != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), wide.Len())
	}
	for i, w := range want {
		if ids[i] != w.id || !times[i].Equal(at(w.at)) || temp[i] != w.val {
			t.Errorf("row %d: got (%s, %v, %g), want (%s, %v, %g)",
				i, ids[i], times[i], temp[i], w.id, at(w.at), w.val)
		}
	}
}

func TestToModuleFrameRowPerStationTime(t *testing.T) {
	tr := transform.New(transform.Columns{})
	long := makeLong(t, tr.Columns(),
		obs{"A", "temp", 1, 10},
		obs{"A", "hum", 1, 70},
		obs{"A", "hum", 2, 71},
		obs{"B", "wind", 1, 3},
		obs{"B", "temp", 3, 8},
	)
	wide, err := tr.ToModuleFrame(long, []string{"temp", "hum", "rain"})
	if err != nil {
		t.Fatalf("ToModuleFrame: %v", err)
	}
	// (A,1) (A,2) (B,3); wind filtered out, rain absent.
	if wide.Len() != 3 {
		t.Errorf("expected 3 rows, got %d", wide.Len())
	}
	if wide.Has("wind") || wide.Has("rain") {
		t.Errorf("unexpected columns %v", wide.Names())
	}
	hum, _ := wide.Floats("hum")
	temp, _ := wide.Floats("temp")
	if hum[0] != 70 || temp[0] != 10 {
		t.Errorf("row (A,1): hum=%g temp=%g", hum[0], temp[0])
	}
	if !math.IsNaN(temp[1]) || hum[1] != 71 {
		t.Errorf("row (A,2): hum=%g temp=%g", hum[1], temp[1])
	}
	if !math.IsNaN(hum[2]) || temp[2] != 8 {
		t.Errorf("row (B,3): hum=%g temp=%g", hum[2], temp[2])
	}
}

func TestToModuleFrameSingletonEqualsProjection(t *testing.T) {
	tr := transform.New(transform.Columns{})
	long := makeLong(t, tr.Columns(),
		obs{"B", "temp", 2, 5},
		obs{"A", "hum", 1, 70},
		obs{"A", "temp", 1, 10},
	)
	wide, err := tr.ToModuleFrame(long, []string{"temp"})
	if err != nil {
		t.Fatalf("ToModuleFrame: %v", err)
	}
	if wide.Width() != 3 {
		t.Fatalf("expected single value column, got %v", wide.Names())
	}
	temp, _ := wide.Floats("temp")
	if len(temp) != 2 || temp[0] != 10 || temp[1] != 5 {
		t.Errorf("expected [10 5], got %v", temp)
	}
}

func TestToModuleFrameDuplicateRejected(t *testing.T) {
	tr := transform.New(transform.Columns{})
	long := makeLong(t, tr.Columns(),
		obs{"A", "temp", 1, 10},
		obs{"A", "temp", 1, 11},
	)
	_, err := tr.ToModuleFrame(long, []string{"temp"})
	if !errors.Is(err, frame.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestToModuleFrameVariableNamedLikeTimeColumn(t *testing.T) {
	tr := transform.New(transform.Columns{})
	long := makeLong(t, tr.Columns(),
		obs{"A", "time", 1, 10},
		obs{"A", "temp", 1, 11},
	)
	_, err := tr.ToModuleFrame(long, []string{"time", "temp"})
	if !errors.Is(err, frame.ErrDuplicateName) {
		t.Errorf("expected ErrDuplicateName, got %v", err)
	}
}

func TestToModuleFrameMissingColumn(t *testing.T) {
	tr := transform.New(transform.Columns{Variable: "param"})
	_, err := tr.ToModuleFrame(scenario(t), []string{"temp"})
	if !errors.Is(err, frame.ErrColumnNotFound) {
		t.Errorf("expected ErrColumnNotFound, got %v", err)
	}
}

func TestToModuleFrameCustomColumns(t *testing.T) {
	cols := transform.Columns{ID: "station", Time: "ts", Variable: "param", Value: "reading"}
	tr := transform.New(cols)
	long := makeLong(t, cols, obs{"S1", "temp", 1, 4})
	wide, err := tr.ToModuleFrame(long, []string{"temp"})
	if err != nil {
		t.Fatalf("ToModuleFrame: %v", err)
	}
	if !wide.Has("station") || !wide.Has("ts") || !wide.Has("temp") {
		t.Errorf("unexpected columns %v", wide.Names())
	}
}

// ─── TSSeries ─────────────────────────────────────────────────────────────────

func TestTSSeriesScenario(t *testing.T) {
	tr := transform.New(transform.Columns{})
	wide, err := tr.ToModuleFrame(scenario(t), []string{"temp"})
	if err != nil {
		t.Fatalf("ToModuleFrame: %v", err)
	}
	s, err := tr.TSSeries(wide)
	if err != nil {
		t.Fatalf("TSSeries: %v", err)
	}
	keys := s.Keys()
	if len(keys) != 2 || keys[0] != "A" || keys[1] != "B" {
		t.Fatalf("expected keys [A B], got %v", keys)
	}

	a, _ := s.Get("A")
	if a.Len() != 2 || !a.Index()[0].Equal(at(1)) || !a.Index()[1].Equal(at(2)) {
		t.Errorf("A index: %v", a.Index())
	}
	if v := floatsOf(t, a, "temp"); v[0] != 10 || v[1] != 12 {
		t.Errorf("A values: %v", v)
	}
	b, _ := s.Get("B")
	if b.Len() != 1 || floatsOf(t, b, "temp")[0] != 9 {
		t.Errorf("B: len=%d", b.Len())
	}
	if cols := a.Columns(); len(cols) != 1 || cols[0] != "temp" {
		t.Errorf("station column should be dropped, got %v", cols)
	}
}

func TestTSSeriesSingleStation(t *testing.T) {
	tr := transform.New(transform.Columns{})
	long := makeLong(t, tr.Columns(), obs{"A", "temp", 1, 1}, obs{"A", "temp", 2, 2})
	wide, _ := tr.ToModuleFrame(long, []string{"temp"})
	s, err := tr.TSSeries(wide)
	if err != nil {
		t.Fatalf("TSSeries: %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("expected single entry, got %d", s.Len())
	}
}

func TestTSSeriesSortsTimeIndex(t *testing.T) {
	tr := transform.New(transform.Columns{})
	// Build the module frame by hand with unsorted times.
	f, _ := frame.New(
		frame.StringColumn("id", []string{"A", "A", "A"}),
		frame.TimeColumn("time", []time.Time{at(3), at(1), at(2)}),
		frame.FloatColumn("temp", []float64{3, 1, 2}),
	)
	s, err := tr.TSSeries(f)
	if err != nil {
		t.Fatalf("TSSeries: %v", err)
	}
	a, _ := s.Get("A")
	if v := floatsOf(t, a, "temp"); v[0] != 1 || v[1] != 2 || v[2] != 3 {
		t.Errorf("expected values ordered by time, got %v", v)
	}
}

func TestTSSeriesDuplicateTimestamp(t *testing.T) {
	tr := transform.New(transform.Columns{})
	// A long frame with two variables has repeated timestamps per station.
	long := makeLong(t, tr.Columns(), obs{"A", "temp", 1, 1}, obs{"A", "hum", 1, 2})
	withoutVar, _ := long.Drop("variable")
	_, err := tr.TSSeries(withoutVar)
	if !errors.Is(err, tstore.ErrDuplicateTimestamp) {
		t.Errorf("expected ErrDuplicateTimestamp, got %v", err)
	}
}

// ─── ToTSGeoFrame ─────────────────────────────────────────────────────────────

func stations(t *testing.T) *geo.GeoSeries {
	t.Helper()
	g, err := geo.NewGeoSeries([]string{"A", "B"}, []orb.Geometry{orb.Point{1, 1}, orb.Point{2, 2}})
	if err != nil {
		t.Fatalf("NewGeoSeries: %v", err)
	}
	return g
}

func TestToTSGeoFrameScenario(t *testing.T) {
	tr := transform.New(transform.Columns{})
	long := makeLong(t, tr.Columns(),
		obs{"A", "temp", 1, 10},
		obs{"A", "temp", 2, 12},
		obs{"B", "temp", 1, 9},
		obs{"A", "humidity", 1, 80},
	)
	gf, err := tr.ToTSGeoFrame(long, stations(t), []string{"temp", "humidity"})
	if err != nil {
		t.Fatalf("ToTSGeoFrame: %v", err)
	}
	if gf.Len() != 2 {
		t.Fatalf("expected rows A and B, got %v", gf.IDs())
	}
	hum, err := gf.Column("humidity")
	if err != nil {
		t.Fatalf("Column(humidity): %v", err)
	}
	if hum.IsMissing(0) {
		t.Error("A should have a humidity container")
	}
	if !hum.IsMissing(1) {
		t.Error("B should have a missing humidity container")
	}
	if v := floatsOf(t, hum.At(0), "value"); v[0] != 80 {
		t.Errorf("A humidity: %v", v)
	}
	temp, _ := gf.Column("temp")
	if temp.Valid() != 2 {
		t.Errorf("temp should have 2 containers, got %d", temp.Valid())
	}
	if cols := temp.At(0).Columns(); len(cols) != 1 || cols[0] != "value" {
		t.Errorf("container columns: %v", cols)
	}
	if pt, ok := gf.Geometry(1).(orb.Point); !ok || pt != (orb.Point{2, 2}) {
		t.Errorf("B geometry: %v", gf.Geometry(1))
	}
}

func TestToTSGeoFrameDefaultVariables(t *testing.T) {
	tr := transform.New(transform.Columns{})
	long := makeLong(t, tr.Columns(),
		obs{"A", "wind", 1, 3},
		obs{"B", "temp", 1, 9},
	)
	gf, err := tr.ToTSGeoFrame(long, stations(t), nil)
	if err != nil {
		t.Fatalf("ToTSGeoFrame: %v", err)
	}
	cols := gf.Columns()
	if len(cols) != 2 || cols[0] != "temp" || cols[1] != "wind" {
		t.Errorf("expected all variables [temp wind], got %v", cols)
	}
	if gf.Len() != 2 {
		t.Errorf("expected union of stations, got %v", gf.IDs())
	}
}

func TestToTSGeoFrameRestrictsVariables(t *testing.T) {
	tr := transform.New(transform.Columns{})
	long := makeLong(t, tr.Columns(),
		obs{"A", "wind", 1, 3},
		obs{"B", "temp", 1, 9},
	)
	gf, err := tr.ToTSGeoFrame(long, stations(t), []string{"temp"})
	if err != nil {
		t.Fatalf("ToTSGeoFrame: %v", err)
	}
	if cols := gf.Columns(); len(cols) != 1 || cols[0] != "temp" {
		t.Errorf("expected [temp], got %v", cols)
	}
	if ids := gf.IDs(); len(ids) != 1 || ids[0] != "B" {
		t.Errorf("expected only stations with temp, got %v", ids)
	}
}

func TestToTSGeoFrameMissingGeometry(t *testing.T) {
	tr := transform.New(transform.Columns{})
	long := makeLong(t, tr.Columns(), obs{"C", "temp", 1, 1})
	gf, err := tr.ToTSGeoFrame(long, stations(t), nil)
	if err != nil {
		t.Fatalf("ToTSGeoFrame: %v", err)
	}
	if gf.Len() != 1 || gf.Geometry(0) != nil {
		t.Errorf("station C should be present with nil geometry")
	}
}

func TestToTSGeoFrameDuplicatePropagates(t *testing.T) {
	tr := transform.New(transform.Columns{})
	long := makeLong(t, tr.Columns(), obs{"A", "temp", 1, 1}, obs{"A", "temp", 1, 2})
	_, err := tr.ToTSGeoFrame(long, stations(t), nil)
	if !errors.Is(err, tstore.ErrDuplicateTimestamp) {
		t.Errorf("expected ErrDuplicateTimestamp, got %v", err)
	}
}

// ─── Concurrency ──────────────────────────────────────────────────────────────

func TestTransformerConcurrentUse(t *testing.T) {
	tr := transform.New(transform.Columns{})
	long := scenario(t)
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tr.ToTSGeoFrame(long, nil, nil); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent call: %v", err)
	}
}
