package render_test

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/derickschaefer/stationcube/internal/analyze"
	"github.com/derickschaefer/stationcube/internal/frame"
	"github.com/derickschaefer/stationcube/internal/geo"
	"github.com/derickschaefer/stationcube/internal/model"
	"github.com/derickschaefer/stationcube/internal/render"
	"github.com/derickschaefer/stationcube/internal/tstore"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func wideFrame(t *testing.T) *frame.Frame {
	t.Helper()
	f, err := frame.New(
		frame.StringColumn("station", []string{"A", "B"}),
		frame.TimeColumn("time", []time.Time{t0, t0}),
		frame.FloatColumn("temp", []float64{4, math.NaN()}),
	)
	if err != nil {
		t.Fatalf("frame.New: %v", err)
	}
	return f
}

func geoFrame(t *testing.T) *geo.Frame {
	t.Helper()
	tf, err := frame.New(
		frame.TimeColumn("time", []time.Time{t0, t0.Add(time.Hour)}),
		frame.FloatColumn("value", []float64{1.5, 2.5}),
	)
	if err != nil {
		t.Fatalf("frame.New: %v", err)
	}
	ts, err := tstore.New(tf, "time")
	if err != nil {
		t.Fatalf("tstore.New: %v", err)
	}
	g, err := geo.NewFrame([]string{"A", "B"}, []orb.Geometry{orb.Point{1, 2}, orb.Point{3, 4}})
	if err != nil {
		t.Fatalf("geo.NewFrame: %v", err)
	}
	if err := g.AddColumn("temp", tstore.NewArray([]*tstore.TS{ts, nil})); err != nil {
		t.Fatalf("AddColumn: %v", err)
	}
	return g
}

func result(kind string, data interface{}) *model.Result {
	return &model.Result{
		Kind:        kind,
		GeneratedAt: t0,
		Command:     "test",
		Data:        data,
	}
}

func renderString(t *testing.T, r *model.Result, format string) string {
	t.Helper()
	var buf bytes.Buffer
	if err := render.Render(&buf, r, format); err != nil {
		t.Fatalf("Render(%s): %v", format, err)
	}
	return buf.String()
}

// ─── Frames ───────────────────────────────────────────────────────────────────

func TestRender_FrameTable(t *testing.T) {
	out := renderString(t, result(model.KindWide, wideFrame(t)), render.FormatTable)
	for _, want := range []string{"STATION", "TEMP", "4.0", "2024-01-01T00:00:00Z"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestRender_FrameCSV(t *testing.T) {
	out := renderString(t, result(model.KindWide, wideFrame(t)), render.FormatCSV)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines:\n%s", len(lines), out)
	}
	if lines[0] != "station,time,temp" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasSuffix(lines[2], ",") {
		t.Errorf("missing value should be empty, got %q", lines[2])
	}
}

func TestRender_FrameJSON(t *testing.T) {
	out := renderString(t, result(model.KindWide, wideFrame(t)), render.FormatJSON)
	var env struct {
		Kind string           `json:"kind"`
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal([]byte(out), &env); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, out)
	}
	if env.Kind != model.KindWide {
		t.Errorf("kind = %q", env.Kind)
	}
	if len(env.Data) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(env.Data))
	}
	if env.Data[1]["temp"] != nil {
		t.Errorf("NaN should encode as null, got %v", env.Data[1]["temp"])
	}
}

func TestRender_FrameJSONL(t *testing.T) {
	out := renderString(t, result(model.KindWide, wideFrame(t)), render.FormatJSONL)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], `{"station":"A"`) {
		t.Errorf("key order not preserved: %s", lines[0])
	}
}

func TestRender_Markdown(t *testing.T) {
	out := renderString(t, result(model.KindWide, wideFrame(t)), render.FormatMD)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d:\n%s", len(lines), out)
	}
	if lines[1] != "|---|---|---|" {
		t.Errorf("separator = %q", lines[1])
	}
}

// ─── Geo frames ───────────────────────────────────────────────────────────────

func TestRender_GeoFrameTable(t *testing.T) {
	out := renderString(t, result(model.KindGeoFrame, geoFrame(t)), render.FormatTable)
	for _, want := range []string{"POINT(1 2)", "n=2", "TEMP"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestRender_GeoJSON(t *testing.T) {
	out := renderString(t, result(model.KindGeoFrame, geoFrame(t)), render.FormatGeoJSON)
	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal([]byte(out), &fc); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, out)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 2 {
		t.Fatalf("unexpected collection: %+v", fc)
	}
	temp, ok := fc.Features[0].Properties["temp"].(map[string]any)
	if !ok {
		t.Fatalf("temp property = %v", fc.Features[0].Properties["temp"])
	}
	if temp["count"] != float64(2) || temp["last_value"] != 2.5 {
		t.Errorf("temp = %v", temp)
	}
	if fc.Features[1].Properties["temp"] != nil {
		t.Errorf("missing series should be null, got %v", fc.Features[1].Properties["temp"])
	}
}

func TestRender_GeoJSONRequiresGeoFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := render.Render(&buf, result(model.KindWide, wideFrame(t)), render.FormatGeoJSON); err == nil {
		t.Fatal("expected error for non-geo data")
	}
}

// ─── Analysis ─────────────────────────────────────────────────────────────────

func TestRender_SummaryJSONHandlesNaN(t *testing.T) {
	sums := []analyze.Summary{{Station: "A", Variable: "temp", Count: 1, Missing: 1, Mean: math.NaN()}}
	out := renderString(t, result(model.KindSummary, sums), render.FormatJSON)
	if !strings.Contains(out, `"mean": null`) {
		t.Errorf("expected null mean:\n%s", out)
	}
}

func TestRender_TrendTSV(t *testing.T) {
	trs := []analyze.TrendResult{{Station: "A", Variable: "temp", Method: analyze.TrendLinear, Slope: 0.5, Direction: "up"}}
	out := renderString(t, result(model.KindTrend, trs), render.FormatTSV)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "station\tvariable\tmethod") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "0.5") {
		t.Errorf("row = %q", lines[1])
	}
}

// ─── Misc ─────────────────────────────────────────────────────────────────────

func TestRender_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := render.Render(&buf, result(model.KindWide, wideFrame(t)), "xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestPrintFooter(t *testing.T) {
	r := result(model.KindTable, [][]string{{"A"}})
	r.Warnings = []string{"careful"}
	r.Stats = model.ResultStats{DurationMs: 12, Items: 3}

	var quiet, verbose bytes.Buffer
	render.PrintFooter(&quiet, r, false)
	render.PrintFooter(&verbose, r, true)
	if !strings.Contains(quiet.String(), "careful") || strings.Contains(quiet.String(), "12ms") {
		t.Errorf("non-verbose footer = %q", quiet.String())
	}
	if !strings.Contains(verbose.String(), "3 items") || !strings.Contains(verbose.String(), "12ms") {
		t.Errorf("verbose footer = %q", verbose.String())
	}
}
