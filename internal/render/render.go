// Package render converts Result values into human-readable or machine-parseable
// output. Each format is a separate function; the top-level Render dispatcher
// selects based on the format string.
//
// Every Result kind is first flattened into a header and string rows by
// tabulate; table, CSV, TSV and Markdown output share that view. JSON, JSONL
// and GeoJSON write typed values instead.
package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/derickschaefer/stationcube/internal/analyze"
	"github.com/derickschaefer/stationcube/internal/frame"
	"github.com/derickschaefer/stationcube/internal/geo"
	"github.com/derickschaefer/stationcube/internal/model"
	"github.com/derickschaefer/stationcube/internal/pipeline"
	"github.com/derickschaefer/stationcube/internal/tstore"
	"github.com/derickschaefer/stationcube/internal/util"
)

// Format constants matching --format flag values.
const (
	FormatTable   = "table"
	FormatJSON    = "json"
	FormatJSONL   = "jsonl"
	FormatCSV     = "csv"
	FormatTSV     = "tsv"
	FormatMD      = "md"
	FormatGeoJSON = "geojson"
)

// Formats lists every supported --format value.
var Formats = []string{FormatTable, FormatJSON, FormatJSONL, FormatCSV, FormatTSV, FormatMD, FormatGeoJSON}

// Render writes result to w in the specified format.
func Render(w io.Writer, result *model.Result, format string) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, result)
	case FormatJSONL:
		return renderJSONL(w, result)
	case FormatCSV:
		return renderDelimited(w, result, ',')
	case FormatTSV:
		return renderDelimited(w, result, '\t')
	case FormatMD:
		return renderMarkdown(w, result)
	case FormatGeoJSON:
		return renderGeoJSON(w, result)
	case FormatTable, "":
		return renderTable(w, result)
	default:
		return fmt.Errorf("unknown format %q (use %s)", format, strings.Join(Formats, ", "))
	}
}

// RenderTo writes to stdout by default; if path is non-empty, writes to file.
func RenderTo(path string, result *model.Result, format string) error {
	if path == "" {
		return Render(os.Stdout, result, format)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()
	return Render(f, result, format)
}

// ─── Tabular view ─────────────────────────────────────────────────────────────

func tabulate(result *model.Result) ([]string, [][]string, error) {
	switch data := result.Data.(type) {
	case *frame.Frame:
		return frameRows(data)
	case []analyze.Summary:
		return summaryRows(data)
	case []analyze.TrendResult:
		return trendRows(data)
	case *geo.Frame:
		return geoRows(data)
	case []model.DatasetInfo:
		header := []string{"NAME", "ROWS", "COLUMNS", "CODEC", "BYTES", "STORED AT"}
		rows := make([][]string, len(data))
		for i, d := range data {
			rows[i] = []string{
				d.Name, strconv.Itoa(d.Rows), strings.Join(d.Columns, ","),
				d.Codec, strconv.Itoa(d.Bytes), d.StoredAt.Format(time.RFC3339),
			}
		}
		return header, rows, nil
	case []model.CubeInfo:
		header := []string{"NAME", "STATIONS", "VARIABLES", "BLOBS", "CODEC", "STORED AT"}
		rows := make([][]string, len(data))
		for i, c := range data {
			rows[i] = []string{
				c.Name, strconv.Itoa(c.Stations), strings.Join(c.Variables, ","),
				strconv.Itoa(c.Blobs), c.Codec, c.StoredAt.Format(time.RFC3339),
			}
		}
		return header, rows, nil
	case [][]string:
		if len(data) == 0 {
			return nil, nil, nil
		}
		return data[0], data[1:], nil
	default:
		return nil, nil, fmt.Errorf("render: unsupported data %T for kind %s", result.Data, result.Kind)
	}
}

func frameRows(f *frame.Frame) ([]string, [][]string, error) {
	cols := f.Columns()
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = strings.ToUpper(c.Name)
	}
	rows := make([][]string, f.Len())
	for i := range rows {
		row := make([]string, len(cols))
		for j, c := range cols {
			if c.Kind == frame.KindFloat {
				row[j] = formatValue(c.Floats[i])
			} else {
				row[j] = pipeline.CellText(c, i)
			}
		}
		rows[i] = row
	}
	return header, rows, nil
}

func summaryRows(sums []analyze.Summary) ([]string, [][]string, error) {
	header := []string{"STATION", "VARIABLE", "COUNT", "MISSING", "MEAN", "STD", "MIN", "MAX", "FIRST", "LAST", "START", "END"}
	rows := make([][]string, len(sums))
	for i, s := range sums {
		rows[i] = []string{
			s.Station, s.Variable,
			strconv.Itoa(s.Count), strconv.Itoa(s.Missing),
			formatValue(s.Mean), formatValue(s.Std),
			formatValue(s.Min), formatValue(s.Max),
			formatValue(s.First), formatValue(s.Last),
			formatTime(s.Start), formatTime(s.End),
		}
	}
	return header, rows, nil
}

func trendRows(trs []analyze.TrendResult) ([]string, [][]string, error) {
	header := []string{"STATION", "VARIABLE", "METHOD", "SLOPE/DAY", "SLOPE/YEAR", "R2", "DIRECTION"}
	rows := make([][]string, len(trs))
	for i, tr := range trs {
		rows[i] = []string{
			tr.Station, tr.Variable, string(tr.Method),
			formatValue(tr.Slope), formatValue(tr.SlopePerYear),
			formatValue(tr.R2), tr.Direction,
		}
	}
	return header, rows, nil
}

// geoRows renders one row per station: its WKT geometry and, per variable,
// a compact description of the container ("." when missing).
func geoRows(g *geo.Frame) ([]string, [][]string, error) {
	header := []string{"STATION", "GEOMETRY"}
	for _, v := range g.Columns() {
		header = append(header, strings.ToUpper(v))
	}
	rows := make([][]string, g.Len())
	for i, id := range g.IDs() {
		wkt := geo.WKT(g.Geometry(i))
		if wkt == "" {
			wkt = "."
		}
		row := []string{id, wkt}
		for _, v := range g.Columns() {
			col, err := g.Column(v)
			if err != nil {
				return nil, nil, err
			}
			row = append(row, describeTS(col.At(i)))
		}
		rows[i] = row
	}
	return header, rows, nil
}

func describeTS(ts *tstore.TS) string {
	if ts == nil {
		return "."
	}
	if ts.Len() == 0 {
		return "n=0"
	}
	return fmt.Sprintf("n=%d %s..%s", ts.Len(), formatTime(ts.Start()), formatTime(ts.End()))
}

// ─── JSON ─────────────────────────────────────────────────────────────────────

// jsonResult mirrors model.Result with Data replaced by a JSON-friendly value.
type jsonResult struct {
	Kind        string            `json:"kind"`
	GeneratedAt time.Time         `json:"generated_at"`
	Command     string            `json:"command"`
	Data        interface{}       `json:"data"`
	Warnings    []string          `json:"warnings,omitempty"`
	Stats       model.ResultStats `json:"stats"`
}

func renderJSON(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonResult{
		Kind:        result.Kind,
		GeneratedAt: result.GeneratedAt,
		Command:     result.Command,
		Data:        jsonData(result.Data),
		Warnings:    result.Warnings,
		Stats:       result.Stats,
	})
}

func jsonData(data interface{}) interface{} {
	switch d := data.(type) {
	case *frame.Frame:
		rows := make([]map[string]any, d.Len())
		for i := range rows {
			rows[i] = d.Row(i)
		}
		return rows
	case *geo.Frame:
		return d.FeatureCollection(tsProperties)
	case []analyze.Summary:
		out := make([]map[string]any, len(d))
		for i, s := range d {
			out[i] = summaryObject(s)
		}
		return out
	case []analyze.TrendResult:
		out := make([]map[string]any, len(d))
		for i, tr := range d {
			out[i] = map[string]any{
				"station":        tr.Station,
				"variable":       tr.Variable,
				"method":         tr.Method,
				"slope":          jsonFloat(tr.Slope),
				"intercept":      jsonFloat(tr.Intercept),
				"r2":             jsonFloat(tr.R2),
				"direction":      tr.Direction,
				"slope_per_year": jsonFloat(tr.SlopePerYear),
			}
		}
		return out
	default:
		return data
	}
}

func summaryObject(s analyze.Summary) map[string]any {
	return map[string]any{
		"station":     s.Station,
		"variable":    s.Variable,
		"count":       s.Count,
		"missing":     s.Missing,
		"missing_pct": jsonFloat(s.MissingPct),
		"mean":        jsonFloat(s.Mean),
		"std":         jsonFloat(s.Std),
		"min":         jsonFloat(s.Min),
		"p25":         jsonFloat(s.P25),
		"median":      jsonFloat(s.Median),
		"p75":         jsonFloat(s.P75),
		"max":         jsonFloat(s.Max),
		"skew":        jsonFloat(s.Skew),
		"first":       jsonFloat(s.First),
		"last":        jsonFloat(s.Last),
		"change":      jsonFloat(s.Change),
		"change_pct":  jsonFloat(s.ChangePct),
		"start":       s.Start,
		"end":         s.End,
	}
}

// tsProperties describes one container as a GeoJSON property value.
func tsProperties(_ string, ts *tstore.TS) any {
	if ts == nil {
		return nil
	}
	props := map[string]any{"count": ts.Len()}
	if ts.Len() > 0 {
		props["start"] = util.FormatTime(ts.Start())
		props["end"] = util.FormatTime(ts.End())
	}
	for _, col := range ts.Columns() {
		vals, err := ts.Floats(col)
		if err != nil || len(vals) == 0 {
			continue
		}
		props["last_"+col] = jsonFloat(vals[len(vals)-1])
	}
	return props
}

func jsonFloat(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

// ─── JSONL ────────────────────────────────────────────────────────────────────

func renderJSONL(w io.Writer, result *model.Result) error {
	switch data := result.Data.(type) {
	case *frame.Frame:
		return pipeline.WriteJSONL(w, data)
	case *geo.Frame:
		enc := json.NewEncoder(w)
		for _, feat := range data.FeatureCollection(tsProperties).Features {
			if err := enc.Encode(feat); err != nil {
				return err
			}
		}
		return nil
	}
	enc := json.NewEncoder(w)
	switch d := jsonData(result.Data).(type) {
	case []map[string]any:
		for _, row := range d {
			if err := enc.Encode(row); err != nil {
				return err
			}
		}
		return nil
	default:
		header, rows, err := tabulate(result)
		if err != nil {
			return enc.Encode(result.Data)
		}
		for _, r := range rows {
			obj := make(map[string]string, len(header))
			for j, h := range header {
				obj[strings.ToLower(h)] = r[j]
			}
			if err := enc.Encode(obj); err != nil {
				return err
			}
		}
		return nil
	}
}

// ─── GeoJSON ──────────────────────────────────────────────────────────────────

func renderGeoJSON(w io.Writer, result *model.Result) error {
	g, ok := result.Data.(*geo.Frame)
	if !ok {
		return fmt.Errorf("geojson output needs a geo frame, got %s", result.Kind)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(g.FeatureCollection(tsProperties))
}

// ─── Table ────────────────────────────────────────────────────────────────────

func renderTable(w io.Writer, result *model.Result) error {
	header, rows, err := tabulate(result)
	if err != nil {
		return renderJSON(w, result)
	}
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)
	tw.SetAutoFormatHeaders(false)
	tw.AppendBulk(rows)
	tw.Render()
	return nil
}

// ─── CSV / TSV ────────────────────────────────────────────────────────────────

func renderDelimited(w io.Writer, result *model.Result, sep rune) error {
	if f, ok := result.Data.(*frame.Frame); ok {
		return pipeline.WriteCSV(w, f, sep)
	}
	header, rows, err := tabulate(result)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	cw.Comma = sep
	lower := make([]string, len(header))
	for i, h := range header {
		lower[i] = strings.ToLower(h)
	}
	_ = cw.Write(lower)
	_ = cw.WriteAll(rows)
	cw.Flush()
	return cw.Error()
}

// ─── Markdown ─────────────────────────────────────────────────────────────────

func renderMarkdown(w io.Writer, result *model.Result) error {
	header, rows, err := tabulate(result)
	if err != nil {
		return renderJSON(w, result)
	}
	fmt.Fprintf(w, "| %s |\n", strings.Join(header, " | "))
	seps := make([]string, len(header))
	for i := range seps {
		seps[i] = "---"
	}
	fmt.Fprintf(w, "|%s|\n", strings.Join(seps, "|"))
	for _, r := range rows {
		cells := make([]string, len(r))
		for i, c := range r {
			cells[i] = mdEscape(c)
		}
		fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | "))
	}
	return nil
}

// ─── Warnings / Stats Footer ─────────────────────────────────────────────────

// PrintFooter writes warnings and stats to w when verbose mode is on.
func PrintFooter(w io.Writer, result *model.Result, verbose bool) {
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "⚠  %s\n", warn)
	}
	if verbose {
		fmt.Fprintf(w, "\n[%s • %d items • %dms]\n",
			result.GeneratedAt.Format(time.RFC3339),
			result.Stats.Items,
			result.Stats.DurationMs,
		)
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// formatValue formats a value for display.
// Always shows at least one decimal place (e.g. 4.0, not 4).
// Trims unnecessary trailing zeros beyond the first (e.g. 3.400000 → 3.4).
// Missing values (NaN) render as ".".
func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "."
	}
	s := strings.TrimRight(fmt.Sprintf("%.6f", v), "0")
	if strings.HasSuffix(s, ".") {
		s += "0"
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "."
	}
	return util.FormatTime(t)
}

func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
