// Package analyze computes statistical summaries and trend analysis over
// time-indexed value columns and the containers built from them. All
// functions are pure; no I/O.
package analyze

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/derickschaefer/stationcube/internal/geo"
	"github.com/derickschaefer/stationcube/internal/tstore"
)

// ─── Summary ──────────────────────────────────────────────────────────────────

// Summary holds descriptive statistics for one value column of one station.
type Summary struct {
	Station    string    `json:"station"`
	Variable   string    `json:"variable"`
	Count      int       `json:"count"`       // total observations
	Missing    int       `json:"missing"`     // NaN count
	MissingPct float64   `json:"missing_pct"` // percent missing
	Mean       float64   `json:"mean"`
	Std        float64   `json:"std"`
	Min        float64   `json:"min"`
	P25        float64   `json:"p25"`
	Median     float64   `json:"median"`
	P75        float64   `json:"p75"`
	Max        float64   `json:"max"`
	Skew       float64   `json:"skew"`
	First      float64   `json:"first"`      // first non-NaN value
	Last       float64   `json:"last"`       // last non-NaN value
	Change     float64   `json:"change"`     // Last - First
	ChangePct  float64   `json:"change_pct"` // (Last-First)/First * 100
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}

// Summarize computes descriptive statistics over vals, observed at times.
// NaN values are excluded from all numeric computations but counted.
// times and vals must have the same length and times must be ascending.
func Summarize(times []time.Time, vals []float64) Summary {
	s := Summary{Count: len(vals)}
	if len(vals) == 0 {
		return s
	}
	s.Start = times[0]
	s.End = times[len(times)-1]

	var present []float64
	for _, v := range vals {
		if math.IsNaN(v) {
			s.Missing++
		} else {
			present = append(present, v)
		}
	}
	s.MissingPct = float64(s.Missing) / float64(s.Count) * 100
	if len(present) == 0 {
		s.Mean = math.NaN()
		s.Std = math.NaN()
		s.Min = math.NaN()
		s.Max = math.NaN()
		s.Median = math.NaN()
		s.P25 = math.NaN()
		s.P75 = math.NaN()
		s.Skew = math.NaN()
		s.First = math.NaN()
		s.Last = math.NaN()
		s.Change = math.NaN()
		s.ChangePct = math.NaN()
		return s
	}

	// Sort for percentile computation
	sorted := make([]float64, len(present))
	copy(sorted, present)
	sort.Float64s(sorted)

	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.Mean = sumF(present) / float64(len(present))
	s.Std = stddevF(present, s.Mean)
	s.Median = percentile(sorted, 50)
	s.P25 = percentile(sorted, 25)
	s.P75 = percentile(sorted, 75)
	s.Skew = skewness(present, s.Mean, s.Std)

	s.First = present[0]
	s.Last = present[len(present)-1]
	s.Change = s.Last - s.First
	if s.First != 0 {
		s.ChangePct = s.Change / math.Abs(s.First) * 100
	} else {
		s.ChangePct = math.NaN()
	}

	return s
}

// SummarizeTS summarizes every value column of ts. Each Summary is labelled
// with station and, when label is empty, the column name; otherwise with
// label. A nil container yields nil.
func SummarizeTS(station, label string, ts *tstore.TS) ([]Summary, error) {
	if ts == nil {
		return nil, nil
	}
	var out []Summary
	for _, col := range ts.Columns() {
		vals, err := ts.Floats(col)
		if err != nil {
			continue // string and time columns carry no statistics
		}
		s := Summarize(ts.Index(), vals)
		s.Station = station
		s.Variable = col
		if label != "" {
			s.Variable = label
		}
		out = append(out, s)
	}
	return out, nil
}

// SummarizeSeries summarizes every container of a per-station series, in
// key order.
func SummarizeSeries(s *tstore.Series) ([]Summary, error) {
	var out []Summary
	for i, key := range s.Keys() {
		sums, err := SummarizeTS(key, s.Name(), s.Array().At(i))
		if err != nil {
			return nil, err
		}
		out = append(out, sums...)
	}
	return out, nil
}

// SummarizeFrame summarizes every present container of a geo frame, station
// by station in row order and variable by variable in column order.
// Missing containers produce no Summary.
func SummarizeFrame(g *geo.Frame) ([]Summary, error) {
	var out []Summary
	for i, id := range g.IDs() {
		for _, variable := range g.Columns() {
			col, err := g.Column(variable)
			if err != nil {
				return nil, err
			}
			sums, err := SummarizeTS(id, variable, col.At(i))
			if err != nil {
				return nil, err
			}
			out = append(out, sums...)
		}
	}
	return out, nil
}

// ─── Trend ────────────────────────────────────────────────────────────────────

// TrendMethod selects the regression algorithm.
type TrendMethod string

const (
	TrendLinear   TrendMethod = "linear"
	TrendTheilSen TrendMethod = "theil-sen"
)

// TrendResult holds the output of a trend analysis.
type TrendResult struct {
	Station      string      `json:"station"`
	Variable     string      `json:"variable"`
	Method       TrendMethod `json:"method"`
	Slope        float64     `json:"slope"` // units per day
	Intercept    float64     `json:"intercept"`
	R2           float64     `json:"r2"`
	Direction    string      `json:"direction"`      // "up", "down", "flat"
	SlopePerYear float64     `json:"slope_per_year"` // slope * 365.25
}

// Trend fits a linear trend to vals observed at times.
// X values are days since the first non-NaN observation.
// NaN observations are excluded.
func Trend(times []time.Time, vals []float64, method TrendMethod) (TrendResult, error) {
	tr := TrendResult{Method: method}

	var pts []point
	var t0 time.Time
	first := true
	for i, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		if first {
			t0 = times[i]
			first = false
		}
		x := times[i].Sub(t0).Hours() / 24 // days from first obs
		pts = append(pts, point{x, v})
	}
	if len(pts) < 2 {
		return tr, fmt.Errorf("trend: need at least 2 non-NaN observations, got %d", len(pts))
	}

	switch method {
	case TrendTheilSen:
		tr.Slope = theilSenSlope(pts)
		// Use OLS intercept with Theil-Sen slope
		xMean := meanPts(pts, func(p point) float64 { return p.x })
		yMean := meanPts(pts, func(p point) float64 { return p.y })
		tr.Intercept = yMean - tr.Slope*xMean
	default: // linear OLS
		tr.Slope, tr.Intercept = olsRegress(pts)
	}

	tr.R2 = r2(pts, tr.Slope, tr.Intercept)
	tr.SlopePerYear = tr.Slope * 365.25

	switch {
	case tr.SlopePerYear > 0.01:
		tr.Direction = "up"
	case tr.SlopePerYear < -0.01:
		tr.Direction = "down"
	default:
		tr.Direction = "flat"
	}
	return tr, nil
}

// TrendFrame fits a trend to every present container of a geo frame that
// has at least two observed values. Containers with fewer are skipped and
// reported in the returned warnings.
func TrendFrame(g *geo.Frame, method TrendMethod) ([]TrendResult, []string, error) {
	var out []TrendResult
	var warnings []string
	for i, id := range g.IDs() {
		for _, variable := range g.Columns() {
			col, err := g.Column(variable)
			if err != nil {
				return nil, nil, err
			}
			ts := col.At(i)
			if ts == nil {
				continue
			}
			for _, name := range ts.Columns() {
				vals, err := ts.Floats(name)
				if err != nil {
					continue
				}
				tr, err := Trend(ts.Index(), vals, method)
				if err != nil {
					warnings = append(warnings, fmt.Sprintf("%s/%s: %v", id, variable, err))
					continue
				}
				tr.Station = id
				tr.Variable = variable
				out = append(out, tr)
			}
		}
	}
	return out, warnings, nil
}

// ─── Math helpers ─────────────────────────────────────────────────────────────

func sumF(vals []float64) float64 {
	var s float64
	for _, v := range vals {
		s += v
	}
	return s
}

func stddevF(vals []float64, m float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	var sq float64
	for _, v := range vals {
		d := v - m
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(vals)-1))
}

func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	idx := p / 100 * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func skewness(vals []float64, mean, std float64) float64 {
	n := float64(len(vals))
	if n < 3 || std == 0 {
		return 0
	}
	var s float64
	for _, v := range vals {
		d := (v - mean) / std
		s += d * d * d
	}
	return s * n / ((n - 1) * (n - 2))
}

type point struct{ x, y float64 }

func olsRegress(pts []point) (slope, intercept float64) {
	n := float64(len(pts))
	var xSum, ySum, xySum, x2Sum float64
	for _, p := range pts {
		xSum += p.x
		ySum += p.y
		xySum += p.x * p.y
		x2Sum += p.x * p.x
	}
	denom := n*x2Sum - xSum*xSum
	if denom == 0 {
		return 0, ySum / n
	}
	slope = (n*xySum - xSum*ySum) / denom
	intercept = (ySum - slope*xSum) / n
	return
}

func theilSenSlope(pts []point) float64 {
	var slopes []float64
	for i := 0; i < len(pts); i++ {
		for j := i + 1; j < len(pts); j++ {
			dx := pts[j].x - pts[i].x
			if dx == 0 {
				continue
			}
			slopes = append(slopes, (pts[j].y-pts[i].y)/dx)
		}
	}
	if len(slopes) == 0 {
		return 0
	}
	sort.Float64s(slopes)
	return percentile(slopes, 50)
}

func r2(pts []point, slope, intercept float64) float64 {
	var yMean float64
	for _, p := range pts {
		yMean += p.y
	}
	yMean /= float64(len(pts))

	var ssTot, ssRes float64
	for _, p := range pts {
		pred := slope*p.x + intercept
		ssTot += (p.y - yMean) * (p.y - yMean)
		ssRes += (p.y - pred) * (p.y - pred)
	}
	if ssTot == 0 {
		return 1
	}
	return 1 - ssRes/ssTot
}

func meanPts(pts []point, f func(point) float64) float64 {
	var s float64
	for _, p := range pts {
		s += f(p)
	}
	return s / float64(len(pts))
}
