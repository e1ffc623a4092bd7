// Package transform reshapes long station observation tables (one row per
// station, variable, timestamp and value) into wide per-module frames,
// per-station time-series containers and geo-referenced frames of
// containers. Every operation is a pure function of its inputs; the
// Transformer only carries the column names it reads.
package transform

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb"

	"github.com/derickschaefer/stationcube/internal/frame"
	"github.com/derickschaefer/stationcube/internal/geo"
	"github.com/derickschaefer/stationcube/internal/tstore"
)

// Default column names.
const (
	DefaultIDCol       = "id"
	DefaultTimeCol     = "time"
	DefaultVariableCol = "variable"
	DefaultValueCol    = "value"
)

// Columns names the four columns of a long observation table.
type Columns struct {
	ID       string
	Time     string
	Variable string
	Value    string
}

// Transformer holds the column names shared by all reshaping operations.
// It is never modified after New and is safe for concurrent use.
type Transformer struct {
	cols Columns
}

// New returns a Transformer for cols. Empty names fall back to the defaults.
func New(cols Columns) *Transformer {
	if cols.ID == "" {
		cols.ID = DefaultIDCol
	}
	if cols.Time == "" {
		cols.Time = DefaultTimeCol
	}
	if cols.Variable == "" {
		cols.Variable = DefaultVariableCol
	}
	if cols.Value == "" {
		cols.Value = DefaultValueCol
	}
	return &Transformer{cols: cols}
}

// Columns returns the resolved column names.
func (t *Transformer) Columns() Columns { return t.cols }

// ─── Module frame ─────────────────────────────────────────────────────────────

// ToModuleFrame keeps the rows of long whose variable is in vars and pivots
// the variables into columns. The result has the id and time columns plus
// one float column per variable that occurs in long, sorted by name; there
// is one row per (station, time) pair with at least one requested
// observation. Requested variables absent from long are not an error.
//
// A (variable, station, time) key that occurs more than once is rejected
// with frame.ErrDuplicateKey. A requested variable named like the id or
// time column is rejected with frame.ErrDuplicateName.
func (t *Transformer) ToModuleFrame(long *frame.Frame, vars []string) (*frame.Frame, error) {
	kept, err := long.FilterIn(t.cols.Variable, vars)
	if err != nil {
		return nil, fmt.Errorf("module frame: %w", err)
	}
	wide, err := kept.Unstack(t.cols.ID, t.cols.Time, t.cols.Variable, t.cols.Value)
	if err != nil {
		return nil, fmt.Errorf("module frame: %w", err)
	}
	return wide, nil
}

// ─── Per-station containers ───────────────────────────────────────────────────

// TSSeries partitions a module frame by station and builds one TS per
// station from the remaining columns, indexed by time. Keys are sorted.
// Stations without rows never appear.
func (t *Transformer) TSSeries(module *frame.Frame) (*tstore.Series, error) {
	return t.stationSeries("", module)
}

func (t *Transformer) stationSeries(name string, f *frame.Frame) (*tstore.Series, error) {
	groups, err := f.GroupBy(t.cols.ID)
	if err != nil {
		return nil, fmt.Errorf("ts series: %w", err)
	}
	keys := make([]string, len(groups))
	items := make([]*tstore.TS, len(groups))
	for i, g := range groups {
		rest, err := g.Frame.Drop(t.cols.ID)
		if err != nil {
			return nil, fmt.Errorf("ts series: %w", err)
		}
		ts, err := tstore.New(rest, t.cols.Time)
		if err != nil {
			return nil, fmt.Errorf("ts series: station %q: %w", g.Key, err)
		}
		keys[i] = g.Key
		items[i] = ts
	}
	return tstore.NewSeries(name, keys, tstore.NewArray(items))
}

// ─── Geo frame ────────────────────────────────────────────────────────────────

// ToTSGeoFrame builds a geo frame with one row per station and one TSArray
// column per variable. vars restricts the variables; nil selects every
// variable present in long. Each container holds the time index and the
// value column of one station-variable pair.
//
// Rows are the sorted union of stations across the selected variables. A
// station lacking a variable gets a missing (nil) container in that column,
// and a station absent from stations gets a nil geometry. Neither is an
// error.
func (t *Transformer) ToTSGeoFrame(long *frame.Frame, stations *geo.GeoSeries, vars []string) (*geo.Frame, error) {
	src := long
	if vars != nil {
		var err error
		if src, err = long.FilterIn(t.cols.Variable, vars); err != nil {
			return nil, fmt.Errorf("geo frame: %w", err)
		}
	}
	byVar, err := src.GroupBy(t.cols.Variable)
	if err != nil {
		return nil, fmt.Errorf("geo frame: %w", err)
	}

	series := make([]*tstore.Series, 0, len(byVar))
	rowSet := make(map[string]struct{})
	for _, g := range byVar {
		part, err := g.Frame.Drop(t.cols.Variable)
		if err != nil {
			return nil, fmt.Errorf("geo frame: %w", err)
		}
		s, err := t.stationSeries(g.Key, part)
		if err != nil {
			return nil, fmt.Errorf("geo frame: variable %q: %w", g.Key, err)
		}
		for _, k := range s.Keys() {
			rowSet[k] = struct{}{}
		}
		series = append(series, s)
	}

	ids := make([]string, 0, len(rowSet))
	for id := range rowSet {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	geoms := make([]orb.Geometry, len(ids))
	if stations != nil {
		for i, id := range ids {
			geoms[i], _ = stations.Get(id)
		}
	}
	out, err := geo.NewFrame(ids, geoms)
	if err != nil {
		return nil, fmt.Errorf("geo frame: %w", err)
	}
	for _, s := range series {
		col := make([]*tstore.TS, len(ids))
		for i, id := range ids {
			col[i], _ = s.Get(id)
		}
		if err := out.AddColumn(s.Name(), tstore.NewArray(col)); err != nil {
			return nil, fmt.Errorf("geo frame: %w", err)
		}
	}
	return out, nil
}
