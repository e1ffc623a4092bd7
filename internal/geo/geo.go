// Package geo holds station geometries and the geo-referenced frame that
// pairs each station's geometry with one time-series column per variable.
package geo

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"

	"github.com/derickschaefer/stationcube/internal/tstore"
)

// GeometryColumn is the reserved name of the geometry column.
const GeometryColumn = "geometry"

var (
	ErrNoStationID = errors.New("feature has no station id")
	ErrDuplicateID = errors.New("duplicate station id")
)

// GeoSeries is an ordered station id → geometry collection.
type GeoSeries struct {
	ids   []string
	geoms []orb.Geometry
	pos   map[string]int
}

// NewGeoSeries builds a GeoSeries from aligned ids and geometries.
func NewGeoSeries(ids []string, geoms []orb.Geometry) (*GeoSeries, error) {
	if len(ids) != len(geoms) {
		return nil, fmt.Errorf("geoseries: %d ids for %d geometries", len(ids), len(geoms))
	}
	g := &GeoSeries{
		ids:   make([]string, len(ids)),
		geoms: make([]orb.Geometry, len(geoms)),
		pos:   make(map[string]int, len(ids)),
	}
	copy(g.ids, ids)
	copy(g.geoms, geoms)
	for i, id := range ids {
		if _, dup := g.pos[id]; dup {
			return nil, fmt.Errorf("geoseries: %w: %q", ErrDuplicateID, id)
		}
		g.pos[id] = i
	}
	return g, nil
}

// Len returns the number of stations.
func (g *GeoSeries) Len() int { return len(g.ids) }

// IDs returns the station ids in order.
func (g *GeoSeries) IDs() []string { return g.ids }

// At returns the geometry at position i.
func (g *GeoSeries) At(i int) orb.Geometry { return g.geoms[i] }

// Get returns the geometry of station id.
func (g *GeoSeries) Get(id string) (orb.Geometry, bool) {
	i, ok := g.pos[id]
	if !ok {
		return nil, false
	}
	return g.geoms[i], true
}

// ReadGeoJSON parses a GeoJSON FeatureCollection of stations. The station
// id is taken from the property idProperty, or from the feature id when
// idProperty is empty. Numeric ids are formatted without a trailing ".0".
func ReadGeoJSON(r io.Reader, idProperty string) (*GeoSeries, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading geojson: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing geojson: %w", err)
	}
	ids := make([]string, 0, len(fc.Features))
	geoms := make([]orb.Geometry, 0, len(fc.Features))
	for i, f := range fc.Features {
		var raw any = f.ID
		if idProperty != "" {
			raw = f.Properties[idProperty]
		}
		id, ok := formatID(raw)
		if !ok {
			return nil, fmt.Errorf("feature %d: %w", i, ErrNoStationID)
		}
		ids = append(ids, id)
		geoms = append(geoms, f.Geometry)
	}
	return NewGeoSeries(ids, geoms)
}

func formatID(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, id != ""
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	case int:
		return strconv.Itoa(id), true
	default:
		return "", false
	}
}

// WKT renders a geometry as well-known text, or "" for a missing geometry.
func WKT(g orb.Geometry) string {
	if g == nil {
		return ""
	}
	return wkt.MarshalString(g)
}

// Frame is a geo-referenced table: one row per station, a geometry column
// and one TSArray column per variable, all aligned by row position.
type Frame struct {
	ids      []string
	geometry []orb.Geometry
	names    []string
	cols     map[string]*tstore.TSArray
}

// NewFrame builds a frame with the given rows and no variable columns. A
// nil geometry marks a station without a known location.
func NewFrame(ids []string, geometry []orb.Geometry) (*Frame, error) {
	if len(ids) != len(geometry) {
		return nil, fmt.Errorf("geoframe: %d ids for %d geometries", len(ids), len(geometry))
	}
	f := &Frame{
		ids:      make([]string, len(ids)),
		geometry: make([]orb.Geometry, len(geometry)),
		cols:     make(map[string]*tstore.TSArray),
	}
	copy(f.ids, ids)
	copy(f.geometry, geometry)
	return f, nil
}

// AddColumn appends a variable column. It must be row-aligned with the frame.
func (f *Frame) AddColumn(name string, a *tstore.TSArray) error {
	if name == GeometryColumn {
		return fmt.Errorf("geoframe: column name %q is reserved", name)
	}
	if _, dup := f.cols[name]; dup {
		return fmt.Errorf("geoframe: duplicate column %q", name)
	}
	if a.Len() != len(f.ids) {
		return fmt.Errorf("geoframe: column %q has %d rows, expected %d", name, a.Len(), len(f.ids))
	}
	f.names = append(f.names, name)
	f.cols[name] = a
	return nil
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.ids) }

// IDs returns the station ids in row order.
func (f *Frame) IDs() []string { return f.ids }

// Geometry returns the geometry of row i, nil when missing.
func (f *Frame) Geometry(i int) orb.Geometry { return f.geometry[i] }

// Columns returns the variable column names in order, excluding geometry.
func (f *Frame) Columns() []string { return f.names }

// Column returns a variable column.
func (f *Frame) Column(name string) (*tstore.TSArray, error) {
	a, ok := f.cols[name]
	if !ok {
		return nil, fmt.Errorf("geoframe: column %q not found", name)
	}
	return a, nil
}

// Lookup returns the row index of station id.
func (f *Frame) Lookup(id string) (int, bool) {
	for i, s := range f.ids {
		if s == id {
			return i, true
		}
	}
	return 0, false
}

// FeatureCollection exports the frame as GeoJSON. Each feature carries the
// station id and, per variable, the value returned by props for that cell
// (props receives nil for a missing series). Stations without geometry are
// exported with a null geometry.
func (f *Frame) FeatureCollection(props func(variable string, ts *tstore.TS) any) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, id := range f.ids {
		feat := &geojson.Feature{
			ID:         id,
			Type:       "Feature",
			Geometry:   f.geometry[i],
			Properties: geojson.Properties{"id": id},
		}
		for _, name := range f.names {
			feat.Properties[name] = props(name, f.cols[name].At(i))
		}
		fc.Append(feat)
	}
	return fc
}
