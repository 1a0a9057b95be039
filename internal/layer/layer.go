// Package layer holds the in-memory feature collection shared by every
// pipeline step, along with its GeoJSON codec.
//
// Unlike geojson.FeatureCollection, a Collection keeps an explicit ordered
// attribute column list so normalization and output stay deterministic.
package layer

import (
	"math"

	"github.com/paulmach/orb"
)

// GeometryColumn is the name of the implicit geometry column.
const GeometryColumn = "geometry"

// GeometryAttribute is the column an input property named GeometryColumn
// is read into.
const GeometryAttribute = "geometry_attr"

// Feature is a single geometry with its attribute values.
type Feature struct {
	Geometry   orb.Geometry
	Properties map[string]any
}

// Collection is an ordered set of features sharing one attribute schema.
type Collection struct {
	Name     string
	CRS      string   // declared CRS name; empty when absent
	Columns  []string // attribute columns in order, geometry excluded
	Features []*Feature
}

// NewFeature returns a feature with an empty property map.
func NewFeature(g orb.Geometry) *Feature {
	return &Feature{Geometry: g, Properties: make(map[string]any)}
}

// HasColumn reports whether name is one of the collection's attribute columns.
func (c *Collection) HasColumn(name string) bool {
	if name == GeometryColumn {
		return true
	}
	for _, col := range c.Columns {
		if col == name {
			return true
		}
	}
	return false
}

// Append adds f and registers any property names not yet in Columns.
func (c *Collection) Append(f *Feature) {
	for name := range f.Properties {
		if !c.HasColumn(name) {
			c.Columns = append(c.Columns, name)
		}
	}
	c.Features = append(c.Features, f)
}

// IsEmpty reports whether g is nil or has no coordinates.
func IsEmpty(g orb.Geometry) bool {
	if g == nil {
		return true
	}
	switch v := g.(type) {
	case orb.Polygon:
		return len(v) == 0 || len(v[0]) == 0
	case orb.MultiPolygon:
		for _, p := range v {
			if len(p) > 0 && len(p[0]) > 0 {
				return false
			}
		}
		return true
	case orb.Collection:
		for _, child := range v {
			if !IsEmpty(child) {
				return false
			}
		}
		return true
	case orb.Ring:
		return len(v) == 0
	case orb.LineString:
		return len(v) == 0
	case orb.MultiLineString:
		for _, ls := range v {
			if len(ls) > 0 {
				return false
			}
		}
		return true
	case orb.MultiPoint:
		return len(v) == 0
	}
	return false
}

// Bound returns the combined bounding box of every non-empty geometry.
// ok is false when the collection has no such geometry.
func (c *Collection) Bound() (b orb.Bound, ok bool) {
	for _, f := range c.Features {
		if IsEmpty(f.Geometry) {
			continue
		}
		gb := f.Geometry.Bound()
		if !ok {
			b, ok = gb, true
			continue
		}
		b = b.Union(gb)
	}
	return b, ok
}

// BBox returns the bounding box as [minx, miny, maxx, maxy] rounded to six
// decimals, or nil when the collection has no geometry.
func (c *Collection) BBox() []float64 {
	b, ok := c.Bound()
	if !ok {
		return nil
	}
	return []float64{round6(b.Min[0]), round6(b.Min[1]), round6(b.Max[0]), round6(b.Max[1])}
}

// GeometryType returns the shared GeoJSON type of every geometry, or
// "Geometry" when types are mixed or the collection is empty.
func (c *Collection) GeometryType() string {
	t := ""
	for _, f := range c.Features {
		if f.Geometry == nil {
			continue
		}
		gt := f.Geometry.GeoJSONType()
		if t == "" {
			t = gt
		} else if t != gt {
			return "Geometry"
		}
	}
	if t == "" {
		return "Geometry"
	}
	return t
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
