package fgb

import (
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"
)

// geometryType maps an orb geometry to its FlatGeobuf type.
func geometryType(geom orb.Geometry) flattypes.GeometryType {
	switch geom.(type) {
	case orb.Polygon:
		return flattypes.GeometryTypePolygon
	case orb.MultiPolygon:
		return flattypes.GeometryTypeMultiPolygon
	default:
		return flattypes.GeometryTypeUnknown
	}
}

// layerGeometryType returns the type shared by every geometry, or Unknown when mixed.
func layerGeometryType(geoms []orb.Geometry) flattypes.GeometryType {
	t := flattypes.GeometryTypeUnknown
	for i, g := range geoms {
		gt := geometryType(g)
		if i == 0 {
			t = gt
		} else if gt != t {
			return flattypes.GeometryTypeUnknown
		}
	}
	return t
}

// encodeGeometry converts a polygonal orb geometry to a FlatGeobuf geometry.
// It returns nil for any other type.
func encodeGeometry(geom orb.Geometry, builder *flatbuffers.Builder) *writer.Geometry {
	g := writer.NewGeometry(builder)

	switch v := geom.(type) {
	case orb.Polygon:
		g.SetType(flattypes.GeometryTypePolygon)
		xy, ends := polygonToXYEnds(v)
		g.SetXY(xy)
		g.SetEnds(ends)

	case orb.MultiPolygon:
		g.SetType(flattypes.GeometryTypeMultiPolygon)
		parts := make([]writer.Geometry, 0, len(v))
		for _, poly := range v {
			pg := writer.NewGeometry(builder)
			pg.SetType(flattypes.GeometryTypePolygon)
			xy, ends := polygonToXYEnds(poly)
			pg.SetXY(xy)
			pg.SetEnds(ends)
			parts = append(parts, *pg)
		}
		g.SetParts(parts)

	default:
		return nil
	}

	return g
}

// decodeGeometry converts a FlatGeobuf geometry back to orb. Non-polygonal
// types decode to nil.
func decodeGeometry(fgbGeom *flattypes.Geometry) orb.Geometry {
	if fgbGeom == nil {
		return nil
	}

	switch fgbGeom.Type() {
	case flattypes.GeometryTypePolygon:
		return polygonFromXYEnds(fgbGeom)
	case flattypes.GeometryTypeMultiPolygon:
		return multiPolygonFromParts(fgbGeom)
	default:
		return nil
	}
}

func polygonToXYEnds(poly orb.Polygon) ([]float64, []uint32) {
	totalPoints := 0
	for _, ring := range poly {
		totalPoints += len(ring)
	}

	xy := make([]float64, 0, totalPoints*2)
	ends := make([]uint32, 0, len(poly))

	cumulative := uint32(0)
	for _, ring := range poly {
		for _, p := range ring {
			xy = append(xy, p[0], p[1])
		}
		cumulative += uint32(len(ring))
		ends = append(ends, cumulative)
	}

	return xy, ends
}

func polygonFromXYEnds(fgbGeom *flattypes.Geometry) orb.Polygon {
	xyLen := fgbGeom.XyLength()
	endsLen := fgbGeom.EndsLength()

	if xyLen < 2 {
		return orb.Polygon{}
	}

	// a single ring may be written without ends
	if endsLen == 0 {
		ring := make(orb.Ring, 0, xyLen/2)
		for i := 0; i+1 < xyLen; i += 2 {
			ring = append(ring, orb.Point{fgbGeom.Xy(i), fgbGeom.Xy(i + 1)})
		}
		return orb.Polygon{ring}
	}

	poly := make(orb.Polygon, 0, endsLen)
	start := uint32(0)
	for i := 0; i < endsLen; i++ {
		end := fgbGeom.Ends(i)
		ring := make(orb.Ring, 0, end-start)
		for j := start; j < end; j++ {
			idx := int(j) * 2
			if idx+1 < xyLen {
				ring = append(ring, orb.Point{fgbGeom.Xy(idx), fgbGeom.Xy(idx + 1)})
			}
		}
		poly = append(poly, ring)
		start = end
	}

	return poly
}

func multiPolygonFromParts(fgbGeom *flattypes.Geometry) orb.MultiPolygon {
	partsLen := fgbGeom.PartsLength()
	if partsLen == 0 {
		poly := polygonFromXYEnds(fgbGeom)
		if len(poly) > 0 {
			return orb.MultiPolygon{poly}
		}
		return orb.MultiPolygon{}
	}

	mp := make(orb.MultiPolygon, 0, partsLen)
	for i := 0; i < partsLen; i++ {
		var part flattypes.Geometry
		if fgbGeom.Parts(&part, i) {
			if poly := polygonFromXYEnds(&part); len(poly) > 0 {
				mp = append(mp, poly)
			}
		}
	}

	return mp
}
