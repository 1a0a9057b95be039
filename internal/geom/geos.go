// Package geom repairs and validates polygon geometries using GEOS.
//
// Geometries cross between orb and GEOS as WKB. Rings that are not closed
// are closed on the way in, since GEOS refuses to build them at all.
package geom

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/twpayne/go-geos"
)

// ErrUnsupported is returned for geometries GEOS cannot be handed.
var ErrUnsupported = errors.New("geom: unsupported geometry")

// ErrGEOS wraps an exception raised inside GEOS.
var ErrGEOS = errors.New("geom: GEOS error")

// bufferQuadSegs matches the GEOS default used by shapely's buffer.
const bufferQuadSegs = 16

// Valid reports whether g is a valid geometry according to GEOS.
// Nil geometries and geometries GEOS cannot parse are invalid.
func Valid(g orb.Geometry) bool {
	ok, _ := Check(g)
	return ok
}

// Check reports validity along with the reason GEOS gives for invalidity.
func Check(g orb.Geometry) (bool, string) {
	gg, err := toGEOS(g)
	if err != nil {
		return false, err.Error()
	}
	defer gg.Destroy()
	if gg.IsValid() {
		return true, ""
	}
	return false, gg.IsValidReason()
}

// MakeValid runs the GEOS validity repair on g.
func MakeValid(g orb.Geometry) (orb.Geometry, error) {
	return apply(g, func(gg *geos.Geom) *geos.Geom { return gg.MakeValid() })
}

// BufferZero runs a zero-width buffer on g, which resolves self-intersections.
func BufferZero(g orb.Geometry) (orb.Geometry, error) {
	return apply(g, func(gg *geos.Geom) *geos.Geom { return gg.Buffer(0, bufferQuadSegs) })
}

// apply runs op on the GEOS form of g. go-geos panics on GEOS exceptions;
// those come back as ErrGEOS.
func apply(g orb.Geometry, op func(*geos.Geom) *geos.Geom) (_ orb.Geometry, err error) {
	gg, err := toGEOS(g)
	if err != nil {
		return nil, err
	}
	defer gg.Destroy()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrGEOS, r)
		}
	}()

	out := op(gg)
	defer out.Destroy()

	return wkb.Unmarshal(out.ToWKB())
}

func toGEOS(g orb.Geometry) (*geos.Geom, error) {
	if g == nil {
		return nil, ErrUnsupported
	}
	data, err := wkb.Marshal(closeRings(g))
	if err != nil {
		return nil, err
	}
	return geos.NewGeomFromWKB(data)
}

// closeRings returns g with every polygon ring closed. Other types pass through.
func closeRings(g orb.Geometry) orb.Geometry {
	switch v := g.(type) {
	case orb.Polygon:
		return closePolygon(v)
	case orb.MultiPolygon:
		mp := make(orb.MultiPolygon, len(v))
		for i, p := range v {
			mp[i] = closePolygon(p)
		}
		return mp
	case orb.Collection:
		coll := make(orb.Collection, len(v))
		for i, child := range v {
			coll[i] = closeRings(child)
		}
		return coll
	}
	return g
}

func closePolygon(p orb.Polygon) orb.Polygon {
	out := make(orb.Polygon, len(p))
	for i, r := range p {
		if len(r) > 0 && !r.Closed() {
			closed := make(orb.Ring, len(r), len(r)+1)
			copy(closed, r)
			r = append(closed, r[0])
		}
		out[i] = r
	}
	return out
}
