package geom

import (
	"io"
	"log/slog"

	"github.com/paulmach/orb"

	"github.com/tingold/mn-precincts/internal/layer"
)

// RepairStats counts what Repair did to a collection.
type RepairStats struct {
	MadeValid    int // fixed by MakeValid
	Buffered     int // fixed by the zero-width buffer fallback
	Unrepairable int // still invalid but non-empty; kept as-is
	Dropped      int // removed because the final geometry was empty
}

// Fixer returns a repaired version of g.
type Fixer func(g orb.Geometry) (orb.Geometry, error)

// Repairer runs the two repair passes with the given fixers.
type Repairer struct {
	MakeValid Fixer
	Buffer    Fixer
	Logger    *slog.Logger
}

// NewRepairer returns a Repairer backed by GEOS MakeValid and BufferZero.
func NewRepairer(logger *slog.Logger) *Repairer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Repairer{MakeValid: MakeValid, Buffer: BufferZero, Logger: logger}
}

// Repair makes every geometry in c valid and MultiPolygon where it can:
//
//  1. invalid geometries go through MakeValid;
//  2. anything still invalid gets a zero-width buffer;
//  3. Polygons become single-element MultiPolygons, and polygonal members
//     of geometry collections are gathered into one MultiPolygon;
//  4. features whose geometry ends up empty (or null) are dropped.
//
// A geometry that is still invalid after both passes but not empty is kept;
// validation reports it later.
func Repair(c *layer.Collection, logger *slog.Logger) (*layer.Collection, RepairStats) {
	return NewRepairer(logger).Repair(c)
}

// Repair runs the passes described by the package-level Repair.
func (r *Repairer) Repair(c *layer.Collection) (*layer.Collection, RepairStats) {
	var stats RepairStats
	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	invalid := make([]bool, len(c.Features))
	for i, f := range c.Features {
		if f.Geometry == nil || Valid(f.Geometry) {
			continue
		}
		fixed, err := r.MakeValid(f.Geometry)
		if err != nil {
			logger.Debug("make valid failed", "feature", i, "error", err)
			invalid[i] = true
			continue
		}
		f.Geometry = fixed
		if Valid(fixed) {
			stats.MadeValid++
		} else {
			invalid[i] = true
		}
	}

	for i, f := range c.Features {
		if !invalid[i] {
			continue
		}
		fixed, err := r.Buffer(f.Geometry)
		if err == nil && Valid(fixed) {
			f.Geometry = fixed
			stats.Buffered++
			continue
		}
		stats.Unrepairable++
		_, reason := Check(f.Geometry)
		logger.Warn("geometry could not be repaired", "feature", i, "reason", reason)
	}

	kept := c.Features[:0]
	for _, f := range c.Features {
		f.Geometry = ToMulti(f.Geometry)
		if layer.IsEmpty(f.Geometry) {
			stats.Dropped++
			continue
		}
		kept = append(kept, f)
	}
	c.Features = kept

	if stats.MadeValid+stats.Buffered+stats.Unrepairable+stats.Dropped > 0 {
		logger.Info("repaired geometries",
			"made_valid", stats.MadeValid,
			"buffered", stats.Buffered,
			"unrepairable", stats.Unrepairable,
			"dropped", stats.Dropped,
		)
	}
	return c, stats
}

// ToMulti normalizes polygonal geometry to MultiPolygon. Geometry
// collections keep only their polygonal members. Other types are returned
// unchanged.
func ToMulti(g orb.Geometry) orb.Geometry {
	switch v := g.(type) {
	case orb.Polygon:
		if len(v) == 0 {
			return orb.MultiPolygon{}
		}
		return orb.MultiPolygon{v}
	case orb.Collection:
		mp := orb.MultiPolygon{}
		for _, child := range v {
			cv, ok := ToMulti(child).(orb.MultiPolygon)
			if !ok {
				continue
			}
			for _, p := range cv {
				if len(p) > 0 {
					mp = append(mp, p)
				}
			}
		}
		return mp
	}
	return g
}
