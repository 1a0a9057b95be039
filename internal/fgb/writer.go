package fgb

import (
	"io"
	"os"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"

	"github.com/tingold/mn-precincts/internal/layer"
)

// WriteFile writes c to path, replacing any existing file.
func WriteFile(path string, c *layer.Collection, opts *Options) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}

	err = Write(file, c, opts)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	return err
}

// Write writes the polygonal features of c to w. Features with a nil or
// non-polygonal geometry are skipped; ErrEmpty is returned if none remain.
func Write(w io.Writer, c *layer.Collection, opts *Options) error {
	if opts == nil {
		opts = DefaultOptions()
	}

	features := make([]*layer.Feature, 0, len(c.Features))
	geoms := make([]orb.Geometry, 0, len(c.Features))
	for _, f := range c.Features {
		if f == nil || geometryType(f.Geometry) == flattypes.GeometryTypeUnknown {
			continue
		}
		features = append(features, f)
		geoms = append(geoms, f.Geometry)
	}
	if len(features) == 0 {
		return ErrEmpty
	}

	builder := flatbuffers.NewBuilder(4096)

	header := writer.NewHeader(builder)
	header.SetGeometryType(layerGeometryType(geoms))
	name := opts.Name
	if name == "" {
		name = c.Name
	}
	if name != "" {
		header.SetName(name)
	}
	if opts.Description != "" {
		header.SetDescription(opts.Description)
	}

	s := inferSchema(c)
	if len(s.names) > 0 {
		header.SetColumns(s.columns(builder))
	}

	if opts.CRS != nil {
		crs := writer.NewCrs(builder)
		org := opts.CRS.Org
		if org == "" {
			org = "EPSG"
		}
		crs.SetOrg(org)
		if opts.CRS.Code > 0 {
			crs.SetCode(int32(opts.CRS.Code))
		}
		if opts.CRS.Name != "" {
			crs.SetName(opts.CRS.Name)
		}
		header.SetCrs(crs)
	}

	gen := &featureGenerator{features: features, schema: s}
	_, err := writer.NewWriter(header, opts.IncludeIndex, gen, nil).Write(w)
	return err
}

// featureGenerator feeds layer features to the FlatGeobuf writer one at a time.
type featureGenerator struct {
	features []*layer.Feature
	schema   *schema
	index    int
}

func (g *featureGenerator) Generate() *writer.Feature {
	for g.index < len(g.features) {
		f := g.features[g.index]
		g.index++

		builder := flatbuffers.NewBuilder(1024)
		geom := encodeGeometry(f.Geometry, builder)
		if geom == nil {
			continue
		}

		feature := writer.NewFeature(builder)
		feature.SetGeometry(geom)
		if props := encodeProperties(f.Properties, g.schema); len(props) > 0 {
			feature.SetProperties(props)
		}
		return feature
	}
	return nil
}
