package fgb

import (
	"math"

	flatgeobuf "github.com/flatgeobuf/flatgeobuf/src/go"
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"

	"github.com/tingold/mn-precincts/internal/layer"
)

// Reader provides read access to a FlatGeobuf file.
type Reader struct {
	fgb *flatgeobuf.FlatGeoBuf
}

// NewReader creates a reader from a file path.
// The file is memory-mapped for efficient access.
func NewReader(path string) (*Reader, error) {
	fgb, err := flatgeobuf.New(path)
	if err != nil {
		return nil, err
	}
	return &Reader{fgb: fgb}, nil
}

// NewReaderFromData creates a reader from byte data.
func NewReaderFromData(data []byte) (*Reader, error) {
	fgb, err := flatgeobuf.NewWithData(data)
	if err != nil {
		return nil, err
	}
	return &Reader{fgb: fgb}, nil
}

// Header returns metadata about the FlatGeobuf file.
func (r *Reader) Header() *Header {
	h := r.fgb.Header()
	if h == nil {
		return nil
	}

	header := &Header{
		Name:          string(h.Name()),
		Description:   string(h.Description()),
		GeometryType:  flattypes.EnumNamesGeometryType[h.GeometryType()],
		FeaturesCount: h.FeaturesCount(),
		HasIndex:      h.IndexNodeSize() > 0,
	}

	if h.EnvelopeLength() >= 4 {
		header.Envelope = [4]float64{h.Envelope(0), h.Envelope(1), h.Envelope(2), h.Envelope(3)}
	}

	var crs flattypes.Crs
	if h.Crs(&crs) != nil {
		header.CRS = &CRS{
			Org:  string(crs.Org()),
			Code: int(crs.Code()),
			Name: string(crs.Name()),
		}
	}

	for i := 0; i < h.ColumnsLength(); i++ {
		var col flattypes.Column
		if h.Columns(&col, i) {
			header.Columns = append(header.Columns, ColumnInfo{
				Name:     string(col.Name()),
				Type:     flattypes.EnumNamesColumnType[col.Type()],
				Nullable: col.Nullable(),
			})
		}
	}

	return header
}

// ReadAll reads every feature through the spatial index.
// Column order follows the header.
func (r *Reader) ReadAll() (*layer.Collection, error) {
	h := r.fgb.Header()
	c := &layer.Collection{Name: string(h.Name())}
	for i := 0; i < h.ColumnsLength(); i++ {
		var col flattypes.Column
		if h.Columns(&col, i) {
			c.Columns = append(c.Columns, string(col.Name()))
		}
	}

	// the upstream reader can only iterate through the index
	if h.IndexNodeSize() == 0 {
		return nil, ErrNoIndex
	}

	minX, minY, maxX, maxY := -math.MaxFloat64, -math.MaxFloat64, math.MaxFloat64, math.MaxFloat64
	if h.EnvelopeLength() >= 4 {
		minX, minY, maxX, maxY = h.Envelope(0), h.Envelope(1), h.Envelope(2), h.Envelope(3)
	}
	features, err := r.fgb.Search(minX, minY, maxX, maxY)
	if err != nil {
		return nil, err
	}

	for _, fgbFeature := range features {
		if f := convertFeature(fgbFeature, h); f != nil {
			c.Features = append(c.Features, f)
		}
	}
	return c, nil
}

// Close releases the reader. The upstream type has no Close; dropping the
// reference lets its finalizer unmap the file.
func (r *Reader) Close() error {
	r.fgb = nil
	return nil
}

func convertFeature(fgbFeature *flattypes.Feature, header *flattypes.Header) *layer.Feature {
	if fgbFeature == nil {
		return nil
	}

	var geomObj flattypes.Geometry
	geom := decodeGeometry(fgbFeature.Geometry(&geomObj))
	if geom == nil {
		return nil
	}

	f := layer.NewFeature(geom)
	if n := fgbFeature.PropertiesLength(); n > 0 && header.ColumnsLength() > 0 {
		data := make([]byte, n)
		for i := 0; i < n; i++ {
			data[i] = byte(fgbFeature.Properties(i))
		}
		f.Properties = decodeProperties(data, header)
	}
	return f
}
