package layer

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/paulmach/orb/geojson"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ErrNotFeatureCollection is returned when a document is not a GeoJSON FeatureCollection.
var ErrNotFeatureCollection = errors.New("layer: not a GeoJSON FeatureCollection")

func init() {
	geojson.CustomJSONMarshaler = codec{}
	geojson.CustomJSONUnmarshaler = codec{}
}

// codec routes orb's geojson encoding through go-json.
type codec struct{}

func (codec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (codec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

type crsMember struct {
	Type       string `json:"type"`
	Properties struct {
		Name string `json:"name"`
	} `json:"properties"`
}

type fileCollection struct {
	Type     string            `json:"type"`
	Name     string            `json:"name"`
	CRS      *crsMember        `json:"crs"`
	Features []json.RawMessage `json:"features"`
}

type fileFeature struct {
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

type outFeature struct {
	Type       string                              `json:"type"`
	Properties *orderedmap.OrderedMap[string, any] `json:"properties"`
	Geometry   *geojson.Geometry                   `json:"geometry"`
}

// ReadFile loads a GeoJSON FeatureCollection from path.
func ReadFile(path string) (*Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Read(data)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if c.Name == "" {
		c.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return c, nil
}

// Read decodes a GeoJSON FeatureCollection. Column order follows the first
// appearance of each property name across features. Numbers are kept as
// json.Number so integer IDs survive beyond 2^53. A property named
// "geometry" is read as GeometryAttribute.
func Read(data []byte) (*Collection, error) {
	var fc fileCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, err
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("%w: type %q", ErrNotFeatureCollection, fc.Type)
	}

	c := &Collection{Name: fc.Name}
	if fc.CRS != nil {
		c.CRS = fc.CRS.Properties.Name
	}

	for i, raw := range fc.Features {
		var ff fileFeature
		if err := json.Unmarshal(raw, &ff); err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}

		f := &Feature{Properties: make(map[string]any)}

		if !isNull(ff.Geometry) {
			g, err := geojson.UnmarshalGeometry(ff.Geometry)
			if err != nil {
				return nil, fmt.Errorf("feature %d geometry: %w", i, err)
			}
			f.Geometry = g.Geometry()
		}

		if !isNull(ff.Properties) {
			props := orderedmap.New[string, json.RawMessage]()
			if err := props.UnmarshalJSON(ff.Properties); err != nil {
				return nil, fmt.Errorf("feature %d properties: %w", i, err)
			}
			for p := props.Oldest(); p != nil; p = p.Next() {
				v, err := decodeValue(p.Value)
				if err != nil {
					return nil, fmt.Errorf("feature %d property %q: %w", i, p.Key, err)
				}
				key := p.Key
				if key == GeometryColumn {
					key = GeometryAttribute
				}
				f.Properties[key] = v
				if !c.HasColumn(key) {
					c.Columns = append(c.Columns, key)
				}
			}
		}

		c.Features = append(c.Features, f)
	}

	return c, nil
}

// WriteFile writes c to path as GeoJSON, replacing any existing file.
func WriteFile(path string, c *Collection) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}

	err = Write(file, c)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	return err
}

// Write encodes c as a GeoJSON FeatureCollection with one feature per line.
// Every feature carries every column, in column order; missing values are null.
func Write(w io.Writer, c *Collection) error {
	bw := bufio.NewWriter(w)

	bw.WriteString("{\n\"type\": \"FeatureCollection\",\n")
	if c.Name != "" {
		name, err := json.Marshal(c.Name)
		if err != nil {
			return err
		}
		fmt.Fprintf(bw, "\"name\": %s,\n", name)
	}
	if c.CRS != "" {
		crs, err := json.Marshal(c.CRS)
		if err != nil {
			return err
		}
		fmt.Fprintf(bw, "\"crs\": { \"type\": \"name\", \"properties\": { \"name\": %s } },\n", crs)
	}
	bw.WriteString("\"features\": [\n")

	for i, f := range c.Features {
		out := outFeature{
			Type:       "Feature",
			Properties: orderedmap.New[string, any](),
		}
		for _, col := range c.Columns {
			out.Properties.Set(col, f.Properties[col])
		}
		if f.Geometry != nil {
			out.Geometry = geojson.NewGeometry(f.Geometry)
		}

		b, err := json.Marshal(out)
		if err != nil {
			return fmt.Errorf("feature %d: %w", i, err)
		}
		bw.Write(b)
		if i < len(c.Features)-1 {
			bw.WriteByte(',')
		}
		bw.WriteByte('\n')
	}

	bw.WriteString("]\n}\n")
	return bw.Flush()
}

func decodeValue(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func isNull(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
