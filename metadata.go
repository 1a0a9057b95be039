package precincts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
)

// Metadata is the per-version metadata.json document.
type Metadata struct {
	ID      string        `json:"id"`
	Title   string        `json:"title"`
	Paths   MetadataPaths `json:"paths"`
	Stats   MetadataStats `json:"stats"`
	Spatial Spatial       `json:"spatial"`
}

// MetadataPaths names the artifacts of a version, relative to its directory.
// Optional artifacts that were not written are null.
type MetadataPaths struct {
	FullGeoJSON   string  `json:"full_geojson"`
	WebGeoJSON    string  `json:"web_geojson"`
	WebTopoJSON   *string `json:"web_topojson"`
	WebFlatGeobuf *string `json:"web_flatgeobuf"`
}

// MetadataStats summarizes the full output file.
type MetadataStats struct {
	Features int       `json:"features"`
	BBox     []float64 `json:"bbox"`
}

// Spatial describes the coordinate system and geometry type of a layer.
type Spatial struct {
	CRS          string `json:"crs"`
	GeometryType string `json:"geometry_type"`
}

// IsWGS84 reports whether a declared CRS name is EPSG:4326.
func IsWGS84(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "epsg:4326", "wgs84":
		return true
	}
	return false
}

// ReadMetadata loads a metadata.json document.
func ReadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return &meta, nil
}

// WriteJSON writes v to path as two-space indented JSON.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
