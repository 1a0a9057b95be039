// Package fgb writes and reads precinct layers in the FlatGeobuf format.
// Columns keep the layer's column order, and geometries are limited to the
// polygonal types the pipeline produces.
package fgb

import (
	"errors"
	"strconv"
)

// Common errors returned by this package.
var (
	ErrEmpty           = errors.New("fgb: no features to write")
	ErrUnsupportedType = errors.New("fgb: unsupported geometry type")
	ErrNoIndex         = errors.New("fgb: file has no spatial index")
)

// CRS represents a coordinate reference system.
type CRS struct {
	Org  string // authority, e.g. "EPSG"
	Code int    // code within the authority, e.g. 4326
	Name string
}

// WGS84 returns the standard WGS84 CRS (EPSG:4326).
func WGS84() *CRS {
	return &CRS{
		Org:  "EPSG",
		Code: 4326,
		Name: "WGS 84",
	}
}

// String formats the CRS as "ORG:CODE".
func (c *CRS) String() string {
	if c == nil {
		return ""
	}
	org := c.Org
	if org == "" {
		org = "EPSG"
	}
	return org + ":" + strconv.Itoa(c.Code)
}

// Options configures FlatGeobuf writing.
type Options struct {
	Name         string // Layer name
	Description  string // Layer description
	IncludeIndex bool   // Include spatial index (default: true)
	CRS          *CRS   // Coordinate reference system (optional)
}

// DefaultOptions returns options for a web layer: indexed and in WGS84.
func DefaultOptions() *Options {
	return &Options{
		IncludeIndex: true,
		CRS:          WGS84(),
	}
}

// ColumnInfo describes a property column in a FlatGeobuf file.
type ColumnInfo struct {
	Name     string // Column name
	Type     string // "Bool", "Long", "Double", "String", "Json", ...
	Nullable bool
}

// Header contains metadata about a FlatGeobuf file.
type Header struct {
	Name          string
	Description   string
	GeometryType  string // "MultiPolygon", "Polygon", "Unknown", ...
	FeaturesCount uint64
	Envelope      [4]float64 // [minX, minY, maxX, maxY]
	CRS           *CRS
	HasIndex      bool
	Columns       []ColumnInfo
}
