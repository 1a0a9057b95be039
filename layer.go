package precincts

import (
	"fmt"
	"strings"
)

// Layer describes a published boundary layer and the file names it produces.
type Layer struct {
	ID          string // e.g. "mn-precincts"
	Title       string
	Description string
	Source      string
	License     string
	State       string // state directory under data-out/states
	Dir         string // layer directory under the state directory
	ConfigName  string // YAML file under data-config/
}

// MNPrecincts is the Minnesota precinct layer.
var MNPrecincts = Layer{
	ID:          "mn-precincts",
	Title:       "Minnesota Precincts",
	Description: "Minnesota precinct boundaries",
	Source:      "Minnesota Secretary of State",
	License:     "Public domain",
	State:       "minnesota",
	Dir:         "precincts",
	ConfigName:  "us_mn_precincts.yaml",
}

// CRSName is the only coordinate reference system the pipeline emits.
const CRSName = "EPSG:4326"

// MetadataName is the per-version metadata document.
const MetadataName = "metadata.json"

// FullGeoJSON is the full-resolution output file name.
func (l Layer) FullGeoJSON() string { return l.ID + "-full.geojson" }

// WebGeoJSON is the web output file name.
func (l Layer) WebGeoJSON() string { return l.ID + "-web.geojson" }

// WebTopoJSON is the optional simplified topology file name.
func (l Layer) WebTopoJSON() string { return l.ID + "-web.topojson" }

// WebFlatGeobuf is the optional FlatGeobuf file name.
func (l Layer) WebFlatGeobuf() string { return l.ID + "-web.fgb" }

// RequiredFiles lists the files every successful build leaves behind.
func (l Layer) RequiredFiles() []string {
	return []string{l.FullGeoJSON(), l.WebGeoJSON(), MetadataName}
}

// CheckVersion rejects version tags that are not a single path element.
func CheckVersion(version string) error {
	if version == "" || version == "." || version == ".." || strings.ContainsAny(version, `/\`) {
		return fmt.Errorf("%w: invalid version tag %q", ErrConfig, version)
	}
	return nil
}
