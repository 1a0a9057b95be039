// Package index scans data-out/ and writes the discovery documents: the flat
// file index, the dataset manifest and the per-state latest-version pointers.
package index

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	precincts "github.com/tingold/mn-precincts"
	"github.com/tingold/mn-precincts/internal/layer"
)

// File names written under data-out/.
const (
	IndexName    = "index.json"
	ManifestName = "manifest.json"
)

// ManifestGeometryType is the geometry type advertised by the manifest.
const ManifestGeometryType = "Polygon"

var featuresPath = jp.MustParseString("$.features[*]")

// Entry is one GeoJSON file in the flat index. BBox and Features are nil
// when the file could not be read.
type Entry struct {
	Path     string    `json:"path"`
	BBox     []float64 `json:"bbox"`
	Features *int      `json:"features"`
}

// Manifest is the dataset-level summary.
type Manifest struct {
	Dataset       string   `json:"dataset"`
	Description   string   `json:"description"`
	Source        string   `json:"source"`
	License       string   `json:"license"`
	GeometryType  string   `json:"geometry_type"`
	GeneratedAt   string   `json:"generated_at"`
	TotalFiles    int      `json:"total_files"`
	TotalFeatures int      `json:"total_features"`
	FilesIndexed  []string `json:"files_indexed"`
}

// StateIndex points each layer of a state at its latest metadata document.
type StateIndex struct {
	Layers []LayerPointer `json:"layers"`
}

// LayerPointer is one entry of a StateIndex.
type LayerPointer struct {
	ID     string `json:"id"`
	Latest string `json:"latest"`
}

// Indexer writes the discovery documents for a set of layers.
type Indexer struct {
	Env    *precincts.Env
	Layers []precincts.Layer
}

// New returns an Indexer for the Minnesota precinct layer.
func New(env *precincts.Env) *Indexer {
	return &Indexer{Env: env, Layers: []precincts.Layer{precincts.MNPrecincts}}
}

// Main rebuilds every index document and converts the outcome to an exit code.
func Main(env *precincts.Env) int {
	if err := New(env).Run(); err != nil {
		env.Logger.Error("index build failed", "error", err)
		return 1
	}
	return 0
}

// Run rescans data-out/ and rewrites index.json, manifest.json and the
// state index.
func (ix *Indexer) Run() error {
	log := ix.Env.Logger
	root := ix.Env.Layout.DataOut()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("%w: %v", precincts.ErrOutput, err)
	}

	log.Info("scanning for geojson", "root", root)
	entries, err := ix.Scan(root)
	if err != nil {
		return err
	}

	if err := precincts.WriteJSON(filepath.Join(root, IndexName), entries); err != nil {
		return fmt.Errorf("%w: %v", precincts.ErrOutput, err)
	}
	log.Info("flat index written", "files", len(entries))

	if len(ix.Layers) > 0 {
		m := NewManifest(ix.Layers[0], entries, ix.Env.Clock())
		if err := precincts.WriteJSON(filepath.Join(root, ManifestName), m); err != nil {
			return fmt.Errorf("%w: %v", precincts.ErrOutput, err)
		}
		log.Info("manifest written", "total_features", m.TotalFeatures)
	}

	return ix.writeStateIndexes()
}

// Scan walks root in lexical order and returns an entry per *.geojson file.
// Unreadable files yield entries with nil bbox and feature count.
func (ix *Indexer) Scan(root string) ([]Entry, error) {
	entries := []Entry{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".geojson" {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		entries = append(entries, Entry{
			Path:     filepath.ToSlash(rel),
			BBox:     ix.bbox(path),
			Features: ix.count(path),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", precincts.ErrOutput, err)
	}
	return entries, nil
}

func (ix *Indexer) bbox(path string) []float64 {
	c, err := layer.ReadFile(path)
	if err != nil {
		ix.Env.Logger.Warn("could not read bbox", "file", filepath.Base(path), "error", err)
		return nil
	}
	return c.BBox()
}

func (ix *Indexer) count(path string) *int {
	n, err := CountFeatures(path)
	if err != nil {
		ix.Env.Logger.Warn("could not count features", "file", filepath.Base(path), "error", err)
		return nil
	}
	return &n
}

// CountFeatures returns the number of features in a GeoJSON FeatureCollection.
func CountFeatures(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	doc, err := oj.Parse(data)
	if err != nil {
		return 0, err
	}
	obj, ok := doc.(map[string]any)
	if !ok || obj["type"] != "FeatureCollection" {
		return 0, layer.ErrNotFeatureCollection
	}
	return len(featuresPath.Get(obj)), nil
}

// NewManifest summarizes entries for l. Entries without a feature count
// contribute nothing to the total.
func NewManifest(l precincts.Layer, entries []Entry, now time.Time) *Manifest {
	m := &Manifest{
		Dataset:      l.ID,
		Description:  l.Description,
		Source:       l.Source,
		License:      l.License,
		GeometryType: ManifestGeometryType,
		GeneratedAt:  now.UTC().Format(time.RFC3339),
		TotalFiles:   len(entries),
		FilesIndexed: make([]string, 0, len(entries)),
	}
	for _, e := range entries {
		if e.Features != nil {
			m.TotalFeatures += *e.Features
		}
		m.FilesIndexed = append(m.FilesIndexed, e.Path)
	}
	return m
}

// LatestVersion returns the greatest version directory of l by descending
// lexical order, or "" when there is none.
func LatestVersion(layout precincts.Layout, l precincts.Layer) (string, error) {
	dirents, err := os.ReadDir(layout.LayerDir(l))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var versions []string
	for _, d := range dirents {
		if d.IsDir() {
			versions = append(versions, d.Name())
		}
	}
	if len(versions) == 0 {
		return "", nil
	}
	sort.Sort(sort.Reverse(sort.StringSlice(versions)))
	return versions[0], nil
}

// writeStateIndexes writes one index per state that has at least one
// layer with a version.
func (ix *Indexer) writeStateIndexes() error {
	byState := map[string]*StateIndex{}
	var states []string
	for _, l := range ix.Layers {
		latest, err := LatestVersion(ix.Env.Layout, l)
		if err != nil {
			return fmt.Errorf("%w: %v", precincts.ErrOutput, err)
		}
		if latest == "" {
			ix.Env.Logger.Warn("no versioned folder found; skipping state index entry", "layer", l.ID)
			continue
		}
		si, ok := byState[l.State]
		if !ok {
			si = &StateIndex{}
			byState[l.State] = si
			states = append(states, l.State)
		}
		si.Layers = append(si.Layers, LayerPointer{
			ID:     l.ID,
			Latest: l.Dir + "/" + latest + "/" + precincts.MetadataName,
		})
	}

	for _, state := range states {
		path := filepath.Join(ix.Env.Layout.StateDir(state), IndexName)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("%w: %v", precincts.ErrOutput, err)
		}
		if err := precincts.WriteJSON(path, byState[state]); err != nil {
			return fmt.Errorf("%w: %v", precincts.ErrOutput, err)
		}
		ix.Env.Logger.Info("state index written", "path", path)
	}
	return nil
}
