// Package build turns a raw precinct GeoJSON into a versioned output layer:
// normalized columns, repaired geometry, full and web GeoJSON, optional
// TopoJSON and FlatGeobuf, and a metadata document.
package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	precincts "github.com/tingold/mn-precincts"
	"github.com/tingold/mn-precincts/internal/columns"
	"github.com/tingold/mn-precincts/internal/config"
	"github.com/tingold/mn-precincts/internal/fgb"
	"github.com/tingold/mn-precincts/internal/geom"
	"github.com/tingold/mn-precincts/internal/layer"
	"github.com/tingold/mn-precincts/internal/simplify"
)

// ConfigLoader returns the build configuration for a layer.
type ConfigLoader func(precincts.Layout, precincts.Layer) (*config.BuildConfig, error)

// Builder runs a single layer build.
type Builder struct {
	Env        *precincts.Env
	Layer      precincts.Layer
	LoadConfig ConfigLoader
	Simplifier simplify.Simplifier
}

// New returns a Builder for the Minnesota precinct layer using the YAML
// config loader and mapshaper.
func New(env *precincts.Env) *Builder {
	return &Builder{
		Env:        env,
		Layer:      precincts.MNPrecincts,
		LoadConfig: config.Load,
		Simplifier: simplify.Mapshaper{},
	}
}

// Main runs a build and converts the outcome to a process exit code.
func Main(ctx context.Context, env *precincts.Env, version string) int {
	if _, err := New(env).Run(ctx, version); err != nil {
		env.Logger.Error("build failed", "error", err)
		return 1
	}
	env.Logger.Info("build completed")
	return 0
}

// Run builds the layer for version (or the configured version when empty)
// and returns the metadata it wrote. Every failure is a *precincts.BuildError.
func (b *Builder) Run(ctx context.Context, version string) (*precincts.Metadata, error) {
	log := b.Env.Logger

	cfg, err := b.LoadConfig(b.Env.Layout, b.Layer)
	if err != nil {
		return nil, &precincts.BuildError{Stage: "config", Err: err}
	}
	version, err = cfg.ResolveVersion(version)
	if err != nil {
		return nil, &precincts.BuildError{Stage: "config", Err: err}
	}
	src, err := cfg.InputFile(b.Env.Layout)
	if err != nil {
		return nil, &precincts.BuildError{Stage: "config", Err: err}
	}

	outDir := b.Env.Layout.VersionDir(b.Layer, version)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, &precincts.BuildError{Stage: "write", Err: fmt.Errorf("%w: %v", precincts.ErrOutput, err)}
	}
	log = log.With("layer", b.Layer.ID, "version", version)

	// load
	c, err := layer.ReadFile(src)
	if err != nil {
		return nil, &precincts.BuildError{Stage: "load", Err: fmt.Errorf("%w: %v", precincts.ErrInput, err)}
	}
	log.Info("loaded input", "path", src, "features", len(c.Features), "columns", len(c.Columns))
	if c.CRS != "" && !precincts.IsWGS84(c.CRS) {
		log.Warn("input declares a non-WGS84 CRS; coordinates are not reprojected", "crs", c.CRS)
	}

	// transform
	c = columns.Normalize(c, cfg.ColumnOptions())
	c, _ = geom.Repair(c, log)
	c.Name = trimExt(b.Layer.FullGeoJSON())
	c.CRS = precincts.CRSName

	// write
	removeStale(outDir, b.Layer.WebTopoJSON(), b.Layer.WebFlatGeobuf())
	fullPath := filepath.Join(outDir, b.Layer.FullGeoJSON())
	if err := layer.WriteFile(fullPath, c); err != nil {
		return nil, &precincts.BuildError{Stage: "write", Err: fmt.Errorf("%w: %v", precincts.ErrOutput, err)}
	}
	log.Info("wrote full", "path", fullPath)

	webPath := filepath.Join(outDir, b.Layer.WebGeoJSON())
	if err := copyFile(fullPath, webPath); err != nil {
		return nil, &precincts.BuildError{Stage: "write", Err: fmt.Errorf("%w: %v", precincts.ErrOutput, err)}
	}
	log.Info("wrote web geojson", "path", webPath)

	paths := precincts.MetadataPaths{
		FullGeoJSON: b.Layer.FullGeoJSON(),
		WebGeoJSON:  b.Layer.WebGeoJSON(),
	}

	// simplify
	if cfg.WriteTopoJSON {
		paths.WebTopoJSON = b.writeTopoJSON(ctx, webPath, cfg.SimplifyPct, log)
	}
	if cfg.WriteFlatGeobuf {
		paths.WebFlatGeobuf = b.writeFlatGeobuf(c, outDir, log)
	}

	// metadata
	meta, err := b.writeMetadata(fullPath, outDir, paths)
	if err != nil {
		return nil, &precincts.BuildError{Stage: "metadata", Err: err}
	}
	log.Info("wrote metadata", "features", meta.Stats.Features, "bbox", meta.Stats.BBox)
	return meta, nil
}

// writeTopoJSON runs the simplifier. Failures are logged and yield nil.
func (b *Builder) writeTopoJSON(ctx context.Context, webPath string, pct int, log *slog.Logger) *string {
	if b.Simplifier == nil {
		log.Warn("no simplifier configured; skipping TopoJSON")
		return nil
	}
	out, err := b.Simplifier.Simplify(ctx, webPath, config.ClampPercent(pct))
	if err != nil {
		if !errors.Is(err, precincts.ErrToolUnavailable) {
			err = fmt.Errorf("%w: %v", precincts.ErrToolUnavailable, err)
		}
		log.Warn("skipping TopoJSON", "error", err)
		return nil
	}
	log.Info("wrote TopoJSON", "path", out)
	name := filepath.Base(out)
	return &name
}

// writeFlatGeobuf writes the web FlatGeobuf. Failures are logged and yield nil.
func (b *Builder) writeFlatGeobuf(c *layer.Collection, outDir string, log *slog.Logger) *string {
	name := b.Layer.WebFlatGeobuf()
	path := filepath.Join(outDir, name)
	opts := fgb.DefaultOptions()
	opts.Name = b.Layer.ID
	opts.Description = b.Layer.Description
	if err := fgb.WriteFile(path, c, opts); err != nil {
		log.Warn("skipping FlatGeobuf", "error", err)
		_ = os.Remove(path)
		return nil
	}
	log.Info("wrote FlatGeobuf", "path", path)
	return &name
}

// writeMetadata recomputes stats from the written full file.
func (b *Builder) writeMetadata(fullPath, outDir string, paths precincts.MetadataPaths) (*precincts.Metadata, error) {
	full, err := layer.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", precincts.ErrOutput, err)
	}

	meta := &precincts.Metadata{
		ID:    b.Layer.ID,
		Title: b.Layer.Title,
		Paths: paths,
		Stats: precincts.MetadataStats{
			Features: len(full.Features),
			BBox:     full.BBox(),
		},
		Spatial: precincts.Spatial{
			CRS:          precincts.CRSName,
			GeometryType: full.GeometryType(),
		},
	}

	if err := precincts.WriteJSON(filepath.Join(outDir, precincts.MetadataName), meta); err != nil {
		return nil, fmt.Errorf("%w: %v", precincts.ErrOutput, err)
	}
	return meta, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// removeStale deletes optional artifacts left by an earlier build so the
// directory matches the metadata written by this one.
func removeStale(dir string, names ...string) {
	for _, name := range names {
		_ = os.Remove(filepath.Join(dir, name))
	}
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
