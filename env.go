package precincts

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Environment variables recognised by the pipeline.
const (
	EnvConfigPath = "CIVIC_MN_CFG"   // explicit path to the build configuration
	EnvRoot       = "CIVIC_MN_ROOT"  // repository root holding data-in/ and data-out/
	EnvDebug      = "CIVIC_MN_DEBUG" // any non-empty value enables debug logging
)

// Layout resolves the fixed directory structure under a repository root.
type Layout struct {
	Root string
}

// NewLayout returns a Layout rooted at root, made absolute when possible.
func NewLayout(root string) Layout {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return Layout{Root: root}
}

// DataConfig is the directory holding YAML build configurations.
func (l Layout) DataConfig() string { return filepath.Join(l.Root, "data-config") }

// DataIn is the directory holding raw input data.
func (l Layout) DataIn() string { return filepath.Join(l.Root, "data-in") }

// DataOut is the root of all generated output.
func (l Layout) DataOut() string { return filepath.Join(l.Root, "data-out") }

// StateDir is data-out/states/<state>.
func (l Layout) StateDir(state string) string {
	return filepath.Join(l.DataOut(), "states", state)
}

// LayerDir is data-out/states/<state>/<layer> holding one directory per version.
func (l Layout) LayerDir(ly Layer) string {
	return filepath.Join(l.StateDir(ly.State), ly.Dir)
}

// VersionDir is the output directory for one snapshot of a layer.
func (l Layout) VersionDir(ly Layer, version string) string {
	return filepath.Join(l.LayerDir(ly), version)
}

// Env is the explicit run context threaded through every component.
type Env struct {
	Layout Layout
	Logger *slog.Logger
	Now    func() time.Time
}

// NewEnv builds an Env for root that logs to w.
func NewEnv(root string, w io.Writer, debug bool) *Env {
	level := slog.LevelInfo
	if debug || os.Getenv(EnvDebug) != "" {
		level = slog.LevelDebug
	}
	return &Env{
		Layout: NewLayout(root),
		Logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})),
		Now:    time.Now,
	}
}

// Clock returns the current time in UTC.
func (e *Env) Clock() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now().UTC()
}
