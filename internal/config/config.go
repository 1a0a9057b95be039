// Package config loads the `build:` section of a layer's YAML configuration.
//
// The configuration file is located by, in order:
//   - the CIVIC_MN_CFG environment variable (which must name an existing file),
//   - data-config/<name> in data-in/ or any of its parents,
//   - data-config/<name> in the repository root or any of its parents.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	precincts "github.com/tingold/mn-precincts"
	"github.com/tingold/mn-precincts/internal/columns"
)

// Simplification percentage bounds.
const (
	MinSimplifyPct = 0
	MaxSimplifyPct = 50
)

// ErrMissingVersion is returned when neither the caller nor the config names a version.
var ErrMissingVersion = errors.New("build.version is required")

// BuildConfig is the typed `build:` section.
type BuildConfig struct {
	// Path is the file the configuration was loaded from.
	Path string

	Version         string
	InputPath       string
	FieldsLowercase bool
	FieldsTrim      bool
	FieldsRename    map[string]string
	AddFields       []columns.Field
	FieldsKeep      []string
	WriteTopoJSON   bool
	WriteFlatGeobuf bool
	SimplifyPct     int
}

// ColumnOptions returns the normalizer options described by the config.
func (c *BuildConfig) ColumnOptions() columns.Options {
	return columns.Options{
		Lowercase: c.FieldsLowercase,
		Trim:      c.FieldsTrim,
		Rename:    c.FieldsRename,
		Add:       c.AddFields,
		Keep:      c.FieldsKeep,
	}
}

// InputFile resolves input_path under data-in/ and checks that it exists.
func (c *BuildConfig) InputFile(layout precincts.Layout) (string, error) {
	if c.InputPath == "" {
		return "", fmt.Errorf("%w: build.input_path is required", precincts.ErrConfig)
	}
	p := filepath.Join(layout.DataIn(), c.InputPath)
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("%w: input not found: %s", precincts.ErrInput, p)
	}
	return p, nil
}

// rawBuild mirrors the YAML keys. Scalars that users commonly quote or
// mistype are decoded loosely and coerced afterwards.
type rawBuild struct {
	Version         string            `yaml:"version"`
	InputPath       string            `yaml:"input_path"`
	FieldsLowercase any               `yaml:"fields_lowercase"`
	FieldsTrim      any               `yaml:"fields_trim"`
	FieldsRename    map[string]string `yaml:"fields_rename"`
	AddFields       orderedFields     `yaml:"add_fields"`
	FieldsKeep      []string          `yaml:"fields_keep"`
	WriteTopoJSON   any               `yaml:"write_topojson"`
	WriteFlatGeobuf any               `yaml:"write_flatgeobuf"`
	SimplifyPct     any               `yaml:"simplify_pct"`
}

// orderedFields decodes a YAML mapping while keeping key order.
type orderedFields []columns.Field

func (f *orderedFields) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: add_fields must be a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		var value any
		if err := node.Content[i+1].Decode(&value); err != nil {
			return err
		}
		*f = append(*f, columns.Field{Name: node.Content[i].Value, Value: value})
	}
	return nil
}

// Find locates the configuration file for layer.
func Find(layout precincts.Layout, layer precincts.Layer) (string, error) {
	if override := os.Getenv(precincts.EnvConfigPath); override != "" {
		if _, err := os.Stat(override); err != nil {
			return "", fmt.Errorf("%w: config override not found: %s", precincts.ErrConfig, override)
		}
		return override, nil
	}

	for _, root := range []string{layout.DataIn(), layout.Root} {
		for dir := root; ; {
			cand := filepath.Join(dir, "data-config", layer.ConfigName)
			if _, err := os.Stat(cand); err == nil {
				return cand, nil
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}
	return "", fmt.Errorf("%w: could not locate data-config/%s", precincts.ErrConfig, layer.ConfigName)
}

// Load finds and parses the build configuration for layer.
func Load(layout precincts.Layout, layer precincts.Layer) (*BuildConfig, error) {
	path, err := Find(layout, layer)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", precincts.ErrConfig, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	cfg.Path = path
	return cfg, nil
}

// Parse decodes the `build:` section of a configuration document.
func Parse(data []byte) (*BuildConfig, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", precincts.ErrConfig, err)
	}

	var root *yaml.Node
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		root = doc.Content[0]
	}
	if root == nil {
		return nil, fmt.Errorf("%w: missing 'build' section", precincts.ErrConfig)
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: config YAML did not parse to a mapping", precincts.ErrConfig)
	}

	build := lookup(root, "build")
	if build == nil || build.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: missing 'build' section", precincts.ErrConfig)
	}

	var raw rawBuild
	if err := build.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", precincts.ErrConfig, err)
	}

	return &BuildConfig{
		Version:         raw.Version,
		InputPath:       raw.InputPath,
		FieldsLowercase: boolOr(raw.FieldsLowercase, true),
		FieldsTrim:      boolOr(raw.FieldsTrim, true),
		FieldsRename:    raw.FieldsRename,
		AddFields:       raw.AddFields,
		FieldsKeep:      raw.FieldsKeep,
		WriteTopoJSON:   boolOr(raw.WriteTopoJSON, false),
		WriteFlatGeobuf: boolOr(raw.WriteFlatGeobuf, false),
		SimplifyPct:     ClampPercent(raw.SimplifyPct),
	}, nil
}

// ClampPercent coerces v to an integer in [MinSimplifyPct, MaxSimplifyPct].
// Values that are not numeric become 0.
func ClampPercent(v any) int {
	n, err := cast.ToIntE(v)
	if err != nil {
		return MinSimplifyPct
	}
	return max(MinSimplifyPct, min(MaxSimplifyPct, n))
}

// ResolveVersion prefers an explicit version over the configured one.
func (c *BuildConfig) ResolveVersion(explicit string) (string, error) {
	v := explicit
	if v == "" {
		v = c.Version
	}
	if v == "" {
		return "", fmt.Errorf("%w: %w", precincts.ErrConfig, ErrMissingVersion)
	}
	if err := precincts.CheckVersion(v); err != nil {
		return "", err
	}
	return v, nil
}

func lookup(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func boolOr(v any, def bool) bool {
	if v == nil {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}
