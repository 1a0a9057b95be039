// Package columns renames, injects and prunes attribute columns of a layer.
package columns

import (
	"strings"

	"github.com/tingold/mn-precincts/internal/layer"
)

// Field is a named constant value injected into every feature.
type Field struct {
	Name  string
	Value any
}

// Options controls column normalization. Zero values disable each step.
type Options struct {
	Lowercase bool
	Trim      bool
	Rename    map[string]string
	Add       []Field
	Keep      []string
}

// Normalize applies, in order: name folding, renaming, constant injection
// and keep-list pruning. The collection is modified in place and returned.
func Normalize(c *layer.Collection, opts Options) *layer.Collection {
	FoldNames(c, opts.Lowercase, opts.Trim)
	Rename(c, opts.Rename)
	AddConstants(c, opts.Add)
	if len(opts.Keep) > 0 {
		keep := make([]string, 0, len(opts.Keep))
		for _, name := range opts.Keep {
			keep = append(keep, resolveKeep(c, name, opts))
		}
		Keep(c, keep)
	}
	return c
}

// resolveKeep maps a keep-list entry to a column name. An entry naming a
// final column (a rename target or added field) is used as is; anything
// else goes through the same folding and renaming as the input columns.
func resolveKeep(c *layer.Collection, name string, opts Options) string {
	if c.HasColumn(name) {
		return name
	}
	name = foldName(name, opts.Lowercase, opts.Trim)
	if to, ok := opts.Rename[name]; ok && to != "" {
		name = to
	}
	return name
}

// FoldNames lower-cases and/or trims every column name. Columns that fold to
// the same name merge into the first one's position; later values win.
func FoldNames(c *layer.Collection, lower, trim bool) {
	if !lower && !trim {
		return
	}
	mapping := make(map[string]string, len(c.Columns))
	for _, col := range c.Columns {
		mapping[col] = foldName(col, lower, trim)
	}
	remap(c, mapping)
}

// Rename applies an explicit old → new name mapping. Unknown names are ignored.
func Rename(c *layer.Collection, mapping map[string]string) {
	if len(mapping) == 0 {
		return
	}
	full := make(map[string]string, len(c.Columns))
	for _, col := range c.Columns {
		if to, ok := mapping[col]; ok && to != "" {
			full[col] = to
		} else {
			full[col] = col
		}
	}
	remap(c, full)
}

// AddConstants sets each field on every feature, overwriting existing values.
// New columns are appended in field order.
func AddConstants(c *layer.Collection, fields []Field) {
	for _, fld := range fields {
		if fld.Name == layer.GeometryColumn {
			continue
		}
		if !c.HasColumn(fld.Name) {
			c.Columns = append(c.Columns, fld.Name)
		}
		for _, f := range c.Features {
			f.Properties[fld.Name] = fld.Value
		}
	}
}

// Keep restricts the columns to those in names, in names order. Names that
// are not present are skipped. The geometry column is always retained.
func Keep(c *layer.Collection, names []string) {
	if len(names) == 0 {
		return
	}

	kept := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if name == layer.GeometryColumn || seen[name] || !c.HasColumn(name) {
			continue
		}
		seen[name] = true
		kept = append(kept, name)
	}

	for _, f := range c.Features {
		for k := range f.Properties {
			if !seen[k] {
				delete(f.Properties, k)
			}
		}
	}
	c.Columns = kept
}

// remap renames columns per mapping (which must cover every column) and
// rewrites each feature's property keys to match.
func remap(c *layer.Collection, mapping map[string]string) {
	cols := make([]string, 0, len(c.Columns))
	seen := make(map[string]bool, len(c.Columns))
	for _, col := range c.Columns {
		to := mapping[col]
		if !seen[to] {
			seen[to] = true
			cols = append(cols, to)
		}
	}

	for _, f := range c.Features {
		props := make(map[string]any, len(f.Properties))
		for _, col := range c.Columns {
			if v, ok := f.Properties[col]; ok {
				props[mapping[col]] = v
			}
		}
		f.Properties = props
	}
	c.Columns = cols
}

func foldName(name string, lower, trim bool) string {
	if lower {
		name = strings.ToLower(name)
	}
	if trim {
		name = strings.TrimSpace(name)
	}
	return name
}
