package columns

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tingold/mn-precincts/internal/layer"
)

func rawCollection() *layer.Collection {
	c := &layer.Collection{Columns: []string{" PCTNAME ", "COUNTYNAME", "VTDID", "Shape_Area"}}
	for i, name := range []string{"Ward 1", "Ward 2"} {
		f := layer.NewFeature(orb.MultiPolygon{})
		f.Properties[" PCTNAME "] = name
		f.Properties["COUNTYNAME"] = "Anoka"
		f.Properties["VTDID"] = float64(27003 + i)
		f.Properties["Shape_Area"] = 1.5
		c.Features = append(c.Features, f)
	}
	return c
}

func TestFoldNames(t *testing.T) {
	c := rawCollection()
	FoldNames(c, true, true)

	assert.Equal(t, []string{"pctname", "countyname", "vtdid", "shape_area"}, c.Columns)
	assert.Equal(t, "Ward 1", c.Features[0].Properties["pctname"])
	assert.NotContains(t, c.Features[0].Properties, " PCTNAME ")
}

func TestFoldNames_Disabled(t *testing.T) {
	c := rawCollection()
	FoldNames(c, false, false)
	assert.Equal(t, []string{" PCTNAME ", "COUNTYNAME", "VTDID", "Shape_Area"}, c.Columns)
}

func TestFoldNames_Collision(t *testing.T) {
	c := &layer.Collection{Columns: []string{"Name", "other", "NAME"}}
	f := layer.NewFeature(nil)
	f.Properties["Name"] = "first"
	f.Properties["other"] = 1
	f.Properties["NAME"] = "second"
	c.Features = append(c.Features, f)

	FoldNames(c, true, false)

	assert.Equal(t, []string{"name", "other"}, c.Columns)
	assert.Equal(t, "second", f.Properties["name"])
}

func TestRename(t *testing.T) {
	c := rawCollection()
	Rename(c, map[string]string{"VTDID": "precinct_id", "MISSING": "x"})

	assert.Equal(t, []string{" PCTNAME ", "COUNTYNAME", "precinct_id", "Shape_Area"}, c.Columns)
	assert.Equal(t, float64(27004), c.Features[1].Properties["precinct_id"])
	assert.NotContains(t, c.Columns, "x")
}

func TestAddConstants(t *testing.T) {
	c := rawCollection()
	AddConstants(c, []Field{
		{Name: "state", Value: "MN"},
		{Name: "COUNTYNAME", Value: "override"},
		{Name: "geometry", Value: "ignored"},
		{Name: "year", Value: 2024},
	})

	assert.Equal(t, []string{" PCTNAME ", "COUNTYNAME", "VTDID", "Shape_Area", "state", "year"}, c.Columns)
	for _, f := range c.Features {
		assert.Equal(t, "MN", f.Properties["state"])
		assert.Equal(t, "override", f.Properties["COUNTYNAME"])
		assert.Equal(t, 2024, f.Properties["year"])
		assert.NotContains(t, f.Properties, "geometry")
	}
}

func TestKeep(t *testing.T) {
	c := rawCollection()
	Keep(c, []string{"VTDID", "nope", "geometry", " PCTNAME ", "VTDID"})

	assert.Equal(t, []string{"VTDID", " PCTNAME "}, c.Columns)
	assert.Len(t, c.Features[0].Properties, 2)
	assert.NotContains(t, c.Features[0].Properties, "Shape_Area")
}

func TestKeep_Empty(t *testing.T) {
	c := rawCollection()
	Keep(c, nil)
	assert.Len(t, c.Columns, 4)
}

func TestNormalize(t *testing.T) {
	c := rawCollection()
	opts := Options{
		Lowercase: true,
		Trim:      true,
		Rename: map[string]string{
			"pctname":    "precinct_name",
			"countyname": "county",
			"vtdid":      "precinct_id",
		},
		Add:  []Field{{Name: "state", Value: "MN"}},
		Keep: []string{"PRECINCT_ID", " pctname", "county", "state"},
	}

	out := Normalize(c, opts)
	require.Same(t, c, out)

	assert.Equal(t, []string{"precinct_id", "precinct_name", "county", "state"}, out.Columns)
	assert.Equal(t, map[string]any{
		"precinct_id":   float64(27003),
		"precinct_name": "Ward 1",
		"county":        "Anoka",
		"state":         "MN",
	}, out.Features[0].Properties)
}

func TestNormalize_KeepFinalNames(t *testing.T) {
	c := rawCollection()
	opts := Options{
		Lowercase: true,
		Trim:      true,
		Rename:    map[string]string{"pctname": "PrecinctName"},
		Add:       []Field{{Name: "Source", Value: "MN SOS"}},
		Keep:      []string{"PrecinctName", "Source", "vtdid"},
	}

	out := Normalize(c, opts)

	assert.Equal(t, []string{"PrecinctName", "Source", "vtdid"}, out.Columns)
	assert.Equal(t, map[string]any{
		"PrecinctName": "Ward 2",
		"Source":       "MN SOS",
		"vtdid":        float64(27004),
	}, out.Features[1].Properties)
}
