package index

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	precincts "github.com/tingold/mn-precincts"
	"github.com/tingold/mn-precincts/internal/layer"
)

var now = time.Date(2025, 4, 2, 8, 30, 0, 0, time.UTC)

func newEnv(t *testing.T) *precincts.Env {
	t.Helper()
	return &precincts.Env{
		Layout: precincts.NewLayout(t.TempDir()),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    func() time.Time { return now },
	}
}

func collection(n int, x float64) *layer.Collection {
	c := &layer.Collection{CRS: precincts.CRSName, Columns: []string{"precinct_id"}}
	for i := 0; i < n; i++ {
		off := x + float64(i)
		f := layer.NewFeature(orb.MultiPolygon{{{{off, 44}, {off + 1, 44}, {off + 1, 45}, {off, 44}}}})
		f.Properties["precinct_id"] = float64(i)
		c.Features = append(c.Features, f)
	}
	return c
}

func writeLayer(t *testing.T, env *precincts.Env, version string, n int, x float64) {
	t.Helper()
	l := precincts.MNPrecincts
	dir := env.Layout.VersionDir(l, version)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	c := collection(n, x)
	require.NoError(t, layer.WriteFile(filepath.Join(dir, l.FullGeoJSON()), c))
	require.NoError(t, layer.WriteFile(filepath.Join(dir, l.WebGeoJSON()), c))
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func TestRun(t *testing.T) {
	env := newEnv(t)
	writeLayer(t, env, "2024-11", 2, -95)
	writeLayer(t, env, "2025-04", 3, -94)

	require.NoError(t, New(env).Run())
	out := env.Layout.DataOut()

	var entries []Entry
	readJSON(t, filepath.Join(out, IndexName), &entries)
	require.Len(t, entries, 4)
	assert.Equal(t, "states/minnesota/precincts/2024-11/mn-precincts-full.geojson", entries[0].Path)
	assert.Equal(t, "states/minnesota/precincts/2025-04/mn-precincts-web.geojson", entries[3].Path)
	assert.Equal(t, []float64{-95, 44, -93, 45}, entries[0].BBox)
	require.NotNil(t, entries[3].Features)
	assert.Equal(t, 3, *entries[3].Features)

	var m Manifest
	readJSON(t, filepath.Join(out, ManifestName), &m)
	assert.Equal(t, Manifest{
		Dataset:       "mn-precincts",
		Description:   "Minnesota precinct boundaries",
		Source:        "Minnesota Secretary of State",
		License:       "Public domain",
		GeometryType:  "Polygon",
		GeneratedAt:   "2025-04-02T08:30:00Z",
		TotalFiles:    4,
		TotalFeatures: 10,
		FilesIndexed: []string{
			"states/minnesota/precincts/2024-11/mn-precincts-full.geojson",
			"states/minnesota/precincts/2024-11/mn-precincts-web.geojson",
			"states/minnesota/precincts/2025-04/mn-precincts-full.geojson",
			"states/minnesota/precincts/2025-04/mn-precincts-web.geojson",
		},
	}, m)

	var si StateIndex
	readJSON(t, filepath.Join(env.Layout.StateDir("minnesota"), IndexName), &si)
	assert.Equal(t, StateIndex{Layers: []LayerPointer{
		{ID: "mn-precincts", Latest: "precincts/2025-04/metadata.json"},
	}}, si)
}

func TestRun_UnreadableFile(t *testing.T) {
	env := newEnv(t)
	writeLayer(t, env, "v1", 1, 0)
	bad := filepath.Join(env.Layout.DataOut(), "broken.geojson")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))

	require.NoError(t, New(env).Run())

	data, err := os.ReadFile(filepath.Join(env.Layout.DataOut(), IndexName))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"path": "broken.geojson",
    "bbox": null,
    "features": null`)

	var m Manifest
	readJSON(t, filepath.Join(env.Layout.DataOut(), ManifestName), &m)
	assert.Equal(t, 3, m.TotalFiles)
	assert.Equal(t, 2, m.TotalFeatures)
}

func TestRun_NoVersions(t *testing.T) {
	env := newEnv(t)
	require.NoError(t, New(env).Run())

	var entries []Entry
	readJSON(t, filepath.Join(env.Layout.DataOut(), IndexName), &entries)
	assert.Empty(t, entries)
	assert.FileExists(t, filepath.Join(env.Layout.DataOut(), ManifestName))
	assert.NoFileExists(t, filepath.Join(env.Layout.StateDir("minnesota"), IndexName))
}

func TestRun_Rescan(t *testing.T) {
	env := newEnv(t)
	writeLayer(t, env, "v1", 1, 0)
	require.NoError(t, New(env).Run())

	first, err := os.ReadFile(filepath.Join(env.Layout.DataOut(), IndexName))
	require.NoError(t, err)
	require.NoError(t, New(env).Run())
	second, err := os.ReadFile(filepath.Join(env.Layout.DataOut(), IndexName))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestLatestVersion(t *testing.T) {
	env := newEnv(t)
	l := precincts.MNPrecincts

	v, err := LatestVersion(env.Layout, l)
	require.NoError(t, err)
	assert.Empty(t, v)

	for _, name := range []string{"2024-11", "2025-04", "2025-01"} {
		require.NoError(t, os.MkdirAll(env.Layout.VersionDir(l, name), 0o755))
	}
	// files next to version directories are ignored
	require.NoError(t, os.WriteFile(filepath.Join(env.Layout.LayerDir(l), "zzz.txt"), nil, 0o644))

	v, err = LatestVersion(env.Layout, l)
	require.NoError(t, err)
	assert.Equal(t, "2025-04", v)
}

func TestLatestVersion_Lexical(t *testing.T) {
	env := newEnv(t)
	l := precincts.MNPrecincts
	for _, name := range []string{"v10", "v9"} {
		require.NoError(t, os.MkdirAll(env.Layout.VersionDir(l, name), 0o755))
	}
	v, err := LatestVersion(env.Layout, l)
	require.NoError(t, err)
	assert.Equal(t, "v9", v)
}

func TestCountFeatures(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr bool
	}{
		{"collection", `{"type":"FeatureCollection","features":[{"type":"Feature"},{"type":"Feature"}]}`, 2, false},
		{"empty", `{"type":"FeatureCollection","features":[]}`, 0, false},
		{"feature", `{"type":"Feature","geometry":null}`, 0, true},
		{"garbage", `nope`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := filepath.Join(dir, tt.name+".geojson")
			require.NoError(t, os.WriteFile(p, []byte(tt.body), 0o644))
			n, err := CountFeatures(p)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestNewManifest_NullCounts(t *testing.T) {
	two := 2
	entries := []Entry{
		{Path: "a.geojson", Features: &two},
		{Path: "b.geojson"},
	}
	m := NewManifest(precincts.MNPrecincts, entries, now)
	assert.Equal(t, 2, m.TotalFiles)
	assert.Equal(t, 2, m.TotalFeatures)
	assert.Equal(t, []string{"a.geojson", "b.geojson"}, m.FilesIndexed)
}

func TestMainExitCode(t *testing.T) {
	env := newEnv(t)
	assert.Equal(t, 0, Main(env))

	// data-out as a plain file cannot be scanned
	env = newEnv(t)
	require.NoError(t, os.WriteFile(env.Layout.DataOut(), nil, 0o644))
	assert.Equal(t, 1, Main(env))
}
