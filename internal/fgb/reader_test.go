package fgb

import (
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"

	"github.com/tingold/mn-precincts/internal/layer"
)

func TestNewReaderFromData_Invalid(t *testing.T) {
	_, err := NewReaderFromData([]byte("not a flatgeobuf"))
	if err == nil {
		t.Error("expected error for invalid data")
	}
}

func TestNewReaderFromData_Empty(t *testing.T) {
	_, err := NewReaderFromData([]byte{})
	if err == nil {
		t.Error("expected error for empty data")
	}
}

func TestNewReader_NonExistent(t *testing.T) {
	_, err := NewReader("/nonexistent/path/to/file.fgb")
	if err == nil {
		t.Error("expected error for non-existent file")
	}
}

func writeTemp(t *testing.T, c *layer.Collection, opts *Options) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.fgb")
	if err := WriteFile(path, c, opts); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestRoundTrip_Layer(t *testing.T) {
	in := testCollection()
	path := writeTemp(t, in, DefaultOptions())

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer func() { _ = reader.Close() }()

	header := reader.Header()
	if header == nil {
		t.Fatal("expected non-nil header")
	}
	if !header.HasIndex {
		t.Error("expected HasIndex to be true")
	}

	out, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(out.Features) != len(in.Features) {
		t.Fatalf("expected %d features, got %d", len(in.Features), len(out.Features))
	}

	for i, col := range in.Columns {
		if out.Columns[i] != col {
			t.Errorf("column %d: expected %q, got %q", i, col, out.Columns[i])
		}
	}

	// the index may reorder features, so match them by id
	byID := make(map[string]*layer.Feature)
	for _, f := range out.Features {
		id, _ := f.Properties["precinct_id"].(string)
		byID[id] = f
	}
	for _, want := range in.Features {
		id := want.Properties["precinct_id"].(string)
		got, ok := byID[id]
		if !ok {
			t.Errorf("feature %q missing", id)
			continue
		}
		if got.Properties["precinct_name"] != want.Properties["precinct_name"] {
			t.Errorf("feature %q: expected name %v, got %v", id, want.Properties["precinct_name"], got.Properties["precinct_name"])
		}
		if got.Properties["registered"] != int64(want.Properties["registered"].(float64)) {
			t.Errorf("feature %q: expected registered %v, got %v", id, want.Properties["registered"], got.Properties["registered"])
		}
		if !orb.Equal(got.Geometry, want.Geometry) {
			t.Errorf("feature %q: geometry mismatch: %v", id, got.Geometry)
		}
	}
}

func TestRoundTrip_Holes(t *testing.T) {
	poly := orb.Polygon{
		{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
		{{2, 2}, {8, 2}, {8, 8}, {2, 8}, {2, 2}},
	}
	c := &layer.Collection{Features: []*layer.Feature{layer.NewFeature(orb.MultiPolygon{poly, square(20, 20, 1)})}}

	reader, err := NewReader(writeTemp(t, c, nil))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer func() { _ = reader.Close() }()

	out, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(out.Features) != 1 {
		t.Fatalf("expected 1 feature, got %d", len(out.Features))
	}
	mp, ok := out.Features[0].Geometry.(orb.MultiPolygon)
	if !ok {
		t.Fatalf("expected MultiPolygon, got %T", out.Features[0].Geometry)
	}
	if len(mp) != 2 || len(mp[0]) != 2 {
		t.Errorf("expected 2 polygons with the first holding a hole, got %v", mp)
	}
}

func TestReader_Close(t *testing.T) {
	reader, err := NewReader(writeTemp(t, testCollection(), nil))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	if err := reader.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestHeader_ColumnInfo(t *testing.T) {
	c := &layer.Collection{Columns: []string{"name", "value", "active", "score"}}
	f := layer.NewFeature(square(0, 0, 1))
	f.Properties = map[string]any{
		"name":   "test",
		"value":  float64(42),
		"active": true,
		"score":  3.14,
	}
	c.Features = append(c.Features, f)

	reader, err := NewReader(writeTemp(t, c, nil))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer func() { _ = reader.Close() }()

	header := reader.Header()
	if header == nil {
		t.Fatal("expected non-nil header")
	}
	if len(header.Columns) != 4 {
		t.Fatalf("expected 4 columns, got %d", len(header.Columns))
	}

	expected := []ColumnInfo{
		{Name: "name", Type: "String", Nullable: true},
		{Name: "value", Type: "Long", Nullable: true},
		{Name: "active", Type: "Bool", Nullable: true},
		{Name: "score", Type: "Double", Nullable: true},
	}
	for i, want := range expected {
		if header.Columns[i] != want {
			t.Errorf("column %d: expected %+v, got %+v", i, want, header.Columns[i])
		}
	}
}
