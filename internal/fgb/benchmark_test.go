package fgb

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"

	"github.com/paulmach/orb"

	"github.com/tingold/mn-precincts/internal/layer"
)

// generateLayer creates n random square precincts inside Minnesota's extent.
func generateLayer(r *rand.Rand, n int) *layer.Collection {
	c := &layer.Collection{
		Name:    "bench",
		Columns: []string{"precinct_id", "precinct_name", "county", "registered"},
	}
	for i := 0; i < n; i++ {
		x := -97.2 + r.Float64()*7.7
		y := 43.5 + r.Float64()*5.8
		size := 0.01 + r.Float64()*0.09
		f := layer.NewFeature(orb.MultiPolygon{{{
			{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y},
		}}})
		f.Properties["precinct_id"] = fmt.Sprintf("27%07d", i)
		f.Properties["precinct_name"] = fmt.Sprintf("Precinct %d", i)
		f.Properties["county"] = "Hennepin"
		f.Properties["registered"] = float64(r.Intn(5000))
		c.Features = append(c.Features, f)
	}
	return c
}

func BenchmarkWrite(b *testing.B) {
	for _, n := range []int{100, 1000, 4000} {
		c := generateLayer(rand.New(rand.NewSource(42)), n)
		b.Run(fmt.Sprintf("features=%d", n), func(b *testing.B) {
			b.ReportAllocs()
			var buf bytes.Buffer
			for i := 0; i < b.N; i++ {
				buf.Reset()
				if err := Write(&buf, c, nil); err != nil {
					b.Fatal(err)
				}
			}
			b.SetBytes(int64(buf.Len()))
		})
	}
}

func BenchmarkReadAll(b *testing.B) {
	var buf bytes.Buffer
	if err := Write(&buf, generateLayer(rand.New(rand.NewSource(42)), 1000), nil); err != nil {
		b.Fatal(err)
	}
	data := buf.Bytes()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r, err := NewReaderFromData(data)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := r.ReadAll(); err != nil {
			b.Fatal(err)
		}
	}
}
