package contour

import (
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square(x, y, size float64) orb.Polygon {
	return orb.Polygon{{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y}}}
}

func TestFeatureCollection(t *testing.T) {
	levels := []Level{
		{Band: Band{Threshold: 2, Color: "rgba(255, 0, 0, 0.65)", Label: "Hen Egg"}, Polygons: orb.MultiPolygon{square(0, 0, 1)}},
		{Band: Band{Threshold: 1, Color: "rgba(255, 215, 0, 0.45)", Label: "Quarter"}, Polygons: orb.MultiPolygon{square(-1, -1, 3), square(5, 5, 1)}},
		{Band: Band{Threshold: 0.75, Color: "x"}},
	}

	fc := FeatureCollection(levels)

	require.Len(t, fc.Features, 2, "levels without polygons are skipped")
	assert.Equal(t, "Polygon", fc.Features[0].Geometry.GeoJSONType())
	assert.Equal(t, "MultiPolygon", fc.Features[1].Geometry.GeoJSONType())

	props := fc.Features[0].Properties
	assert.Equal(t, 2.0, props[PropLevel])
	assert.Equal(t, "rgba(255, 0, 0, 0.65)", props[PropColor])
	assert.Equal(t, "Hen Egg", props[PropLabel])
	assert.Equal(t, "2.00 in+ hail (Hen Egg)", props[PropDescription])

	data, err := json.Marshal(fc)
	require.NoError(t, err)

	parsed, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	back := LevelsFromFeatures(parsed)
	require.Len(t, back, 2)
	assert.Equal(t, levels[0].Band.Threshold, back[0].Threshold)
	assert.Equal(t, "Quarter", back[1].Label)
	assert.Len(t, back[1].Polygons, 2)
}

func TestFeatureCollection_EmptyMarshalsEmptyArray(t *testing.T) {
	data, err := json.Marshal(FeatureCollection(nil))
	require.NoError(t, err)

	var raw struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "FeatureCollection", raw.Type)
	assert.NotNil(t, raw.Features)
	assert.Empty(t, raw.Features)
}

func TestSimplify(t *testing.T) {
	circle := Circle(orb.Point{-97, 35}, 10, 128)
	levels := []Level{{Band: Band{Threshold: 1}, Polygons: orb.MultiPolygon{{circle}}}}

	assert.Equal(t, levels, Simplify(levels, 0))

	out := Simplify(levels, 0.01)
	ring := out[0].Polygons[0][0]
	assert.Less(t, len(ring), len(circle))
	assert.GreaterOrEqual(t, len(ring), 4)
	assert.Equal(t, ring[0], ring[len(ring)-1])
	assert.Equal(t, orb.CCW, ring.Orientation())
	assert.Len(t, levels[0].Polygons[0][0], 129, "input untouched")

	// A tolerance wider than the circle would collapse it; the ring is kept.
	kept := Simplify(levels, 5)
	assert.Len(t, kept[0].Polygons[0][0], 129)
}
