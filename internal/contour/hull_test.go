package contour

import (
	"math/rand/v2"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-data-hailgrid/internal/domain"
)

func TestHulls_SingleReportCircle(t *testing.T) {
	opts := DefaultHullOptions()
	center := orb.Point{-97.44, 35.22}
	reports := []domain.HailReport{{Latitude: center.Lat(), Longitude: center.Lon(), Size: 1.0}}

	levels := Hulls(reports, onePalette(1), opts)

	require.Len(t, levels, 1)
	require.Len(t, levels[0].Polygons, 1)
	ring := levels[0].Polygons[0][0]

	assert.GreaterOrEqual(t, len(ring)-1, 16)
	assert.Equal(t, ring[0], ring[len(ring)-1])
	assert.Equal(t, orb.CCW, ring.Orientation())
	for _, p := range ring {
		assert.InDelta(t, opts.CircleRadiusKm*1000, geo.Distance(center, p), 1.0)
	}
	assert.True(t, planar.RingContains(ring, center))
}

func TestHulls_CircleSegmentsFloor(t *testing.T) {
	opts := DefaultHullOptions()
	opts.CircleSegments = 4

	levels := Hulls([]domain.HailReport{{Latitude: 35, Longitude: -97, Size: 2}}, onePalette(1), opts)

	require.Len(t, levels, 1)
	assert.GreaterOrEqual(t, len(levels[0].Polygons[0][0]), 17)
}

func TestHulls_TwoReportsDrawTwoCircles(t *testing.T) {
	reports := []domain.HailReport{
		{Latitude: 35.0, Longitude: -97.0, Size: 1.5},
		{Latitude: 35.1, Longitude: -97.1, Size: 1.5},
	}

	levels := Hulls(reports, onePalette(1), DefaultHullOptions())

	require.Len(t, levels, 1)
	assert.Len(t, levels[0].Polygons, 2)
	assertValidRings(t, levels)
}

func TestHulls_ClusterBecomesBufferedHull(t *testing.T) {
	reports := []domain.HailReport{
		{Latitude: 35.0, Longitude: -97.0, Size: 2.0},
		{Latitude: 35.1, Longitude: -97.0, Size: 1.75},
		{Latitude: 35.05, Longitude: -96.9, Size: 1.25},
		{Latitude: 35.05, Longitude: -97.0, Size: 1.0},
	}

	levels := Hulls(reports, onePalette(1), DefaultHullOptions())

	require.Len(t, levels, 1)
	require.Len(t, levels[0].Polygons, 1)
	ring := levels[0].Polygons[0][0]
	for _, r := range reports {
		assert.True(t, planar.RingContains(ring, orb.Point{r.Longitude, r.Latitude}))
	}
	hull := ConvexHull([]orb.Point{{-97, 35}, {-97, 35.1}, {-96.9, 35.05}})
	assert.Greater(t, planar.Area(ring), planar.Area(hull))
	assertValidRings(t, levels)
}

func TestHulls_ColinearHasArea(t *testing.T) {
	tests := []struct {
		name   string
		points []orb.Point
	}{
		{
			name:   "vertical line",
			points: []orb.Point{{-97.0, 35.0}, {-97.0, 35.05}, {-97.0, 35.1}},
		},
		{
			name:   "diagonal line",
			points: []orb.Point{{-98, 35}, {-97.99, 35.01}, {-97.98, 35.02}},
		},
		{
			name:   "road of reports",
			points: []orb.Point{{-97.6, 35.3}, {-97.57, 35.33}, {-97.54, 35.36}, {-97.51, 35.39}, {-97.48, 35.42}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reports := make([]domain.HailReport, 0, len(tt.points))
			for _, p := range tt.points {
				reports = append(reports, domain.HailReport{Latitude: p.Lat(), Longitude: p.Lon(), Size: 1.0})
			}

			levels := Hulls(reports, onePalette(1), DefaultHullOptions())

			require.Len(t, levels, 1)
			require.Len(t, levels[0].Polygons, 1)
			ring := levels[0].Polygons[0][0]
			assert.Greater(t, planar.Area(ring), 1e-6)
			for _, p := range tt.points {
				assert.True(t, planar.RingContains(ring, p), "%v outside hull", p)
			}
			assertValidRings(t, levels)
		})
	}
}

func TestHulls_RandomLinesContainEveryPoint(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for trial := 0; trial < 200; trial++ {
		start := orb.Point{-100 + rng.Float64()*5, 33 + rng.Float64()*5}
		step := orb.Point{(rng.Float64() - 0.5) * 0.05, (rng.Float64() - 0.5) * 0.05}
		n := 3 + rng.IntN(5)
		reports := make([]domain.HailReport, 0, n)
		for i := 0; i < n; i++ {
			reports = append(reports, domain.HailReport{
				Latitude:  start[1] + float64(i)*step[1],
				Longitude: start[0] + float64(i)*step[0],
				Size:      1.0,
			})
		}

		levels := Hulls(reports, onePalette(1), DefaultHullOptions())

		require.Len(t, levels, 1, "trial %d", trial)
		for _, r := range reports {
			p := orb.Point{r.Longitude, r.Latitude}
			assert.True(t, planar.MultiPolygonContains(levels[0].Polygons, p), "trial %d: %v outside", trial, p)
		}
	}
}

func TestSliver(t *testing.T) {
	tests := []struct {
		name string
		ring orb.Ring
		want bool
	}{
		{name: "diagonal rounding", ring: orb.Ring{{-98, 35}, {-97.98, 35.02}, {-97.99, 35.01 + 1e-12}, {-98, 35}}, want: true},
		{name: "nearly horizontal", ring: orb.Ring{{-98, 35}, {-97.9, 35 + 1e-7}, {-97.95, 35 + 5e-8 + 1e-13}, {-98, 35}}, want: true},
		{name: "unit square", ring: orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}, want: false},
		{name: "thin but real", ring: orb.Ring{{-98, 35}, {-97.9, 35}, {-97.95, 35.001}, {-98, 35}}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sliver(tt.ring))
		})
	}
}

func TestHulls_CumulativeBinsSortedDescending(t *testing.T) {
	reports := []domain.HailReport{
		{Latitude: 35.0, Longitude: -97.0, Size: 2.5},
		{Latitude: 36.0, Longitude: -99.0, Size: 1.0},
	}

	levels := Hulls(reports, onePalette(1, 2, 3), DefaultHullOptions())

	require.Len(t, levels, 2)
	assert.Equal(t, 2.0, levels[0].Threshold)
	assert.Len(t, levels[0].Polygons, 1)
	assert.Equal(t, 1.0, levels[1].Threshold)
	assert.Len(t, levels[1].Polygons, 2, "the 2.5 in report also counts at 1.0")
}

func TestHulls_NoReports(t *testing.T) {
	assert.Empty(t, Hulls(nil, DefaultPalette(), DefaultHullOptions()))
}

func TestConvexHull_ContainsAllPoints(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for trial := 0; trial < 20; trial++ {
		n := 3 + rng.IntN(60)
		pts := make([]orb.Point, n)
		for i := range pts {
			pts[i] = orb.Point{-98 + rng.Float64(), 35 + rng.Float64()}
		}

		hull := ConvexHull(pts)

		require.GreaterOrEqual(t, len(hull), 4)
		require.Equal(t, hull[0], hull[len(hull)-1])
		require.Equal(t, orb.CCW, hull.Orientation())
		for _, p := range pts {
			for i := 0; i+1 < len(hull); i++ {
				require.GreaterOrEqual(t, cross(hull[i], hull[i+1], p), -1e-12,
					"trial %d: point %v right of edge %d", trial, p, i)
			}
		}
	}
}

func TestConvexHull_Degenerate(t *testing.T) {
	tests := []struct {
		name string
		pts  []orb.Point
		want int
	}{
		{"empty", nil, 0},
		{"single", []orb.Point{{1, 1}}, 1},
		{"repeated", []orb.Point{{1, 1}, {1, 1}, {1, 1}}, 1},
		{"pair", []orb.Point{{1, 1}, {2, 2}}, 2},
		{"colinear", []orb.Point{{0, 0}, {1, 1}, {2, 2}, {3, 3}}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, ConvexHull(tt.pts), tt.want)
		})
	}
}

func TestConvexHull_Square(t *testing.T) {
	pts := []orb.Point{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0.5, 0.5}, {0.5, 0}}

	hull := ConvexHull(pts)

	assert.Equal(t, orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}, hull)
}

func TestBufferHull(t *testing.T) {
	hull := ConvexHull([]orb.Point{{-97, 35}, {-96.9, 35}, {-96.95, 35.1}})

	buffered := BufferHull(hull, 2)

	require.Len(t, buffered, len(hull))
	assert.Equal(t, orb.CCW, buffered.Orientation())
	assert.Greater(t, planar.Area(buffered), planar.Area(hull))
	for _, p := range hull {
		assert.True(t, planar.RingContains(buffered, p))
	}
	for i, p := range hull[:len(hull)-1] {
		assert.InDelta(t, 2000, geo.Distance(p, buffered[i]), 1.0)
	}

	assert.Equal(t, hull, BufferHull(hull, 0))
}

func TestClusterPoints(t *testing.T) {
	pts := []orb.Point{
		{0, 0}, {5, 5}, {0.2, 0}, {0.4, 0}, {5.1, 5},
	}

	clusters := ClusterPoints(pts, 0.25)

	require.Len(t, clusters, 2)
	assert.Equal(t, []orb.Point{{0, 0}, {0.2, 0}, {0.4, 0}}, clusters[0], "chained through the middle point")
	assert.Equal(t, []orb.Point{{5, 5}, {5.1, 5}}, clusters[1])
}
