package contour

import (
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"

	"github.com/couchcryptid/storm-data-hailgrid/internal/domain"
)

// HullOptions configures the point-cluster fallback.
type HullOptions struct {
	// BufferKm pushes each hull vertex away from the centroid.
	BufferKm float64 `json:"buffer_km"`
	// CircleRadiusKm is the radius drawn around clusters of one or two reports.
	CircleRadiusKm float64 `json:"circle_radius_km"`
	// CircleSegments is the vertex count of fallback circles, at least 16.
	CircleSegments int `json:"circle_segments"`
	// ClusterDistance joins reports closer than this many degrees.
	ClusterDistance float64 `json:"cluster_distance"`
}

// DefaultHullOptions returns the production fallback tuning.
func DefaultHullOptions() HullOptions {
	return HullOptions{
		BufferKm:        2,
		CircleRadiusKm:  5,
		CircleSegments:  32,
		ClusterDistance: 0.25,
	}
}

const minCircleSegments = 16

func (o HullOptions) sanitized() HullOptions {
	d := DefaultHullOptions()
	if !(o.BufferKm >= 0) {
		o.BufferKm = d.BufferKm
	}
	if !(o.CircleRadiusKm > 0) {
		o.CircleRadiusKm = d.CircleRadiusKm
	}
	if o.CircleSegments < minCircleSegments {
		o.CircleSegments = max(d.CircleSegments, minCircleSegments)
	}
	if !(o.ClusterDistance > 0) {
		o.ClusterDistance = d.ClusterDistance
	}
	return o
}

// Hulls approximates swath polygons straight from point reports. For each
// palette threshold, reports at least that size are clustered by proximity.
// Clusters of three or more reports become a buffered convex hull; one or two
// reports become a circle around each. Levels are sorted by threshold
// descending and thresholds with no reports are omitted.
//
// Unlike Extract, nothing guarantees that a higher level's polygons sit
// inside the lower level's.
func Hulls(reports []domain.HailReport, palette Palette, opts HullOptions) []Level {
	opts = opts.sanitized()

	var levels []Level
	for _, band := range palette.sorted() {
		var pts []orb.Point
		for _, r := range reports {
			if r.Size >= band.Threshold && finitePoint(orb.Point{r.Longitude, r.Latitude}) {
				pts = append(pts, orb.Point{r.Longitude, r.Latitude})
			}
		}
		if len(pts) == 0 {
			continue
		}

		var mp orb.MultiPolygon
		for _, cluster := range ClusterPoints(pts, opts.ClusterDistance) {
			mp = append(mp, clusterPolygons(cluster, opts)...)
		}
		if len(mp) > 0 {
			levels = append(levels, Level{Band: band, Polygons: mp})
		}
	}
	return levels
}

func clusterPolygons(cluster []orb.Point, opts HullOptions) []orb.Polygon {
	distinct := uniquePoints(cluster)
	if len(distinct) <= 2 {
		polys := make([]orb.Polygon, 0, len(distinct))
		for _, p := range distinct {
			polys = append(polys, orb.Polygon{Circle(p, opts.CircleRadiusKm, opts.CircleSegments)})
		}
		return polys
	}

	hull := ConvexHull(distinct)
	if len(hull) >= 4 && !sliver(hull) {
		return []orb.Polygon{{BufferHull(hull, opts.BufferKm)}}
	}

	// Colinear: sweep a disc along the segment so the result has area.
	radius := opts.BufferKm
	if radius <= 0 {
		radius = opts.CircleRadiusKm
	}
	var swept []orb.Point
	for _, p := range hull {
		c := Circle(p, radius, opts.CircleSegments)
		swept = append(swept, c[:len(c)-1]...)
	}
	return []orb.Polygon{{ConvexHull(swept)}}
}

// sliverRatio is the hull area, relative to its squared bounding-box
// diagonal, below which the points are treated as lying on one line.
const sliverRatio = 1e-9

// sliver reports whether a closed hull is too thin to buffer from its
// centroid. Points on a line that are not exactly representable leave a hull
// with rounding-error area whose centroid sits on the line.
func sliver(hull orb.Ring) bool {
	b := hull.Bound()
	w, h := b.Max[0]-b.Min[0], b.Max[1]-b.Min[1]
	return planar.Area(hull) <= sliverRatio*(w*w+h*h)
}

// ConvexHull returns the convex hull of points as a closed counter-clockwise
// ring, using a monotone chain: points are sorted by x then y, lower and upper
// chains are built with a cross-product turn test, then joined. Colinear
// points on the hull edges are dropped.
//
// When fewer than three points are distinct, or all are colinear, the result
// holds only the extreme points (one or two) and is not closed.
func ConvexHull(points []orb.Point) orb.Ring {
	pts := uniquePoints(points)
	slices.SortFunc(pts, func(a, b orb.Point) int {
		switch {
		case a[0] < b[0]:
			return -1
		case a[0] > b[0]:
			return 1
		case a[1] < b[1]:
			return -1
		case a[1] > b[1]:
			return 1
		default:
			return 0
		}
	})
	if len(pts) < 3 {
		return orb.Ring(pts)
	}

	hull := make([]orb.Point, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	// The last point repeats the first, closing the ring.
	if len(hull) < 4 {
		return orb.Ring(hull[:len(hull)-1])
	}
	return orb.Ring(hull)
}

// cross is the z component of (a→b) × (a→c); positive for a left turn.
func cross(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

// BufferHull moves every vertex of a closed hull bufferKm further from the
// hull's centroid along the centroid→vertex bearing. The result is
// counter-clockwise, star-shaped about the centroid, and contains the input
// hull. It need not be convex.
func BufferHull(hull orb.Ring, bufferKm float64) orb.Ring {
	if len(hull) < 4 || bufferKm <= 0 {
		return hull.Clone()
	}
	centroid, _ := planar.CentroidArea(hull)
	if !finitePoint(centroid) {
		return hull.Clone()
	}

	out := make(orb.Ring, 0, len(hull))
	for _, v := range hull[:len(hull)-1] {
		if samePoint(v, centroid) {
			out = append(out, v)
			continue
		}
		bearing := geo.Bearing(centroid, v)
		out = append(out, geo.PointAtBearingAndDistance(v, bearing, bufferKm*1000))
	}
	out = append(out, out[0])
	if out.Orientation() == orb.CW {
		out.Reverse()
	}
	return out
}

// Circle returns a closed counter-clockwise ring of segments vertices (at
// least 16) lying radiusKm from center.
func Circle(center orb.Point, radiusKm float64, segments int) orb.Ring {
	segments = max(segments, minCircleSegments)
	ring := make(orb.Ring, 0, segments+1)
	for i := 0; i < segments; i++ {
		// Bearings run clockwise from north, so step them backwards.
		bearing := 360 - 360*float64(i)/float64(segments)
		ring = append(ring, geo.PointAtBearingAndDistance(center, bearing, radiusKm*1000))
	}
	ring = append(ring, ring[0])
	if ring.Orientation() == orb.CW {
		ring.Reverse()
	}
	return ring
}

// ClusterPoints groups points by single linkage: two points share a cluster
// when a chain of points each within maxDist degrees of the next joins them.
// Clusters keep input order.
func ClusterPoints(points []orb.Point, maxDist float64) [][]orb.Point {
	parent := make([]int, len(points))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}

	d2 := maxDist * maxDist
	for i := range points {
		for j := i + 1; j < len(points); j++ {
			dx := points[i][0] - points[j][0]
			dy := points[i][1] - points[j][1]
			if dx*dx+dy*dy <= d2 {
				if ri, rj := find(i), find(j); ri != rj {
					parent[rj] = ri
				}
			}
		}
	}

	index := make(map[int]int)
	var clusters [][]orb.Point
	for i, p := range points {
		root := find(i)
		k, ok := index[root]
		if !ok {
			k = len(clusters)
			index[root] = k
			clusters = append(clusters, nil)
		}
		clusters[k] = append(clusters[k], p)
	}
	return clusters
}

func uniquePoints(points []orb.Point) []orb.Point {
	out := make([]orb.Point, 0, len(points))
	for _, p := range points {
		dup := false
		for _, q := range out {
			if samePoint(p, q) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, p)
		}
	}
	return out
}
