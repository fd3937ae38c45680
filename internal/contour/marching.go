package contour

import (
	"math"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/couchcryptid/storm-data-hailgrid/internal/grid"
)

// Level holds the polygons enclosing hail of at least Threshold inches.
type Level struct {
	Band
	Polygons orb.MultiPolygon
}

// Stats counts what contour extraction produced and discarded.
type Stats struct {
	Levels     int `json:"levels"`
	Polygons   int `json:"polygons"`
	Holes      int `json:"holes"`
	Unclosed   int `json:"unclosed"`
	Degenerate int `json:"degenerate"`
}

func (s *Stats) add(o Stats) {
	s.Levels += o.Levels
	s.Polygons += o.Polygons
	s.Holes += o.Holes
	s.Unclosed += o.Unclosed
	s.Degenerate += o.Degenerate
}

// Extract traces iso-lines of g at every palette threshold with marching
// squares and returns one Level per threshold that produced polygons, sorted
// by threshold descending. An all-zero grid yields no levels.
//
// The grid is treated as padded with a ring of zero cells, so every region
// touching the bounds is closed along them. Exterior rings wind
// counter-clockwise and holes clockwise. Chains that fail to close are counted
// in Stats.Unclosed and dropped. Cost is O(cells) per threshold.
func Extract(g *grid.Grid, palette Palette) ([]Level, Stats) {
	var stats Stats
	if g == nil {
		return nil, stats
	}
	peak := g.Max()

	var levels []Level
	for _, band := range palette.sorted() {
		if !(band.Threshold > 0) || band.Threshold > peak {
			continue
		}
		polys, s := traceThreshold(g, band.Threshold)
		stats.add(s)
		if len(polys) == 0 {
			continue
		}
		levels = append(levels, Level{Band: band, Polygons: polys})
		stats.Levels++
	}
	return levels, stats
}

// edgeKey names the lattice edge a crossing lies on. A horizontal edge joins
// (row, col) and (row, col+1); a vertical edge joins (row, col) and (row+1, col).
type edgeKey struct {
	vertical bool
	row, col int
}

type segment struct {
	from, to edgeKey
}

type crossing struct {
	key  edgeKey
	exit bool
}

type tracer struct {
	g         *grid.Grid
	threshold float64
}

func (tr *tracer) inside(row, col int) bool {
	return tr.g.At(row, col) >= tr.threshold
}

// segments emits directed segments with the inside region on their left.
//
// Each square's sides are walked counter-clockwise (bottom, right, top, left).
// A crossing where the walk leaves the inside region is an exit, and every
// segment runs from an exit to an entry. With two crossings (14 of the 16
// corner configurations) the pairing is forced. The two saddles, 5 and 10,
// have four crossings: each exit pairs with the following entry when the
// square's centre value is inside, which joins the diagonal corners, and with
// the preceding entry otherwise, which isolates them.
func (tr *tracer) segments() []segment {
	g := tr.g
	var segs []segment
	for row := -1; row < g.Height; row++ {
		for col := -1; col < g.Width; col++ {
			bl, br := tr.inside(row, col), tr.inside(row, col+1)
			trr, tl := tr.inside(row+1, col+1), tr.inside(row+1, col)
			if bl == br && br == trr && trr == tl {
				continue
			}

			sides := [4]struct {
				key        edgeKey
				start, end bool
			}{
				{edgeKey{false, row, col}, bl, br},
				{edgeKey{true, row, col + 1}, br, trr},
				{edgeKey{false, row + 1, col}, trr, tl},
				{edgeKey{true, row, col}, tl, bl},
			}
			var cross [4]crossing
			n := 0
			for _, s := range sides {
				if s.start != s.end {
					cross[n] = crossing{key: s.key, exit: s.start}
					n++
				}
			}

			centre := (g.At(row, col) + g.At(row, col+1) + g.At(row+1, col+1) + g.At(row+1, col)) / 4
			joined := centre >= tr.threshold
			for k := 0; k < n; k++ {
				if !cross[k].exit {
					continue
				}
				partner := cross[(k+n-1)%n]
				if joined {
					partner = cross[(k+1)%n]
				}
				segs = append(segs, segment{from: cross[k].key, to: partner.key})
			}
		}
	}
	return segs
}

// point places a crossing on its edge by linear interpolation, clamped to
// the grid bounds.
func (tr *tracer) point(k edgeKey) orb.Point {
	g := tr.g
	r2, c2 := k.row, k.col+1
	if k.vertical {
		r2, c2 = k.row+1, k.col
	}
	va, vb := g.At(k.row, k.col), g.At(r2, c2)

	f := 0.5
	if vb != va {
		f = (tr.threshold - va) / (vb - va)
	}
	f = math.Max(0, math.Min(1, f))

	latA := g.Bounds.South + float64(k.row)*g.Resolution
	lonA := g.Bounds.West + float64(k.col)*g.Resolution
	latB := g.Bounds.South + float64(r2)*g.Resolution
	lonB := g.Bounds.West + float64(c2)*g.Resolution

	lat := latA + f*(latB-latA)
	lon := lonA + f*(lonB-lonA)
	lat = math.Max(g.Bounds.South, math.Min(g.Bounds.North, lat))
	lon = math.Max(g.Bounds.West, math.Min(g.Bounds.East, lon))
	return orb.Point{lon, lat}
}

// rings chains segments into closed rings by following shared edges.
func (tr *tracer) rings(segs []segment) (rings []orb.Ring, unclosed int) {
	byStart := make(map[edgeKey]int, len(segs))
	for i, s := range segs {
		byStart[s.from] = i
	}
	visited := make([]bool, len(segs))

	for i := range segs {
		if visited[i] {
			continue
		}
		var ring orb.Ring
		closed := false
		for j := i; ; {
			visited[j] = true
			ring = append(ring, tr.point(segs[j].from))
			k, ok := byStart[segs[j].to]
			if !ok {
				break
			}
			if k == i {
				closed = true
				break
			}
			if visited[k] {
				break
			}
			j = k
		}
		if !closed {
			unclosed++
			continue
		}
		rings = append(rings, append(ring, ring[0]))
	}
	return rings, unclosed
}

func traceThreshold(g *grid.Grid, threshold float64) (orb.MultiPolygon, Stats) {
	tr := &tracer{g: g, threshold: threshold}
	raw, unclosed := tr.rings(tr.segments())
	stats := Stats{Unclosed: unclosed}

	var exteriors, holes []orb.Ring
	for _, r := range raw {
		ring, ok := cleanRing(r)
		if !ok {
			stats.Degenerate++
			continue
		}
		switch ring.Orientation() {
		case orb.CCW:
			exteriors = append(exteriors, ring)
		case orb.CW:
			holes = append(holes, ring)
		default:
			stats.Degenerate++
		}
	}

	polys, orphans := assemble(exteriors, holes)
	stats.Degenerate += orphans
	stats.Polygons = len(polys)
	for _, p := range polys {
		stats.Holes += len(p) - 1
	}
	return polys, stats
}

// cleanRing removes repeated consecutive vertices and reports whether the
// ring still has three distinct vertices.
func cleanRing(r orb.Ring) (orb.Ring, bool) {
	out := make(orb.Ring, 0, len(r))
	for _, p := range r {
		if !finitePoint(p) {
			return nil, false
		}
		if len(out) > 0 && samePoint(out[len(out)-1], p) {
			continue
		}
		out = append(out, p)
	}
	if len(out) > 1 && samePoint(out[0], out[len(out)-1]) {
		out = out[:len(out)-1]
	}
	if len(out) < 3 {
		return nil, false
	}
	return append(out, out[0]), true
}

// assemble attaches each hole to the smallest exterior containing it. Holes
// with no container are dropped and counted.
func assemble(exteriors, holes []orb.Ring) (orb.MultiPolygon, int) {
	type shell struct {
		ring  orb.Ring
		area  float64
		bound orb.Bound
		holes []orb.Ring
	}
	shells := make([]*shell, len(exteriors))
	for i, r := range exteriors {
		shells[i] = &shell{ring: r, area: planar.Area(r), bound: r.Bound()}
	}
	bySize := slices.Clone(shells)
	slices.SortStableFunc(bySize, func(a, b *shell) int {
		switch {
		case a.area < b.area:
			return -1
		case a.area > b.area:
			return 1
		default:
			return 0
		}
	})

	orphans := 0
	for _, h := range holes {
		hb := h.Bound()
		var parent *shell
		for _, s := range bySize {
			if !s.bound.Contains(hb.Min) || !s.bound.Contains(hb.Max) {
				continue
			}
			if mostlyInside(s.ring, h) {
				parent = s
				break
			}
		}
		if parent == nil {
			orphans++
			continue
		}
		parent.holes = append(parent.holes, h)
	}

	// Largest first so output is stable regardless of scan order.
	slices.SortStableFunc(shells, func(a, b *shell) int {
		switch {
		case a.area > b.area:
			return -1
		case a.area < b.area:
			return 1
		default:
			return 0
		}
	})
	mp := make(orb.MultiPolygon, 0, len(shells))
	for _, s := range shells {
		poly := orb.Polygon{s.ring}
		poly = append(poly, s.holes...)
		mp = append(mp, poly)
	}
	return mp, orphans
}

// mostlyInside reports whether more than half of inner's vertices lie in
// outer. Vertices clamped onto the bounds can touch a shell's edge.
func mostlyInside(outer, inner orb.Ring) bool {
	in := 0
	n := len(inner) - 1
	for _, p := range inner[:n] {
		if planar.RingContains(outer, p) {
			in++
		}
	}
	return in*2 > n
}

const pointEpsilon = 1e-12

func samePoint(a, b orb.Point) bool {
	return math.Abs(a[0]-b[0]) <= pointEpsilon && math.Abs(a[1]-b[1]) <= pointEpsilon
}

func finitePoint(p orb.Point) bool {
	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
