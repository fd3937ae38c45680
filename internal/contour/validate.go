package contour

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Problem describes one geometry defect found by Check.
type Problem struct {
	Level   float64 `json:"level"`
	Polygon int     `json:"polygon"`
	Ring    int     `json:"ring"`
	Message string  `json:"message"`
}

func (p Problem) String() string {
	return fmt.Sprintf("level %.2f polygon %d ring %d: %s", p.Level, p.Polygon, p.Ring, p.Message)
}

// Check verifies that every ring is closed, finite, and has three distinct
// vertices, that exteriors wind counter-clockwise and holes clockwise, and
// that levels are sorted by threshold descending.
func Check(levels []Level) []Problem {
	var problems []Problem
	for i, l := range levels {
		if i > 0 && l.Threshold >= levels[i-1].Threshold {
			problems = append(problems, Problem{Level: l.Threshold, Polygon: -1, Ring: -1,
				Message: fmt.Sprintf("not sorted descending after %.2f", levels[i-1].Threshold)})
		}
		for pi, poly := range l.Polygons {
			for ri, ring := range poly {
				if msg := checkRing(ring, ri == 0); msg != "" {
					problems = append(problems, Problem{Level: l.Threshold, Polygon: pi, Ring: ri, Message: msg})
				}
			}
		}
	}
	return problems
}

func checkRing(r orb.Ring, exterior bool) string {
	if len(r) < 4 {
		return fmt.Sprintf("only %d coordinates", len(r))
	}
	for _, p := range r {
		if !finitePoint(p) {
			return "non-finite coordinate"
		}
	}
	if r[0] != r[len(r)-1] {
		return "not closed"
	}
	if len(uniquePoints(r[:len(r)-1])) < 3 {
		return "fewer than 3 distinct vertices"
	}
	switch o := r.Orientation(); {
	case o == 0:
		return "zero area"
	case exterior && o != orb.CCW:
		return "exterior ring is clockwise"
	case !exterior && o != orb.CW:
		return "hole is counter-clockwise"
	}
	return ""
}

// Nesting returns the fraction of each level's polygon vertices that fall
// inside the next lower level, keyed by threshold. Grid contours should score
// 1; hull output may not.
func Nesting(levels []Level) map[float64]float64 {
	out := make(map[float64]float64)
	for i := 0; i+1 < len(levels); i++ {
		hi, lo := levels[i], levels[i+1]
		total, inside := 0, 0
		for _, poly := range hi.Polygons {
			if len(poly) == 0 {
				continue
			}
			ext := poly[0]
			for _, p := range ext[:max(len(ext)-1, 0)] {
				total++
				if planar.MultiPolygonContains(lo.Polygons, p) || onBoundary(lo.Polygons, p) {
					inside++
				}
			}
		}
		if total > 0 {
			out[hi.Threshold] = float64(inside) / float64(total)
		}
	}
	return out
}

// onBoundary reports whether p coincides with a vertex of mp. Contours traced
// at different thresholds can share vertices clamped onto the grid bounds.
func onBoundary(mp orb.MultiPolygon, p orb.Point) bool {
	for _, poly := range mp {
		for _, ring := range poly {
			for _, q := range ring {
				if samePoint(p, q) {
					return true
				}
			}
		}
	}
	return false
}
