package domain

import (
	"math"
	"time"

	"github.com/jonboulle/clockwork"
)

// ScorerOptions tunes the confidence heuristic.
type ScorerOptions struct {
	// NeighborRadius is the corroboration radius in degrees (0.1° ≈ 10 mi).
	NeighborRadius float64
	// DensityPerNeighbor is the bonus for each corroborating report.
	DensityPerNeighbor float64
	// MaxDensityBonus caps the density bonus.
	MaxDensityBonus float64
	// RecencyWindow is the age at which the recency weight reaches its floor.
	RecencyWindow time.Duration
	// RecencyFloor is the smallest recency weight, in (0, 1].
	RecencyFloor float64
	// MinConfidence is the lowest total score a report can receive.
	MinConfidence float64
}

// DefaultScorerOptions returns the production tuning.
func DefaultScorerOptions() ScorerOptions {
	return ScorerOptions{
		NeighborRadius:     0.1,
		DensityPerNeighbor: 5,
		MaxDensityBonus:    20,
		RecencyWindow:      24 * time.Hour,
		RecencyFloor:       0.5,
		MinConfidence:      10,
	}
}

// Scorer computes confidence factors for hail reports. It holds no state
// beyond its options and clock, so one Scorer may serve concurrent callers.
type Scorer struct {
	opts  ScorerOptions
	clock clockwork.Clock
}

// NewScorer builds a Scorer. A nil clock uses the package clock.
func NewScorer(opts ScorerOptions, clk clockwork.Clock) *Scorer {
	if clk == nil {
		clk = clock
	}
	return &Scorer{opts: sanitizeScorerOptions(opts), clock: clk}
}

func sanitizeScorerOptions(o ScorerOptions) ScorerOptions {
	d := DefaultScorerOptions()
	if !(o.NeighborRadius > 0) {
		o.NeighborRadius = d.NeighborRadius
	}
	if !(o.DensityPerNeighbor >= 0) {
		o.DensityPerNeighbor = d.DensityPerNeighbor
	}
	if !(o.MaxDensityBonus >= 0) {
		o.MaxDensityBonus = d.MaxDensityBonus
	}
	if o.RecencyWindow <= 0 {
		o.RecencyWindow = d.RecencyWindow
	}
	if !(o.RecencyFloor > 0) || o.RecencyFloor > 1 {
		o.RecencyFloor = d.RecencyFloor
	}
	o.MinConfidence = clamp(o.MinConfidence, 0, 100)
	return o
}

// Score computes the confidence factors of report given its candidate
// neighbors. Neighbors sharing the report's ID are ignored; an empty list
// yields a zero density term.
//
//	mesh    = clamp(baseline + sizeBonus(size), 0, 100)
//	density = min(neighbors × DensityPerNeighbor, MaxDensityBonus)
//	recency = clamp(1 − age/RecencyWindow, RecencyFloor, 1)
//	total   = clamp(mesh × recency + density, MinConfidence, 100)
func (s *Scorer) Score(report HailReport, neighbors []HailReport) ConfidenceFactors {
	base := report.BaseConfidence
	if !(base > 0) {
		base = BaselineConfidence(report.Source)
	}
	mesh := clamp(base+sizeBonus(report.Size), 0, 100)

	count := s.countNeighbors(report, neighbors)
	density := math.Min(float64(count)*s.opts.DensityPerNeighbor, s.opts.MaxDensityBonus)

	weight := s.recencyWeight(report.Timestamp)
	total := clamp(mesh*weight+density, s.opts.MinConfidence, 100)

	return ConfidenceFactors{
		MeshScore:     mesh,
		DensityScore:  density,
		RecencyScore:  weight * 100,
		TotalScore:    total,
		NeighborCount: count,
	}
}

// ScoreAll scores every report against the rest of the batch and returns new
// reports with Confidence and ConfidenceFactors set. The input is not
// modified. Neighbor search is O(n²), fine for the tens to hundreds of
// reports a render sees.
func (s *Scorer) ScoreAll(reports []HailReport) []HailReport {
	out := make([]HailReport, len(reports))
	for i, r := range reports {
		f := s.scoreAgainst(r, reports, i)
		r.Confidence = f.TotalScore
		r.ConfidenceFactors = &f
		out[i] = r
	}
	return out
}

// scoreAgainst scores reports[self] using every other entry as a neighbor.
func (s *Scorer) scoreAgainst(report HailReport, all []HailReport, self int) ConfidenceFactors {
	neighbors := make([]HailReport, 0, len(all))
	for j, n := range all {
		if j != self {
			neighbors = append(neighbors, n)
		}
	}
	return s.Score(report, neighbors)
}

func (s *Scorer) countNeighbors(report HailReport, neighbors []HailReport) int {
	r2 := s.opts.NeighborRadius * s.opts.NeighborRadius
	count := 0
	for _, n := range neighbors {
		if n.ID != "" && n.ID == report.ID {
			continue
		}
		dLat := n.Latitude - report.Latitude
		dLon := n.Longitude - report.Longitude
		if dLat*dLat+dLon*dLon <= r2 {
			count++
		}
	}
	return count
}

// recencyWeight decays linearly with age and never drops below the floor.
// Future timestamps count as brand new.
func (s *Scorer) recencyWeight(ts time.Time) float64 {
	if ts.IsZero() {
		return s.opts.RecencyFloor
	}
	age := s.clock.Since(ts)
	if age < 0 {
		age = 0
	}
	w := 1 - float64(age)/float64(s.opts.RecencyWindow)
	return clamp(w, s.opts.RecencyFloor, 1)
}

// sizeBonus maps measured size to a bonus over the baseline.
func sizeBonus(size float64) float64 {
	switch {
	case size >= 2.0:
		return 10
	case size >= 1.5:
		return 7
	case size >= 1.0:
		return 5
	default:
		return 0
	}
}
