package grid

import (
	"math"

	"github.com/couchcryptid/storm-data-hailgrid/internal/domain"
)

// Options configures Interpolate.
type Options struct {
	// Resolution is the cell size in degrees.
	Resolution float64
	// InfluenceRadius is how far, in cells, a report reaches.
	InfluenceRadius int
	// MaxCells caps Width*Height; zero or less disables the cap.
	MaxCells int
}

// DefaultOptions returns roughly 1 km cells with a 10 cell reach.
func DefaultOptions() Options {
	return Options{
		Resolution:      0.01,
		InfluenceRadius: 10,
		MaxCells:        4_000_000,
	}
}

// Interpolate spreads each report's size over the cells within
// InfluenceRadius using inverse-distance weights (1/d², d in cells, 1 at the
// report's own cell). Cells keep the maximum contribution, never the sum, so
// a cluster of small reports cannot outgrow the largest one.
//
// Reports outside bounds, or with a non-positive or non-finite size, are
// ignored. With no usable reports the grid is all zero. Cost is
// O(reports × (2R+1)²).
func Interpolate(reports []domain.HailReport, bounds domain.Bounds, opts Options) (*Grid, error) {
	g, err := New(bounds, opts.Resolution, opts.MaxCells)
	if err != nil {
		return nil, err
	}

	radius := opts.InfluenceRadius
	if radius <= 0 {
		radius = DefaultOptions().InfluenceRadius
	}
	r2 := radius * radius

	for _, r := range reports {
		if !(r.Size > 0) || math.IsInf(r.Size, 0) {
			continue
		}
		row, col, ok := g.CellOf(r.Latitude, r.Longitude)
		if !ok {
			continue
		}

		for dr := -radius; dr <= radius; dr++ {
			y := row + dr
			if y < 0 || y >= g.Height {
				continue
			}
			for dc := -radius; dc <= radius; dc++ {
				x := col + dc
				if x < 0 || x >= g.Width {
					continue
				}
				d2 := dr*dr + dc*dc
				if d2 > r2 {
					continue
				}
				weight := 1.0
				if d2 > 0 {
					weight = 1 / float64(d2)
				}
				if v := r.Size * weight; v > g.Cells[y][x].Value {
					g.Cells[y][x].Value = v
				}
			}
		}
	}
	return g, nil
}
