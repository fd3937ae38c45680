package grid

import "math"

// Smooth returns a new grid convolved with a normalized Gaussian of standard
// deviation sigma (in cells) and radius ceil(3σ). Near the edges the kernel is
// clipped to the grid and renormalized, so border cells are not darkened by
// samples that do not exist.
//
// Larger sigma removes more interpolation artifacts but pulls peaks down,
// which understates the worst hail. sigma <= 0 returns an unmodified copy.
//
// The kernel is applied as two 1-D passes, which gives the same result as the
// clipped 2-D kernel in O(cells × (2r+1)) instead of O(cells × (2r+1)²).
func Smooth(g *Grid, sigma float64) *Grid {
	if g == nil {
		return nil
	}
	out := g.Clone()
	if !(sigma > 0) || math.IsInf(sigma, 0) {
		return out
	}

	kernel := gaussianKernel(sigma, max(g.Width, g.Height))
	radius := len(kernel) / 2

	tmp := make([]float64, g.Width*g.Height)

	// Horizontal pass.
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			var sum, norm float64
			for k := -radius; k <= radius; k++ {
				x := col + k
				if x < 0 || x >= g.Width {
					continue
				}
				w := kernel[k+radius]
				sum += w * g.Cells[row][x].Value
				norm += w
			}
			tmp[row*g.Width+col] = sum / norm
		}
	}

	// Vertical pass.
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			var sum, norm float64
			for k := -radius; k <= radius; k++ {
				y := row + k
				if y < 0 || y >= g.Height {
					continue
				}
				w := kernel[k+radius]
				sum += w * tmp[y*g.Width+col]
				norm += w
			}
			out.Cells[row][col].Value = math.Max(0, sum/norm)
		}
	}
	return out
}

// gaussianKernel returns 2r+1 weights summing to 1, r = ceil(3σ). Taps past
// limit would never land on the grid and are not generated.
func gaussianKernel(sigma float64, limit int) []float64 {
	radius := int(math.Min(math.Ceil(3*sigma), float64(limit)))
	kernel := make([]float64, 2*radius+1)
	var total float64
	for i := range kernel {
		x := float64(i - radius)
		kernel[i] = math.Exp(-(x * x) / (2 * sigma * sigma))
		total += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= total
	}
	return kernel
}
