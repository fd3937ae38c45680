// Package grid turns scattered hail reports into a regular lat/lon lattice of
// estimated hail sizes and smooths it.
//
// Cells are addressed [row][col] with row 0 at the southern edge and col 0 at
// the western edge, so a cell's coordinates are origin + index*resolution.
package grid

import (
	"errors"
	"fmt"
	"math"

	"github.com/couchcryptid/storm-data-hailgrid/internal/domain"
)

// Errors returned when a grid cannot be built.
var (
	ErrInvalidBounds     = domain.ErrInvalidBounds
	ErrInvalidResolution = errors.New("invalid grid resolution")
	ErrGridTooLarge      = errors.New("grid too large")
)

// indexEpsilon absorbs float error in (coord-origin)/resolution so that a
// coordinate lying on a cell line is not pushed into the neighbouring cell.
const indexEpsilon = 1e-9

// GridPoint is one lattice cell. Value is the estimated hail size in inches
// and is never negative.
type GridPoint struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Value float64 `json:"value"`
}

// Grid is a regular lattice over Bounds.
type Grid struct {
	Bounds     domain.Bounds
	Resolution float64
	Width      int
	Height     int
	Cells      [][]GridPoint
}

// Stats summarizes a grid for logging and API responses.
type Stats struct {
	Width   int     `json:"width"`
	Height  int     `json:"height"`
	Cells   int     `json:"cells"`
	NonZero int     `json:"non_zero"`
	Max     float64 `json:"max"`
}

// Dimensions returns the column and row counts for bounds at resolution:
// ceil((east-west)/res) by ceil((north-south)/res), each at least 1.
func Dimensions(bounds domain.Bounds, resolution float64) (width, height int, err error) {
	if err := bounds.Validate(); err != nil {
		return 0, 0, err
	}
	if !(resolution > 0) || math.IsInf(resolution, 0) {
		return 0, 0, fmt.Errorf("%w: %v", ErrInvalidResolution, resolution)
	}
	w := math.Ceil((bounds.East-bounds.West)/resolution - indexEpsilon)
	h := math.Ceil((bounds.North-bounds.South)/resolution - indexEpsilon)
	if w > math.MaxInt32 || h > math.MaxInt32 {
		return 0, 0, fmt.Errorf("%w: %.0fx%.0f cells", ErrGridTooLarge, w, h)
	}
	return max(int(w), 1), max(int(h), 1), nil
}

// New allocates an all-zero grid. maxCells <= 0 disables the size check.
func New(bounds domain.Bounds, resolution float64, maxCells int) (*Grid, error) {
	w, h, err := Dimensions(bounds, resolution)
	if err != nil {
		return nil, err
	}
	if maxCells > 0 && w*h > maxCells {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d cells", ErrGridTooLarge, w, h, maxCells)
	}

	g := &Grid{Bounds: bounds, Resolution: resolution, Width: w, Height: h}
	g.Cells = make([][]GridPoint, h)
	backing := make([]GridPoint, w*h)
	for row := 0; row < h; row++ {
		g.Cells[row] = backing[row*w : (row+1)*w : (row+1)*w]
		lat := bounds.South + float64(row)*resolution
		for col := 0; col < w; col++ {
			g.Cells[row][col] = GridPoint{Lat: lat, Lon: bounds.West + float64(col)*resolution}
		}
	}
	return g, nil
}

// CellOf returns the cell containing (lat, lon). Points on a cell line map to
// the lower/left cell; points on the north or east edge map to the last cell.
func (g *Grid) CellOf(lat, lon float64) (row, col int, ok bool) {
	if !g.Bounds.Contains(lat, lon) {
		return 0, 0, false
	}
	row = int(math.Floor((lat-g.Bounds.South)/g.Resolution + indexEpsilon))
	col = int(math.Floor((lon-g.Bounds.West)/g.Resolution + indexEpsilon))
	return min(max(row, 0), g.Height-1), min(max(col, 0), g.Width-1), true
}

// At returns the value at (row, col), or 0 outside the grid.
func (g *Grid) At(row, col int) float64 {
	if row < 0 || row >= g.Height || col < 0 || col >= g.Width {
		return 0
	}
	return g.Cells[row][col].Value
}

// Max returns the largest cell value.
func (g *Grid) Max() float64 {
	var m float64
	for _, row := range g.Cells {
		for _, c := range row {
			m = math.Max(m, c.Value)
		}
	}
	return m
}

// NonZero counts cells with a positive value.
func (g *Grid) NonZero() int {
	n := 0
	for _, row := range g.Cells {
		for _, c := range row {
			if c.Value > 0 {
				n++
			}
		}
	}
	return n
}

// Stats returns a summary of g.
func (g *Grid) Stats() Stats {
	return Stats{
		Width:   g.Width,
		Height:  g.Height,
		Cells:   g.Width * g.Height,
		NonZero: g.NonZero(),
		Max:     g.Max(),
	}
}

// Clone returns a deep copy of g.
func (g *Grid) Clone() *Grid {
	out := &Grid{Bounds: g.Bounds, Resolution: g.Resolution, Width: g.Width, Height: g.Height}
	out.Cells = make([][]GridPoint, g.Height)
	backing := make([]GridPoint, g.Width*g.Height)
	for row := range g.Cells {
		out.Cells[row] = backing[row*g.Width : (row+1)*g.Width : (row+1)*g.Width]
		copy(out.Cells[row], g.Cells[row])
	}
	return out
}
