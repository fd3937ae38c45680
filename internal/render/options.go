package render

import (
	"fmt"
	"strings"

	"github.com/couchcryptid/storm-data-hailgrid/internal/config"
	"github.com/couchcryptid/storm-data-hailgrid/internal/contour"
	"github.com/couchcryptid/storm-data-hailgrid/internal/domain"
	"github.com/couchcryptid/storm-data-hailgrid/internal/grid"
)

// Strategy selects how swath polygons are derived from reports.
type Strategy string

const (
	// StrategyGrid interpolates, smooths, and contours a grid.
	StrategyGrid Strategy = "grid"
	// StrategyHull buffers convex hulls of report clusters.
	StrategyHull Strategy = "hull"
	// StrategyAuto uses the hull fallback when too few reports support a grid.
	StrategyAuto Strategy = "auto"
)

// ParseStrategy accepts grid, hull, or auto, case-insensitively. An empty
// string is StrategyGrid.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyGrid:
		return StrategyGrid, nil
	case StrategyHull:
		return StrategyHull, nil
	case StrategyAuto:
		return StrategyAuto, nil
	default:
		return "", fmt.Errorf("unknown strategy %q (want grid, hull, or auto)", s)
	}
}

// Options is the complete configuration of a Renderer. Nothing is read from
// package state; two Renderers with different Options never interfere.
type Options struct {
	Grid    grid.Options
	Sigma   float64
	Palette contour.Palette
	Hull    contour.HullOptions

	Strategy Strategy
	// AutoHullBelow is the report count under which StrategyAuto draws hulls.
	AutoHullBelow int
	// MinConfidence drops scored reports below this total before gridding.
	MinConfidence float64
	// Simplify is the Douglas-Peucker tolerance in degrees; 0 disables it.
	Simplify float64

	Scorer domain.ScorerOptions
}

// DefaultOptions returns the production render configuration.
func DefaultOptions() Options {
	return Options{
		Grid:          grid.DefaultOptions(),
		Sigma:         1.0,
		Palette:       contour.DefaultPalette(),
		Hull:          contour.DefaultHullOptions(),
		Strategy:      StrategyGrid,
		AutoHullBelow: 3,
		Scorer:        domain.DefaultScorerOptions(),
	}
}

// Validate checks the fields that would otherwise fail every render.
func (o Options) Validate() error {
	if !(o.Grid.Resolution > 0) {
		return fmt.Errorf("%w: %v", grid.ErrInvalidResolution, o.Grid.Resolution)
	}
	if !(o.Sigma >= 0) {
		return fmt.Errorf("sigma must be non-negative, got %v", o.Sigma)
	}
	if !(o.MinConfidence >= 0) || o.MinConfidence > 100 {
		return fmt.Errorf("min confidence must be within [0, 100], got %v", o.MinConfidence)
	}
	if !(o.Simplify >= 0) {
		return fmt.Errorf("simplify tolerance must be non-negative, got %v", o.Simplify)
	}
	if _, err := ParseStrategy(string(o.Strategy)); err != nil {
		return err
	}
	return o.Palette.Validate()
}

// FromConfig builds Options from service configuration. A palette file, when
// set, supplies the contour levels; otherwise the default palette is cut to
// the configured thresholds.
func FromConfig(cfg *config.Config) (Options, error) {
	opts := DefaultOptions()
	opts.Grid = grid.Options{
		Resolution:      cfg.GridResolution,
		InfluenceRadius: cfg.InfluenceRadius,
		MaxCells:        cfg.MaxGridCells,
	}
	opts.Sigma = cfg.SmoothSigma
	opts.AutoHullBelow = cfg.AutoHullBelow
	opts.MinConfidence = cfg.MinConfidence
	opts.Simplify = cfg.SimplifyTolerance

	strategy, err := ParseStrategy(cfg.Strategy)
	if err != nil {
		return Options{}, err
	}
	opts.Strategy = strategy

	if cfg.PaletteFile != "" {
		palette, err := contour.LoadPalette(cfg.PaletteFile)
		if err != nil {
			return Options{}, err
		}
		opts.Palette = palette
	} else {
		opts.Palette = contour.DefaultPalette().WithThresholds(cfg.ContourThresholds)
	}
	return opts, opts.Validate()
}
