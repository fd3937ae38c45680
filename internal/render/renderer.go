// Package render runs the swath engine for one request: fetch reports, score
// them, then either grid, smooth, and contour them or draw hulls, and encode
// the result as GeoJSON.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/storm-data-hailgrid/internal/contour"
	"github.com/couchcryptid/storm-data-hailgrid/internal/domain"
	"github.com/couchcryptid/storm-data-hailgrid/internal/grid"
	"github.com/couchcryptid/storm-data-hailgrid/internal/observability"
)

// kmPerDegree approximates one degree of latitude.
const kmPerDegree = 111.0

// ReportSource supplies the reports a render works from.
type ReportSource interface {
	FetchReports(ctx context.Context, q domain.Query) ([]domain.HailReport, error)
}

// Request asks for the swath over Bounds between Since and Until. A zero time
// leaves that side open; an empty Strategy uses the renderer default.
type Request struct {
	Bounds   domain.Bounds
	Since    time.Time
	Until    time.Time
	Strategy Strategy
}

// Result is one rendered swath. Grid is nil when no grid was built.
type Result struct {
	ID         string                     `json:"id"`
	Strategy   Strategy                   `json:"strategy"`
	Bounds     domain.Bounds              `json:"bounds"`
	Reports    []domain.HailReport        `json:"reports"`
	Levels     []contour.Level            `json:"-"`
	Features   *geojson.FeatureCollection `json:"features"`
	Grid       *grid.Stats                `json:"grid,omitempty"`
	Contour    contour.Stats              `json:"contour"`
	RenderedAt time.Time                  `json:"rendered_at"`
	Duration   time.Duration              `json:"duration"`
}

// Renderer turns report queries into swath polygons. It is safe for
// concurrent use; each call works on its own grid.
type Renderer struct {
	source  ReportSource
	opts    Options
	scorer  *domain.Scorer
	logger  *slog.Logger
	metrics *observability.Metrics
	clock   clockwork.Clock
}

// New builds a Renderer. The source may be nil when only RenderReports is
// used; metrics may be nil; a nil clock uses real time.
func New(source ReportSource, opts Options, logger *slog.Logger, metrics *observability.Metrics, clk clockwork.Clock) (*Renderer, error) {
	if opts.Strategy == "" {
		opts.Strategy = StrategyGrid
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("render options: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Renderer{
		source:  source,
		opts:    opts,
		scorer:  domain.NewScorer(opts.Scorer, clk),
		logger:  logger,
		metrics: metrics,
		clock:   clk,
	}, nil
}

// Options returns the configuration the renderer was built with.
func (r *Renderer) Options() Options {
	return r.opts
}

// Render fetches reports for req from the source and renders them.
func (r *Renderer) Render(ctx context.Context, req Request) (*Result, error) {
	if r.source == nil {
		return nil, errors.New("render: no report source configured")
	}
	if err := req.Bounds.Validate(); err != nil {
		return nil, err
	}
	reports, err := r.source.FetchReports(ctx, domain.Query{Bounds: req.Bounds, Since: req.Since, Until: req.Until})
	if err != nil {
		r.observe(req.Strategy, "error", 0, time.Now())
		return nil, fmt.Errorf("fetch reports: %w", err)
	}
	return r.RenderReports(ctx, reports, req)
}

// Reports returns the scored reports a render of q would draw, without
// building any geometry.
func (r *Renderer) Reports(ctx context.Context, q domain.Query) ([]domain.HailReport, error) {
	if r.source == nil {
		return nil, errors.New("render: no report source configured")
	}
	if err := q.Bounds.Validate(); err != nil {
		return nil, err
	}
	reports, err := r.source.FetchReports(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("fetch reports: %w", err)
	}
	return r.prepare(reports, q), nil
}

// RenderReports renders reports already in hand. When req.Bounds is the zero
// box it is derived from the reports, padded so their influence fits.
func (r *Renderer) RenderReports(ctx context.Context, reports []domain.HailReport, req Request) (*Result, error) {
	start := time.Now()

	strategy := req.Strategy
	if strategy == "" {
		strategy = r.opts.Strategy
	}
	if _, err := ParseStrategy(string(strategy)); err != nil {
		return nil, err
	}

	bounds := req.Bounds
	if bounds == (domain.Bounds{}) {
		b, ok := domain.BoundsOf(reports)
		if !ok {
			return nil, fmt.Errorf("%w: no reports to derive bounds from", domain.ErrInvalidBounds)
		}
		bounds = b.Pad(r.margin())
	}
	if err := bounds.Validate(); err != nil {
		return nil, err
	}

	q := domain.Query{Bounds: bounds, Since: req.Since, Until: req.Until}
	selected := r.prepare(reports, q)

	if strategy == StrategyAuto {
		strategy = StrategyGrid
		if len(selected) < r.opts.AutoHullBelow {
			strategy = StrategyHull
		}
	}

	res := &Result{
		ID:         uuid.NewString(),
		Strategy:   strategy,
		Bounds:     bounds,
		Reports:    selected,
		RenderedAt: r.clock.Now().UTC(),
	}

	var err error
	switch strategy {
	case StrategyHull:
		res.Levels = contour.Hulls(selected, r.opts.Palette, r.opts.Hull)
	default:
		err = r.renderGrid(ctx, res)
	}
	if err != nil {
		r.observe(strategy, "error", len(selected), start)
		return nil, err
	}

	res.Levels = contour.Simplify(res.Levels, r.opts.Simplify)
	res.Features = contour.FeatureCollection(res.Levels)
	res.Duration = time.Since(start)
	r.observe(strategy, "success", len(selected), start)

	r.logger.Info("swath rendered",
		"render_id", res.ID,
		"strategy", string(strategy),
		"reports", len(selected),
		"levels", len(res.Levels),
		"duration", res.Duration,
	)
	return res, nil
}

func (r *Renderer) renderGrid(ctx context.Context, res *Result) error {
	w, h, err := grid.Dimensions(res.Bounds, r.opts.Grid.Resolution)
	if err != nil {
		return err
	}
	if limit := r.opts.Grid.MaxCells; limit > 0 && w*h > limit {
		return fmt.Errorf("%w: %dx%d exceeds %d cells", grid.ErrGridTooLarge, w, h, limit)
	}
	if len(res.Reports) == 0 {
		return nil
	}

	g, err := grid.Interpolate(res.Reports, res.Bounds, r.opts.Grid)
	if err != nil {
		return fmt.Errorf("interpolate: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	g = grid.Smooth(g, r.opts.Sigma)
	if err := ctx.Err(); err != nil {
		return err
	}

	stats := g.Stats()
	res.Grid = &stats
	res.Levels, res.Contour = contour.Extract(g, r.opts.Palette)

	if res.Contour.Unclosed > 0 {
		r.logger.Warn("dropped unclosed contour chains",
			"render_id", res.ID,
			"unclosed", res.Contour.Unclosed,
		)
		if r.metrics != nil {
			r.metrics.ContourUnclosed.Add(float64(res.Contour.Unclosed))
		}
	}
	return nil
}

// prepare keeps reports matching q, scores them against each other, and drops
// those under the confidence floor.
func (r *Renderer) prepare(reports []domain.HailReport, q domain.Query) []domain.HailReport {
	matched := make([]domain.HailReport, 0, len(reports))
	for _, rep := range reports {
		if q.Matches(rep) {
			matched = append(matched, rep)
		}
	}
	scored := r.scorer.ScoreAll(matched)
	if r.opts.MinConfidence <= 0 {
		return scored
	}
	kept := scored[:0]
	for _, rep := range scored {
		if rep.Confidence >= r.opts.MinConfidence {
			kept = append(kept, rep)
		}
	}
	return kept
}

// margin is how far, in degrees, a report's polygons can reach past it.
func (r *Renderer) margin() float64 {
	gridReach := float64(r.opts.Grid.InfluenceRadius) * r.opts.Grid.Resolution
	hullReach := (r.opts.Hull.CircleRadiusKm + r.opts.Hull.BufferKm) / kmPerDegree
	return max(gridReach, hullReach) + r.opts.Grid.Resolution
}

func (r *Renderer) observe(strategy Strategy, outcome string, reports int, start time.Time) {
	if r.metrics == nil {
		return
	}
	if strategy == "" {
		strategy = r.opts.Strategy
	}
	r.metrics.RendersTotal.WithLabelValues(string(strategy), outcome).Inc()
	if outcome == "success" {
		r.metrics.RenderDuration.WithLabelValues(string(strategy)).Observe(time.Since(start).Seconds())
		r.metrics.RenderReports.Observe(float64(reports))
	}
}
