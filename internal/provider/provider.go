// Package provider fetches hail reports from an ordered list of upstream
// sources. The first source that answers with reports wins.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/couchcryptid/storm-data-hailgrid/internal/domain"
	"github.com/couchcryptid/storm-data-hailgrid/internal/observability"
)

// ErrNoData is returned when every source in a chain failed.
var ErrNoData = errors.New("no report source succeeded")

// Source is one upstream feed of normalized hail reports.
type Source interface {
	Name() string
	FetchReports(ctx context.Context, q domain.Query) ([]domain.HailReport, error)
}

// Chain tries its sources in order. It returns the first non-empty success.
// A source that errors is logged and skipped. If at least one source answered
// with no reports, the chain answers with no reports; if all of them errored
// the errors are joined under ErrNoData.
type Chain struct {
	sources []Source
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewChain builds a Chain. Metrics may be nil.
func NewChain(logger *slog.Logger, metrics *observability.Metrics, sources ...Source) *Chain {
	return &Chain{sources: sources, logger: logger, metrics: metrics}
}

// Name lists the chained source names.
func (c *Chain) Name() string {
	names := make([]string, len(c.sources))
	for i, s := range c.sources {
		names[i] = s.Name()
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

// FetchReports returns reports matching q from the first source that has any.
func (c *Chain) FetchReports(ctx context.Context, q domain.Query) ([]domain.HailReport, error) {
	if len(c.sources) == 0 {
		return nil, fmt.Errorf("%w: no sources configured", ErrNoData)
	}

	var errs []error
	answered := false
	for _, s := range c.sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		reports, err := s.FetchReports(ctx, q)
		if err != nil {
			c.record(s.Name(), "error")
			c.logger.Warn("report source failed", "source", s.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		answered = true
		if len(reports) == 0 {
			c.record(s.Name(), "empty")
			c.logger.Debug("report source returned nothing", "source", s.Name())
			continue
		}
		c.record(s.Name(), "success")
		c.logger.Debug("report source answered", "source", s.Name(), "reports", len(reports))
		return reports, nil
	}

	if answered {
		return nil, nil
	}
	return nil, errors.Join(append([]error{ErrNoData}, errs...)...)
}

func (c *Chain) record(source, outcome string) {
	if c.metrics != nil {
		c.metrics.ProviderRequests.WithLabelValues(source, outcome).Inc()
	}
}
