package provider

import (
	"context"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-data-hailgrid/internal/cache"
	"github.com/couchcryptid/storm-data-hailgrid/internal/domain"
	"github.com/couchcryptid/storm-data-hailgrid/internal/observability"
)

// CachedSource memoizes another source by query. Empty answers and errors
// are not cached so the next request retries upstream.
type CachedSource struct {
	inner   Source
	cache   *cache.LRU[string, []domain.HailReport]
	metrics *observability.Metrics
}

// NewCachedSource wraps inner with an LRU of maxEntries queries kept for ttl.
func NewCachedSource(inner Source, maxEntries int, ttl time.Duration, metrics *observability.Metrics, clk clockwork.Clock) *CachedSource {
	return &CachedSource{
		inner:   inner,
		cache:   cache.New[string, []domain.HailReport](maxEntries, ttl, clk),
		metrics: metrics,
	}
}

// Name reports the wrapped source's name.
func (c *CachedSource) Name() string { return c.inner.Name() }

// FetchReports returns a copy of the cached answer for q when one is live.
func (c *CachedSource) FetchReports(ctx context.Context, q domain.Query) ([]domain.HailReport, error) {
	key := q.Key()
	if reports, ok := c.cache.Get(key); ok {
		c.record("hit")
		return slices.Clone(reports), nil
	}
	c.record("miss")

	reports, err := c.inner.FetchReports(ctx, q)
	if err != nil || len(reports) == 0 {
		return reports, err
	}
	c.cache.Put(key, slices.Clone(reports))
	return reports, nil
}

func (c *CachedSource) record(result string) {
	if c.metrics != nil {
		c.metrics.ProviderCache.WithLabelValues(result).Inc()
	}
}
