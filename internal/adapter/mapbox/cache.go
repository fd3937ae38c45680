package mapbox

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-data-hailgrid/internal/cache"
	"github.com/couchcryptid/storm-data-hailgrid/internal/domain"
	"github.com/couchcryptid/storm-data-hailgrid/internal/observability"
)

// CachedGeocoder wraps a Geocoder with an in-memory LRU cache. Hail reports
// cluster tightly, so many reports in a storm share a lookup.
type CachedGeocoder struct {
	inner   domain.Geocoder
	cache   *cache.LRU[string, domain.GeocodingResult]
	metrics *observability.Metrics
}

// NewCachedGeocoder creates a cache decorator around a geocoder. A zero ttl
// keeps entries until they are evicted.
func NewCachedGeocoder(inner domain.Geocoder, maxEntries int, ttl time.Duration, metrics *observability.Metrics, clk clockwork.Clock) *CachedGeocoder {
	return &CachedGeocoder{
		inner:   inner,
		cache:   cache.New[string, domain.GeocodingResult](maxEntries, ttl, clk),
		metrics: metrics,
	}
}

// ReverseGeocode serves from cache when it can. Keys round to 3 decimals,
// about 100 m, the same precision reports are deduplicated at.
func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	key := fmt.Sprintf("rev:%.3f,%.3f", lat, lon)
	if result, ok := c.cache.Get(key); ok {
		c.record("hit")
		return result, nil
	}
	c.record("miss")

	result, err := c.inner.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		return result, err
	}
	// Only cache non-empty results so transient "not found" responses can be retried.
	if result.PlaceName != "" {
		c.cache.Put(key, result)
	}
	return result, nil
}

func (c *CachedGeocoder) record(result string) {
	if c.metrics != nil {
		c.metrics.GeocodeCache.WithLabelValues(result).Inc()
	}
}
