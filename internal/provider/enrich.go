package provider

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/storm-data-hailgrid/internal/domain"
)

// GeocodedSource fills empty City fields by reverse geocoding each report.
// Geocoding failures leave the city empty and never fail the fetch.
type GeocodedSource struct {
	inner    Source
	geocoder domain.Geocoder
	logger   *slog.Logger
}

// NewGeocodedSource wraps inner. A nil geocoder makes it a pass-through.
func NewGeocodedSource(inner Source, geocoder domain.Geocoder, logger *slog.Logger) *GeocodedSource {
	return &GeocodedSource{inner: inner, geocoder: geocoder, logger: logger}
}

func (g *GeocodedSource) Name() string { return g.inner.Name() }

func (g *GeocodedSource) FetchReports(ctx context.Context, q domain.Query) ([]domain.HailReport, error) {
	reports, err := g.inner.FetchReports(ctx, q)
	if err != nil || g.geocoder == nil {
		return reports, err
	}
	out := make([]domain.HailReport, len(reports))
	for i, r := range reports {
		out[i] = domain.EnrichWithGeocoding(ctx, r, g.geocoder, g.logger)
	}
	return out, nil
}
