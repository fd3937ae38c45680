package domain

import (
	"context"
	"log/slog"
)

// EnrichWithGeocoding fills in the report's city from a reverse geocode when
// the upstream feed left it empty, as "Place, ST" when the region is known. A
// nil geocoder or a failed lookup returns the report unchanged.
func EnrichWithGeocoding(ctx context.Context, report HailReport, geocoder Geocoder, logger *slog.Logger) HailReport {
	if geocoder == nil || report.City != "" {
		return report
	}

	result, err := geocoder.ReverseGeocode(ctx, report.Latitude, report.Longitude)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"report_id", report.ID,
			"lat", report.Latitude,
			"lon", report.Longitude,
			"error", err,
		)
		return report
	}
	if label := result.Label(); label != "" {
		report.City = label
	}
	return report
}
