package domain

import "context"

// GeocodingResult is the place a geocoding provider matched to a coordinate.
type GeocodingResult struct {
	Lat              float64
	Lon              float64
	FormattedAddress string
	PlaceName        string
	// Region is the state or province code, e.g. "OK".
	Region     string
	Confidence float64 // 0.0–1.0 provider relevance
}

// Label is the place name qualified by region when one is known.
func (r GeocodingResult) Label() string {
	if r.PlaceName == "" || r.Region == "" {
		return r.PlaceName
	}
	return r.PlaceName + ", " + r.Region
}

// Geocoder resolves coordinates to place details.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (GeocodingResult, error)
}
