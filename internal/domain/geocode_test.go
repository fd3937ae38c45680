package domain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

// --- mock geocoder ---

type mockGeocoder struct {
	result GeocodingResult
	err    error
	calls  int
}

func (m *mockGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (GeocodingResult, error) {
	m.calls++
	return m.result, m.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- tests ---

func TestEnrichWithGeocoding_NilGeocoder(t *testing.T) {
	report := HailReport{ID: "r-1", Latitude: 35.22, Longitude: -97.44}

	result := EnrichWithGeocoding(context.Background(), report, nil, discardLogger())

	assert.Empty(t, result.City)
}

func TestEnrichWithGeocoding_FillsCity(t *testing.T) {
	geo := &mockGeocoder{
		result: GeocodingResult{
			FormattedAddress: "Norman, Cleveland County, Oklahoma",
			PlaceName:        "Norman",
			Confidence:       0.98,
		},
	}
	report := HailReport{ID: "r-2", Latitude: 35.22, Longitude: -97.44}

	result := EnrichWithGeocoding(context.Background(), report, geo, discardLogger())

	assert.Equal(t, "Norman", result.City)
	assert.Equal(t, 35.22, result.Latitude)
	assert.Equal(t, 1, geo.calls)
}

func TestEnrichWithGeocoding_QualifiesWithRegion(t *testing.T) {
	geo := &mockGeocoder{result: GeocodingResult{PlaceName: "Wichita Falls", Region: "TX"}}
	report := HailReport{ID: "r-6", Latitude: 33.91, Longitude: -98.49}

	result := EnrichWithGeocoding(context.Background(), report, geo, discardLogger())

	assert.Equal(t, "Wichita Falls, TX", result.City)
}

func TestGeocodingResult_Label(t *testing.T) {
	tests := []struct {
		name   string
		result GeocodingResult
		want   string
	}{
		{name: "place and region", result: GeocodingResult{PlaceName: "Norman", Region: "OK"}, want: "Norman, OK"},
		{name: "place only", result: GeocodingResult{PlaceName: "Norman"}, want: "Norman"},
		{name: "region only", result: GeocodingResult{Region: "OK"}, want: ""},
		{name: "empty", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.result.Label())
		})
	}
}

func TestEnrichWithGeocoding_ExistingCityKept(t *testing.T) {
	geo := &mockGeocoder{result: GeocodingResult{PlaceName: "Moore"}}
	report := HailReport{ID: "r-3", Latitude: 35.33, Longitude: -97.48, City: "Oklahoma City"}

	result := EnrichWithGeocoding(context.Background(), report, geo, discardLogger())

	assert.Equal(t, "Oklahoma City", result.City)
	assert.Equal(t, 0, geo.calls)
}

func TestEnrichWithGeocoding_Error_GracefulDegradation(t *testing.T) {
	geo := &mockGeocoder{err: errors.New("rate limited")}
	report := HailReport{ID: "r-4", Latitude: 35.22, Longitude: -97.44, Size: 1.75}

	result := EnrichWithGeocoding(context.Background(), report, geo, discardLogger())

	assert.Equal(t, report, result)
	assert.Equal(t, 1, geo.calls)
}

func TestEnrichWithGeocoding_EmptyResult(t *testing.T) {
	geo := &mockGeocoder{}
	report := HailReport{ID: "r-5", Latitude: 35.22, Longitude: -97.44}

	result := EnrichWithGeocoding(context.Background(), report, geo, discardLogger())

	assert.Empty(t, result.City)
}
