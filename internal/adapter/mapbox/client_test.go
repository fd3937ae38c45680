package mapbox

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-data-hailgrid/internal/observability"
)

const (
	testToken         = "test-token"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func testClient(baseURL string, timeout time.Duration) (*Client, *observability.Metrics) {
	m := observability.NewMetricsForTesting()
	c := NewClient(testToken, timeout, m, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.baseURL = baseURL
	return c, m
}

func TestClient_ReverseGeocode_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/-97.439800,35.222600.json", r.URL.Path, "lon comes first")
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "place,locality", r.URL.Query().Get("types"))
		assert.Equal(t, testToken, r.URL.Query().Get("access_token"))

		resp := response{
			Features: []feature{{
				Center:    []float64{-97.4395, 35.2226},
				PlaceName: "Norman, Oklahoma, United States",
				Text:      "Norman",
				Relevance: 0.98,
				Context: []contextEntry{
					{ID: "district.1234", Text: "Cleveland County"},
					{ID: "region.9164", ShortCode: "US-OK", Text: "Oklahoma"},
					{ID: "country.8940", ShortCode: "us", Text: "United States"},
				},
			}},
		}
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c, m := testClient(srv.URL, 5*time.Second)
	result, err := c.ReverseGeocode(context.Background(), 35.2226, -97.4398)
	require.NoError(t, err)

	assert.Equal(t, "Norman, Oklahoma, United States", result.FormattedAddress)
	assert.Equal(t, "Norman", result.PlaceName)
	assert.Equal(t, "OK", result.Region)
	assert.Equal(t, 0.98, result.Confidence)
	assert.Equal(t, 35.2226, result.Lat)
	assert.Equal(t, -97.4395, result.Lon)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.GeocodeRequests.WithLabelValues("success")), 0)
}

func TestClient_ReverseGeocode_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(response{Features: []feature{}}))
	}))
	defer srv.Close()

	c, m := testClient(srv.URL, 5*time.Second)
	result, err := c.ReverseGeocode(context.Background(), 0.5, -150)
	require.NoError(t, err)
	assert.Empty(t, result.PlaceName)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.GeocodeRequests.WithLabelValues("empty")), 0)
}

func TestClient_ReverseGeocode_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Not Authorized"}`))
	}))
	defer srv.Close()

	c, m := testClient(srv.URL, 5*time.Second)
	_, err := c.ReverseGeocode(context.Background(), 35.2, -97.4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.GeocodeRequests.WithLabelValues("error")), 0)
}

func TestClient_ReverseGeocode_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, _ := testClient(srv.URL, 50*time.Millisecond)
	_, err := c.ReverseGeocode(context.Background(), 35.2, -97.4)
	require.Error(t, err)
}

func TestClient_ReverseGeocode_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"features": [`))
	}))
	defer srv.Close()

	c, _ := testClient(srv.URL, 5*time.Second)
	_, err := c.ReverseGeocode(context.Background(), 35.2, -97.4)
	require.ErrorContains(t, err, "decode response")
}

func TestFeature_Region(t *testing.T) {
	tests := []struct {
		name    string
		context []contextEntry
		want    string
	}{
		{name: "short code", context: []contextEntry{{ID: "region.1", ShortCode: "US-TX", Text: "Texas"}}, want: "TX"},
		{name: "no short code", context: []contextEntry{{ID: "region.2", Text: "Oklahoma"}}, want: "Oklahoma"},
		{name: "no region", context: []contextEntry{{ID: "country.3", ShortCode: "us", Text: "United States"}}, want: ""},
		{name: "no context", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, feature{Context: tt.context}.region())
		})
	}
}
