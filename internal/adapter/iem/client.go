// Package iem reads hail reports from the Iowa Environmental Mesonet Local
// Storm Reports GeoJSON service.
package iem

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/storm-data-hailgrid/internal/domain"
)

const (
	// DefaultBaseURL is the public LSR endpoint.
	DefaultBaseURL = "https://mesonet.agron.iastate.edu/geojson/lsr.geojson"

	// defaultLookback is used when a query leaves Since open.
	defaultLookback = 24 * time.Hour

	stampLayout = "200601021504"
)

// Client implements provider.Source over the IEM LSR feed. Only hail rows are
// kept; magnitudes are reported in inches.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	clock      clockwork.Clock
}

// NewClient creates an IEM client. An empty baseURL selects DefaultBaseURL;
// a nil clock uses real time.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, clk clockwork.Clock) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		clock:      clk,
	}
}

func (c *Client) Name() string { return domain.SourceIEM }

// FetchReports requests the LSRs for the query's time range and keeps the hail
// reports inside its box.
func (c *Client) FetchReports(ctx context.Context, q domain.Query) ([]domain.HailReport, error) {
	until := q.Until
	if until.IsZero() {
		until = c.clock.Now()
	}
	since := q.Since
	if since.IsZero() {
		since = until.Add(-defaultLookback)
	}

	params := url.Values{
		"sts": {since.UTC().Format(stampLayout)},
		"ets": {until.UTC().Format(stampLayout)},
	}
	fc, err := c.doRequest(ctx, c.baseURL+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	raws := make([]domain.RawReport, 0, len(fc.Features))
	for _, f := range fc.Features {
		raw, ok := rawFromFeature(f)
		if !ok {
			continue
		}
		raws = append(raws, raw)
	}

	normalized, stats := domain.NormalizeReports(domain.SourceIEM, raws, c.logger)
	out := normalized[:0]
	for _, r := range normalized {
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	c.logger.Debug("iem reports fetched",
		"features", len(fc.Features), "hail", stats.Input, "kept", len(out), "dropped", stats.Dropped)
	return out, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (*geojson.FeatureCollection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("iem lsr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("iem API error: status %d: %s", resp.StatusCode, body)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return fc, nil
}

// rawFromFeature converts one LSR feature. Non-hail rows return false.
// Coordinates come from the point geometry, falling back to lat/lon properties.
func rawFromFeature(f *geojson.Feature) (domain.RawReport, bool) {
	props := f.Properties
	if !isHail(props.MustString("type", ""), props.MustString("typetext", "")) {
		return domain.RawReport{}, false
	}

	raw := domain.RawReport{
		City:   props.MustString("city", ""),
		Source: domain.SourceIEM,
	}
	if p, ok := f.Geometry.(orb.Point); ok {
		raw.Lon, raw.Lat = domain.Float(p.Lon()), domain.Float(p.Lat())
	} else {
		raw.Lat = number(props, "lat")
		raw.Lon = number(props, "lon")
	}
	raw.SizeIn = number(props, "magnitude")
	if ts, ok := domain.ParseTimeString(props.MustString("valid", "")); ok {
		raw.Timestamp = ts
	}
	return raw, true
}

func isHail(code, text string) bool {
	return strings.EqualFold(code, "H") || strings.EqualFold(text, "HAIL")
}

// number reads a property the service sends as either a number or a string.
func number(props geojson.Properties, key string) *float64 {
	switch v := props[key].(type) {
	case float64:
		return &v
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return &f
		}
	}
	return nil
}
