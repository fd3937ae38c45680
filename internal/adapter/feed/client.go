// Package feed reads hail reports from a JSON proxy, such as the MRMS MESH
// proxy or a realtime report relay.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/storm-data-hailgrid/internal/domain"
)

// Client implements provider.Source over a JSON endpoint. The endpoint
// receives the query box and time range as parameters and answers with
// either a bare array of records or an object wrapping one under "reports",
// "data", or "features".
type Client struct {
	name       string
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a feed client. name is the source reported for records
// that do not carry their own; it selects their baseline confidence.
func NewClient(name, url string, timeout time.Duration, logger *slog.Logger) *Client {
	if name == "" {
		name = domain.SourceRealtime
	}
	return &Client{
		name:       name,
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *Client) Name() string { return c.name }

func (c *Client) FetchReports(ctx context.Context, q domain.Query) ([]domain.HailReport, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("parse feed url: %w", err)
	}
	params := u.Query()
	for k, v := range map[string]float64{
		"north": q.Bounds.North, "south": q.Bounds.South,
		"east": q.Bounds.East, "west": q.Bounds.West,
	} {
		params.Set(k, strconv.FormatFloat(v, 'f', -1, 64))
	}
	if !q.Since.IsZero() {
		params.Set("since", q.Since.UTC().Format(time.RFC3339))
	}
	if !q.Until.IsZero() {
		params.Set("until", q.Until.UTC().Format(time.RFC3339))
	}
	u.RawQuery = params.Encode()

	body, err := c.doRequest(ctx, u.String())
	if err != nil {
		return nil, err
	}
	raws, err := decodeRecords(body)
	if err != nil {
		return nil, err
	}

	normalized, stats := domain.NormalizeReports(c.name, raws, c.logger)
	out := normalized[:0]
	for _, r := range normalized {
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	c.logger.Debug("feed reports fetched", "source", c.name,
		"records", stats.Input, "kept", len(out), "dropped", stats.Dropped, "duplicates", stats.Duplicates)
	return out, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s feed request: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%s feed error: status %d: %s", c.name, resp.StatusCode, body)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

// decodeRecords accepts a bare array or a single-key envelope.
func decodeRecords(body []byte) ([]domain.RawReport, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var raws []domain.RawReport
		if err := json.Unmarshal(body, &raws); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return raws, nil
	}

	var envelope struct {
		Reports  []domain.RawReport `json:"reports"`
		Data     []domain.RawReport `json:"data"`
		Features []domain.RawReport `json:"features"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	switch {
	case envelope.Reports != nil:
		return envelope.Reports, nil
	case envelope.Data != nil:
		return envelope.Data, nil
	default:
		return envelope.Features, nil
	}
}
