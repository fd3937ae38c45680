// Package spc parses Storm Prediction Center daily hail report CSVs and
// fetches them from the SPC website.
//
// An SPC report day is a convective day: it starts at 12Z on the named date
// and runs until 1159Z the next morning. Times are HHMM in UTC, so a row at
// "0130" in 240426_rpts_hail.csv happened on April 27.
package spc

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-data-hailgrid/internal/domain"
)

const (
	// DefaultBaseURL hosts the daily report files.
	DefaultBaseURL = "https://www.spc.noaa.gov/climo/reports"

	dayStartHour = 12

	// maxDays caps how many daily files one query may pull.
	maxDays = 7
)

// ErrNoHeader is returned for an empty file or one without a Time column.
var ErrNoHeader = errors.New("spc csv: missing header")

// Parse reads an SPC hail CSV for the convective day starting on day. Sizes
// stay in hundredths of an inch; normalization converts them. Rows that are
// too short are skipped.
func Parse(r io.Reader, day time.Time) ([]domain.RawReport, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoHeader
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	colIdx := make(map[string]int, len(header))
	for i, h := range header {
		colIdx[strings.TrimSpace(h)] = i
	}
	if _, ok := colIdx["Time"]; !ok {
		return nil, ErrNoHeader
	}

	var raws []domain.RawReport
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		if len(row) < len(header) {
			continue
		}

		raw := domain.RawReport{
			Lat:    parseFloat(get(row, colIdx, "Lat")),
			Lon:    parseFloat(get(row, colIdx, "Lon")),
			SizeIn: parseFloat(get(row, colIdx, "Size")),
			City:   get(row, colIdx, "Location"),
			Source: domain.SourceSPC,
		}
		if ts, ok := ReportTime(day, get(row, colIdx, "Time")); ok {
			raw.Timestamp = ts
		}
		raws = append(raws, raw)
	}
	return raws, nil
}

// ReportTime places an HHMM string on the convective day starting on day.
func ReportTime(day time.Time, hhmm string) (time.Time, bool) {
	hhmm = strings.TrimSpace(hhmm)
	if len(hhmm) == 3 {
		hhmm = "0" + hhmm
	}
	if len(hhmm) != 4 {
		return time.Time{}, false
	}
	hour, errHour := strconv.Atoi(hhmm[:2])
	minute, errMin := strconv.Atoi(hhmm[2:])
	if errHour != nil || errMin != nil || hour > 23 || minute > 59 {
		return time.Time{}, false
	}

	d := day.UTC()
	ts := time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, time.UTC)
	if hour < dayStartHour {
		ts = ts.AddDate(0, 0, 1)
	}
	return ts, true
}

// ConvectiveDay returns the report day a timestamp belongs to.
func ConvectiveDay(t time.Time) time.Time {
	t = t.UTC()
	if t.Hour() < dayStartHour {
		t = t.AddDate(0, 0, -1)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FileName is the daily hail file name for day, e.g. 240426_rpts_hail.csv.
func FileName(day time.Time) string {
	return day.UTC().Format("060102") + "_rpts_hail.csv"
}

// DayFromFileName recovers the report day from a yymmdd-prefixed file name.
func DayFromFileName(name string) (time.Time, bool) {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if len(name) < 6 {
		return time.Time{}, false
	}
	day, err := time.Parse("060102", name[:6])
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

func get(row []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseFloat(s string) *float64 {
	if s == "" || strings.EqualFold(s, "UNK") {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// Client implements provider.Source by downloading the daily files covering
// a query's time range.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	clock      clockwork.Clock
}

// NewClient creates an SPC client. An empty baseURL selects DefaultBaseURL;
// a nil clock uses real time.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, clk clockwork.Clock) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		clock:      clk,
	}
}

func (c *Client) Name() string { return domain.SourceSPC }

// FetchReports pulls each convective day between Since and Until, newest
// last. An open Since means the day containing Until. A missing file (404)
// counts as a day without reports.
func (c *Client) FetchReports(ctx context.Context, q domain.Query) ([]domain.HailReport, error) {
	until := q.Until
	if until.IsZero() {
		until = c.clock.Now()
	}
	last := ConvectiveDay(until)
	first := last
	if !q.Since.IsZero() {
		first = ConvectiveDay(q.Since)
	}
	if first.After(last) {
		return nil, nil
	}
	if last.Sub(first) > (maxDays-1)*24*time.Hour {
		first = last.AddDate(0, 0, -(maxDays - 1))
	}

	var raws []domain.RawReport
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		dayRaws, err := c.fetchDay(ctx, day)
		if err != nil {
			return nil, err
		}
		raws = append(raws, dayRaws...)
	}

	normalized, stats := domain.NormalizeReports(domain.SourceSPC, raws, c.logger)
	out := normalized[:0]
	for _, r := range normalized {
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	c.logger.Debug("spc reports fetched", "from", first.Format(time.DateOnly), "to", last.Format(time.DateOnly),
		"rows", stats.Input, "kept", len(out), "dropped", stats.Dropped)
	return out, nil
}

func (c *Client) fetchDay(ctx context.Context, day time.Time) ([]domain.RawReport, error) {
	u := c.baseURL + "/" + FileName(day)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("spc request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("spc error: %s: status %d: %s", FileName(day), resp.StatusCode, body)
	}

	raws, err := Parse(resp.Body, day)
	if errors.Is(err, ErrNoHeader) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", FileName(day), err)
	}
	return raws, nil
}
