package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RawReport is one upstream hail record before normalization. Pointer fields
// are nil when the upstream omitted the value or sent an unknown sentinel.
type RawReport struct {
	ID         string
	Lat        *float64
	Lon        *float64
	SizeIn     *float64
	SizeMM     *float64
	Confidence *float64
	Timestamp  time.Time
	City       string
	Source     string
}

// Field aliases seen across upstream feeds, checked in order.
var (
	idKeys         = []string{"id", "ID", "report_id", "reportId"}
	latKeys        = []string{"lat", "latitude", "Lat", "Latitude", "LAT"}
	lonKeys        = []string{"lon", "lng", "longitude", "Lon", "Longitude", "LON"}
	sizeInKeys     = []string{"size", "size_in", "sizeInches", "hailSize", "hail_size", "magnitude", "Size"}
	sizeMMKeys     = []string{"mesh_mm", "meshValue", "mesh", "size_mm", "MESH"}
	confidenceKeys = []string{"confidence", "Confidence"}
	timeKeys       = []string{"timestamp", "time", "valid", "time_utc", "datetime", "event_time", "Time"}
	cityKeys       = []string{"city", "City", "location", "Location", "place"}
	sourceKeys     = []string{"source", "Source", "provider"}
)

// timeLayouts are tried in order for string timestamps.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04Z",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"200601021504",
}

// UnmarshalJSON accepts any of the known field aliases, with numbers encoded
// either as JSON numbers or as numeric strings.
func (r *RawReport) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decode raw report: %w", err)
	}

	r.ID = firstString(fields, idKeys)
	r.Lat = firstNumber(fields, latKeys)
	r.Lon = firstNumber(fields, lonKeys)
	r.SizeIn = firstNumber(fields, sizeInKeys)
	r.SizeMM = firstNumber(fields, sizeMMKeys)
	r.Confidence = firstNumber(fields, confidenceKeys)
	r.City = firstString(fields, cityKeys)
	r.Source = firstString(fields, sourceKeys)
	r.Timestamp = firstTime(fields, timeKeys)
	return nil
}

func firstString(fields map[string]json.RawMessage, keys []string) string {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return n.String()
		}
	}
	return ""
}

func firstNumber(fields map[string]json.RawMessage, keys []string) *float64 {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		if v, ok := parseNumber(raw); ok {
			return &v
		}
	}
	return nil
}

// parseNumber reads a JSON number or numeric string. "UNK", empty strings,
// and null are treated as absent.
func parseNumber(raw json.RawMessage) (float64, bool) {
	if string(raw) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	return parseNumericString(s)
}

func parseNumericString(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "UNK") {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func firstTime(fields map[string]json.RawMessage, keys []string) time.Time {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		if t, ok := parseTimestamp(raw); ok {
			return t
		}
	}
	return time.Time{}
}

// parseTimestamp accepts RFC 3339 and a few common variants, or a Unix epoch
// number in seconds or milliseconds. Results are in UTC.
func parseTimestamp(raw json.RawMessage) (time.Time, bool) {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n <= 0 {
			return time.Time{}, false
		}
		if n > 1e12 {
			return time.UnixMilli(int64(n)).UTC(), true
		}
		return time.Unix(int64(n), 0).UTC(), true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, false
	}
	return ParseTimeString(s)
}

// ParseTimeString parses a timestamp string in any of the accepted layouts.
func ParseTimeString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ParseRawEvent decodes a source-topic message into a RawReport. The message
// timestamp stands in when the payload carries none.
func ParseRawEvent(raw RawEvent) (RawReport, error) {
	var rec RawReport
	if err := json.Unmarshal(raw.Value, &rec); err != nil {
		return RawReport{}, fmt.Errorf("parse raw event: %w", err)
	}
	if rec.Timestamp.IsZero() && !raw.Timestamp.IsZero() {
		rec.Timestamp = raw.Timestamp.UTC()
	}
	if rec.Source == "" {
		rec.Source = raw.Headers["source"]
	}
	return rec, nil
}

// Float returns a pointer to v, for building RawReports in code.
func Float(v float64) *float64 {
	return &v
}
