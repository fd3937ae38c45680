package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
)

// Reasons a raw record is rejected. Batch normalization drops such records
// and keeps going.
var (
	ErrMissingCoordinates = errors.New("missing coordinates")
	ErrInvalidCoordinates = errors.New("coordinates out of range")
	ErrMissingSize        = errors.New("missing or non-positive size")
)

const (
	mmPerInch = 25.4

	// hundredthsThreshold marks sizes too large to be inches. The largest hail
	// recorded in the US was about 8 inches (Vivian, SD, 2010), so 10+ is read
	// as hundredths of an inch.
	hundredthsThreshold = 10.0

	// dedupPrecision rounds coordinates to 3 decimals (~100 m).
	dedupPrecision = 1000.0
)

// okcMetro is the box used to flag Oklahoma City metro reports.
var okcMetro = Bounds{North: 35.75, South: 35.2, East: -97.1, West: -97.8}

// baselineConfidence is the confidence a report starts with, by source.
// Realtime radar estimates start lowest; archived, quality-controlled reports higher.
var baselineConfidence = map[string]float64{
	SourceMRMS:     60,
	SourceRealtime: 60,
	SourceFixture:  60,
	SourceArchive:  70,
	SourceIEM:      75,
	SourceSPC:      85,
}

const defaultBaseline = 60

// BaselineConfidence returns the pre-scoring confidence for a source name.
func BaselineConfidence(source string) float64 {
	if v, ok := baselineConfidence[strings.ToLower(source)]; ok {
		return v
	}
	return defaultBaseline
}

// NormalizeStats counts what a batch normalization kept and dropped.
type NormalizeStats struct {
	Input      int `json:"input"`
	Kept       int `json:"kept"`
	Duplicates int `json:"duplicates"`
	Dropped    int `json:"dropped"`
}

// NormalizeReports converts a batch of raw records into canonical reports.
// Invalid records are logged and dropped; duplicates within ~100 m keep the
// first occurrence. The feed name is used when a record carries no source.
func NormalizeReports(source string, raws []RawReport, logger *slog.Logger) ([]HailReport, NormalizeStats) {
	stats := NormalizeStats{Input: len(raws)}
	out := make([]HailReport, 0, len(raws))
	seen := make(map[string]struct{}, len(raws))

	for i, raw := range raws {
		report, err := NormalizeReport(source, raw)
		if err != nil {
			stats.Dropped++
			if logger != nil {
				logger.Warn("dropping hail record", "source", source, "index", i, "id", raw.ID, "reason", err)
			}
			continue
		}
		key := DedupKey(report.Latitude, report.Longitude)
		if _, dup := seen[key]; dup {
			stats.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		out = append(out, report)
	}

	stats.Kept = len(out)
	return out, stats
}

// NormalizeReport converts one raw record into a canonical, unscored report.
func NormalizeReport(source string, raw RawReport) (HailReport, error) {
	if raw.Lat == nil || raw.Lon == nil {
		return HailReport{}, ErrMissingCoordinates
	}
	lat, lon := *raw.Lat, *raw.Lon
	if !finite(lat) || !finite(lon) || (lat == 0 && lon == 0) {
		return HailReport{}, ErrMissingCoordinates
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return HailReport{}, fmt.Errorf("%w: %.4f,%.4f", ErrInvalidCoordinates, lat, lon)
	}

	size := normalizeSize(raw.SizeIn, raw.SizeMM)
	if size <= 0 {
		return HailReport{}, ErrMissingSize
	}

	if raw.Source != "" {
		source = raw.Source
	}
	source = strings.ToLower(source)

	base := BaselineConfidence(source)
	if raw.Confidence != nil && finite(*raw.Confidence) && *raw.Confidence > 0 {
		base = clamp(*raw.Confidence, 0, 100)
	}

	ts := raw.Timestamp
	if ts.IsZero() {
		ts = clock.Now()
	}
	ts = ts.UTC()

	id := raw.ID
	if id == "" {
		id = generateID(source, lat, lon, ts.Unix(), size)
	}

	return HailReport{
		ID:             id,
		Latitude:       lat,
		Longitude:      lon,
		Size:           size,
		Timestamp:      ts,
		Confidence:     base,
		BaseConfidence: base,
		City:           raw.City,
		IsMetroOKC:     okcMetro.Contains(lat, lon),
		Source:         source,
	}, nil
}

// normalizeSize prefers an explicit inch value and falls back to millimeters.
// Returns 0 when neither yields a positive finite size.
func normalizeSize(sizeIn, sizeMM *float64) float64 {
	if sizeIn != nil && finite(*sizeIn) && *sizeIn > 0 {
		if *sizeIn >= hundredthsThreshold {
			return *sizeIn / 100.0
		}
		return *sizeIn
	}
	if sizeMM != nil && finite(*sizeMM) && *sizeMM > 0 {
		return *sizeMM / mmPerInch
	}
	return 0
}

// DedupKey rounds a coordinate pair to 3 decimals for duplicate detection.
func DedupKey(lat, lon float64) string {
	return fmt.Sprintf("%d,%d", int64(math.Round(lat*dedupPrecision)), int64(math.Round(lon*dedupPrecision)))
}

// generateID produces a deterministic ID so replays of the same record collapse.
func generateID(source string, lat, lon float64, unix int64, size float64) string {
	input := fmt.Sprintf("%s|%.4f|%.4f|%d|%g", source, lat, lon, unix, size)
	hash := sha256.Sum256([]byte(input))
	return "hail-" + hex.EncodeToString(hash[:8])
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
