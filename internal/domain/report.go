package domain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Source names for the feeds the service understands. The name selects the
// baseline confidence a report starts with before scoring.
const (
	SourceMRMS     = "mrms"
	SourceRealtime = "realtime"
	SourceIEM      = "iem"
	SourceArchive  = "archive"
	SourceSPC      = "spc"
	SourceFixture  = "fixture"
)

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// Bounds is a lat/lon bounding box in decimal degrees.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// ErrInvalidBounds is returned for boxes that are empty, inverted, or non-finite.
var ErrInvalidBounds = errors.New("invalid bounds")

// Validate reports whether b describes a non-empty box on the globe.
func (b Bounds) Validate() error {
	for _, v := range []float64{b.North, b.South, b.East, b.West} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite coordinate", ErrInvalidBounds)
		}
	}
	if b.North <= b.South {
		return fmt.Errorf("%w: north %.4f must be greater than south %.4f", ErrInvalidBounds, b.North, b.South)
	}
	if b.East <= b.West {
		return fmt.Errorf("%w: east %.4f must be greater than west %.4f", ErrInvalidBounds, b.East, b.West)
	}
	if b.North > 90 || b.South < -90 || b.East > 180 || b.West < -180 {
		return fmt.Errorf("%w: outside WGS-84 range", ErrInvalidBounds)
	}
	return nil
}

// Contains reports whether the point lies inside b, edges included.
func (b Bounds) Contains(lat, lon float64) bool {
	return lat >= b.South && lat <= b.North && lon >= b.West && lon <= b.East
}

// Pad grows b by margin degrees on every side, clamped to the WGS-84 range.
func (b Bounds) Pad(margin float64) Bounds {
	return Bounds{
		North: math.Min(b.North+margin, 90),
		South: math.Max(b.South-margin, -90),
		East:  math.Min(b.East+margin, 180),
		West:  math.Max(b.West-margin, -180),
	}
}

// BoundsOf returns the smallest box containing every report, and false when
// reports is empty.
func BoundsOf(reports []HailReport) (Bounds, bool) {
	if len(reports) == 0 {
		return Bounds{}, false
	}
	b := Bounds{North: -90, South: 90, East: -180, West: 180}
	for _, r := range reports {
		b.North = math.Max(b.North, r.Latitude)
		b.South = math.Min(b.South, r.Latitude)
		b.East = math.Max(b.East, r.Longitude)
		b.West = math.Min(b.West, r.Longitude)
	}
	return b, true
}

// Query selects reports inside a box and time range. A zero Since or Until
// leaves that side of the range open.
type Query struct {
	Bounds Bounds
	Since  time.Time
	Until  time.Time
}

// Matches reports whether r falls inside the query box and time range.
func (q Query) Matches(r HailReport) bool {
	if !q.Bounds.Contains(r.Latitude, r.Longitude) {
		return false
	}
	if !q.Since.IsZero() && r.Timestamp.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && r.Timestamp.After(q.Until) {
		return false
	}
	return true
}

// Key identifies the query for caching; times are truncated to the minute so
// requests issued moments apart share an entry.
func (q Query) Key() string {
	return fmt.Sprintf("%.4f,%.4f,%.4f,%.4f|%d|%d",
		q.Bounds.North, q.Bounds.South, q.Bounds.East, q.Bounds.West,
		unixMinute(q.Since), unixMinute(q.Until))
}

func unixMinute(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Truncate(time.Minute).Unix()
}

// ConfidenceFactors breaks a confidence score into its parts. It is derived on
// every scoring pass and never stored apart from its report.
type ConfidenceFactors struct {
	MeshScore     float64 `json:"mesh_score"`
	DensityScore  float64 `json:"density_score"`
	RecencyScore  float64 `json:"recency_score"`
	TotalScore    float64 `json:"total_score"`
	NeighborCount int     `json:"neighbor_count"`
}

// HailReport is the canonical hail observation every downstream stage consumes.
// Size is in inches and always positive; Confidence is within [0, 100].
type HailReport struct {
	ID                string             `json:"id"`
	Latitude          float64            `json:"latitude"`
	Longitude         float64            `json:"longitude"`
	Size              float64            `json:"size"`
	Timestamp         time.Time          `json:"timestamp"`
	Confidence        float64            `json:"confidence"`
	BaseConfidence    float64            `json:"base_confidence,omitempty"`
	ConfidenceFactors *ConfidenceFactors `json:"confidence_factors,omitempty"`
	City              string             `json:"city,omitempty"`
	IsMetroOKC        bool               `json:"is_metro_okc"`
	Source            string             `json:"source,omitempty"`
}
