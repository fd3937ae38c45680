package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// Swath engine tuning.
	GridResolution    float64
	SmoothSigma       float64
	InfluenceRadius   int
	MaxGridCells      int
	ContourThresholds []float64
	PaletteFile       string
	Strategy          string
	AutoHullBelow     int
	MinConfidence     float64
	SimplifyTolerance float64
	ReportRetention   time.Duration

	// Upstream report sources, tried in order: live window, feed, IEM, SPC, archive, fixture.
	IEMEnabled         bool
	IEMBaseURL         string
	IEMTimeout         time.Duration
	SPCEnabled         bool
	SPCBaseURL         string
	SPCTimeout         time.Duration
	FeedURL            string
	FeedTimeout        time.Duration
	ArchiveDatabaseURL string
	FixturePath        string
	ProviderCacheSize  int
	ProviderCacheTTL   time.Duration

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
	MapboxCacheTTL  time.Duration
}

// DefaultThresholds are the contour levels, in inches, drawn when
// HAIL_CONTOUR_THRESHOLDS is unset.
var DefaultThresholds = []float64{0.75, 1.0, 1.25, 1.5, 1.75, 2.0, 2.5, 3.0}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}
	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}
	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	p := &parser{}
	mapboxToken := os.Getenv("MAPBOX_TOKEN")

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "raw-hail-reports"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "normalized-hail-reports"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "storm-data-hailgrid"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		GridResolution:    p.positiveFloat("HAIL_GRID_RESOLUTION", 0.01),
		SmoothSigma:       p.nonNegativeFloat("HAIL_SMOOTH_SIGMA", 1.0),
		InfluenceRadius:   p.positiveInt("HAIL_INFLUENCE_RADIUS", 10),
		MaxGridCells:      p.positiveInt("HAIL_MAX_GRID_CELLS", 4_000_000),
		ContourThresholds: p.thresholds("HAIL_CONTOUR_THRESHOLDS"),
		PaletteFile:       os.Getenv("HAIL_PALETTE_FILE"),
		Strategy:          strings.ToLower(sharedcfg.EnvOrDefault("HAIL_STRATEGY", "grid")),
		AutoHullBelow:     p.positiveInt("HAIL_AUTO_HULL_BELOW", 3),
		MinConfidence:     p.nonNegativeFloat("HAIL_MIN_CONFIDENCE", 0),
		SimplifyTolerance: p.nonNegativeFloat("HAIL_SIMPLIFY_TOLERANCE", 0),
		ReportRetention:   p.duration("HAIL_REPORT_RETENTION", "6h"),

		IEMEnabled:         p.boolean("IEM_ENABLED", true),
		IEMBaseURL:         sharedcfg.EnvOrDefault("IEM_BASE_URL", "https://mesonet.agron.iastate.edu/geojson/lsr.geojson"),
		IEMTimeout:         p.duration("IEM_TIMEOUT", "10s"),
		SPCEnabled:         p.boolean("SPC_ENABLED", false),
		SPCBaseURL:         sharedcfg.EnvOrDefault("SPC_BASE_URL", "https://www.spc.noaa.gov/climo/reports"),
		SPCTimeout:         p.duration("SPC_TIMEOUT", "10s"),
		FeedURL:            os.Getenv("FEED_URL"),
		FeedTimeout:        p.duration("FEED_TIMEOUT", "5s"),
		ArchiveDatabaseURL: os.Getenv("ARCHIVE_DATABASE_URL"),
		FixturePath:        os.Getenv("HAIL_FIXTURE_PATH"),
		ProviderCacheSize:  p.positiveInt("PROVIDER_CACHE_SIZE", 256),
		ProviderCacheTTL:   p.duration("PROVIDER_CACHE_TTL", "2m"),

		MapboxToken:     mapboxToken,
		MapboxEnabled:   p.boolean("MAPBOX_ENABLED", mapboxToken != ""),
		MapboxTimeout:   p.duration("MAPBOX_TIMEOUT", "5s"),
		MapboxCacheSize: p.positiveInt("MAPBOX_CACHE_SIZE", 1000),
		MapboxCacheTTL:  p.duration("MAPBOX_CACHE_TTL", "24h"),
	}
	if p.err != nil {
		return nil, p.err
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}
	switch cfg.Strategy {
	case "grid", "hull", "auto":
	default:
		return nil, fmt.Errorf("invalid HAIL_STRATEGY %q: want grid, hull, or auto", cfg.Strategy)
	}
	if cfg.MinConfidence > 100 {
		return nil, errors.New("invalid HAIL_MIN_CONFIDENCE: must be within [0, 100]")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

// parser reads typed environment variables and keeps the first error, so
// Load can build the whole Config before checking.
type parser struct {
	err error
}

func (p *parser) fail(name, value, want string) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %s", name, value, want)
	}
}

func (p *parser) positiveFloat(name string, def float64) float64 {
	s := os.Getenv(name)
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !(v > 0) || math.IsInf(v, 0) {
		p.fail(name, s, "must be a positive number")
		return def
	}
	return v
}

func (p *parser) nonNegativeFloat(name string, def float64) float64 {
	s := os.Getenv(name)
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !(v >= 0) || math.IsInf(v, 0) {
		p.fail(name, s, "must be a non-negative number")
		return def
	}
	return v
}

func (p *parser) positiveInt(name string, def int) int {
	s := os.Getenv(name)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		p.fail(name, s, "must be a positive integer")
		return def
	}
	return v
}

func (p *parser) duration(name, def string) time.Duration {
	s := sharedcfg.EnvOrDefault(name, def)
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		p.fail(name, s, "must be a non-negative duration")
		return 0
	}
	return d
}

func (p *parser) boolean(name string, def bool) bool {
	s := os.Getenv(name)
	if s == "" {
		return def
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		p.fail(name, s, "must be true or false")
		return def
	}
	return v
}

// thresholds parses a comma-separated list of positive sizes in inches.
func (p *parser) thresholds(name string) []float64 {
	s := os.Getenv(name)
	if strings.TrimSpace(s) == "" {
		return append([]float64(nil), DefaultThresholds...)
	}
	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil || !(v > 0) || math.IsInf(v, 0) {
			p.fail(name, s, "must be a comma-separated list of positive sizes")
			return nil
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		p.fail(name, s, "must list at least one size")
	}
	return out
}
