// Command hailgrid consumes hail reports from Kafka, keeps a live window of
// recent reports, republishes them normalized, and serves hail swaths as
// GeoJSON over HTTP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/storm-data-hailgrid/internal/adapter/archive"
	"github.com/couchcryptid/storm-data-hailgrid/internal/adapter/feed"
	"github.com/couchcryptid/storm-data-hailgrid/internal/adapter/fixture"
	httpadapter "github.com/couchcryptid/storm-data-hailgrid/internal/adapter/http"
	"github.com/couchcryptid/storm-data-hailgrid/internal/adapter/iem"
	kafkaadapter "github.com/couchcryptid/storm-data-hailgrid/internal/adapter/kafka"
	"github.com/couchcryptid/storm-data-hailgrid/internal/adapter/mapbox"
	"github.com/couchcryptid/storm-data-hailgrid/internal/adapter/spc"
	"github.com/couchcryptid/storm-data-hailgrid/internal/config"
	"github.com/couchcryptid/storm-data-hailgrid/internal/domain"
	"github.com/couchcryptid/storm-data-hailgrid/internal/observability"
	"github.com/couchcryptid/storm-data-hailgrid/internal/pipeline"
	"github.com/couchcryptid/storm-data-hailgrid/internal/provider"
	"github.com/couchcryptid/storm-data-hailgrid/internal/render"
	"github.com/couchcryptid/storm-data-hailgrid/internal/store"
)

// pruneInterval is how often the live window drops expired reports.
const pruneInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clk := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, metrics, clk); err != nil {
		logger.Error("hailgrid exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, clk clockwork.Clock) error {
	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, cfg.MapboxCacheTTL, metrics, clk)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	window := store.New(cfg.ReportRetention, clk, metrics)

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	transformer := pipeline.NewTransformer(domain.SourceRealtime, geocoder, logger)
	p := pipeline.New(reader, transformer, pipeline.MultiLoader{window, writer}, logger, metrics, cfg.BatchSize)

	sources, closeSources, err := buildSources(ctx, cfg, window, geocoder, logger, metrics, clk)
	if err != nil {
		return err
	}
	defer closeSources()
	chain := provider.NewChain(logger, metrics, sources...)
	logger.Info("report sources configured", "chain", chain.Name())

	opts, err := render.FromConfig(cfg)
	if err != nil {
		return err
	}
	renderer, err := render.New(chain, opts, logger, metrics, clk)
	if err != nil {
		return err
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, renderer, logger).WithClock(clk)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return p.Run(gctx)
	})
	g.Go(func() error {
		window.Run(gctx, pruneInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		return nil
	})

	err = g.Wait()

	if cerr := reader.Close(); cerr != nil {
		logger.Error("kafka reader close error", "error", cerr)
	}
	if cerr := writer.Close(); cerr != nil {
		logger.Error("kafka writer close error", "error", cerr)
	}
	return err
}

// buildSources orders the report sources: the live window first, then each
// configured upstream behind a cache, with reverse geocoding when enabled.
func buildSources(
	ctx context.Context,
	cfg *config.Config,
	window *store.Window,
	geocoder domain.Geocoder,
	logger *slog.Logger,
	metrics *observability.Metrics,
	clk clockwork.Clock,
) ([]provider.Source, func(), error) {
	var upstream []provider.Source
	closeFn := func() {}

	if cfg.FeedURL != "" {
		upstream = append(upstream, feed.NewClient(domain.SourceMRMS, cfg.FeedURL, cfg.FeedTimeout, logger))
	}
	if cfg.IEMEnabled {
		upstream = append(upstream, iem.NewClient(cfg.IEMBaseURL, cfg.IEMTimeout, logger, clk))
	}
	if cfg.SPCEnabled {
		upstream = append(upstream, spc.NewClient(cfg.SPCBaseURL, cfg.SPCTimeout, logger, clk))
	}
	if cfg.ArchiveDatabaseURL != "" {
		pool, err := archive.Open(ctx, cfg.ArchiveDatabaseURL)
		if err != nil {
			return nil, closeFn, err
		}
		closeFn = pool.Close
		upstream = append(upstream, archive.NewSource(pool, logger))
	}
	if cfg.FixturePath != "" {
		src, err := fixture.Load(cfg.FixturePath, logger)
		if err != nil {
			closeFn()
			return nil, func() {}, err
		}
		upstream = append(upstream, src)
	}

	sources := make([]provider.Source, 0, len(upstream)+1)
	sources = append(sources, window)
	for _, s := range upstream {
		if geocoder != nil {
			s = provider.NewGeocodedSource(s, geocoder, logger)
		}
		sources = append(sources, provider.NewCachedSource(s, cfg.ProviderCacheSize, cfg.ProviderCacheTTL, metrics, clk))
	}
	return sources, closeFn, nil
}
