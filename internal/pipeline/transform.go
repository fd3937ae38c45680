package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/couchcryptid/storm-data-hailgrid/internal/domain"
)

// HailTransformer implements Transformer by decoding a raw record,
// normalizing it, and optionally filling in its city.
type HailTransformer struct {
	source   string
	geocoder domain.Geocoder
	logger   *slog.Logger
}

// NewTransformer creates a HailTransformer. source names the feed for records
// that carry no source of their own; pass a nil geocoder to skip city lookup.
func NewTransformer(source string, geocoder domain.Geocoder, logger *slog.Logger) *HailTransformer {
	return &HailTransformer{
		source:   source,
		geocoder: geocoder,
		logger:   logger,
	}
}

func (t *HailTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.HailReport, error) {
	rec, err := domain.ParseRawEvent(raw)
	if err != nil {
		return domain.HailReport{}, err
	}
	report, err := domain.NormalizeReport(t.source, rec)
	if err != nil {
		return domain.HailReport{}, err
	}
	return domain.EnrichWithGeocoding(ctx, report, t.geocoder, t.logger), nil
}

// MultiLoader hands every batch to each loader in order. All loaders are
// attempted; their errors are joined.
type MultiLoader []BatchLoader

func (m MultiLoader) LoadBatch(ctx context.Context, reports []domain.HailReport) error {
	var errs []error
	for _, l := range m {
		if err := l.LoadBatch(ctx, reports); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
