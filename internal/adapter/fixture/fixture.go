// Package fixture serves hail reports from a JSON file of raw records. It is
// the last resort in the provider chain and the input format of hailctl.
package fixture

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/couchcryptid/storm-data-hailgrid/internal/domain"
)

// Decode reads a JSON array of raw records, or an object wrapping one under
// "reports".
func Decode(r io.Reader) ([]domain.RawReport, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var raws []domain.RawReport
	if err := json.Unmarshal(data, &raws); err == nil {
		return raws, nil
	}
	var envelope struct {
		Reports []domain.RawReport `json:"reports"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	return envelope.Reports, nil
}

// ReadFile decodes the fixture at path.
func ReadFile(path string) ([]domain.RawReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Source implements provider.Source over a fixture loaded once at startup.
type Source struct {
	reports []domain.HailReport
}

// Load reads and normalizes the fixture at path.
func Load(path string, logger *slog.Logger) (*Source, error) {
	raws, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	reports, stats := domain.NormalizeReports(domain.SourceFixture, raws, logger)
	logger.Info("fixture loaded", "path", path, "kept", stats.Kept, "dropped", stats.Dropped, "duplicates", stats.Duplicates)
	return &Source{reports: reports}, nil
}

// NewSource wraps already-normalized reports.
func NewSource(reports []domain.HailReport) *Source {
	return &Source{reports: reports}
}

func (s *Source) Name() string { return domain.SourceFixture }

func (s *Source) FetchReports(_ context.Context, q domain.Query) ([]domain.HailReport, error) {
	var out []domain.HailReport
	for _, r := range s.reports {
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}
