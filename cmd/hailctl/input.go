package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/storm-data-hailgrid/internal/adapter/fixture"
	"github.com/couchcryptid/storm-data-hailgrid/internal/adapter/spc"
	"github.com/couchcryptid/storm-data-hailgrid/internal/domain"
)

// inputFlags select and filter the reports a subcommand reads.
type inputFlags struct {
	source string
	day    string
	bbox   string
	since  string
	until  string
}

func (in *inputFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&in.source, "source", domain.SourceFixture, "source name for records that carry none")
	f.StringVar(&in.day, "day", "", "convective day of an SPC CSV (YYYY-MM-DD); default from the file name")
	f.StringVar(&in.bbox, "bbox", "", "west,south,east,north; default fits the reports")
	f.StringVar(&in.since, "since", "", "earliest report time (RFC 3339)")
	f.StringVar(&in.until, "until", "", "latest report time (RFC 3339)")
}

// readRaw decodes a fixture JSON file or an SPC hail CSV into raw records,
// returning the source name the records should be normalized under.
func (in *inputFlags) readRaw(path string) ([]domain.RawReport, string, error) {
	if !strings.EqualFold(filepath.Ext(path), ".csv") {
		raws, err := fixture.ReadFile(path)
		return raws, in.source, err
	}

	day, err := in.convectiveDay(path)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	raws, err := spc.Parse(f, day)
	if err != nil {
		return nil, "", fmt.Errorf("parse %s: %w", path, err)
	}
	return raws, domain.SourceSPC, nil
}

func (in *inputFlags) convectiveDay(path string) (time.Time, error) {
	if in.day != "" {
		day, err := time.Parse(time.DateOnly, in.day)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid --day %q: want YYYY-MM-DD", in.day)
		}
		return day, nil
	}
	day, ok := spc.DayFromFileName(path)
	if !ok {
		return time.Time{}, fmt.Errorf("cannot tell the convective day of %s; pass --day", filepath.Base(path))
	}
	return day, nil
}

// readReports loads and normalizes every record in path.
func (in *inputFlags) readReports(path string, logger *slog.Logger) ([]domain.HailReport, domain.NormalizeStats, error) {
	raws, source, err := in.readRaw(path)
	if err != nil {
		return nil, domain.NormalizeStats{}, err
	}
	reports, stats := domain.NormalizeReports(source, raws, logger)
	logger.Info("reports loaded",
		"path", path,
		"input", stats.Input,
		"kept", stats.Kept,
		"duplicates", stats.Duplicates,
		"dropped", stats.Dropped,
	)
	return reports, stats, nil
}

// query turns the filter flags into a report query. Without --bbox the box is
// the zero value and callers derive it from the reports.
func (in *inputFlags) query() (domain.Query, error) {
	var q domain.Query
	if in.bbox != "" {
		parts := strings.Split(in.bbox, ",")
		if len(parts) != 4 {
			return q, fmt.Errorf("--bbox must be west,south,east,north")
		}
		vals := make([]float64, 4)
		for i, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return q, fmt.Errorf("invalid --bbox value %q", p)
			}
			vals[i] = v
		}
		q.Bounds = domain.Bounds{West: vals[0], South: vals[1], East: vals[2], North: vals[3]}
		if err := q.Bounds.Validate(); err != nil {
			return q, err
		}
	}
	for _, t := range []struct {
		name string
		raw  string
		dst  *time.Time
	}{
		{"since", in.since, &q.Since},
		{"until", in.until, &q.Until},
	} {
		if t.raw == "" {
			continue
		}
		parsed, ok := domain.ParseTimeString(t.raw)
		if !ok {
			return q, fmt.Errorf("invalid --%s %q: want RFC 3339", t.name, t.raw)
		}
		*t.dst = parsed
	}
	if !q.Since.IsZero() && !q.Until.IsZero() && q.Until.Before(q.Since) {
		return q, fmt.Errorf("--until must not be before --since")
	}
	return q, nil
}

// output writes to a file when path is set, otherwise to the command's stdout.
func output(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", path, err)
	}
	return f, f.Close, nil
}

func writeJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
