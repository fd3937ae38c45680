// Package archive serves quality-controlled historical hail reports from a
// Postgres table.
package archive

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couchcryptid/storm-data-hailgrid/internal/domain"
)

//go:embed sql/*.sql
var migrationFS embed.FS

// maxRows caps a single query so a continent-wide request stays bounded.
const maxRows = 20000

const selectReports = `
    SELECT id, latitude, longitude, size_in, observed_at, city, confidence
    FROM hail_reports
    WHERE latitude BETWEEN $1 AND $2
      AND longitude BETWEEN $3 AND $4
      AND ($5::timestamptz IS NULL OR observed_at >= $5)
      AND ($6::timestamptz IS NULL OR observed_at <= $6)
    ORDER BY observed_at
    LIMIT $7
`

const insertReport = `
    INSERT INTO hail_reports (id, latitude, longitude, size_in, observed_at, city, confidence, source)
    VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
    ON CONFLICT (id) DO NOTHING
`

// DB is the subset of *pgxpool.Pool the archive uses.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Ping(ctx context.Context) error
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// RunMigrations applies the embedded schema files in name order.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	entries, err := migrationFS.ReadDir("sql")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		body, err := migrationFS.ReadFile("sql/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(body)); err != nil {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
	}
	return nil
}

// Source implements provider.Source over the hail_reports table.
type Source struct {
	db     DB
	logger *slog.Logger
}

func NewSource(db DB, logger *slog.Logger) *Source {
	return &Source{db: db, logger: logger}
}

func (s *Source) Name() string { return domain.SourceArchive }

// CheckReadiness pings the database.
func (s *Source) CheckReadiness(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// FetchReports returns archived reports inside the query box and time range,
// oldest first. Rows that fail normalization are logged and skipped.
func (s *Source) FetchReports(ctx context.Context, q domain.Query) ([]domain.HailReport, error) {
	rows, err := s.db.Query(ctx, selectReports,
		q.Bounds.South, q.Bounds.North, q.Bounds.West, q.Bounds.East,
		nullTime(q.Since), nullTime(q.Until), maxRows)
	if err != nil {
		return nil, fmt.Errorf("query hail reports: %w", err)
	}
	defer rows.Close()

	var raws []domain.RawReport
	for rows.Next() {
		var (
			id         string
			lat, lon   float64
			size       float64
			observed   time.Time
			city       *string
			confidence *float64
		)
		if err := rows.Scan(&id, &lat, &lon, &size, &observed, &city, &confidence); err != nil {
			return nil, fmt.Errorf("scan hail report: %w", err)
		}
		raw := domain.RawReport{
			ID:         id,
			Lat:        domain.Float(lat),
			Lon:        domain.Float(lon),
			SizeIn:     domain.Float(size),
			Confidence: confidence,
			Timestamp:  observed,
			Source:     domain.SourceArchive,
		}
		if city != nil {
			raw.City = *city
		}
		raws = append(raws, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read hail reports: %w", err)
	}

	reports, stats := domain.NormalizeReports(domain.SourceArchive, raws, s.logger)
	if stats.Dropped > 0 || stats.Duplicates > 0 {
		s.logger.Debug("archive rows skipped", "dropped", stats.Dropped, "duplicates", stats.Duplicates)
	}
	return reports, nil
}

// Insert stores reports, skipping IDs already present. It returns the number
// of rows written.
func (s *Source) Insert(ctx context.Context, reports []domain.HailReport) (int, error) {
	if len(reports) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, r := range reports {
		batch.Queue(insertReport,
			r.ID, r.Latitude, r.Longitude, r.Size, r.Timestamp, r.City, r.BaseConfidence, r.Source)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	written := 0
	for range reports {
		tag, err := results.Exec()
		if err != nil {
			return written, fmt.Errorf("insert hail report: %w", err)
		}
		written += int(tag.RowsAffected())
	}
	return written, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
