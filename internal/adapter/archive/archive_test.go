package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-data-hailgrid/internal/domain"
)

// --- fakes ---

type fakeDB struct {
	rows     [][]any
	queryErr error
	pingErr  error

	gotArgs  []any
	batchLen int
	execTags []string
	execErr  error
}

func (f *fakeDB) Query(_ context.Context, _ string, args ...any) (pgx.Rows, error) {
	f.gotArgs = args
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return &fakeRows{data: f.rows, idx: -1}, nil
}

func (f *fakeDB) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	f.batchLen = b.Len()
	return &fakeBatchResults{tags: f.execTags, err: f.execErr}
}

func (f *fakeDB) Ping(context.Context) error { return f.pingErr }

type fakeRows struct {
	data [][]any
	idx  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.data[r.idx], nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx < len(r.data)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.idx]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d dest for %d columns", len(dest), len(row))
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *float64:
			*d = v.(float64)
		case *time.Time:
			*d = v.(time.Time)
		case **string:
			if v != nil {
				s := v.(string)
				*d = &s
			}
		case **float64:
			if v != nil {
				f := v.(float64)
				*d = &f
			}
		default:
			return fmt.Errorf("scan: unsupported dest %T", d)
		}
	}
	return nil
}

type fakeBatchResults struct {
	tags []string
	err  error
	i    int
}

func (b *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	if b.err != nil {
		return pgconn.CommandTag{}, b.err
	}
	tag := b.tags[b.i]
	b.i++
	return pgconn.NewCommandTag(tag), nil
}

func (b *fakeBatchResults) Query() (pgx.Rows, error) { return nil, errors.New("not supported") }
func (b *fakeBatchResults) QueryRow() pgx.Row        { return nil }
func (b *fakeBatchResults) Close() error             { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- tests ---

func TestSource_FetchReports(t *testing.T) {
	observed := time.Date(2019, 5, 20, 21, 5, 0, 0, time.UTC)
	db := &fakeDB{rows: [][]any{
		{"arch-1", 35.22, -97.44, 1.75, observed, "Norman", nil},
		{"arch-2", 35.33, -97.49, 2.5, observed.Add(10 * time.Minute), nil, 88.0},
		{"arch-3", 35.40, -97.40, 0.0, observed, nil, nil},
	}}
	since := time.Date(2019, 5, 20, 0, 0, 0, 0, time.UTC)
	q := domain.Query{
		Bounds: domain.Bounds{North: 35.5, South: 35.0, East: -97.2, West: -97.7},
		Since:  since,
	}

	reports, err := NewSource(db, discardLogger()).FetchReports(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, reports, 2, "zero-size row skipped")

	assert.Equal(t, "arch-1", reports[0].ID)
	assert.Equal(t, "Norman", reports[0].City)
	assert.Equal(t, domain.SourceArchive, reports[0].Source)
	assert.InDelta(t, 70.0, reports[0].BaseConfidence, 0)
	assert.Equal(t, observed, reports[0].Timestamp)

	assert.Empty(t, reports[1].City)
	assert.InDelta(t, 88.0, reports[1].BaseConfidence, 0, "stored confidence overrides the baseline")

	require.Len(t, db.gotArgs, 7)
	assert.Equal(t, []any{35.0, 35.5, -97.7, -97.2}, db.gotArgs[:4])
	assert.Equal(t, &since, db.gotArgs[4])
	assert.Nil(t, db.gotArgs[5], "open end of range")
	assert.Equal(t, maxRows, db.gotArgs[6])
}

func TestSource_FetchReports_QueryError(t *testing.T) {
	db := &fakeDB{queryErr: errors.New("connection refused")}
	_, err := NewSource(db, discardLogger()).FetchReports(context.Background(), domain.Query{})
	require.ErrorContains(t, err, "query hail reports: connection refused")
}

func TestSource_Insert(t *testing.T) {
	reports := []domain.HailReport{
		{ID: "a", Latitude: 35.2, Longitude: -97.4, Size: 1, Source: domain.SourceSPC},
		{ID: "b", Latitude: 35.3, Longitude: -97.5, Size: 2, Source: domain.SourceSPC},
	}

	t.Run("skips existing", func(t *testing.T) {
		db := &fakeDB{execTags: []string{"INSERT 0 1", "INSERT 0 0"}}
		n, err := NewSource(db, discardLogger()).Insert(context.Background(), reports)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, 2, db.batchLen)
	})

	t.Run("error", func(t *testing.T) {
		db := &fakeDB{execErr: errors.New("table missing")}
		_, err := NewSource(db, discardLogger()).Insert(context.Background(), reports)
		require.ErrorContains(t, err, "insert hail report")
	})

	t.Run("empty", func(t *testing.T) {
		db := &fakeDB{}
		n, err := NewSource(db, discardLogger()).Insert(context.Background(), nil)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Zero(t, db.batchLen)
	})
}

func TestSource_CheckReadiness(t *testing.T) {
	require.NoError(t, NewSource(&fakeDB{}, discardLogger()).CheckReadiness(context.Background()))
	require.Error(t, NewSource(&fakeDB{pingErr: errors.New("down")}, discardLogger()).CheckReadiness(context.Background()))
	assert.Equal(t, "archive", NewSource(&fakeDB{}, discardLogger()).Name())
}

func TestOpen_InvalidURL(t *testing.T) {
	_, err := Open(context.Background(), "postgres://%zz")
	require.ErrorContains(t, err, "parse database config")
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationFS.ReadDir("sql")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	body, err := migrationFS.ReadFile("sql/" + entries[0].Name())
	require.NoError(t, err)
	assert.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS hail_reports")
}
