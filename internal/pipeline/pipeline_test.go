package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-data-hailgrid/internal/domain"
	"github.com/couchcryptid/storm-data-hailgrid/internal/observability"
	"github.com/couchcryptid/storm-data-hailgrid/internal/pipeline"
)

// --- mocks ---

type mockExtractor struct {
	mu      sync.Mutex
	batches [][]domain.RawEvent
	errs    []error
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawEvent, error) {
	m.mu.Lock()
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		m.mu.Unlock()
		return nil, err
	}
	if len(m.batches) > 0 {
		b := m.batches[0]
		m.batches = m.batches[1:]
		m.mu.Unlock()
		return b, nil
	}
	m.mu.Unlock()
	// block until context cancelled to simulate waiting for messages
	<-ctx.Done()
	return nil, ctx.Err()
}

type mockLoader struct {
	mu     sync.Mutex
	loaded []domain.HailReport
	err    error
}

func (m *mockLoader) LoadBatch(_ context.Context, reports []domain.HailReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.loaded = append(m.loaded, reports...)
	return nil
}

func (m *mockLoader) reports() []domain.HailReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.HailReport(nil), m.loaded...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runFor(t *testing.T, p *pipeline.Pipeline, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	require.NoError(t, p.Run(ctx))
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	raw := makeRawEvent(t, map[string]any{"id": "r1", "lat": 35.22, "lon": -97.44, "size": 1.75})

	ext := &mockExtractor{batches: [][]domain.RawEvent{{raw}}}
	ldr := &mockLoader{}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(ext, pipeline.NewTransformer(domain.SourceRealtime, nil, discardLogger()), ldr, discardLogger(), metrics, 10)

	runFor(t, p, 300*time.Millisecond)

	loaded := ldr.reports()
	require.Len(t, loaded, 1)
	assert.Equal(t, "r1", loaded[0].ID)
	assert.Equal(t, domain.SourceRealtime, loaded[0].Source)
	require.NoError(t, p.CheckReadiness(context.Background()))
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.MessagesConsumed), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.MessagesProduced), 0)
	assert.InDelta(t, 0.0, testutil.ToFloat64(metrics.PipelineRunning), 0, "reset on exit")
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ldr := &mockLoader{}
	p := pipeline.New(&mockExtractor{}, pipeline.NewTransformer("", nil, discardLogger()), ldr,
		discardLogger(), observability.NewMetricsForTesting(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, ldr.reports())
	require.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_InvalidRecordsSkipped(t *testing.T) {
	var committed []int64
	commit := func(offset int64) func(context.Context) error {
		return func(context.Context) error {
			committed = append(committed, offset)
			return nil
		}
	}

	bad := domain.RawEvent{Value: []byte("not json"), Offset: 1, Commit: commit(1)}
	noSize := makeRawEvent(t, map[string]any{"lat": 35.2, "lon": -97.4})
	noSize.Offset, noSize.Commit = 2, commit(2)
	good := makeRawEvent(t, map[string]any{"lat": 35.2, "lon": -97.4, "mesh_mm": 50.8})
	good.Offset, good.Commit = 3, commit(3)

	ext := &mockExtractor{batches: [][]domain.RawEvent{{bad, noSize, good}}}
	ldr := &mockLoader{}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(ext, pipeline.NewTransformer(domain.SourceMRMS, nil, discardLogger()), ldr, discardLogger(), metrics, 10)

	runFor(t, p, 300*time.Millisecond)

	loaded := ldr.reports()
	require.Len(t, loaded, 1)
	assert.InDelta(t, 2.0, loaded[0].Size, 1e-9)
	assert.ElementsMatch(t, []int64{1, 2, 3}, committed)
	assert.InDelta(t, 2.0, testutil.ToFloat64(metrics.TransformErrors), 0)
	assert.InDelta(t, 2.0, testutil.ToFloat64(metrics.ReportsDropped.WithLabelValues("invalid")), 0)
}

func TestPipeline_Run_DeduplicatesWithinBatch(t *testing.T) {
	first := makeRawEvent(t, map[string]any{"id": "a", "lat": 35.2221, "lon": -97.4401, "size": 1.0})
	repeat := makeRawEvent(t, map[string]any{"id": "b", "lat": 35.2223, "lon": -97.4404, "size": 2.0})

	ext := &mockExtractor{batches: [][]domain.RawEvent{{first, repeat}}}
	ldr := &mockLoader{}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(ext, pipeline.NewTransformer("", nil, discardLogger()), ldr, discardLogger(), metrics, 10)

	runFor(t, p, 300*time.Millisecond)

	loaded := ldr.reports()
	require.Len(t, loaded, 1)
	assert.Equal(t, "a", loaded[0].ID, "first occurrence wins")
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.ReportsDropped.WithLabelValues("duplicate")), 0)
}

func TestPipeline_Run_CommitsAfterLoad(t *testing.T) {
	commitCalled := false
	raw := makeRawEvent(t, map[string]any{"lat": 35.2, "lon": -97.4, "size": 1.0})
	raw.Commit = func(_ context.Context) error {
		commitCalled = true
		return nil
	}

	ext := &mockExtractor{batches: [][]domain.RawEvent{{raw}}}
	p := pipeline.New(ext, pipeline.NewTransformer("", nil, discardLogger()), &mockLoader{},
		discardLogger(), observability.NewMetricsForTesting(), 10)

	runFor(t, p, 300*time.Millisecond)
	assert.True(t, commitCalled)
}

func TestPipeline_Run_LoadFailureDoesNotCommit(t *testing.T) {
	commitCalled := false
	raw := makeRawEvent(t, map[string]any{"lat": 35.2, "lon": -97.4, "size": 1.0})
	raw.Commit = func(_ context.Context) error {
		commitCalled = true
		return nil
	}

	ext := &mockExtractor{batches: [][]domain.RawEvent{{raw}}}
	p := pipeline.New(ext, pipeline.NewTransformer("", nil, discardLogger()), &mockLoader{err: errors.New("broker down")},
		discardLogger(), observability.NewMetricsForTesting(), 10)

	runFor(t, p, 300*time.Millisecond)
	assert.False(t, commitCalled)
	require.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_RecoversAfterExtractError(t *testing.T) {
	raw := makeRawEvent(t, map[string]any{"lat": 35.2, "lon": -97.4, "size": 1.0})
	ext := &mockExtractor{
		errs:    []error{errors.New("rebalance in progress")},
		batches: [][]domain.RawEvent{{raw}},
	}
	ldr := &mockLoader{}
	p := pipeline.New(ext, pipeline.NewTransformer("", nil, discardLogger()), ldr,
		discardLogger(), observability.NewMetricsForTesting(), 10)

	runFor(t, p, time.Second)
	assert.Len(t, ldr.reports(), 1, "retried after the initial 200ms backoff")
}

func TestHailTransformer_Transform(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Date(2024, time.April, 26, 23, 0, 0, 0, time.UTC))
	domain.SetClock(fakeClock)
	t.Cleanup(func() { domain.SetClock(nil) })

	raw := makeRawEvent(t, map[string]any{"latitude": "35.4676", "longitude": "-97.5164", "hailSize": "1.25"})
	raw.Headers = map[string]string{"source": "iem"}

	out, err := pipeline.NewTransformer(domain.SourceRealtime, stubGeocoder{}, discardLogger()).
		Transform(context.Background(), raw)
	require.NoError(t, err)

	want := domain.HailReport{
		Latitude:       35.4676,
		Longitude:      -97.5164,
		Size:           1.25,
		Timestamp:      fakeClock.Now(),
		Confidence:     75,
		BaseConfidence: 75,
		City:           "Oklahoma City",
		IsMetroOKC:     true,
		Source:         domain.SourceIEM,
	}
	if diff := cmp.Diff(want, out, cmpopts.IgnoreFields(domain.HailReport{}, "ID")); diff != "" {
		t.Fatalf("transform mismatch (-want +got):\n%s", diff)
	}
	assert.NotEmpty(t, out.ID)
}

func TestHailTransformer_Invalid(t *testing.T) {
	tfm := pipeline.NewTransformer("", nil, discardLogger())

	_, err := tfm.Transform(context.Background(), domain.RawEvent{Value: []byte("not json")})
	require.Error(t, err)

	_, err = tfm.Transform(context.Background(), makeRawEvent(t, map[string]any{"lat": 35.2, "lon": -97.4, "size": 0}))
	require.ErrorIs(t, err, domain.ErrMissingSize)
}

func TestMultiLoader(t *testing.T) {
	a, b := &mockLoader{}, &mockLoader{err: errors.New("sink down")}
	c := &mockLoader{}
	reports := []domain.HailReport{{ID: "r1"}}

	err := pipeline.MultiLoader{a, b, c}.LoadBatch(context.Background(), reports)
	require.ErrorContains(t, err, "sink down")
	assert.Len(t, a.reports(), 1)
	assert.Len(t, c.reports(), 1, "later loaders still run")

	require.NoError(t, pipeline.MultiLoader{a}.LoadBatch(context.Background(), reports))
}

// --- helpers ---

type stubGeocoder struct{}

func (stubGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (domain.GeocodingResult, error) {
	return domain.GeocodingResult{PlaceName: "Oklahoma City"}, nil
}

func makeRawEvent(t *testing.T, fields map[string]any) domain.RawEvent {
	t.Helper()
	data, err := json.Marshal(fields)
	require.NoError(t, err)
	return domain.RawEvent{Value: data}
}
