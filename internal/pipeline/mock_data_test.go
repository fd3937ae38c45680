package pipeline_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-data-hailgrid/internal/domain"
	"github.com/couchcryptid/storm-data-hailgrid/internal/observability"
	"github.com/couchcryptid/storm-data-hailgrid/internal/pipeline"
)

func TestHailTransformer_WithMockJSONData(t *testing.T) {
	transformer := pipeline.NewTransformer(domain.SourceFixture, nil, discardLogger())
	day := time.Date(2024, time.April, 26, 0, 0, 0, 0, time.UTC)

	var kept, dropped int
	for i, raw := range readMockEvents(t) {
		out, err := transformer.Transform(context.Background(), raw)
		if err != nil {
			dropped++
			continue
		}
		kept++

		assert.NotEmpty(t, out.ID, "row %d", i)
		assert.Greater(t, out.Size, 0.0, "row %d", i)
		assert.Less(t, out.Size, 5.0, "row %d: hundredths corrected", i)
		assert.Equal(t, day, out.Timestamp.Truncate(24*time.Hour), "row %d", i)
		assert.Contains(t, []string{domain.SourceSPC, domain.SourceMRMS, domain.SourceIEM, domain.SourceArchive}, out.Source)
		assert.Equal(t, out.Confidence, out.BaseConfidence)
	}

	assert.Equal(t, 14, kept)
	assert.Equal(t, 2, dropped, "UNK size and null island")
}

func TestPipeline_WithMockJSONData(t *testing.T) {
	events := readMockEvents(t)
	ext := &mockExtractor{batches: [][]domain.RawEvent{events}}
	ldr := &mockLoader{}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(ext, pipeline.NewTransformer(domain.SourceFixture, nil, discardLogger()), ldr, discardLogger(), metrics, len(events))

	runFor(t, p, 300*time.Millisecond)

	loaded := ldr.reports()
	assert.Len(t, loaded, 13)

	bySource := map[string]int{}
	var metro int
	for _, r := range loaded {
		bySource[r.Source]++
		if r.IsMetroOKC {
			metro++
		}
	}
	assert.Equal(t, map[string]int{"spc": 5, "mrms": 4, "iem": 3, "archive": 1}, bySource)
	assert.Equal(t, 11, metro)
}

func readMockEvents(t *testing.T) []domain.RawEvent {
	t.Helper()

	path := filepath.Join("..", "..", "data", "mock", "hail_reports_240426.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var rows []json.RawMessage
	require.NoError(t, json.Unmarshal(data, &rows))

	events := make([]domain.RawEvent, len(rows))
	for i, row := range rows {
		events[i] = domain.RawEvent{
			Value:  row,
			Topic:  "raw-hail-reports",
			Offset: int64(i),
		}
	}
	return events
}
