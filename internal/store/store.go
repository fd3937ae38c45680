// Package store keeps the recent hail reports seen on the stream, for
// rendering live swaths without a round trip upstream.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-data-hailgrid/internal/domain"
	"github.com/couchcryptid/storm-data-hailgrid/internal/observability"
)

// Name is the provider name of the live window.
const Name = "live"

// Window holds reports whose timestamp is within retention of now. Reports
// are keyed by ID; a later report with the same ID replaces the earlier one.
type Window struct {
	retention time.Duration
	clock     clockwork.Clock
	metrics   *observability.Metrics

	mu      sync.RWMutex
	reports map[string]domain.HailReport
}

// New creates a Window. A nil clock uses real time; metrics may be nil.
func New(retention time.Duration, clk clockwork.Clock, metrics *observability.Metrics) *Window {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Window{
		retention: retention,
		clock:     clk,
		metrics:   metrics,
		reports:   make(map[string]domain.HailReport),
	}
}

// Name identifies the window as a report source.
func (w *Window) Name() string { return Name }

// Add stores reports and evicts expired ones. Reports already older than the
// retention are ignored. It returns how many reports were stored.
func (w *Window) Add(reports ...domain.HailReport) int {
	cutoff := w.cutoff()

	w.mu.Lock()
	defer w.mu.Unlock()

	added := 0
	for _, r := range reports {
		if r.Timestamp.Before(cutoff) {
			continue
		}
		w.reports[r.ID] = r
		added++
	}
	w.pruneLocked(cutoff)
	return added
}

// LoadBatch adds reports to the window; it never fails.
func (w *Window) LoadBatch(_ context.Context, reports []domain.HailReport) error {
	w.Add(reports...)
	return nil
}

// Prune drops expired reports and returns how many were removed.
func (w *Window) Prune() int {
	cutoff := w.cutoff()
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pruneLocked(cutoff)
}

// Len returns the number of reports held.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.reports)
}

// FetchReports returns live reports matching q, oldest first. A query whose
// Since is older than the retention cutoff gets nil, since the window cannot
// cover it and a partial answer would hide the upstream sources behind it.
func (w *Window) FetchReports(_ context.Context, q domain.Query) ([]domain.HailReport, error) {
	cutoff := w.cutoff()
	if !q.Since.IsZero() && q.Since.Before(cutoff) {
		return nil, nil
	}

	w.mu.RLock()
	out := make([]domain.HailReport, 0, len(w.reports))
	for _, r := range w.reports {
		if !r.Timestamp.Before(cutoff) && q.Matches(r) {
			out = append(out, r)
		}
	}
	w.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// Run prunes the window every interval until ctx is canceled.
func (w *Window) Run(ctx context.Context, interval time.Duration) {
	ticker := w.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			w.Prune()
		}
	}
}

func (w *Window) cutoff() time.Time {
	if w.retention <= 0 {
		return time.Time{}
	}
	return w.clock.Now().Add(-w.retention)
}

func (w *Window) pruneLocked(cutoff time.Time) int {
	removed := 0
	for id, r := range w.reports {
		if r.Timestamp.Before(cutoff) {
			delete(w.reports, id)
			removed++
		}
	}
	if w.metrics != nil {
		w.metrics.StoreReports.Set(float64(len(w.reports)))
	}
	return removed
}
