package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/storm-data-hailgrid/internal/domain"
	"github.com/couchcryptid/storm-data-hailgrid/internal/grid"
	"github.com/couchcryptid/storm-data-hailgrid/internal/provider"
	"github.com/couchcryptid/storm-data-hailgrid/internal/render"
)

// maxLookback bounds the hours parameter.
const maxLookback = 7 * 24 * time.Hour

// SwathRenderer is the engine behind the hail API routes.
type SwathRenderer interface {
	Render(ctx context.Context, req render.Request) (*render.Result, error)
	Reports(ctx context.Context, q domain.Query) ([]domain.HailReport, error)
}

// Server exposes health, readiness, metrics, and the hail swath API.
type Server struct {
	httpServer *http.Server
	renderer   SwathRenderer
	logger     *slog.Logger
	clock      clockwork.Clock
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, and the
// /api/v1/hail routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, renderer SwathRenderer, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		renderer: renderer,
		logger:   logger,
		clock:    clockwork.NewRealClock(),
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/v1/hail/swaths", s.handleSwaths)
	mux.HandleFunc("GET /api/v1/hail/reports", s.handleReports)

	return s
}

// WithClock sets the clock that ends an hours lookback with no until.
func (s *Server) WithClock(clk clockwork.Clock) *Server {
	if clk != nil {
		s.clock = clk
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleSwaths(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseRequest(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := s.renderer.Render(r.Context(), req)
	if err != nil {
		s.writeRenderError(w, r, err)
		return
	}

	fc := res.Features
	fc.ExtraMembers = map[string]any{
		"render_id":    res.ID,
		"strategy":     res.Strategy,
		"report_count": len(res.Reports),
		"bounds":       res.Bounds,
		"rendered_at":  res.RenderedAt.Format(time.RFC3339),
	}
	data, err := json.Marshal(fc)
	if err != nil {
		s.writeRenderError(w, r, fmt.Errorf("encode swath: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type reportsResponse struct {
	Count   int                 `json:"count"`
	Bounds  domain.Bounds       `json:"bounds"`
	Reports []domain.HailReport `json:"reports"`
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseRequest(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	reports, err := s.renderer.Reports(r.Context(), domain.Query{Bounds: req.Bounds, Since: req.Since, Until: req.Until})
	if err != nil {
		s.writeRenderError(w, r, err)
		return
	}
	if reports == nil {
		reports = []domain.HailReport{}
	}
	sharedobs.WriteJSON(w, http.StatusOK, reportsResponse{Count: len(reports), Bounds: req.Bounds, Reports: reports})
}

// parseRequest reads the box from north/south/east/west or bbox=w,s,e,n, the
// time range from since/until or hours, and an optional strategy.
func (s *Server) parseRequest(v url.Values) (render.Request, error) {
	var req render.Request

	if bbox := v.Get("bbox"); bbox != "" {
		parts := strings.Split(bbox, ",")
		if len(parts) != 4 {
			return req, errors.New("bbox must be west,south,east,north")
		}
		vals := make([]float64, 4)
		for i, p := range parts {
			f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return req, fmt.Errorf("invalid bbox value %q", p)
			}
			vals[i] = f
		}
		req.Bounds = domain.Bounds{West: vals[0], South: vals[1], East: vals[2], North: vals[3]}
	} else {
		for _, f := range []struct {
			name string
			dst  *float64
		}{
			{"north", &req.Bounds.North},
			{"south", &req.Bounds.South},
			{"east", &req.Bounds.East},
			{"west", &req.Bounds.West},
		} {
			raw := v.Get(f.name)
			if raw == "" {
				return req, fmt.Errorf("missing parameter %s", f.name)
			}
			val, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return req, fmt.Errorf("invalid %s %q", f.name, raw)
			}
			*f.dst = val
		}
	}
	if err := req.Bounds.Validate(); err != nil {
		return req, err
	}

	var err error
	if req.Since, err = parseTime(v, "since"); err != nil {
		return req, err
	}
	if req.Until, err = parseTime(v, "until"); err != nil {
		return req, err
	}
	if raw := v.Get("hours"); raw != "" {
		if !req.Since.IsZero() {
			return req, errors.New("use either since or hours, not both")
		}
		h, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(h) || math.IsInf(h, 0) || h <= 0 || h > maxLookback.Hours() {
			return req, fmt.Errorf("invalid hours %q: want a positive number up to %d", raw, int(maxLookback.Hours()))
		}
		lookback := time.Duration(h * float64(time.Hour))
		end := req.Until
		if end.IsZero() {
			end = s.clock.Now()
		}
		req.Since = end.Add(-lookback)
	}
	if !req.Since.IsZero() && !req.Until.IsZero() && req.Until.Before(req.Since) {
		return req, errors.New("until must not be before since")
	}

	if raw := v.Get("strategy"); raw != "" {
		strategy, err := render.ParseStrategy(raw)
		if err != nil {
			return req, err
		}
		req.Strategy = strategy
	}
	return req, nil
}

func parseTime(v url.Values, name string) (time.Time, error) {
	raw := v.Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, ok := domain.ParseTimeString(raw)
	if !ok {
		return time.Time{}, fmt.Errorf("invalid %s %q: want RFC 3339", name, raw)
	}
	return t, nil
}

func (s *Server) writeRenderError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidBounds), errors.Is(err, grid.ErrInvalidResolution):
		status = http.StatusBadRequest
	case errors.Is(err, grid.ErrGridTooLarge):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, provider.ErrNoData):
		status = http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("hail request failed", "path", r.URL.Path, "query", r.URL.RawQuery, "error", err)
	}
	writeError(w, status, err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": err.Error()})
}
