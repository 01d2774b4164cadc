// Package server exposes the reconciled live state over a local read-only HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/agenticgokit/crewview/internal/audit"
	"github.com/agenticgokit/crewview/internal/live"
	"github.com/agenticgokit/crewview/internal/trace"
	"github.com/agenticgokit/crewview/internal/utils"
)

const shutdownTimeout = 10 * time.Second

// Server serves snapshots of a live.Store
type Server struct {
	store  *live.Store
	echo   *echo.Echo
	logger *zerolog.Logger
	now    func() time.Time
}

// New creates a server reading from store
func New(store *live.Store, logger *zerolog.Logger) *Server {
	if logger == nil {
		logger = utils.NopLogger()
	}
	s := &Server{
		store:  store,
		echo:   echo.New(),
		logger: logger,
		now:    time.Now,
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true

	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))
	s.RegisterRoutes(s.echo)
	return s
}

// Handler returns the HTTP handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// RegisterRoutes registers the read-only API
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", s.Health)

	api := e.Group("/api")
	api.GET("/state", s.State)
	api.GET("/traces", s.ListTraces)
	api.GET("/traces/:id", s.GetTrace)
	api.GET("/traces/:id/spans", s.ListSpans)
	api.GET("/metrics", s.Metrics)
}

// Start serves on addr until ctx is cancelled
func (s *Server) Start(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info().Str("addr", addr).Msg("local API started")

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	s.logger.Info().Msg("local API stopped")
	return nil
}

// Health reports liveness and the upstream connection state.
// GET /healthz
func (s *Server) Health(c echo.Context) error {
	conn, err := s.store.Conn()
	resp := map[string]any{
		"status":     "ok",
		"connection": conn,
	}
	if err != nil {
		resp["error"] = err.Error()
	}
	return c.JSON(http.StatusOK, resp)
}

// StateResponse is the body of GET /api/state
type StateResponse struct {
	Connection live.ConnState `json:"connection"`
	LastError  string         `json:"last_error,omitempty"`
	State      live.State     `json:"state"`
}

// State returns the full reconciled state.
// GET /api/state
func (s *Server) State(c echo.Context) error {
	conn, _ := s.store.Conn()
	return c.JSON(http.StatusOK, StateResponse{
		Connection: conn,
		LastError:  s.store.LastError(),
		State:      s.store.Snapshot(),
	})
}

// TraceInfo is one row of GET /api/traces
type TraceInfo struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Status    trace.Status `json:"status"`
	Format    trace.Format `json:"format"`
	StartTime int64        `json:"start_time"`
	EndTime   *int64       `json:"end_time,omitempty"`
	SpanCount int          `json:"span_count"`
}

// ListTraces lists the known traces.
// GET /api/traces
func (s *Server) ListTraces(c echo.Context) error {
	traces := s.store.Snapshot().Traces.Items()
	out := make([]TraceInfo, 0, len(traces))
	for _, t := range traces {
		out = append(out, TraceInfo{
			ID:        t.ID,
			Name:      t.Name,
			Status:    t.Status,
			Format:    t.Format,
			StartTime: t.StartTime,
			EndTime:   t.EndTime,
			SpanCount: t.SpanCount(),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"traces": out})
}

// GetTrace returns one normalized trace with its span tree.
// GET /api/traces/:id
func (s *Server) GetTrace(c echo.Context) error {
	t, ok := s.findTrace(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "trace not found"})
	}
	return c.JSON(http.StatusOK, t)
}

// SpanRow is one flattened span
type SpanRow struct {
	ID         string       `json:"id"`
	ParentID   string       `json:"parent_id,omitempty"`
	Name       string       `json:"name"`
	Kind       string       `json:"kind"`
	Status     trace.Status `json:"status"`
	Depth      int          `json:"depth"`
	StartTime  int64        `json:"start_time"`
	EndTime    *int64       `json:"end_time,omitempty"`
	DurationMs int64        `json:"duration_ms"`
	Events     int          `json:"events"`
}

// ListSpans returns the span tree of a trace flattened depth-first.
// GET /api/traces/:id/spans
func (s *Server) ListSpans(c echo.Context) error {
	t, ok := s.findTrace(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "trace not found"})
	}

	flat := trace.Flatten(t.Roots)
	rows := make([]SpanRow, 0, len(flat))
	for _, fs := range flat {
		rows = append(rows, SpanRow{
			ID:         fs.ID,
			ParentID:   fs.ParentID,
			Name:       fs.Name,
			Kind:       fs.Kind(),
			Status:     fs.Status,
			Depth:      fs.Level,
			StartTime:  fs.StartTime,
			EndTime:    fs.EndTime,
			DurationMs: fs.DurationMs,
			Events:     len(fs.Events),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"trace_id": t.ID, "spans": rows})
}

// Metrics aggregates the events of one trace into call records and counts.
// The latest trace is used unless ?trace_id= names another.
// GET /api/metrics
func (s *Server) Metrics(c echo.Context) error {
	var t *trace.Trace
	if id := c.QueryParam("trace_id"); id != "" {
		found, ok := s.findTrace(id)
		if !ok {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "trace not found"})
		}
		t = found
	} else {
		t = s.store.Snapshot().LatestTrace()
	}

	if t == nil {
		return c.JSON(http.StatusOK, audit.Aggregate(nil, audit.Window{}, s.now()))
	}
	return c.JSON(http.StatusOK, audit.Aggregate(t.AllEvents(), audit.WindowOf(t), s.now()))
}

func (s *Server) findTrace(id string) (*trace.Trace, bool) {
	return s.store.Snapshot().Traces.Get(id)
}
