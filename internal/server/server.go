package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jpalmerr/entrywatch"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// This prevents goroutine leaks when clients are slow or disconnected.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second

	// defaultTitle is used when no custom title is configured.
	defaultTitle = "entrywatch"

	// titlePlaceholder is the marker in HTML that gets replaced with the actual title.
	titlePlaceholder = "{{.Title}}"
)

// Engine is the part of [entrywatch.Watcher] the server drives.
type Engine interface {
	ListTargets() []entrywatch.Target
	GetTarget(id string) (entrywatch.Target, error)
	AddTarget(ctx context.Context, spec entrywatch.TargetSpec) (entrywatch.Target, error)
	DeleteTarget(id string) (bool, error)
	History(ctx context.Context, id string, limit int) ([]entrywatch.HistoryEntry, error)
	Subscribe() (<-chan entrywatch.TargetEvent, func())
}

// Option configures optional [Server] features.
type Option func(*Server)

// WithAlertFeed streams alerts fired through feed to SSE clients.
func WithAlertFeed(feed *AlertFeed) Option {
	return func(s *Server) { s.alerts = feed }
}

// WithGatherer serves the metrics of g at /metrics instead of the default
// Prometheus registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// Server handles HTTP requests for the entrywatch dashboard and admin API.
//
// Routes:
//   - GET /: the embedded dashboard
//   - GET, POST /api/targets and GET, DELETE /api/targets/{id}: target admin
//   - GET /api/sse: Server-Sent Events stream of target changes and alerts
//   - GET /healthz and GET /metrics
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	engine     Engine
	alerts     *AlertFeed
	gatherer   prometheus.Gatherer
	port       int
	httpServer *http.Server
	assets     fs.FS
	title      string
	logger     *slog.Logger
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - engine: the running watcher
//   - port: TCP port to listen on
//   - assets: Embedded filesystem containing dashboard assets (may be nil)
//   - title: Dashboard title (defaults to "entrywatch" if empty)
//   - logger: Logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(engine Engine, port int, assets fs.FS, title string, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine: engine,
		port:   port,
		assets: assets,
		title:  title,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the router serving every route.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	metrics := promhttp.Handler()
	if s.gatherer != nil {
		metrics = promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
	}
	r.Method(http.MethodGet, "/metrics", metrics)
	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/targets", s.handleListTargets)
		r.Post("/targets", s.handleCreateTarget)
		r.Get("/targets/{id}", s.handleGetTarget)
		r.Delete("/targets/{id}", s.handleDeleteTarget)
		r.Get("/targets/{id}/history", s.handleTargetHistory)
		r.Get("/sse", s.handleSSE)
	})

	if s.assets != nil {
		r.Get("/", s.handleDashboard)
	}
	return r
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts derive from ctx, so SSE handlers end on shutdown
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	s.logger.Info("http server listening", "addr", ln.Addr().String())
	return nil
}

// handleDashboard serves the main dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	content, err := fs.ReadFile(s.assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// apply title substitution with HTML escaping to prevent XSS
	title := s.title
	if title == "" {
		title = defaultTitle
	}
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"targets": len(s.engine.ListTargets()),
	})
}

// sseMessage is one Server-Sent Events payload. Type is added, updated or
// removed for target changes and alert for fired alerts.
type sseMessage struct {
	Type   string            `json:"type"`
	Target *TargetResponse   `json:"target,omitempty"`
	Alert  *entrywatch.Alert `json:"alert,omitempty"`
}

// handleSSE streams target changes and alerts via Server-Sent Events.
//
// The handler uses write deadlines to prevent goroutine leaks when clients are
// slow or disconnected. Without deadlines, a blocked Fprintf call would prevent
// the handler from detecting context cancellation or channel closure.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)
	deadlinesSupported := true

	send := func(msg sseMessage) error {
		data, err := json.Marshal(msg)
		if err != nil {
			return nil
		}
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Debug("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	events, unsubscribe := s.engine.Subscribe()
	defer unsubscribe()

	// a nil channel never fires, so a server without a feed streams targets only
	var alerts <-chan entrywatch.Alert
	if s.alerts != nil {
		ch := s.alerts.Subscribe()
		defer s.alerts.Unsubscribe(ch)
		alerts = ch
	}

	// initial snapshot (also protected by write deadline)
	for _, t := range s.engine.ListTargets() {
		resp := toResponse(t)
		if err := send(sseMessage{Type: string(entrywatch.TargetAdded), Target: &resp}); err != nil {
			return
		}
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			resp := toResponse(ev.Target)
			if err := send(sseMessage{Type: string(ev.Type), Target: &resp}); err != nil {
				return
			}

		case alert, ok := <-alerts:
			if !ok {
				return
			}
			if err := send(sseMessage{Type: "alert", Alert: &alert}); err != nil {
				return
			}

		case <-r.Context().Done():
			// fires on both client disconnect and server shutdown
			return
		}
	}
}
