// Package server implements the script generator HTTP server: REST API,
// SSE task events, and metrics.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"github.com/K-Arthur/script-generator/config"
	"github.com/K-Arthur/script-generator/events"
	"github.com/K-Arthur/script-generator/server/api"
	"github.com/K-Arthur/script-generator/server/sse"
)

// Server is the script generator HTTP server.
type Server struct {
	cfg     config.ServerConfig
	mux    *http.ServeMux
	logger *slog.Logger

	srvMu   sync.Mutex
	httpSrv *http.Server

	handlers *api.Handlers
	hub      *sse.Hub
	metrics  http.Handler
	unsub    func()

	routesOnce sync.Once
	handler    http.Handler
}

// New creates a new Server with the given config and logger.
func New(cfg config.ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		mux:    http.NewServeMux(),
		logger: logger,
		hub:    sse.NewHub(logger),
	}
}

// SetHandlers attaches the REST API handlers.
func (s *Server) SetHandlers(h *api.Handlers) {
	s.handlers = h
}

// SetEvents subscribes the SSE hub to task lifecycle events.
func (s *Server) SetEvents(bus events.Bus) {
	if s.unsub != nil {
		s.unsub()
	}
	s.unsub = bus.Subscribe(s.hub.Handle)
}

// SetMetrics sets the handler served at /metrics.
func (s *Server) SetMetrics(h http.Handler) {
	s.metrics = h
}

// Handler returns the fully wrapped HTTP handler, registering routes on
// first use.
func (s *Server) Handler() http.Handler {
	s.routesOnce.Do(func() {
		s.registerRoutes()
		s.handler = s.withCORS(s.withRequestLog(s.mux))
	})
	return s.handler
}

// Start listens on the configured address and serves until Stop. It
// returns http.ErrServerClosed after Stop.
func (s *Server) Start() error {
	addr := s.cfg.Addr
	if addr == "" {
		addr = ":8000"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Stop.
func (s *Server) Serve(ln net.Listener) error {
	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
	}
	httpSrv.RegisterOnShutdown(s.hub.Close)

	s.srvMu.Lock()
	s.httpSrv = httpSrv
	s.srvMu.Unlock()

	s.logger.Info("server listening", slog.String("addr", ln.Addr().String()))
	return httpSrv.Serve(ln)
}

// Stop gracefully shuts down the HTTP server. Open event streams are
// closed first so they do not hold the shutdown until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	if s.unsub != nil {
		s.unsub()
	}
	s.hub.Close()

	s.srvMu.Lock()
	httpSrv := s.httpSrv
	s.srvMu.Unlock()
	if httpSrv == nil {
		return nil
	}
	if err := httpSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// registerRoutes sets up all HTTP routes. Event streams and metrics are
// served uncompressed; everything else goes through gzip when enabled.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /events", s.hub.ServeSSE)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics)
	}

	apiMux := http.NewServeMux()
	if s.handlers != nil {
		s.handlers.RegisterRoutes(apiMux)
	}

	var apiHandler http.Handler = apiMux
	if s.cfg.Gzip {
		apiHandler = gzhttp.GzipHandler(apiMux)
	}
	s.mux.Handle("/", apiHandler)
}

// withCORS sets the allow-origin header and answers preflight requests.
func (s *Server) withCORS(next http.Handler) http.Handler {
	origin := s.cfg.CORSOrigin
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush lets SSE streams work through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("elapsed", time.Since(start)))
	})
}
