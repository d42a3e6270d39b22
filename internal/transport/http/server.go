package http

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"outbreak/internal/app"
	"outbreak/internal/config"
	"outbreak/internal/store"
	"outbreak/internal/store/memstore"
	"outbreak/internal/transport/ws"
)

// Server represents the HTTP server
type Server struct {
	server    *http.Server
	store     *memstore.Store
	reader    store.Store
	directory *app.Directory
	config    *config.Config
	logger    *slog.Logger
}

// NewServer creates a new HTTP server over the relay's document
func NewServer(cfg *config.Config, st *memstore.Store, logger *slog.Logger) *Server {
	reader := st.Connect("http")
	s := &Server{
		store:     st,
		reader:    reader,
		directory: app.NewDirectory(reader, logger),
		config:    cfg,
		logger:    logger,
	}

	mux := http.NewServeMux()
	s.setupRoutes(mux)

	// No WriteTimeout: relay sockets are hijacked and manage their own deadlines.
	s.server = &http.Server{
		Addr:              cfg.GetAddr(),
		Handler:           s.middleware(mux),
		ReadHeaderTimeout: orDefault(cfg.Server.ReadHeaderTimeout, 15*time.Second),
		IdleTimeout:       orDefault(cfg.Server.IdleTimeout, 60*time.Second),
	}

	return s
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// Handler returns the routed handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/join/{code}", s.handleJoinInfo)

	// Store relay
	mux.Handle("GET /ws", ws.NewHandler(s.store, s.logger))
}

// middleware adds CORS headers and logs every request except health probes
// outside development.
func (s *Server) middleware(next http.Handler) http.Handler {
	origin := s.config.Server.AllowedOrigin
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if r.URL.Path == "/api/health" && !s.config.IsDevelopment() {
			return
		}
		level := slog.LevelInfo
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("server starting", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	return s.server.Shutdown(ctx)
}

// statusRecorder remembers the response status. It must stay hijackable for
// the relay upgrade.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return h.Hijack()
}

func (rec *statusRecorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
