// Package server provides the HTTP server for the team radio cache.
package server

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"

	"github.com/trackside/f1radio-cache/backend"
	"github.com/trackside/f1radio-cache/expiry"
	"github.com/trackside/f1radio-cache/openf1"
	"github.com/trackside/f1radio-cache/service"
	"github.com/trackside/f1radio-cache/store"
	"github.com/trackside/f1radio-cache/telemetry"
)

// Config holds server configuration.
type Config struct {
	// Address to listen on (e.g., ":8000")
	Address string

	// UpstreamBaseURL is the OpenF1 API base URL
	UpstreamBaseURL string

	// CacheDir is the root path for cached JSON documents
	CacheDir string

	// PurgeMaxAge is the age after which cached entries are removed.
	// Zero disables purging.
	PurgeMaxAge time.Duration

	// PurgeCheckInterval is how often to run the purge sweep.
	// Default is 1 hour.
	PurgeCheckInterval time.Duration

	// Logger for the server
	Logger *slog.Logger
}

// Server is the HTTP server for the team radio cache.
type Server struct {
	config     Config
	httpServer *http.Server
	logger     *slog.Logger

	backend     backend.Backend
	store       *store.Store
	coordinator *service.Coordinator
	purgeMgr    *expiry.Manager
}

// New creates a new server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Address == "" {
		cfg.Address = ":8000"
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = "./data"
	}

	fsBackend, err := backend.NewFilesystem(cfg.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("creating filesystem backend: %w", err)
	}
	instrumented := backend.NewInstrumented(fsBackend, "filesystem")

	cacheStore := store.New(instrumented,
		store.WithLogger(cfg.Logger.With("component", "store")),
	)

	upstreamOpts := []openf1.Option{
		openf1.WithLogger(cfg.Logger.With("component", "openf1")),
	}
	if cfg.UpstreamBaseURL != "" {
		upstreamOpts = append(upstreamOpts, openf1.WithBaseURL(cfg.UpstreamBaseURL))
	}
	upstream := openf1.NewUpstream(upstreamOpts...)

	coordinator := service.New(upstream, cacheStore,
		service.WithLogger(cfg.Logger.With("component", "coordinator")),
	)

	var purgeMgr *expiry.Manager
	if cfg.PurgeMaxAge > 0 {
		purgeCfg := expiry.Config{
			MaxAge:        cfg.PurgeMaxAge,
			CheckInterval: cfg.PurgeCheckInterval,
			Logger:        cfg.Logger.With("component", "expiry"),
		}
		if purgeCfg.CheckInterval == 0 {
			purgeCfg.CheckInterval = 1 * time.Hour
		}
		purgeMgr = expiry.NewManager(cacheStore, purgeCfg)
	}

	s := &Server{
		config:      cfg,
		logger:      cfg.Logger,
		backend:     instrumented,
		store:       cacheStore,
		coordinator: coordinator,
		purgeMgr:    purgeMgr,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      gzhttp.GzipHandler(s.loggingMiddleware(mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// registerRoutes sets up the HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Health check
	mux.HandleFunc("GET /health", s.handleHealth)

	// Prometheus metrics endpoint (returns 404 if not enabled)
	mux.Handle("GET /metrics", telemetry.PrometheusHandler())

	// Session catalog
	mux.HandleFunc("GET /sessions", s.handleSessions)
	mux.HandleFunc("GET /sessions/latest", s.handleLatestSession)
	mux.HandleFunc("GET /sessions/{sessionKey}", s.handleSessionByKey)
	mux.HandleFunc("GET /sessions/{sessionKey}/summary", s.handleSessionSummary)

	// Meetings
	mux.HandleFunc("GET /meetings", s.handleMeetings)
	mux.HandleFunc("GET /meetings/{meetingKey}", s.handleMeetingDetail)

	// Drivers
	mux.HandleFunc("GET /drivers", s.handleDrivers)
	mux.HandleFunc("GET /drivers/{driverNumber}", s.handleDriverByNumber)
	mux.HandleFunc("GET /drivers/{driverNumber}/stats", s.handleDriverStats)

	// Team radio
	mux.HandleFunc("GET /radio/session/{sessionKey}", s.handleSessionRadios)
	mux.HandleFunc("GET /radio/latest", s.handleLatestRadios)
	mux.HandleFunc("GET /radio/driver/{driverNumber}", s.handleDriverRadios)
	mux.HandleFunc("POST /radio/sync/{sessionKey}", s.handleSync)
	mux.HandleFunc("GET /radio/cache/status", s.handleCacheStatus)
}

// handleHealth verifies the cache directory is readable before
// reporting healthy.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "health")

	status, err := s.coordinator.CacheStatus(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "cache unavailable: %v", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"cached_sessions": status.CachedSessions,
	})
}

// loggingMiddleware logs HTTP requests with structured fields for analysis.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		// Inject request tags so handlers can set cache_result, endpoint, etc.
		r = telemetry.InjectTags(r)
		tags := telemetry.GetTags(r)

		// Wrap response writer to capture status and bytes
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)

		attrs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,

			"status", wrapped.status,
			"status_class", telemetry.StatusClass(wrapped.status),
			"bytes_sent", wrapped.bytesWritten,

			"duration_ms", duration.Milliseconds(),
			"duration", duration.String(),

			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		}

		if tags.Endpoint != "" {
			attrs = append(attrs, "endpoint", tags.Endpoint)
		}
		if tags.CacheResult != "" {
			attrs = append(attrs, "cache_result", string(tags.CacheResult))
		}

		s.logger.Info("http request", attrs...)

		telemetry.RecordHTTP(r.Context(), r, wrapped.status, wrapped.bytesWritten, duration)
	})
}

// Start starts the server.
func (s *Server) Start() error {
	if s.purgeMgr != nil {
		s.logger.Info("starting purge manager",
			"max_age", s.config.PurgeMaxAge,
			"check_interval", s.config.PurgeCheckInterval,
		)
		if err := s.purgeMgr.Start(context.Background()); err != nil {
			return fmt.Errorf("starting purge manager: %w", err)
		}
	}

	s.logger.Info("starting server", "address", s.config.Address)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	if s.purgeMgr != nil {
		s.purgeMgr.Stop()
	}

	return s.httpServer.Shutdown(ctx)
}

// Address returns the server's listen address.
func (s *Server) Address() string {
	return s.config.Address
}

// Handler returns the server's root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// responseWriter wraps http.ResponseWriter to capture the status code and bytes written.
// It preserves http.Flusher and http.Hijacker interfaces for streaming support.
type responseWriter struct {
	http.ResponseWriter
	status       int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// Flush implements http.Flusher for streaming responses.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack implements http.Hijacker for connection upgrades.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("hijacking not supported")
}

// Unwrap returns the underlying ResponseWriter.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
