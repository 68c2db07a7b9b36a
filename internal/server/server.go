// File: internal/server/server.go
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pentestd/internal/config"
	"github.com/xkilldash9x/pentestd/internal/observability"
)

const defaultShutdownTimeout = 15 * time.Second

// Deps are the collaborators the API serves.
type Deps struct {
	Scans   ScanService
	Reports ReportService
	Metrics *observability.Metrics
	Version string
}

// Server is the HTTP front end for scans and reports.
type Server struct {
	cfg        config.ServerConfig
	metricsCfg config.MetricsConfig
	logger     *zap.Logger
	handlers   *Handlers
	metrics    *observability.Metrics
	httpServer *http.Server
}

// New creates the server. It does not listen until Run or Serve is called.
func New(cfg config.ServerConfig, metricsCfg config.MetricsConfig, deps Deps, logger *zap.Logger) (*Server, error) {
	if deps.Scans == nil || deps.Reports == nil {
		return nil, fmt.Errorf("server requires both scan and report services")
	}
	logger = logger.Named("server")

	s := &Server{
		cfg:        cfg,
		metricsCfg: metricsCfg,
		logger:     logger,
		handlers:   NewHandlers(logger, deps.Scans, deps.Reports, deps.Version),
		metrics:    deps.Metrics,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}
	return s, nil
}

// Handler builds the router with its middleware chain.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(recoverer(s.logger))
	r.Use(corsMiddleware(s.cfg.AllowedOrigins, s.logger))

	// The exposition handler negotiates its own encoding.
	if s.metricsCfg.Enabled && s.metrics != nil {
		path := s.metricsCfg.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, s.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if s.cfg.Compression {
			r.Use(compressMiddleware)
		}
		s.handlers.RegisterRoutes(r)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteJSONError(w, s.logger, http.StatusNotFound, "ROUTE_NOT_FOUND", "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteJSONError(w, s.logger, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", r.Method+" is not allowed on "+r.URL.Path)
	})
	return r
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully within the configured timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("API server starting", zap.String("address", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server Serve error", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down API server gracefully...")
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("API server stopped.")
	return nil
}
