// Package api provides the HTTP surfaces of the portfolio bot and the snapshot scheduler.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/portfolio-tracker/internal/logging"
)

// RouteRegistrar mounts a group of handlers on the router
type RouteRegistrar interface {
	RegisterRoutes(r *mux.Router)
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	handler    http.Handler
	httpServer *http.Server
	config     *ServerConfig
	logger     *logging.Logger
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// RequestsPerMinute per client IP; zero disables rate limiting.
	RequestsPerMinute int
}

// DefaultServerConfig returns timeouts suited to both services. The write
// timeout is generous because the total query walks every held asset.
func DefaultServerConfig(host, port string, requestsPerMinute int) *ServerConfig {
	return &ServerConfig{
		Host:              host,
		Port:              port,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		RequestsPerMinute: requestsPerMinute,
	}
}

// NewServer creates a new API server instance serving the given route groups.
func NewServer(config *ServerConfig, logger *logging.Logger, registrars ...RouteRegistrar) *Server {
	s := &Server{
		router: mux.NewRouter(),
		config: config,
		logger: logger.WithField("component", "api"),
	}

	s.setupRouter(registrars)

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter(registrars []RouteRegistrar) {
	// order matters
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware)
	if s.config.RequestsPerMinute > 0 {
		s.router.Use(RateLimitMiddleware(NewRateLimiter(s.config.RequestsPerMinute)))
	}
	s.router.Use(CompressionMiddleware)

	for _, r := range registrars {
		r.RegisterRoutes(s.router)
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "route not found", map[string]interface{}{
			"path": r.URL.Path,
		})
	})

	// mux runs middleware only on matched routes; preflights match none
	s.handler = CORSMiddleware(s.router)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start starts the HTTP server. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	if s.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
	}
	return s.httpServer.Shutdown(ctx)
}
