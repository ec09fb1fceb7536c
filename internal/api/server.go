// Package api provides the health and metrics HTTP server.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/whale-role-bot/internal/logging"
	"github.com/whale-role-bot/internal/metrics"
)

// Pinger is a dependency the health endpoint checks
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	checks     map[string]Pinger
	config     *ServerConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// HealthTimeout bounds the dependency pings of one /health request
	HealthTimeout time.Duration
}

// DefaultServerConfig returns timeouts suitable for a health endpoint
func DefaultServerConfig(host, port string) *ServerConfig {
	return &ServerConfig{
		Host:            host,
		Port:            port,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		HealthTimeout:   3 * time.Second,
	}
}

// NewServer creates a new server. checks maps a dependency name to its pinger.
func NewServer(config *ServerConfig, checks map[string]Pinger) *Server {
	s := &Server{
		router: mux.NewRouter(),
		checks: checks,
		config: config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)

	s.router.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	logging.WithField("addr", s.httpServer.Addr).Info("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
