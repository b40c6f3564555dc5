package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Config holds HTTP API server settings
type Config struct {
	Enabled         bool          `toml:"enabled"`
	Address         string        `toml:"address"`
	Port            int           `toml:"port"`
	AllowedOrigins  []string      `toml:"allowed_origins"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

// DefaultConfig serves on port 3000 for a dashboard on localhost:3000
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		Address:         "0.0.0.0",
		Port:            3000,
		AllowedOrigins:  []string{"http://localhost:3000"},
		ShutdownTimeout: 10 * time.Second,
	}
}

// Validate checks the listen address
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535, got %d", c.Port)
	}
	return nil
}

// Addr returns host:port
func (c Config) Addr() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

// Server is the HTTP surface of the sync service
type Server struct {
	httpServer *http.Server
	config     Config
	logger     *slog.Logger
}

// NewServer builds the router and HTTP server
func NewServer(cfg Config, deps Deps, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           NewRouter(cfg, deps, logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
		config: cfg,
		logger: logger,
	}
}

// NewRouter mounts every route on a chi router
func NewRouter(cfg Config, deps Deps, logger *slog.Logger) http.Handler {
	h := &handlers{deps: deps, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, LoggerMiddleware(logger), middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.health)
	r.Get("/ready", h.ready)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.health)

		r.Route("/etl", func(r chi.Router) {
			r.Post("/job/trigger", h.triggerJob)
			r.Get("/job/status", h.jobStatus)
			r.Get("/properties/recent", h.recentProperties)
			r.Get("/properties/{mlsNumber}", h.getProperty)
			r.Post("/properties/{mlsNumber}/refresh", h.refreshProperty)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/updates", h.updates)
			r.Get("/status", h.adminStatus)
			r.Get("/properties", h.adminProperties)
			r.Post("/etl/run", h.triggerJob)
		})
	})

	return r
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until Stop is called
func (s *Server) Start() error {
	s.logger.Info("http api listening", "address", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Stop shuts the server down, waiting up to the configured timeout for open requests
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("stopping http api")
	return s.httpServer.Shutdown(ctx)
}
