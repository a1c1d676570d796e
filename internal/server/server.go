package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/burnssa/superjective-extension/internal/audit"
	"github.com/burnssa/superjective-extension/internal/config"
	"github.com/burnssa/superjective-extension/internal/drafts"
	"github.com/burnssa/superjective-extension/internal/logger"
	"github.com/burnssa/superjective-extension/internal/observability"
	"github.com/burnssa/superjective-extension/internal/privacy"
	"github.com/burnssa/superjective-extension/internal/ratelimit"
	"github.com/burnssa/superjective-extension/internal/web"
	"github.com/burnssa/superjective-extension/internal/websocket"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

// ResultStore caches redaction results
type ResultStore interface {
	Get(ctx context.Context, text string) (*privacy.Result, bool)
	Store(ctx context.Context, text string, result privacy.Result) error
}

// Recorder persists finding counts
type Recorder interface {
	Record(ctx context.Context, f audit.Finding) error
}

// DraftService generates and completes drafts on the remote service
type DraftService interface {
	GenerateDrafts(ctx context.Context, req drafts.GenerateRequest) (*drafts.DraftSet, error)
	CompleteDrafts(ctx context.Context, req drafts.CompleteRequest) (map[string]any, error)
}

// Deps are the collaborators of a Server. Only Engine is required.
type Deps struct {
	Engine     *privacy.Engine
	Recognizer string
	Cache      ResultStore
	Audit      Recorder
	Drafts     DraftService
	Hub        *websocket.Hub
	Limiter    *ratelimit.Limiter
	Metrics    *observability.Metrics
	Registry   *prometheus.Registry
	Tracer     *observability.Tracer
	Version    string
}

// Server is the local redaction API used by the browser extension
type Server struct {
	config  *config.Config
	logger  *logger.Logger
	deps    Deps
	router  *mux.Router
	server  *http.Server
	started time.Time
}

// New creates a new server instance
func New(cfg *config.Config, log *logger.Logger, deps Deps) (*Server, error) {
	if deps.Engine == nil {
		return nil, fmt.Errorf("server requires a redaction engine")
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}

	s := &Server{
		config:  cfg,
		logger:  log.WithComponent("server"),
		deps:    deps,
		router:  mux.NewRouter(),
		started: time.Now(),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.metricsMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	if s.deps.Metrics != nil && s.deps.Registry != nil {
		s.router.Handle("/metrics", s.deps.Metrics.Handler(s.deps.Registry)).Methods(http.MethodGet)
	}

	if s.deps.Hub != nil && s.config.WebSocket.Enabled {
		path := s.config.WebSocket.Path
		if path == "" {
			path = "/ws"
		}
		s.router.HandleFunc(path, s.deps.Hub.HandleWebSocket).Methods(http.MethodGet)
		s.router.HandleFunc("/", web.ServeDashboard).Methods(http.MethodGet)
		s.router.HandleFunc("/dashboard", web.ServeDashboard).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.rateLimitMiddleware)
	api.Use(s.bodyLimitMiddleware)
	api.HandleFunc("/filter", s.handleFilter).Methods(http.MethodPost)
	api.HandleFunc("/summary", s.handleSummary).Methods(http.MethodPost)
	api.HandleFunc("/contains", s.handleContains).Methods(http.MethodPost)
	api.HandleFunc("/drafts", s.handleGenerateDrafts).Methods(http.MethodPost)
	api.HandleFunc("/drafts/{id}/complete", s.handleCompleteDrafts).Methods(http.MethodPost)
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	bgCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.deps.Hub != nil {
		go s.deps.Hub.Run(bgCtx)
	}
	if s.deps.Limiter != nil {
		go s.deps.Limiter.Run(bgCtx, 5*time.Minute)
	}

	s.logger.Info("Starting redaction server",
		zap.String("addr", s.server.Addr),
		zap.Strings("rules", s.deps.Engine.Rules()),
		zap.String("recognizer", s.deps.Recognizer),
		zap.Bool("cache", s.deps.Cache != nil),
		zap.Bool("audit", s.deps.Audit != nil),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Stopping redaction server")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// UpdateConfig applies the settings that may change at runtime
func (s *Server) UpdateConfig(cfg *config.Config) {
	if s.deps.Limiter != nil {
		s.deps.Limiter.Update(cfg.RateLimit)
	}
	s.logger.Info("Configuration reloaded",
		zap.Bool("rate_limit", cfg.RateLimit.Enabled),
		zap.Int("requests_per_min", cfg.RateLimit.RequestsPerMin))
}
