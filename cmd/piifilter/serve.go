package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/burnssa/superjective-extension/internal/audit"
	"github.com/burnssa/superjective-extension/internal/auth"
	"github.com/burnssa/superjective-extension/internal/cache"
	"github.com/burnssa/superjective-extension/internal/config"
	"github.com/burnssa/superjective-extension/internal/drafts"
	"github.com/burnssa/superjective-extension/internal/observability"
	"github.com/burnssa/superjective-extension/internal/ratelimit"
	"github.com/burnssa/superjective-extension/internal/server"
	"github.com/burnssa/superjective-extension/internal/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(configPath *string) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local redaction API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			return runServer(cmd.Context(), cfg, *configPath)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Override server.port")
	return cmd
}

func runServer(ctx context.Context, cfg *config.Config, configPath string) error {
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("Starting piifilter",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", buildDate),
		zap.Int("port", cfg.Server.Port),
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	tracer, err := observability.NewTracer(ctx, cfg.Tracing, version)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(flushCtx); err != nil {
			log.Warn("Failed to flush traces", zap.Error(err))
		}
	}()

	eng, err := buildEngine(cfg, log, metrics)
	if err != nil {
		return err
	}
	defer eng.Close()

	deps := server.Deps{
		Engine:     eng.Engine,
		Recognizer: eng.backend(),
		Metrics:    metrics,
		Registry:   registry,
		Tracer:     tracer,
		Version:    version,
		Limiter:    ratelimit.New(cfg.RateLimit),
	}

	if cfg.Cache.Enabled {
		rc, err := cache.NewResultCache(cfg.Cache, scopeOf(eng), log, metrics)
		if err != nil {
			log.Warn("Result cache unavailable, continuing without it", zap.Error(err))
		} else {
			defer rc.Close()
			deps.Cache = rc
		}
	}

	if cfg.Audit.Enabled {
		store, err := audit.NewStore(cfg.Audit, log)
		if err != nil {
			log.Warn("Audit store unavailable, continuing without it", zap.Error(err))
		} else {
			defer store.Close()
			deps.Audit = store
		}
	}

	if cfg.WebSocket.Enabled {
		deps.Hub = websocket.NewHub(cfg.WebSocket, log)
	}

	if cfg.Drafts.APIBase != "" {
		deps.Drafts = drafts.NewClient(cfg.Drafts, auth.FromConfig(cfg.Auth), eng.Engine, log)
	}

	srv, err := server.New(cfg, log, deps)
	if err != nil {
		return err
	}

	if configPath != "" {
		if err := config.Watch(configPath, srv.UpdateConfig); err != nil {
			log.Warn("Config hot reload disabled", zap.Error(err))
		}
	}

	if err := srv.Run(ctx); err != nil {
		return err
	}
	log.Info("Server shutdown complete")
	return nil
}

// scopeOf keys cache entries to the enabled rules and recognizer so a
// reconfigured engine never serves results computed under other settings.
func scopeOf(e *engine) string {
	return strings.Join(e.Rules(), ",") + "|" + e.backend()
}
