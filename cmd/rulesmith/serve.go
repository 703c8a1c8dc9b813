package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensource-health/rulesmith/internal/api"
	"github.com/opensource-health/rulesmith/internal/backend"
	"github.com/opensource-health/rulesmith/internal/breaker"
	"github.com/opensource-health/rulesmith/internal/bus"
	"github.com/opensource-health/rulesmith/internal/cache"
	"github.com/opensource-health/rulesmith/internal/config"
	"github.com/opensource-health/rulesmith/internal/designer"
	"github.com/opensource-health/rulesmith/internal/domain"
	"github.com/opensource-health/rulesmith/internal/factors"
	"github.com/opensource-health/rulesmith/internal/observability"
	"github.com/opensource-health/rulesmith/internal/preview"
	"github.com/opensource-health/rulesmith/internal/repository"
	"github.com/opensource-health/rulesmith/internal/search"
)

const sweepInterval = time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the designer HTTP API",
	RunE:  runServe,
}

func init() {
	def := domain.DefaultConfig()
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", def.Server.Host, "HTTP listen host")
	serveCmd.Flags().Int("port", def.Server.Port, "HTTP listen port")
	serveCmd.Flags().String("backend-url", def.Backend.BaseURL, "TPA backend base URL")
	serveCmd.Flags().String("db-driver", def.Repository.Driver, "journal driver (sqlite, postgres)")
	serveCmd.Flags().String("db-path", def.Repository.SQLitePath, "SQLite journal path")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	setupLogger(cfg.Logging)
	observability.Version = Version

	slog.Info("starting rulesmith",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"backend", cfg.Backend.BaseURL,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := observability.InitTracing(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to flush traces", "error", err)
		}
	}()

	var sessions *designer.SessionStore
	metrics := observability.NewMetrics(func() float64 {
		if sessions == nil {
			return 0
		}
		return float64(sessions.Len())
	})

	breakerCfg := breaker.DefaultConfig("tpa-backend")
	breakerCfg.MaxRequests = cfg.Backend.BreakerMaxRequests
	breakerCfg.Interval = cfg.Backend.BreakerInterval
	breakerCfg.Timeout = cfg.Backend.BreakerTimeout
	breakerCfg.FailureRatio = cfg.Backend.BreakerFailureRatio
	breakerCfg.MinRequests = cfg.Backend.BreakerMinRequests
	breakerCfg.IsSuccessful = backend.BreakerSuccess
	breakerCfg.OnStateChange = func(name string, from, to breaker.State) {
		metrics.SetBreakerState(name, string(to))
	}
	cb, err := breaker.New(breakerCfg)
	if err != nil {
		return fmt.Errorf("failed to create circuit breaker: %w", err)
	}

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	client, err := backend.New(backend.Options{
		BaseURL:  cfg.Backend.BaseURL,
		APIKey:   cfg.Backend.APIKey,
		Timeout:  cfg.Backend.Timeout,
		Breaker:  cb,
		Cache:    cacheImpl,
		CacheTTL: cfg.Search.CacheTTL,
		Observer: metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create backend client: %w", err)
	}

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	taxonomy := factors.DefaultTaxonomy()
	parser := factors.NewLenientParser(taxonomy)
	compiler := designer.NewCompiler(parser)

	sessions = designer.NewSessionStore(designer.Deps{
		Reducer:   designer.NewReducer(taxonomy),
		Compiler:  compiler,
		Creator:   client,
		Journal:   repo,
		Publisher: busImpl,
	}, cfg.Sessions.IdleTTL)
	go sessions.Run(ctx, sweepInterval)

	sim, err := preview.NewSimulator(parser)
	if err != nil {
		return fmt.Errorf("failed to create simulator: %w", err)
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Taxonomy:   taxonomy,
		Compiler:   compiler,
		Simulator:  sim,
		Sessions:   sessions,
		Catalog:    search.NewCatalog(client, client, cfg.Search.Debounce, cfg.Search.DefaultSize),
		Repository: repo,
		Cache:      cacheImpl,
		Bus:        busImpl,
		Backend:    client,
		Breaker:    cb,
		Metrics:    metrics,
		Version:    Version,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("rulesmith is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"factors", taxonomy.Len(),
	)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}
	slog.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("rulesmith shutdown complete")
	return nil
}
