// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/starford/vaultkeep/internal/api"
	"github.com/starford/vaultkeep/internal/engine"
	"github.com/starford/vaultkeep/internal/index"
	"github.com/starford/vaultkeep/internal/mcpserver"
	"github.com/starford/vaultkeep/internal/metrics"
	"github.com/starford/vaultkeep/internal/sse"
	"github.com/starford/vaultkeep/internal/watcher"
)

// Run serves the HTTP API, keeping the engine in step with the vault through
// the watcher, until ctx is cancelled or a shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(os.Stdout, opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := app.logger()
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.Bool("index_enabled", cfg.Index.Enabled),
		slog.Bool("watch", cfg.Vault.Watch),
		slog.String("log_level", cfg.App.LogLevel.String()))

	eng, err := app.openEngine(ctx, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	broker := sse.NewBroker(sse.WithLogger(logger), sse.WithMetrics(app.metrics))
	defer broker.Close()
	unsubscribe := eng.Subscribe(broker.PublishChange)
	defer unsubscribe()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !eng.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"initializing"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.App.Metrics.Enabled {
		r.Handle("/metrics", promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{Registry: app.registry}))
	}

	r.Mount("/api", api.NewRouter(eng, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	app.runBackground(gCtx, g, eng, logger)

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		timeout := cfg.App.HTTP.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools over stdin and stdout. Logs go to stderr
// unless WithLogOutput says otherwise.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := newApplication(os.Stderr, opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	logger := app.logger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := app.openEngine(ctx, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	srv := mcpserver.New(eng, app.version, logger)

	g, gCtx := errgroup.WithContext(ctx)
	app.runBackground(gCtx, g, eng, logger)
	g.Go(func() error {
		logger.Info("Starting MCP server on stdio", slog.String("vault_path", eng.Root()))
		if err := srv.ServeStdio(gCtx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP server error: %w", err)
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// errShutdown stops the remaining errgroup members once a server returns.
var errShutdown = errors.New("shutdown")

// openEngine builds and initializes the engine described by the config.
func (a *application) openEngine(ctx context.Context, logger *slog.Logger) (*engine.Engine, error) {
	cfg := a.config

	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	a.metrics = metrics.New(a.registry)
	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithMetrics(a.metrics),
	}
	if cfg.Index.Enabled {
		db, err := index.Open(cfg.Index.Path)
		if err != nil {
			return nil, fmt.Errorf("init index: %w", err)
		}
		opts = append(opts, engine.WithIndex(db))
	}

	eng, err := engine.New(cfg.EngineConfig(), opts...)
	if err != nil {
		return nil, fmt.Errorf("init engine: %w", err)
	}
	if err := eng.Initialize(ctx); err != nil {
		_ = eng.Close()
		return nil, fmt.Errorf("initialize vault: %w", err)
	}
	return eng, nil
}

// runBackground starts the watcher feeding eng and the cache sweeper.
func (a *application) runBackground(ctx context.Context, g *errgroup.Group, eng *engine.Engine, logger *slog.Logger) {
	if a.config.Vault.Watch {
		events := make(chan watcher.Event, 64)
		w := watcher.New(eng.Root(),
			watcher.WithDebounce(a.config.Vault.WatchDebounce),
			watcher.WithFilter(eng.Eligible),
			watcher.WithDirFilter(eng.Excluded),
			watcher.WithLogger(logger),
		)
		g.Go(func() error {
			defer close(events)
			if err := w.Run(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("watcher: stopped", slog.String("error", err.Error()))
			}
			return nil
		})
		g.Go(func() error {
			return eng.Run(ctx, events)
		})
	}

	if ttl := eng.CacheTTL(); ttl > 0 {
		g.Go(func() error {
			t := time.NewTicker(ttl)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-t.C:
					if n := eng.SweepCache(); n > 0 {
						logger.Debug("cache: swept", slog.Int("entries", n))
					}
				}
			}
		})
	}
}
