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
	"golang.org/x/sync/errgroup"

	"github.com/caldermaw/graft/internal/api"
	"github.com/caldermaw/graft/internal/commit"
	"github.com/caldermaw/graft/internal/diff"
	"github.com/caldermaw/graft/internal/mcpserver"
	"github.com/caldermaw/graft/internal/models"
	"github.com/caldermaw/graft/internal/sse"
	"github.com/caldermaw/graft/internal/storage"
	"github.com/caldermaw/graft/internal/sweep"
	"github.com/caldermaw/graft/internal/treebuilder"
	"github.com/caldermaw/graft/internal/treestore"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_path", cfg.Store.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure payload store directory exists.
	if err := os.MkdirAll(cfg.Store.Path, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	// Initialize content-addressed payload storage.
	payloads, err := storage.NewFS(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	// Initialize the SQLite tree store.
	store, err := treestore.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init tree store: %w", err)
	}
	defer store.Close()

	if err := store.SeedLicenses(models.DefaultLicenses); err != nil {
		return fmt.Errorf("seed licenses: %w", err)
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)

	// Build the domain services and API router.
	builder := treebuilder.NewService(store, payloads)
	engine := diff.New(store)
	coord := commit.New(store, nil, logger)
	svc := api.NewService(store, builder, engine, coord, broker)
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
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
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	// The shutdown path cancels runCtx so background workers (the sweeper)
	// stop even when no goroutine returned an error.
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gCtx := errgroup.WithContext(runCtx)

	// Start the retired-tree sweeper.
	g.Go(func() error {
		sweeper := sweep.New(store, cfg.Sweep.Interval, cfg.Sweep.BatchSize, logger, nil)
		return sweeper.Run(gCtx)
	})

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

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		broker.Close()
		stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP starts the MCP stdio server against the same store and payload
// directory the HTTP server uses.
func RunMCP(cfg *Config) error {
	if err := os.MkdirAll(cfg.Store.Path, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	payloads, err := storage.NewFS(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	store, err := treestore.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init tree store: %w", err)
	}
	defer store.Close()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))

	builder := treebuilder.NewService(store, payloads)
	engine := diff.New(store)
	coord := commit.New(store, nil, logger)
	svc := api.NewService(store, builder, engine, coord, nil)

	return mcpserver.New(svc, payloads).ServeStdio()
}
