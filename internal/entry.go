// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/daewon/plantops/internal/api"
	"github.com/daewon/plantops/internal/auth"
	"github.com/daewon/plantops/internal/catalog"
	"github.com/daewon/plantops/internal/docstore"
	"github.com/daewon/plantops/internal/masters"
	"github.com/daewon/plantops/internal/mcpserver"
	"github.com/daewon/plantops/internal/metrics"
	"github.com/daewon/plantops/internal/sse"
	"github.com/daewon/plantops/internal/storage"
)

const mastersEventThrottle = time.Second

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// newLogger builds the structured JSON logger.
func (a *application) newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
}

// openStore opens the document store and the seed directory. With sync set,
// the seed directory is imported before returning.
func (a *application) openStore(ctx context.Context, logger *slog.Logger, sync bool) (*docstore.Store, storage.Provider, error) {
	cfg := a.config

	// Ensure seed directory exists.
	if err := os.MkdirAll(cfg.Seed.Dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create seed dir: %w", err)
	}
	seeds, err := storage.NewFS(cfg.Seed.Dir)
	if err != nil {
		return nil, nil, fmt.Errorf("init seed storage: %w", err)
	}

	store, err := docstore.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init document store: %w", err)
	}

	if sync {
		if err := docstore.Sync(ctx, store, seeds, logger); err != nil {
			logger.Warn("initial sync failed", slog.String("error", err.Error()))
		}
	}
	return store, seeds, nil
}

// Run starts the HTTP service with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := app.newLogger()
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("seed_dir", cfg.Seed.Dir),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("log_level", cfg.App.LogLevel.String()))

	store, seeds, err := app.openStore(ctx, logger, true)
	if err != nil {
		return err
	}
	defer store.Close()

	// SSE broker.
	broker := sse.NewBroker(mastersEventThrottle)
	defer broker.Close()

	// Service-wide master projection; page streams open their own.
	proj := masters.New(store, logger)
	cancelChange := proj.OnChange(func(s masters.Snapshot) {
		broker.PublishMastersUpdated(s)
	})
	defer cancelChange()
	proj.Start()
	defer proj.Stop()

	var authSvc *auth.Service
	if cfg.Auth.AuthEnabled() {
		authSvc = auth.NewService(store, auth.Options{
			Domain:     cfg.Auth.Domain,
			SessionTTL: cfg.Auth.SessionTTL,
		}, logger)
		cancelSessions := authSvc.OnSessionChange(func(ev auth.Event) {
			if ev.Kind == auth.EventSignedIn {
				metrics.ActiveSessions.Inc()
			} else {
				metrics.ActiveSessions.Dec()
			}
		})
		defer cancelSessions()
	}

	handler := api.NewServer(api.Deps{
		Store:   store,
		Masters: proj,
		Catalog: catalog.NewService(store, proj, broker, logger),
		Auth:    authSvc,
		Events:  broker,
		DistDir: cfg.Web.DistDir,
		Logger:  logger,
	})

	// Streaming handlers watch the request context; cancel it on shutdown so
	// they do not hold Shutdown open.
	streamCtx, cancelStreams := context.WithCancel(context.Background())
	defer cancelStreams()

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return streamCtx },
	}
	httpServer.RegisterOnShutdown(cancelStreams)

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start seed watcher with SSE callback.
	if cfg.Seed.Watch {
		g.Go(func() error {
			if err := docstore.Watch(gCtx, store, seeds, cfg.Seed.Dir, logger, broker.PublishSeedEvent); err != nil {
				logger.Warn("seed watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
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

// errShutdown cancels the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdin/stdout. Logs go to the configured
// output, which must not be stdout.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.newLogger()
	slog.SetDefault(logger)

	store, _, err := app.openStore(ctx, logger, true)
	if err != nil {
		return err
	}
	defer store.Close()

	proj := masters.New(store, logger)
	proj.Start()
	defer proj.Stop()

	srv := mcpserver.New(proj, catalog.NewService(store, proj, nil, logger))
	logger.Info("MCP server starting on stdio")
	return srv.ServeStdio()
}

// AddUser creates a sign-in user and returns the normalised email.
func AddUser(ctx context.Context, identifier, secret string, opts ...Option) (string, error) {
	app, err := newApplication(opts)
	if err != nil {
		return "", err
	}
	logger := app.newLogger()

	store, err := docstore.Open(app.config.SQLite.Path)
	if err != nil {
		return "", fmt.Errorf("init document store: %w", err)
	}
	defer store.Close()

	svc := auth.NewService(store, auth.Options{
		Domain:     app.config.Auth.Domain,
		SessionTTL: app.config.Auth.SessionTTL,
	}, logger)
	return svc.AddUser(ctx, identifier, secret)
}

// ExportSeeds writes the documents of each collection to the seed directory
// and returns how many files were written per collection.
func ExportSeeds(ctx context.Context, collections []string, opts ...Option) (map[string]int, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	logger := app.newLogger()

	store, seeds, err := app.openStore(ctx, logger, false)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	written := make(map[string]int, len(collections))
	for _, coll := range collections {
		n, err := docstore.Export(ctx, store, seeds, coll)
		if err != nil {
			return written, fmt.Errorf("export %s: %w", coll, err)
		}
		written[coll] = n
		logger.Info("seed export", slog.String("collection", coll), slog.Int("files", n))
	}
	return written, nil
}
