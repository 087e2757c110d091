// Command server runs the splitter web UI and API, and optionally the
// drop-folder watcher.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/csvsplit/internal/application"
	"github.com/JonMunkholm/csvsplit/internal/config"
	"github.com/JonMunkholm/csvsplit/internal/core"
	"github.com/JonMunkholm/csvsplit/internal/logging"
	"github.com/JonMunkholm/csvsplit/internal/watch"
	"github.com/JonMunkholm/csvsplit/internal/web"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// run serves until ctx is cancelled or the listener fails. Every return
// path releases the application's resources.
func run(ctx context.Context) error {
	// Overload lets a local .env win over the shell environment.
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	app, err := application.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer app.Close()

	service := app.Service
	server := web.NewServer(service, cfg)

	// Cancelling bgCtx stops the pruner and the watcher's event loop.
	// Splits already running are handled by shutdown below.
	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	var background sync.WaitGroup

	background.Add(1)
	go func() {
		defer background.Done()
		service.StartHistoryPruner(bgCtx, application.PruneConfig(cfg))
	}()

	if cfg.Watch.Dir != "" {
		w := watch.New(service, watch.Options{
			Dir:      cfg.Watch.Dir,
			Rows:     cfg.Watch.Rows,
			Debounce: cfg.Watch.Debounce,
		})
		background.Add(1)
		go func() {
			defer background.Done()
			if err := w.Run(bgCtx); err != nil {
				slog.Error("watcher stopped", "error", err)
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start()
	}()

	select {
	case err := <-serveErr:
		stopBackground()
		service.CancelAll()
		background.Wait()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down...")
	stopBackground()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	drainSplits(shutdownCtx, service)

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	<-serveErr

	background.Wait()
	slog.Info("server stopped")
	return nil
}

// drainSplits waits for running splits, web and watch alike, until ctx
// ends, then cancels whatever is left.
func drainSplits(ctx context.Context, service *core.Service) {
	status := service.LimiterStatus()
	if status.Active == 0 {
		return
	}

	slog.Info("waiting for splits to complete", "active", status.Active)
	if err := service.WaitForJobs(ctx); err != nil {
		slog.Warn("splits did not complete in time, cancelling", "error", err)
		service.CancelAll()
		return
	}
	slog.Info("all splits completed")
}
