package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"savecsv/internal/app"
	"savecsv/internal/journal"
	"savecsv/internal/metrics"
	"savecsv/internal/storage"
	u "savecsv/internal/utils"
)

func main() {
	cfg := u.LoadConfig()
	u.InitLogger(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)
	u.SetLogLevel(cfg.Logger.Level)

	// Missing credentials are reported per request, not at startup.
	store, err := storage.New(context.Background(), cfg.Storage)
	if err != nil {
		u.Warn("Object storage not configured", "driver", cfg.Storage.Driver, "error", err)
	}

	exportJournal, err := journal.New(cfg)
	if err != nil {
		u.Error("Export journal unavailable, continuing without it", "driver", cfg.Journal.Driver, "error", err)
		exportJournal = journal.Nop{}
	}
	defer exportJournal.Close()

	app := app.SetupApp(cfg, app.Deps{
		Store:   store,
		Journal: exportJournal,
		Metrics: metrics.New(),
	})

	idleConnsClosed := make(chan struct{})
	startServer(app, cfg, idleConnsClosed)
	<-idleConnsClosed
}

// startServer starts the Fiber app and listens for shutdown signals
func startServer(app *fiber.App, cfg u.Config, idleConnsClosed chan struct{}) {
	go func() {
		u.Info("Listening", "addr", cfg.Server.Host+cfg.Server.Port, "storage", cfg.Storage.Driver)
		if err := app.Listen(cfg.Server.Host + cfg.Server.Port); err != nil {
			u.Error("Server error", "error", err)
		}
	}()

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigint)
	<-sigint

	u.Warn("Shutdown signal received, closing server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		u.Error("Server forced to shutdown", "error", err)
	}

	close(idleConnsClosed)
	u.Info("Server stopped cleanly")
}
