package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/formbricks/themes/internal/config"
	"github.com/formbricks/themes/internal/observability"
	"github.com/formbricks/themes/pkg/database"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)

		return 1
	}

	slog.SetDefault(observability.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat))

	db, err := database.NewPostgresPool(ctx, cfg.DatabaseURL,
		database.WithVectorTypes(),
		database.WithMaxConns(int32(cfg.DatabaseMaxConns)), //nolint:gosec // bounded by config validation
	)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)

		return 1
	}
	defer db.Close()

	app, err := NewApp(ctx, cfg, db)
	if err != nil {
		slog.Error("Failed to initialize", "error", err)

		return 1
	}

	exitCode := 0

	if err := app.Run(ctx); err != nil {
		slog.Error("Component failed", "error", err)

		exitCode = 1
	}

	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shutdown incomplete", "error", err)

		exitCode = 1
	}

	slog.Info("Server exited")

	return exitCode
}
