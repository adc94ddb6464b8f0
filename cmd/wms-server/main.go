package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/goliatone/go-wms/auth"
	"github.com/goliatone/go-wms/internal/config"
	"github.com/goliatone/go-wms/internal/logging"
	"github.com/goliatone/go-wms/internal/server"
	"github.com/goliatone/go-wms/internal/storage"
)

func main() {
	envFile := flag.String("env", ".env", "Path to an optional env file")
	flag.Parse()

	if err := run(*envFile); err != nil {
		slog.Error("wms-server exited", "error", err)
		os.Exit(1)
	}
}

func run(envFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	logger := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if cfg.Auth.UsesFallbackSecrets() {
		logger.Warn("using fallback token secrets, set JWT_SECRET and REFRESH_TOKEN_SECRET")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(ctx, cfg.StorageConfig())
	if err != nil {
		return err
	}
	defer db.Close()

	logger.Info("database connected", "driver", cfg.Database.Driver)

	if cfg.Database.AutoMigrate {
		applied, err := storage.Migrate(ctx, db)
		if err != nil {
			return err
		}
		logger.Info("migrations applied", "count", len(applied))
	}

	if cfg.Database.Seed {
		if err := storage.Seed(ctx, db, auth.DefaultCatalog()); err != nil {
			return err
		}
	}

	srv, err := server.New(cfg, db, logger)
	if err != nil {
		return err
	}
	if err := srv.Listen(ctx); err != nil {
		return err
	}

	logger.Info("wms-server stopped")
	return nil
}
