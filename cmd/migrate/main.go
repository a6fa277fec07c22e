package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"focusgarden/backend/internal/config"
	"focusgarden/backend/internal/db"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("migrate: could not read .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("migrate: load config", "error", err)
		os.Exit(1)
	}

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		err = db.RunPostgresMigrations(cfg.DatabaseURL, cfg.MigrationsPath())
	case config.DriverSQLite:
		database, openErr := db.OpenSQLite(cfg.DBPath)
		if openErr != nil {
			slog.Error("migrate: open database", "error", openErr)
			os.Exit(1)
		}
		defer database.Close()
		err = db.RunMigrations(database, cfg.MigrationsPath())
	default:
		slog.Info("migrate: nothing to migrate", "driver", cfg.StoreDriver)
		return
	}
	if err != nil {
		slog.Error("migrate: run migrations", "error", err)
		os.Exit(1)
	}

	slog.Info("migrate: migrations applied successfully", "driver", cfg.StoreDriver)
}
