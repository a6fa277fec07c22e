package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"focusgarden/backend/internal/coach"
	"focusgarden/backend/internal/config"
	"focusgarden/backend/internal/db"
	"focusgarden/backend/internal/docstore"
	"focusgarden/backend/internal/handler"
	"focusgarden/backend/internal/progress"
	"focusgarden/backend/internal/recorder"
	"focusgarden/backend/internal/repository"
	"focusgarden/backend/internal/router"
	"focusgarden/backend/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("main: could not read .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("main: load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("main: open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	persistence := progress.NewPersistence(store)
	rec := recorder.New(store, persistence)

	settingsService := service.NewSettingsService(store, cfg.DefaultTimer)
	sessionService := service.NewSessionService(settingsService, persistence, rec, service.SessionOptions{
		TickInterval:       cfg.TickInterval(),
		CheckpointInterval: cfg.CheckpointInterval(),
	})
	settingsService.SetHooks(sessionService)
	authService := service.NewAuthService(repository.NewUserRepository(store), settingsService, cfg.JWTSecret, cfg.TokenTTL())
	historyService := service.NewHistoryService(rec, coach.New(cfg.OpenAIAPIKey, cfg.OpenAIModel))

	engine := router.New(authService, router.Handlers{
		Auth:     handler.NewAuthHandler(authService),
		Session:  handler.NewSessionHandler(sessionService),
		Settings: handler.NewSettingsHandler(settingsService),
		History:  handler.NewHistoryHandler(historyService),
	}, cfg.CORSOrigins)

	sessionsDone := make(chan struct{})
	go func() {
		defer close(sessionsDone)
		sessionService.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("main: backend listening", "addr", srv.Addr, "driver", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("main: run server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("main: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("main: shutdown server", "error", err)
	}
	<-sessionsDone
}

// openStore returns the document store selected by cfg.StoreDriver and a
// function releasing its connections.
func openStore(ctx context.Context, cfg config.Config) (docstore.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		if err := db.RunPostgresMigrations(cfg.DatabaseURL, cfg.MigrationsPath()); err != nil {
			return nil, nil, err
		}
		pool, err := db.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewPostgresStore(pool), pool.Close, nil
	case config.DriverMemory:
		slog.Warn("main: using in-memory store, data is lost on exit")
		return docstore.NewMemoryStore(), func() {}, nil
	default:
		database, err := db.OpenSQLite(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		if err := db.RunMigrations(database, cfg.MigrationsPath()); err != nil {
			_ = database.Close()
			return nil, nil, err
		}
		return repository.NewSQLiteStore(database), func() { _ = database.Close() }, nil
	}
}
