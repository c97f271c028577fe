package main

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

	"tracker/internal/automation"
	"tracker/internal/command"
	"tracker/internal/config"
	"tracker/internal/dependency"
	"tracker/internal/history"
	"tracker/internal/logging"
	"tracker/internal/mutation"
	"tracker/internal/notify"
	"tracker/internal/realtime"
	"tracker/internal/server"
	"tracker/internal/storage/sqlite"
)

var version = "dev"

func main() {
	app := command.BuildApp(command.Deps{
		LoadConfig: config.Load,
		RunServe:   runServe,
		RunSweep:   runSweep,
		RunMigrate: runMigrate,
	})
	app.Version = version

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// components is the wired object graph shared by every command.
type components struct {
	store   *sqlite.Store
	gate    *dependency.Gate
	mutator *mutation.Mutator
	engine  *automation.Engine
	rules   *automation.Service
}

func newLogger(cfg config.Config) *slog.Logger {
	return logging.NewLogger(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Component: "tracker"})
}

// build opens the database and wires the domain services. A nil hub disables
// realtime publishing.
func build(cfg config.Config, logger *slog.Logger, hub *realtime.Hub) (*components, error) {
	store, err := sqlite.Open(cfg.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	var publisher realtime.Publisher
	if hub != nil {
		publisher = hub
	}
	recorder := history.NewRecorder(store, logger)
	events := notify.NewDispatcher(store, publisher, logger)
	gate := dependency.NewGate(store, recorder, logger)
	mutator := mutation.New(store, gate, recorder, events, logger)
	engine := automation.NewEngine(store, mutator, events, recorder, logger)
	rules := automation.NewService(store, engine, logger)

	return &components{
		store:   store,
		gate:    gate,
		mutator: mutator,
		engine:  engine,
		rules:   rules,
	}, nil
}

func runServe(ctx context.Context, cfg config.Config) error {
	logger := newLogger(cfg)
	logger.Info("tracker starting", slog.String("version", version))

	hub := realtime.NewHub(logger, cfg.PublishBuffer)
	c, err := build(cfg, logger, hub)
	if err != nil {
		return err
	}
	defer c.store.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go hub.Run(runCtx)
	go automation.NewSweeper(c.engine, cfg.SweepInterval.Std(), cfg.DueSoonWindow.Std(), logger).Run(runCtx)

	srv := server.New(server.Deps{
		Store:     c.store,
		Mutator:   c.mutator,
		Gate:      c.gate,
		Engine:    c.engine,
		Rules:     c.rules,
		Hub:       hub,
		Logger:    logger,
		StaticDir: cfg.StaticDir,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
	return nil
}

func runSweep(ctx context.Context, cfg config.Config) error {
	logger := newLogger(cfg)
	c, err := build(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer c.store.Close()

	report := automation.NewSweeper(c.engine, cfg.SweepInterval.Std(), cfg.DueSoonWindow.Std(), logger).Sweep(ctx)
	logger.Info("sweep complete", slog.Int("evaluated", report.Evaluated), slog.Int("runs", len(report.Runs)),
		slog.Int("failed", len(report.Failed())))
	return nil
}

func runMigrate(_ context.Context, cfg config.Config) error {
	logger := newLogger(cfg)
	store, err := sqlite.Open(cfg.DBPath, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("schema up to date", slog.String("db_path", cfg.DBPath))
	return nil
}
