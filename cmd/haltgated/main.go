package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/haltgate/haltgate/internal/gate/common/clock"
	"github.com/haltgate/haltgate/internal/gate/common/log"
	"github.com/haltgate/haltgate/internal/gate/config"
	"github.com/haltgate/haltgate/internal/gate/gateways/directives"
	"github.com/haltgate/haltgate/internal/gate/gateways/intercept"
	"github.com/haltgate/haltgate/internal/gate/gateways/msgapi"
	"github.com/haltgate/haltgate/internal/gate/gateways/notify"
	"github.com/haltgate/haltgate/internal/gate/gateways/scheduler"
	"github.com/haltgate/haltgate/internal/gate/gateways/tabs"
	"github.com/haltgate/haltgate/internal/gate/repos/ledger"
	"github.com/haltgate/haltgate/internal/gate/repos/sitestore"
	"github.com/haltgate/haltgate/internal/gate/repos/snapshot"
	"github.com/haltgate/haltgate/internal/gate/services/enforcer"
)

const (
	version = "0.1.0-dev"
	appName = "haltgated"
)

// Application holds all the components of the blocking daemon.
type Application struct {
	config    *config.AppConfig
	store     *sitestore.Store
	scheduler *scheduler.Scheduler
	api       *msgapi.Server
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	if err := log.Configure(cfg.Env, cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":   version,
		"env":       cfg.Env,
		"log_level": cfg.LogLevel,
		"listen":    cfg.Listen,
		"db_path":   cfg.DBPath,
		"backend":   cfg.Backend,
	}, "Starting haltgate daemon")

	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "Daemon failed")
	}

	log.Info(nil, "haltgate daemon stopped gracefully")
}

// buildApplication constructs all components and wires them together.
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	clk := clock.RealClock{}
	logger := log.GetLogger()

	store, err := sitestore.New(cfg.DBPath, clk)
	if err != nil {
		return nil, fmt.Errorf("failed to open site store: %w", err)
	}

	snap := snapshot.New(cfg.CacheSize)
	tabRegistry := tabs.New()

	// The scheduler fires before the coordinator exists; late-bind the
	// deadline sink.
	var coordinator *enforcer.Coordinator
	sched := scheduler.New(func(tag string) {
		if coordinator != nil {
			coordinator.OnDeadline(context.Background(), tag)
		}
	}, logger)

	ledgerRepo := ledger.New(ledger.Options{
		Clock:          clk,
		Scheduler:      sched,
		Tabs:           tabRegistry,
		Sites:          snap,
		DefaultMinutes: cfg.DefaultUnlockMinutes,
		Logger:         logger,
	})

	notifier := notify.New(logger)

	// Capability probe. Both in-process mechanisms exist in the
	// standalone daemon; embedders supply only what their platform has.
	caps := enforcer.Capabilities{
		Interceptor: intercept.New(),
		Directives:  directives.New(),
	}

	backend := enforcer.NewBackend(enforcer.ParseBackendMode(cfg.Backend), caps, enforcer.Options{
		Snapshot: snap,
		Ledger:   ledgerRepo,
		Store:    store,
		Tabs:     tabRegistry,
		Notifier: notifier,
		Logger:   logger,
	})

	coordinator = enforcer.NewCoordinator(backend, store, tabRegistry, notifier, logger)

	if err := backend.Initialize(context.Background()); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize enforcement backend: %w", err)
	}

	handler := enforcer.NewMessageHandler(backend, store, coordinator, logger)
	api := msgapi.New(cfg.Listen, handler, logger)

	return &Application{
		config:    cfg,
		store:     store,
		scheduler: sched,
		api:       api,
	}, nil
}

// Run starts the message API and blocks until the context is cancelled.
func (app *Application) Run(ctx context.Context) error {
	if err := app.api.Start(ctx); err != nil {
		return fmt.Errorf("failed to start message API: %w", err)
	}

	log.Info(map[string]any{"address": app.api.Address()}, "haltgate ready")

	<-ctx.Done()

	log.Info(nil, "Shutdown initiated")

	app.scheduler.Stop()
	if err := app.api.Stop(); err != nil {
		log.Warn(map[string]any{"error": err}, "Error during API shutdown")
	}
	if err := app.store.Close(); err != nil {
		log.Warn(map[string]any{"error": err}, "Error closing site store")
	}

	return nil
}
