// SensorThings Bridge
//
// This is the main entry point for the SensorThings bridge: a service
// that mirrors an OGC SensorThings API server's Things, Datastreams, and
// Observations as local entities. Values arrive over two channels, a
// poll loop against the HTTP API and a push subscription to the server's
// built-in MQTT broker, and the bridge reconciles them with a fixed
// push-over-poll precedence.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	_ "github.com/nerrad567/sensorthings-bridge/migrations"

	"github.com/nerrad567/sensorthings-bridge/internal/api"
	"github.com/nerrad567/sensorthings-bridge/internal/dispatch"
	"github.com/nerrad567/sensorthings-bridge/internal/entity"
	"github.com/nerrad567/sensorthings-bridge/internal/infrastructure/config"
	"github.com/nerrad567/sensorthings-bridge/internal/infrastructure/database"
	"github.com/nerrad567/sensorthings-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/sensorthings-bridge/internal/metrics"
	"github.com/nerrad567/sensorthings-bridge/internal/poll"
	"github.com/nerrad567/sensorthings-bridge/internal/push"
	"github.com/nerrad567/sensorthings-bridge/internal/stapi"
	"github.com/nerrad567/sensorthings-bridge/internal/store"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting SensorThings bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}

	entityStore := store.New(db.DB)

	// Metrics registry for all bridge instruments
	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	// SensorThings API client: validate the configured server before
	// building anything on top of it
	client := stapi.New(cfg.SensorThings.BaseURL, cfg.GetRequestTimeout())
	if probeErr := client.Probe(ctx); probeErr != nil {
		return fmt.Errorf("probing SensorThings server: %w", probeErr)
	}
	log.Info("SensorThings server reachable", "base_url", cfg.SensorThings.BaseURL)

	// Poll channel: the first fetch runs synchronously so entities are
	// born with data
	coordinator := poll.NewCoordinator(client, cfg.GetScanInterval(),
		cfg.GetRequestTimeout(), m, log)
	if refreshErr := coordinator.Refresh(ctx); refreshErr != nil {
		return fmt.Errorf("initial fleet fetch: %w", refreshErr)
	}
	go coordinator.Run(ctx)
	defer func() {
		if closeErr := coordinator.Close(); closeErr != nil {
			log.Error("error closing poll coordinator", "error", closeErr)
		}
	}()
	log.Info("poll channel started", "interval", cfg.GetScanInterval())

	// Dispatcher serialises push callbacks onto one goroutine
	dispatcher := dispatch.New(log)
	go dispatcher.Run(ctx)

	// Push channel: a dead broker is a soft failure, the bridge runs
	// poll-only until an operator reconnects
	registry := push.NewRegistry()
	listener := push.NewListener(cfg, registry, dispatcher, m, log)
	switch startErr := listener.Start(ctx); {
	case startErr == nil:
		log.Info("push channel started")
	case errors.Is(startErr, push.ErrDisabled):
		log.Info("push channel disabled, running poll-only")
	default:
		log.Warn("push channel unavailable, running poll-only", "error", startErr)
	}
	defer listener.Stop()

	// Entity manager: build the fleet from the first snapshot
	manager := entity.NewManager(coordinator, listener, registry, entityStore,
		cfg.GetUpdateInterval(), m, log)
	if buildErr := manager.Rebuild(ctx); buildErr != nil {
		return fmt.Errorf("building entities: %w", buildErr)
	}
	go manager.Run(ctx)
	defer func() {
		if closeErr := manager.Close(); closeErr != nil {
			log.Error("error closing entity manager", "error", closeErr)
		}
	}()

	// API server
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Metrics:  cfg.Metrics,
		Logger:   log,
		Manager:  manager,
		Registry: promReg,
		Health: map[string]api.HealthChecker{
			"database":     db,
			"sensorthings": client,
			"push":         listener,
		},
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Wait for queued push callbacks to drain before entities detach
	dispatcher.Wait()

	log.Info("SensorThings bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses STABRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("STABRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
