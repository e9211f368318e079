// Fleet Core - Device Fleet State & Synchronization Engine
//
// This is the main entry point for the fleet-core application: the
// central coordination service for fleets of remote kiosk devices.
// It ingests device heartbeats, maintains the authoritative device
// state store, sweeps stale devices offline, and pushes real-time
// status events to operator dashboards over WebSocket (and optionally
// mirrors them to an MQTT broker).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/kioskfleet/fleet-core/migrations"

	"github.com/kioskfleet/fleet-core/internal/api"
	"github.com/kioskfleet/fleet-core/internal/device"
	"github.com/kioskfleet/fleet-core/internal/heartbeat"
	"github.com/kioskfleet/fleet-core/internal/hub"
	"github.com/kioskfleet/fleet-core/internal/infrastructure/config"
	"github.com/kioskfleet/fleet-core/internal/infrastructure/database"
	"github.com/kioskfleet/fleet-core/internal/infrastructure/logging"
	"github.com/kioskfleet/fleet-core/internal/infrastructure/mqtt"
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
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
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
	log.Info("starting Fleet Core",
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
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

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
	log.Info("database migrations complete")

	// Repositories over the shared connection
	deviceRepo := device.NewSQLiteRepository(db.DB)
	groupRepo := device.NewSQLiteGroupRepository(db.DB)

	// Status cache with background expiry
	cache := device.NewStatusCache(cfg.GetCacheTTL())
	cache.StartPurgeLoop(ctx.Done())
	log.Info("status cache initialised", "ttl", cfg.GetCacheTTL())

	// WebSocket broadcast hub
	wsHub := hub.New(cfg.WebSocket, log)
	go wsHub.Run(ctx)

	// Connect to MQTT broker (optional status mirror)
	var mqttClient *mqtt.Client
	notifier := device.Notifier(wsHub)
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		// Status changes fan out to both the hub and the broker.
		mirror := &mqttStatusMirror{client: mqttClient, log: log}
		notifier = multiNotifier{wsHub, mirror}
	} else {
		log.Info("MQTT mirror disabled")
	}

	// Heartbeat ingestion pipeline
	pipeline := heartbeat.NewPipeline(heartbeat.Config{
		Repository: deviceRepo,
		Cache:      cache,
		Notifier:   notifier,
		Logger:     log,
	})

	// Staleness sweeper
	sweeper := device.NewSweeper(deviceRepo, cache, notifier, device.SweeperConfig{
		Interval:     cfg.GetSweepInterval(),
		StaleTimeout: cfg.GetStaleTimeout(),
	})
	sweeper.SetLogger(log)
	sweeper.Start(ctx)
	defer func() {
		log.Info("stopping sweeper")
		sweeper.Stop()
	}()
	log.Info("sweeper started",
		"interval", cfg.GetSweepInterval(),
		"stale_timeout", cfg.GetStaleTimeout(),
	)

	// API server
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Repo:     deviceRepo,
		Groups:   groupRepo,
		Cache:    cache,
		Pipeline: pipeline,
		Hub:      wsHub,
		Notifier: notifier,
		Version:  version,
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

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. Sweeper
	// 3. MQTT (if enabled)
	// 4. Database

	log.Info("Fleet Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses FLEETCORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("FLEETCORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// mqttClient may be nil when the mirror is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	return nil
}

// multiNotifier fans a status change out to several notifiers in order.
type multiNotifier []device.Notifier

// DeviceStatusChanged implements device.Notifier.
func (m multiNotifier) DeviceStatusChanged(change device.StatusChange) {
	for _, n := range m {
		n.DeviceStatusChanged(change)
	}
}

// mqttStatusMirror publishes status changes to the MQTT broker as
// retained messages, so integrations that connect later still see the
// last-known status of every device. Publishing is best effort: a
// broker outage never blocks the heartbeat path.
type mqttStatusMirror struct {
	client *mqtt.Client
	log    *logging.Logger
}

// DeviceStatusChanged implements device.Notifier.
func (m *mqttStatusMirror) DeviceStatusChanged(change device.StatusChange) {
	payload, err := json.Marshal(change)
	if err != nil {
		m.log.Error("marshalling status change for MQTT", "error", err)
		return
	}

	topic := mqtt.Topics{}.DeviceStatus(change.DeviceID)
	if err := m.client.PublishRetained(topic, payload); err != nil {
		m.log.Warn("publishing status change to MQTT",
			"device_id", change.DeviceID,
			"error", err,
		)
	}
}
