// Veripoint Core - Biometric Terminal Fleet Middleware
//
// This is the main entry point for the Veripoint Core service. Veripoint
// sits between HR / access-control systems and fleets of networked
// biometric attendance terminals, providing:
//   - A single REST and WebSocket surface over many device endpoints
//   - Connection lifecycle management with health monitoring
//   - Bulk operations across the fleet
//   - Event fan-out to WebSocket clients and (optionally) MQTT
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/veripoint/veripoint-core/migrations"

	"github.com/veripoint/veripoint-core/internal/api"
	"github.com/veripoint/veripoint-core/internal/audit"
	"github.com/veripoint/veripoint-core/internal/device"
	"github.com/veripoint/veripoint-core/internal/events"
	"github.com/veripoint/veripoint-core/internal/infrastructure/config"
	"github.com/veripoint/veripoint-core/internal/infrastructure/database"
	"github.com/veripoint/veripoint-core/internal/infrastructure/influxdb"
	"github.com/veripoint/veripoint-core/internal/infrastructure/logging"
	"github.com/veripoint/veripoint-core/internal/infrastructure/mqtt"
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

// historyPruneInterval is how often stored probe history is pruned.
const historyPruneInterval = 24 * time.Hour

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
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Veripoint Core",
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

	// Probe history and audit trail repositories
	history := device.NewSQLiteHealthHistory(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	// Event fan-out: the WebSocket hub always receives events; MQTT is an
	// optional second sink. The hub is created here, before the registry,
	// so registry events reach WebSocket clients from the first connect.
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	broadcaster := events.Multi{hub}

	var mqttPublisher *mqtt.Publisher
	var mqttClient *mqtt.Client
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
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttPublisher = mqtt.NewPublisher(mqttClient)
		broadcaster = append(broadcaster, mqttPublisher)
	} else {
		log.Info("MQTT disabled")
	}

	// Device registry backed by the JSON device file
	store := device.NewFileStore(cfg.Devices.ConfigPath)
	registry := device.NewRegistry(store, broadcaster)
	registry.SetLogger(log)
	registry.SetCommandTimeout(cfg.CommandTimeout())

	if loadErr := registry.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading device registry: %w", loadErr)
	}
	log.Info("device registry initialised", "devices", registry.Stats().Total)

	// Connect to InfluxDB (optional probe telemetry sink)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Reconnect coordinator; optionally restore connections on startup
	reconnector := device.NewReconnectCoordinator(registry)
	reconnector.SetLogger(log)

	if cfg.Devices.ReconnectOnStartup {
		results := reconnector.ReconnectAll(ctx)
		restored := 0
		for _, res := range results {
			if res.Err == nil {
				restored++
			}
		}
		log.Info("startup reconnect complete",
			"attempted", len(results),
			"restored", restored,
		)
	}

	// Health monitor
	if cfg.Health.Enabled {
		opts := []device.HealthMonitorOption{
			device.WithInterval(cfg.HealthInterval()),
			device.WithProbeTimeout(cfg.ProbeTimeout()),
			device.WithHealthHistory(history),
		}
		if influxClient != nil {
			opts = append(opts, device.WithMetricsWriter(influxClient))
		}

		monitor := device.NewHealthMonitor(registry, broadcaster, opts...)
		monitor.SetLogger(log)
		if startErr := monitor.Start(ctx); startErr != nil {
			return fmt.Errorf("starting health monitor: %w", startErr)
		}
		defer monitor.Stop()
		log.Info("health monitor started",
			"interval", cfg.HealthInterval(),
			"probe_timeout", cfg.ProbeTimeout(),
		)

		// Prune stored probe history on a daily cadence
		go pruneHistoryLoop(ctx, history, cfg.Health.HistoryRetentionDays, log)
	} else {
		log.Info("health monitor disabled")
	}

	// Bulk executor
	bulk := device.NewBulkExecutor(registry, broadcaster)
	bulk.SetLogger(log)

	// API server
	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log,
		Registry:    registry,
		Reconnector: reconnector,
		Bulk:        bulk,
		History:     history,
		Audit:       auditRepo,
		ExternalHub: hub,
		Version:     version,
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
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Verify infrastructure is healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server (stops accepting requests, drains in-flight)
	// 2. Health monitor
	// 3. InfluxDB (if enabled)
	// 4. MQTT (if enabled)
	// 5. Database

	log.Info("Veripoint Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses VERIPOINT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("VERIPOINT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// pruneHistoryLoop deletes probe history older than the retention period,
// once per day, until the context is cancelled.
func pruneHistoryLoop(ctx context.Context, history device.HealthHistory, retentionDays int, log *logging.Logger) {
	if retentionDays <= 0 {
		return
	}
	retention := time.Duration(retentionDays) * 24 * time.Hour

	ticker := time.NewTicker(historyPruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := history.Prune(ctx, retention)
			if err != nil {
				log.Error("pruning probe history failed", "error", err)
				continue
			}
			if removed > 0 {
				log.Info("pruned probe history", "rows", removed, "retention_days", retentionDays)
			}
		}
	}
}
