// Fieldtrace Core - Fleet Telemetry Platform
//
// This is the main entry point for the Fieldtrace Core application.
// Fieldtrace tracks fleets of field-deployed sensor devices through
// monitoring phases: devices attach to a phase under an alias, push
// telemetry over HTTP or MQTT, and the platform evaluates geofences,
// keeps a live map, and serves statistics over REST and WebSocket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/fieldtrace/fieldtrace-core/migrations"

	"github.com/fieldtrace/fieldtrace-core/internal/api"
	"github.com/fieldtrace/fieldtrace-core/internal/device"
	"github.com/fieldtrace/fieldtrace-core/internal/geofence"
	"github.com/fieldtrace/fieldtrace-core/internal/infrastructure/config"
	"github.com/fieldtrace/fieldtrace-core/internal/infrastructure/database"
	"github.com/fieldtrace/fieldtrace-core/internal/infrastructure/influxdb"
	"github.com/fieldtrace/fieldtrace-core/internal/infrastructure/logging"
	"github.com/fieldtrace/fieldtrace-core/internal/infrastructure/mqtt"
	"github.com/fieldtrace/fieldtrace-core/internal/ingest"
	"github.com/fieldtrace/fieldtrace-core/internal/phase"
	"github.com/fieldtrace/fieldtrace-core/internal/relay"
	"github.com/fieldtrace/fieldtrace-core/internal/session"
	"github.com/fieldtrace/fieldtrace-core/internal/stats"
	"github.com/fieldtrace/fieldtrace-core/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// retentionInterval is how often the telemetry retention sweep runs.
const retentionInterval = time.Hour

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Fieldtrace Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Domain services over the shared database handle
	devices := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	devices.SetLogger(log)
	if refreshErr := devices.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}

	phases := phase.NewSQLiteRepository(db.DB)
	sessRepo := session.NewSQLiteRepository(db.DB)
	telemetryStore := telemetry.NewSQLiteStore(db.DB)
	relays := relay.NewSQLiteIndex(db.DB)

	geofenceStates := geofence.NewSQLiteStateStore(db.DB)
	geofences := geofence.NewService(geofence.NewSQLiteRepository(db.DB), geofenceStates)
	geofences.SetLogger(log)

	// Detach and phase end clear the session's relay links and
	// geofence state alongside the session row itself.
	sessions := session.NewService(sessRepo, devices, cfg.Security.JWT.Secret, cfg.DeviceTokenTTL(), relays, geofenceStates)
	sessions.SetLogger(log)

	// Ingestion pipeline
	pipeline := ingest.NewPipeline(db.DB, sessions, sessRepo, phases, telemetryStore, relays, geofences)
	pipeline.SetLogger(log)
	pipeline.SetReplayJitter(time.Duration(cfg.Ingest.ReplayJitterMs) * time.Millisecond)

	statsEngine := stats.NewEngine(sessRepo, telemetryStore)

	// Connect to MQTT broker (optional): device uplinks and geofence alerts
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

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		// Device uplinks over MQTT feed the same pipeline as HTTP
		bridge := ingest.NewBridge(mqttClient, pipeline)
		bridge.SetLogger(log)
		if startErr := bridge.Start(ctx); startErr != nil {
			return fmt.Errorf("starting ingest bridge: %w", startErr)
		}
		defer func() {
			log.Info("stopping ingest bridge")
			if stopErr := bridge.Stop(); stopErr != nil {
				log.Error("error stopping ingest bridge", "error", stopErr)
			}
		}()
		log.Info("ingest bridge started")

		// Geofence exit alerts go out over MQTT
		alerts := ingest.NewAlertPublisher(mqttClient)
		alerts.SetLogger(log)
		pipeline.AddNotifier(alerts)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional): write-only telemetry mirror
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

		pipeline.AddNotifier(ingest.NewInfluxMirror(influxClient))
	} else {
		log.Info("InfluxDB disabled")
	}

	// Telemetry retention sweep
	if cfg.Ingest.RetentionDays > 0 {
		go retentionLoop(ctx, telemetryStore, cfg.Ingest.RetentionDays, log)
		log.Info("telemetry retention enabled", "days", cfg.Ingest.RetentionDays)
	}

	// Start the API server
	server, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Logger:    log,
		Devices:   devices,
		Phases:    phases,
		Sessions:  sessions,
		Geofences: geofences,
		Telemetry: telemetryStore,
		Stats:     statsEngine,
		Pipeline:  pipeline,
		Version:   version,
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

	if err := healthCheck(ctx, db, mqttClient, influxClient, server); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. Ingest bridge and MQTT (if enabled)
	// 4. Database

	log.Info("Fieldtrace Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses FIELDTRACE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("FIELDTRACE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// retentionLoop deletes telemetry older than the retention window,
// sweeping once an hour until the context is cancelled.
func retentionLoop(ctx context.Context, store *telemetry.SQLiteStore, days int, log *logging.Logger) {
	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().AddDate(0, 0, -days)
			pruned, err := store.Prune(ctx, cutoff)
			if err != nil {
				log.Error("telemetry retention sweep failed", "error", err)
				continue
			}
			if pruned > 0 {
				log.Info("telemetry retention sweep", "pruned", pruned, "cutoff", cutoff)
			}
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
// MQTT and InfluxDB checks are skipped when those integrations are disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, server *api.Server) error {
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

	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	return nil
}
