// Hearth Core - Home Automation Hub
//
// This is the main entry point for the Hearth hub daemon. It wires the
// runtime core (event bus, state machine, service registry) to its
// infrastructure: SQLite persistence, the MQTT integration surface,
// optional InfluxDB state history and the HTTP/WebSocket API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/hearthhq/hearth-core/migrations"

	"github.com/hearthhq/hearth-core/internal/api"
	"github.com/hearthhq/hearth-core/internal/audit"
	"github.com/hearthhq/hearth-core/internal/bridges/mqttbridge"
	"github.com/hearthhq/hearth-core/internal/event"
	"github.com/hearthhq/hearth-core/internal/history"
	"github.com/hearthhq/hearth-core/internal/hub"
	"github.com/hearthhq/hearth-core/internal/infrastructure/config"
	"github.com/hearthhq/hearth-core/internal/infrastructure/database"
	"github.com/hearthhq/hearth-core/internal/infrastructure/influxdb"
	"github.com/hearthhq/hearth-core/internal/infrastructure/logging"
	"github.com/hearthhq/hearth-core/internal/infrastructure/mqtt"
	"github.com/hearthhq/hearth-core/internal/job"
	"github.com/hearthhq/hearth-core/internal/service"
	"github.com/hearthhq/hearth-core/internal/storage"
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
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) so the hub can run
	// its staged shutdown instead of dying mid-write.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	code, err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if code == 0 {
			code = 1
		}
	}
	os.Exit(code)
}

// run is the actual application logic, separated from main for
// testability. The returned int is the process exit code: the hub's
// own exit code on a clean lifecycle, non-zero on startup failure.
func run(ctx context.Context) (int, error) {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Hearth Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return 1, fmt.Errorf("loading config: %w", err)
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
		return 1, fmt.Errorf("opening database: %w", err)
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
		return 1, fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Document store backs core config and anything collaborators
	// persist through the hub.
	store := storage.NewStore(db.DB, storage.Config{
		SaveDelay: time.Duration(cfg.Hub.StorageSaveDelay) * time.Second,
	})
	store.SetLogger(log)

	// Build the hub: bus, state machine and service registry share one
	// dispatcher, sized by the configured lifecycle timeouts.
	startup, stageStop, stageFinalWrite, stageClose, tick := cfg.HubTimeouts()
	h := hub.New(hub.Options{
		Timeouts: hub.Timeouts{
			Startup:         startup,
			StageStop:       stageStop,
			StageFinalWrite: stageFinalWrite,
			StageClose:      stageClose,
			TickInterval:    tick,
		},
		Service: service.Config{
			DefaultCallTimeout: time.Duration(cfg.Hub.ServiceCallTimeout) * time.Second,
			CancelGrace:        time.Duration(cfg.Hub.ServiceCancelGrace) * time.Second,
			StrictValidation:   cfg.Hub.StrictValidation,
		},
		Logger: log,
	})

	if loadErr := h.LoadCoreConfig(ctx, store); loadErr != nil {
		return 1, fmt.Errorf("loading core config: %w", loadErr)
	}
	log.Info("core config loaded", "name", h.CoreConfig().Name)

	// Flush pending document saves during the final-write stage so
	// debounced writes land before the database closes.
	if _, listenErr := h.Bus.Listen(event.TypeHubFinalWrite, job.KindTask,
		func(flushCtx context.Context, _ *event.Event) error {
			return store.Flush(flushCtx)
		}); listenErr != nil {
		return 1, fmt.Errorf("attaching storage flush: %w", listenErr)
	}

	// Audit trail records service activity to SQLite.
	auditRepo := audit.NewSQLiteRepository(db.DB)
	auditRecorder := audit.NewRecorder(auditRepo, log)
	if startErr := auditRecorder.Start(h.Bus); startErr != nil {
		return 1, fmt.Errorf("starting audit recorder: %w", startErr)
	}
	defer auditRecorder.Stop()
	h.Bus.Fire(event.TypeComponentLoaded, map[string]any{"component": "audit"})
	log.Info("audit recorder started")

	// Connect to InfluxDB (optional) and record state history.
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return 1, fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		historyRecorder := history.NewRecorder(influxClient, log)
		if startErr := historyRecorder.Start(h.Bus); startErr != nil {
			return 1, fmt.Errorf("starting history recorder: %w", startErr)
		}
		defer historyRecorder.Stop()
		h.Bus.Fire(event.TypeComponentLoaded, map[string]any{"component": "history"})
		log.Info("history recorder started")

		// Surface heartbeat drift as a runtime metric.
		if _, listenErr := h.Bus.Listen(event.TypeTimerOutOfSync, job.KindCallback,
			func(_ context.Context, ev *event.Event) error {
				if secs, ok := ev.Data["seconds"].(float64); ok {
					influxClient.WriteHubMetric("timer_drift_seconds", secs)
				}
				return nil
			}); listenErr != nil {
			return 1, fmt.Errorf("attaching drift metric: %w", listenErr)
		}
	} else {
		log.Info("InfluxDB disabled")
	}

	// Connect to MQTT (optional) and start the integration bridge.
	if cfg.MQTT.Enabled {
		mqttClient, connectErr := mqtt.Connect(cfg.MQTT)
		if connectErr != nil {
			return 1, fmt.Errorf("connecting to MQTT: %w", connectErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
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

		bridge, bridgeErr := mqttbridge.New(h, mqttClient, mqttbridge.Config{
			BaseTopic: cfg.MQTT.BaseTopic,
			QoS:       byte(cfg.MQTT.QoS),
		})
		if bridgeErr != nil {
			return 1, fmt.Errorf("creating MQTT bridge: %w", bridgeErr)
		}
		bridge.SetLogger(log)
		if startErr := bridge.Start(); startErr != nil {
			return 1, fmt.Errorf("starting MQTT bridge: %w", startErr)
		}
		defer func() {
			log.Info("stopping MQTT bridge")
			bridge.Stop()
		}()
		log.Info("MQTT bridge started", "base_topic", cfg.MQTT.BaseTopic)

		if err := mqttClient.HealthCheck(ctx); err != nil {
			return 1, fmt.Errorf("health check failed: mqtt: %w", err)
		}
	} else {
		log.Info("MQTT disabled")
	}

	// HTTP API and WebSocket event stream.
	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Hub:      h,
		Audit:    auditRepo,
		Version:  version,
	})
	if err != nil {
		return 1, fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return 1, fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	if err := db.HealthCheck(ctx); err != nil {
		return 1, fmt.Errorf("health check failed: database: %w", err)
	}
	log.Info("initialisation complete, running hub")

	// Run drives hub_start through hub_close and blocks until the
	// context is cancelled or something calls Stop.
	code, runErr := h.Run(ctx)
	if runErr != nil {
		return code, fmt.Errorf("hub run: %w", runErr)
	}

	log.Info("Hearth Core stopped", "exit_code", code)
	return code, nil
}

// getConfigPath returns the configuration file path.
// Uses HEARTH_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HEARTH_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
