// Homelink Core - Home Controller Gateway
//
// This is the main entry point for the Homelink Core daemon. It keeps a
// resilient connection to a Home Assistant style controller, mirrors its
// entity state, reconciles entities into a curated device catalog, and
// exposes the result over a local REST/WebSocket API, MQTT and InfluxDB.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/skyeyinkun/homelink-core/migrations"

	"github.com/skyeyinkun/homelink-core/internal/api"
	"github.com/skyeyinkun/homelink-core/internal/audit"
	"github.com/skyeyinkun/homelink-core/internal/device"
	"github.com/skyeyinkun/homelink-core/internal/hass"
	"github.com/skyeyinkun/homelink-core/internal/infrastructure/config"
	"github.com/skyeyinkun/homelink-core/internal/infrastructure/database"
	"github.com/skyeyinkun/homelink-core/internal/infrastructure/influxdb"
	"github.com/skyeyinkun/homelink-core/internal/infrastructure/logging"
	"github.com/skyeyinkun/homelink-core/internal/infrastructure/mqtt"
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

// serviceCallTimeout bounds command execution triggered from MQTT.
const serviceCallTimeout = 10 * time.Second

// mirrorSyncTimeout bounds the bulk catalog pass after a snapshot seed.
const mirrorSyncTimeout = 30 * time.Second

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
	log.Info("starting Homelink Core",
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

	// Open database and run migrations
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	auditRepo := audit.NewSQLiteRepository(db.DB)

	// Load the device catalog
	repo := device.NewSQLiteRepository(db.DB)
	catalog := device.NewCatalog(repo, log)
	if loadErr := catalog.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading device catalog: %w", loadErr)
	}
	log.Info("device catalog loaded", "devices", len(catalog.List()))

	// Controller connectivity layer
	stream := hass.NewStream(log)
	registry := hass.NewRegistrySet(log)
	supervisor := hass.NewSupervisor(cfg.Controller, stream, registry, log)
	rest := hass.NewRestClient(supervisor, cfg.Controller.Token, log)
	refresher := hass.NewRefresher(rest, stream)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	var announcer *mqtt.Announcer
	if cfg.MQTT.Enabled {
		var mqttErr error
		mqttClient, mqttErr = mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Host, cfg.MQTT.Port),
			"client_id", cfg.MQTT.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		announcer = mqtt.NewAnnouncer(mqttClient)
		if cmdErr := announcer.ListenCommands(commandHandler(ctx, catalog, supervisor, auditRepo, log)); cmdErr != nil {
			return fmt.Errorf("subscribing to device commands: %w", cmdErr)
		}
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
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
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// After every full snapshot seed, run the bulk mirror pass so bound
	// devices that changed while disconnected catch up in one sweep.
	stream.OnSeed(func(states map[string]hass.EntityState) {
		syncCtx, cancel := context.WithTimeout(ctx, mirrorSyncTimeout)
		defer cancel()
		updated, syncErr := catalog.SyncAll(syncCtx, states)
		if syncErr != nil {
			log.Warn("bulk mirror sync failed", "error", syncErr)
			return
		}
		if updated > 0 {
			log.Info("bulk mirror sync applied", "devices", updated)
		}
	})

	// Fan entity changes out to the catalog, history and MQTT
	stream.OnStateChange(func(st hass.EntityState) {
		if influxClient != nil {
			influxClient.WriteEntityState(st)
		}

		applyCtx, cancel := context.WithTimeout(ctx, serviceCallTimeout)
		defer cancel()
		d, changed, applyErr := catalog.ApplyState(applyCtx, st)
		if applyErr != nil {
			log.Warn("applying state to catalog", "entity_id", st.EntityID, "error", applyErr)
			return
		}
		if !changed {
			return
		}
		if announcer != nil {
			if pubErr := announcer.AnnounceDevice(d); pubErr != nil {
				log.Warn("publishing device state", "device_id", d.ID, "error", pubErr)
			}
		}
		if influxClient != nil {
			influxClient.WriteDeviceState(d)
		}
	})

	supervisor.Subscribe(func(status hass.Status) {
		if announcer != nil {
			if pubErr := announcer.AnnounceStatus(status); pubErr != nil {
				log.Warn("publishing connection status", "error", pubErr)
			}
		}
		if influxClient != nil {
			influxClient.WriteConnectionEvent(status)
		}
	})

	// Start the local API
	apiDeps := api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log,
		Supervisor: supervisor,
		Stream:     stream,
		Registry:   registry,
		Refresher:  refresher,
		Rest:       rest,
		Catalog:    catalog,
		History:    influxClient,
		Audit:      auditRepo,
		Version:    version,
	}
	if announcer != nil {
		apiDeps.Announcer = announcer
	}
	apiServer, err := api.New(apiDeps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	if err := healthCheck(ctx, db, mqttClient, influxClient, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, connecting to controller")

	// Blocks until shutdown or a terminal credential failure
	err = supervisor.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("controller connection: %w", err)
	}

	log.Info("Homelink Core stopped")
	return nil
}

// healthCheck verifies the infrastructure connections that were
// actually brought up. MQTT and InfluxDB may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, apiServer *api.Server) error {
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

	if err := apiServer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	return nil
}

// deviceCommand is the payload accepted on the per-device command topic.
type deviceCommand struct {
	Service string         `json:"service"`
	Data    map[string]any `json:"data,omitempty"`
}

// commandHandler bridges MQTT command messages onto controller service
// calls. The domain is taken from the bound entity's identifier.
func commandHandler(ctx context.Context, catalog *device.Catalog, supervisor *hass.Supervisor, auditRepo audit.Repository, log *logging.Logger) mqtt.CommandHandler {
	return func(deviceID int, payload []byte) error {
		var cmd deviceCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return fmt.Errorf("parsing command payload: %w", err)
		}
		if cmd.Service == "" {
			return fmt.Errorf("command has no service")
		}

		d, err := catalog.Get(deviceID)
		if err != nil {
			return fmt.Errorf("device %d: %w", deviceID, err)
		}
		if d.EntityID == "" {
			return fmt.Errorf("device %d is not bound to an entity", deviceID)
		}

		domain, _, ok := strings.Cut(d.EntityID, ".")
		if !ok {
			return fmt.Errorf("device %d has malformed entity id %q", deviceID, d.EntityID)
		}

		data := cmd.Data
		if data == nil {
			data = make(map[string]any, 1)
		}
		data["entity_id"] = d.EntityID

		callCtx, cancel := context.WithTimeout(ctx, serviceCallTimeout)
		defer cancel()
		if err := supervisor.CallService(callCtx, domain, cmd.Service, data); err != nil {
			return fmt.Errorf("calling %s.%s: %w", domain, cmd.Service, err)
		}

		entry := &audit.Entry{
			Action:   audit.ActionCommand,
			DeviceID: deviceID,
			EntityID: d.EntityID,
			Source:   audit.SourceMQTT,
			Details:  map[string]any{"service": cmd.Service},
		}
		if auditErr := auditRepo.Record(callCtx, entry); auditErr != nil {
			log.Warn("recording command audit entry", "error", auditErr)
		}

		log.Info("executed device command",
			"device_id", deviceID,
			"entity_id", d.EntityID,
			"service", cmd.Service,
		)
		return nil
	}
}

// getConfigPath returns the configuration file path.
// Uses HOMELINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HOMELINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
