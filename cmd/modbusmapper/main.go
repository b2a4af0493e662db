// Package main is the entry point for the Modbus mapper.
//
// The mapper keeps Modbus TCP/RTU devices in sync with their digital twins
// over MQTT. It:
//   - Loads the device profile and reloads it when the file changes
//   - Writes expected values from twin deltas and unacknowledged twins
//   - Polls registers and publishes changed actual values
//   - Reports its health and presence on retained topics
//   - Serves a read-only status API with Prometheus metrics
//
// Usage:
//
//	modbus-mapper [--config path] [--profile path] [--log-level level]
//	modbus-mapper --migrate-down [--config path]
//
// Configuration:
//
//	The configuration file path can be set with --config or the
//	MODBUSMAPPER_CONFIG environment variable. Default: configs/config.yaml,
//	falling back to built-in defaults when that file does not exist.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	_ "github.com/nerrad567/modbus-mapper/migrations" // Registers embedded SQL migrations

	"github.com/nerrad567/modbus-mapper/internal/api"
	modbus "github.com/nerrad567/modbus-mapper/internal/bridges/modbus"
	"github.com/nerrad567/modbus-mapper/internal/device"
	"github.com/nerrad567/modbus-mapper/internal/infrastructure/config"
	"github.com/nerrad567/modbus-mapper/internal/infrastructure/database"
	"github.com/nerrad567/modbus-mapper/internal/infrastructure/influxdb"
	"github.com/nerrad567/modbus-mapper/internal/infrastructure/logging"
	"github.com/nerrad567/modbus-mapper/internal/infrastructure/mqtt"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const (
	defaultConfigPath = "configs/config.yaml"
	configPathEnv     = "MODBUSMAPPER_CONFIG"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cliOptions holds the parsed command line.
type cliOptions struct {
	configPath  string
	overrides   config.Overrides
	showVersion bool
	migrateDown bool
}

// parseFlags parses the command line. Flags left unset do not override
// the configuration file.
func parseFlags(args []string) (cliOptions, error) {
	var opts cliOptions

	fs := pflag.NewFlagSet("modbus-mapper", pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to config.yaml (env "+configPathEnv+")")
	fs.StringVar(&opts.overrides.ProfilePath, "profile", "", "path to the device profile JSON")
	fs.StringVar(&opts.overrides.LogLevel, "log-level", "", "log level: debug, info, warn or error")
	fs.StringVar(&opts.overrides.MQTTHost, "mqtt-host", "", "MQTT broker host")
	fs.IntVar(&opts.overrides.MQTTPort, "mqtt-port", 0, "MQTT broker port")
	fs.BoolVarP(&opts.showVersion, "version", "v", false, "print version and exit")
	fs.BoolVar(&opts.migrateDown, "migrate-down", false, "roll back the latest database migration and exit")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("parsing flags: %w", err)
	}
	if fs.NArg() > 0 {
		return cliOptions{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

// run contains the main application logic.
// Separated from main() to enable testing and proper error handling.
func run(ctx context.Context, args []string) error { //nolint:gocognit,gocyclo // Startup wiring is sequential by nature
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Printf("modbus-mapper %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	// Bootstrap logger until the configured one exists
	log := logging.Default()
	log.Info("starting Modbus mapper",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath(opts.configPath)
	cfg, err := config.Load(configPath, opts.overrides)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPathOrDefaults(configPath))

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"mapper_id", cfg.Mapper.ID,
	)

	if opts.migrateDown {
		return migrateDown(ctx, cfg.Database, log)
	}

	// Device profile
	snap, err := modbus.LoadProfile(cfg.Mapper.ProfilePath, log.Component("profile"))
	if err != nil {
		return fmt.Errorf("loading device profile: %w", err)
	}
	store := modbus.NewProfileStore(snap)
	log.Info("device profile loaded",
		"path", cfg.Mapper.ProfilePath,
		"devices", snap.DeviceCount(),
		"visitors", snap.VisitorCount(),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := modbus.NewMetrics(registry)

	// Property history (optional)
	var (
		db      *database.DB
		history *device.SQLitePropertyHistoryRepository
	)
	if cfg.Database.Enabled {
		db, err = database.Open(cfg.Database)
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
		history = device.NewSQLitePropertyHistoryRepository(db.DB)
		log.Info("property history enabled", "path", cfg.Database.Path, "retention", cfg.Database.HistoryRetention)
	} else {
		log.Info("property history disabled")
	}

	// Telemetry (optional)
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
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	status := device.NewStatusRegistry()
	status.SetLogger(log.Component("status"))

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))

	transport := modbus.NewModbusTransport(modbus.TransportOptions{
		ResponseTimeout: cfg.Mapper.ResponseTimeout,
		RTUSettleDelay:  cfg.Mapper.RTUSettleDelay,
	})

	// The bridge is built before the MQTT connection so its health reporter
	// can supply the last will. The adapter is bound once connected.
	adapter := &mqttBridgeAdapter{}
	bridgeOpts := modbus.BridgeOptions{
		Store:          store,
		MQTTClient:     adapter,
		Transport:      transport,
		MapperID:       cfg.Mapper.ID,
		Version:        version,
		PollInterval:   cfg.Mapper.PollInterval,
		HealthInterval: cfg.Mapper.HealthInterval,
		Logger:         log.Component("bridge"),
		Status:         status,
		Broadcaster:    hub,
		Metrics:        metrics,
	}
	if history != nil {
		bridgeOpts.History = history
	}
	if influxClient != nil {
		bridgeOpts.Telemetry = influxClient
	}
	bridge, err := modbus.NewBridge(bridgeOpts)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	presence, err := buildPresence(bridge.HealthReporter())
	if err != nil {
		return fmt.Errorf("building presence messages: %w", err)
	}

	mqttClient, err := mqtt.Connect(cfg.MQTT, presence)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	adapter.bind(mqttClient)
	mqttClient.SetLogger(log.Component("mqtt"))
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected, requesting twins again")
		bridge.Reload(ctx)
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		bridge.Stop()
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:      cfg.API,
			WS:          cfg.WebSocket,
			Logger:      log.Component("api"),
			Store:       store,
			Cache:       bridge.Cache(),
			Status:      status,
			History:     historyRepo(history),
			Bridge:      bridge,
			MQTT:        mqttClient,
			DB:          db,
			Gatherer:    registry,
			ExternalHub: hub,
			Version:     version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(gctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("status API disabled")
	}

	if cfg.Mapper.WatchProfile {
		watcher, watchErr := modbus.NewProfileWatcher(modbus.ProfileWatcherOptions{
			Path:   cfg.Mapper.ProfilePath,
			Store:  store,
			Logger: log.Component("profile"),
			OnReload: func(next *modbus.Snapshot) {
				bridge.Reload(gctx)
				valid := make(map[string]bool, next.DeviceCount())
				for _, inst := range next.Instances() {
					valid[inst.ID] = true
				}
				status.Prune(valid)
			},
		})
		if watchErr != nil {
			return fmt.Errorf("watching device profile: %w", watchErr)
		}
		defer watcher.Close() //nolint:errcheck // Best-effort during shutdown
		g.Go(func() error { return watcher.Run(gctx) })
	}

	if history != nil {
		g.Go(func() error {
			return history.RunPruner(gctx, cfg.Database.HistoryRetention, 0, log.Component("history"))
		})
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// migrateDown rolls back the most recent migration of the history database.
func migrateDown(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) error {
	if !cfg.Enabled {
		return fmt.Errorf("database is disabled in the configuration")
	}

	db, err := database.Open(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // Nothing left to do on failure

	if err := db.MigrateDown(ctx); err != nil {
		return fmt.Errorf("rolling back migration: %w", err)
	}
	log.Info("latest migration rolled back", "path", cfg.Path)
	return nil
}

// getConfigPath resolves the configuration file: flag, then environment,
// then the default location. An empty result selects built-in defaults.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv(configPathEnv); path != "" {
		return path
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}

func configPathOrDefaults(path string) string {
	if path == "" {
		return "(built-in defaults)"
	}
	return path
}

// historyRepo avoids handing the API a typed nil interface.
func historyRepo(repo *device.SQLitePropertyHistoryRepository) device.PropertyHistoryRepository {
	if repo == nil {
		return nil
	}
	return repo
}

// buildPresence derives the retained status messages from the health
// reporter: the broker publishes the will if the mapper vanishes.
func buildPresence(reporter *modbus.HealthReporter) (*mqtt.Presence, error) {
	will, err := reporter.LWTPayload()
	if err != nil {
		return nil, err
	}
	online, err := reporter.StatusPayload(modbus.HealthHealthy, "connected")
	if err != nil {
		return nil, err
	}
	offline, err := reporter.StatusPayload(modbus.HealthOffline, "shutdown")
	if err != nil {
		return nil, err
	}
	return &mqtt.Presence{
		Topic:   reporter.LWTTopic(),
		Online:  online,
		Offline: offline,
		Will:    will,
	}, nil
}

// healthCheck verifies all connected infrastructure is responsive.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
