// monomed bridges monome devices to MQTT, SQLite and HTTP.
//
// It discovers grids and arcs through the serialosc daemon, drives the
// per-device /sys handshake, and fans device activity out to an MQTT
// broker, a local SQLite database, an optional InfluxDB history and a
// REST/WebSocket API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/wrenfield/monome-core/migrations"

	"github.com/wrenfield/monome-core/internal/api"
	"github.com/wrenfield/monome-core/internal/bridge"
	"github.com/wrenfield/monome-core/internal/infrastructure/config"
	"github.com/wrenfield/monome-core/internal/infrastructure/database"
	"github.com/wrenfield/monome-core/internal/infrastructure/influxdb"
	"github.com/wrenfield/monome-core/internal/infrastructure/logging"
	"github.com/wrenfield/monome-core/internal/infrastructure/mqtt"
	"github.com/wrenfield/monome-core/internal/monitor"
	"github.com/wrenfield/monome-core/internal/monome"
	"github.com/wrenfield/monome-core/internal/osc"
	"github.com/wrenfield/monome-core/internal/process"
	"github.com/wrenfield/monome-core/internal/serialosc"
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

// run is the actual application logic, separated from main for
// testability. Returning an error allows main to handle exit codes
// consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting monomed",
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

	// Connect to MQTT broker (optional)
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

	// Supervised serialoscd (optional)
	if cfg.Discovery.Daemon.Managed {
		daemon := process.NewManager(process.Config{
			Name:               "serialoscd",
			Binary:             cfg.Discovery.Daemon.Binary,
			Args:               cfg.Discovery.Daemon.Args,
			RestartOnFailure:   cfg.Discovery.Daemon.RestartOnFailure,
			RestartDelay:       time.Duration(cfg.Discovery.Daemon.RestartDelay) * time.Second,
			MaxRestartAttempts: cfg.Discovery.Daemon.MaxRestartAttempts,
		})
		daemon.SetLogger(log.Component("serialoscd"))
		if startErr := daemon.Start(ctx); startErr != nil {
			return fmt.Errorf("starting serialoscd: %w", startErr)
		}
		defer func() {
			log.Info("stopping serialoscd")
			if stopErr := daemon.Stop(); stopErr != nil {
				log.Error("error stopping serialoscd", "error", stopErr)
			}
		}()
		log.Info("serialoscd supervised", "binary", cfg.Discovery.Daemon.Binary, "pid", daemon.PID())
	}

	// Traffic and lifecycle recorder
	recorder := monitor.NewRecorder(db.DB, log.Component("monitor"))
	if influxClient != nil {
		recorder.SetTimeSeries(influxClient)
	}

	// Discovery client
	client := serialosc.New(serialosc.Config{
		ListenHost:  cfg.Discovery.ListenHost,
		ListenPort:  cfg.Discovery.ListenPort,
		DaemonHost:  cfg.Discovery.DaemonHost,
		DaemonPort:  cfg.Discovery.DaemonPort,
		AutoSession: cfg.Discovery.AutoSession,
		Session: monome.SessionConfig{
			ListenHost:       cfg.Session.ListenHost,
			Prefix:           cfg.Session.Prefix,
			HandshakeTimeout: cfg.Session.HandshakeTimeout,
		},
	})
	client.SetLogger(log.Component("serialosc"))

	// MQTT bridge (requires a broker)
	var mqttBridge *bridge.Bridge
	if mqttClient != nil {
		mqttBridge, err = bridge.New(bridge.Deps{
			MQTT:     mqttClient,
			Sessions: sessionAdapter{client},
			Logger:   log.Component("bridge"),
			QoS:      byte(cfg.MQTT.QoS),
		})
		if err != nil {
			return fmt.Errorf("creating bridge: %w", err)
		}
		if startErr := mqttBridge.Start(); startErr != nil {
			return fmt.Errorf("starting bridge: %w", startErr)
		}
	}

	// API server (optional)
	var apiServer *api.Server
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:  cfg.API,
			WS:      cfg.WebSocket,
			Logger:  log.Component("api"),
			Devices: deviceSource{client},
			Monitor: recorder,
			Checkers: map[string]api.HealthChecker{
				"database": db,
			},
			Version: version,
		}
		if mqttClient != nil {
			deps.MQTT = mqttClient
			deps.Checkers["mqtt"] = mqttClient
		}
		if influxClient != nil {
			deps.Checkers["influxdb"] = influxClient
		}

		apiServer, err = api.New(deps)
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API server disabled")
	}

	// Wire device lifecycle fan-out, then start discovery.
	wireCallbacks(ctx, client, recorder, mqttBridge, apiServer, log)

	if startErr := client.Start(); startErr != nil {
		return fmt.Errorf("starting discovery: %w", startErr)
	}
	defer func() {
		log.Info("stopping discovery")
		client.Stop()
	}()
	log.Info("discovery started",
		"daemon", fmt.Sprintf("%s:%d", cfg.Discovery.DaemonHost, cfg.Discovery.DaemonPort),
	)

	// Verify infrastructure connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. Discovery (stops per-device sessions)
	// 2. API server
	// 3. serialoscd (if managed)
	// 4. InfluxDB (if enabled)
	// 5. MQTT (if enabled)
	// 6. Database

	log.Info("monomed stopped")
	return nil
}

// wireCallbacks connects discovery and session events to the recorder,
// the MQTT bridge and the WebSocket hub. The bridge and API server may
// be nil; when MQTT is up the API relays bus topics itself, so direct
// hub broadcasts only happen in broker-less setups.
func wireCallbacks(ctx context.Context, client *serialosc.Client, recorder *monitor.Recorder,
	mqttBridge *bridge.Bridge, apiServer *api.Server, log *logging.Logger,
) {
	broadcast := func(channel string, payload any) {
		if mqttBridge != nil || apiServer == nil {
			return
		}
		if hub := apiServer.Hub(); hub != nil {
			hub.Broadcast(channel, payload)
		}
	}

	client.SetOnDeviceAdded(func(d *monome.Device) {
		log.Info("device attached", "device", d.String())
		if err := recorder.DeviceAttached(ctx, d); err != nil {
			log.Error("recording attach failed", "device", d.ID, "error", err)
		}
		if mqttBridge != nil {
			mqttBridge.PublishEvent(d, bridge.EventAdded, map[string]any{"model": d.Model})
			mqttBridge.PublishState(d, true, false)
		}
		broadcast(api.ChannelDeviceEvent, map[string]any{"serial": d.ID, "event_type": bridge.EventAdded})

		session, ok := client.Session(d.Key())
		if !ok {
			return
		}
		wireSession(ctx, session, d, recorder, mqttBridge, broadcast, log)
	})

	client.SetOnDeviceRemoved(func(d *monome.Device) {
		log.Info("device detached", "device", d.String())
		if err := recorder.DeviceDetached(ctx, d); err != nil {
			log.Error("recording detach failed", "device", d.ID, "error", err)
		}
		if mqttBridge != nil {
			mqttBridge.PublishEvent(d, bridge.EventRemoved, nil)
			mqttBridge.PublishState(d, false, false)
		}
		broadcast(api.ChannelDeviceEvent, map[string]any{"serial": d.ID, "event_type": bridge.EventRemoved})
	})
}

// wireSession hooks one device session's callbacks into the fan-out.
func wireSession(ctx context.Context, session *monome.Session, d *monome.Device,
	recorder *monitor.Recorder, mqttBridge *bridge.Bridge,
	broadcast func(channel string, payload any), log *logging.Logger,
) {
	session.SetOnInitialized(func() {
		log.Info("device ready", "device", d.String(), "size", fmt.Sprintf("%dx%d", d.SizeX, d.SizeY))
		if err := recorder.DeviceInitialized(ctx, d); err != nil {
			log.Error("recording handshake failed", "device", d.ID, "error", err)
		}
		if mqttBridge != nil {
			mqttBridge.PublishEvent(d, bridge.EventInitialized, map[string]any{
				"size_x": d.SizeX, "size_y": d.SizeY, "rotation": d.Rotation,
			})
			mqttBridge.PublishState(d, true, true)
		}
	})

	session.SetOnConnected(func() {
		if err := recorder.DeviceConnected(ctx, d); err != nil {
			log.Error("recording link up failed", "device", d.ID, "error", err)
		}
		if mqttBridge != nil {
			mqttBridge.PublishEvent(d, bridge.EventConnected, nil)
		}
	})

	session.SetOnDisconnected(func() {
		if err := recorder.DeviceDisconnected(ctx, d); err != nil {
			log.Error("recording link down failed", "device", d.ID, "error", err)
		}
		if mqttBridge != nil {
			mqttBridge.PublishEvent(d, bridge.EventDisconnected, nil)
		}
	})

	session.SetOnMessage(func(msg osc.Message) {
		prefix := session.Prefix()
		if err := recorder.RecordMessage(ctx, d, prefix, msg); err != nil {
			log.Warn("recording message failed", "device", d.ID, "error", err)
		}
		ev, ok := monome.ParseInput(prefix, msg)
		if !ok {
			return
		}
		if mqttBridge != nil {
			mqttBridge.PublishInput(d, ev)
		}
		broadcast(api.ChannelDeviceInput, map[string]any{
			"serial": d.ID, "type": ev.Type.String(),
		})
	})

	session.SetOnError(func(err error) {
		log.Warn("session error", "device", d.ID, "error", err)
	})
}

// deviceSource adapts *serialosc.Client to api.DeviceSource.
type deviceSource struct {
	client *serialosc.Client
}

func (s deviceSource) Devices() []*monome.Device {
	return s.client.Devices()
}

func (s deviceSource) Session(key monome.Key) (api.SessionInfo, bool) {
	session, ok := s.client.Session(key)
	if !ok {
		return nil, false
	}
	return session, true
}

// sessionAdapter adapts *serialosc.Client to bridge.SessionProvider.
type sessionAdapter struct {
	client *serialosc.Client
}

func (s sessionAdapter) Devices() []*monome.Device {
	return s.client.Devices()
}

func (s sessionAdapter) Session(key monome.Key) (bridge.CommandSender, bool) {
	session, ok := s.client.Session(key)
	if !ok {
		return nil, false
	}
	return session, true
}

// getConfigPath returns the configuration file path.
// Uses the MONOME_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MONOME_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies infrastructure connections are healthy.
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
