package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for monomed.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Discovery Discovery       `yaml:"discovery"`
	Session   SessionConfig   `yaml:"session"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// Discovery contains serialosc daemon discovery settings.
type Discovery struct {
	// DaemonHost is the host the serialosc daemon runs on.
	DaemonHost string `yaml:"daemon_host"`

	// DaemonPort is the daemon's UDP port.
	DaemonPort int `yaml:"daemon_port"`

	// ListenHost is the local address device announcements arrive on.
	ListenHost string `yaml:"listen_host"`

	// ListenPort is the local announcement port. 0 picks an ephemeral port.
	ListenPort int `yaml:"listen_port"`

	// AutoSession toggles automatic per-device session startup.
	AutoSession bool `yaml:"auto_session"`

	// Daemon controls optional supervision of a local serialoscd process.
	Daemon DaemonProcessConfig `yaml:"daemon"`
}

// DaemonProcessConfig contains settings for running serialoscd as a managed
// subprocess. When disabled, an externally managed daemon is assumed.
type DaemonProcessConfig struct {
	Managed bool     `yaml:"managed"`
	Binary  string   `yaml:"binary"`
	Args    []string `yaml:"args"`

	// RestartOnFailure restarts the daemon when it exits unexpectedly.
	RestartOnFailure bool `yaml:"restart_on_failure"`

	// RestartDelay is the base delay between restart attempts, in seconds.
	RestartDelay int `yaml:"restart_delay"`

	// MaxRestartAttempts caps consecutive restarts. 0 means unlimited.
	MaxRestartAttempts int `yaml:"max_restart_attempts"`
}

// SessionConfig contains per-device session settings.
type SessionConfig struct {
	// Prefix is the OSC address prefix device events are subscribed
	// under (e.g. "/monome").
	Prefix string `yaml:"prefix"`

	// ListenHost is the local address device replies arrive on.
	ListenHost string `yaml:"listen_host"`

	// HandshakeTimeout bounds the time a device may take to acknowledge
	// the full /sys handshake. 0 disables the watchdog.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings, in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket event stream settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MONOME_SECTION_KEY
// For example: MONOME_DATABASE_PATH, MONOME_DISCOVERY_DAEMON_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Discovery: Discovery{
			DaemonHost:  "127.0.0.1",
			DaemonPort:  12002,
			ListenHost:  "127.0.0.1",
			AutoSession: true,
			Daemon: DaemonProcessConfig{
				Binary:           "serialoscd",
				RestartOnFailure: true,
				RestartDelay:     5,
			},
		},
		Session: SessionConfig{
			Prefix:     "/monome",
			ListenHost: "127.0.0.1",
		},
		Database: DatabaseConfig{
			Path:        "./data/monomed.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "monomed",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MONOME_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Discovery
	if v := os.Getenv("MONOME_DISCOVERY_DAEMON_HOST"); v != "" {
		cfg.Discovery.DaemonHost = v
	}
	if v := os.Getenv("MONOME_DISCOVERY_DAEMON_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Discovery.DaemonPort = n
		}
	}

	// Database
	if v := os.Getenv("MONOME_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("MONOME_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("MONOME_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MONOME_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("MONOME_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("MONOME_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Discovery.DaemonHost == "" {
		errs = append(errs, "discovery.daemon_host is required")
	}
	if c.Discovery.DaemonPort < 1 || c.Discovery.DaemonPort > 65535 {
		errs = append(errs, "discovery.daemon_port must be between 1 and 65535")
	}
	if c.Discovery.ListenPort < 0 || c.Discovery.ListenPort > 65535 {
		errs = append(errs, "discovery.listen_port must be between 0 and 65535")
	}
	if c.Discovery.Daemon.Managed && c.Discovery.Daemon.Binary == "" {
		errs = append(errs, "discovery.daemon.binary is required when discovery.daemon.managed is true")
	}
	if c.Discovery.Daemon.RestartDelay < 0 {
		errs = append(errs, "discovery.daemon.restart_delay must not be negative")
	}

	if !strings.HasPrefix(c.Session.Prefix, "/") {
		errs = append(errs, "session.prefix must begin with '/'")
	}
	if c.Session.HandshakeTimeout < 0 {
		errs = append(errs, "session.handshake_timeout must not be negative")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Token == "" {
			errs = append(errs, "influxdb.token is required when influxdb is enabled (set MONOME_INFLUXDB_TOKEN)")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
