package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration of the Modbus mapper.
// It is loaded from YAML, then overridden by environment variables and
// command-line flags.
type Config struct {
	Mapper    MapperConfig    `yaml:"mapper"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Database  DatabaseConfig  `yaml:"database"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// MapperConfig contains the synchronisation engine settings.
type MapperConfig struct {
	// ID identifies this mapper in health and status topics.
	ID string `yaml:"id"`

	// ProfilePath is the JSON device profile.
	ProfilePath string `yaml:"profile_path"`

	// PollInterval is the register poll period. Default: 2s
	PollInterval time.Duration `yaml:"poll_interval"`

	// HealthInterval is how often health is published. Default: 30s
	HealthInterval time.Duration `yaml:"health_interval"`

	// ResponseTimeout bounds each Modbus exchange. Default: 500ms
	ResponseTimeout time.Duration `yaml:"response_timeout"`

	// RTUSettleDelay is waited before opening a serial port. Default: 100ms
	RTUSettleDelay time.Duration `yaml:"rtu_settle_delay"`

	// WatchProfile reloads the profile when the file changes.
	WatchProfile bool `yaml:"watch_profile"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
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

// APIConfig contains status API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains the live property stream settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// DatabaseConfig contains SQLite property history settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// HistoryRetention is how long property history is kept. Default: 30 days
	HistoryRetention time.Duration `yaml:"history_retention"`
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

// Overrides carries command-line values. Empty or zero fields are ignored.
type Overrides struct {
	ProfilePath string
	LogLevel    string
	MQTTHost    string
	MQTTPort    int
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//  4. Command-line overrides
//
// Environment variables follow the pattern: MODBUSMAPPER_SECTION_KEY
// For example: MODBUSMAPPER_MQTT_HOST, MODBUSMAPPER_MAPPER_PROFILE_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for defaults
//   - overrides: Command-line values
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string, overrides Overrides) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	cfg.applyOverrides(overrides)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Mapper: MapperConfig{
			ID:              "modbus-mapper",
			ProfilePath:     "./config/deviceProfile.json",
			PollInterval:    2 * time.Second,
			HealthInterval:  30 * time.Second,
			ResponseTimeout: 500 * time.Millisecond,
			RTUSettleDelay:  100 * time.Millisecond,
			WatchProfile:    true,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "modbus-mapper",
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
			Host:    "0.0.0.0",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/api/v1/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Database: DatabaseConfig{
			Enabled:          false,
			Path:             "./data/modbus-mapper.db",
			WALMode:          true,
			BusyTimeout:      5,
			HistoryRetention: 30 * 24 * time.Hour,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MODBUSMAPPER_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Mapper
	if v := os.Getenv("MODBUSMAPPER_MAPPER_ID"); v != "" {
		cfg.Mapper.ID = v
	}
	if v := os.Getenv("MODBUSMAPPER_MAPPER_PROFILE_PATH"); v != "" {
		cfg.Mapper.ProfilePath = v
	}
	if v := os.Getenv("MODBUSMAPPER_MAPPER_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Mapper.PollInterval = d
		}
	}

	// MQTT
	if v := os.Getenv("MODBUSMAPPER_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("MODBUSMAPPER_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("MODBUSMAPPER_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MODBUSMAPPER_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("MODBUSMAPPER_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// Database
	if v := os.Getenv("MODBUSMAPPER_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("MODBUSMAPPER_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("MODBUSMAPPER_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// applyOverrides applies command-line values on top of file and environment.
func (c *Config) applyOverrides(o Overrides) {
	if o.ProfilePath != "" {
		c.Mapper.ProfilePath = o.ProfilePath
	}
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
	if o.MQTTHost != "" {
		c.MQTT.Broker.Host = o.MQTTHost
	}
	if o.MQTTPort != 0 {
		c.MQTT.Broker.Port = o.MQTTPort
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Every problem found, joined into one message, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Mapper validation
	if c.Mapper.ID == "" {
		errs = append(errs, "mapper.id is required")
	}
	if strings.ContainsAny(c.Mapper.ID, "/+#") {
		errs = append(errs, "mapper.id must not contain MQTT topic characters")
	}
	if c.Mapper.ProfilePath == "" {
		errs = append(errs, "mapper.profile_path is required")
	}
	if c.Mapper.PollInterval <= 0 {
		errs = append(errs, "mapper.poll_interval must be positive")
	}
	if c.Mapper.ResponseTimeout <= 0 {
		errs = append(errs, "mapper.response_timeout must be positive")
	}
	if c.Mapper.RTUSettleDelay < 0 {
		errs = append(errs, "mapper.rtu_settle_delay must not be negative")
	}

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
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
