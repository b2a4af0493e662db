package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
mapper:
  id: "plant-a"
  profile_path: "/etc/mapper/deviceProfile.json"
  poll_interval: 5s
  response_timeout: 250ms
mqtt:
  broker:
    host: "broker.local"
    port: 1884
    client_id: "test-client"
  qos: 1
database:
  enabled: true
  path: "/tmp/test.db"
`)

	cfg, err := Load(configPath, Overrides{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Mapper.ID != "plant-a" {
		t.Errorf("Mapper.ID = %q, want %q", cfg.Mapper.ID, "plant-a")
	}
	if cfg.Mapper.PollInterval != 5*time.Second {
		t.Errorf("Mapper.PollInterval = %v, want 5s", cfg.Mapper.PollInterval)
	}
	if cfg.Mapper.ResponseTimeout != 250*time.Millisecond {
		t.Errorf("Mapper.ResponseTimeout = %v, want 250ms", cfg.Mapper.ResponseTimeout)
	}
	// Unset keys keep their defaults.
	if cfg.Mapper.RTUSettleDelay != 100*time.Millisecond {
		t.Errorf("Mapper.RTUSettleDelay = %v, want 100ms", cfg.Mapper.RTUSettleDelay)
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if !cfg.Database.Enabled || cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database = %+v, want enabled at /tmp/test.db", cfg.Database)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("", Overrides{})
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Mapper.PollInterval != 2*time.Second {
		t.Errorf("Mapper.PollInterval = %v, want 2s", cfg.Mapper.PollInterval)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml", Overrides{})
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath, Overrides{})
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
mapper:
  id: ""
  poll_interval: 0s
`)

	_, err := Load(configPath, Overrides{})
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	for _, want := range []string{"mapper.id is required", "mapper.poll_interval must be positive"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err.Error(), want)
		}
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MODBUSMAPPER_MQTT_HOST", "env-host")

	cfg, err := Load("", Overrides{
		ProfilePath: "/tmp/profile.json",
		LogLevel:    "debug",
		MQTTHost:    "flag-host",
		MQTTPort:    8883,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "flag-host" {
		t.Errorf("MQTT.Broker.Host = %q, want flag to win over env", cfg.MQTT.Broker.Host)
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.Mapper.ProfilePath != "/tmp/profile.json" {
		t.Errorf("Mapper.ProfilePath = %q", cfg.Mapper.ProfilePath)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			modify: func(*Config) {},
		},
		{
			name:    "missing mapper id",
			modify:  func(c *Config) { c.Mapper.ID = "" },
			wantErr: "mapper.id is required",
		},
		{
			name:    "wildcard in mapper id",
			modify:  func(c *Config) { c.Mapper.ID = "plant/+" },
			wantErr: "mapper.id must not contain",
		},
		{
			name:    "missing profile path",
			modify:  func(c *Config) { c.Mapper.ProfilePath = "" },
			wantErr: "mapper.profile_path is required",
		},
		{
			name:    "zero response timeout",
			modify:  func(c *Config) { c.Mapper.ResponseTimeout = 0 },
			wantErr: "mapper.response_timeout must be positive",
		},
		{
			name:    "negative settle delay",
			modify:  func(c *Config) { c.Mapper.RTUSettleDelay = -time.Millisecond },
			wantErr: "mapper.rtu_settle_delay must not be negative",
		},
		{
			name:    "invalid mqtt port",
			modify:  func(c *Config) { c.MQTT.Broker.Port = 70000 },
			wantErr: "mqtt.broker.port",
		},
		{
			name:    "invalid qos",
			modify:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name: "api port ignored when disabled",
			modify: func(c *Config) {
				c.API.Enabled = false
				c.API.Port = 0
			},
		},
		{
			name: "database enabled without path",
			modify: func(c *Config) {
				c.Database.Enabled = true
				c.Database.Path = ""
			},
			wantErr: "database.path is required",
		},
		{
			name:    "influxdb enabled without url",
			modify:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: "influxdb.url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{Read: 30, Write: 45, Idle: 120},
		},
	}

	if got := cfg.GetReadTimeout(); got != 30*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetWriteTimeout(); got != 45*time.Second {
		t.Errorf("GetWriteTimeout() = %v, want 45s", got)
	}
	if got := cfg.GetIdleTimeout(); got != 120*time.Second {
		t.Errorf("GetIdleTimeout() = %v, want 120s", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("MODBUSMAPPER_MAPPER_ID", "env-mapper")
	t.Setenv("MODBUSMAPPER_MAPPER_POLL_INTERVAL", "750ms")
	t.Setenv("MODBUSMAPPER_MQTT_PORT", "1885")
	t.Setenv("MODBUSMAPPER_MQTT_PASSWORD", "secret")
	t.Setenv("MODBUSMAPPER_INFLUXDB_TOKEN", "tok")
	t.Setenv("MODBUSMAPPER_LOGGING_LEVEL", "warn")

	cfg := defaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Mapper.ID != "env-mapper" {
		t.Errorf("Mapper.ID = %q, want %q", cfg.Mapper.ID, "env-mapper")
	}
	if cfg.Mapper.PollInterval != 750*time.Millisecond {
		t.Errorf("Mapper.PollInterval = %v, want 750ms", cfg.Mapper.PollInterval)
	}
	if cfg.MQTT.Broker.Port != 1885 {
		t.Errorf("MQTT.Broker.Port = %d, want 1885", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Auth.Password != "secret" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "secret")
	}
	if cfg.InfluxDB.Token != "tok" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "tok")
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "warn")
	}
}

func TestApplyEnvOverrides_InvalidValuesIgnored(t *testing.T) {
	t.Setenv("MODBUSMAPPER_MQTT_PORT", "not-a-port")
	t.Setenv("MODBUSMAPPER_MAPPER_POLL_INTERVAL", "soon")

	cfg := defaultConfig()
	applyEnvOverrides(cfg)

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want default 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.Mapper.PollInterval != 2*time.Second {
		t.Errorf("Mapper.PollInterval = %v, want default 2s", cfg.Mapper.PollInterval)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Mapper.HealthInterval != 30*time.Second {
		t.Errorf("Mapper.HealthInterval = %v, want 30s", cfg.Mapper.HealthInterval)
	}
	if cfg.MQTT.Broker.ClientID != "modbus-mapper" {
		t.Errorf("MQTT.Broker.ClientID = %q", cfg.MQTT.Broker.ClientID)
	}
	if cfg.Database.Enabled {
		t.Error("Database.Enabled should default to false")
	}
	if cfg.Database.HistoryRetention != 30*24*time.Hour {
		t.Errorf("Database.HistoryRetention = %v, want 720h", cfg.Database.HistoryRetention)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}
}

// TestLoad_ShippedConfig keeps configs/config.yaml loadable.
func TestLoad_ShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "configs", "config.yaml"), Overrides{})
	if err != nil {
		t.Fatalf("Load(configs/config.yaml) error = %v", err)
	}
	if cfg.Mapper.PollInterval != 2*time.Second {
		t.Errorf("poll_interval = %v, want 2s", cfg.Mapper.PollInterval)
	}
	if cfg.Database.HistoryRetention != 720*time.Hour {
		t.Errorf("history_retention = %v, want 720h", cfg.Database.HistoryRetention)
	}
}
