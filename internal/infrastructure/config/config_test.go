package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Create a temporary config file
	content := `
hub:
  startup_timeout: 20
  stage_stop_timeout: 90
  strict_validation: true
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  enabled: true
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
  base_topic: "hearth"
api:
  host: "0.0.0.0"
  port: 8123
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Hub.StartupTimeout != 20 {
		t.Errorf("Hub.StartupTimeout = %d, want 20", cfg.Hub.StartupTimeout)
	}
	if cfg.Hub.StageStopTimeout != 90 {
		t.Errorf("Hub.StageStopTimeout = %d, want 90", cfg.Hub.StageStopTimeout)
	}
	if !cfg.Hub.StrictValidation {
		t.Error("Hub.StrictValidation not applied")
	}
	// Unset hub fields keep their defaults.
	if cfg.Hub.StageCloseTimeout != 30 {
		t.Errorf("Hub.StageCloseTimeout = %d, want default 30", cfg.Hub.StageCloseTimeout)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}

	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
database:
  path: ""
api:
  port: 8123
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty database.path, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	// validJWTSecret is a secret that meets the 32-character minimum requirement
	validJWTSecret := "test-secret-key-at-least-32-chars!"

	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{Path: "/data/hearth.db"},
			MQTT:     MQTTConfig{QoS: 1, BaseTopic: "hearth"},
			API:      APIConfig{Port: 8123},
			Security: SecurityConfig{JWT: JWTConfig{Secret: validJWTSecret}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(*Config) {}, false},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, true},
		{"invalid QoS", func(c *Config) { c.MQTT.QoS = 3 }, true},
		{"missing base topic when enabled", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.BaseTopic = "" }, true},
		{"missing base topic when disabled", func(c *Config) { c.MQTT.BaseTopic = "" }, false},
		{"invalid port low", func(c *Config) { c.API.Port = 0 }, true},
		{"invalid port high", func(c *Config) { c.API.Port = 70000 }, true},
		{"negative tick interval", func(c *Config) { c.Hub.TickIntervalMS = -1 }, true},
		{"missing JWT secret", func(c *Config) { c.Security.JWT.Secret = "" }, true},
		{"JWT secret too short", func(c *Config) { c.Security.JWT.Secret = "short" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestConfig_HubTimeouts(t *testing.T) {
	cfg := defaultConfig()
	startup, stageStop, stageFinalWrite, stageClose, tick := cfg.HubTimeouts()

	if startup != 15*time.Second {
		t.Errorf("startup = %v, want 15s", startup)
	}
	if stageStop != 120*time.Second {
		t.Errorf("stageStop = %v, want 120s", stageStop)
	}
	if stageFinalWrite != 60*time.Second {
		t.Errorf("stageFinalWrite = %v, want 60s", stageFinalWrite)
	}
	if stageClose != 30*time.Second {
		t.Errorf("stageClose = %v, want 30s", stageClose)
	}
	if tick != time.Second {
		t.Errorf("tick = %v, want 1s", tick)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	// Set environment variables
	t.Setenv("HEARTH_DATABASE_PATH", "/custom/path.db")
	t.Setenv("HEARTH_MQTT_HOST", "mqtt.example.com")
	t.Setenv("HEARTH_MQTT_USERNAME", "testuser")
	t.Setenv("HEARTH_MQTT_PASSWORD", "testpass")
	t.Setenv("HEARTH_API_HOST", "192.168.1.1")
	t.Setenv("HEARTH_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("HEARTH_JWT_SECRET", "jwt-secret")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}

	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}

	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}

	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}

	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}

	if cfg.Security.JWT.Secret != "jwt-secret" {
		t.Errorf("Security.JWT.Secret = %q, want %q", cfg.Security.JWT.Secret, "jwt-secret")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}

	if cfg.API.Port != 8123 {
		t.Errorf("defaultConfig API.Port = %d, want 8123", cfg.API.Port)
	}

	if cfg.Hub.ServiceCallTimeout != 10 {
		t.Errorf("defaultConfig Hub.ServiceCallTimeout = %d, want 10", cfg.Hub.ServiceCallTimeout)
	}
}
