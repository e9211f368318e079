package config

import (
	"os"
	"path/filepath"
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
	content := `
fleet:
  id: "test-fleet"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
api:
  host: "0.0.0.0"
  port: 8080
sweeper:
  interval: 30
  stale_timeout: 120
cache:
  ttl: 60
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Fleet.ID != "test-fleet" {
		t.Errorf("Fleet.ID = %q, want %q", cfg.Fleet.ID, "test-fleet")
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}

	if got := cfg.GetStaleTimeout(); got != 120*time.Second {
		t.Errorf("GetStaleTimeout() = %v, want %v", got, 120*time.Second)
	}

	if got := cfg.GetCacheTTL(); got != 60*time.Second {
		t.Errorf("GetCacheTTL() = %v, want %v", got, 60*time.Second)
	}
}

func TestLoad_Defaults(t *testing.T) {
	content := `
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.Port != 8080 {
		t.Errorf("API.Port = %d, want default 8080", cfg.API.Port)
	}
	if cfg.Sweeper.StaleTimeout != 300 {
		t.Errorf("Sweeper.StaleTimeout = %d, want default 300", cfg.Sweeper.StaleTimeout)
	}
	if cfg.MQTT.Enabled {
		t.Error("MQTT.Enabled should default to false")
	}
	if cfg.WebSocket.Path != "/ws" {
		t.Errorf("WebSocket.Path = %q, want default /ws", cfg.WebSocket.Path)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FLEETCORE_DATABASE_PATH", "/var/lib/fleet/override.db")
	t.Setenv("FLEETCORE_JWT_SECRET", "env-secret-key-at-least-32-chars!!")
	t.Setenv("FLEETCORE_SWEEPER_STALE_TIMEOUT", "600")

	content := `
database:
  path: "/tmp/file-value.db"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/var/lib/fleet/override.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if cfg.Sweeper.StaleTimeout != 600 {
		t.Errorf("Sweeper.StaleTimeout = %d, want 600", cfg.Sweeper.StaleTimeout)
	}
}

func TestConfig_Validate(t *testing.T) {
	validJWTSecret := "test-secret-key-at-least-32-chars!"

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid defaults with secret",
			modify:  func(c *Config) { c.Security.JWT.Secret = validJWTSecret },
			wantErr: false,
		},
		{
			name: "missing fleet id",
			modify: func(c *Config) {
				c.Security.JWT.Secret = validJWTSecret
				c.Fleet.ID = ""
			},
			wantErr: true,
		},
		{
			name: "missing database path",
			modify: func(c *Config) {
				c.Security.JWT.Secret = validJWTSecret
				c.Database.Path = ""
			},
			wantErr: true,
		},
		{
			name: "invalid qos",
			modify: func(c *Config) {
				c.Security.JWT.Secret = validJWTSecret
				c.MQTT.QoS = 3
			},
			wantErr: true,
		},
		{
			name: "invalid api port",
			modify: func(c *Config) {
				c.Security.JWT.Secret = validJWTSecret
				c.API.Port = 0
			},
			wantErr: true,
		},
		{
			name: "stale timeout shorter than interval",
			modify: func(c *Config) {
				c.Security.JWT.Secret = validJWTSecret
				c.Sweeper.Interval = 60
				c.Sweeper.StaleTimeout = 30
			},
			wantErr: true,
		},
		{
			name:    "missing jwt secret",
			modify:  func(c *Config) {},
			wantErr: true,
		},
		{
			name: "short jwt secret",
			modify: func(c *Config) {
				c.Security.JWT.Secret = "too-short"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}
