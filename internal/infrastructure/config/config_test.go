package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// testSecret satisfies the 32-character minimum.
const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfigFile(t, `
security:
  jwt:
    secret: "`+testSecret+`"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.API.Port != 8080 {
		t.Errorf("default api.port = %d, want 8080", cfg.API.Port)
	}
	if cfg.Database.Path != "./data/fieldtrace.db" {
		t.Errorf("default database.path = %q", cfg.Database.Path)
	}
	if !cfg.Database.WALMode {
		t.Error("default database.wal_mode should be true")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("default logging.level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Security.JWT.DeviceTokenTTL != 24*30 {
		t.Errorf("default device_token_ttl = %d, want %d", cfg.Security.JWT.DeviceTokenTTL, 24*30)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
api:
  port: 9090
database:
  path: /tmp/custom.db
ingest:
  replay_jitter_ms: 250
security:
  jwt:
    secret: "`+testSecret+`"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.API.Port != 9090 {
		t.Errorf("api.port = %d, want 9090", cfg.API.Port)
	}
	if cfg.Database.Path != "/tmp/custom.db" {
		t.Errorf("database.path = %q", cfg.Database.Path)
	}
	if cfg.Ingest.ReplayJitterMs != 250 {
		t.Errorf("ingest.replay_jitter_ms = %d, want 250", cfg.Ingest.ReplayJitterMs)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
database:
  path: /tmp/from-file.db
security:
  jwt:
    secret: "`+testSecret+`"
`)

	t.Setenv("FIELDTRACE_DATABASE_PATH", "/tmp/from-env.db")
	t.Setenv("FIELDTRACE_API_PORT", "7070")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Database.Path != "/tmp/from-env.db" {
		t.Errorf("database.path = %q, want env override", cfg.Database.Path)
	}
	if cfg.API.Port != 7070 {
		t.Errorf("api.port = %d, want 7070", cfg.API.Port)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing jwt secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "" },
			wantErr: "security.jwt.secret is required",
		},
		{
			name:    "short jwt secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "too-short" },
			wantErr: "at least 32 characters",
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: "api.port",
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "negative jitter",
			mutate:  func(c *Config) { c.Ingest.ReplayJitterMs = -1 },
			wantErr: "replay_jitter_ms",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Security.JWT.Secret = testSecret
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() should have failed")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load() should fail for a missing file")
	}
}
