package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfigFile(t, `
controller:
  token: "test-token"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Database.Path != "./data/homelink.db" {
		t.Errorf("Database.Path = %q, want default", cfg.Database.Path)
	}
	if cfg.API.Port != 8090 {
		t.Errorf("API.Port = %d, want 8090", cfg.API.Port)
	}
	if cfg.Controller.ProxyPath != "/ha-api" {
		t.Errorf("Controller.ProxyPath = %q, want /ha-api", cfg.Controller.ProxyPath)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
controller:
  local_url: "http://192.168.1.5:8123"
  public_url: "https://example.duckdns.org"
  token: "abc"
database:
  path: "/tmp/test.db"
api:
  port: 9000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Controller.LocalURL != "http://192.168.1.5:8123" {
		t.Errorf("Controller.LocalURL = %q", cfg.Controller.LocalURL)
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.API.Port != 9000 {
		t.Errorf("API.Port = %d", cfg.API.Port)
	}
	if !cfg.Controller.HasExplicitAddress() {
		t.Error("HasExplicitAddress() = false, want true")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, `
controller:
  token: "file-token"
`)

	t.Setenv("HOMELINK_CONTROLLER_TOKEN", "env-token")
	t.Setenv("HOMELINK_DATABASE_PATH", "/env/path.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Controller.Token != "env-token" {
		t.Errorf("Controller.Token = %q, want env-token", cfg.Controller.Token)
	}
	if cfg.Database.Path != "/env/path.db" {
		t.Errorf("Database.Path = %q, want /env/path.db", cfg.Database.Path)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"port too low", func(c *Config) { c.API.Port = 0 }},
		{"port too high", func(c *Config) { c.API.Port = 70000 }},
		{"mqtt enabled without host", func(c *Config) {
			c.MQTT.Enabled = true
			c.MQTT.Host = ""
		}},
		{"mqtt invalid qos", func(c *Config) {
			c.MQTT.Enabled = true
			c.MQTT.QoS = 3
		}},
		{"influx enabled without url", func(c *Config) {
			c.InfluxDB.Enabled = true
			c.InfluxDB.Bucket = "b"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() = nil error for missing file")
	}
}

func TestHasExplicitAddress(t *testing.T) {
	var c Controller
	if c.HasExplicitAddress() {
		t.Error("empty controller reports explicit address")
	}
	c.PublicURL = "https://example.org"
	if !c.HasExplicitAddress() {
		t.Error("controller with public url reports no explicit address")
	}
}
