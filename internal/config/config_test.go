package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "twr.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Path != "data/twr" || cfg.Store.InMemory {
		t.Fatalf("unexpected store defaults: %+v", cfg.Store)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.ListenAddr != ":9464" {
		t.Fatalf("unexpected metrics defaults: %+v", cfg.Metrics)
	}
	if cfg.Telemetry.Enabled {
		t.Fatalf("telemetry must be off by default")
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
store:
  path: /var/lib/twr
slo:
  window: 500
telemetry:
  enabled: true
  endpoint: http://otel:4318
  queue_capacity: 1024
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Path != "/var/lib/twr" {
		t.Fatalf("unexpected store path %q", cfg.Store.Path)
	}
	if cfg.SLO.Window != 500 {
		t.Fatalf("unexpected slo window %d", cfg.SLO.Window)
	}
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Endpoint != "http://otel:4318" {
		t.Fatalf("unexpected telemetry config: %+v", cfg.Telemetry)
	}
	if cfg.Telemetry.QueueCapacity != 1024 {
		t.Fatalf("unexpected queue capacity %d", cfg.Telemetry.QueueCapacity)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "store:\n  pathh: typo\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected unknown field to fail")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "store:\n  path: /from/file\n")
	t.Setenv(EnvStorePath, "/from/env")
	t.Setenv(EnvStoreInMemory, "true")
	t.Setenv(EnvMetricsAddr, ":9999")
	t.Setenv(EnvSLOWindow, "200")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Path != "/from/env" || !cfg.Store.InMemory {
		t.Fatalf("env must win over file: %+v", cfg.Store)
	}
	if cfg.Metrics.ListenAddr != ":9999" {
		t.Fatalf("unexpected metrics addr %q", cfg.Metrics.ListenAddr)
	}
	if cfg.SLO.Window != 200 {
		t.Fatalf("unexpected slo window %d", cfg.SLO.Window)
	}
}

func TestEnvRejectsBadValues(t *testing.T) {
	t.Setenv(EnvStoreInMemory, "definitely")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), EnvStoreInMemory) {
		t.Fatalf("expected parse failure naming the variable, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := map[string]Config{
		"missing store path": func() Config {
			c := Default()
			c.Store.Path = ""
			return c
		}(),
		"negative slo window": func() Config {
			c := Default()
			c.SLO.Window = -1
			return c
		}(),
		"metrics without addr": func() Config {
			c := Default()
			c.Metrics.ListenAddr = ""
			return c
		}(),
		"telemetry without endpoint": func() Config {
			c := Default()
			c.Telemetry.Enabled = true
			return c
		}(),
	}
	for name, cfg := range cases {
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation failure", name)
		}
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}
