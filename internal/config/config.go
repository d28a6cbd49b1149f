// Package config loads the runtime configuration from a YAML file and
// applies TWR_* environment overrides on top. File values are the durable
// defaults; environment variables win for per-deployment tweaks.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvStorePath     = "TWR_STORE_PATH"
	EnvStoreInMemory = "TWR_STORE_IN_MEMORY"
	EnvMetricsAddr   = "TWR_METRICS_ADDR"
	EnvSLOWindow     = "TWR_SLO_WINDOW"
)

// StoreConfig selects the embedded key-value store backing.
type StoreConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// SLOConfig sizes the per-tier latency windows.
type SLOConfig struct {
	Window int `yaml:"window"`
}

// MetricsConfig controls the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// TelemetryConfig controls the bounded telemetry pipeline.
type TelemetryConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Endpoint        string `yaml:"endpoint"`
	Service         string `yaml:"service"`
	QueueCapacity   int    `yaml:"queue_capacity"`
	ExportTimeoutMS int    `yaml:"export_timeout_ms"`
	LogSampleRate   int    `yaml:"log_sample_rate"`
}

// ExportTimeout returns the export timeout as a duration.
func (t TelemetryConfig) ExportTimeout() time.Duration {
	return time.Duration(t.ExportTimeoutMS) * time.Millisecond
}

// Config is the full runtime configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	SLO       SLOConfig       `yaml:"slo"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Store: StoreConfig{Path: "data/twr", InMemory: false},
		SLO:   SLOConfig{Window: 0},
		Metrics: MetricsConfig{
			Enabled:    true,
			ListenAddr: ":9464",
		},
		Telemetry: TelemetryConfig{
			Enabled:         false,
			Service:         "twr-runtime",
			QueueCapacity:   256,
			ExportTimeoutMS: 200,
			LogSampleRate:   1,
		},
	}
}

// Load reads the YAML file at path, layers environment overrides, and
// validates the result. An empty path loads defaults plus overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		decoder := yaml.NewDecoder(strings.NewReader(string(raw)))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if raw := strings.TrimSpace(os.Getenv(EnvStorePath)); raw != "" {
		cfg.Store.Path = raw
	}
	if raw := strings.TrimSpace(os.Getenv(EnvStoreInMemory)); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvStoreInMemory, err)
		}
		cfg.Store.InMemory = v
	}
	if raw := strings.TrimSpace(os.Getenv(EnvMetricsAddr)); raw != "" {
		cfg.Metrics.ListenAddr = raw
	}
	if raw := strings.TrimSpace(os.Getenv(EnvSLOWindow)); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvSLOWindow, err)
		}
		cfg.SLO.Window = v
	}
	return nil
}

// Validate enforces configuration invariants.
func (c Config) Validate() error {
	if !c.Store.InMemory && strings.TrimSpace(c.Store.Path) == "" {
		return fmt.Errorf("store.path is required when store.in_memory is false")
	}
	if c.SLO.Window < 0 {
		return fmt.Errorf("slo.window must be >= 0, got %d", c.SLO.Window)
	}
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.ListenAddr) == "" {
		return fmt.Errorf("metrics.listen_addr is required when metrics are enabled")
	}
	if c.Telemetry.Enabled && strings.TrimSpace(c.Telemetry.Endpoint) == "" {
		return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
	}
	if c.Telemetry.QueueCapacity < 0 {
		return fmt.Errorf("telemetry.queue_capacity must be >= 0, got %d", c.Telemetry.QueueCapacity)
	}
	if c.Telemetry.ExportTimeoutMS < 0 {
		return fmt.Errorf("telemetry.export_timeout_ms must be >= 0, got %d", c.Telemetry.ExportTimeoutMS)
	}
	if c.Telemetry.LogSampleRate < 0 {
		return fmt.Errorf("telemetry.log_sample_rate must be >= 0, got %d", c.Telemetry.LogSampleRate)
	}
	return nil
}
