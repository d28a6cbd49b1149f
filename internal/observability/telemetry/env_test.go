package telemetry

import "testing"

func TestRuntimeConfigFromEnvDefaults(t *testing.T) {
	t.Setenv(EnvTelemetryEnabled, "")
	t.Setenv(EnvTelemetryOTLPHTTPEndpoint, "")
	t.Setenv(EnvTelemetryQueueCapacity, "")
	t.Setenv(EnvTelemetryDropSampleRate, "")
	t.Setenv(EnvTelemetryExportTimeoutMS, "")

	cfg, err := RuntimeConfigFromEnv()
	if err != nil {
		t.Fatalf("config from env: %v", err)
	}
	if !cfg.Enabled || cfg.QueueCapacity != 256 || cfg.LogSampleRate != 1 || cfg.ExportTimeoutMS != 200 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestRuntimeConfigFromEnvOverrides(t *testing.T) {
	t.Setenv(EnvTelemetryEnabled, "true")
	t.Setenv(EnvTelemetryOTLPHTTPEndpoint, "http://collector:4318")
	t.Setenv(EnvTelemetryQueueCapacity, "512")
	t.Setenv(EnvTelemetryDropSampleRate, "10")
	t.Setenv(EnvTelemetryExportTimeoutMS, "50")

	cfg, err := RuntimeConfigFromEnv()
	if err != nil {
		t.Fatalf("config from env: %v", err)
	}
	if cfg.OTLPHTTPEndpoint != "http://collector:4318" || cfg.QueueCapacity != 512 ||
		cfg.LogSampleRate != 10 || cfg.ExportTimeoutMS != 50 {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
}

func TestRuntimeConfigFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv(EnvTelemetryQueueCapacity, "zero")
	if _, err := RuntimeConfigFromEnv(); err == nil {
		t.Fatalf("expected invalid queue capacity to fail")
	}

	t.Setenv(EnvTelemetryQueueCapacity, "")
	t.Setenv(EnvTelemetryEnabled, "maybe")
	if _, err := RuntimeConfigFromEnv(); err == nil {
		t.Fatalf("expected invalid enabled flag to fail")
	}
}

func TestNewPipelineFromEnvDisabled(t *testing.T) {
	t.Setenv(EnvTelemetryEnabled, "false")
	p, err := NewPipelineFromEnv()
	if err != nil {
		t.Fatalf("pipeline from env: %v", err)
	}
	if p != nil {
		t.Fatalf("disabled telemetry must yield a nil pipeline")
	}
}
