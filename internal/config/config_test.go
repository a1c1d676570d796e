package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestGetDefaultsValid(t *testing.T) {
	cfg := GetDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Defaults should validate: %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 8731 {
		t.Errorf("Unexpected listen address %s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Privacy.NER.Enabled {
		t.Error("Name recognizer should be disabled by default")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9000
privacy:
  detectors: [email, phone]
  ner:
    enabled: true
    backend: dictionary
    dictionary_path: /tmp/names.yaml
    timeout: 500ms
cache:
  default_ttl: 1m
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if strings.Join(cfg.Privacy.Detectors, ",") != "email,phone" {
		t.Errorf("detectors = %v", cfg.Privacy.Detectors)
	}
	if cfg.Privacy.NER.Timeout != 500*time.Millisecond || cfg.Cache.DefaultTTL != time.Minute {
		t.Errorf("durations not decoded: %v, %v", cfg.Privacy.NER.Timeout, cfg.Cache.DefaultTTL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %s", cfg.Logging.Level)
	}
	if cfg.Batch.BatchSize != 500 {
		t.Errorf("Unset keys should keep defaults, batch_size = %d", cfg.Batch.BatchSize)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PIIFILTER_SERVER_PORT", "9100")
	t.Setenv("PIIFILTER_LOGGING_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9100 || cfg.Logging.Level != "warn" {
		t.Errorf("Env overrides not applied: port=%d level=%s", cfg.Server.Port, cfg.Logging.Level)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing explicit config file")
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"no detectors", func(c *Config) { c.Privacy.Detectors = nil }, "must not be empty"},
		{"unknown detector", func(c *Config) { c.Privacy.Detectors = []string{"passport"} }, "unknown detector"},
		{"dictionary path", func(c *Config) { c.Privacy.NER.Enabled = true }, "dictionary_path"},
		{"onnx model", func(c *Config) {
			c.Privacy.NER.Enabled = true
			c.Privacy.NER.Backend = "onnx"
		}, "model_path"},
		{"bad backend", func(c *Config) {
			c.Privacy.NER.Enabled = true
			c.Privacy.NER.Backend = "spacy"
		}, "invalid ner backend"},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }, "invalid log level"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "invalid log format"},
		{"rate limit", func(c *Config) { c.RateLimit.RequestsPerMin = 0 }, "invalid rate limit"},
		{"sample rate", func(c *Config) { c.Tracing.SampleRate = 2 }, "sample_rate"},
		{"batch", func(c *Config) { c.Batch.WorkerCount = 0 }, "worker_count"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaults()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("validateConfig() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}
