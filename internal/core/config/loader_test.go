package config

import (
	"os"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp(t.TempDir(), "config_*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	if _, err := tmpFile.Write([]byte(content)); err != nil {
		t.Fatalf("Failed to write to temp file: %v", err)
	}
	tmpFile.Close()
	return tmpFile.Name()
}

func TestLoad_EnvSubstitution(t *testing.T) {
	os.Setenv("TEST_REDIS_URL", "redis://localhost:6380/2")
	defer os.Unsetenv("TEST_REDIS_URL")

	path := writeConfig(t, `
cache:
  backend: redis
  redis:
    url: ${TEST_REDIS_URL}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Cache.Backend != "redis" {
		t.Errorf("backend = %q, want redis", cfg.Cache.Backend)
	}
	if cfg.Cache.Redis.URL != "redis://localhost:6380/2" {
		t.Errorf("redis url = %q, want redis://localhost:6380/2", cfg.Cache.Redis.URL)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: debug\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Cache.Backend != "memory" {
		t.Errorf("backend = %q, want memory", cfg.Cache.Backend)
	}
	if cfg.Cache.Capacity != 10000 {
		t.Errorf("capacity = %d, want 10000", cfg.Cache.Capacity)
	}
	if cfg.Cache.TTL != 24*time.Hour {
		t.Errorf("ttl = %v, want 24h", cfg.Cache.TTL)
	}
	if cfg.Resilience.FailureThreshold != 5 {
		t.Errorf("failure threshold = %d, want 5", cfg.Resilience.FailureThreshold)
	}
	if cfg.Resilience.Cooldown != 5*time.Minute {
		t.Errorf("cooldown = %v, want 5m", cfg.Resilience.Cooldown)
	}
	if cfg.Resilience.MaxAttempts != 3 {
		t.Errorf("max attempts = %d, want 3", cfg.Resilience.MaxAttempts)
	}
	if cfg.Strategy.Mode != "smart_sequential" {
		t.Errorf("mode = %q, want smart_sequential", cfg.Strategy.Mode)
	}
	if cfg.Strategy.QuickTimeout != 500*time.Millisecond {
		t.Errorf("quick timeout = %v, want 500ms", cfg.Strategy.QuickTimeout)
	}
	if cfg.Strategy.OverallTimeout != 2*time.Minute {
		t.Errorf("overall timeout = %v, want 2m", cfg.Strategy.OverallTimeout)
	}
}

func TestLoad_RejectsUnknownMode(t *testing.T) {
	path := writeConfig(t, "strategy:\n  mode: psychic\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	path := writeConfig(t, "cache:\n  backend: tape\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
