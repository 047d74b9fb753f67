package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/healer/internal/core/domain"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if cfg.Strategy.Mode != "" && !domain.Mode(cfg.Strategy.Mode).Valid() {
		return nil, fmt.Errorf("unknown strategy mode %q", cfg.Strategy.Mode)
	}
	switch cfg.Cache.Backend {
	case "", "memory", "file", "redis", "postgres":
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}

	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.Capacity == 0 {
		cfg.Cache.Capacity = 10000
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 24 * time.Hour
	}
	if cfg.Resilience.FailureThreshold == 0 {
		cfg.Resilience.FailureThreshold = 5
	}
	if cfg.Resilience.Cooldown == 0 {
		cfg.Resilience.Cooldown = 5 * time.Minute
	}
	if cfg.Resilience.MaxAttempts == 0 {
		cfg.Resilience.MaxAttempts = 3
	}
	if cfg.Resilience.RetryBaseDelay == 0 {
		cfg.Resilience.RetryBaseDelay = time.Second
	}
	if cfg.Resilience.RetryMaxDelay == 0 {
		cfg.Resilience.RetryMaxDelay = 30 * time.Second
	}
	if cfg.Resilience.CallTimeout == 0 {
		cfg.Resilience.CallTimeout = 30 * time.Second
	}
	if cfg.Strategy.Mode == "" {
		cfg.Strategy.Mode = string(domain.ModeSmartSequential)
	}
	if cfg.Strategy.QuickTimeout == 0 {
		cfg.Strategy.QuickTimeout = 500 * time.Millisecond
	}
	if cfg.Strategy.LocateTimeout == 0 {
		cfg.Strategy.LocateTimeout = 10 * time.Second
	}
	if cfg.Strategy.OverallTimeout == 0 {
		cfg.Strategy.OverallTimeout = 2 * time.Minute
	}
}
