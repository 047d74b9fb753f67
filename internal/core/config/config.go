package config

import (
	"time"

	filestore "github.com/vietddude/healer/internal/infra/store/file"
	"github.com/vietddude/healer/internal/infra/store/postgres"
	redisstore "github.com/vietddude/healer/internal/infra/store/redis"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Cache      CacheConfig      `yaml:"cache"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Strategy   StrategyConfig   `yaml:"strategy"`
}

// ServerConfig holds health endpoint settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// CacheConfig selects and tunes the selector cache backend.
type CacheConfig struct {
	Backend  string            `yaml:"backend"` // memory, file, redis, postgres
	Capacity int               `yaml:"capacity"`
	TTL      time.Duration     `yaml:"ttl"`
	Sliding  bool              `yaml:"sliding"` // extend TTL on access
	File     filestore.Config  `yaml:"file"`
	Redis    redisstore.Config `yaml:"redis"`
	Postgres postgres.Config   `yaml:"postgres"`
}

// ResilienceConfig tunes the circuit breakers and retries around analyzer
// calls.
type ResilienceConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
	MaxAttempts      int           `yaml:"max_attempts"`
	RetryBaseDelay   time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay    time.Duration `yaml:"retry_max_delay"`
	CallTimeout      time.Duration `yaml:"call_timeout"`
}

// StrategyConfig tunes lookup behavior.
type StrategyConfig struct {
	Mode           string        `yaml:"mode"` // dom_only, visual_first, smart_sequential, sequential, parallel
	QuickTimeout   time.Duration `yaml:"quick_timeout"`
	LocateTimeout  time.Duration `yaml:"locate_timeout"`
	OverallTimeout time.Duration `yaml:"overall_timeout"`
}
