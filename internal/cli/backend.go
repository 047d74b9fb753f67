package cli

import (
	"context"
	"fmt"

	"github.com/vietddude/healer"
	"github.com/vietddude/healer/internal/core/config"
	filestore "github.com/vietddude/healer/internal/infra/store/file"
	"github.com/vietddude/healer/internal/infra/store/memory"
	"github.com/vietddude/healer/internal/infra/store/postgres"
	redisstore "github.com/vietddude/healer/internal/infra/store/redis"
)

// openBackend builds the cache backend the config selects.
func openBackend(ctx context.Context, cfg *config.AppConfig) (healer.Backend, error) {
	switch cfg.Cache.Backend {
	case "", "memory":
		return memory.New(), nil
	case "file":
		path := cfg.Cache.File.Path
		if path == "" {
			path = "healer_cache.json"
		}
		return filestore.Open(path)
	case "redis":
		return redisstore.New(cfg.Cache.Redis)
	case "postgres":
		return postgres.New(ctx, cfg.Cache.Postgres)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}
