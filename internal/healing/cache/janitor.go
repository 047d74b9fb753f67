package cache

import (
	"context"
	"log/slog"
	"time"
)

// Janitor periodically evicts expired entries so long-lived test runs do not
// accumulate dead locators.
type Janitor struct {
	cache   *Cache
	ttl     time.Duration
	logger  *slog.Logger
	onEvict func(count int)
}

// NewJanitor creates a janitor for cache. onEvict may be nil.
func NewJanitor(cache *Cache, ttl time.Duration, logger *slog.Logger, onEvict func(count int)) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{cache: cache, ttl: ttl, logger: logger, onEvict: onEvict}
}

// Start runs the eviction loop until ctx is cancelled.
func (j *Janitor) Start(ctx context.Context) {
	if j.ttl <= 0 {
		return // expiry disabled
	}

	// Check at roughly a tenth of the TTL, clamped to something sane.
	interval := min(j.ttl/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	count := j.cache.EvictExpired(ctx)
	if count > 0 {
		j.logger.Debug("evicted expired cache entries", "count", count)
		if j.onEvict != nil {
			j.onEvict(count)
		}
	}
}
