// Package cache stores previously healed locators so repeated lookups skip
// the analysis pipeline. Entries live behind a pluggable byte-level backend;
// TTL, LRU ordering and hit bookkeeping are handled here.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/healer/internal/core/domain"
	"github.com/vietddude/healer/internal/infra/store"
)

// DefaultCapacity bounds the cache when no capacity is configured.
const DefaultCapacity = 10000

// metaLockTTL caps how long a crashed process can hold a cross-process
// metadata lock.
const metaLockTTL = 5 * time.Second

// Entry is one healed locator record.
type Entry struct {
	Selector    string        `json:"selector"`
	Description string        `json:"description"`
	Locator     string        `json:"locator"`
	Confidence  float64       `json:"confidence"`
	Source      domain.Origin `json:"source"`
	Reasoning   string        `json:"reasoning,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	LastAccess  time.Time     `json:"last_access"`
	Hits        int           `json:"hits"`
}

// Config holds cache behavior settings.
type Config struct {
	Capacity int
	// TTL expires entries measured from write time; zero disables expiry.
	TTL time.Duration
	// Sliding measures TTL from last access instead of write time.
	Sliding bool
	// Now overrides the time source, for tests.
	Now func() time.Time
}

// Cache implements the healed-locator cache over a store.Backend. All
// methods are safe for concurrent use; the internal mutex is never held
// across a backend call.
type Cache struct {
	backend store.Backend
	locker  store.Locker
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.Mutex
	index map[string]*entryMeta
}

// entryMeta is the local ordering view of one entry, used for LRU and
// expiry decisions without a backend round trip.
type entryMeta struct {
	createdAt  time.Time
	lastAccess time.Time
}

// New builds a cache over backend, seeding the LRU index from whatever the
// backend already holds. Unreadable entries are skipped, not fatal.
func New(ctx context.Context, backend store.Backend, cfg Config, logger *slog.Logger) (*Cache, error) {
	if backend == nil {
		return nil, errors.New("cache: nil backend")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	c := &Cache{
		backend: backend,
		cfg:     cfg,
		logger:  logger,
		now:     cfg.Now,
		index:   make(map[string]*entryMeta),
	}
	if l, ok := backend.(store.Locker); ok {
		c.locker = l
	}

	if err := c.seed(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// seed rebuilds the index from the backend so persistent stores keep their
// entries across restarts.
func (c *Cache) seed(ctx context.Context) error {
	keys, err := c.backend.Keys(ctx)
	if err != nil {
		return err
	}
	now := c.now()
	for _, key := range keys {
		data, err := c.backend.Get(ctx, key)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				c.logger.Warn("cache seed: unreadable entry skipped", "key", key, "error", err)
			}
			continue
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			c.logger.Warn("cache seed: undecodable entry skipped", "key", key, "error", err)
			continue
		}
		meta := &entryMeta{createdAt: e.CreatedAt, lastAccess: e.LastAccess}
		if c.expired(meta, now) {
			_ = c.backend.Delete(ctx, key)
			continue
		}
		c.index[key] = meta
	}
	c.enforceCapacity(ctx)
	return nil
}

// Get returns the entry for key, or false on miss. Any backend or decode
// failure degrades to a miss; a lookup never fails because the cache is
// unhealthy. Hit bookkeeping is deferred to Touch so that only entries
// which actually worked get their metadata bumped.
func (c *Cache) Get(ctx context.Context, key string) (*Entry, bool) {
	c.mu.Lock()
	meta, ok := c.index[key]
	if ok && c.expired(meta, c.now()) {
		delete(c.index, key)
		ok = false
	}
	c.mu.Unlock()
	if !ok {
		return nil, false
	}

	data, err := c.backend.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Another process deleted it; drop our stale index row.
			c.dropIndex(key)
		} else {
			c.logger.Warn("cache read failed, treating as miss", "key", key, "error", err)
		}
		return nil, false
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		c.logger.Warn("cache entry undecodable, evicting", "key", key, "error", err)
		c.dropIndex(key)
		_ = c.backend.Delete(ctx, key)
		return nil, false
	}
	return &e, true
}

// Touch bumps last-access and hit count after a cached locator proved to
// still work. The write-back goes through the backend's advisory lock when
// one is available; failures are logged and swallowed.
func (c *Cache) Touch(ctx context.Context, key string) {
	if c.locker != nil {
		release, ok, err := c.locker.TryLock(ctx, "meta:"+key, metaLockTTL)
		if err != nil {
			c.logger.Warn("cache metadata lock failed", "key", key, "error", err)
		} else if !ok {
			// Someone else is updating the same entry; their bump is as
			// good as ours.
			c.touchIndex(key)
			return
		} else {
			defer release()
		}
	}

	data, err := c.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("cache metadata read failed", "key", key, "error", err)
		}
		return
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return
	}

	e.Hits++
	e.LastAccess = c.now()
	encoded, err := json.Marshal(&e)
	if err != nil {
		return
	}
	if err := c.backend.Put(ctx, key, encoded, c.ttlHint(&e)); err != nil {
		c.logger.Warn("cache metadata write failed", "key", key, "error", err)
		return
	}
	c.touchIndex(key)
}

// Put upserts a freshly healed entry, last write wins. A backend write
// failure is logged and swallowed: the heal already succeeded, only caching
// is skipped. Returns how many entries were evicted to stay within
// capacity.
func (c *Cache) Put(ctx context.Context, key string, e *Entry) int {
	now := c.now()
	e.CreatedAt = now
	e.LastAccess = now
	e.Hits = 0

	data, err := json.Marshal(e)
	if err != nil {
		c.logger.Warn("cache entry encode failed, skipping write", "key", key, "error", err)
		return 0
	}
	if err := c.backend.Put(ctx, key, data, c.ttlHint(e)); err != nil {
		c.logger.Warn("cache write failed, heal not cached", "key", key, "error", err)
		return 0
	}

	c.mu.Lock()
	c.index[key] = &entryMeta{createdAt: now, lastAccess: now}
	c.mu.Unlock()
	return c.enforceCapacity(ctx)
}

// Remove deletes an entry, reporting whether it existed locally.
func (c *Cache) Remove(ctx context.Context, key string) bool {
	c.mu.Lock()
	_, ok := c.index[key]
	delete(c.index, key)
	c.mu.Unlock()

	if err := c.backend.Delete(ctx, key); err != nil {
		c.logger.Warn("cache delete failed", "key", key, "error", err)
	}
	return ok
}

// EvictExpired removes every TTL-expired entry and returns the count.
func (c *Cache) EvictExpired(ctx context.Context) int {
	now := c.now()
	c.mu.Lock()
	var victims []string
	for key, meta := range c.index {
		if c.expired(meta, now) {
			victims = append(victims, key)
		}
	}
	for _, key := range victims {
		delete(c.index, key)
	}
	c.mu.Unlock()

	for _, key := range victims {
		if err := c.backend.Delete(ctx, key); err != nil {
			c.logger.Warn("cache evict delete failed", "key", key, "error", err)
		}
	}
	return len(victims)
}

// Clear drops every entry.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	keys := make([]string, 0, len(c.index))
	for key := range c.index {
		keys = append(keys, key)
	}
	c.index = make(map[string]*entryMeta)
	c.mu.Unlock()

	var errs []error
	for _, key := range keys {
		if err := c.backend.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Size returns the number of live entries in this process's view.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

// Close releases the backend.
func (c *Cache) Close() error {
	return c.backend.Close()
}

// enforceCapacity evicts least-recently-used entries until the index fits.
// TTL-expired entries go first; they are dead weight regardless of recency.
func (c *Cache) enforceCapacity(ctx context.Context) int {
	now := c.now()
	c.mu.Lock()
	over := len(c.index) - c.cfg.Capacity
	if over <= 0 {
		c.mu.Unlock()
		return 0
	}
	type candidate struct {
		key     string
		access  time.Time
		expired bool
	}
	candidates := make([]candidate, 0, len(c.index))
	for key, meta := range c.index {
		candidates = append(candidates, candidate{key, meta.lastAccess, c.expired(meta, now)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].expired != candidates[j].expired {
			return candidates[i].expired
		}
		return candidates[i].access.Before(candidates[j].access)
	})
	victims := make([]string, 0, over)
	for i := 0; i < over; i++ {
		victims = append(victims, candidates[i].key)
	}
	for _, key := range victims {
		delete(c.index, key)
	}
	c.mu.Unlock()

	for _, key := range victims {
		if err := c.backend.Delete(ctx, key); err != nil {
			c.logger.Warn("cache eviction delete failed", "key", key, "error", err)
		}
	}
	return len(victims)
}

func (c *Cache) dropIndex(key string) {
	c.mu.Lock()
	delete(c.index, key)
	c.mu.Unlock()
}

func (c *Cache) touchIndex(key string) {
	c.mu.Lock()
	if meta, ok := c.index[key]; ok {
		meta.lastAccess = c.now()
	}
	c.mu.Unlock()
}

// expired reports whether meta is past its TTL at now.
func (c *Cache) expired(meta *entryMeta, now time.Time) bool {
	if c.cfg.TTL <= 0 {
		return false
	}
	base := meta.createdAt
	if c.cfg.Sliding {
		base = meta.lastAccess
	}
	return now.Sub(base) > c.cfg.TTL
}

// ttlHint computes the backend-side expiry hint for an entry so backends
// with native TTL (Redis, Postgres) converge with our view.
func (c *Cache) ttlHint(e *Entry) time.Duration {
	if c.cfg.TTL <= 0 {
		return 0
	}
	if c.cfg.Sliding {
		return c.cfg.TTL
	}
	remaining := e.CreatedAt.Add(c.cfg.TTL).Sub(c.now())
	if remaining < time.Second {
		remaining = time.Second
	}
	return remaining
}
