// Package healer recovers broken UI-test element locators. When a selector
// no longer matches, a Locator consults its selector cache, then runs the
// configured analysis capabilities (DOM, visual) to propose and verify a
// replacement, caching what worked for next time.
package healer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/healer/internal/core/domain"
	"github.com/vietddude/healer/internal/healing/cache"
	"github.com/vietddude/healer/internal/healing/guard"
	"github.com/vietddude/healer/internal/healing/health"
	"github.com/vietddude/healer/internal/healing/metrics"
	"github.com/vietddude/healer/internal/healing/strategy"
	"github.com/vietddude/healer/internal/infra/store/memory"
)

// Locator is the healing facade. Construct one per browser session with
// New and share it across lookups; all methods are safe for concurrent use.
type Locator struct {
	cfg       Config
	adapter   domain.Adapter
	cache     *cache.Cache
	guard     *guard.Guard
	engine    *strategy.Engine
	collector *metrics.Collector
	monitor   *health.Monitor
	sink      domain.Sink
	logger    *slog.Logger
	now       func() time.Time

	janitorStop context.CancelFunc
	closeOnce   sync.Once
	closeErr    error
}

// New wires a Locator from cfg. The context bounds construction only
// (backend connect and cache warmup), not the Locator's lifetime.
func New(ctx context.Context, cfg Config) (*Locator, error) {
	if cfg.Adapter == nil {
		return nil, errors.New("healer: adapter is required")
	}
	if cfg.DOM == nil && cfg.Visual == nil {
		return nil, errors.New("healer: at least one analyzer is required")
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeSmartSequential
	}
	if !cfg.Mode.Valid() {
		return nil, fmt.Errorf("healer: unknown mode %q", cfg.Mode)
	}
	if cfg.QuickTimeout <= 0 {
		cfg.QuickTimeout = 500 * time.Millisecond
	}
	if cfg.LocateTimeout <= 0 {
		cfg.LocateTimeout = 10 * time.Second
	}
	if cfg.OverallTimeout <= 0 {
		cfg.OverallTimeout = 2 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Sink == nil {
		cfg.Sink = nopSink{}
	}

	backend := cfg.Backend
	if backend == nil {
		backend = memory.New()
	}

	l := &Locator{
		cfg:       cfg,
		adapter:   cfg.Adapter,
		collector: metrics.NewCollector(),
		sink:      cfg.Sink,
		logger:    cfg.Logger,
		now:       cfg.Clock,
	}

	l.guard = guard.New(guard.Config{
		FailureThreshold: cfg.FailureThreshold,
		Cooldown:         cfg.Cooldown,
		CallTimeout:      cfg.CallTimeout,
		Retry: guard.RetryConfig{
			MaxAttempts:     cfg.MaxAttempts,
			InitialDelay:    cfg.RetryBaseDelay,
			MaxDelay:        cfg.RetryMaxDelay,
			BackoffMultiple: 2.0,
			Jitter:          0.1,
		},
		Now: cfg.Clock,
		OnStateChange: func(cap domain.Capability, from, to guard.State) {
			l.collector.SetCircuitState(cap, int(to))
			l.sink.Emit(domain.Event{
				Kind:       domain.EventCircuitChange,
				Time:       l.now(),
				Capability: cap,
				From:       from.String(),
				To:         to.String(),
			})
			l.logger.Info("circuit state changed",
				"capability", cap,
				"from", from,
				"to", to)
		},
	}, cfg.Logger)

	c, err := cache.New(ctx, backend, cache.Config{
		Capacity: cfg.CacheCapacity,
		TTL:      cfg.CacheTTL,
		Sliding:  cfg.SlidingTTL,
		Now:      cfg.Clock,
	}, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("healer: %w", err)
	}
	l.cache = c

	var regs []strategy.Registration
	if cfg.DOM != nil {
		regs = append(regs, strategy.Registration{Capability: domain.CapabilityDOM, Analyzer: cfg.DOM})
	}
	if cfg.Visual != nil {
		regs = append(regs, strategy.Registration{Capability: domain.CapabilityVisual, Analyzer: cfg.Visual})
	}
	l.engine = strategy.New(cfg.Adapter, l.guard, regs, cfg.Logger)
	l.monitor = health.NewMonitor(l.collector, l.guard, l.cache)

	janitor := cache.NewJanitor(c, cfg.CacheTTL, cfg.Logger, func(count int) {
		l.collector.RecordEvicted(count)
		l.collector.SetCacheSize(l.cache.Size())
	})
	jctx, cancel := context.WithCancel(context.Background())
	l.janitorStop = cancel
	go janitor.Start(jctx)

	return l, nil
}

// Find resolves selector to a live element, healing it when it no longer
// matches. description is the human-readable intent analyzers work from.
// The only failure returned is *NotFoundError, carrying the attempt trail.
func (l *Locator) Find(ctx context.Context, selector, description string, opts ...FindOption) (*Result, error) {
	o := findOptions{
		mode:    l.cfg.Mode,
		timeout: l.cfg.OverallTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	start := l.now()
	req := domain.Request{
		ID:          uuid.New().String(),
		Selector:    selector,
		Description: description,
		ContextHash: o.contextHash,
		Mode:        o.mode,
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	if el, ok := l.quickProbe(ctx, selector); ok {
		return l.finish(req, start, &domain.Result{
			Locator:    selector,
			Element:    el,
			Origin:     domain.OriginOriginal,
			Confidence: 1.0,
		}), nil
	}

	key := cache.Key(selector, description, o.contextHash)
	if !o.noCache {
		if res := l.tryCached(ctx, req, key); res != nil {
			return l.finish(req, start, res), nil
		}
	}

	outcome, attempts, err := l.engine.Heal(ctx, req)
	for _, att := range attempts {
		l.collector.RecordAttempt(att)
	}
	if err != nil {
		elapsed := l.now().Sub(start)
		l.collector.RecordFailure(elapsed)
		nfe := &domain.NotFoundError{
			Selector:    selector,
			Description: description,
			Attempts:    attempts,
			Elapsed:     elapsed,
		}
		l.sink.Emit(domain.Event{
			Kind:      domain.EventLookup,
			Time:      l.now(),
			RequestID: req.ID,
			Selector:  selector,
			Err:       nfe.Error(),
			Elapsed:   elapsed,
		})
		l.logger.Warn("element lookup failed",
			"request_id", req.ID,
			"selector", selector,
			"description", description,
			"elapsed", elapsed,
			"error", err)
		return nil, nfe
	}

	origin := domain.OriginFor(outcome.Capability)
	if !o.noCache {
		evicted := l.cache.Put(ctx, key, &cache.Entry{
			Selector:    selector,
			Description: description,
			Locator:     outcome.Candidate.Locator,
			Confidence:  outcome.Candidate.Confidence,
			Source:      origin,
			Reasoning:   outcome.Candidate.Reasoning,
		})
		l.collector.RecordEvicted(evicted)
		l.collector.SetCacheSize(l.cache.Size())
	}
	return l.finish(req, start, &domain.Result{
		Locator:    outcome.Candidate.Locator,
		Element:    outcome.Element,
		Origin:     origin,
		Confidence: outcome.Candidate.Confidence,
		Reasoning:  outcome.Candidate.Reasoning,
	}), nil
}

// quickProbe tries the original selector under the quick timeout. Adapter
// faults degrade to not-found so a flaky probe never fails the lookup.
func (l *Locator) quickProbe(ctx context.Context, selector string) (domain.Element, bool) {
	qctx, cancel := context.WithTimeout(ctx, l.cfg.QuickTimeout)
	defer cancel()
	el, found, err := l.adapter.TryLocate(qctx, selector)
	if err != nil {
		l.logger.Debug("quick probe errored", "selector", selector, "error", err)
		return nil, false
	}
	return el, found
}

// tryCached verifies a cached locator against the live page. A working hit
// bumps the entry's metadata; a stale one is evicted so healing can replace
// it.
func (l *Locator) tryCached(ctx context.Context, req domain.Request, key string) *domain.Result {
	entry, ok := l.cache.Get(ctx, key)
	if !ok {
		l.collector.RecordCacheMiss()
		l.sink.Emit(domain.Event{
			Kind:      domain.EventCacheMiss,
			Time:      l.now(),
			RequestID: req.ID,
			Selector:  req.Selector,
		})
		return nil
	}

	vctx, cancel := context.WithTimeout(ctx, l.cfg.LocateTimeout)
	el, found, err := l.adapter.TryLocate(vctx, entry.Locator)
	cancel()
	if err != nil || !found {
		l.cache.Remove(ctx, key)
		l.collector.RecordCacheStale()
		l.collector.SetCacheSize(l.cache.Size())
		l.sink.Emit(domain.Event{
			Kind:      domain.EventCacheStale,
			Time:      l.now(),
			RequestID: req.ID,
			Selector:  req.Selector,
		})
		l.logger.Debug("cached locator stale, evicted",
			"request_id", req.ID,
			"selector", req.Selector,
			"cached", entry.Locator)
		return nil
	}

	l.cache.Touch(ctx, key)
	l.collector.RecordCacheHit()
	l.sink.Emit(domain.Event{
		Kind:      domain.EventCacheHit,
		Time:      l.now(),
		RequestID: req.ID,
		Selector:  req.Selector,
	})
	return &domain.Result{
		Locator:    entry.Locator,
		Element:    el,
		Origin:     domain.OriginCached,
		Confidence: entry.Confidence,
		Reasoning:  entry.Reasoning,
	}
}

// finish stamps and records a successful result.
func (l *Locator) finish(req domain.Request, start time.Time, res *domain.Result) *domain.Result {
	res.RequestID = req.ID
	res.Elapsed = l.now().Sub(start)
	l.collector.RecordResult(res.Origin, res.Elapsed)
	l.sink.Emit(domain.Event{
		Kind:      domain.EventLookup,
		Time:      l.now(),
		RequestID: req.ID,
		Selector:  req.Selector,
		Origin:    res.Origin,
		Elapsed:   res.Elapsed,
	})
	if res.Healed() {
		l.logger.Info("selector healed",
			"request_id", req.ID,
			"selector", req.Selector,
			"locator", res.Locator,
			"origin", res.Origin,
			"confidence", res.Confidence,
			"elapsed", res.Elapsed)
	} else {
		l.logger.Debug("selector resolved",
			"request_id", req.ID,
			"selector", req.Selector,
			"origin", res.Origin,
			"elapsed", res.Elapsed)
	}
	return res
}

// CacheSize reports the number of live cached entries.
func (l *Locator) CacheSize() int {
	return l.cache.Size()
}

// EvictExpired removes TTL-expired entries and reports how many went.
func (l *Locator) EvictExpired(ctx context.Context) int {
	n := l.cache.EvictExpired(ctx)
	l.collector.RecordEvicted(n)
	l.collector.SetCacheSize(l.cache.Size())
	return n
}

// InvalidateCached drops the cached locator for one selector, if present.
func (l *Locator) InvalidateCached(ctx context.Context, selector, description, contextHash string) bool {
	ok := l.cache.Remove(ctx, cache.Key(selector, description, contextHash))
	if ok {
		l.collector.SetCacheSize(l.cache.Size())
	}
	return ok
}

// ClearCache drops every cached locator.
func (l *Locator) ClearCache(ctx context.Context) error {
	err := l.cache.Clear(ctx)
	l.collector.SetCacheSize(l.cache.Size())
	return err
}

// Stats snapshots the request and cache counters.
func (l *Locator) Stats() Stats {
	return l.collector.Snapshot()
}

// Health evaluates the current service health.
func (l *Locator) Health(ctx context.Context) HealthReport {
	return l.monitor.CheckHealth(ctx)
}

// Monitor exposes the health monitor for serving over HTTP.
func (l *Locator) Monitor() *health.Monitor {
	return l.monitor
}

// Close stops the cache janitor and releases the backend. Safe to call
// more than once.
func (l *Locator) Close() error {
	l.closeOnce.Do(func() {
		l.janitorStop()
		l.closeErr = l.cache.Close()
		l.logger.Debug("healer closed")
	})
	return l.closeErr
}
