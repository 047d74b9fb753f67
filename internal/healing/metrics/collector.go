// Package metrics exposes Prometheus instruments for the healing pipeline
// and an in-process collector whose snapshot backs health reporting and the
// status CLI.
package metrics

import (
	"sync"
	"time"

	"github.com/vietddude/healer/internal/core/domain"
)

// Snapshot is a point-in-time copy of the collector counters.
type Snapshot struct {
	Requests       int            `json:"requests"`
	Original       int            `json:"original"`
	Cached         int            `json:"cached"`
	Healed         int            `json:"healed"`
	Failed         int            `json:"failed"`
	CacheHits      int            `json:"cache_hits"`
	CacheMisses    int            `json:"cache_misses"`
	CacheStale     int            `json:"cache_stale"`
	Evicted        int            `json:"evicted"`
	Tokens         int            `json:"tokens"`
	AnalyzerCalls  map[string]int `json:"analyzer_calls"`
	AnalyzerErrors map[string]int `json:"analyzer_errors"`
}

// SuccessRate is the fraction of requests that resolved an element. With no
// traffic yet it reports 1.0 so an idle service is not flagged unhealthy.
func (s Snapshot) SuccessRate() float64 {
	if s.Requests == 0 {
		return 1.0
	}
	return float64(s.Requests-s.Failed) / float64(s.Requests)
}

// CacheHitRate is the fraction of cache lookups that hit.
func (s Snapshot) CacheHitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

// Collector counts pipeline events and mirrors them onto the Prometheus
// instruments so both surfaces stay consistent.
type Collector struct {
	mu             sync.RWMutex
	requests       int
	original       int
	cached         int
	healed         int
	failed         int
	cacheHits      int
	cacheMisses    int
	cacheStale     int
	evicted        int
	tokens         int
	analyzerCalls  map[string]int
	analyzerErrors map[string]int
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		analyzerCalls:  make(map[string]int),
		analyzerErrors: make(map[string]int),
	}
}

// RecordResult counts one resolved request by origin.
func (c *Collector) RecordResult(origin domain.Origin, elapsed time.Duration) {
	outcome := outcomeFor(origin)
	c.mu.Lock()
	c.requests++
	switch origin {
	case domain.OriginOriginal:
		c.original++
	case domain.OriginCached:
		c.cached++
	default:
		c.healed++
	}
	c.mu.Unlock()

	RequestsTotal.WithLabelValues(outcome).Inc()
	LocateDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// RecordFailure counts one request that exhausted every capability.
func (c *Collector) RecordFailure(elapsed time.Duration) {
	c.mu.Lock()
	c.requests++
	c.failed++
	c.mu.Unlock()

	RequestsTotal.WithLabelValues("failed").Inc()
	LocateDuration.WithLabelValues("failed").Observe(elapsed.Seconds())
}

// RecordCacheHit counts a cache lookup that produced a working locator.
func (c *Collector) RecordCacheHit() {
	c.mu.Lock()
	c.cacheHits++
	c.mu.Unlock()
	CacheEventsTotal.WithLabelValues("hit").Inc()
}

// RecordCacheMiss counts a cache lookup with no usable entry.
func (c *Collector) RecordCacheMiss() {
	c.mu.Lock()
	c.cacheMisses++
	c.mu.Unlock()
	CacheEventsTotal.WithLabelValues("miss").Inc()
}

// RecordCacheStale counts a cached locator that no longer matched and was
// evicted.
func (c *Collector) RecordCacheStale() {
	c.mu.Lock()
	c.cacheStale++
	c.mu.Unlock()
	CacheEventsTotal.WithLabelValues("stale").Inc()
}

// RecordEvicted counts entries removed by TTL or capacity pressure.
func (c *Collector) RecordEvicted(n int) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	c.evicted += n
	c.mu.Unlock()
	CacheEventsTotal.WithLabelValues("evicted").Add(float64(n))
}

// RecordAttempt counts the analyzer dispatches behind one capability attempt.
func (c *Collector) RecordAttempt(att domain.Attempt) {
	cap := string(att.Capability)
	c.mu.Lock()
	c.analyzerCalls[cap] += att.Calls
	c.tokens += att.Candidate.Tokens
	if att.Err != nil {
		c.analyzerErrors[cap]++
	}
	c.mu.Unlock()

	if att.Calls > 0 {
		AnalyzerCallsTotal.WithLabelValues(cap).Add(float64(att.Calls))
	}
	if att.Candidate.Tokens > 0 {
		TokensTotal.WithLabelValues(cap).Add(float64(att.Candidate.Tokens))
	}
	if att.Err != nil {
		AnalyzerErrorsTotal.WithLabelValues(cap, string(att.Classification)).Inc()
	}
}

// SetCacheSize publishes the current cache entry count.
func (c *Collector) SetCacheSize(n int) {
	CacheEntries.Set(float64(n))
}

// SetCircuitState publishes a breaker state change.
func (c *Collector) SetCircuitState(cap domain.Capability, state int) {
	CircuitState.WithLabelValues(string(cap)).Set(float64(state))
}

// Snapshot copies the current counters.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := Snapshot{
		Requests:       c.requests,
		Original:       c.original,
		Cached:         c.cached,
		Healed:         c.healed,
		Failed:         c.failed,
		CacheHits:      c.cacheHits,
		CacheMisses:    c.cacheMisses,
		CacheStale:     c.cacheStale,
		Evicted:        c.evicted,
		Tokens:         c.tokens,
		AnalyzerCalls:  make(map[string]int, len(c.analyzerCalls)),
		AnalyzerErrors: make(map[string]int, len(c.analyzerErrors)),
	}
	for k, v := range c.analyzerCalls {
		snap.AnalyzerCalls[k] = v
	}
	for k, v := range c.analyzerErrors {
		snap.AnalyzerErrors[k] = v
	}
	return snap
}

func outcomeFor(origin domain.Origin) string {
	switch origin {
	case domain.OriginOriginal:
		return "original"
	case domain.OriginCached:
		return "cached"
	default:
		return "healed"
	}
}
