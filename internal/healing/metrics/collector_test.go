package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/vietddude/healer/internal/core/domain"
)

func TestCollector_SnapshotCounts(t *testing.T) {
	c := NewCollector()

	c.RecordResult(domain.OriginOriginal, 5*time.Millisecond)
	c.RecordResult(domain.OriginCached, time.Millisecond)
	c.RecordResult(domain.OriginDOM, 2*time.Second)
	c.RecordFailure(10 * time.Second)
	c.RecordCacheHit()
	c.RecordCacheMiss()
	c.RecordCacheMiss()
	c.RecordCacheStale()
	c.RecordEvicted(3)

	snap := c.Snapshot()
	if snap.Requests != 4 {
		t.Errorf("requests = %d, want 4", snap.Requests)
	}
	if snap.Original != 1 || snap.Cached != 1 || snap.Healed != 1 || snap.Failed != 1 {
		t.Errorf("outcome counts = %d/%d/%d/%d, want 1/1/1/1",
			snap.Original, snap.Cached, snap.Healed, snap.Failed)
	}
	if snap.CacheHits != 1 || snap.CacheMisses != 2 || snap.CacheStale != 1 || snap.Evicted != 3 {
		t.Errorf("cache counts = %d/%d/%d/%d, want 1/2/1/3",
			snap.CacheHits, snap.CacheMisses, snap.CacheStale, snap.Evicted)
	}
}

func TestCollector_SuccessRate(t *testing.T) {
	c := NewCollector()
	if got := c.Snapshot().SuccessRate(); got != 1.0 {
		t.Errorf("idle success rate = %v, want 1.0", got)
	}

	c.RecordResult(domain.OriginDOM, time.Second)
	c.RecordResult(domain.OriginDOM, time.Second)
	c.RecordResult(domain.OriginDOM, time.Second)
	c.RecordFailure(time.Second)

	if got := c.Snapshot().SuccessRate(); got != 0.75 {
		t.Errorf("success rate = %v, want 0.75", got)
	}
}

func TestCollector_CacheHitRate(t *testing.T) {
	c := NewCollector()
	if got := c.Snapshot().CacheHitRate(); got != 0 {
		t.Errorf("idle hit rate = %v, want 0", got)
	}

	c.RecordCacheHit()
	c.RecordCacheHit()
	c.RecordCacheHit()
	c.RecordCacheMiss()

	if got := c.Snapshot().CacheHitRate(); got != 0.75 {
		t.Errorf("hit rate = %v, want 0.75", got)
	}
}

func TestCollector_RecordAttempt(t *testing.T) {
	c := NewCollector()

	c.RecordAttempt(domain.Attempt{
		Capability: domain.CapabilityDOM,
		Candidate:  domain.Candidate{Locator: "#ok", Tokens: 450},
		Calls:      3,
	})
	c.RecordAttempt(domain.Attempt{
		Capability:     domain.CapabilityVisual,
		Calls:          1,
		Err:            errors.New("boom"),
		Classification: domain.ClassPermanent,
	})

	snap := c.Snapshot()
	if got := snap.AnalyzerCalls["dom"]; got != 3 {
		t.Errorf("dom calls = %d, want 3", got)
	}
	if snap.Tokens != 450 {
		t.Errorf("tokens = %d, want 450", snap.Tokens)
	}
	if got := snap.AnalyzerCalls["visual"]; got != 1 {
		t.Errorf("visual calls = %d, want 1", got)
	}
	if got := snap.AnalyzerErrors["visual"]; got != 1 {
		t.Errorf("visual errors = %d, want 1", got)
	}
	if got := snap.AnalyzerErrors["dom"]; got != 0 {
		t.Errorf("dom errors = %d, want 0", got)
	}
}
