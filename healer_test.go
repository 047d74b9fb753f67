package healer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type pageAdapter struct {
	mu         sync.Mutex
	present    map[string]bool
	captureErr error
	locates    int
	captures   int
}

func newPageAdapter(selectors ...string) *pageAdapter {
	a := &pageAdapter{present: make(map[string]bool)}
	for _, s := range selectors {
		a.present[s] = true
	}
	return a
}

func (a *pageAdapter) setPresent(selector string, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.present[selector] = ok
}

func (a *pageAdapter) TryLocate(ctx context.Context, locator string) (Element, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.locates++
	if a.present[locator] {
		return "el:" + locator, true, nil
	}
	return nil, false, nil
}

func (a *pageAdapter) CaptureContext(ctx context.Context) (PageContext, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.captures++
	if a.captureErr != nil {
		return PageContext{}, a.captureErr
	}
	return PageContext{
		URL:        "https://app.test/login",
		HTML:       `<form><button id="login-button">Sign in</button></form>`,
		CapturedAt: time.Now(),
	}, nil
}

type recordSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordSink) Emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordSink) kinds() []EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]EventKind, len(s.events))
	for i, ev := range s.events {
		kinds[i] = ev.Kind
	}
	return kinds
}

func newTestLocator(t *testing.T, cfg Config) *Locator {
	t.Helper()
	if cfg.QuickTimeout == 0 {
		cfg.QuickTimeout = 50 * time.Millisecond
	}
	if cfg.LocateTimeout == 0 {
		cfg.LocateTimeout = 100 * time.Millisecond
	}
	if cfg.OverallTimeout == 0 {
		cfg.OverallTimeout = 5 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = time.Millisecond
	}
	if cfg.RetryMaxDelay == 0 {
		cfg.RetryMaxDelay = 2 * time.Millisecond
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = time.Hour
	}
	l, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestNew_RequiresAdapterAndAnalyzer(t *testing.T) {
	if _, err := New(context.Background(), Config{DOM: NewMockAnalyzer()}); err == nil {
		t.Error("expected error without adapter")
	}
	if _, err := New(context.Background(), Config{Adapter: newPageAdapter()}); err == nil {
		t.Error("expected error without analyzers")
	}
	if _, err := New(context.Background(), Config{
		Adapter: newPageAdapter(),
		DOM:     NewMockAnalyzer(),
		Mode:    Mode("psychic"),
	}); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestFind_OriginalSelectorStillWorks(t *testing.T) {
	adapter := newPageAdapter("#login-button")
	dom := NewMockAnalyzer()
	l := newTestLocator(t, Config{Adapter: adapter, DOM: dom})

	res, err := l.Find(context.Background(), "#login-button", "login button")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if res.Origin != OriginOriginal {
		t.Errorf("origin = %q, want original", res.Origin)
	}
	if res.Healed() {
		t.Error("direct resolution should not be reported as healed")
	}
	if res.Element != "el:#login-button" {
		t.Errorf("element = %v, want el:#login-button", res.Element)
	}
	if dom.Calls() != 0 {
		t.Errorf("analyzer called %d times, want 0", dom.Calls())
	}
}

func TestFind_HealsBrokenSelector(t *testing.T) {
	adapter := newPageAdapter("#login-button")
	dom := NewMockAnalyzer().Stub("login button", Candidate{
		Locator:    "#login-button",
		Confidence: 0.9,
		Reasoning:  "button with matching label",
	})
	l := newTestLocator(t, Config{Adapter: adapter, DOM: dom})

	res, err := l.Find(context.Background(), "#login-btn-wrong", "login button")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if res.Locator != "#login-button" {
		t.Errorf("locator = %q, want #login-button", res.Locator)
	}
	if res.Origin != OriginDOM {
		t.Errorf("origin = %q, want dom", res.Origin)
	}
	if res.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", res.Confidence)
	}
	if !res.Healed() {
		t.Error("healed lookup should report Healed")
	}
	if res.RequestID == "" {
		t.Error("request id missing")
	}
}

func TestFind_SecondLookupServedFromCache(t *testing.T) {
	adapter := newPageAdapter("#login-button")
	dom := NewMockAnalyzer().Stub("login button", Candidate{Locator: "#login-button", Confidence: 0.9})
	l := newTestLocator(t, Config{Adapter: adapter, DOM: dom})

	if _, err := l.Find(context.Background(), "#login-btn-wrong", "login button"); err != nil {
		t.Fatalf("first Find failed: %v", err)
	}
	if dom.Calls() != 1 {
		t.Fatalf("analyzer calls after heal = %d, want 1", dom.Calls())
	}

	res, err := l.Find(context.Background(), "#login-btn-wrong", "login button")
	if err != nil {
		t.Fatalf("second Find failed: %v", err)
	}
	if res.Origin != OriginCached {
		t.Errorf("origin = %q, want cached", res.Origin)
	}
	if res.Locator != "#login-button" {
		t.Errorf("locator = %q, want #login-button", res.Locator)
	}
	if dom.Calls() != 1 {
		t.Errorf("analyzer calls after cached lookup = %d, want still 1", dom.Calls())
	}
	if l.CacheSize() != 1 {
		t.Errorf("cache size = %d, want 1", l.CacheSize())
	}
}

func TestFind_WithoutCacheSkipsBothSides(t *testing.T) {
	adapter := newPageAdapter("#login-button")
	dom := NewMockAnalyzer().Stub("login button", Candidate{Locator: "#login-button", Confidence: 0.9})
	l := newTestLocator(t, Config{Adapter: adapter, DOM: dom})

	if _, err := l.Find(context.Background(), "#stale", "login button", WithoutCache()); err != nil {
		t.Fatalf("first Find failed: %v", err)
	}
	if l.CacheSize() != 0 {
		t.Errorf("cache size = %d, want 0 after uncached heal", l.CacheSize())
	}

	if _, err := l.Find(context.Background(), "#stale", "login button", WithoutCache()); err != nil {
		t.Fatalf("second Find failed: %v", err)
	}
	if dom.Calls() != 2 {
		t.Errorf("analyzer calls = %d, want 2 (no cache reuse)", dom.Calls())
	}
}

func TestFind_StaleCacheEntryIsEvictedAndRehealed(t *testing.T) {
	adapter := newPageAdapter("#login-button")
	dom := NewMockAnalyzer().Stub("login button", Candidate{Locator: "#login-button", Confidence: 0.9})
	l := newTestLocator(t, Config{Adapter: adapter, DOM: dom})

	if _, err := l.Find(context.Background(), "#stale", "login button"); err != nil {
		t.Fatalf("first Find failed: %v", err)
	}

	// The page changed again: cached locator is dead, a new one works.
	adapter.setPresent("#login-button", false)
	adapter.setPresent("#login-button-v2", true)
	dom.Stub("login button", Candidate{Locator: "#login-button-v2", Confidence: 0.85})

	res, err := l.Find(context.Background(), "#stale", "login button")
	if err != nil {
		t.Fatalf("reheal Find failed: %v", err)
	}
	if res.Origin != OriginDOM {
		t.Errorf("origin = %q, want dom (stale entry must not be served)", res.Origin)
	}
	if res.Locator != "#login-button-v2" {
		t.Errorf("locator = %q, want #login-button-v2", res.Locator)
	}

	// And the replacement is cached.
	res, err = l.Find(context.Background(), "#stale", "login button")
	if err != nil {
		t.Fatalf("third Find failed: %v", err)
	}
	if res.Origin != OriginCached || res.Locator != "#login-button-v2" {
		t.Errorf("got origin %q locator %q, want cached #login-button-v2", res.Origin, res.Locator)
	}

	stats := l.Stats()
	if stats.CacheStale != 1 {
		t.Errorf("stale evictions = %d, want 1", stats.CacheStale)
	}
}

func TestFind_NotFoundCarriesAttemptTrail(t *testing.T) {
	adapter := newPageAdapter()
	dom := NewMockAnalyzer() // no stubs: permanent failure
	l := newTestLocator(t, Config{Adapter: adapter, DOM: dom})

	_, err := l.Find(context.Background(), "#gone", "missing widget")
	if err == nil {
		t.Fatal("expected NotFoundError")
	}
	var nfe *NotFoundError
	if !errors.As(err, &nfe) {
		t.Fatalf("err type = %T, want *NotFoundError", err)
	}
	if nfe.Selector != "#gone" || nfe.Description != "missing widget" {
		t.Errorf("error identifies %q/%q", nfe.Selector, nfe.Description)
	}
	if len(nfe.Attempts) != 1 {
		t.Fatalf("attempts = %d, want 1", len(nfe.Attempts))
	}
	att := nfe.Attempts[0]
	if att.Capability != "dom" {
		t.Errorf("attempt capability = %q, want dom", att.Capability)
	}
	if att.Classification != "permanent" {
		t.Errorf("attempt classification = %q, want permanent", att.Classification)
	}
	if nfe.Elapsed <= 0 {
		t.Error("elapsed missing from error")
	}
}

func TestFind_VisualFallback(t *testing.T) {
	adapter := newPageAdapter("#pay-now")
	dom := NewMockAnalyzer() // fails: nothing stubbed
	visual := NewMockAnalyzer().Stub("pay button", Candidate{Locator: "#pay-now", Confidence: 0.75})
	l := newTestLocator(t, Config{Adapter: adapter, DOM: dom, Visual: visual})

	res, err := l.Find(context.Background(), "#pay", "pay button")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if res.Origin != OriginVisual {
		t.Errorf("origin = %q, want visual", res.Origin)
	}
	if dom.Calls() != 1 || visual.Calls() != 1 {
		t.Errorf("calls dom=%d visual=%d, want 1/1", dom.Calls(), visual.Calls())
	}
}

func TestFind_DOMOnlyModeNeverTouchesVisual(t *testing.T) {
	adapter := newPageAdapter()
	dom := NewMockAnalyzer()
	visual := NewMockAnalyzer().Stub("pay button", Candidate{Locator: "#pay-now", Confidence: 0.75})
	l := newTestLocator(t, Config{Adapter: adapter, DOM: dom, Visual: visual})

	_, err := l.Find(context.Background(), "#pay", "pay button", WithMode(ModeDOMOnly))
	if err == nil {
		t.Fatal("expected NotFoundError")
	}
	if visual.Calls() != 0 {
		t.Errorf("visual analyzer called %d times in dom_only mode", visual.Calls())
	}
}

func TestFind_OpenCircuitShortCircuitsAnalyzer(t *testing.T) {
	adapter := newPageAdapter()
	dom := NewMockAnalyzer()
	l := newTestLocator(t, Config{
		Adapter:          adapter,
		DOM:              dom,
		FailureThreshold: 1,
		Cooldown:         time.Hour,
	})

	if _, err := l.Find(context.Background(), "#gone", "widget"); err == nil {
		t.Fatal("expected first lookup to fail")
	}
	callsAfterFirst := dom.Calls()

	_, err := l.Find(context.Background(), "#gone", "widget")
	var nfe *NotFoundError
	if !errors.As(err, &nfe) {
		t.Fatalf("err type = %T, want *NotFoundError", err)
	}
	if dom.Calls() != callsAfterFirst {
		t.Errorf("analyzer dispatched %d extra times through open circuit",
			dom.Calls()-callsAfterFirst)
	}
	if len(nfe.Attempts) != 1 || nfe.Attempts[0].Classification != "circuit_open" {
		t.Errorf("attempt trail = %+v, want one circuit_open attempt", nfe.Attempts)
	}
	if nfe.Attempts[0].Calls != 0 {
		t.Errorf("short-circuited attempt recorded %d calls, want 0", nfe.Attempts[0].Calls)
	}
}

func TestFind_ContextHashSeparatesPages(t *testing.T) {
	adapter := newPageAdapter("#ok")
	dom := NewMockAnalyzer().Stub("widget", Candidate{Locator: "#ok", Confidence: 0.9})
	l := newTestLocator(t, Config{Adapter: adapter, DOM: dom})

	if _, err := l.Find(context.Background(), "#w", "widget", WithContextHash("page-a")); err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if _, err := l.Find(context.Background(), "#w", "widget", WithContextHash("page-b")); err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if dom.Calls() != 2 {
		t.Errorf("analyzer calls = %d, want 2 (distinct pages must not share entries)", dom.Calls())
	}
	if l.CacheSize() != 2 {
		t.Errorf("cache size = %d, want 2", l.CacheSize())
	}
}

func TestFind_EmitsLifecycleEvents(t *testing.T) {
	adapter := newPageAdapter("#login-button")
	dom := NewMockAnalyzer().Stub("login button", Candidate{Locator: "#login-button", Confidence: 0.9})
	sink := &recordSink{}
	l := newTestLocator(t, Config{Adapter: adapter, DOM: dom, Sink: sink})

	if _, err := l.Find(context.Background(), "#login-btn-wrong", "login button"); err != nil {
		t.Fatalf("Find failed: %v", err)
	}

	kinds := sink.kinds()
	wantOrder := []EventKind{EventCacheMiss, EventLookup}
	if len(kinds) != len(wantOrder) {
		t.Fatalf("events = %v, want %v", kinds, wantOrder)
	}
	for i, want := range wantOrder {
		if kinds[i] != want {
			t.Errorf("event %d = %q, want %q", i, kinds[i], want)
		}
	}
}

func TestLocator_AdminOperations(t *testing.T) {
	adapter := newPageAdapter("#login-button")
	dom := NewMockAnalyzer().Stub("login button", Candidate{Locator: "#login-button", Confidence: 0.9})
	l := newTestLocator(t, Config{Adapter: adapter, DOM: dom})

	ctx := context.Background()
	if _, err := l.Find(ctx, "#a", "login button"); err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if _, err := l.Find(ctx, "#b", "login button"); err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if l.CacheSize() != 2 {
		t.Fatalf("cache size = %d, want 2", l.CacheSize())
	}

	if !l.InvalidateCached(ctx, "#a", "login button", "") {
		t.Error("InvalidateCached missed an existing entry")
	}
	if l.InvalidateCached(ctx, "#a", "login button", "") {
		t.Error("InvalidateCached reported a removal twice")
	}
	if l.CacheSize() != 1 {
		t.Errorf("cache size = %d, want 1", l.CacheSize())
	}

	if err := l.ClearCache(ctx); err != nil {
		t.Fatalf("ClearCache failed: %v", err)
	}
	if l.CacheSize() != 0 {
		t.Errorf("cache size = %d, want 0 after clear", l.CacheSize())
	}

	stats := l.Stats()
	if stats.Requests != 2 || stats.Healed != 2 {
		t.Errorf("stats = %+v, want 2 healed requests", stats)
	}

	report := l.Health(ctx)
	if report.Status != StatusHealthy {
		t.Errorf("health = %q, want healthy", report.Status)
	}
}

func TestLocator_CloseIsIdempotent(t *testing.T) {
	adapter := newPageAdapter("#x")
	l := newTestLocator(t, Config{Adapter: adapter, DOM: NewMockAnalyzer()})

	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}
