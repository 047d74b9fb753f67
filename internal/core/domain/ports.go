package domain

import (
	"context"
	"time"
)

// Element is an opaque handle produced by the automation adapter. The
// orchestrator never inspects it; it is handed back to the caller as-is.
type Element any

// PageContext carries captured page state handed to analyzers. Which parts
// are populated depends on the adapter; DOM analyzers read HTML, visual
// analyzers read the screenshot.
type PageContext struct {
	URL        string
	HTML       string
	Screenshot []byte
	CapturedAt time.Time
}

// Adapter is the surface the orchestrator needs from a browser automation
// tool. Implementations live with the embedding test framework, not here.
type Adapter interface {
	// TryLocate resolves a locator value against the live page. A false
	// second return means the locator matched nothing; err is reserved for
	// adapter faults.
	TryLocate(ctx context.Context, locator string) (Element, bool, error)
	// CaptureContext snapshots the page for analyzer input.
	CaptureContext(ctx context.Context) (PageContext, error)
}

// Analyzer proposes a replacement locator for a broken selector. One
// implementation per modality (DOM, visual); provider transport is the
// implementation's business.
type Analyzer interface {
	Analyze(ctx context.Context, page PageContext, description string) (Candidate, error)
}

// EventKind names the structured events the orchestrator emits.
type EventKind string

const (
	EventLookup        EventKind = "lookup"
	EventCacheHit      EventKind = "cache_hit"
	EventCacheMiss     EventKind = "cache_miss"
	EventCacheStale    EventKind = "cache_stale"
	EventCircuitChange EventKind = "circuit_change"
)

// Event is one observability record. Only the fields relevant to the kind
// are set.
type Event struct {
	Kind       EventKind
	Time       time.Time
	RequestID  string
	Selector   string
	Origin     Origin
	Capability Capability
	From, To   string
	Err        string
	Elapsed    time.Duration
}

// Sink receives orchestrator events. Emission must never fail or block a
// lookup; implementations are expected to be cheap or to buffer.
type Sink interface {
	Emit(Event)
}
