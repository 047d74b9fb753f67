package healer

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/healer/internal/core/domain"
	"github.com/vietddude/healer/internal/healing/health"
	"github.com/vietddude/healer/internal/healing/metrics"
	"github.com/vietddude/healer/internal/infra/store"
)

// Re-exported domain types so embedders never import internal packages.
type (
	Adapter          = domain.Adapter
	Analyzer         = domain.Analyzer
	Candidate        = domain.Candidate
	Element          = domain.Element
	PageContext      = domain.PageContext
	Mode             = domain.Mode
	Origin           = domain.Origin
	Result           = domain.Result
	Attempt          = domain.Attempt
	Classification   = domain.Classification
	AnalysisError    = domain.AnalysisError
	CircuitOpenError = domain.CircuitOpenError
	NotFoundError    = domain.NotFoundError
	Event            = domain.Event
	EventKind        = domain.EventKind
	Sink             = domain.Sink

	// Stats is the counter snapshot behind health and status reporting.
	Stats = metrics.Snapshot
	// HealthReport is the operator-facing health summary.
	HealthReport = health.Report
	// HealthStatus is the aggregated service status.
	HealthStatus = health.Status
)

const (
	ModeDOMOnly         = domain.ModeDOMOnly
	ModeVisualFirst     = domain.ModeVisualFirst
	ModeSmartSequential = domain.ModeSmartSequential
	ModeSequential      = domain.ModeSequential
	ModeParallel        = domain.ModeParallel

	OriginOriginal = domain.OriginOriginal
	OriginCached   = domain.OriginCached
	OriginDOM      = domain.OriginDOM
	OriginVisual   = domain.OriginVisual

	StatusHealthy  = health.StatusHealthy
	StatusDegraded = health.StatusDegraded
	StatusCritical = health.StatusCritical

	EventLookup        = domain.EventLookup
	EventCacheHit      = domain.EventCacheHit
	EventCacheMiss     = domain.EventCacheMiss
	EventCacheStale    = domain.EventCacheStale
	EventCircuitChange = domain.EventCircuitChange
)

// Transient and Permanent wrap analyzer errors with their retry class.
var (
	Transient = domain.Transient
	Permanent = domain.Permanent
)

// Backend is the persistence surface behind the selector cache. The bundled
// implementations cover an in-process map, a JSON file, Redis and Postgres;
// anything else can plug in by implementing this interface.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

// ErrKeyNotFound is what Backend implementations return for a missing key.
var ErrKeyNotFound = store.ErrNotFound

// Config wires a Locator. Adapter and at least one analyzer are required;
// everything else has defaults.
type Config struct {
	// Adapter drives the browser or UI under test.
	Adapter Adapter
	// DOM analyzes page structure, Visual analyzes screenshots. Either may
	// be nil; modes skip capabilities that are not registered.
	DOM    Analyzer
	Visual Analyzer

	// Mode is the default capability sequencing, overridable per call.
	Mode Mode

	// QuickTimeout bounds the cheap probe of the original selector.
	QuickTimeout time.Duration
	// LocateTimeout bounds verification of cached locators.
	LocateTimeout time.Duration
	// OverallTimeout bounds one Find end to end and is authoritative over
	// the per-call timeouts nested inside it.
	OverallTimeout time.Duration

	// FailureThreshold consecutive analyzer failures open a capability's
	// circuit for Cooldown.
	FailureThreshold int
	Cooldown         time.Duration
	// MaxAttempts bounds analyzer dispatches per logical call; transient
	// failures are retried with exponential backoff between RetryBaseDelay
	// and RetryMaxDelay.
	MaxAttempts    int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	// CallTimeout bounds each individual analyzer dispatch.
	CallTimeout time.Duration

	// Backend persists healed locators. Nil selects the in-process map.
	// Close releases it along with the Locator.
	Backend Backend
	// CacheCapacity bounds the number of retained entries.
	CacheCapacity int
	// CacheTTL expires entries after this long; zero disables expiry.
	CacheTTL time.Duration
	// SlidingTTL measures expiry from last access instead of write time.
	SlidingTTL bool

	// Sink receives structured lookup events. Optional.
	Sink Sink
	// Logger defaults to slog.Default.
	Logger *slog.Logger
	// Clock is injectable for tests.
	Clock func() time.Time
}

type findOptions struct {
	mode        Mode
	timeout     time.Duration
	noCache     bool
	contextHash string
}

// FindOption adjusts a single Find call.
type FindOption func(*findOptions)

// WithMode overrides the configured healing mode for this call.
func WithMode(m Mode) FindOption {
	return func(o *findOptions) { o.mode = m }
}

// WithTimeout overrides the overall timeout for this call.
func WithTimeout(d time.Duration) FindOption {
	return func(o *findOptions) { o.timeout = d }
}

// WithoutCache skips both cache consultation and the upsert of a healed
// locator.
func WithoutCache() FindOption {
	return func(o *findOptions) { o.noCache = true }
}

// WithContextHash folds a page fingerprint into the cache key so identical
// selectors on different pages stay separate.
func WithContextHash(hash string) FindOption {
	return func(o *findOptions) { o.contextHash = hash }
}

type nopSink struct{}

func (nopSink) Emit(domain.Event) {}
