// Package guard wraps analyzer invocations with per-capability circuit
// breakers, bounded retries with exponential backoff, and per-call
// deadlines. One Guard.Do call is one logical invocation: the retry loop
// runs inside it and only the final outcome counts toward the breaker.
package guard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/healer/internal/core/domain"
)

// Operation performs one external analysis call.
type Operation func(ctx context.Context) (domain.Candidate, error)

// Config carries the resilience knobs shared by all capabilities.
type Config struct {
	// FailureThreshold is the consecutive-failure count that opens a breaker.
	FailureThreshold int
	// Cooldown is how long an open breaker rejects calls before probing.
	Cooldown time.Duration
	// CallTimeout bounds each individual dispatch to the analyzer.
	CallTimeout time.Duration
	// Retry controls the bounded retry loop for transient failures.
	Retry RetryConfig
	// Now is the clock used for breaker timing. Defaults to time.Now.
	Now func() time.Time
	// OnStateChange, when set, observes breaker transitions.
	OnStateChange func(cap domain.Capability, from, to State)
}

// Guard owns one circuit breaker per capability, created lazily on first
// use so the capability set is fixed by the callers, not by configuration.
type Guard struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	breakers map[domain.Capability]*Breaker
}

// New creates a Guard, filling unset config fields with defaults.
func New(cfg Config, logger *slog.Logger) *Guard {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = DefaultRetryConfig.MaxAttempts
	}
	if cfg.Retry.InitialDelay <= 0 {
		cfg.Retry.InitialDelay = DefaultRetryConfig.InitialDelay
	}
	if cfg.Retry.MaxDelay <= 0 {
		cfg.Retry.MaxDelay = DefaultRetryConfig.MaxDelay
	}
	if cfg.Retry.BackoffMultiple <= 1 {
		cfg.Retry.BackoffMultiple = DefaultRetryConfig.BackoffMultiple
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[domain.Capability]*Breaker),
	}
}

// Do runs op under cap's breaker and returns the attempt record. When the
// breaker rejects the call the attempt carries a CircuitOpenError and zero
// dispatches. Otherwise op runs up to Retry.MaxAttempts times, each under
// its own CallTimeout; only transient failures are retried, and the final
// outcome is recorded once on the breaker.
func (g *Guard) Do(ctx context.Context, cap domain.Capability, op Operation) domain.Attempt {
	start := g.cfg.Now()
	br := g.breaker(cap)

	if !br.Allow() {
		return domain.Attempt{
			Capability:     cap,
			Err:            &domain.CircuitOpenError{Capability: cap, RetryAfter: br.RetryAfter()},
			Classification: domain.ClassCircuitOpen,
			Latency:        g.cfg.Now().Sub(start),
		}
	}

	var (
		lastErr error
		class   domain.Classification
		calls   int
	)
loop:
	for attempt := 0; attempt < g.cfg.Retry.MaxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
		cand, err := op(callCtx)
		cancel()
		calls++

		if err == nil {
			br.RecordSuccess()
			return domain.Attempt{
				Capability: cap,
				Candidate:  cand,
				Latency:    g.cfg.Now().Sub(start),
				Calls:      calls,
			}
		}

		lastErr = err
		class = domain.Classify(err)
		if class != domain.ClassTransient || attempt == g.cfg.Retry.MaxAttempts-1 {
			break
		}

		delay := g.cfg.Retry.backoffDelay(attempt)
		g.logger.Warn("analysis failed, retrying",
			"capability", cap,
			"attempt", attempt+1,
			"delay", delay,
			"error", err)
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			class = domain.Classify(lastErr)
			break loop
		case <-time.After(delay):
		}
	}

	// A caller abort is not evidence about the capability's health, so it
	// does not feed the breaker. Genuine failures count exactly once.
	if ctx.Err() == nil {
		br.RecordFailure()
	} else {
		br.RecordCancel()
	}
	return domain.Attempt{
		Capability:     cap,
		Err:            lastErr,
		Classification: class,
		Latency:        g.cfg.Now().Sub(start),
		Calls:          calls,
	}
}

// States snapshots the current breaker state per capability.
func (g *Guard) States() map[domain.Capability]State {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[domain.Capability]State, len(g.breakers))
	for cap, br := range g.breakers {
		out[cap] = br.State()
	}
	return out
}

func (g *Guard) breaker(cap domain.Capability) *Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	br, ok := g.breakers[cap]
	if !ok {
		var onChange func(from, to State)
		if g.cfg.OnStateChange != nil {
			hook := g.cfg.OnStateChange
			onChange = func(from, to State) { hook(cap, from, to) }
		}
		br = NewBreaker(g.cfg.FailureThreshold, g.cfg.Cooldown, g.cfg.Now, onChange)
		g.breakers[cap] = br
	}
	return br
}
