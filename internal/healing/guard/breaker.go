package guard

import (
	"sync"
	"time"
)

// State is a circuit breaker state.
type State int

const (
	// StateClosed passes calls through, counting consecutive failures.
	StateClosed State = iota
	// StateOpen rejects calls until the cooldown elapses.
	StateOpen
	// StateHalfOpen permits exactly one trial call.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	}
	return "unknown"
}

// Breaker is the per-capability circuit breaker state machine. All
// transitions happen under the mutex; the clock is injectable so
// timing-dependent behavior is testable.
type Breaker struct {
	mu        sync.Mutex
	state     State
	failures  int
	openUntil time.Time
	trial     bool

	threshold int
	cooldown  time.Duration
	now       func() time.Time
	onChange  func(from, to State)
}

// NewBreaker creates a closed breaker. onChange may be nil; when set it is
// invoked under the breaker's lock and must not call back into the breaker.
func NewBreaker(threshold int, cooldown time.Duration, now func() time.Time, onChange func(from, to State)) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &Breaker{
		state:     StateClosed,
		threshold: threshold,
		cooldown:  cooldown,
		now:       now,
		onChange:  onChange,
	}
}

// Allow reports whether a call may proceed. An open breaker whose cooldown
// has elapsed moves to half-open first; in half-open only a single trial is
// allowed until its outcome is recorded.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	switch b.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if b.trial {
			return false
		}
		b.trial = true
		return true
	default:
		return false
	}
}

// RecordSuccess resets the failure count; a half-open trial success closes
// the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateHalfOpen:
		b.trial = false
		b.failures = 0
		b.transition(StateClosed)
	case StateClosed:
		b.failures = 0
	}
}

// RecordFailure counts one failure toward the threshold; a half-open trial
// failure reopens the breaker and restarts the cooldown.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateHalfOpen:
		b.trial = false
		b.openUntil = b.now().Add(b.cooldown)
		b.transition(StateOpen)
	case StateClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.openUntil = b.now().Add(b.cooldown)
			b.transition(StateOpen)
		}
	}
}

// RecordCancel releases a half-open trial slot without judging the
// capability, for calls the caller aborted before an outcome was known.
func (b *Breaker) RecordCancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen {
		b.trial = false
	}
}

// State returns the current state, applying any due open-to-half-open
// transition first.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state
}

// RetryAfter reports how long until an open breaker will accept a trial.
func (b *Breaker) RetryAfter() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return 0
	}
	d := b.openUntil.Sub(b.now())
	if d < 0 {
		return 0
	}
	return d
}

// maybeHalfOpen moves an open breaker to half-open once the cooldown has
// elapsed. Callers must hold b.mu.
func (b *Breaker) maybeHalfOpen() {
	if b.state == StateOpen && !b.now().Before(b.openUntil) {
		b.trial = false
		b.transition(StateHalfOpen)
	}
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.onChange != nil {
		b.onChange(from, to)
	}
}
