package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// AnalysisError wraps a failed analyzer invocation with its retry class.
// Analyzers should return these so the resilience guard can tell transient
// failures from permanent ones; unwrapped errors are treated as permanent.
type AnalysisError struct {
	Class Classification
	Err   error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis failed (%s): %v", e.Class, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// Transient marks err as retryable (timeout, network, 5xx-equivalent).
func Transient(err error) *AnalysisError {
	return &AnalysisError{Class: ClassTransient, Err: err}
}

// Permanent marks err as not retryable (malformed input, auth failure,
// capability unsupported).
func Permanent(err error) *AnalysisError {
	return &AnalysisError{Class: ClassPermanent, Err: err}
}

// CircuitOpenError is returned when a capability's breaker short-circuits a
// call before anything is dispatched.
type CircuitOpenError struct {
	Capability Capability
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for capability %s, retry in %s", e.Capability, e.RetryAfter.Round(time.Millisecond))
}

// NotFoundError is the sole failure surfaced to callers: every strategy was
// exhausted without producing a working locator. It carries the diagnostic
// trail of what was tried.
type NotFoundError struct {
	Selector    string
	Description string
	Attempts    []Attempt
	Elapsed     time.Duration
}

func (e *NotFoundError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "element not found for selector %q (%s) after %s", e.Selector, e.Description, e.Elapsed.Round(time.Millisecond))
	if len(e.Attempts) > 0 {
		b.WriteString("; attempts: ")
		for i, a := range e.Attempts {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%s", a.Capability, a.Classification)
			if a.Err != nil {
				fmt.Fprintf(&b, " (%v)", a.Err)
			}
		}
	}
	return b.String()
}

// Classify reports the retry class of a capability error. Deadline expiry and
// network timeouts are transient; anything unrecognized is permanent, so
// unknown failures are never retried blindly.
func Classify(err error) Classification {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Class
	}
	var coe *CircuitOpenError
	if errors.As(err, &coe) {
		return ClassCircuitOpen
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ClassTransient
	}
	return ClassPermanent
}
