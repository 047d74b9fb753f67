package domain

import "time"

// Origin tags where a returned locator came from.
type Origin string

const (
	OriginOriginal Origin = "original"
	OriginCached   Origin = "cached"
	OriginDOM      Origin = "dom"
	OriginVisual   Origin = "visual"
)

// OriginFor maps a capability to the origin tag its results carry.
func OriginFor(cap Capability) Origin {
	if cap == CapabilityVisual {
		return OriginVisual
	}
	return OriginDOM
}

// Candidate is an analyzer's proposed replacement locator.
type Candidate struct {
	Locator    string
	Confidence float64
	Reasoning  string
	Tokens     int
}

// Result is a successful element lookup.
type Result struct {
	Locator    string
	Element    Element
	Origin     Origin
	Confidence float64
	Reasoning  string
	RequestID  string
	Elapsed    time.Duration
}

// Healed reports whether the locator had to be recovered rather than
// resolved directly.
func (r *Result) Healed() bool {
	return r.Origin == OriginDOM || r.Origin == OriginVisual
}

// Classification buckets capability failures for retry and fallback decisions.
type Classification string

const (
	// ClassTransient failures (timeouts, network errors) are retried.
	ClassTransient Classification = "transient"
	// ClassPermanent failures (malformed input, auth, unsupported) are not.
	ClassPermanent Classification = "permanent"
	// ClassCircuitOpen marks a call short-circuited without dispatching.
	ClassCircuitOpen Classification = "circuit_open"
)

// Attempt records the outcome of one capability invocation, successful or not.
type Attempt struct {
	Capability     Capability
	Candidate      Candidate
	Element        Element
	Err            error
	Classification Classification
	Latency        time.Duration
	// Calls is the number of external invocations dispatched, including
	// retries. Zero when the circuit short-circuited.
	Calls int
}

// Success reports whether the attempt produced a verified locator.
func (a Attempt) Success() bool {
	return a.Err == nil
}
