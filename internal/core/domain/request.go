package domain

// Capability identifies one registered analysis capability.
type Capability string

const (
	CapabilityDOM    Capability = "dom"
	CapabilityVisual Capability = "visual"
)

// Mode controls how the strategy engine sequences capabilities.
type Mode string

const (
	// ModeDOMOnly invokes the DOM capability and nothing else.
	ModeDOMOnly Mode = "dom_only"
	// ModeVisualFirst invokes visual analysis, falling back to DOM.
	ModeVisualFirst Mode = "visual_first"
	// ModeSmartSequential invokes DOM first, falling back to visual.
	// DOM is cheaper and usually sufficient.
	ModeSmartSequential Mode = "smart_sequential"
	// ModeSequential invokes capabilities in registration order, stopping
	// at the first success.
	ModeSequential Mode = "sequential"
	// ModeParallel invokes all capabilities concurrently; the first
	// success wins and losing branches are cancelled best-effort.
	ModeParallel Mode = "parallel"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeDOMOnly, ModeVisualFirst, ModeSmartSequential, ModeSequential, ModeParallel:
		return true
	}
	return false
}

// Request describes one element lookup. Immutable once constructed.
type Request struct {
	ID          string
	Selector    string
	Description string
	// ContextHash is an optional caller-supplied page fingerprint folded
	// into the cache key, so the same selector on different pages does not
	// collide.
	ContextHash string
	Mode        Mode
}
