// Package strategy selects and runs healing capabilities for a lookup.
// The page context is captured once per heal and shared by every
// capability; each capability attempt runs through the resilience guard
// and its candidate is verified against the live page before it wins.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietddude/healer/internal/core/domain"
	"github.com/vietddude/healer/internal/healing/guard"
)

var (
	// ErrExhausted reports that every attempted capability failed.
	ErrExhausted = errors.New("all healing capabilities failed")
	// ErrNoAnalyzer reports that the requested mode has no registered
	// capability to run.
	ErrNoAnalyzer = errors.New("no analyzer registered for mode")
)

// Registration binds a capability to its analyzer. Registration order is
// the trial order for ModeSequential.
type Registration struct {
	Capability domain.Capability
	Analyzer   domain.Analyzer
}

// Outcome is what a successful heal produced.
type Outcome struct {
	Capability domain.Capability
	Candidate  domain.Candidate
	Element    domain.Element
}

// Engine runs the healing capabilities in the order a mode dictates. The
// capability set is fixed at construction.
type Engine struct {
	adapter   domain.Adapter
	analyzers map[domain.Capability]domain.Analyzer
	order     []domain.Capability
	guard     *guard.Guard
	logger    *slog.Logger
}

// New creates an engine over the given registrations.
func New(adapter domain.Adapter, g *guard.Guard, regs []Registration, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		adapter:   adapter,
		analyzers: make(map[domain.Capability]domain.Analyzer, len(regs)),
		guard:     g,
		logger:    logger,
	}
	for _, reg := range regs {
		if reg.Analyzer == nil {
			continue
		}
		if _, dup := e.analyzers[reg.Capability]; dup {
			continue
		}
		e.analyzers[reg.Capability] = reg.Analyzer
		e.order = append(e.order, reg.Capability)
	}
	return e
}

// Heal attempts to produce a working locator for the request. On success
// the returned attempts cover the capabilities tried so far; on failure
// they cover every capability the mode allowed.
func (e *Engine) Heal(ctx context.Context, req domain.Request) (Outcome, []domain.Attempt, error) {
	caps := e.plan(req.Mode)
	if len(caps) == 0 {
		return Outcome{}, nil, fmt.Errorf("%w %q", ErrNoAnalyzer, req.Mode)
	}

	page, err := e.adapter.CaptureContext(ctx)
	if err != nil {
		return Outcome{}, nil, fmt.Errorf("capture page context: %w", err)
	}

	if req.Mode == domain.ModeParallel {
		return e.healParallel(ctx, req, page, caps)
	}

	var attempts []domain.Attempt
	for _, cap := range caps {
		att := e.tryCapability(ctx, cap, page, req)
		attempts = append(attempts, att)
		if att.Success() {
			return Outcome{Capability: cap, Candidate: att.Candidate, Element: att.Element}, attempts, nil
		}
		e.logger.Debug("capability attempt failed",
			"request_id", req.ID,
			"capability", cap,
			"classification", att.Classification,
			"error", att.Err)
	}
	return Outcome{}, attempts, ErrExhausted
}

// healParallel races every capability and takes the first verified
// success. Losers are cancelled best-effort and never delay the winner.
func (e *Engine) healParallel(ctx context.Context, req domain.Request, page domain.PageContext, caps []domain.Capability) (Outcome, []domain.Attempt, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan domain.Attempt, len(caps))
	for _, cap := range caps {
		cap := cap
		go func() {
			results <- e.tryCapability(ctx, cap, page, req)
		}()
	}

	var attempts []domain.Attempt
	for range caps {
		att := <-results
		attempts = append(attempts, att)
		if att.Success() {
			return Outcome{Capability: att.Capability, Candidate: att.Candidate, Element: att.Element}, attempts, nil
		}
	}
	return Outcome{}, attempts, ErrExhausted
}

// tryCapability runs one guarded analyzer call and verifies the candidate
// against the live page. A candidate that no longer matches is a permanent
// failure for this capability but does not feed its breaker.
func (e *Engine) tryCapability(ctx context.Context, cap domain.Capability, page domain.PageContext, req domain.Request) domain.Attempt {
	analyzer := e.analyzers[cap]
	att := e.guard.Do(ctx, cap, func(ctx context.Context) (domain.Candidate, error) {
		return analyzer.Analyze(ctx, page, req.Description)
	})
	if !att.Success() {
		return att
	}

	el, found, err := e.adapter.TryLocate(ctx, att.Candidate.Locator)
	if err != nil {
		att.Err = domain.Permanent(fmt.Errorf("verify candidate %q: %w", att.Candidate.Locator, err))
		att.Classification = domain.ClassPermanent
		return att
	}
	if !found {
		att.Err = domain.Permanent(fmt.Errorf("candidate %q not present on page", att.Candidate.Locator))
		att.Classification = domain.ClassPermanent
		return att
	}
	att.Element = el
	return att
}

// plan resolves the capability trial order for a mode. Capabilities the
// engine does not have are skipped.
func (e *Engine) plan(mode domain.Mode) []domain.Capability {
	var want []domain.Capability
	switch mode {
	case domain.ModeDOMOnly:
		want = []domain.Capability{domain.CapabilityDOM}
	case domain.ModeVisualFirst:
		want = []domain.Capability{domain.CapabilityVisual, domain.CapabilityDOM}
	case domain.ModeSequential, domain.ModeParallel:
		want = e.order
	default:
		want = []domain.Capability{domain.CapabilityDOM, domain.CapabilityVisual}
	}

	caps := make([]domain.Capability, 0, len(want))
	for _, cap := range want {
		if _, ok := e.analyzers[cap]; ok {
			caps = append(caps, cap)
		}
	}
	return caps
}
