package cli

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/healer"
)

// demoAdapter serves a fixed login page. The selectors it knows are the
// "current" ones; demo lookups use outdated selectors so healing has work
// to do.
type demoAdapter struct {
	mu      sync.Mutex
	present map[string]bool
	html    string
}

func newDemoAdapter() *demoAdapter {
	return &demoAdapter{
		present: map[string]bool{
			"#login-button": true,
			"#search-input": true,
			"#cart-badge":   true,
		},
		html: `<main>
  <form id="login-form">
    <input id="search-input" type="search" placeholder="Search products"/>
    <button id="login-button" type="submit">Sign in</button>
  </form>
  <span id="cart-badge">3</span>
</main>`,
	}
}

func (a *demoAdapter) TryLocate(ctx context.Context, locator string) (healer.Element, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.present[locator] {
		return locator, true, nil
	}
	return nil, false, nil
}

func (a *demoAdapter) CaptureContext(ctx context.Context) (healer.PageContext, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return healer.PageContext{
		URL:        "https://demo.local/login",
		HTML:       a.html,
		CapturedAt: time.Now(),
	}, nil
}

func demoDOMAnalyzer() healer.Analyzer {
	return healer.NewMockAnalyzer().
		Stub("login button", healer.Candidate{
			Locator:    "#login-button",
			Confidence: 0.9,
			Reasoning:  "submit button labelled Sign in",
			Tokens:     420,
		}).
		Stub("search input", healer.Candidate{
			Locator:    "#search-input",
			Confidence: 0.85,
			Reasoning:  "search field by placeholder",
			Tokens:     380,
		}).
		SetLatency(30 * time.Millisecond)
}

func demoVisualAnalyzer() healer.Analyzer {
	return healer.NewMockAnalyzer().
		Stub("cart badge", healer.Candidate{
			Locator:    "#cart-badge",
			Confidence: 0.7,
			Reasoning:  "badge in the top right corner",
			Tokens:     910,
		}).
		SetLatency(80 * time.Millisecond)
}

// runDemoLookups heals a handful of outdated selectors, twice: the first
// pass exercises the analyzers, the second should come back from the cache.
func runDemoLookups(ctx context.Context, loc *healer.Locator) {
	lookups := []struct {
		selector    string
		description string
	}{
		{"#login-btn-wrong", "login button"},
		{"#login-button", "login button"},
		{"#search-box-old", "search input"},
		{"#cart-count", "cart badge"},
	}

	for pass := 1; pass <= 2; pass++ {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(2)
		for _, lu := range lookups {
			lu := lu
			g.Go(func() error {
				res, err := loc.Find(gctx, lu.selector, lu.description)
				if err != nil {
					slog.Warn("demo lookup failed", "pass", pass, "selector", lu.selector, "error", err)
					return nil
				}
				slog.Info("demo lookup resolved",
					"pass", pass,
					"selector", lu.selector,
					"locator", res.Locator,
					"origin", res.Origin,
					"elapsed", res.Elapsed)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
	}

	stats := loc.Stats()
	slog.Info("demo lookups finished",
		"requests", stats.Requests,
		"healed", stats.Healed,
		"cached", stats.Cached,
		"tokens", stats.Tokens,
		"cache_hit_rate", stats.CacheHitRate())
}
