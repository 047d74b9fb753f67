package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/healer/internal/core/domain"
	"github.com/vietddude/healer/internal/healing/guard"
	"github.com/vietddude/healer/internal/healing/metrics"
)

// StatsSource supplies the request counters.
type StatsSource interface {
	Snapshot() metrics.Snapshot
}

// CircuitSource supplies the per-capability breaker states.
type CircuitSource interface {
	States() map[domain.Capability]guard.State
}

// CacheSource supplies the current cache entry count.
type CacheSource interface {
	Size() int
}

// minSamples is the request count below which the success rate is not
// judged, so a cold service is not flagged during warmup.
const minSamples = 10

// Monitor aggregates health status from the pipeline components.
type Monitor struct {
	stats    StatsSource
	circuits CircuitSource
	cache    CacheSource

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport Report
}

// NewMonitor creates a new health monitor.
func NewMonitor(stats StatsSource, circuits CircuitSource, cache CacheSource) *Monitor {
	return &Monitor{
		stats:    stats,
		circuits: circuits,
		cache:    cache,
	}
}

// CheckHealth evaluates the current health report.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rate limit checks to avoid hammering the sources on busy scrapes
	if time.Since(m.lastCheck) < 10*time.Second && !m.lastReport.CheckedAt.IsZero() {
		return m.lastReport
	}

	snap := m.stats.Snapshot()
	states := m.circuits.States()

	report := Report{
		Status:       StatusHealthy,
		Requests:     snap.Requests,
		SuccessRate:  snap.SuccessRate(),
		CacheHitRate: snap.CacheHitRate(),
		CacheEntries: m.cache.Size(),
		Circuits:     make(map[string]string, len(states)),
		CheckedAt:    time.Now(),
	}

	openCount := 0
	impaired := 0
	for cap, st := range states {
		report.Circuits[string(cap)] = st.String()
		if st == guard.StateOpen {
			openCount++
		}
		if st != guard.StateClosed {
			impaired++
		}
	}

	rated := snap.Requests >= minSamples
	switch {
	case len(states) > 0 && openCount == len(states):
		// Every capability is refusing calls, healing cannot happen.
		report.Status = StatusCritical
	case rated && report.SuccessRate < 0.5:
		report.Status = StatusCritical
	case impaired > 0 || (rated && report.SuccessRate < 0.8):
		report.Status = StatusDegraded
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}
