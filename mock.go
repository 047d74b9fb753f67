package healer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// MockAnalyzer is a canned Analyzer for tests and local development. It
// answers from stubbed description-to-candidate rules without calling any
// provider, optionally simulating latency or failures.
type MockAnalyzer struct {
	mu      sync.Mutex
	rules   map[string]Candidate
	err     error
	latency time.Duration
	calls   int
}

// NewMockAnalyzer creates an empty mock. Without stubs every call fails
// permanently.
func NewMockAnalyzer() *MockAnalyzer {
	return &MockAnalyzer{rules: make(map[string]Candidate)}
}

// Stub registers the candidate returned for a description.
func (m *MockAnalyzer) Stub(description string, cand Candidate) *MockAnalyzer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[description] = cand
	return m
}

// Fail makes every subsequent call return err; nil restores stubbed
// answers.
func (m *MockAnalyzer) Fail(err error) *MockAnalyzer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// SetLatency makes each call take d before answering.
func (m *MockAnalyzer) SetLatency(d time.Duration) *MockAnalyzer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
	return m
}

// Calls reports how many times Analyze ran.
func (m *MockAnalyzer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Analyze implements Analyzer.
func (m *MockAnalyzer) Analyze(ctx context.Context, page PageContext, description string) (Candidate, error) {
	m.mu.Lock()
	m.calls++
	err := m.err
	latency := m.latency
	cand, ok := m.rules[description]
	m.mu.Unlock()

	if latency > 0 {
		select {
		case <-ctx.Done():
			return Candidate{}, ctx.Err()
		case <-time.After(latency):
		}
	}
	if err != nil {
		return Candidate{}, err
	}
	if !ok {
		return Candidate{}, Permanent(fmt.Errorf("%w for %q", ErrNoStub, description))
	}
	return cand, nil
}

var _ Analyzer = (*MockAnalyzer)(nil)

// ErrNoStub reports an Analyze call whose description has no stubbed rule.
var ErrNoStub = errors.New("no stubbed candidate")
