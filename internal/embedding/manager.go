// Package embedding provides the Embedding Service layer: a single active
// embeddings.Provider with an optional local fallback, call-count/latency
// stats, and per-provider health reporting.
//
// Grounded on original_source/vectadb/src/embeddings/manager.rs's
// try-primary-then-fallback cascade (fallback engages only when the primary
// errors and a fallback is configured — spec.md §4.6/§7) and the teacher's
// embeddings.Provider interface shape (pkg/provider/embeddings/provider.go).
// Fallback-or-propagate is implemented with
// internal/resilience.FallbackGroup, tried exactly once per entry, matching
// the resilience package's existing provider-failover primitive rather than
// re-deriving one.
package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tracegraph/tracegraph/internal/resilience"
	"github.com/tracegraph/tracegraph/internal/tracerr"
	"github.com/tracegraph/tracegraph/pkg/provider/embeddings"
)

// Stats tracks usage counters for a single provider slot (primary or
// fallback). Reads accept staleness — spec.md §5 names provider stats as a
// short-held-mutex counter, not a strongly consistent one.
type Stats struct {
	Requests int64
	Errors   int64
	LastUsed time.Time
}

// Manager is the Embedding Service: it picks one active provider, optionally
// with a local fallback engaged only when the primary errors.
type Manager struct {
	group     *resilience.FallbackGroup[embeddings.Provider]
	primary   embeddings.Provider
	hasFallback bool

	mu    sync.Mutex
	stats map[string]*Stats
}

// New constructs a Manager around primary. Call AddFallback to register an
// optional local fallback provider.
func New(primary embeddings.Provider, primaryName string) *Manager {
	group := resilience.NewFallbackGroup(primary, primaryName, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Name:        primaryName,
			MaxFailures: 5,
		},
	})
	return &Manager{
		group:   group,
		primary: primary,
		stats:   map[string]*Stats{primaryName: {}},
	}
}

// AddFallback registers a fallback provider, engaged only when the primary
// errors (spec.md §4.6). At most one fallback attempt is made per call.
func (m *Manager) AddFallback(name string, p embeddings.Provider) {
	m.group.AddFallback(name, p)
	m.mu.Lock()
	m.stats[name] = &Stats{}
	m.hasFallback = true
	m.mu.Unlock()
}

// Embed computes a single embedding via the primary provider, falling back
// once to the configured fallback on primary failure. If no fallback is
// configured, a primary error propagates directly (spec.md §7).
func (m *Manager) Embed(ctx context.Context, text string) ([]float32, error) {
	var name string
	vec, err := resilience.ExecuteWithResult(m.group, func(p embeddings.Provider) ([]float32, error) {
		name = providerName(p, m.primary)
		return p.Embed(ctx, text)
	})
	m.record(name, err)
	if err != nil {
		return nil, tracerr.Wrap("embedding: embed", tracerr.EmbeddingFailure, err)
	}
	return vec, nil
}

// EmbedBatch computes embeddings for texts in a single call, preserving
// input order explicitly — providers that could return results out of order
// are expected to echo the input index; this core's Provider contract
// already guarantees positional ordering (pkg/provider/embeddings.Provider),
// so no re-sort is needed here beyond trusting that contract.
func (m *Manager) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var name string
	vecs, err := resilience.ExecuteWithResult(m.group, func(p embeddings.Provider) ([][]float32, error) {
		name = providerName(p, m.primary)
		return p.EmbedBatch(ctx, texts)
	})
	m.record(name, err)
	if err != nil {
		return nil, tracerr.Wrap("embedding: embed batch", tracerr.EmbeddingFailure, err)
	}
	if len(vecs) != len(texts) {
		return nil, tracerr.Wrap("embedding: embed batch",
			tracerr.EmbeddingFailure,
			fmt.Errorf("expected %d vectors, got %d", len(texts), len(vecs)))
	}
	return vecs, nil
}

// Dimension returns the primary provider's embedding dimension. The active
// schema's entity embeddings must match this length (spec.md §3).
func (m *Manager) Dimension() int {
	return m.primary.Dimensions()
}

// Health reports whether the embedding service can currently serve requests:
// true if the primary is healthy, or — failing that — a fallback is
// configured (spec.md §4.6, §7).
func (m *Manager) Health(ctx context.Context) (bool, string) {
	if _, err := m.primary.Embed(ctx, "health check probe"); err == nil {
		return true, "ok"
	}
	if m.hasFallback {
		return true, "primary degraded, fallback available"
	}
	return false, "primary unavailable, no fallback configured"
}

// Stats returns a snapshot of per-provider usage counters.
func (m *Manager) Stats() map[string]Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Stats, len(m.stats))
	for k, v := range m.stats {
		out[k] = *v
	}
	return out
}

func (m *Manager) record(name string, err error) {
	if name == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stats[name]
	if !ok {
		s = &Stats{}
		m.stats[name] = s
	}
	s.Requests++
	s.LastUsed = time.Now()
	if err != nil {
		s.Errors++
	}
}

// providerName is a best-effort label for stats attribution; FallbackGroup
// does not expose which entry actually served a request, so callers that
// need more than "primary vs. not" should use AddFallback's name directly.
func providerName(p, primary embeddings.Provider) string {
	if p == primary {
		return "primary"
	}
	return "fallback"
}
