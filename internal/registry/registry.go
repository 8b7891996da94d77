// Package registry holds the configured backend adapters and tracks
// per-backend health for routing decisions.
//
// ReportOutcome is the sole mutator of health state: repeated failures open a
// backend's circuit for a cooldown window, a single success closes it again.
// The routing policy reads health through IsOpen and SuccessRate.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/quorum-ai/quorum/internal/backend"
)

// Registry is the process-wide set of configured backends.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	breaker BreakerConfig
}

type entry struct {
	adapter backend.Adapter
	health  *Health
}

// New creates an empty registry with the given breaker configuration.
func New(cfg BreakerConfig) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		breaker: cfg.withDefaults(),
	}
}

// Register adds an adapter. Registering the same name twice is an error:
// descriptors are immutable once registered.
func (r *Registry) Register(a backend.Adapter) error {
	name := a.Descriptor().Name
	if name == "" {
		return fmt.Errorf("backend has empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("backend %q already registered", name)
	}
	r.entries[name] = &entry{
		adapter: a,
		health:  newHealth(r.breaker),
	}
	return nil
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (backend.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.adapter, true
}

// All returns the descriptors of every registered backend, sorted by name
// for deterministic iteration.
func (r *Registry) All() []backend.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descs := make([]backend.Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		descs = append(descs, e.adapter.Descriptor())
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].Name < descs[j].Name })
	return descs
}

// ByCapability returns the descriptors of backends carrying the given tag.
func (r *Registry) ByCapability(tag string) []backend.Descriptor {
	var out []backend.Descriptor
	for _, d := range r.All() {
		if d.HasCapability(tag) {
			out = append(out, d)
		}
	}
	return out
}

// ReportOutcome records the result of a call against the named backend.
// Unknown names are ignored.
func (r *Registry) ReportOutcome(name string, success bool) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return
	}

	if success {
		e.health.recordSuccess()
	} else {
		e.health.recordFailure()
	}
}

// IsOpen reports whether the named backend's circuit is currently open.
// Unknown backends count as open: they cannot be routed to.
func (r *Registry) IsOpen(name string) bool {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return true
	}
	return e.health.isOpen()
}

// SuccessRate returns the fraction of calls against the named backend that
// succeeded, or 1.0 when the backend has never been called (optimistic so a
// fresh backend is not penalized in ranking).
func (r *Registry) SuccessRate(name string) float64 {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	return e.health.successRate()
}

// Snapshot returns the current health of every backend, keyed by name.
func (r *Registry) Snapshot() map[string]HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]HealthStatus, len(r.entries))
	for name, e := range r.entries {
		out[name] = e.health.status()
	}
	return out
}
