package registry

import (
	"sync"
	"time"
)

// BreakerConfig configures circuit-breaker behavior for every backend.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before the
	// circuit opens.
	FailureThreshold int

	// Cooldown is how long the circuit stays open on first trip.
	Cooldown time.Duration

	// MaxCooldown caps the exponential growth applied on repeated trips.
	MaxCooldown time.Duration
}

// DefaultBreakerConfig returns the default breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 3,
		Cooldown:         60 * time.Second,
		MaxCooldown:      10 * time.Minute,
	}
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	d := DefaultBreakerConfig()
	if c.FailureThreshold < 1 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	if c.MaxCooldown < c.Cooldown {
		c.MaxCooldown = d.MaxCooldown
	}
	return c
}

// HealthStatus is a read-only snapshot of one backend's health.
type HealthStatus struct {
	ConsecutiveFailures int
	CircuitOpen         bool
	CircuitOpenUntil    time.Time
	Successes           int64
	Failures            int64
}

// Health tracks failures for a single backend. In-memory only; resets on
// process restart.
type Health struct {
	mu sync.Mutex

	cfg BreakerConfig

	consecutiveFailures int
	circuitOpenUntil    time.Time
	trips               int // consecutive opens, drives exponential cooldown

	successes int64
	failures  int64

	now func() time.Time // overridable for tests
}

func newHealth(cfg BreakerConfig) *Health {
	return &Health{cfg: cfg, now: time.Now}
}

func (h *Health) recordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.successes++
	h.consecutiveFailures = 0
	h.trips = 0
	h.circuitOpenUntil = time.Time{}
}

func (h *Health) recordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.failures++
	h.consecutiveFailures++
	if h.consecutiveFailures < h.cfg.FailureThreshold {
		return
	}

	cooldown := h.cfg.Cooldown
	for i := 0; i < h.trips; i++ {
		cooldown *= 2
		if cooldown >= h.cfg.MaxCooldown {
			cooldown = h.cfg.MaxCooldown
			break
		}
	}
	h.trips++
	h.circuitOpenUntil = h.now().Add(cooldown)
	// Start a fresh count toward the next trip once the cooldown elapses.
	h.consecutiveFailures = 0
}

func (h *Health) isOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.circuitOpenUntil.IsZero() && h.now().Before(h.circuitOpenUntil)
}

func (h *Health) successRate() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	total := h.successes + h.failures
	if total == 0 {
		return 1.0
	}
	return float64(h.successes) / float64(total)
}

func (h *Health) status() HealthStatus {
	h.mu.Lock()
	defer h.mu.Unlock()

	open := !h.circuitOpenUntil.IsZero() && h.now().Before(h.circuitOpenUntil)
	return HealthStatus{
		ConsecutiveFailures: h.consecutiveFailures,
		CircuitOpen:         open,
		CircuitOpenUntil:    h.circuitOpenUntil,
		Successes:           h.successes,
		Failures:            h.failures,
	}
}
