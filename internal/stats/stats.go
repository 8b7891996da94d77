// Package stats tracks aggregate usage statistics for Quorum.
//
// Per-call results are discarded after dispatch; only the aggregates kept
// here survive the request.
package stats

import (
	"sync"
	"time"
)

// Collector accumulates request, token and error counts.
type Collector struct {
	mu sync.Mutex

	startTime     time.Time
	requestCount  int64
	tokenCount    int64
	errorCount    int64
	localCount    int64
	totalDuration time.Duration

	perBackend map[string]*BackendStats
}

// BackendStats holds the per-backend slice of the aggregates.
type BackendStats struct {
	Calls     int64         `json:"calls"`
	Errors    int64         `json:"errors"`
	TokensIn  int64         `json:"tokens_in"`
	TokensOut int64         `json:"tokens_out"`
	CostUSD   float64       `json:"cost_usd"`
	Latency   time.Duration `json:"latency_total"`
}

// NewCollector creates a stats collector.
func NewCollector() *Collector {
	return &Collector{
		startTime:  time.Now(),
		perBackend: make(map[string]*BackendStats),
	}
}

// RecordCall records one completed backend call, successful or not.
func (c *Collector) RecordCall(backendName string, isLocal bool, tokensIn, tokensOut int, costUSD float64, latency time.Duration, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bs, ok := c.perBackend[backendName]
	if !ok {
		bs = &BackendStats{}
		c.perBackend[backendName] = bs
	}

	bs.Calls++
	bs.TokensIn += int64(tokensIn)
	bs.TokensOut += int64(tokensOut)
	bs.CostUSD += costUSD
	bs.Latency += latency
	if failed {
		bs.Errors++
		c.errorCount++
	}
	if isLocal {
		c.localCount++
	}
	c.tokenCount += int64(tokensIn + tokensOut)
	c.totalDuration += latency
}

// RecordRequest records one completed inbound request.
func (c *Collector) RecordRequest() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestCount++
}

// Stats is a point-in-time snapshot of the aggregates.
type Stats struct {
	Uptime       string                  `json:"uptime"`
	RequestCount int64                   `json:"request_count"`
	TokenCount   int64                   `json:"token_count"`
	ErrorCount   int64                   `json:"error_count"`
	LocalRate    float64                 `json:"local_rate"` // % of calls served locally
	AvgLatencyMs float64                 `json:"avg_latency_ms"`
	PerBackend   map[string]BackendStats `json:"per_backend"`
}

// Snapshot returns current statistics.
func (c *Collector) Snapshot() *Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var totalCalls int64
	per := make(map[string]BackendStats, len(c.perBackend))
	for name, bs := range c.perBackend {
		per[name] = *bs
		totalCalls += bs.Calls
	}

	localRate := 0.0
	if totalCalls > 0 {
		localRate = float64(c.localCount) / float64(totalCalls) * 100
	}
	avgLatency := 0.0
	if totalCalls > 0 {
		avgLatency = float64(c.totalDuration.Milliseconds()) / float64(totalCalls)
	}

	return &Stats{
		Uptime:       time.Since(c.startTime).String(),
		RequestCount: c.requestCount,
		TokenCount:   c.tokenCount,
		ErrorCount:   c.errorCount,
		LocalRate:    localRate,
		AvgLatencyMs: avgLatency,
		PerBackend:   per,
	}
}
