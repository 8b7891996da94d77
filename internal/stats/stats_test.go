package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCallAggregates(t *testing.T) {
	c := NewCollector()

	c.RecordCall("ollama", true, 100, 50, 0, 20*time.Millisecond, false)
	c.RecordCall("gpt", false, 200, 80, 0.05, 400*time.Millisecond, false)
	c.RecordCall("gpt", false, 0, 0, 0, 100*time.Millisecond, true)
	c.RecordRequest()
	c.RecordRequest()

	s := c.Snapshot()
	assert.Equal(t, int64(2), s.RequestCount)
	assert.Equal(t, int64(430), s.TokenCount)
	assert.Equal(t, int64(1), s.ErrorCount)
	assert.InDelta(t, 100.0/3.0, s.LocalRate, 1e-6)

	require.Contains(t, s.PerBackend, "gpt")
	gpt := s.PerBackend["gpt"]
	assert.Equal(t, int64(2), gpt.Calls)
	assert.Equal(t, int64(1), gpt.Errors)
	assert.InDelta(t, 0.05, gpt.CostUSD, 1e-9)
	assert.Equal(t, int64(200), gpt.TokensIn)
}

func TestSnapshotEmpty(t *testing.T) {
	s := NewCollector().Snapshot()
	assert.Zero(t, s.RequestCount)
	assert.Zero(t, s.LocalRate)
	assert.Zero(t, s.AvgLatencyMs)
	assert.Empty(t, s.PerBackend)
}

func TestAvgLatency(t *testing.T) {
	c := NewCollector()
	c.RecordCall("a", true, 1, 1, 0, 100*time.Millisecond, false)
	c.RecordCall("a", true, 1, 1, 0, 300*time.Millisecond, false)

	s := c.Snapshot()
	assert.InDelta(t, 200.0, s.AvgLatencyMs, 1e-6)
}

func TestCollectorConcurrentAccess(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.RecordCall("b", j%2 == 0, 1, 1, 0.001, time.Millisecond, j%5 == 0)
				c.RecordRequest()
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	assert.Equal(t, int64(1000), s.RequestCount)
	assert.Equal(t, int64(1000), s.PerBackend["b"].Calls)
	assert.Equal(t, int64(2000), s.TokenCount)
}
