package backend

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 1, EstimateTokens(""), "never zero")
	assert.Equal(t, 1, EstimateTokens("hi"))
	assert.Equal(t, 25, EstimateTokens(strings.Repeat("a", 100)))
}

func TestCostUSD(t *testing.T) {
	d := Descriptor{CostPerKInput: 3.0, CostPerKOutput: 15.0}
	assert.InDelta(t, 3.0, d.CostUSD(1000, 0), 1e-9)
	assert.InDelta(t, 15.0, d.CostUSD(0, 1000), 1e-9)
	assert.InDelta(t, 9.0, d.CostUSD(2000, 200), 1e-9)

	free := Descriptor{Kind: KindLocal}
	assert.Zero(t, free.CostUSD(100000, 100000))
}

func TestEstimateCostUSD(t *testing.T) {
	d := Descriptor{CostPerKInput: 1.0, CostPerKOutput: 2.0}

	prompt := strings.Repeat("x", 4000) // 1000 tokens
	withCap := d.EstimateCostUSD(prompt, 500)
	assert.InDelta(t, 1.0+2.0*0.5, withCap, 1e-9)

	// Zero cap falls back to the conservative default output estimate.
	noCap := d.EstimateCostUSD(prompt, 0)
	assert.Greater(t, noCap, withCap)
}

func TestHasCapability(t *testing.T) {
	d := Descriptor{Capabilities: []string{"code", "reasoning"}}
	assert.True(t, d.HasCapability("code"))
	assert.False(t, d.HasCapability("creative"))
	assert.False(t, Descriptor{}.HasCapability("code"))
}

func TestCallResultOK(t *testing.T) {
	assert.True(t, CallResult{Content: "hi"}.OK())
	assert.False(t, CallResult{Err: assert.AnError}.OK())
}
