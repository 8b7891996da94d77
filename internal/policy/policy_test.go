package policy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorum-ai/quorum/internal/backend"
	"github.com/quorum-ai/quorum/internal/classifier"
	apperrors "github.com/quorum-ai/quorum/internal/errors"
	"github.com/quorum-ai/quorum/internal/ledger"
)

// fakeRegistry implements the Registry view with hand-set health.
type fakeRegistry struct {
	descs []backend.Descriptor
	open  map[string]bool
	rates map[string]float64
}

func (f *fakeRegistry) All() []backend.Descriptor { return f.descs }

func (f *fakeRegistry) IsOpen(name string) bool { return f.open[name] }

func (f *fakeRegistry) SuccessRate(name string) float64 {
	if r, ok := f.rates[name]; ok {
		return r
	}
	return 1.0
}

func localDesc(name string) backend.Descriptor {
	return backend.Descriptor{
		Name: name, Kind: backend.KindLocal, ModelID: "qwen2.5:7b",
		MaxContextTokens: 8192, Capabilities: []string{"code"},
	}
}

func remoteDesc(name string, perK float64, caps ...string) backend.Descriptor {
	if len(caps) == 0 {
		caps = []string{"code", "reasoning"}
	}
	return backend.Descriptor{
		Name: name, Kind: backend.KindRemote, ModelID: name + "-model",
		CostPerKInput: perK, CostPerKOutput: perK * 4,
		MaxContextTokens: 128000, Capabilities: caps,
	}
}

func newTestPolicy(t *testing.T, budget float64, descs ...backend.Descriptor) (*Policy, *fakeRegistry, *ledger.Ledger) {
	t.Helper()
	reg := &fakeRegistry{descs: descs, open: map[string]bool{}, rates: map[string]float64{}}
	led, err := ledger.New(ledger.Config{MonthlyBudgetUSD: budget})
	require.NoError(t, err)
	return New(reg, led, Config{}, nil), reg, led
}

func TestPlanSimpleTierPrefersLocal(t *testing.T) {
	p, _, _ := newTestPolicy(t, 100.0, localDesc("ollama"), remoteDesc("gpt", 2.5))

	plan, err := p.Plan(RequestSpec{Prompt: "list the files"}, classifier.TierSimple)
	require.NoError(t, err)
	require.Len(t, plan.Participants, 1, "simple tier is local only")
	assert.Equal(t, "ollama", plan.Primary().Backend.Name)
	assert.False(t, plan.Consensus)
}

func TestPlanSimpleTierWithoutLocalUsesRemote(t *testing.T) {
	p, _, _ := newTestPolicy(t, 100.0, remoteDesc("gpt", 2.5))

	plan, err := p.Plan(RequestSpec{Prompt: "list the files"}, classifier.TierSimple)
	require.NoError(t, err)
	assert.Equal(t, "gpt", plan.Primary().Backend.Name)
}

func TestPlanComplexTierPrefersRemote(t *testing.T) {
	p, _, _ := newTestPolicy(t, 100.0, localDesc("ollama"), remoteDesc("gpt", 2.5))

	plan, err := p.Plan(RequestSpec{Prompt: "analyze this"}, classifier.TierComplex)
	require.NoError(t, err)
	assert.Equal(t, "gpt", plan.Primary().Backend.Name)
	require.Len(t, plan.Participants, 2, "local stays as fallback")
	assert.Equal(t, "ollama", plan.Participants[1].Backend.Name)
	assert.Empty(t, plan.Participants[1].ReservationID, "fallback slots reserve at dispatch time")
}

func TestPlanMediumTierPrefersLocalWithRemoteFallback(t *testing.T) {
	p, _, _ := newTestPolicy(t, 100.0, localDesc("ollama"), remoteDesc("gpt", 2.5))

	plan, err := p.Plan(RequestSpec{Prompt: "how does tls termination work here"}, classifier.TierMedium)
	require.NoError(t, err)
	assert.Equal(t, []string{"ollama", "gpt"}, plan.BackendNames())
}

// Budget nearly exhausted: the remote primary cannot reserve, so the plan
// demotes to the free local backend instead of failing.
func TestPlanDemotesToLocalWhenBudgetBlocksRemote(t *testing.T) {
	p, _, led := newTestPolicy(t, 0.001, localDesc("ollama"), remoteDesc("gpt", 2.5))

	plan, err := p.Plan(RequestSpec{Prompt: "analyze this pile of logs"}, classifier.TierComplex)
	require.NoError(t, err)
	assert.Equal(t, "ollama", plan.Primary().Backend.Name)
	assert.NotEmpty(t, plan.Primary().ReservationID)
	assert.Zero(t, led.Spent())
}

func TestPlanBudgetExhaustedNoLocal(t *testing.T) {
	p, _, _ := newTestPolicy(t, 0.001, remoteDesc("gpt", 2.5), remoteDesc("claude", 3.0))

	_, err := p.Plan(RequestSpec{Prompt: "analyze this"}, classifier.TierComplex)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindBudgetExceeded, apperrors.GetKind(err))
}

func TestPlanDemotionPicksCheapestReservable(t *testing.T) {
	// Budget covers the cheap remote but not the expensive one. The pricey
	// backend carries more matching capabilities, so it ranks first.
	cheap := remoteDesc("cheap", 0.1, "code")
	pricey := remoteDesc("pricey", 10.0)
	p, _, _ := newTestPolicy(t, 0.5, pricey, cheap)

	plan, err := p.Plan(RequestSpec{Prompt: strings.Repeat("analyze ", 20)}, classifier.TierComplex)
	require.NoError(t, err)
	assert.Equal(t, "cheap", plan.Primary().Backend.Name)
}

func TestPlanAllCircuitsOpen(t *testing.T) {
	p, reg, _ := newTestPolicy(t, 100.0, localDesc("ollama"), remoteDesc("gpt", 2.5))
	reg.open["ollama"] = true
	reg.open["gpt"] = true

	_, err := p.Plan(RequestSpec{Prompt: "hello"}, classifier.TierMedium)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNoBackend, apperrors.GetKind(err))
}

// A single backend with an open circuit is still used when it is the only
// one that could serve the request at all.
func TestPlanSoleViableBackendDespiteOpenCircuit(t *testing.T) {
	p, reg, _ := newTestPolicy(t, 100.0, localDesc("ollama"))
	reg.open["ollama"] = true

	plan, err := p.Plan(RequestSpec{Prompt: "hello"}, classifier.TierMedium)
	require.NoError(t, err)
	assert.Equal(t, "ollama", plan.Primary().Backend.Name)
}

func TestPlanSkipsOpenCircuits(t *testing.T) {
	p, reg, _ := newTestPolicy(t, 100.0, remoteDesc("gpt", 2.5), remoteDesc("claude", 3.0))
	reg.open["gpt"] = true

	plan, err := p.Plan(RequestSpec{Prompt: "analyze this"}, classifier.TierComplex)
	require.NoError(t, err)
	assert.Equal(t, []string{"claude"}, plan.BackendNames())
}

func TestPlanCriticalRequiresRemote(t *testing.T) {
	p, _, _ := newTestPolicy(t, 100.0, localDesc("ollama"))

	_, err := p.Plan(RequestSpec{Prompt: "x"}, classifier.TierCritical)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNoBackend, apperrors.GetKind(err))
}

func TestPlanCriticalForcesConsensus(t *testing.T) {
	p, _, _ := newTestPolicy(t, 100.0,
		localDesc("ollama"), remoteDesc("gpt", 2.5), remoteDesc("claude", 3.0))

	plan, err := p.Plan(RequestSpec{Prompt: "production is down"}, classifier.TierCritical)
	require.NoError(t, err)
	assert.True(t, plan.Consensus)
	assert.Len(t, plan.Participants, 3)
	for _, part := range plan.Participants {
		assert.NotEmpty(t, part.ReservationID, "every consensus slot reserves up front")
		assert.True(t, part.Consensus)
	}
}

func TestPlanConsensusSizeCapsParticipants(t *testing.T) {
	reg := &fakeRegistry{
		descs: []backend.Descriptor{
			remoteDesc("a", 1), remoteDesc("b", 1), remoteDesc("c", 1), remoteDesc("d", 1),
		},
		open: map[string]bool{}, rates: map[string]float64{},
	}
	led, err := ledger.New(ledger.Config{MonthlyBudgetUSD: 100})
	require.NoError(t, err)
	p := New(reg, led, Config{ConsensusSize: 2}, nil)

	plan, err := p.Plan(RequestSpec{Prompt: "x", RequireConsensus: true}, classifier.TierMedium)
	require.NoError(t, err)
	assert.Len(t, plan.Participants, 2)
}

// When the budget covers only one consensus participant, the plan degrades
// to single mode rather than running a one-backend "consensus".
func TestPlanConsensusDegradesToSingle(t *testing.T) {
	p, _, led := newTestPolicy(t, 0.2,
		remoteDesc("gpt", 2.5), remoteDesc("claude", 3.0), localDesc("ollama"))

	plan, err := p.Plan(RequestSpec{Prompt: "check this", RequireConsensus: true}, classifier.TierMedium)
	require.NoError(t, err)
	assert.False(t, plan.Consensus)
	require.GreaterOrEqual(t, len(plan.Participants), 1)

	// Partial consensus reservations were all returned.
	released := led.Budget() - led.Remaining() - led.Spent()
	assert.InDelta(t, plan.Primary().EstimatedCostUSD, released, 1e-9,
		"only the single-mode primary reservation remains outstanding")
}

func TestPlanForcedBackend(t *testing.T) {
	p, _, _ := newTestPolicy(t, 100.0, localDesc("ollama"), remoteDesc("gpt", 2.5))

	plan, err := p.Plan(RequestSpec{Prompt: "analyze this", ForceBackend: "ollama"}, classifier.TierComplex)
	require.NoError(t, err)
	require.Len(t, plan.Participants, 1)
	assert.Equal(t, "ollama", plan.Primary().Backend.Name)
	assert.Contains(t, plan.Reason, "forced")
}

func TestPlanForcedBackendUnknownFallsThrough(t *testing.T) {
	p, _, _ := newTestPolicy(t, 100.0, localDesc("ollama"))

	plan, err := p.Plan(RequestSpec{Prompt: "hi", ForceBackend: "ghost"}, classifier.TierMedium)
	require.NoError(t, err)
	assert.Equal(t, "ollama", plan.Primary().Backend.Name)
}

func TestPlanForcedBackendOpenCircuitFallsThrough(t *testing.T) {
	p, reg, _ := newTestPolicy(t, 100.0, localDesc("ollama"), remoteDesc("gpt", 2.5))
	reg.open["gpt"] = true

	plan, err := p.Plan(RequestSpec{Prompt: "hi", ForceBackend: "gpt"}, classifier.TierMedium)
	require.NoError(t, err)
	assert.Equal(t, "ollama", plan.Primary().Backend.Name)
}

func TestPlanFiltersOversizedPrompts(t *testing.T) {
	small := localDesc("tiny")
	small.MaxContextTokens = 10
	p, _, _ := newTestPolicy(t, 100.0, small, remoteDesc("gpt", 2.5))

	plan, err := p.Plan(RequestSpec{Prompt: strings.Repeat("word ", 100)}, classifier.TierMedium)
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt"}, plan.BackendNames(), "tiny context window filtered out")
}

func TestPlanFiltersByMaxCost(t *testing.T) {
	p, _, _ := newTestPolicy(t, 100.0, localDesc("ollama"), remoteDesc("gpt", 10.0))

	plan, err := p.Plan(RequestSpec{Prompt: "analyze this", MaxCostUSD: 0.0001}, classifier.TierComplex)
	require.NoError(t, err)
	assert.Equal(t, []string{"ollama"}, plan.BackendNames(), "remote over the per-call cap")
}

func TestRankPrefersCapabilityOverlap(t *testing.T) {
	coder := remoteDesc("coder", 5.0, "code")
	generic := remoteDesc("generic", 1.0, "creative")
	p, _, _ := newTestPolicy(t, 100.0, generic, coder)

	plan, err := p.Plan(RequestSpec{Prompt: "fix the bug in this function please, needs analyze"}, classifier.TierComplex)
	require.NoError(t, err)
	assert.Equal(t, "coder", plan.Primary().Backend.Name,
		"capability overlap outranks price")
}

func TestRankBreaksTiesByCost(t *testing.T) {
	a := remoteDesc("expensive", 5.0, "code")
	b := remoteDesc("affordable", 1.0, "code")
	p, _, _ := newTestPolicy(t, 100.0, a, b)

	plan, err := p.Plan(RequestSpec{Prompt: "fix the bug, then analyze"}, classifier.TierComplex)
	require.NoError(t, err)
	assert.Equal(t, "affordable", plan.Primary().Backend.Name)
}
