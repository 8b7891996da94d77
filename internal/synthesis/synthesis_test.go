package synthesis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorum-ai/quorum/internal/backend"
)

type fakeAdapter struct {
	desc   backend.Descriptor
	invoke func(ctx context.Context, prompt string, params backend.Params) (*backend.Invocation, error)
}

func (f *fakeAdapter) Descriptor() backend.Descriptor { return f.desc }

func (f *fakeAdapter) Invoke(ctx context.Context, prompt string, params backend.Params) (*backend.Invocation, error) {
	return f.invoke(ctx, prompt, params)
}

type fakeRegistry struct {
	adapters map[string]backend.Adapter
}

func (f *fakeRegistry) Get(name string) (backend.Adapter, bool) {
	a, ok := f.adapters[name]
	return a, ok
}

func (f *fakeRegistry) ReportOutcome(string, bool) {}

type fakeLedger struct {
	mu        sync.Mutex
	deny      bool
	committed float64
	released  int
}

func (f *fakeLedger) TryReserve(amountUSD float64) (string, bool) {
	if f.deny {
		return "", false
	}
	return "res-1", true
}

func (f *fakeLedger) Commit(id string, actualUSD float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed += actualUSD
}

func (f *fakeLedger) Release(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
}

func result(name string, kind backend.Kind, perK float64, caps []string, content string) backend.CallResult {
	return backend.CallResult{
		Backend: backend.Descriptor{
			Name: name, Kind: kind,
			CostPerKInput: perK, CostPerKOutput: perK,
			Capabilities: caps,
		},
		Content: content,
	}
}

func TestMergeEmpty(t *testing.T) {
	s := New(&fakeRegistry{}, &fakeLedger{}, Config{}, nil)
	_, err := s.Merge(context.Background(), nil)
	assert.Error(t, err)
}

func TestMergeSingleAnswerVerbatim(t *testing.T) {
	s := New(&fakeRegistry{}, &fakeLedger{}, Config{}, nil)

	got, err := s.Merge(context.Background(), []backend.CallResult{
		result("gpt", backend.KindRemote, 1.0, nil, "the only answer"),
	})
	require.NoError(t, err)
	assert.Equal(t, "the only answer", got.Content)
	assert.False(t, got.Synthesized)
	assert.Zero(t, got.CostUSD, "no extra call for a single answer")
}

func TestMergeSynthesizesOnCheapestBackend(t *testing.T) {
	var synthPrompt string
	local := &fakeAdapter{
		desc: backend.Descriptor{Name: "ollama", Kind: backend.KindLocal},
		invoke: func(_ context.Context, prompt string, _ backend.Params) (*backend.Invocation, error) {
			synthPrompt = prompt
			return &backend.Invocation{Text: "merged view", TokensIn: 50, TokensOut: 20}, nil
		},
	}
	reg := &fakeRegistry{adapters: map[string]backend.Adapter{"ollama": local}}
	led := &fakeLedger{}
	s := New(reg, led, Config{}, nil)

	results := []backend.CallResult{
		result("gpt", backend.KindRemote, 2.5, nil, "answer one"),
		{Backend: local.desc, Content: "answer two"},
	}

	got, err := s.Merge(context.Background(), results)
	require.NoError(t, err)
	assert.Equal(t, "merged view", got.Content)
	assert.True(t, got.Synthesized)
	assert.Zero(t, got.CostUSD, "local synthesis is free")

	assert.Contains(t, synthPrompt, "answer one")
	assert.Contains(t, synthPrompt, "answer two")
	assert.Contains(t, synthPrompt, "gpt")
	assert.True(t, strings.Contains(synthPrompt, "Reconcile"), "instructions precede the answers")
}

func TestMergeBillsSynthesisCall(t *testing.T) {
	remote := &fakeAdapter{
		desc: backend.Descriptor{Name: "cheap", Kind: backend.KindRemote, CostPerKInput: 1.0, CostPerKOutput: 1.0},
		invoke: func(context.Context, string, backend.Params) (*backend.Invocation, error) {
			return &backend.Invocation{Text: "merged", TokensIn: 1000, TokensOut: 1000}, nil
		},
	}
	reg := &fakeRegistry{adapters: map[string]backend.Adapter{"cheap": remote}}
	led := &fakeLedger{}
	s := New(reg, led, Config{}, nil)

	results := []backend.CallResult{
		{Backend: remote.desc, Content: "a"},
		result("pricey", backend.KindRemote, 10.0, nil, "b"),
	}

	got, err := s.Merge(context.Background(), results)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, got.CostUSD, 1e-9)
	assert.InDelta(t, 2.0, led.committed, 1e-9, "synthesis call committed to the ledger")
}

// Synthesis failure falls back to the single best answer instead of failing
// the request.
func TestMergeFallsBackToBestAnswer(t *testing.T) {
	broken := &fakeAdapter{
		desc: backend.Descriptor{Name: "ollama", Kind: backend.KindLocal},
		invoke: func(context.Context, string, backend.Params) (*backend.Invocation, error) {
			return nil, fmt.Errorf("model crashed")
		},
	}
	reg := &fakeRegistry{adapters: map[string]backend.Adapter{"ollama": broken}}
	led := &fakeLedger{}
	s := New(reg, led, Config{}, nil)

	results := []backend.CallResult{
		{Backend: broken.desc, Content: "local answer"},
		result("gpt", backend.KindRemote, 2.5, []string{"code", "reasoning"}, "stronger answer"),
	}

	got, err := s.Merge(context.Background(), results)
	require.NoError(t, err)
	assert.Equal(t, "stronger answer", got.Content, "broader capabilities win the fallback ranking")
	assert.False(t, got.Synthesized)
	assert.Zero(t, got.CostUSD)
	assert.Equal(t, 1, led.released, "failed synthesis releases its reservation")
}

func TestMergeBudgetBlockedFallsBack(t *testing.T) {
	remote := &fakeAdapter{
		desc: backend.Descriptor{Name: "cheap", Kind: backend.KindRemote, CostPerKInput: 1.0, CostPerKOutput: 1.0},
		invoke: func(context.Context, string, backend.Params) (*backend.Invocation, error) {
			t.Fatal("must not be called when the budget blocks the reservation")
			return nil, nil
		},
	}
	reg := &fakeRegistry{adapters: map[string]backend.Adapter{"cheap": remote}}
	led := &fakeLedger{deny: true}
	s := New(reg, led, Config{}, nil)

	results := []backend.CallResult{
		{Backend: remote.desc, Content: "a"},
		result("pricey", backend.KindRemote, 10.0, []string{"code"}, "b"),
	}

	got, err := s.Merge(context.Background(), results)
	require.NoError(t, err)
	assert.Equal(t, "b", got.Content)
	assert.False(t, got.Synthesized)
}
