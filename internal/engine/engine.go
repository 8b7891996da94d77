// Package engine provides the routing engine - Quorum's main orchestrator.
//
// One explicitly constructed Engine per process owns the registry, ledger,
// classifier, policy, dispatcher and synthesizer, and exposes the single
// inbound capability: Complete(RequestSpec) -> Response.
package engine

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/quorum-ai/quorum/internal/classifier"
	"github.com/quorum-ai/quorum/internal/config"
	"github.com/quorum-ai/quorum/internal/dispatch"
	apperrors "github.com/quorum-ai/quorum/internal/errors"
	"github.com/quorum-ai/quorum/internal/ledger"
	"github.com/quorum-ai/quorum/internal/memory"
	"github.com/quorum-ai/quorum/internal/policy"
	"github.com/quorum-ai/quorum/internal/registry"
	"github.com/quorum-ai/quorum/internal/stats"
	"github.com/quorum-ai/quorum/internal/synthesis"
)

// Engine is the routing and consensus orchestrator.
type Engine struct {
	reg        *registry.Registry
	ledger     *ledger.Ledger
	classifier atomic.Pointer[classifier.Classifier]
	policy     *policy.Policy
	dispatcher *dispatch.Dispatcher
	synth      *synthesis.Synthesizer
	recall     memory.Recall
	stats      *stats.Collector
	log        *slog.Logger
}

// Config configures the engine.
type Config struct {
	Registry   *registry.Registry
	Ledger     *ledger.Ledger
	Classifier *classifier.Classifier
	Policy     *policy.Policy
	Dispatcher *dispatch.Dispatcher
	Synth      *synthesis.Synthesizer
	Recall     memory.Recall // nil disables context lookup
	Stats      *stats.Collector
	Logger     *slog.Logger
}

// New creates an engine from explicitly constructed parts.
func New(cfg Config) *Engine {
	e := &Engine{
		reg:        cfg.Registry,
		ledger:     cfg.Ledger,
		policy:     cfg.Policy,
		dispatcher: cfg.Dispatcher,
		synth:      cfg.Synth,
		recall:     cfg.Recall,
		stats:      cfg.Stats,
		log:        cfg.Logger,
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	e.classifier.Store(cfg.Classifier)
	return e
}

// Response is the caller-visible result of one Complete call.
type Response struct {
	Content      string          `json:"content"`
	BackendsUsed []string        `json:"backends_used"`
	TotalCostUSD float64         `json:"total_cost_usd"`
	Tier         classifier.Tier `json:"tier"`
	Consensus    bool            `json:"consensus"`
}

// Complete serves one request: classify, plan, dispatch, and merge.
func (e *Engine) Complete(ctx context.Context, spec policy.RequestSpec) (*Response, error) {
	if strings.TrimSpace(spec.Prompt) == "" {
		return nil, apperrors.New(apperrors.CodeInvalidInput, "prompt must not be empty", apperrors.KindInvalid)
	}

	asked := spec.Prompt
	spec.Prompt = e.withContext(ctx, spec.Prompt)

	var tier classifier.Tier
	if spec.ForceTier != nil {
		tier = *spec.ForceTier
	} else {
		tier = e.classifier.Load().Classify(spec.Prompt)
	}

	plan, err := e.policy.Plan(spec, tier)
	if err != nil {
		return nil, err
	}
	e.log.Debug("routing plan built", "plan", plan.String(), "tier", tier.String())

	outcome, err := e.dispatcher.Complete(ctx, spec, plan)
	if e.stats != nil {
		defer e.stats.RecordRequest()
	}
	if err != nil {
		return nil, err
	}

	merged, err := e.synth.Merge(ctx, outcome.Successes)
	if err != nil {
		return nil, err
	}

	backends := make([]string, len(outcome.Successes))
	for i, r := range outcome.Successes {
		backends[i] = r.Backend.Name
	}

	e.remember(ctx, asked, merged.Content)

	return &Response{
		Content:      merged.Content,
		BackendsUsed: backends,
		TotalCostUSD: outcome.TotalCostUSD + merged.CostUSD,
		Tier:         tier,
		Consensus:    outcome.Consensus && len(outcome.Successes) >= 2,
	}, nil
}

// withContext prepends relevant prior text from the recall collaborator.
// Lookup failures are logged and ignored; context is an enhancement, not a
// dependency.
func (e *Engine) withContext(ctx context.Context, prompt string) string {
	if e.recall == nil {
		return prompt
	}
	snippets, err := e.recall.Lookup(ctx, prompt)
	if err != nil {
		e.log.Warn("context lookup failed", "error", err)
		return prompt
	}
	if len(snippets) == 0 {
		return prompt
	}

	var sb strings.Builder
	sb.WriteString("Relevant context from earlier conversations:\n")
	for _, s := range snippets {
		sb.WriteString("- ")
		sb.WriteString(s)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(prompt)
	return sb.String()
}

// remember stores the exchange for future context lookups. Best effort.
func (e *Engine) remember(ctx context.Context, prompt, answer string) {
	if e.recall == nil || answer == "" {
		return
	}
	if err := e.recall.Remember(ctx, prompt+"\n"+answer); err != nil {
		e.log.Warn("storing exchange failed", "error", err)
	}
}

// ApplyConfig applies the hot-reloadable settings from a freshly loaded
// configuration: budget amount and classifier keywords.
func (e *Engine) ApplyConfig(cfg *config.Config) {
	e.ledger.SetBudget(cfg.Budget.MonthlyUSD)
	e.classifier.Store(classifier.New(classifier.Keywords{
		Critical: cfg.Classifier.CriticalKeywords,
		Complex:  cfg.Classifier.ComplexKeywords,
		Simple:   cfg.Classifier.SimpleKeywords,
	}))
}

// Stats returns a snapshot of usage aggregates, or nil when stats are
// disabled.
func (e *Engine) Stats() *stats.Stats {
	if e.stats == nil {
		return nil
	}
	return e.stats.Snapshot()
}

// Health returns the current per-backend health snapshot.
func (e *Engine) Health() map[string]registry.HealthStatus {
	return e.reg.Snapshot()
}

// Spent returns committed spend in the current billing period.
func (e *Engine) Spent() float64 {
	return e.ledger.Spent()
}
