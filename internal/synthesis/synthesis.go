// Package synthesis merges multiple backend answers into one response.
//
// A single successful answer passes through verbatim. Two or more are
// reconciled by one extra completion on the cheapest successful backend;
// that call is reserved and committed like any other. If synthesis itself
// fails, the best single answer is returned instead — synthesis failure
// never fails the overall request.
package synthesis

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/quorum-ai/quorum/internal/backend"
)

// Registry is the adapter lookup the synthesizer needs.
type Registry interface {
	Get(name string) (backend.Adapter, bool)
	ReportOutcome(name string, success bool)
}

// Ledger is the budget protocol around the synthesis call.
type Ledger interface {
	TryReserve(amountUSD float64) (string, bool)
	Commit(reservationID string, actualUSD float64)
	Release(reservationID string)
}

// Config configures the synthesizer.
type Config struct {
	// CallTimeout bounds the synthesis call. Default 30s.
	CallTimeout time.Duration
}

// Synthesizer merges consensus answers.
type Synthesizer struct {
	reg    Registry
	ledger Ledger
	cfg    Config
	log    *slog.Logger
}

// New creates a synthesizer. logger may be nil.
func New(reg Registry, ledger Ledger, cfg Config, logger *slog.Logger) *Synthesizer {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{reg: reg, ledger: ledger, cfg: cfg, log: logger}
}

// Result is the merged answer.
type Result struct {
	Content string

	// Synthesized is true when a merge call produced the content, false
	// when a single answer passed through or synthesis fell back.
	Synthesized bool

	// CostUSD is the extra spend of the synthesis call, if any.
	CostUSD float64
}

// Merge reduces the successful call results to one answer. results must be
// non-empty.
func (s *Synthesizer) Merge(ctx context.Context, results []backend.CallResult) (*Result, error) {
	if len(results) == 0 {
		return nil, fmt.Errorf("no results to merge")
	}
	if len(results) == 1 {
		return &Result{Content: results[0].Content}, nil
	}

	merged, cost, err := s.synthesize(ctx, results)
	if err != nil {
		s.log.Warn("synthesis failed, returning best single answer", "error", err)
		return &Result{Content: bestAnswer(results).Content}, nil
	}
	return &Result{Content: merged, Synthesized: true, CostUSD: cost}, nil
}

// synthesize issues the merge completion on the cheapest successful backend.
func (s *Synthesizer) synthesize(ctx context.Context, results []backend.CallResult) (string, float64, error) {
	target := cheapest(results)
	adapter, ok := s.reg.Get(target.Backend.Name)
	if !ok {
		return "", 0, fmt.Errorf("backend %s not registered", target.Backend.Name)
	}

	prompt := buildPrompt(results)
	resID, ok := s.ledger.TryReserve(target.Backend.EstimateCostUSD(prompt, 0))
	if !ok {
		return "", 0, fmt.Errorf("budget blocks synthesis call")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	inv, err := adapter.Invoke(callCtx, prompt, backend.Params{})
	s.reg.ReportOutcome(target.Backend.Name, err == nil)
	if err != nil {
		s.ledger.Release(resID)
		return "", 0, err
	}

	cost := target.Backend.CostUSD(inv.TokensIn, inv.TokensOut)
	s.ledger.Commit(resID, cost)
	return inv.Text, cost, nil
}

// cheapest returns the successful result whose backend has the lowest
// pricing; a local backend always wins.
func cheapest(results []backend.CallResult) backend.CallResult {
	best := results[0]
	for _, r := range results[1:] {
		if pricing(r.Backend) < pricing(best.Backend) {
			best = r
		}
	}
	return best
}

// bestAnswer ranks successful answers by backend capability breadth, using
// pricing as the tiebreaker on the theory that the pricier model is the
// stronger one.
func bestAnswer(results []backend.CallResult) backend.CallResult {
	ranked := make([]backend.CallResult, len(results))
	copy(ranked, results)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i].Backend, ranked[j].Backend
		if len(a.Capabilities) != len(b.Capabilities) {
			return len(a.Capabilities) > len(b.Capabilities)
		}
		return pricing(a) > pricing(b)
	})
	return ranked[0]
}

func pricing(d backend.Descriptor) float64 {
	return d.CostPerKInput + d.CostPerKOutput
}

func buildPrompt(results []backend.CallResult) string {
	var sb strings.Builder
	sb.WriteString("Multiple assistants answered the same question. ")
	sb.WriteString("Reconcile their answers into a single response: keep every point they agree on, ")
	sb.WriteString("resolve contradictions in favor of the better-supported claim, and remove duplication. ")
	sb.WriteString("Reply with the merged answer only.\n")
	for i, r := range results {
		fmt.Fprintf(&sb, "\n--- Answer %d (from %s) ---\n%s\n", i+1, r.Backend.Name, r.Content)
	}
	return sb.String()
}
