// Package policy implements backend selection: given a complexity tier, the
// registry's health view and the remaining budget, it picks one primary
// backend plus an ordered fallback list, or a participant set for consensus.
package policy

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/quorum-ai/quorum/internal/backend"
	"github.com/quorum-ai/quorum/internal/classifier"
	"github.com/quorum-ai/quorum/internal/errors"
)

// Registry is the health/inventory view the policy consults.
type Registry interface {
	All() []backend.Descriptor
	IsOpen(name string) bool
	SuccessRate(name string) float64
}

// Ledger is the budget view the policy reserves against.
type Ledger interface {
	TryReserve(amountUSD float64) (string, bool)
	Release(reservationID string)
}

// Config configures the policy.
type Config struct {
	// ConsensusSize is the fan-out width for consensus plans. Clamped to
	// at least 2; default 3.
	ConsensusSize int
}

// Policy builds routing plans.
type Policy struct {
	reg    Registry
	ledger Ledger
	cfg    Config
	log    *slog.Logger
}

// New creates a policy. logger may be nil.
func New(reg Registry, ledger Ledger, cfg Config, logger *slog.Logger) *Policy {
	if cfg.ConsensusSize < 2 {
		cfg.ConsensusSize = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Policy{reg: reg, ledger: ledger, cfg: cfg, log: logger}
}

// candidate pairs a descriptor with its per-request scoring inputs.
type candidate struct {
	desc        backend.Descriptor
	estCost     float64
	overlap     int
	successRate float64
}

// Plan builds the routing plan for one request.
//
// Returns an error only when no backend can serve the request: every
// candidate filtered out (NoBackendAvailable), or every paid candidate
// blocked by budget with no free local to fall back on (BudgetExceeded).
func (p *Policy) Plan(spec RequestSpec, tier classifier.Tier) (*Plan, error) {
	// Forced backend short-circuits the whole algorithm when usable.
	if spec.ForceBackend != "" {
		if plan, ok := p.planForced(spec, tier); ok {
			return plan, nil
		}
		// Missing or circuit-open forced backend falls through to normal
		// selection rather than failing the request.
	}

	candidates, viable := p.gather(spec)

	if len(candidates) == 0 {
		// Last-resort exception: a single backend whose circuit is open is
		// still used when it is the only one that could serve the request.
		if len(viable) == 1 {
			p.log.Warn("routing to sole backend despite open circuit",
				"backend", viable[0].desc.Name)
			candidates = viable
		} else {
			return nil, errors.NoBackend("no backend can serve this request")
		}
	}

	consensus := spec.RequireConsensus || tier == classifier.TierCritical

	ordered, err := p.order(candidates, spec, tier)
	if err != nil {
		return nil, err
	}

	if consensus {
		if plan, ok := p.planConsensus(ordered, tier); ok {
			return plan, nil
		}
		// Not enough reservable participants for a quorum: degrade to a
		// single-backend plan. The response's consensus field tells the
		// caller quality was reduced.
		p.log.Warn("consensus degraded to single backend", "tier", tier.String())
	}

	return p.planSingle(ordered, tier)
}

// planForced builds a single-backend plan for spec.ForceBackend. ok is false
// when the backend is unknown or its circuit is open.
func (p *Policy) planForced(spec RequestSpec, tier classifier.Tier) (*Plan, bool) {
	var desc backend.Descriptor
	found := false
	for _, d := range p.reg.All() {
		if d.Name == spec.ForceBackend {
			desc, found = d, true
			break
		}
	}
	if !found || p.reg.IsOpen(desc.Name) {
		return nil, false
	}

	est := desc.EstimateCostUSD(spec.Prompt, spec.MaxOutputTokens)
	resID, ok := p.ledger.TryReserve(est)
	if !ok {
		return nil, false
	}

	return &Plan{
		Participants: []Participant{{
			Backend:          desc,
			ReservationID:    resID,
			EstimatedCostUSD: est,
		}},
		Tier:             tier,
		EstimatedCostUSD: est,
		Reason:           fmt.Sprintf("backend %s forced by request", desc.Name),
	}, true
}

// gather filters registry backends into candidates. viable holds backends
// that pass every filter except the circuit check, for the last-resort path.
func (p *Policy) gather(spec RequestSpec) (candidates, viable []candidate) {
	promptTokens := backend.EstimateTokens(spec.Prompt)

	for _, d := range p.reg.All() {
		if d.MaxContextTokens < promptTokens {
			continue
		}
		est := d.EstimateCostUSD(spec.Prompt, spec.MaxOutputTokens)
		if spec.MaxCostUSD > 0 && est > spec.MaxCostUSD {
			continue
		}

		c := candidate{
			desc:        d,
			estCost:     est,
			overlap:     overlapScore(d, classifier.Signals(spec.Prompt)),
			successRate: p.reg.SuccessRate(d.Name),
		}
		viable = append(viable, c)
		if !p.reg.IsOpen(d.Name) {
			candidates = append(candidates, c)
		}
	}
	return candidates, viable
}

// order applies the tier's backend-kind preference and ranks within it.
func (p *Policy) order(candidates []candidate, spec RequestSpec, tier classifier.Tier) ([]candidate, error) {
	var locals, remotes []candidate
	for _, c := range candidates {
		if c.desc.IsLocal() {
			locals = append(locals, c)
		} else {
			remotes = append(remotes, c)
		}
	}
	rank(locals)
	rank(remotes)

	switch tier {
	case classifier.TierSimple:
		// Local only; remotes considered solely when no local exists.
		if len(locals) > 0 {
			return locals, nil
		}
		return remotes, nil
	case classifier.TierMedium:
		return append(locals, remotes...), nil
	case classifier.TierComplex:
		return append(remotes, locals...), nil
	case classifier.TierCritical:
		if len(remotes) == 0 {
			return nil, errors.NoBackend("critical tier requires a remote backend")
		}
		return append(remotes, locals...), nil
	default:
		return append(locals, remotes...), nil
	}
}

// rank sorts candidates by capability overlap (desc), estimated cost (asc),
// recent success rate (desc), then name for determinism.
func rank(cs []candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.overlap != b.overlap {
			return a.overlap > b.overlap
		}
		if a.estCost != b.estCost {
			return a.estCost < b.estCost
		}
		if a.successRate != b.successRate {
			return a.successRate > b.successRate
		}
		return a.desc.Name < b.desc.Name
	})
}

func overlapScore(d backend.Descriptor, signals []string) int {
	score := 0
	for _, tag := range signals {
		if d.HasCapability(tag) {
			score++
		}
	}
	return score
}

// planSingle reserves the primary and lines up the rest as fallbacks.
//
// When the top-ranked candidate's reservation fails, demotion walks the
// remaining candidates cheapest-first; a local (free) backend always
// reserves, so a request is never rejected for budget reasons while a local
// can serve it.
func (p *Policy) planSingle(ordered []candidate, tier classifier.Tier) (*Plan, error) {
	primaryIdx := -1
	var resID string

	if id, ok := p.ledger.TryReserve(ordered[0].estCost); ok {
		primaryIdx, resID = 0, id
	} else {
		byCost := make([]int, 0, len(ordered)-1)
		for i := 1; i < len(ordered); i++ {
			byCost = append(byCost, i)
		}
		sort.SliceStable(byCost, func(a, b int) bool {
			return ordered[byCost[a]].estCost < ordered[byCost[b]].estCost
		})
		for _, i := range byCost {
			if id, ok := p.ledger.TryReserve(ordered[i].estCost); ok {
				primaryIdx, resID = i, id
				break
			}
		}
	}

	if primaryIdx < 0 {
		return nil, errors.BudgetExceeded("monthly budget exhausted and no local backend available")
	}

	primary := ordered[primaryIdx]
	parts := []Participant{{
		Backend:          primary.desc,
		ReservationID:    resID,
		EstimatedCostUSD: primary.estCost,
	}}
	for i, c := range ordered {
		if i == primaryIdx {
			continue
		}
		parts = append(parts, Participant{
			Backend:          c.desc,
			EstimatedCostUSD: c.estCost,
		})
	}

	reason := fmt.Sprintf("%s tier: primary %s, %d fallback(s)", tier, primary.desc.Name, len(parts)-1)
	return &Plan{
		Participants:     parts,
		Tier:             tier,
		EstimatedCostUSD: primary.estCost,
		Reason:           reason,
	}, nil
}

// planConsensus reserves the top-N distinct candidates. ok is false when
// fewer than two participants could be reserved; held reservations are
// released before returning.
func (p *Policy) planConsensus(ordered []candidate, tier classifier.Tier) (*Plan, bool) {
	n := p.cfg.ConsensusSize

	var parts []Participant
	var total float64
	for _, c := range ordered {
		if len(parts) == n {
			break
		}
		resID, ok := p.ledger.TryReserve(c.estCost)
		if !ok {
			continue
		}
		parts = append(parts, Participant{
			Backend:          c.desc,
			ReservationID:    resID,
			EstimatedCostUSD: c.estCost,
			Consensus:        true,
		})
		total += c.estCost
	}

	if len(parts) < 2 {
		for _, part := range parts {
			p.ledger.Release(part.ReservationID)
		}
		return nil, false
	}

	plan := &Plan{
		Participants:     parts,
		Consensus:        true,
		Tier:             tier,
		EstimatedCostUSD: total,
		Reason:           fmt.Sprintf("%s tier: consensus across %d backends", tier, len(parts)),
	}
	return plan, true
}
