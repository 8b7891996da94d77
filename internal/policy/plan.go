package policy

import (
	"strings"

	"github.com/quorum-ai/quorum/internal/backend"
	"github.com/quorum-ai/quorum/internal/classifier"
)

// Participant is one backend slot in a routing plan.
type Participant struct {
	Backend backend.Descriptor

	// ReservationID is the budget reservation held for this participant.
	// Empty for fallback slots, which re-reserve at dispatch time.
	ReservationID string

	// EstimatedCostUSD is the pre-call cost estimate for this backend.
	EstimatedCostUSD float64

	// Consensus marks the slot as a consensus fan-out participant rather
	// than a fallback in the single-call chain.
	Consensus bool
}

// Plan is the ordered execution plan for one request. Lifetime: one request.
type Plan struct {
	// Participants is the ordered backend list. In single mode the first
	// entry is the primary and the rest are fallbacks; in consensus mode
	// every entry is invoked concurrently.
	Participants []Participant

	// Consensus reports whether the plan fans out.
	Consensus bool

	// Tier is the complexity tier the plan was built for.
	Tier classifier.Tier

	// EstimatedCostUSD is the total reserved estimate across participants.
	EstimatedCostUSD float64

	// Reason explains the routing decision, for transparency.
	Reason string
}

// Primary returns the first participant.
func (p *Plan) Primary() Participant {
	return p.Participants[0]
}

// BackendNames returns the participant names in plan order.
func (p *Plan) BackendNames() []string {
	names := make([]string, len(p.Participants))
	for i, part := range p.Participants {
		names[i] = part.Backend.Name
	}
	return names
}

// String summarizes the plan for logging.
func (p *Plan) String() string {
	mode := "single"
	if p.Consensus {
		mode = "consensus"
	}
	return mode + "[" + strings.Join(p.BackendNames(), ",") + "] " + p.Reason
}
