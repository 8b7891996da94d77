// Package policy turns a classified request into a routing plan.
package policy

import "github.com/quorum-ai/quorum/internal/classifier"

// RequestSpec is one inbound ask. Created per call, discarded after the
// response is produced.
type RequestSpec struct {
	// Prompt is the text to complete. Must be non-empty.
	Prompt string

	// ForceBackend pins the request to the named backend when it exists and
	// its circuit is closed.
	ForceBackend string

	// ForceTier overrides the classifier's tier when non-nil.
	ForceTier *classifier.Tier

	// RequireConsensus fans the request out to multiple backends and merges
	// their answers. Forced true for critical-tier requests.
	RequireConsensus bool

	// MaxCostUSD bounds backend choice for this call. 0 means no per-call cap.
	MaxCostUSD float64

	// Temperature and MaxOutputTokens are passed through to the backend.
	Temperature     float64
	MaxOutputTokens int
}
