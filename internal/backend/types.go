// Package backend provides types for model backend operations.
package backend

import "time"

// Kind distinguishes free local backends from metered remote ones.
type Kind string

const (
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
)

// Descriptor identifies one configured backend. Immutable once registered.
type Descriptor struct {
	Name             string   `json:"name"`
	Kind             Kind     `json:"kind"`
	ModelID          string   `json:"model_id"`
	CostPerKInput    float64  `json:"cost_per_k_input"`  // USD per 1K input tokens, 0 for local
	CostPerKOutput   float64  `json:"cost_per_k_output"` // USD per 1K output tokens, 0 for local
	MaxContextTokens int      `json:"max_context_tokens"`
	Capabilities     []string `json:"capabilities"` // e.g. "code", "reasoning", "creative"
}

// IsLocal reports whether the backend runs locally (free).
func (d Descriptor) IsLocal() bool {
	return d.Kind == KindLocal
}

// HasCapability reports whether the backend carries the given capability tag.
func (d Descriptor) HasCapability(tag string) bool {
	for _, c := range d.Capabilities {
		if c == tag {
			return true
		}
	}
	return false
}

// CostUSD returns the metered cost for the given token counts.
func (d Descriptor) CostUSD(tokensIn, tokensOut int) float64 {
	return float64(tokensIn)/1000.0*d.CostPerKInput +
		float64(tokensOut)/1000.0*d.CostPerKOutput
}

// EstimateCostUSD estimates the cost of a prompt before the call, assuming
// the output runs to maxOutput tokens (or a conservative default when 0).
func (d Descriptor) EstimateCostUSD(prompt string, maxOutput int) float64 {
	if maxOutput <= 0 {
		maxOutput = defaultOutputEstimate
	}
	return d.CostUSD(EstimateTokens(prompt), maxOutput)
}

const defaultOutputEstimate = 1024

// EstimateTokens approximates the token count of text. Four characters per
// token is the usual English-text rule of thumb.
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// Params are the per-call generation parameters.
type Params struct {
	Temperature     float64
	MaxOutputTokens int
}

// Invocation is the raw outcome of one successful backend call.
type Invocation struct {
	Text      string
	TokensIn  int
	TokensOut int
}

// CallResult is the per-backend outcome collected during dispatch, including
// failed attempts. Fed to the synthesizer, then discarded.
type CallResult struct {
	Backend   Descriptor
	Content   string
	TokensIn  int
	TokensOut int
	Latency   time.Duration
	CostUSD   float64
	Err       error
}

// OK reports whether the call produced a usable answer.
func (r CallResult) OK() bool {
	return r.Err == nil
}
