// Package classifier maps a prompt to a complexity tier.
//
// Classification is a pure function of the prompt text: keyword sets plus
// length thresholds, checked in priority order. Ties resolve toward the
// higher tier so a hard task is never starved of capability.
package classifier

import (
	"fmt"
	"strings"
)

// Tier represents the complexity tier of a request, driving routing
// aggressiveness.
type Tier int

const (
	// TierSimple requests are served by the free local backend.
	TierSimple Tier = iota
	// TierMedium requests prefer local, with remote allowed as fallback.
	TierMedium
	// TierComplex requests prefer the best-capability remote backend.
	TierComplex
	// TierCritical requests require remote backends and forced consensus.
	TierCritical
)

// String returns the tier name.
func (t Tier) String() string {
	switch t {
	case TierSimple:
		return "simple"
	case TierMedium:
		return "medium"
	case TierComplex:
		return "complex"
	case TierCritical:
		return "critical"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// ParseTier parses a tier name. Used for the force-tier request option.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "simple":
		return TierSimple, nil
	case "medium":
		return TierMedium, nil
	case "complex":
		return TierComplex, nil
	case "critical":
		return TierCritical, nil
	default:
		return TierMedium, fmt.Errorf("unknown tier %q", s)
	}
}

// Thresholds are the length cutoffs used alongside keyword matching.
const (
	// complexLengthChars promotes any very long prompt to TierComplex.
	complexLengthChars = 5000
	// simpleLengthChars is the maximum length for a TierSimple prompt.
	simpleLengthChars = 200
)

// Classifier classifies prompts using configurable keyword sets.
type Classifier struct {
	critical []string
	complex  []string
	simple   []string
}

// Keywords configures the classifier's keyword sets. Empty slices fall back
// to the defaults.
type Keywords struct {
	Critical []string
	Complex  []string
	Simple   []string
}

// New creates a classifier.
func New(kw Keywords) *Classifier {
	c := &Classifier{
		critical: lowerAll(kw.Critical),
		complex:  lowerAll(kw.Complex),
		simple:   lowerAll(kw.Simple),
	}
	if len(c.critical) == 0 {
		c.critical = defaultCriticalKeywords
	}
	if len(c.complex) == 0 {
		c.complex = defaultComplexKeywords
	}
	if len(c.simple) == 0 {
		c.simple = defaultSimpleKeywords
	}
	return c
}

// Classify returns the complexity tier for a prompt.
//
// Priority order:
//  1. Critical keyword match -> TierCritical
//  2. Length > 5000 chars, or complex keyword match -> TierComplex
//  3. Simple keyword match and length < 200 chars -> TierSimple
//  4. Everything else -> TierMedium
func (c *Classifier) Classify(prompt string) Tier {
	lower := strings.ToLower(prompt)

	if matchAny(lower, c.critical) {
		return TierCritical
	}
	if len(prompt) > complexLengthChars || matchAny(lower, c.complex) {
		return TierComplex
	}
	if len(prompt) < simpleLengthChars && matchAny(lower, c.simple) {
		return TierSimple
	}
	return TierMedium
}

func matchAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
