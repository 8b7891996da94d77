package classifier

import "strings"

// Default keyword sets. Overridable through configuration; the defaults
// cover the terms that most reliably separate tiers in practice.

var defaultCriticalKeywords = []string{
	"production", "emergency", "outage", "incident",
	"safety", "security breach", "data loss", "urgent",
}

var defaultComplexKeywords = []string{
	"analyze", "analysis", "architect", "architecture",
	"strategy", "design", "trade-off", "tradeoff",
	"investigate", "research", "deep dive", "comprehensive",
	"refactor", "optimize", "prove",
}

var defaultSimpleKeywords = []string{
	"list", "format", "rename", "translate",
	"what is", "define", "summarize", "convert",
}

// Capability signal keywords, used by routing to rank backends by
// capability-tag overlap with the task.

var signalKeywords = map[string][]string{
	"code": {
		"code", "function", "bug", "compile", "refactor",
		"test", "debug", "implement", "script",
	},
	"reasoning": {
		"why", "explain", "analyze", "prove", "reason",
		"compare", "trade-off", "architect", "strategy",
	},
	"creative": {
		"write", "story", "poem", "compose", "creative",
		"brainstorm", "name ideas",
	},
}

// Signals returns the capability tags suggested by the prompt text, e.g. a
// prompt mentioning "bug" or "function" signals the "code" capability.
func Signals(prompt string) []string {
	lower := strings.ToLower(prompt)

	var tags []string
	for _, tag := range []string{"code", "reasoning", "creative"} {
		if matchAny(lower, signalKeywords[tag]) {
			tags = append(tags, tag)
		}
	}
	return tags
}
