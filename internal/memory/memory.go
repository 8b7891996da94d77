// Package memory provides the context-lookup collaborator.
//
// The engine prepends relevant prior text to a prompt before classification
// and dispatch. How that text is produced is outside the routing core; this
// package ships a keyword-match SQLite store and a no-op implementation.
package memory

import "context"

// Recall looks up prior text relevant to a prompt.
type Recall interface {
	// Lookup returns relevant snippets for the prompt, most relevant first.
	Lookup(ctx context.Context, prompt string) ([]string, error)

	// Remember stores a snippet for future lookups.
	Remember(ctx context.Context, text string) error
}

// Noop is a Recall that remembers nothing.
type Noop struct{}

// Lookup always returns no snippets.
func (Noop) Lookup(ctx context.Context, prompt string) ([]string, error) {
	return nil, nil
}

// Remember discards the snippet.
func (Noop) Remember(ctx context.Context, text string) error {
	return nil
}
