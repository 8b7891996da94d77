// Package backend provides the uniform adapter interface and its
// concrete local and remote implementations.
package backend

import "context"

// Adapter wraps one concrete model backend behind a uniform call.
//
// Implementations must be stateless apart from their HTTP client and safe
// for unlimited concurrent use; they never mutate shared state. Errors are
// classified through the internal/errors kinds (rate-limited, unavailable,
// invalid) so the dispatcher can branch on them.
type Adapter interface {
	// Invoke runs one completion against the backend.
	Invoke(ctx context.Context, prompt string, params Params) (*Invocation, error)

	// Descriptor returns the backend's immutable identity.
	Descriptor() Descriptor
}
