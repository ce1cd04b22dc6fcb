// Package tools defines the tool-side collaborator contracts consumed by the
// harmony engine: the Router that dispatches invocations, the Availability
// oracle consulted by preflight, a concurrent in-memory Registry implementing
// both, and the Recorder that captures per-invocation traces.
package tools

import (
	"context"
	"errors"
	"strings"
)

// Ident is the strong type for tool recipients. Recipients are canonical
// strings of the form "plugin.function". Use this type in maps and APIs to
// avoid mixing with free-form strings and to document intent at call sites.
type Ident string

// String returns the string representation of the identifier.
func (id Ident) String() string {
	return string(id)
}

// Plugin returns the plugin component of the identifier.
func (id Ident) Plugin() string {
	parts := strings.Split(string(id), ".")
	if len(parts) < 2 {
		return ""
	}
	return parts[0]
}

// Function returns the function component of the identifier.
func (id Ident) Function() string {
	parts := strings.Split(string(id), ".")
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

type (
	// Router dispatches tool invocations to their backing implementation.
	// Failures propagate to the caller; the engine records them but does not
	// retry.
	Router interface {
		// Invoke calls the tool identified by recipient with the given
		// arguments and returns its JSON-encodable result.
		Invoke(ctx context.Context, recipient Ident, args map[string]any) (any, error)
	}

	// Availability answers preflight queries about tool presence.
	Availability interface {
		// IsAvailable reports whether recipient can be invoked.
		IsAvailable(ctx context.Context, recipient Ident) (bool, error)
		// ListAvailable returns all invocable recipients. May be empty.
		ListAvailable(ctx context.Context) ([]Ident, error)
	}

	// Handler is the function form of a tool implementation.
	Handler func(ctx context.Context, args map[string]any) (any, error)
)

// ErrToolNotFound indicates the requested recipient has no registered handler.
var ErrToolNotFound = errors.New("tool not found")
