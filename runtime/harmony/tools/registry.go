package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"goa.design/harmony/runtime/harmony/caseless"
)

// Registry is a concurrent in-memory tool catalog implementing both Router
// and Availability. Recipients are keyed case-insensitively. All operations
// are thread-safe via sync.RWMutex.
type Registry struct {
	mu       sync.RWMutex
	handlers *caseless.Map[Handler]
}

var (
	_ Router       = (*Registry)(nil)
	_ Availability = (*Registry)(nil)
)

// NewRegistry constructs an empty Registry ready for registration.
func NewRegistry() *Registry {
	return &Registry{handlers: caseless.New[Handler]()}
}

// Register binds recipient to handler, replacing any previous binding.
func (r *Registry) Register(recipient Ident, handler Handler) error {
	if recipient == "" {
		return fmt.Errorf("tool recipient is required")
	}
	if handler == nil {
		return fmt.Errorf("tool handler is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers.Set(recipient.String(), handler)
	return nil
}

// Unregister removes the binding for recipient. Removing an unknown
// recipient is a no-op.
func (r *Registry) Unregister(recipient Ident) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers.Delete(recipient.String())
}

// Invoke dispatches to the registered handler. Returns ErrToolNotFound when
// recipient has no binding.
func (r *Registry) Invoke(ctx context.Context, recipient Ident, args map[string]any) (any, error) {
	r.mu.RLock()
	handler, ok := r.handlers.Get(recipient.String())
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("invoke %q: %w", recipient, ErrToolNotFound)
	}
	return handler(ctx, args)
}

// IsAvailable reports whether recipient has a registered handler.
func (r *Registry) IsAvailable(_ context.Context, recipient Ident) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers.Has(recipient.String()), nil
}

// ListAvailable returns all registered recipients in sorted order.
func (r *Registry) ListAvailable(_ context.Context) ([]Ident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := r.handlers.Keys()
	idents := make([]Ident, len(keys))
	for i, k := range keys {
		idents[i] = Ident(k)
	}
	sort.Slice(idents, func(i, j int) bool { return idents[i] < idents[j] })
	return idents, nil
}
