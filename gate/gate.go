// Package gate is the central authorization checkpoint of the site. Each
// resource ("users", "submissions", "reviews", ...) registers a Policy; route
// guards and handlers ask the Gate whether the current session may act on it.
//
// The Gate is generic over the subject type so policies can be tested with
// plain values; the application uses Gate[*auth.Session].
package gate

import (
	"context"
	"sync"
)

// Gate maps resource names to policies.
type Gate[U comparable] struct {
	mu       sync.RWMutex
	policies map[string]Policy[U]
}

// NewGate creates an empty Gate ready to register policies.
func NewGate[U comparable]() *Gate[U] {
	return &Gate[U]{policies: make(map[string]Policy[U])}
}

// Register adds a policy for resource, replacing any previous one.
func (g *Gate[U]) Register(resource string, p Policy[U]) {
	g.mu.Lock()
	g.policies[resource] = p
	g.mu.Unlock()
}

// Authorize returns ErrUnauthenticated for a zero-value user,
// ErrNoPolicyDefined if resource has no policy and ErrForbidden when the
// policy denies the action.
func (g *Gate[U]) Authorize(ctx context.Context, user U, action Action, resource string, target any) error {
	var zero U
	if user == zero {
		return ErrUnauthenticated
	}
	g.mu.RLock()
	p, ok := g.policies[resource]
	g.mu.RUnlock()
	if !ok {
		return ErrNoPolicyDefined
	}
	if !p.Can(ctx, user, action, target) {
		return ErrForbidden
	}
	return nil
}

// Can is a convenience wrapper returning bool instead of error.
func (g *Gate[U]) Can(ctx context.Context, user U, action Action, resource string, target any) bool {
	return g.Authorize(ctx, user, action, resource, target) == nil
}
