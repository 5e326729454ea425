package gate

import (
	"context"

	"github.com/ioea/academy/auth"
)

// RolePolicy grants actions on a resource to the holders of given roles.
// A session needs any one of the listed roles; rules for ActionAny apply to
// every action.
type RolePolicy struct {
	rules map[Action][]auth.Role
}

// NewRolePolicy creates a policy that denies everything until Allow is called.
func NewRolePolicy() *RolePolicy {
	return &RolePolicy{rules: make(map[Action][]auth.Role)}
}

// Allow grants action to roles and returns p for chaining.
func (p *RolePolicy) Allow(action Action, roles ...auth.Role) *RolePolicy {
	p.rules[action] = append(p.rules[action], roles...)
	return p
}

// Can implements Policy[*auth.Session].
func (p *RolePolicy) Can(_ context.Context, s *auth.Session, action Action, _ any) bool {
	if s == nil {
		return false
	}
	if auth.HasAnyRole(s, p.rules[action]...) {
		return true
	}
	return auth.HasAnyRole(s, p.rules[ActionAny]...)
}
