// ABOUTME: Authenticated identity carried through request handlers
// ABOUTME: WithAuth/FromContext propagate it via context.Context

package auth

import (
	"context"
	"slices"
)

// AuthContext is the authenticated caller.
type AuthContext struct {
	PrincipalID string
	Roles       []string
}

// Anonymous is injected when authentication is disabled.
var Anonymous = &AuthContext{PrincipalID: "anonymous", Roles: []string{RoleOperator, RoleAdmin}}

// IsAdmin reports whether the caller holds the admin role.
func (a *AuthContext) IsAdmin() bool {
	return slices.Contains(a.Roles, RoleAdmin)
}

// Actor is the audit actor name for the caller.
func (a *AuthContext) Actor() string {
	if a == nil {
		return "system"
	}
	return a.PrincipalID
}

type authContextKey struct{}

// WithAuth attaches a to ctx.
func WithAuth(ctx context.Context, a *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, a)
}

// FromContext returns the AuthContext, or nil.
func FromContext(ctx context.Context) *AuthContext {
	a, _ := ctx.Value(authContextKey{}).(*AuthContext)
	return a
}

func fromClaims(c *Claims) *AuthContext {
	return &AuthContext{PrincipalID: c.Subject, Roles: slices.Clone(c.Roles)}
}
