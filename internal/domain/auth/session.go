// Package auth carries the authenticated session identity through request
// contexts. Identity is issued by an external provider; this package only
// reads it. There is no ambient or global session state.
package auth

import "context"

// Role names recognised by the admin surface.
const (
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// Session is the narrow, read-only identity attached to a request.
type Session struct {
	UserID string
	Email  string
	Roles  []string
}

// HasRole reports whether the session carries the given role.
func (s Session) HasRole(role string) bool {
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the session may use the admin surface.
func (s Session) IsAdmin() bool {
	return s.HasRole(RoleAdmin) || s.HasRole(RoleSuperAdmin)
}

type sessionKey struct{}

// WithSession returns a context carrying the session.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext extracts the session from the context.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}
