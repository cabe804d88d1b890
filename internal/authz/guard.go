// Package authz decides whether a verified principal may perform an operation.
// Policies are plain values handed to Authorize at the call site.
package authz

import (
	"errors"

	"github.com/geocoder89/userhub/internal/auth"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("operation not permitted")
)

type Policy interface {
	allows(p *auth.Principal) bool
	String() string
}

// Authenticated admits any verified principal.
type Authenticated struct{}

// RequireRole admits principals holding Role.
type RequireRole struct {
	Role string
}

// RequireRoleOrSelf admits principals holding Role, or the owner of the resource.
type RequireRoleOrSelf struct {
	Role    string
	OwnerID int64
}

func (Authenticated) allows(p *auth.Principal) bool { return true }

func (Authenticated) String() string { return "authenticated" }

func (r RequireRole) allows(p *auth.Principal) bool {
	return p.HasRole(r.Role)
}

func (r RequireRole) String() string { return "role:" + r.Role }

func (r RequireRoleOrSelf) allows(p *auth.Principal) bool {
	return p.HasRole(r.Role) || p.UserID == r.OwnerID
}

func (r RequireRoleOrSelf) String() string { return "role_or_self:" + r.Role }

// Authorize is pure: a nil principal is unauthenticated, a failed policy is forbidden.
func Authorize(p *auth.Principal, policy Policy) error {
	if p == nil {
		return ErrUnauthenticated
	}

	if policy == nil || !policy.allows(p) {
		return ErrForbidden
	}

	return nil
}
