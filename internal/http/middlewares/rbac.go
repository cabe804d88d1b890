package middlewares

import (
	"errors"
	"strconv"

	"github.com/geocoder89/userhub/internal/actorctx"
	"github.com/geocoder89/userhub/internal/authz"
	"github.com/geocoder89/userhub/internal/http/handlers"
	"github.com/gin-gonic/gin"
)

// RequireRole gates a whole route on a role. It must run after RequireAuth.
func (m *AuthMiddleware) RequireRole(required string) gin.HandlerFunc {
	policy := authz.RequireRole{Role: required}

	return func(c *gin.Context) {
		authorize(c, policy)
	}
}

// RequireRoleOrSelf admits holders of role and the user whose id is in the
// named path param. It must run after RequireAuth and before the body is bound.
// An id that does not parse belongs to nobody.
func (m *AuthMiddleware) RequireRoleOrSelf(role, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, _ := strconv.ParseInt(c.Param(param), 10, 64)

		authorize(c, authz.RequireRoleOrSelf{Role: role, OwnerID: owner})
	}
}

func authorize(c *gin.Context, policy authz.Policy) {
	err := authz.Authorize(actorctx.PrincipalFrom(c.Request.Context()), policy)

	switch {
	case err == nil:
		c.Next()
	case errors.Is(err, authz.ErrUnauthenticated):
		handlers.RespondUnAuthorized(c, "unauthorized", "Missing identity context")
	default:
		handlers.RespondForbidden(c, "You are not allowed to perform this action.")
	}
}
