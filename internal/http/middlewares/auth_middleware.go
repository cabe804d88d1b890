package middlewares

import (
	"errors"
	"strings"

	"github.com/geocoder89/userhub/internal/actorctx"
	"github.com/geocoder89/userhub/internal/auth"
	"github.com/geocoder89/userhub/internal/http/handlers"
	"github.com/gin-gonic/gin"
)

// Keep this small interface so tests can fake it easily.
type TokenVerifier interface {
	Verify(raw string) (*auth.Principal, error)
}

// VerificationRecorder receives one result label per verification attempt.
type VerificationRecorder interface {
	ObserveTokenVerification(result string)
}

type AuthMiddleware struct {
	jwt      TokenVerifier
	recorder VerificationRecorder
}

func NewAuthMiddleware(jwt TokenVerifier, recorder VerificationRecorder) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt, recorder: recorder}
}

func (m *AuthMiddleware) observe(result string) {
	if m.recorder != nil {
		m.recorder.ObserveTokenVerification(result)
	}
}

// RequireAuth rejects the request unless it carries a valid bearer token, and
// otherwise attaches the verified principal to the request context.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			m.observe("missing")
			handlers.RespondUnAuthorized(c, "unauthorized", "Missing or invalid Authorization header")
			return
		}

		raw := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
		if raw == "" {
			m.observe("missing")
			handlers.RespondUnAuthorized(c, "unauthorized", "Missing or invalid access token")
			return
		}

		p, err := m.jwt.Verify(raw)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrExpired):
				m.observe("expired")
				handlers.RespondUnAuthorized(c, "token_expired", "Session expired, please log in again.")
			case errors.Is(err, auth.ErrInvalidSignature):
				m.observe("invalid_signature")
				handlers.RespondUnAuthorized(c, "invalid_token", "Access token is invalid.")
			default:
				m.observe("malformed")
				handlers.RespondUnAuthorized(c, "malformed_token", "Access token is malformed.")
			}
			return
		}

		m.observe("ok")

		c.Request = c.Request.WithContext(actorctx.WithPrincipal(c.Request.Context(), p))
		c.Set(CtxUserID, p.UserID)
		c.Set(CtxUsername, p.Username)

		c.Next()
	}
}

func UserIDFromContext(c *gin.Context) (int64, bool) {
	v, ok := c.Get(CtxUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
