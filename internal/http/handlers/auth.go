package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/geocoder89/userhub/internal/actorctx"
	"github.com/geocoder89/userhub/internal/auth"
	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/gin-gonic/gin"
)

type AuthService interface {
	Login(ctx context.Context, username, password string) (auth.Token, error)
	Register(ctx context.Context, req user.RegisterRequest) (user.User, error)
	Me(ctx context.Context, p *auth.Principal) (user.User, error)
}

type AuthHandler struct {
	svc AuthService
}

func NewAuthHandler(svc AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

type LoginResponse struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// withTimeout bounds the store work of one request while keeping its trace and principal.
func withTimeout(ctx *gin.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), d)
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req user.LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	// bcrypt dominates; give it room
	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	tok, err := h.svc.Login(cctx, req.Username, req.Password)
	if err != nil {
		respondServiceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, LoginResponse{
		AccessToken: tok.Raw,
		TokenType:   "Bearer",
		ExpiresAt:   tok.ExpiresAt,
	})
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req user.RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	created, err := h.svc.Register(cctx, req)
	if err != nil {
		respondServiceError(ctx, err)
		return
	}

	ctx.Header("Location", "/api/users/"+formatID(created.ID))
	ctx.JSON(http.StatusCreated, created)
}

func (h *AuthHandler) Me(ctx *gin.Context) {
	cctx, cancel := withTimeout(ctx, 2*time.Second)
	defer cancel()

	u, err := h.svc.Me(cctx, actorctx.PrincipalFrom(ctx.Request.Context()))
	if err != nil {
		respondServiceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, u)
}
