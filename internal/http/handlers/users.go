package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/geocoder89/userhub/internal/actorctx"
	"github.com/geocoder89/userhub/internal/auth"
	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/gin-gonic/gin"
)

type UsersService interface {
	List(ctx context.Context, p *auth.Principal) ([]user.User, error)
	Get(ctx context.Context, p *auth.Principal, id int64) (user.User, error)
	Update(ctx context.Context, p *auth.Principal, id int64, req user.UpdateRequest) (user.User, error)
	Delete(ctx context.Context, p *auth.Principal, id int64) error
}

type UsersHandler struct {
	svc UsersService
}

func NewUsersHandler(svc UsersService) *UsersHandler {
	return &UsersHandler{svc: svc}
}

type ListUsersResponse struct {
	Items []user.User `json:"items"`
	Count int         `json:"count"`
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func parseID(ctx *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		RespondError(ctx, http.StatusBadRequest, "invalid_id", "User id must be a positive integer.", gin.H{"id": ctx.Param("id")})
		return 0, false
	}

	return id, true
}

func principal(ctx *gin.Context) *auth.Principal {
	return actorctx.PrincipalFrom(ctx.Request.Context())
}

func (h *UsersHandler) List(ctx *gin.Context) {
	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	users, err := h.svc.List(cctx, principal(ctx))
	if err != nil {
		respondServiceError(ctx, err)
		return
	}

	if users == nil {
		users = []user.User{}
	}

	ctx.JSON(http.StatusOK, ListUsersResponse{Items: users, Count: len(users)})
}

func (h *UsersHandler) Get(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		return
	}

	cctx, cancel := withTimeout(ctx, 2*time.Second)
	defer cancel()

	u, err := h.svc.Get(cctx, principal(ctx), id)
	if err != nil {
		respondServiceError(ctx, err)
		return
	}

	respondWithETag(ctx, u)
}

func (h *UsersHandler) Update(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		return
	}

	var req user.UpdateRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	u, err := h.svc.Update(cctx, principal(ctx), id, req)
	if err != nil {
		respondServiceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, u)
}

func (h *UsersHandler) Delete(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := h.svc.Delete(cctx, principal(ctx), id); err != nil {
		respondServiceError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}
