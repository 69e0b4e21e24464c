package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"marmora/internal/core/apperror"
	appctx "marmora/internal/core/context"
	"marmora/internal/domain/auth"
	"marmora/internal/infrastructure/http/v1/dto"
	"marmora/internal/infrastructure/http/v1/middleware"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	*BaseHandler
	service *auth.Service
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(base *BaseHandler, service *auth.Service) *AuthHandler {
	return &AuthHandler{
		BaseHandler: base,
		service:     service,
	}
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.LoginRequest
	if !h.BindJSON(c, &req) {
		return
	}

	token, user, err := h.service.Login(ctx, req.ToCredentials())
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.LoginResponse{
		Token: dto.FromToken(token),
		User:  dto.FromUser(user),
	})
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.RegisterRequest
	if !h.BindJSON(c, &req) {
		return
	}

	user, err := h.service.Register(ctx, req.Email, req.Password, req.FullName)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.FromUser(user))
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userCtx := appctx.GetUser(c.Request.Context())
	if userCtx == nil {
		h.Error(c, apperror.NewUnauthorized("not authenticated"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":      userCtx.UserID,
		"email":   userCtx.Email,
		"roles":   userCtx.Roles,
		"isAdmin": userCtx.IsAdmin,
	})
}

// RegisterRoutes registers auth routes.
func (h *AuthHandler) RegisterRoutes(public, protected *gin.RouterGroup) {
	public.POST("/login", h.Login)

	protected.GET("/me", h.Me)
	// Account creation is privileged.
	protected.POST("/register", middleware.RequireRole("admin"), h.Register)
}
