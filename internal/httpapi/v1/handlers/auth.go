package handlers

import (
	"github.com/gin-gonic/gin"

	"recuento/internal/domain/auth"
	"recuento/internal/domain/counting"
	"recuento/internal/httpapi/v1/dto"
)

// AuthHandler serves login and logout.
type AuthHandler struct {
	*BaseHandler
	auth    *auth.Service
	manager *counting.Manager
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(base *BaseHandler, svc *auth.Service, manager *counting.Manager) *AuthHandler {
	return &AuthHandler{BaseHandler: base, auth: svc, manager: manager}
}

// Login authenticates credentials and returns a session token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if !h.BindJSON(c, &req) {
		return
	}

	token, err := h.auth.Login(c.Request.Context(), auth.Credentials{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, token)
}

// Logout releases the user's counting session. Tokens are stateless, so the
// server-side work is tearing the session down.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.manager.Release(h.GetUserID(c))
	h.Success(c, "logged out")
}

// RegisterRoutes wires auth endpoints.
func (h *AuthHandler) RegisterRoutes(public, protected *gin.RouterGroup) {
	public.POST("/login", h.Login)
	protected.POST("/logout", h.Logout)
}
