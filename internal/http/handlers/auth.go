package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/testbridge-backend/internal/http/response"
	"github.com/yungbote/testbridge-backend/internal/services"
)

type AuthHandler struct {
	authService services.AuthService
}

func NewAuthHandler(authService services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// POST /auth/login/
// body: { "username": "...", "password": "..." }
func (ah *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := bindJSON(c, &req); err != nil {
		response.RespondError(c, err)
		return
	}
	tok, err := ah.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"token":      tok.Key,
		"expires_at": tok.ExpiresAt,
		"expires_in": int(ah.authService.TokenTTL().Seconds()),
	})
}

// POST /auth/logout/
func (ah *AuthHandler) Logout(c *gin.Context) {
	if err := ah.authService.Logout(c.Request.Context()); err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondNoContent(c)
}
