package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mediation_desk/internal/middleware"
	"mediation_desk/internal/service"
	"mediation_desk/pkg/logger"
)

type SessionHandler struct {
	sessions service.SessionService
	log      logger.Logger
}

func NewSessionHandler(sessions service.SessionService, log logger.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		log:      log,
	}
}

type LoginRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
	Role        string `json:"role"`
}

func (h *SessionHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.sessions.Login(c.Request.Context(), service.LoginInput{
		DisplayName: req.DisplayName,
		Role:        req.Role,
	})
	if err != nil {
		h.log.Warn("Login failed", "error", err, "display_name", req.DisplayName)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, res)
}

func (h *SessionHandler) Current(c *gin.Context) {
	c.JSON(http.StatusOK, middleware.CurrentSession(c))
}

func (h *SessionHandler) Logout(c *gin.Context) {
	if err := h.sessions.Logout(c.Request.Context(), middleware.CurrentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
