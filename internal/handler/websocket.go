package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"mediation_desk/internal/config"
	"mediation_desk/internal/hub"
	"mediation_desk/internal/middleware"
	"mediation_desk/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WebSocketHandler struct {
	hub *hub.Hub
	cfg config.WebSocketConfig
	log logger.Logger
}

func NewWebSocketHandler(h *hub.Hub, cfg config.WebSocketConfig, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub: h,
		cfg: cfg,
		log: log,
	}
}

// Handle upgrades an authenticated request. Rooms are joined afterwards
// with subscribe frames.
func (h *WebSocketHandler) Handle(c *gin.Context) {
	session := middleware.CurrentSession(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := hub.NewClient(h.hub, conn, hub.Identity{
		UserID:    session.UserID,
		SessionID: session.ID,
		Name:      session.DisplayName,
	}, h.cfg, h.log)

	// the connection outlives the upgrade request
	client.Run(context.WithoutCancel(c.Request.Context()))
}
