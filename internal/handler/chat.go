package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mediation_desk/internal/domain"
	"mediation_desk/internal/middleware"
	"mediation_desk/internal/service"
	"mediation_desk/pkg/logger"
)

type ChatHandler struct {
	chat  service.ChatService
	rooms RoomNotifier
	log   logger.Logger
}

func NewChatHandler(chat service.ChatService, rooms RoomNotifier, log logger.Logger) *ChatHandler {
	return &ChatHandler{
		chat:  chat,
		rooms: rooms,
		log:   log,
	}
}

type SendMessageRequest struct {
	Body string `json:"body" binding:"required"`
}

// List returns the request's messages oldest first. Without a limit the
// whole history is returned.
func (h *ChatHandler) List(c *gin.Context) {
	messages, err := h.chat.Read(c.Request.Context(), c.Param("id"), domain.Page{
		Limit:  queryInt(c, "limit", 0),
		Offset: queryInt(c, "offset", 0),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *ChatHandler) Send(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	session := middleware.CurrentSession(c)
	msg, err := h.chat.Send(c.Request.Context(), service.SendInput{
		RequestID:  c.Param("id"),
		SenderID:   session.UserID,
		SenderName: session.DisplayName,
		Body:       req.Body,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.rooms.Publish(msg)
	c.JSON(http.StatusCreated, msg)
}
