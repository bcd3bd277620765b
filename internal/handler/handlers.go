package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mediation_desk/internal/config"
	"mediation_desk/internal/domain"
	"mediation_desk/internal/hub"
	"mediation_desk/internal/metrics"
	"mediation_desk/internal/service"
	apperrors "mediation_desk/pkg/errors"
	"mediation_desk/pkg/logger"
)

// RoomNotifier pushes HTTP-originated changes to live subscribers.
type RoomNotifier interface {
	Publish(msg *domain.ChatMessage)
	AnnounceJoin(ctx context.Context, res *service.JoinResult)
	CloseRoom(requestID string, status domain.RequestStatus)
}

type Handlers struct {
	Health    *HealthHandler
	Session   *SessionHandler
	Mediation *MediationHandler
	Chat      *ChatHandler
	WebSocket *WebSocketHandler
}

func NewHandlers(services *service.Services, rooms *hub.Hub, m *metrics.Metrics, db Pinger, cfg *config.Config, log logger.Logger) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(db, m, cfg.Storage.Driver),
		Session:   NewSessionHandler(services.Session, log),
		Mediation: NewMediationHandler(services.Mediation, services.Audit, rooms, log),
		Chat:      NewChatHandler(services.Chat, rooms, log),
		WebSocket: NewWebSocketHandler(rooms, cfg.WebSocket, log),
	}
}

func respondError(c *gin.Context, err error) {
	apiErr := apperrors.NewAPIError(err)
	apiErr.Message = apperrors.Public(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(apiErr.Status, apiErr)
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, apperrors.APIError{
		Message: "Invalid request: " + err.Error(),
		Code:    apperrors.Code(apperrors.ErrBadRequest),
	})
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}
