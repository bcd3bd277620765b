package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"mediation_desk/internal/domain"
	"mediation_desk/internal/middleware"
	"mediation_desk/internal/service"
	"mediation_desk/pkg/logger"
)

type MediationHandler struct {
	mediation service.MediationService
	audit     service.AuditService
	rooms     RoomNotifier
	log       logger.Logger
}

func NewMediationHandler(mediation service.MediationService, audit service.AuditService, rooms RoomNotifier, log logger.Logger) *MediationHandler {
	return &MediationHandler{
		mediation: mediation,
		audit:     audit,
		rooms:     rooms,
		log:       log,
	}
}

type CreateRequestRequest struct {
	Title       string   `json:"title" binding:"required"`
	Description string   `json:"description"`
	Category    string   `json:"category" binding:"required"`
	Price       *float64 `json:"price,omitempty"`
	Location    *string  `json:"location,omitempty"`
}

type JoinRequest struct {
	Role string `json:"role" binding:"required"`
}

type JoinResponse struct {
	Request     *domain.MediationRequest `json:"request"`
	Participant *domain.Participant      `json:"participant"`
	Rejoined    bool                     `json:"rejoined"`
}

func (h *MediationHandler) Create(c *gin.Context) {
	var req CreateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	session := middleware.CurrentSession(c)
	created, err := h.mediation.Create(c.Request.Context(), domain.CreateRequestInput{
		BuyerID:     session.UserID,
		BuyerName:   session.DisplayName,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		Location:    req.Location,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, created)
}

func (h *MediationHandler) Get(c *gin.Context) {
	view, err := h.mediation.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *MediationHandler) Participants(c *gin.Context) {
	participants, err := h.mediation.ListParticipants(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"participants": participants})
}

// Audit returns the request's lifecycle trail, oldest first.
func (h *MediationHandler) Audit(c *gin.Context) {
	requestID := c.Param("id")
	if _, err := h.mediation.Get(c.Request.Context(), requestID); err != nil {
		respondError(c, err)
		return
	}

	entries, err := h.audit.ListForRequest(c.Request.Context(), requestID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *MediationHandler) Join(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	session := middleware.CurrentSession(c)
	res, err := h.mediation.Join(c.Request.Context(), c.Param("id"), session.UserID, session.DisplayName, req.Role)
	if err != nil {
		h.log.Info("Join refused", "request_id", c.Param("id"), "user_id", session.UserID, "role", req.Role, "error", err)
		respondError(c, err)
		return
	}

	h.rooms.AnnounceJoin(c.Request.Context(), res)
	c.JSON(http.StatusOK, JoinResponse{Request: res.Request, Participant: res.Participant, Rejoined: res.Rejoined})
}

func (h *MediationHandler) Complete(c *gin.Context) {
	h.close(c, h.mediation.Complete)
}

func (h *MediationHandler) Cancel(c *gin.Context) {
	h.close(c, h.mediation.Cancel)
}

func (h *MediationHandler) close(c *gin.Context, transition func(ctx context.Context, requestID string, actorID uuid.UUID) (*domain.MediationRequest, error)) {
	req, err := transition(c.Request.Context(), c.Param("id"), middleware.CurrentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	h.rooms.CloseRoom(req.ID, req.Status)
	c.JSON(http.StatusOK, req)
}
