package service

import (
	"context"

	"github.com/google/uuid"

	"mediation_desk/internal/domain"
	"mediation_desk/internal/repository"
	"mediation_desk/pkg/logger"
)

// AuditService keeps the lifecycle trail of mediation requests. Writes are
// best effort and never fail the operation being audited.
type AuditService interface {
	LogEvent(ctx context.Context, actorUserID *uuid.UUID, actorRole string, requestID string, eventType string, payload map[string]interface{})
	ListForRequest(ctx context.Context, requestID string) ([]*domain.AuditEntry, error)
}

type auditService struct {
	auditRepo repository.AuditRepository
	now       Clock
	log       logger.Logger
}

func NewAuditService(auditRepo repository.AuditRepository, now Clock, log logger.Logger) AuditService {
	return &auditService{
		auditRepo: auditRepo,
		now:       now,
		log:       log,
	}
}

func (s *auditService) LogEvent(ctx context.Context, actorUserID *uuid.UUID, actorRole string, requestID string, eventType string, payload map[string]interface{}) {
	if payload == nil {
		payload = make(map[string]interface{})
	}

	entry := &domain.AuditEntry{
		EventTime:   s.now(),
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		EventType:   eventType,
		Payload:     payload,
	}
	if requestID != "" {
		entry.RequestID = &requestID
	}

	if err := s.auditRepo.CreateLog(ctx, entry); err != nil {
		s.log.Warn("Audit entry dropped", "error", err, "event_type", eventType, "request_id", requestID)
	}
}

func (s *auditService) ListForRequest(ctx context.Context, requestID string) ([]*domain.AuditEntry, error) {
	return s.auditRepo.ListByRequest(ctx, requestID)
}
