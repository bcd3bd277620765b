package service

import (
	"time"

	"mediation_desk/internal/config"
	"mediation_desk/internal/metrics"
	"mediation_desk/internal/repository"
	"mediation_desk/pkg/logger"
)

// Clock supplies the current time. Tests substitute a fixed one.
type Clock func() time.Time

type Services struct {
	Session   SessionService
	Mediation MediationService
	Chat      ChatService
	RateLimit RateLimitService
	Audit     AuditService
}

func NewServices(repos *repository.Repositories, cfg *config.Config, m *metrics.Metrics, now Clock, log logger.Logger) *Services {
	if now == nil {
		now = time.Now
	}

	sessions := NewSessionService(repos.Session, cfg.Session, now, log)
	audit := NewAuditService(repos.Audit, now, log)
	ids := NewRequestIDGenerator(repos.Mediation, cfg.Mediation.IDLength, cfg.Mediation.IDMaxAttempts, log)
	mediation := NewMediationService(repos.Mediation, sessions, ids, audit, cfg.Mediation, now, log)
	rateLimit := NewRateLimitService(repos.RateLimit, cfg.Chat.RateLimit, cfg.Chat.RateWindow, log)

	return &Services{
		Session:   sessions,
		Mediation: mediation,
		Chat:      NewChatService(repos.Chat, repos.Mediation, mediation, rateLimit, cfg.Chat, m, now, log),
		RateLimit: rateLimit,
		Audit:     audit,
	}
}
