package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"mediation_desk/internal/config"
	"mediation_desk/internal/domain"
	"mediation_desk/internal/metrics"
	"mediation_desk/internal/repository"
	apperrors "mediation_desk/pkg/errors"
	"mediation_desk/pkg/logger"
)

type SendInput struct {
	RequestID  string
	SenderID   uuid.UUID
	SenderName string
	Body       string
}

type ChatService interface {
	// Append writes one message to the ledger. The request must exist.
	Append(ctx context.Context, msg *domain.ChatMessage) (*domain.ChatMessage, error)
	Read(ctx context.Context, requestID string, page domain.Page) ([]*domain.ChatMessage, error)
	// Send is the single path for user messages from any transport.
	Send(ctx context.Context, input SendInput) (*domain.ChatMessage, error)
}

type chatService struct {
	chatRepo  repository.ChatRepository
	mediation MediationService
	requests  repository.MediationRepository
	rateLimit RateLimitService
	cfg       config.ChatConfig
	metrics   *metrics.Metrics
	now       Clock
	log       logger.Logger
}

func NewChatService(
	chatRepo repository.ChatRepository,
	requests repository.MediationRepository,
	mediation MediationService,
	rateLimit RateLimitService,
	cfg config.ChatConfig,
	m *metrics.Metrics,
	now Clock,
	log logger.Logger,
) ChatService {
	return &chatService{
		chatRepo:  chatRepo,
		mediation: mediation,
		requests:  requests,
		rateLimit: rateLimit,
		cfg:       cfg,
		metrics:   m,
		now:       now,
		log:       log,
	}
}

func (s *chatService) Append(ctx context.Context, msg *domain.ChatMessage) (*domain.ChatMessage, error) {
	exists, err := s.requests.Exists(ctx, msg.RequestID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.ErrRequestNotFound
	}

	if msg.Kind == "" {
		msg.Kind = domain.MessageKindText
	}
	if msg.SenderRole == "" {
		msg.SenderRole = domain.RoleNone
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}

	if err := s.chatRepo.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	s.metrics.MessagesAppended.WithLabelValues(string(msg.Kind)).Inc()
	return msg, nil
}

func (s *chatService) Read(ctx context.Context, requestID string, page domain.Page) ([]*domain.ChatMessage, error) {
	exists, err := s.requests.Exists(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.ErrRequestNotFound
	}

	// the default is also the ceiling
	if page.Limit <= 0 || page.Limit > s.cfg.DefaultReadLimit {
		page.Limit = s.cfg.DefaultReadLimit
	}
	if page.Offset < 0 {
		page.Offset = 0
	}
	return s.chatRepo.List(ctx, requestID, page)
}

func (s *chatService) Send(ctx context.Context, input SendInput) (*domain.ChatMessage, error) {
	body := strings.TrimSpace(input.Body)
	if body == "" {
		return nil, fmt.Errorf("%w: message body is empty", apperrors.ErrBadRequest)
	}
	if utf8.RuneCountInString(body) > s.cfg.MaxBodyLength {
		return nil, fmt.Errorf("%w: message body exceeds %d characters", apperrors.ErrBadRequest, s.cfg.MaxBodyLength)
	}

	req, err := s.requests.GetByID(ctx, input.RequestID)
	if err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		return nil, apperrors.ErrRequestClosed
	}

	allowed, _, err := s.rateLimit.Allow(ctx, "chat:"+input.SenderID.String())
	if err != nil {
		// counters unavailable: keep the conversation going
		s.log.Warn("Rate limit check failed, allowing message", "error", err, "sender_id", input.SenderID)
	} else if !allowed {
		s.metrics.RateLimited.Inc()
		return nil, apperrors.ErrRateLimited
	}

	role, err := s.mediation.RoleOf(ctx, input.RequestID, input.SenderID)
	if err != nil {
		return nil, err
	}

	return s.Append(ctx, &domain.ChatMessage{
		RequestID:  input.RequestID,
		SenderID:   input.SenderID,
		SenderName: input.SenderName,
		SenderRole: role,
		Body:       body,
		Kind:       domain.MessageKindText,
	})
}
