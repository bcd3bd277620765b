package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"mediation_desk/internal/config"
	"mediation_desk/internal/domain"
	"mediation_desk/internal/repository"
	apperrors "mediation_desk/pkg/errors"
	"mediation_desk/pkg/jwt"
	"mediation_desk/pkg/logger"
)

type LoginInput struct {
	DisplayName string `validate:"required,max=64"`
	Role        string
}

type LoginResult struct {
	Session *domain.Session `json:"session"`
	Token   string          `json:"token"`
}

type SessionService interface {
	Login(ctx context.Context, input LoginInput) (*LoginResult, error)
	// Validate refreshes the session on success. sessionID is optional.
	Validate(ctx context.Context, userID uuid.UUID, sessionID *uuid.UUID) (*domain.Session, error)
	Authenticate(ctx context.Context, token string) (*domain.Session, error)
	Logout(ctx context.Context, userID uuid.UUID) error
	Link(ctx context.Context, userID uuid.UUID, requestID string, role domain.Role) error
	ExpireIdle(ctx context.Context, now time.Time) ([]*domain.Session, error)
}

type sessionService struct {
	repo  repository.SessionRepository
	names *KeyedMutex
	cfg   config.SessionConfig
	now   Clock
	log   logger.Logger
}

func NewSessionService(repo repository.SessionRepository, cfg config.SessionConfig, now Clock, log logger.Logger) SessionService {
	return &sessionService{
		repo:  repo,
		names: NewKeyedMutex(),
		cfg:   cfg,
		now:   now,
		log:   log,
	}
}

func (s *sessionService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	input.DisplayName = strings.TrimSpace(input.DisplayName)
	if err := validateRole(input.Role); err != nil {
		return nil, err
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	role := domain.RoleNone
	if input.Role != "" {
		role = domain.Role(input.Role)
	}

	// The free-name check and the claim happen under the same name lock.
	unlock := s.names.Lock(input.DisplayName)
	defer unlock()

	now := s.now()
	holder, err := s.repo.GetByDisplayName(ctx, input.DisplayName)
	switch {
	case err == nil:
		if !holder.ExpiredAt(now, s.cfg.IdleTimeout) {
			return nil, apperrors.ErrNameInUse
		}
		if err := s.repo.Delete(ctx, holder.ID); err != nil && !errors.Is(err, apperrors.ErrSessionNotFound) {
			return nil, fmt.Errorf("evict expired session: %w", err)
		}
		s.log.Info("Evicted expired session on login", "display_name", input.DisplayName, "user_id", holder.UserID)
	case !errors.Is(err, apperrors.ErrSessionNotFound):
		return nil, fmt.Errorf("look up display name: %w", err)
	}

	user := &domain.UserIdentity{
		ID:          uuid.New(),
		DisplayName: input.DisplayName,
		CreatedAt:   now,
	}
	session := &domain.Session{
		ID:             uuid.New(),
		UserID:         user.ID,
		DisplayName:    input.DisplayName,
		Role:           role,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if err := s.repo.Create(ctx, user, session); err != nil {
		return nil, err
	}

	token, err := jwt.GenerateSessionToken(user.ID.String(), session.ID.String(), session.DisplayName,
		s.cfg.TokenSecret, s.cfg.Issuer, s.cfg.TokenTTL)
	if err != nil {
		s.log.Error("Failed to issue session token", "error", err)
		return nil, err
	}

	s.log.Info("Session created", "user_id", user.ID, "display_name", session.DisplayName)
	return &LoginResult{Session: session, Token: token}, nil
}

func (s *sessionService) Validate(ctx context.Context, userID uuid.UUID, sessionID *uuid.UUID) (*domain.Session, error) {
	session, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sessionID != nil && *sessionID != session.ID {
		return nil, apperrors.ErrSessionMismatch
	}

	now := s.now()
	if session.ExpiredAt(now, s.cfg.IdleTimeout) {
		unlock := s.names.Lock(session.DisplayName)
		err := s.repo.Delete(ctx, session.ID)
		unlock()
		if err != nil && !errors.Is(err, apperrors.ErrSessionNotFound) {
			s.log.Error("Failed to drop expired session", "error", err, "user_id", userID)
		}
		return nil, apperrors.ErrSessionExpired
	}

	if err := s.repo.Touch(ctx, session.ID, now); err != nil {
		return nil, err
	}
	session.LastActivityAt = now
	return session, nil
}

func (s *sessionService) Authenticate(ctx context.Context, token string) (*domain.Session, error) {
	claims, err := jwt.ValidateToken(token, s.cfg.TokenSecret)
	if err != nil {
		if errors.Is(err, jwt.ErrExpiredToken) {
			return nil, apperrors.ErrSessionExpired
		}
		return nil, apperrors.ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, apperrors.ErrInvalidToken
	}
	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return nil, apperrors.ErrInvalidToken
	}
	return s.Validate(ctx, userID, &sessionID)
}

func (s *sessionService) Logout(ctx context.Context, userID uuid.UUID) error {
	session, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}

	unlock := s.names.Lock(session.DisplayName)
	defer unlock()

	if err := s.repo.Delete(ctx, session.ID); err != nil {
		return err
	}
	s.log.Info("Session ended", "user_id", userID, "display_name", session.DisplayName)
	return nil
}

func (s *sessionService) Link(ctx context.Context, userID uuid.UUID, requestID string, role domain.Role) error {
	return s.repo.Link(ctx, userID, requestID, role)
}

// ExpireIdle removes sessions idle for at least the configured timeout.
func (s *sessionService) ExpireIdle(ctx context.Context, now time.Time) ([]*domain.Session, error) {
	removed, err := s.repo.DeleteIdleSince(ctx, now.Add(-s.cfg.IdleTimeout))
	if err != nil {
		return nil, fmt.Errorf("delete idle sessions: %w", err)
	}
	return removed, nil
}

func validateRole(role string) error {
	if role == "" || role == string(domain.RoleNone) {
		return nil
	}
	if _, ok := domain.ParseRole(role); !ok {
		return apperrors.ErrRoleNotRecognized
	}
	return nil
}
