package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"mediation_desk/internal/config"
	"mediation_desk/internal/domain"
	"mediation_desk/internal/repository"
	apperrors "mediation_desk/pkg/errors"
	"mediation_desk/pkg/logger"
)

type JoinResult struct {
	Request     *domain.MediationRequest
	Participant *domain.Participant
	// Rejoined is set when the user already held the slot.
	Rejoined bool
}

type MediationService interface {
	Create(ctx context.Context, input domain.CreateRequestInput) (*domain.MediationRequest, error)
	Join(ctx context.Context, requestID string, userID uuid.UUID, userName string, role string) (*JoinResult, error)
	Get(ctx context.Context, requestID string) (*domain.MediationView, error)
	// ListParticipants returns online participants ordered by join time.
	ListParticipants(ctx context.Context, requestID string) ([]*domain.Participant, error)
	RoleOf(ctx context.Context, requestID string, userID uuid.UUID) (domain.Role, error)
	Complete(ctx context.Context, requestID string, actorID uuid.UUID) (*domain.MediationRequest, error)
	Cancel(ctx context.Context, requestID string, actorID uuid.UUID) (*domain.MediationRequest, error)
	SetPresence(ctx context.Context, requestID string, userID uuid.UUID, online bool) error
	CancelStale(ctx context.Context, now time.Time) ([]string, error)
}

type mediationService struct {
	repo     repository.MediationRepository
	sessions SessionService
	ids      IDGenerator
	audit    AuditService
	locks    *KeyedMutex
	cfg      config.MediationConfig
	now      Clock
	log      logger.Logger
}

func NewMediationService(
	repo repository.MediationRepository,
	sessions SessionService,
	ids IDGenerator,
	audit AuditService,
	cfg config.MediationConfig,
	now Clock,
	log logger.Logger,
) MediationService {
	return &mediationService{
		repo:     repo,
		sessions: sessions,
		ids:      ids,
		audit:    audit,
		locks:    NewKeyedMutex(),
		cfg:      cfg,
		now:      now,
		log:      log,
	}
}

func (s *mediationService) Create(ctx context.Context, input domain.CreateRequestInput) (*domain.MediationRequest, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Category = strings.TrimSpace(input.Category)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	now := s.now()
	req := &domain.MediationRequest{
		BuyerID:     input.BuyerID,
		Title:       input.Title,
		Description: input.Description,
		Category:    input.Category,
		Price:       input.Price,
		Location:    input.Location,
		Status:      domain.RequestStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.insert(ctx, req); err != nil {
		return nil, err
	}
	id := req.ID

	buyer := &domain.Participant{
		RequestID: id,
		UserID:    input.BuyerID,
		Name:      input.BuyerName,
		Role:      domain.RoleBuyer,
		JoinedAt:  now,
		LastSeen:  now,
	}
	if err := s.repo.UpsertParticipant(ctx, buyer); err != nil {
		return nil, fmt.Errorf("record buyer: %w", err)
	}
	s.link(ctx, input.BuyerID, id, domain.RoleBuyer)
	s.audit.LogEvent(ctx, &req.BuyerID, string(domain.RoleBuyer), id, domain.EventTypeRequestCreated, map[string]interface{}{
		"title":    req.Title,
		"category": req.Category,
	})

	s.log.Info("Mediation request created", "request_id", id, "buyer_id", input.BuyerID)
	return req, nil
}

// insert assigns a fresh id and stores req. Another create can claim the
// same id between the generator's check and the insert, so a taken id is
// retried with a new one.
func (s *mediationService) insert(ctx context.Context, req *domain.MediationRequest) error {
	for attempt := 0; attempt < s.cfg.IDMaxAttempts; attempt++ {
		id, err := s.ids.NewRequestID(ctx)
		if err != nil {
			return err
		}
		req.ID = id

		err = s.repo.Create(ctx, req)
		if err == nil {
			return nil
		}
		if !errors.Is(err, apperrors.ErrRequestIDTaken) {
			return fmt.Errorf("create mediation request: %w", err)
		}
		s.log.Warn("Request id claimed concurrently, retrying", "request_id", id, "attempt", attempt+1)
	}
	return apperrors.ErrGenerationExhausted
}

func (s *mediationService) Join(ctx context.Context, requestID string, userID uuid.UUID, userName string, roleName string) (*JoinResult, error) {
	role, ok := domain.ParseRole(roleName)
	if !ok {
		return nil, apperrors.ErrRoleNotRecognized
	}

	unlock := s.locks.Lock(requestID)
	defer unlock()

	req, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		return nil, apperrors.ErrRequestClosed
	}

	rejoined := false
	occupant, err := s.repo.GetParticipant(ctx, requestID, role)
	switch {
	case err == nil && occupant.UserID != userID:
		return nil, apperrors.ErrRoleAlreadyTaken
	case err == nil:
		rejoined = true
	case !errors.Is(err, apperrors.ErrNotFound):
		return nil, err
	}

	now := s.now()
	participant := &domain.Participant{
		RequestID: requestID,
		UserID:    userID,
		Name:      userName,
		Role:      role,
		JoinedAt:  now,
		LastSeen:  now,
	}
	if occupant != nil {
		participant.IsOnline = occupant.IsOnline
	}
	if err := s.repo.UpsertParticipant(ctx, participant); err != nil {
		return nil, err
	}

	changed := false
	switch role {
	case domain.RoleSeller:
		if req.SellerID == nil || *req.SellerID != userID {
			req.SellerID = &userID
			changed = true
		}
		if req.Status == domain.RequestStatusPending {
			req.Status = domain.RequestStatusActive
			changed = true
		}
	case domain.RoleBroker:
		if req.BrokerID == nil || *req.BrokerID != userID {
			req.BrokerID = &userID
			changed = true
		}
	}
	if changed {
		req.UpdatedAt = now
		if err := s.repo.Update(ctx, req); err != nil {
			return nil, fmt.Errorf("update mediation request: %w", err)
		}
	}

	s.link(ctx, userID, requestID, role)
	if !rejoined {
		s.audit.LogEvent(ctx, &userID, string(role), requestID, domain.EventTypeRoleJoined, map[string]interface{}{
			"name": userName,
		})
	}

	s.log.Info("Role joined", "request_id", requestID, "user_id", userID, "role", string(role), "rejoined", rejoined)
	return &JoinResult{Request: req, Participant: participant, Rejoined: rejoined}, nil
}

func (s *mediationService) Get(ctx context.Context, requestID string) (*domain.MediationView, error) {
	req, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	participants, err := s.repo.ListParticipants(ctx, requestID, false)
	if err != nil {
		return nil, err
	}

	view := &domain.MediationView{MediationRequest: req, Participants: participants}
	for _, p := range participants {
		name := p.Name
		switch p.Role {
		case domain.RoleBuyer:
			view.BuyerName = name
		case domain.RoleSeller:
			view.SellerName = &name
		case domain.RoleBroker:
			view.BrokerName = &name
		}
	}
	return view, nil
}

func (s *mediationService) ListParticipants(ctx context.Context, requestID string) ([]*domain.Participant, error) {
	exists, err := s.repo.Exists(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.ErrRequestNotFound
	}
	return s.repo.ListParticipants(ctx, requestID, true)
}

func (s *mediationService) RoleOf(ctx context.Context, requestID string, userID uuid.UUID) (domain.Role, error) {
	participants, err := s.repo.ListParticipants(ctx, requestID, false)
	if err != nil {
		return domain.RoleNone, err
	}
	p, found := lo.Find(participants, func(p *domain.Participant) bool { return p.UserID == userID })
	if !found {
		return domain.RoleNone, nil
	}
	return p.Role, nil
}

func (s *mediationService) Complete(ctx context.Context, requestID string, actorID uuid.UUID) (*domain.MediationRequest, error) {
	return s.transition(ctx, requestID, actorID, func(req *domain.MediationRequest, now time.Time) error {
		if req.Status != domain.RequestStatusActive {
			return apperrors.ErrInvalidTransition
		}
		req.Status = domain.RequestStatusCompleted
		req.CompletedAt = &now
		return nil
	})
}

func (s *mediationService) Cancel(ctx context.Context, requestID string, actorID uuid.UUID) (*domain.MediationRequest, error) {
	return s.transition(ctx, requestID, actorID, func(req *domain.MediationRequest, _ time.Time) error {
		req.Status = domain.RequestStatusCancelled
		return nil
	})
}

func (s *mediationService) transition(
	ctx context.Context,
	requestID string,
	actorID uuid.UUID,
	apply func(req *domain.MediationRequest, now time.Time) error,
) (*domain.MediationRequest, error) {
	unlock := s.locks.Lock(requestID)
	defer unlock()

	req, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		return nil, apperrors.ErrRequestClosed
	}

	role, err := s.RoleOf(ctx, requestID, actorID)
	if err != nil {
		return nil, err
	}
	if role == domain.RoleNone {
		return nil, apperrors.ErrForbidden
	}

	now := s.now()
	if err := apply(req, now); err != nil {
		return nil, err
	}
	req.UpdatedAt = now
	if err := s.repo.Update(ctx, req); err != nil {
		return nil, fmt.Errorf("update mediation request: %w", err)
	}

	eventType := domain.EventTypeRequestCancelled
	if req.Status == domain.RequestStatusCompleted {
		eventType = domain.EventTypeRequestCompleted
	}
	s.audit.LogEvent(ctx, &actorID, string(role), requestID, eventType, nil)

	s.log.Info("Mediation request closed", "request_id", requestID, "status", string(req.Status), "actor_id", actorID)
	return req, nil
}

func (s *mediationService) SetPresence(ctx context.Context, requestID string, userID uuid.UUID, online bool) error {
	_, err := s.repo.SetPresence(ctx, requestID, userID, online, s.now())
	return err
}

// CancelStale cancels requests still pending after the pending timeout.
// Each candidate is re-checked under its request lock so a concurrent
// seller join wins or loses cleanly.
func (s *mediationService) CancelStale(ctx context.Context, now time.Time) ([]string, error) {
	cutoff := now.Add(-s.cfg.PendingTimeout)
	ids, err := s.repo.ListStalePending(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale requests: %w", err)
	}

	cancelled := make([]string, 0, len(ids))
	for _, id := range ids {
		ok, err := s.cancelIfStale(ctx, id, cutoff, now)
		if err != nil {
			s.log.Error("Failed to cancel stale request", "error", err, "request_id", id)
			continue
		}
		if ok {
			cancelled = append(cancelled, id)
		}
	}
	return cancelled, nil
}

func (s *mediationService) cancelIfStale(ctx context.Context, id string, cutoff, now time.Time) (bool, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if req.Status != domain.RequestStatusPending || req.CreatedAt.After(cutoff) {
		return false, nil
	}
	req.Status = domain.RequestStatusCancelled
	req.UpdatedAt = now
	if err := s.repo.Update(ctx, req); err != nil {
		return false, err
	}

	s.audit.LogEvent(ctx, nil, domain.ActorRoleSystem, id, domain.EventTypeRequestExpired, map[string]interface{}{
		"pending_since": req.CreatedAt,
	})
	return true, nil
}

func (s *mediationService) link(ctx context.Context, userID uuid.UUID, requestID string, role domain.Role) {
	if s.sessions == nil {
		return
	}
	if err := s.sessions.Link(ctx, userID, requestID, role); err != nil && !errors.Is(err, apperrors.ErrSessionNotFound) {
		s.log.Warn("Failed to link session to request", "error", err, "user_id", userID, "request_id", requestID)
	}
}
