package repository

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"mediation_desk/internal/domain"
	apperrors "mediation_desk/pkg/errors"
)

type memoryMediationRepository struct {
	store *memoryStore
}

func (r *memoryMediationRepository) Create(_ context.Context, req *domain.MediationRequest) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[req.ID]; exists {
		return apperrors.ErrRequestIDTaken
	}
	s.requests[req.ID] = copyRequest(req)
	return nil
}

func (r *memoryMediationRepository) Exists(_ context.Context, id string) (bool, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.requests[id]
	return ok, nil
}

func (r *memoryMediationRepository) GetByID(_ context.Context, id string) (*domain.MediationRequest, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, apperrors.ErrRequestNotFound
	}
	return copyRequest(req), nil
}

func (r *memoryMediationRepository) Update(_ context.Context, req *domain.MediationRequest) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.requests[req.ID]
	if !ok {
		return apperrors.ErrRequestNotFound
	}
	existing.SellerID = req.SellerID
	existing.BrokerID = req.BrokerID
	existing.Status = req.Status
	existing.UpdatedAt = req.UpdatedAt
	existing.CompletedAt = req.CompletedAt
	return nil
}

func (r *memoryMediationRepository) ListStalePending(_ context.Context, cutoff time.Time) ([]string, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	stale := lo.Filter(lo.Values(s.requests), func(req *domain.MediationRequest, _ int) bool {
		return req.Status == domain.RequestStatusPending && !req.CreatedAt.After(cutoff)
	})
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })
	return lo.Map(stale, func(req *domain.MediationRequest, _ int) string { return req.ID }), nil
}

func (r *memoryMediationRepository) UpsertParticipant(_ context.Context, p *domain.Participant) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[p.RequestID]; !ok {
		return apperrors.ErrRequestNotFound
	}
	slots, ok := s.participants[p.RequestID]
	if !ok {
		slots = make(map[domain.Role]*domain.Participant)
		s.participants[p.RequestID] = slots
	}

	if existing, held := slots[p.Role]; held {
		if existing.UserID != p.UserID {
			return apperrors.ErrRoleAlreadyTaken
		}
		existing.Name = p.Name
		existing.IsOnline = p.IsOnline
		existing.LastSeen = p.LastSeen
		p.JoinedAt = existing.JoinedAt
		return nil
	}

	slots[p.Role] = copyParticipant(p)
	return nil
}

func (r *memoryMediationRepository) GetParticipant(_ context.Context, requestID string, role domain.Role) (*domain.Participant, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.participants[requestID][role]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return copyParticipant(p), nil
}

func (r *memoryMediationRepository) ListParticipants(_ context.Context, requestID string, onlineOnly bool) ([]*domain.Participant, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := lo.FilterMap(lo.Values(s.participants[requestID]), func(p *domain.Participant, _ int) (*domain.Participant, bool) {
		if onlineOnly && !p.IsOnline {
			return nil, false
		}
		return copyParticipant(p), true
	})
	sort.Slice(list, func(i, j int) bool {
		if !list[i].JoinedAt.Equal(list[j].JoinedAt) {
			return list[i].JoinedAt.Before(list[j].JoinedAt)
		}
		// same tie-break as the SQL ORDER BY
		return list[i].Role < list[j].Role
	})
	return list, nil
}

func (r *memoryMediationRepository) SetPresence(_ context.Context, requestID string, userID uuid.UUID, online bool, at time.Time) (int64, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, p := range s.participants[requestID] {
		if p.UserID == userID {
			p.IsOnline = online
			p.LastSeen = at
			n++
		}
	}
	return n, nil
}
