package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"mediation_desk/internal/domain"
	apperrors "mediation_desk/pkg/errors"
)

type memorySessionRepository struct {
	store *memoryStore
}

func (r *memorySessionRepository) Create(_ context.Context, user *domain.UserIdentity, session *domain.Session) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.activeNames[session.DisplayName]; taken {
		return apperrors.ErrNameInUse
	}
	if _, has := s.sessionUsers[session.UserID]; has {
		return apperrors.ErrNameInUse
	}

	u := *user
	s.users[user.ID] = &u
	s.sessions[session.ID] = copySession(session)
	s.sessionUsers[session.UserID] = session.ID
	s.activeNames[session.DisplayName] = session.ID
	return nil
}

func (r *memorySessionRepository) GetByUserID(_ context.Context, userID uuid.UUID) (*domain.Session, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.sessionUsers[userID]
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	return copySession(s.sessions[id]), nil
}

func (r *memorySessionRepository) GetByDisplayName(_ context.Context, displayName string) (*domain.Session, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.activeNames[displayName]
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	return copySession(s.sessions[id]), nil
}

func (r *memorySessionRepository) Touch(_ context.Context, sessionID uuid.UUID, at time.Time) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return apperrors.ErrSessionNotFound
	}
	session.LastActivityAt = at
	return nil
}

func (r *memorySessionRepository) Link(_ context.Context, userID uuid.UUID, requestID string, role domain.Role) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.sessionUsers[userID]
	if !ok {
		return apperrors.ErrSessionNotFound
	}
	session := s.sessions[id]
	session.LinkedRequestID = &requestID
	session.Role = role
	return nil
}

func (r *memorySessionRepository) Delete(_ context.Context, sessionID uuid.UUID) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return apperrors.ErrSessionNotFound
	}
	s.deleteSessionLocked(sessionID)
	return nil
}

func (r *memorySessionRepository) DeleteIdleSince(_ context.Context, cutoff time.Time) ([]*domain.Session, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []*domain.Session
	for id, session := range s.sessions {
		if !session.LastActivityAt.After(cutoff) {
			removed = append(removed, copySession(session))
			s.deleteSessionLocked(id)
		}
	}
	return removed, nil
}

func (s *memoryStore) deleteSessionLocked(sessionID uuid.UUID) {
	session := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	delete(s.sessionUsers, session.UserID)
	if owner, ok := s.activeNames[session.DisplayName]; ok && owner == sessionID {
		delete(s.activeNames, session.DisplayName)
	}
}
