package repository

import (
	"context"

	"mediation_desk/internal/domain"
	apperrors "mediation_desk/pkg/errors"
)

type memoryChatRepository struct {
	store *memoryStore
}

func (r *memoryChatRepository) Append(_ context.Context, msg *domain.ChatMessage) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[msg.RequestID]
	if !ok {
		return apperrors.ErrRequestNotFound
	}

	s.lastMessageID++
	msg.ID = s.lastMessageID
	s.messages[msg.RequestID] = append(s.messages[msg.RequestID], copyMessage(msg))
	req.UpdatedAt = msg.CreatedAt
	return nil
}

func (r *memoryChatRepository) List(_ context.Context, requestID string, page domain.Page) ([]*domain.ChatMessage, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[requestID]
	out := make([]*domain.ChatMessage, 0)
	if page.Offset < 0 {
		page.Offset = 0
	}
	if page.Offset >= len(all) {
		return out, nil
	}
	end := len(all)
	if page.Limit > 0 && page.Limit < end-page.Offset {
		end = page.Offset + page.Limit
	}
	for _, m := range all[page.Offset:end] {
		out = append(out, copyMessage(m))
	}
	return out, nil
}
