package repository

import (
	"context"

	"github.com/samber/lo"

	"mediation_desk/internal/domain"
)

type memoryAuditRepository struct {
	store *memoryStore
}

func (r *memoryAuditRepository) CreateLog(_ context.Context, entry *domain.AuditEntry) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastAuditID++
	entry.ID = s.lastAuditID
	c := *entry
	s.audit = append(s.audit, &c)
	return nil
}

func (r *memoryAuditRepository) ListByRequest(_ context.Context, requestID string) ([]*domain.AuditEntry, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	return lo.FilterMap(s.audit, func(e *domain.AuditEntry, _ int) (*domain.AuditEntry, bool) {
		if e.RequestID == nil || *e.RequestID != requestID {
			return nil, false
		}
		c := *e
		return &c, true
	}), nil
}
