package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mediation_desk/internal/domain"
	"mediation_desk/pkg/logger"
)

type AuditRepository interface {
	CreateLog(ctx context.Context, entry *domain.AuditEntry) error
	ListByRequest(ctx context.Context, requestID string) ([]*domain.AuditEntry, error)
}

type auditRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewAuditRepository(db *pgxpool.Pool, log logger.Logger) AuditRepository {
	return &auditRepository{db: db, log: log}
}

func (r *auditRepository) CreateLog(ctx context.Context, entry *domain.AuditEntry) error {
	query := `
		INSERT INTO audit_log (event_time, actor_user_id, actor_role, request_id, event_type, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := r.db.QueryRow(ctx, query,
		entry.EventTime, entry.ActorUserID, entry.ActorRole,
		entry.RequestID, entry.EventType, entry.Payload,
	).Scan(&entry.ID)
	if err != nil {
		r.log.Error("Failed to create audit log", "error", err, "event_type", entry.EventType)
		return err
	}

	return nil
}

func (r *auditRepository) ListByRequest(ctx context.Context, requestID string) ([]*domain.AuditEntry, error) {
	query := `
		SELECT id, event_time, actor_user_id, actor_role, request_id, event_type, payload
		FROM audit_log
		WHERE request_id = $1
		ORDER BY id
	`

	rows, err := r.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.AuditEntry, error) {
		var e domain.AuditEntry
		err := row.Scan(&e.ID, &e.EventTime, &e.ActorUserID, &e.ActorRole, &e.RequestID, &e.EventType, &e.Payload)
		return &e, err
	})
}
