package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"mediation_desk/internal/domain"
	apperrors "mediation_desk/pkg/errors"
	"mediation_desk/pkg/logger"
)

// ChatRepository is the append-only message ledger. Append assigns the
// sequence id and touches the parent request in one step.
type ChatRepository interface {
	Append(ctx context.Context, msg *domain.ChatMessage) error
	List(ctx context.Context, requestID string, page domain.Page) ([]*domain.ChatMessage, error)
}

type chatRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewChatRepository(db *pgxpool.Pool, log logger.Logger) ChatRepository {
	return &chatRepository{db: db, log: log}
}

func (r *chatRepository) Append(ctx context.Context, msg *domain.ChatMessage) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO mediation_messages (request_id, sender_id, sender_name, sender_role, body, kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err = tx.QueryRow(ctx, query,
		msg.RequestID, msg.SenderID, msg.SenderName, string(msg.SenderRole), msg.Body, string(msg.Kind), msg.CreatedAt,
	).Scan(&msg.ID)
	if err != nil {
		if code, _ := pgErrorCode(err); code == pgForeignKeyViolation {
			return apperrors.ErrRequestNotFound
		}
		r.log.Error("Failed to append message", "error", err, "request_id", msg.RequestID)
		return err
	}

	if _, err := tx.Exec(ctx, `UPDATE mediation_requests SET updated_at = $2 WHERE id = $1`,
		msg.RequestID, msg.CreatedAt); err != nil {
		r.log.Error("Failed to touch mediation request", "error", err, "request_id", msg.RequestID)
		return err
	}

	return tx.Commit(ctx)
}

func (r *chatRepository) List(ctx context.Context, requestID string, page domain.Page) ([]*domain.ChatMessage, error) {
	query := `
		SELECT id, request_id, sender_id, sender_name, sender_role, body, kind, created_at
		FROM mediation_messages
		WHERE request_id = $1
		ORDER BY id ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, requestID, page.Limit, page.Offset)
	if err != nil {
		r.log.Error("Failed to list messages", "error", err, "request_id", requestID)
		return nil, err
	}
	defer rows.Close()

	messages := make([]*domain.ChatMessage, 0)
	for rows.Next() {
		m := &domain.ChatMessage{}
		var role, kind string
		if err := rows.Scan(&m.ID, &m.RequestID, &m.SenderID, &m.SenderName, &role, &m.Body, &kind, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.SenderRole = domain.Role(role)
		m.Kind = domain.MessageKind(kind)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
