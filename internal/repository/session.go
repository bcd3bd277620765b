package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mediation_desk/internal/domain"
	apperrors "mediation_desk/pkg/errors"
	"mediation_desk/pkg/logger"
)

// SessionRepository owns sessions, user identities and the active-name
// index. A session and its name reservation are always written together.
type SessionRepository interface {
	Create(ctx context.Context, user *domain.UserIdentity, session *domain.Session) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Session, error)
	GetByDisplayName(ctx context.Context, displayName string) (*domain.Session, error)
	Touch(ctx context.Context, sessionID uuid.UUID, at time.Time) error
	Link(ctx context.Context, userID uuid.UUID, requestID string, role domain.Role) error
	Delete(ctx context.Context, sessionID uuid.UUID) error
	DeleteIdleSince(ctx context.Context, cutoff time.Time) ([]*domain.Session, error)
}

type sessionRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewSessionRepository(db *pgxpool.Pool, log logger.Logger) SessionRepository {
	return &sessionRepository{db: db, log: log}
}

const sessionColumns = `s.id, s.user_id, s.display_name, s.role, s.linked_request_id, s.created_at, s.last_activity_at`

func scanSession(row pgx.Row) (*domain.Session, error) {
	s := &domain.Session{}
	var role string
	err := row.Scan(&s.ID, &s.UserID, &s.DisplayName, &role, &s.LinkedRequestID, &s.CreatedAt, &s.LastActivityAt)
	if err != nil {
		return nil, err
	}
	s.Role = domain.Role(role)
	return s, nil
}

func (r *sessionRepository) Create(ctx context.Context, user *domain.UserIdentity, session *domain.Session) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin session tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO users (id, display_name, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name
	`, user.ID, user.DisplayName, user.CreatedAt)
	if err != nil {
		r.log.Error("Failed to upsert user identity", "error", err, "user_id", user.ID)
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO sessions (id, user_id, display_name, role, linked_request_id, created_at, last_activity_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, session.ID, session.UserID, session.DisplayName, string(session.Role),
		session.LinkedRequestID, session.CreatedAt, session.LastActivityAt)
	if err != nil {
		if code, constraint := pgErrorCode(err); code == pgUniqueViolation {
			r.log.Warn("User already has a session", "user_id", session.UserID, "constraint", constraint)
			return apperrors.ErrNameInUse
		}
		r.log.Error("Failed to create session", "error", err)
		return err
	}

	_, err = tx.Exec(ctx, `INSERT INTO active_names (display_name, session_id) VALUES ($1, $2)`,
		session.DisplayName, session.ID)
	if err != nil {
		if code, _ := pgErrorCode(err); code == pgUniqueViolation {
			return apperrors.ErrNameInUse
		}
		r.log.Error("Failed to reserve display name", "error", err)
		return err
	}

	return tx.Commit(ctx)
}

func (r *sessionRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions s WHERE s.user_id = $1`

	s, err := scanSession(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrSessionNotFound
		}
		r.log.Error("Failed to get session by user", "error", err)
		return nil, err
	}
	return s, nil
}

func (r *sessionRepository) GetByDisplayName(ctx context.Context, displayName string) (*domain.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM active_names n
		JOIN sessions s ON s.id = n.session_id
		WHERE n.display_name = $1
	`

	s, err := scanSession(r.db.QueryRow(ctx, query, displayName))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrSessionNotFound
		}
		r.log.Error("Failed to get session by display name", "error", err)
		return nil, err
	}
	return s, nil
}

func (r *sessionRepository) Touch(ctx context.Context, sessionID uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE sessions SET last_activity_at = $2 WHERE id = $1`, sessionID, at)
	if err != nil {
		r.log.Error("Failed to refresh session", "error", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrSessionNotFound
	}
	return nil
}

func (r *sessionRepository) Link(ctx context.Context, userID uuid.UUID, requestID string, role domain.Role) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE sessions SET linked_request_id = $2, role = $3 WHERE user_id = $1
	`, userID, requestID, string(role))
	if err != nil {
		r.log.Error("Failed to link session", "error", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrSessionNotFound
	}
	return nil
}

// Delete removes the session; the name reservation goes with it by cascade.
func (r *sessionRepository) Delete(ctx context.Context, sessionID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		r.log.Error("Failed to delete session", "error", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrSessionNotFound
	}
	return nil
}

func (r *sessionRepository) DeleteIdleSince(ctx context.Context, cutoff time.Time) ([]*domain.Session, error) {
	query := `
		DELETE FROM sessions s
		WHERE s.last_activity_at <= $1
		RETURNING ` + sessionColumns

	rows, err := r.db.Query(ctx, query, cutoff)
	if err != nil {
		r.log.Error("Failed to delete idle sessions", "error", err)
		return nil, err
	}
	defer rows.Close()

	var removed []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		removed = append(removed, s)
	}
	return removed, rows.Err()
}
