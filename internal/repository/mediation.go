package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mediation_desk/internal/domain"
	apperrors "mediation_desk/pkg/errors"
	"mediation_desk/pkg/logger"
)

type MediationRepository interface {
	Create(ctx context.Context, req *domain.MediationRequest) error
	Exists(ctx context.Context, id string) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.MediationRequest, error)
	Update(ctx context.Context, req *domain.MediationRequest) error
	ListStalePending(ctx context.Context, cutoff time.Time) ([]string, error)

	// UpsertParticipant claims a role slot. It fails with ErrRoleAlreadyTaken
	// when a different user holds the slot.
	UpsertParticipant(ctx context.Context, p *domain.Participant) error
	GetParticipant(ctx context.Context, requestID string, role domain.Role) (*domain.Participant, error)
	ListParticipants(ctx context.Context, requestID string, onlineOnly bool) ([]*domain.Participant, error)
	SetPresence(ctx context.Context, requestID string, userID uuid.UUID, online bool, at time.Time) (int64, error)
}

type mediationRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewMediationRepository(db *pgxpool.Pool, log logger.Logger) MediationRepository {
	return &mediationRepository{db: db, log: log}
}

func (r *mediationRepository) Create(ctx context.Context, req *domain.MediationRequest) error {
	query := `
		INSERT INTO mediation_requests (
			id, buyer_id, title, description, category, price, location,
			status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Exec(ctx, query,
		req.ID, req.BuyerID, req.Title, req.Description, req.Category, req.Price, req.Location,
		string(req.Status), req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		if code, _ := pgErrorCode(err); code == pgUniqueViolation {
			return apperrors.ErrRequestIDTaken
		}
		r.log.Error("Failed to create mediation request", "error", err, "request_id", req.ID)
		return err
	}
	return nil
}

func (r *mediationRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM mediation_requests WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		r.log.Error("Failed to check mediation request", "error", err)
		return false, err
	}
	return exists, nil
}

func (r *mediationRepository) GetByID(ctx context.Context, id string) (*domain.MediationRequest, error) {
	query := `
		SELECT id, buyer_id, seller_id, broker_id, title, description, category,
		       price, location, status, created_at, updated_at, completed_at
		FROM mediation_requests
		WHERE id = $1
	`

	req := &domain.MediationRequest{}
	var status string
	err := r.db.QueryRow(ctx, query, id).Scan(
		&req.ID, &req.BuyerID, &req.SellerID, &req.BrokerID, &req.Title, &req.Description, &req.Category,
		&req.Price, &req.Location, &status, &req.CreatedAt, &req.UpdatedAt, &req.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrRequestNotFound
		}
		r.log.Error("Failed to get mediation request", "error", err, "request_id", id)
		return nil, err
	}
	req.Status = domain.RequestStatus(status)
	return req, nil
}

func (r *mediationRepository) Update(ctx context.Context, req *domain.MediationRequest) error {
	query := `
		UPDATE mediation_requests
		SET seller_id = $2, broker_id = $3, status = $4, updated_at = $5, completed_at = $6
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query,
		req.ID, req.SellerID, req.BrokerID, string(req.Status), req.UpdatedAt, req.CompletedAt,
	)
	if err != nil {
		r.log.Error("Failed to update mediation request", "error", err, "request_id", req.ID)
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrRequestNotFound
	}
	return nil
}

func (r *mediationRepository) ListStalePending(ctx context.Context, cutoff time.Time) ([]string, error) {
	query := `
		SELECT id FROM mediation_requests
		WHERE status = 'pending' AND created_at <= $1
		ORDER BY created_at
	`

	rows, err := r.db.Query(ctx, query, cutoff)
	if err != nil {
		r.log.Error("Failed to list stale requests", "error", err)
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *mediationRepository) UpsertParticipant(ctx context.Context, p *domain.Participant) error {
	// The WHERE clause leaves a slot held by someone else untouched, in
	// which case no row comes back.
	query := `
		INSERT INTO mediation_participants (request_id, role, user_id, name, is_online, joined_at, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (request_id, role) DO UPDATE
		SET name = EXCLUDED.name, is_online = EXCLUDED.is_online, last_seen = EXCLUDED.last_seen
		WHERE mediation_participants.user_id = EXCLUDED.user_id
		RETURNING joined_at
	`

	err := r.db.QueryRow(ctx, query,
		p.RequestID, string(p.Role), p.UserID, p.Name, p.IsOnline, p.JoinedAt, p.LastSeen,
	).Scan(&p.JoinedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrRoleAlreadyTaken
		}
		if code, _ := pgErrorCode(err); code == pgForeignKeyViolation {
			return apperrors.ErrRequestNotFound
		}
		r.log.Error("Failed to upsert participant", "error", err, "request_id", p.RequestID)
		return err
	}
	return nil
}

const participantColumns = `request_id, role, user_id, name, is_online, joined_at, last_seen`

func scanParticipant(row pgx.Row) (*domain.Participant, error) {
	p := &domain.Participant{}
	var role string
	if err := row.Scan(&p.RequestID, &role, &p.UserID, &p.Name, &p.IsOnline, &p.JoinedAt, &p.LastSeen); err != nil {
		return nil, err
	}
	p.Role = domain.Role(role)
	return p, nil
}

func (r *mediationRepository) GetParticipant(ctx context.Context, requestID string, role domain.Role) (*domain.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM mediation_participants WHERE request_id = $1 AND role = $2`

	p, err := scanParticipant(r.db.QueryRow(ctx, query, requestID, string(role)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		r.log.Error("Failed to get participant", "error", err)
		return nil, err
	}
	return p, nil
}

func (r *mediationRepository) ListParticipants(ctx context.Context, requestID string, onlineOnly bool) ([]*domain.Participant, error) {
	query := `
		SELECT ` + participantColumns + `
		FROM mediation_participants
		WHERE request_id = $1 AND (NOT $2 OR is_online)
		ORDER BY joined_at, role
	`

	rows, err := r.db.Query(ctx, query, requestID, onlineOnly)
	if err != nil {
		r.log.Error("Failed to list participants", "error", err, "request_id", requestID)
		return nil, err
	}
	defer rows.Close()

	participants := make([]*domain.Participant, 0)
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func (r *mediationRepository) SetPresence(ctx context.Context, requestID string, userID uuid.UUID, online bool, at time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE mediation_participants SET is_online = $3, last_seen = $4
		WHERE request_id = $1 AND user_id = $2
	`, requestID, userID, online, at)
	if err != nil {
		r.log.Error("Failed to update presence", "error", err, "request_id", requestID)
		return 0, err
	}
	return tag.RowsAffected(), nil
}
