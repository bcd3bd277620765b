package repository

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"mediation_desk/pkg/logger"
)

type Repositories struct {
	Session   SessionRepository
	Mediation MediationRepository
	Chat      ChatRepository
	RateLimit RateLimitRepository
	Audit     AuditRepository
}

func NewRepositories(db *pgxpool.Pool, redis *redis.Client, log logger.Logger) *Repositories {
	repos := &Repositories{
		Session:   NewSessionRepository(db, log),
		Mediation: NewMediationRepository(db, log),
		Chat:      NewChatRepository(db, log),
		RateLimit: NewRateLimitRepository(redis, log),
		Audit:     NewAuditRepository(db, log),
	}

	log.Info("Postgres repositories initialized")
	return repos
}

// NewMemoryRepositories returns repositories sharing one in-process store.
func NewMemoryRepositories(now func() time.Time, log logger.Logger) *Repositories {
	store := newMemoryStore()
	repos := &Repositories{
		Session:   &memorySessionRepository{store: store},
		Mediation: &memoryMediationRepository{store: store},
		Chat:      &memoryChatRepository{store: store},
		RateLimit: NewMemoryRateLimitRepository(now),
		Audit:     &memoryAuditRepository{store: store},
	}

	log.Info("In-memory repositories initialized")
	return repos
}
