package repository

import (
	"sync"

	"github.com/google/uuid"

	"mediation_desk/internal/domain"
)

// memoryStore is a process-local stand-in for the Postgres schema. It keeps
// the same uniqueness and foreign-key rules under one lock.
type memoryStore struct {
	mu sync.RWMutex

	users        map[uuid.UUID]*domain.UserIdentity
	sessions     map[uuid.UUID]*domain.Session // by session id
	sessionUsers map[uuid.UUID]uuid.UUID       // user id -> session id
	activeNames  map[string]uuid.UUID          // display name -> session id

	requests     map[string]*domain.MediationRequest
	participants map[string]map[domain.Role]*domain.Participant

	messages      map[string][]*domain.ChatMessage
	lastMessageID int64

	audit       []*domain.AuditEntry
	lastAuditID int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:        make(map[uuid.UUID]*domain.UserIdentity),
		sessions:     make(map[uuid.UUID]*domain.Session),
		sessionUsers: make(map[uuid.UUID]uuid.UUID),
		activeNames:  make(map[string]uuid.UUID),
		requests:     make(map[string]*domain.MediationRequest),
		participants: make(map[string]map[domain.Role]*domain.Participant),
		messages:     make(map[string][]*domain.ChatMessage),
	}
}

func copySession(s *domain.Session) *domain.Session {
	c := *s
	if s.LinkedRequestID != nil {
		id := *s.LinkedRequestID
		c.LinkedRequestID = &id
	}
	return &c
}

func copyRequest(r *domain.MediationRequest) *domain.MediationRequest {
	c := *r
	return &c
}

func copyParticipant(p *domain.Participant) *domain.Participant {
	c := *p
	return &c
}

func copyMessage(m *domain.ChatMessage) *domain.ChatMessage {
	c := *m
	return &c
}
