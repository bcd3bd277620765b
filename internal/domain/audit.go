package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditEntry records one lifecycle change. ActorUserID is nil for system
// actions such as janitor expiry.
type AuditEntry struct {
	ID          int64                  `json:"id"`
	EventTime   time.Time              `json:"event_time"`
	ActorUserID *uuid.UUID             `json:"actor_user_id,omitempty"`
	ActorRole   string                 `json:"actor_role"`
	RequestID   *string                `json:"request_id,omitempty"`
	EventType   string                 `json:"event_type"`
	Payload     map[string]interface{} `json:"payload"`
}

const ActorRoleSystem = "system"

const (
	EventTypeRequestCreated   = "REQUEST_CREATED"
	EventTypeRoleJoined       = "ROLE_JOINED"
	EventTypeRequestCompleted = "REQUEST_COMPLETED"
	EventTypeRequestCancelled = "REQUEST_CANCELLED"
	EventTypeRequestExpired   = "REQUEST_EXPIRED"
	EventTypeSessionExpired   = "SESSION_EXPIRED"
)
