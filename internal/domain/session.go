package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role is a party's position in a mediation request.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleBroker Role = "broker"
	RoleNone   Role = "none"
)

// ParseRole accepts only roles that can occupy a slot.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleBuyer, RoleSeller, RoleBroker:
		return Role(s), true
	}
	return "", false
}

// UserIdentity outlives its sessions so history keeps resolving names.
type UserIdentity struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

type Session struct {
	ID              uuid.UUID `json:"session_id"`
	UserID          uuid.UUID `json:"user_id"`
	DisplayName     string    `json:"display_name"`
	Role            Role      `json:"role"`
	LinkedRequestID *string   `json:"linked_request_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
}

// ExpiredAt reports whether the session has been idle for at least idle.
// The boundary is inclusive: exactly idle since the last action is expired.
func (s *Session) ExpiredAt(now time.Time, idle time.Duration) bool {
	return !s.LastActivityAt.After(now.Add(-idle))
}
