package domain

import (
	"time"

	"github.com/google/uuid"
)

type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusActive    RequestStatus = "active"
	RequestStatusCompleted RequestStatus = "completed"
	RequestStatusCancelled RequestStatus = "cancelled"
)

// Terminal statuses accept no further joins or status writes.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusCompleted || s == RequestStatusCancelled
}

type MediationRequest struct {
	ID          string        `json:"id"`
	BuyerID     uuid.UUID     `json:"buyer_id"`
	SellerID    *uuid.UUID    `json:"seller_id,omitempty"`
	BrokerID    *uuid.UUID    `json:"broker_id,omitempty"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Category    string        `json:"category"`
	Price       *float64      `json:"price,omitempty"`
	Location    *string       `json:"location,omitempty"`
	Status      RequestStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// Participant occupies one role slot of a request. Rows are never deleted.
type Participant struct {
	RequestID string    `json:"request_id"`
	UserID    uuid.UUID `json:"user_id"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	IsOnline  bool      `json:"is_online"`
	JoinedAt  time.Time `json:"joined_at"`
	LastSeen  time.Time `json:"last_seen"`
}

// MediationView is a request with its role slots resolved to names.
type MediationView struct {
	*MediationRequest
	BuyerName    string         `json:"buyer_name"`
	SellerName   *string        `json:"seller_name,omitempty"`
	BrokerName   *string        `json:"broker_name,omitempty"`
	Participants []*Participant `json:"participants"`
}

type CreateRequestInput struct {
	BuyerID     uuid.UUID `validate:"required"`
	BuyerName   string    `validate:"required,max=64"`
	Title       string    `validate:"required,max=200"`
	Description string    `validate:"max=4000"`
	Category    string    `validate:"required,max=64"`
	Price       *float64  `validate:"omitempty,gte=0"`
	Location    *string   `validate:"omitempty,max=200"`
}
