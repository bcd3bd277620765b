package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageKind string

const (
	MessageKindText   MessageKind = "text"
	MessageKindSystem MessageKind = "system"
)

// ChatMessage is append-only. ID is the per-store insertion sequence and is
// the only ordering key.
type ChatMessage struct {
	ID         int64       `json:"id"`
	RequestID  string      `json:"request_id"`
	SenderID   uuid.UUID   `json:"sender_id"`
	SenderName string      `json:"sender_name"`
	SenderRole Role        `json:"sender_role"`
	Body       string      `json:"body"`
	Kind       MessageKind `json:"kind"`
	CreatedAt  time.Time   `json:"created_at"`
}

type Page struct {
	Limit  int
	Offset int
}
