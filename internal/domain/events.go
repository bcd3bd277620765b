package domain

import "github.com/google/uuid"

// Server to client events.
const (
	EventSubscribed     = "subscribed"
	EventMessageHistory = "message-history"
	EventUsersUpdated   = "users-updated"
	EventNewMessage     = "new-message"
	EventUserTyping     = "user-typing"
	EventRequestClosed  = "request-closed"
	EventError          = "error"
)

// Client to server frames.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameSendMessage = "send-message"
	FrameTyping      = "typing"
)

type Event struct {
	Type      string      `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type TypingPayload struct {
	UserID   uuid.UUID `json:"user_id"`
	Name     string    `json:"name"`
	IsTyping bool      `json:"is_typing"`
}

type RosterPayload struct {
	Participants []*Participant `json:"participants"`
}

type ClosedPayload struct {
	Status RequestStatus `json:"status"`
}

// ClientFrame is what a connection sends.
type ClientFrame struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Body      string `json:"body,omitempty"`
	IsTyping  bool   `json:"is_typing,omitempty"`
}

func NewErrorEvent(requestID, code, message string) *Event {
	return &Event{
		Type:      EventError,
		RequestID: requestID,
		Payload:   ErrorPayload{Code: code, Message: message},
	}
}
