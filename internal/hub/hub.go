package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"mediation_desk/internal/domain"
	"mediation_desk/internal/metrics"
	"mediation_desk/internal/service"
	apperrors "mediation_desk/pkg/errors"
	"mediation_desk/pkg/logger"
)

// Identity is the authenticated party behind a subscriber.
type Identity struct {
	UserID    uuid.UUID
	SessionID uuid.UUID
	Name      string
}

// Subscriber is one live connection. Send must not block; it reports
// false when the event could not be queued.
type Subscriber interface {
	ID() string
	Identity() Identity
	Send(evt *domain.Event) bool
}

// Hub maps requests to their live subscribers and fans events out to them.
// It is a process-local cache; the stores stay authoritative.
type Hub struct {
	mu          sync.RWMutex
	rooms       map[string]map[string]Subscriber // request id -> subscriber id -> subscriber
	memberships map[string]map[string]struct{}   // subscriber id -> request ids

	sessions  service.SessionService
	mediation service.MediationService
	chat      service.ChatService
	metrics   *metrics.Metrics
	log       logger.Logger
}

func New(services *service.Services, m *metrics.Metrics, log logger.Logger) *Hub {
	return &Hub{
		rooms:       make(map[string]map[string]Subscriber),
		memberships: make(map[string]map[string]struct{}),
		sessions:    services.Session,
		mediation:   services.Mediation,
		chat:        services.Chat,
		metrics:     m,
		log:         log,
	}
}

func (h *Hub) Connect(sub Subscriber) {
	h.metrics.Connections.Inc()
	h.log.Debug("Subscriber connected", "subscriber_id", sub.ID(), "user_id", sub.Identity().UserID)
}

// Disconnect leaves every room the subscriber is in.
func (h *Hub) Disconnect(ctx context.Context, sub Subscriber) {
	h.mu.RLock()
	requestIDs := lo.Keys(h.memberships[sub.ID()])
	h.mu.RUnlock()

	for _, id := range requestIDs {
		h.Unsubscribe(ctx, sub, id)
	}
	h.metrics.Connections.Dec()
	h.log.Debug("Subscriber disconnected", "subscriber_id", sub.ID())
}

// Dispatch routes one client frame to its operation.
func (h *Hub) Dispatch(ctx context.Context, sub Subscriber, frame *domain.ClientFrame) error {
	var err error
	switch frame.Type {
	case domain.FrameSubscribe:
		err = h.Subscribe(ctx, sub, frame.RequestID)
	case domain.FrameUnsubscribe:
		h.Unsubscribe(ctx, sub, frame.RequestID)
	case domain.FrameSendMessage:
		_, err = h.SendMessage(ctx, sub, frame.RequestID, frame.Body)
	case domain.FrameTyping:
		err = h.Typing(ctx, sub, frame.RequestID, frame.IsTyping)
	default:
		err = h.reject(sub, frame.RequestID, fmt.Errorf("%w: unknown frame type %q", apperrors.ErrBadRequest, frame.Type))
	}
	return err
}

// Subscribe joins the room before reading the store, so a close that lands
// in between is either seen as a terminal status or evicts the subscriber.
func (h *Hub) Subscribe(ctx context.Context, sub Subscriber, requestID string) error {
	id := sub.Identity()
	if _, err := h.sessions.Validate(ctx, id.UserID, &id.SessionID); err != nil {
		return h.reject(sub, requestID, err)
	}

	if h.add(sub, requestID) {
		h.metrics.Subscriptions.Inc()
	}

	view, err := h.mediation.Get(ctx, requestID)
	if err == nil && view.Status.Terminal() {
		err = apperrors.ErrRequestClosed
	}
	if err != nil {
		return h.rollback(sub, requestID, err)
	}

	history, err := h.chat.Read(ctx, requestID, domain.Page{})
	if err != nil {
		return h.rollback(sub, requestID, err)
	}
	if !h.isMember(sub, requestID) {
		return h.reject(sub, requestID, apperrors.ErrRequestClosed)
	}

	if err := h.mediation.SetPresence(ctx, requestID, id.UserID, true); err != nil {
		h.log.Warn("Failed to mark participant online", "error", err, "request_id", requestID)
	}

	sub.Send(&domain.Event{Type: domain.EventSubscribed, RequestID: requestID, Payload: view})
	sub.Send(&domain.Event{Type: domain.EventMessageHistory, RequestID: requestID, Payload: history})
	h.broadcastRoster(ctx, requestID)
	return nil
}

// rollback undoes a subscription that failed after the room was joined.
func (h *Hub) rollback(sub Subscriber, requestID string, err error) error {
	if removed, _ := h.remove(sub, requestID); removed {
		h.metrics.Subscriptions.Dec()
	}
	return h.reject(sub, requestID, err)
}

func (h *Hub) Unsubscribe(ctx context.Context, sub Subscriber, requestID string) {
	removed, stillPresent := h.remove(sub, requestID)
	if !removed {
		return
	}
	h.metrics.Subscriptions.Dec()

	if !stillPresent {
		if err := h.mediation.SetPresence(ctx, requestID, sub.Identity().UserID, false); err != nil {
			h.log.Warn("Failed to mark participant offline", "error", err, "request_id", requestID)
		}
	}
	h.broadcastRoster(ctx, requestID)
}

func (h *Hub) SendMessage(ctx context.Context, sub Subscriber, requestID, body string) (*domain.ChatMessage, error) {
	id := sub.Identity()
	if _, err := h.sessions.Validate(ctx, id.UserID, &id.SessionID); err != nil {
		return nil, h.reject(sub, requestID, err)
	}

	msg, err := h.chat.Send(ctx, service.SendInput{
		RequestID:  requestID,
		SenderID:   id.UserID,
		SenderName: id.Name,
		Body:       body,
	})
	if err != nil {
		return nil, h.reject(sub, requestID, err)
	}

	h.Publish(msg)
	return msg, nil
}

// Typing is ephemeral and goes to everyone in the room except the typist.
func (h *Hub) Typing(ctx context.Context, sub Subscriber, requestID string, isTyping bool) error {
	id := sub.Identity()
	if _, err := h.sessions.Validate(ctx, id.UserID, &id.SessionID); err != nil {
		return h.reject(sub, requestID, err)
	}

	if !h.isMember(sub, requestID) {
		if _, err := h.mediation.Get(ctx, requestID); err != nil {
			return h.reject(sub, requestID, err)
		}
		return nil
	}

	h.broadcast(requestID, &domain.Event{
		Type:      domain.EventUserTyping,
		RequestID: requestID,
		Payload:   domain.TypingPayload{UserID: id.UserID, Name: id.Name, IsTyping: isTyping},
	}, sub.ID())
	return nil
}

// Publish fans a stored message out to the request's room.
func (h *Hub) Publish(msg *domain.ChatMessage) {
	h.broadcast(msg.RequestID, &domain.Event{
		Type:      domain.EventNewMessage,
		RequestID: msg.RequestID,
		Payload:   msg,
	}, "")
}

// AnnounceJoin records a system message for a first-time role join and
// refreshes the room roster.
func (h *Hub) AnnounceJoin(ctx context.Context, res *service.JoinResult) {
	p := res.Participant
	// the participant row did not exist when the user subscribed
	if !p.IsOnline && h.hasUser(p.RequestID, p.UserID) {
		if err := h.mediation.SetPresence(ctx, p.RequestID, p.UserID, true); err != nil {
			h.log.Warn("Failed to mark participant online", "error", err, "request_id", p.RequestID)
		} else {
			p.IsOnline = true
		}
	}

	if !res.Rejoined {
		msg, err := h.chat.Append(ctx, &domain.ChatMessage{
			RequestID:  p.RequestID,
			SenderID:   p.UserID,
			SenderName: p.Name,
			SenderRole: p.Role,
			Body:       fmt.Sprintf("%s joined as %s", p.Name, p.Role),
			Kind:       domain.MessageKindSystem,
		})
		if err != nil {
			h.log.Error("Failed to record join message", "error", err, "request_id", p.RequestID)
		} else {
			h.Publish(msg)
		}
	}
	h.broadcastRoster(ctx, p.RequestID)
}

// CloseRoom notifies the room and evicts it. Connections stay open.
func (h *Hub) CloseRoom(requestID string, status domain.RequestStatus) {
	h.mu.Lock()
	room := h.rooms[requestID]
	delete(h.rooms, requestID)
	for subID := range room {
		delete(h.memberships[subID], requestID)
		if len(h.memberships[subID]) == 0 {
			delete(h.memberships, subID)
		}
	}
	h.mu.Unlock()

	if len(room) == 0 {
		return
	}
	h.metrics.Subscriptions.Sub(float64(len(room)))

	evt := &domain.Event{Type: domain.EventRequestClosed, RequestID: requestID, Payload: domain.ClosedPayload{Status: status}}
	for _, sub := range room {
		h.deliver(sub, evt)
	}
	h.log.Info("Room closed", "request_id", requestID, "status", string(status), "subscribers", len(room))
}

// SubscriberCount reports live subscribers of a request.
func (h *Hub) SubscriberCount(requestID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[requestID])
}

func (h *Hub) add(sub Subscriber, requestID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[requestID]
	if !ok {
		room = make(map[string]Subscriber)
		h.rooms[requestID] = room
	}
	if _, already := room[sub.ID()]; already {
		return false
	}
	room[sub.ID()] = sub

	if h.memberships[sub.ID()] == nil {
		h.memberships[sub.ID()] = make(map[string]struct{})
	}
	h.memberships[sub.ID()][requestID] = struct{}{}
	return true
}

// remove reports whether sub was in the room and whether its user still has
// another connection there.
func (h *Hub) remove(sub Subscriber, requestID string) (removed, stillPresent bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[requestID]
	if !ok {
		return false, false
	}
	if _, ok := room[sub.ID()]; !ok {
		return false, false
	}
	delete(room, sub.ID())
	if len(room) == 0 {
		delete(h.rooms, requestID)
	}
	delete(h.memberships[sub.ID()], requestID)
	if len(h.memberships[sub.ID()]) == 0 {
		delete(h.memberships, sub.ID())
	}

	userID := sub.Identity().UserID
	_, stillPresent = lo.Find(lo.Values(room), func(other Subscriber) bool {
		return other.Identity().UserID == userID
	})
	return true, stillPresent
}

func (h *Hub) isMember(sub Subscriber, requestID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[requestID][sub.ID()]
	return ok
}

// hasUser reports whether any connection of userID is in the room.
func (h *Hub) hasUser(requestID string, userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return lo.SomeBy(lo.Values(h.rooms[requestID]), func(sub Subscriber) bool {
		return sub.Identity().UserID == userID
	})
}

func (h *Hub) broadcastRoster(ctx context.Context, requestID string) {
	participants, err := h.mediation.ListParticipants(ctx, requestID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrRequestNotFound) {
			h.log.Error("Failed to load roster", "error", err, "request_id", requestID)
		}
		return
	}
	h.broadcast(requestID, &domain.Event{
		Type:      domain.EventUsersUpdated,
		RequestID: requestID,
		Payload:   domain.RosterPayload{Participants: participants},
	}, "")
}

func (h *Hub) broadcast(requestID string, evt *domain.Event, exclude string) {
	h.mu.RLock()
	targets := lo.Filter(lo.Values(h.rooms[requestID]), func(sub Subscriber, _ int) bool {
		return sub.ID() != exclude
	})
	h.mu.RUnlock()

	for _, sub := range targets {
		h.deliver(sub, evt)
	}
}

func (h *Hub) deliver(sub Subscriber, evt *domain.Event) {
	if !sub.Send(evt) {
		h.metrics.EventsDropped.Inc()
		h.log.Warn("Dropped event for slow subscriber", "subscriber_id", sub.ID(), "event", evt.Type)
	}
}

// reject reports err to the origin subscriber only.
func (h *Hub) reject(sub Subscriber, requestID string, err error) error {
	sub.Send(domain.NewErrorEvent(requestID, apperrors.Code(err), apperrors.Public(err)))
	return err
}
