package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediation_desk/internal/config"
	"mediation_desk/internal/domain"
	"mediation_desk/internal/hub"
	"mediation_desk/internal/metrics"
	"mediation_desk/internal/middleware"
	"mediation_desk/internal/repository"
	"mediation_desk/internal/service"
	"mediation_desk/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	hub    *hub.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{
		Environment: "test",
		Storage:     config.StorageConfig{Driver: config.StorageDriverMemory},
		Session:     config.SessionConfig{TokenSecret: "handler-secret", TokenTTL: time.Hour, Issuer: "handler-test", IdleTimeout: 7 * 24 * time.Hour},
		Mediation:   config.MediationConfig{PendingTimeout: 7 * 24 * time.Hour, IDLength: 8, IDMaxAttempts: 5},
		Chat:        config.ChatConfig{RateLimit: 10, RateWindow: time.Minute, MaxBodyLength: 500, DefaultReadLimit: 10000},
		WebSocket:   config.WebSocketConfig{PingInterval: 50 * time.Second, PongWait: time.Minute, WriteWait: 10 * time.Second, MaxMessageSize: 8192, SendBuffer: 64},
	}
	log := logger.Nop()
	m := metrics.New()
	repos := repository.NewMemoryRepositories(time.Now, log)
	services := service.NewServices(repos, cfg, m, time.Now, log)
	rooms := hub.New(services, m, log)

	handlers := NewHandlers(services, rooms, m, nil, cfg, log)
	router := SetupRouter(
		handlers,
		middleware.NewSessionAuth(services.Session, log),
		middleware.NewRateLimitMiddleware(services.RateLimit, log),
		cfg,
		log,
	)
	return &testServer{router: router, hub: rooms}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T, name string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/sessions", "", gin.H{"display_name": name})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var res service.LoginResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.NotEmpty(t, res.Token)
	return res.Token
}

func (s *testServer) createRequest(t *testing.T, token string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/requests", token, gin.H{
		"title":       "Used piano",
		"description": "Upright, needs tuning",
		"category":    "music",
		"price":       800,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var req domain.MediationRequest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &req))
	return req.ID
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]string](t, w)["code"]
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "alice")

	w := s.do(t, http.MethodGet, "/api/v1/sessions/current", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", decode[domain.Session](t, w).DisplayName)

	w = s.do(t, http.MethodPost, "/api/v1/sessions", "", gin.H{"display_name": "alice"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "NAME_IN_USE", errorCode(t, w))

	w = s.do(t, http.MethodPost, "/api/v1/sessions", "", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodDelete, "/api/v1/sessions/current", token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/sessions/current", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// the name is free again
	s.login(t, "alice")
}

func TestMediationJoinFlow(t *testing.T) {
	s := newTestServer(t)
	alice := s.login(t, "alice")
	bob := s.login(t, "bob")
	carol := s.login(t, "carol")
	dave := s.login(t, "dave")

	id := s.createRequest(t, alice)
	assert.Len(t, id, 8)

	w := s.do(t, http.MethodPost, "/api/v1/requests/"+id+"/join", bob, gin.H{"role": "seller"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	joined := decode[JoinResponse](t, w)
	assert.Equal(t, domain.RequestStatusActive, joined.Request.Status)
	assert.False(t, joined.Rejoined)

	w = s.do(t, http.MethodPost, "/api/v1/requests/"+id+"/join", carol, gin.H{"role": "seller"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ROLE_ALREADY_TAKEN", errorCode(t, w))

	w = s.do(t, http.MethodPost, "/api/v1/requests/"+id+"/join", dave, gin.H{"role": "referee"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "ROLE_NOT_RECOGNIZED", errorCode(t, w))

	w = s.do(t, http.MethodPost, "/api/v1/requests/ZZZZZZZZ/join", dave, gin.H{"role": "broker"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "REQUEST_NOT_FOUND", errorCode(t, w))

	w = s.do(t, http.MethodPost, "/api/v1/requests/"+id+"/join", carol, gin.H{"role": "broker"})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/requests/"+id, dave, nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[domain.MediationView](t, w)
	assert.Equal(t, "alice", view.BuyerName)
	require.NotNil(t, view.SellerName)
	assert.Equal(t, "bob", *view.SellerName)
	require.NotNil(t, view.BrokerName)
	assert.Equal(t, "carol", *view.BrokerName)

	// nobody is connected, so the online roster is empty
	w = s.do(t, http.MethodGet, "/api/v1/requests/"+id+"/participants", dave, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[map[string][]*domain.Participant](t, w)["participants"])
}

func TestChatOverHTTP(t *testing.T) {
	s := newTestServer(t)
	alice := s.login(t, "alice")
	bob := s.login(t, "bob")
	id := s.createRequest(t, alice)

	w := s.do(t, http.MethodPost, "/api/v1/requests/"+id+"/join", bob, gin.H{"role": "seller"})
	require.Equal(t, http.StatusOK, w.Code)

	for _, body := range []string{"Is it still in tune?", "Mostly."} {
		w = s.do(t, http.MethodPost, "/api/v1/requests/"+id+"/messages", alice, gin.H{"body": body})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
	w = s.do(t, http.MethodPost, "/api/v1/requests/"+id+"/messages", bob, gin.H{"body": "Tuned last spring"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, domain.RoleSeller, decode[domain.ChatMessage](t, w).SenderRole)

	w = s.do(t, http.MethodGet, "/api/v1/requests/"+id+"/messages", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	messages := decode[map[string][]*domain.ChatMessage](t, w)["messages"]
	require.Len(t, messages, 4)
	assert.Equal(t, domain.MessageKindSystem, messages[0].Kind)
	assert.Equal(t, "Is it still in tune?", messages[1].Body)
	assert.Equal(t, "Tuned last spring", messages[3].Body)

	w = s.do(t, http.MethodGet, "/api/v1/requests/"+id+"/messages?limit=2&offset=1", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[map[string][]*domain.ChatMessage](t, w)["messages"]
	require.Len(t, page, 2)
	assert.Equal(t, messages[1].ID, page[0].ID)

	w = s.do(t, http.MethodGet, "/api/v1/requests/"+id+"/messages?limit=9223372036854775807&offset=1", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decode[map[string][]*domain.ChatMessage](t, w)["messages"], 3)

	w = s.do(t, http.MethodPost, "/api/v1/requests/"+id+"/messages", alice, gin.H{"body": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/requests/NOPE1234/messages", alice, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCloseTransitions(t *testing.T) {
	s := newTestServer(t)
	alice := s.login(t, "alice")
	bob := s.login(t, "bob")
	eve := s.login(t, "eve")
	id := s.createRequest(t, alice)

	w := s.do(t, http.MethodPost, "/api/v1/requests/"+id+"/complete", alice, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_TRANSITION", errorCode(t, w))

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/requests/"+id+"/join", bob, gin.H{"role": "seller"}).Code)

	w = s.do(t, http.MethodPost, "/api/v1/requests/"+id+"/cancel", eve, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/requests/"+id+"/complete", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	done := decode[domain.MediationRequest](t, w)
	assert.Equal(t, domain.RequestStatusCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)

	w = s.do(t, http.MethodPost, "/api/v1/requests/"+id+"/messages", alice, gin.H{"body": "thanks"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "REQUEST_CLOSED", errorCode(t, w))

	w = s.do(t, http.MethodPost, "/api/v1/requests/"+id+"/cancel", alice, nil)
	assert.Equal(t, "REQUEST_CLOSED", errorCode(t, w))

	w = s.do(t, http.MethodGet, "/api/v1/requests/"+id+"/audit", eve, nil)
	require.Equal(t, http.StatusOK, w.Code)
	entries := decode[map[string][]*domain.AuditEntry](t, w)["entries"]
	require.Len(t, entries, 3)
	assert.Equal(t, domain.EventTypeRequestCreated, entries[0].EventType)
	assert.Equal(t, domain.EventTypeRoleJoined, entries[1].EventType)
	assert.Equal(t, domain.EventTypeRequestCompleted, entries[2].EventType)
	assert.Equal(t, "seller", entries[2].ActorRole)

	w = s.do(t, http.MethodGet, "/api/v1/requests/NOPE1234/audit", eve, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProtectedRoutesNeedSession(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/api/v1/requests", "", gin.H{"title": "x", "category": "y"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "memory", decode[map[string]string](t, w)["storage"])

	w = s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func readEvent(t *testing.T, conn *websocket.Conn, eventType string) map[string]json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var evt map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(data, &evt))
		var typ string
		require.NoError(t, json.Unmarshal(evt["type"], &typ))
		if typ == eventType {
			return evt
		}
	}
}

func TestWebSocketRoundTrip(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	alice := s.login(t, "alice")
	bob := s.login(t, "bob")
	id := s.createRequest(t, alice)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + alice
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(domain.ClientFrame{Type: domain.FrameSubscribe, RequestID: id}))
	readEvent(t, conn, domain.EventSubscribed)
	readEvent(t, conn, domain.EventMessageHistory)
	readEvent(t, conn, domain.EventUsersUpdated)

	// HTTP-originated activity reaches the socket
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/requests/"+id+"/join", bob, gin.H{"role": "seller"}).Code)
	evt := readEvent(t, conn, domain.EventNewMessage)
	var system domain.ChatMessage
	require.NoError(t, json.Unmarshal(evt["payload"], &system))
	assert.Equal(t, "bob joined as seller", system.Body)

	require.NoError(t, conn.WriteJSON(domain.ClientFrame{Type: domain.FrameSendMessage, RequestID: id, Body: "welcome"}))
	evt = readEvent(t, conn, domain.EventNewMessage)
	var msg domain.ChatMessage
	require.NoError(t, json.Unmarshal(evt["payload"], &msg))
	assert.Equal(t, "welcome", msg.Body)
	assert.Equal(t, domain.RoleBuyer, msg.SenderRole)

	require.NoError(t, conn.WriteJSON(domain.ClientFrame{Type: domain.FrameSubscribe, RequestID: "NOPE0000"}))
	evt = readEvent(t, conn, domain.EventError)
	var payload domain.ErrorPayload
	require.NoError(t, json.Unmarshal(evt["payload"], &payload))
	assert.Equal(t, "REQUEST_NOT_FOUND", payload.Code)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/requests/"+id+"/cancel", alice, nil).Code)
	evt = readEvent(t, conn, domain.EventRequestClosed)
	var closed domain.ClosedPayload
	require.NoError(t, json.Unmarshal(evt["payload"], &closed))
	assert.Equal(t, domain.RequestStatusCancelled, closed.Status)
	assert.Zero(t, s.hub.SubscriberCount(id))
}

func TestWebSocketRequiresSession(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
