package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"mediation_desk/internal/config"
	"mediation_desk/internal/domain"
	"mediation_desk/internal/metrics"
	"mediation_desk/internal/repository"
	"mediation_desk/pkg/logger"
)

var epoch = time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: epoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() *config.Config {
	return &config.Config{
		Session: config.SessionConfig{
			TokenSecret: "test-secret",
			TokenTTL:    30 * 24 * time.Hour,
			Issuer:      "mediation-test",
			IdleTimeout: 7 * 24 * time.Hour,
		},
		Mediation: config.MediationConfig{
			PendingTimeout: 7 * 24 * time.Hour,
			IDLength:       8,
			IDMaxAttempts:  5,
		},
		Chat: config.ChatConfig{
			RateLimit:        10,
			RateWindow:       time.Minute,
			MaxBodyLength:    500,
			DefaultReadLimit: 10000,
		},
	}
}

type fixture struct {
	clock    *fakeClock
	repos    *repository.Repositories
	services *Services
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := newFakeClock()
	repos := repository.NewMemoryRepositories(clock.Now, logger.Nop())
	m := metrics.New()
	return &fixture{
		clock:    clock,
		repos:    repos,
		services: NewServices(repos, testConfig(), m, clock.Now, logger.Nop()),
		metrics:  m,
	}
}

func (f *fixture) login(t *testing.T, name string) *domain.Session {
	t.Helper()
	res, err := f.services.Session.Login(context.Background(), LoginInput{DisplayName: name})
	require.NoError(t, err)
	return res.Session
}

func (f *fixture) createRequest(t *testing.T, buyer *domain.Session) *domain.MediationRequest {
	t.Helper()
	price := 1200.0
	req, err := f.services.Mediation.Create(context.Background(), domain.CreateRequestInput{
		BuyerID:     buyer.UserID,
		BuyerName:   buyer.DisplayName,
		Title:       "Vintage camera",
		Description: "Leica M3, boxed",
		Category:    "electronics",
		Price:       &price,
	})
	require.NoError(t, err)
	return req
}

// recordingRooms captures CloseRoom calls.
type recordingRooms struct {
	mu     sync.Mutex
	closed map[string]domain.RequestStatus
}

func newRecordingRooms() *recordingRooms {
	return &recordingRooms{closed: make(map[string]domain.RequestStatus)}
}

func (r *recordingRooms) CloseRoom(requestID string, status domain.RequestStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed[requestID] = status
}

func (r *recordingRooms) status(requestID string) (domain.RequestStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.closed[requestID]
	return s, ok
}

func ptrUUID(id uuid.UUID) *uuid.UUID {
	return &id
}
