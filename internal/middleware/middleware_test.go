package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediation_desk/internal/config"
	"mediation_desk/internal/metrics"
	"mediation_desk/internal/repository"
	"mediation_desk/internal/service"
	apperrors "mediation_desk/pkg/errors"
	"mediation_desk/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newServices(t *testing.T, now *time.Time) *service.Services {
	t.Helper()
	clock := func() time.Time { return *now }
	cfg := &config.Config{
		Session:   config.SessionConfig{TokenSecret: "mw-secret", TokenTTL: 30 * 24 * time.Hour, Issuer: "mw-test", IdleTimeout: 7 * 24 * time.Hour},
		Mediation: config.MediationConfig{PendingTimeout: 7 * 24 * time.Hour, IDLength: 8, IDMaxAttempts: 5},
		Chat:      config.ChatConfig{RateLimit: 3, RateWindow: time.Minute, MaxBodyLength: 500, DefaultReadLimit: 100},
	}
	repos := repository.NewMemoryRepositories(clock, logger.Nop())
	return service.NewServices(repos, cfg, metrics.New(), clock, logger.Nop())
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestRequireSession(t *testing.T) {
	now := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)
	services := newServices(t, &now)
	login, err := services.Session.Login(context.Background(), service.LoginInput{DisplayName: "alice"})
	require.NoError(t, err)

	router := gin.New()
	router.GET("/me", NewSessionAuth(services.Session, logger.Nop()).RequireSession(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"name": CurrentSession(c).DisplayName, "user_id": CurrentUserID(c)})
	})

	tests := []struct {
		name   string
		header string
		query  string
		status int
		code   string
	}{
		{name: "missing token", status: http.StatusUnauthorized, code: "UNAUTHORIZED"},
		{name: "malformed header", header: "Token abc", status: http.StatusUnauthorized, code: "UNAUTHORIZED"},
		{name: "garbage token", header: "Bearer abc", status: http.StatusUnauthorized, code: "INVALID_TOKEN"},
		{name: "bearer token", header: "Bearer " + login.Token, status: http.StatusOK},
		{name: "query token", query: "?token=" + login.Token, status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.code != "" {
				assert.Equal(t, tt.code, decodeError(t, w)["code"])
			} else {
				assert.Equal(t, "alice", decodeError(t, w)["name"])
			}
		})
	}
}

func TestRequireSessionExpired(t *testing.T) {
	now := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)
	services := newServices(t, &now)
	login, err := services.Session.Login(context.Background(), service.LoginInput{DisplayName: "alice"})
	require.NoError(t, err)

	router := gin.New()
	router.GET("/me", NewSessionAuth(services.Session, logger.Nop()).RequireSession(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	now = now.Add(7 * 24 * time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "SESSION_EXPIRED", decodeError(t, w)["code"])
}

func TestRateLimitMiddleware(t *testing.T) {
	now := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)
	services := newServices(t, &now)

	router := gin.New()
	router.POST("/login", NewRateLimitMiddleware(services.RateLimit, logger.Nop()).Limit("login"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	send := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
		return w
	}

	for i := 0; i < 3; i++ {
		w := send()
		require.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
	}

	w := send()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", decodeError(t, w)["code"])
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	now = now.Add(time.Minute)
	assert.Equal(t, http.StatusNoContent, send().Code)
}

func TestErrorHandler(t *testing.T) {
	router := gin.New()
	router.Use(ErrorHandler(logger.Nop()))
	router.GET("/missing", func(c *gin.Context) {
		_ = c.Error(apperrors.ErrRequestNotFound)
	})
	router.GET("/boom", func(c *gin.Context) {
		_ = c.Error(assert.AnError)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "REQUEST_NOT_FOUND", decodeError(t, w)["code"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, apperrors.ErrInternalServer.Error(), decodeError(t, w)["error"])
}

func TestCORSPreflight(t *testing.T) {
	router := gin.New()
	router.Use(CORS())
	router.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/x", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
