package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"mediation_desk/internal/domain"
	"mediation_desk/internal/service"
	apperrors "mediation_desk/pkg/errors"
	"mediation_desk/pkg/logger"
)

const (
	ContextSessionKey = "session"
	ContextUserIDKey  = "user_id"
)

type SessionAuth struct {
	sessions service.SessionService
	log      logger.Logger
}

func NewSessionAuth(sessions service.SessionService, log logger.Logger) *SessionAuth {
	return &SessionAuth{
		sessions: sessions,
		log:      log,
	}
}

// RequireSession accepts a bearer token, or a token query parameter for
// clients that cannot set headers on a websocket upgrade.
func (m *SessionAuth) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				abort(c, apperrors.ErrUnauthorized, "Invalid authorization header format")
				return
			}
			token = parts[1]
		}
		if token == "" {
			abort(c, apperrors.ErrUnauthorized, "Authorization header required")
			return
		}

		session, err := m.sessions.Authenticate(c.Request.Context(), token)
		if err != nil {
			m.log.Debug("Session rejected", "error", err, "path", c.FullPath())
			abort(c, err, apperrors.Public(err))
			return
		}

		c.Set(ContextSessionKey, session)
		c.Set(ContextUserIDKey, session.UserID)
		c.Next()
	}
}

// CurrentSession returns the session stored by RequireSession.
func CurrentSession(c *gin.Context) *domain.Session {
	v, ok := c.Get(ContextSessionKey)
	if !ok {
		return nil
	}
	session, _ := v.(*domain.Session)
	return session
}

func CurrentUserID(c *gin.Context) uuid.UUID {
	v, ok := c.Get(ContextUserIDKey)
	if !ok {
		return uuid.Nil
	}
	id, _ := v.(uuid.UUID)
	return id
}

func abort(c *gin.Context, err error, message string) {
	status := apperrors.HTTPStatusFromError(err)
	if status == http.StatusInternalServerError {
		message = apperrors.ErrInternalServer.Error()
	}
	c.AbortWithStatusJSON(status, gin.H{"error": message, "code": apperrors.Code(err)})
}
