package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"mediation_desk/internal/service"
	apperrors "mediation_desk/pkg/errors"
	"mediation_desk/pkg/logger"
)

type RateLimitMiddleware struct {
	rateLimitService service.RateLimitService
	log              logger.Logger
}

func NewRateLimitMiddleware(rateLimitService service.RateLimitService, log logger.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		rateLimitService: rateLimitService,
		log:              log,
	}
}

// Limit throttles a route per client IP under the given key prefix.
// A failing counter store lets the request through.
func (m *RateLimitMiddleware) Limit(prefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := prefix + ":" + c.ClientIP()
		limit := m.rateLimitService.Limit()

		allowed, remaining, err := m.rateLimitService.Allow(c.Request.Context(), key)
		if err != nil {
			m.log.Error("Rate limit check failed", "error", err, "key", key)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(m.rateLimitService.Window().Seconds())))
			abort(c, apperrors.ErrRateLimited, "Rate limit exceeded")
			return
		}
		c.Next()
	}
}
