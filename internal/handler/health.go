package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mediation_desk/internal/metrics"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db      Pinger
	metrics *metrics.Metrics
	storage string
}

// NewHealthHandler accepts a nil db for the in-memory driver.
func NewHealthHandler(db Pinger, m *metrics.Metrics, storage string) *HealthHandler {
	return &HealthHandler{
		db:      db,
		metrics: m,
		storage: storage,
	}
}

func (h *HealthHandler) Check(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{
		"status":  "ok",
		"service": "mediation-desk",
		"storage": h.storage,
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["database"] = err.Error()
		}
	}

	c.JSON(status, body)
}

func (h *HealthHandler) Metrics(c *gin.Context) {
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}
