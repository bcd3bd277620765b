package handler

import (
	"github.com/gin-gonic/gin"

	"mediation_desk/internal/config"
	"mediation_desk/internal/middleware"
	"mediation_desk/pkg/logger"
)

func SetupRouter(
	handlers *Handlers,
	auth *middleware.SessionAuth,
	rateLimit *middleware.RateLimitMiddleware,
	cfg *config.Config,
	log logger.Logger,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.ErrorHandler(log))

	router.GET("/health", handlers.Health.Check)
	router.GET("/metrics", handlers.Health.Metrics)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/sessions", rateLimit.Limit("login"), handlers.Session.Login)

		protected := v1.Group("")
		protected.Use(auth.RequireSession())
		{
			sessions := protected.Group("/sessions/current")
			{
				sessions.GET("", handlers.Session.Current)
				sessions.DELETE("", handlers.Session.Logout)
			}

			requests := protected.Group("/requests")
			{
				requests.POST("", handlers.Mediation.Create)
				requests.GET("/:id", handlers.Mediation.Get)
				requests.GET("/:id/participants", handlers.Mediation.Participants)
				requests.GET("/:id/audit", handlers.Mediation.Audit)
				requests.POST("/:id/join", handlers.Mediation.Join)
				requests.POST("/:id/complete", handlers.Mediation.Complete)
				requests.POST("/:id/cancel", handlers.Mediation.Cancel)
				requests.GET("/:id/messages", handlers.Chat.List)
				requests.POST("/:id/messages", handlers.Chat.Send)
			}
		}
	}

	router.GET("/ws", auth.RequireSession(), handlers.WebSocket.Handle)

	return router
}
