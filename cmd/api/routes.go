package main

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"outreach-platform/internal/config"
	"outreach-platform/internal/httpapi"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	{
		// Monitor sessions: one per open dashboard view. The session owns
		// the poll loop, the status store, and any running dispatch.
		sessions := v1.Group("/monitor/sessions")
		{
			sessions.POST("", h.OpenSession)
			sessions.GET("/:session_id", h.GetSession)
			sessions.POST("/:session_id/page", h.SetPage)
			sessions.POST("/:session_id/page-size", h.SetPageSize)
			sessions.POST("/:session_id/filter", h.SetFilter)
			sessions.POST("/:session_id/reconnect", h.Reconnect)
			sessions.GET("/:session_id/export", h.Export)
			sessions.POST("/:session_id/dispatch", h.Dispatch)
			sessions.POST("/:session_id/dispatch/cancel", h.CancelDispatch)
			sessions.DELETE("/:session_id", h.CloseSession)
		}

		// Server-side batch campaigns, proxied to the groups backend.
		v1.POST("/groups/:group_id/batch-call", h.StartBatch)
	}
}

func corsMiddleware(c config.CORSConfig) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Request-Id"},
		ExposeHeaders:    []string{"Content-Disposition", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(c.AllowedOrigins) == 0 {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	} else {
		cfg.AllowOrigins = c.AllowedOrigins
	}
	return cors.New(cfg)
}
