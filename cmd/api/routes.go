package main

import (
	"database/sql"
	"time"

	"callbridge/internal/httpapi"
	"callbridge/internal/monitoring"
	"callbridge/internal/rbac"
	"callbridge/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type routeAuth struct {
	webhook gin.HandlerFunc
	access  gin.HandlerFunc
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, mw routeAuth, db *sql.DB, rdb *redis.Client) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(503, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(503, gin.H{"status": "degraded", "error": "redis ping failed"})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", monitoring.Handler())

	// Platform webhooks: static bearer, no user identity.
	hooks := r.Group("/webhooks")
	hooks.Use(mw.webhook)
	{
		hooks.POST("/call-setup", h.CallSetup)
		hooks.POST("/tool-invocation", h.ToolInvocation)
		hooks.POST("/ring-to", h.RingTo)
	}

	// Ops API: JWT identity plus role checks.
	v1 := r.Group("/v1")
	v1.Use(mw.access)
	{
		ops := v1.Group("/ops")
		ops.Use(rbac.RequireAnyRole(rbac.RoleOperator))
		{
			ops.GET("/tool-calls/failed", h.ListFailedToolCalls)
			ops.GET("/tool-calls/pending", h.ListPendingToolCalls)
			ops.GET("/tool-calls/:id", h.GetToolCall)
			ops.POST("/tool-calls/:id/retry", h.RetryToolCall)
			ops.GET("/correlations/:ai_call_id", h.GetCorrelation)
			ops.POST("/callbacks/:id/requeue", h.RequeueCallback)
			ops.GET("/stats", h.GetStats)
		}
	}
}
