package main

import (
	"time"

	"voiceops/internal/auth"
	"voiceops/internal/broadcast"
	"voiceops/internal/httpapi"
	"voiceops/internal/rbac"
	"voiceops/internal/webhook"
	"voiceops/pkg/utils"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d deps) {
	h := httpapi.Handlers{
		Auth:            d.auth,
		BootstrapSecret: d.cfg.Auth.BootstrapSecret,
		Query:           d.query,
	}

	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), d.db, 2*time.Second); err != nil {
			c.JSON(503, gin.H{"status": "degraded"})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Provider webhooks (public).
	// NOTE: This endpoint should be protected by Twilio signature validation in production.
	wh := webhook.NewHandler(d.pipeline, d.cfg.Webhook.RawLogDir)
	r.POST("/webhooks/twilio-events", wh.HandleTwilioEvents)

	// Token issuance (gated by the bootstrap secret in the request body).
	r.POST("/v1/auth/token", h.IssueToken)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(d.auth))
	{
		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(200, gin.H{"user_id": uid, "role": role})
		})

		// Live event stream for the dashboard.
		v1.GET("/ws/events", rbac.RequireAnyRole(rbac.RoleViewer, rbac.RoleOperator), broadcast.ServeWS(d.hub))

		// Historical feeds.
		feed := v1.Group("")
		feed.Use(rbac.RequireAnyRole(rbac.RoleViewer, rbac.RoleOperator))
		{
			feed.GET("/call-events", h.GetRecentCallEvents)
			feed.GET("/error-events", h.GetRecentErrorEvents)
			feed.GET("/call-events/:call_sid", h.GetCallTimeline)
		}
	}
}
