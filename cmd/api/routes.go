package main

import (
	"github.com/gin-gonic/gin"

	"callbrief/internal/httpapi"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Token issuance (development convenience; front with an IdP in production).
	r.POST("/v1/auth/token", h.IssueToken)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		callGroup := v1.Group("/calls")
		{
			callGroup.POST("", h.UploadCall)
			callGroup.GET("", h.ListCalls)
			callGroup.GET("/:id", h.GetCall)
			callGroup.GET("/:id/status", h.CallStatus)
			callGroup.GET("/:id/transcription", h.CallTranscription)
			callGroup.GET("/:id/summary", h.CallSummary)
			callGroup.POST("/:id/reprocess", h.ReprocessCall)
			callGroup.DELETE("/:id", h.DeleteCall)
		}

		uploads := v1.Group("/uploads")
		{
			uploads.POST("/presign", h.PresignUpload)
			uploads.POST("/register", h.RegisterUpload)
		}

		notifications := v1.Group("/notifications")
		{
			notifications.GET("", h.ListNotifications)
			notifications.POST("/:id/retry", h.RetryNotification)
		}

		v1.GET("/settings", h.GetSettings)
		v1.PUT("/settings", h.UpdateSettings)
		v1.GET("/stats", h.Stats)
	}
}
