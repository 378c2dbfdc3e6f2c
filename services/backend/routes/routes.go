// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes wires the HTTP surface: middleware order, the REST
// route groups under /api/v1, the websocket endpoint, and the health
// and metrics endpoints.
package routes

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/saathi-labs/companion-backend/pkg/logging"
	"github.com/saathi-labs/companion-backend/services/backend/apierr"
	"github.com/saathi-labs/companion-backend/services/backend/auth"
	"github.com/saathi-labs/companion-backend/services/backend/gateway"
	"github.com/saathi-labs/companion-backend/services/backend/handlers"
	"github.com/saathi-labs/companion-backend/services/backend/middleware"
	"github.com/saathi-labs/companion-backend/services/backend/observability"
	"github.com/saathi-labs/companion-backend/services/backend/tenant"
)

// Deps carries everything the router mounts.
type Deps struct {
	Registry *tenant.Registry
	Tokens   *auth.Manager
	Handlers *handlers.Handlers
	Gateway  *gateway.Gateway
	Metrics  *observability.Metrics
	Logger   *logging.Logger

	// CORSOrigins is the allow list for the dashboard and app origins.
	CORSOrigins []string
}

// New builds the gin engine.
//
// Middleware order matters: recovery outermost, then CORS (so even
// error responses carry the headers), then the error renderer, then
// metrics and request logging, then tenant resolution.
func New(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(d.CORSOrigins))
	r.Use(apierr.Middleware())
	r.Use(d.Metrics.GinMiddleware())
	r.Use(requestLogger(d.Logger))
	r.Use(middleware.ResolveTenant(d.Registry))

	r.GET("/health", d.Handlers.Health)
	r.GET("/metrics", d.Metrics.Handler())
	r.GET("/ws", d.Gateway.HandleWS)

	requireUser := middleware.RequireUser(d.Registry, d.Tokens)
	requireAdmin := middleware.RequireAdmin(d.Registry, d.Tokens)

	v1 := r.Group("/api/v1")
	{
		user := v1.Group("/user")
		{
			user.POST("/signup", d.Handlers.Signup)
			// Capitalized for mobile client compatibility.
			user.POST("/Signin", d.Handlers.Signin)
			user.POST("/refresh-token", d.Handlers.RefreshToken)
			user.POST("/logout", requireUser, d.Handlers.Logout)
		}

		chat := v1.Group("/chat", requireUser)
		{
			chat.POST("", d.Handlers.StartChat)
			chat.GET("", d.Handlers.ListChats)
			chat.GET("/recent", d.Handlers.RecentChats)
			chat.GET("/:chatId", d.Handlers.GetChat)
			chat.POST("/:chatId/message", d.Handlers.SendChatMessage)
			chat.DELETE("/:chatId", d.Handlers.DeleteChat)
		}

		// The doubled and trailing-slash paths below mirror the mobile
		// clients' hardcoded URLs.
		consent := v1.Group("/consent", requireUser)
		{
			consent.POST("/consent", d.Handlers.UpsertConsent)
			consent.GET("/consent", d.Handlers.GetConsent)
		}

		usage := v1.Group("/usage", requireUser)
		{
			usage.POST("/usage", d.Handlers.UploadUsage)
		}

		chatbot := v1.Group("/chatbot", requireUser)
		{
			chatbot.POST("/", d.Handlers.UpsertChatbotProfile)
			chatbot.GET("/", d.Handlers.GetChatbotProfile)
		}

		notification := v1.Group("/notification", requireUser)
		{
			notification.POST("/", d.Handlers.StoreNotificationToken)
			notification.POST("/store-token", d.Handlers.StoreNotificationToken)
			notification.POST("/test", d.Handlers.TestNotification)
			notification.GET("/tokens", d.Handlers.NotificationTokenCounts)
		}

		admin := v1.Group("/admin")
		{
			admin.POST("/login", d.Handlers.AdminLogin)
			admin.POST("/signup", d.Handlers.AdminSignup)

			guarded := admin.Group("", requireAdmin)
			{
				guarded.POST("/logout", d.Handlers.AdminLogout)
				guarded.GET("/profile", d.Handlers.AdminProfile)
				guarded.GET("/stats", d.Handlers.AdminStats)
				guarded.GET("/students", d.Handlers.AdminStudents)
				guarded.GET("/chats", d.Handlers.AdminChats)
				guarded.PATCH("/chats/:chatId/flag", d.Handlers.AdminFlagChat)
				guarded.GET("/flagged", d.Handlers.AdminFlagged)
				guarded.GET("/analytics", d.Handlers.AdminAnalytics)
				guarded.GET("/export", d.Handlers.AdminExport)
			}
		}
	}

	return r
}

// requestLogger logs every request at debug level after the handler
// ran, so the final status and latency are known.
func requestLogger(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}
