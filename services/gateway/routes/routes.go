// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianGate/pkg/extensions"
	"github.com/AleutianAI/AleutianGate/services/gateway/audit"
	"github.com/AleutianAI/AleutianGate/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianGate/services/gateway/handlers"
	"github.com/AleutianAI/AleutianGate/services/gateway/memstore"
	"github.com/AleutianAI/AleutianGate/services/gateway/middleware"
	"github.com/AleutianAI/AleutianGate/services/gateway/observability"
	"github.com/AleutianAI/AleutianGate/services/gateway/providers"
	"github.com/AleutianAI/AleutianGate/services/gateway/tasks"
)

// Deps carries everything the route table wires together. A nil
// MetricsHandler falls back to the default Prometheus handler; Metrics
// itself may be nil to skip instrumentation.
type Deps struct {
	Logger    *slog.Logger
	Auth      extensions.AuthProvider
	Limiter   *middleware.Limiter
	Audit     *audit.Log
	Memory    *memstore.Store
	Tasks     *tasks.Store
	Providers *providers.Registry
	Metrics   *observability.Metrics

	// MetricsHandler overrides the exposition handler, used by tests
	// running against a private registry.
	MetricsHandler http.Handler

	Agents    []datatypes.Agent
	Version   string
	StartedAt time.Time
}

// SetupRoutes installs the full route table and middleware stack.
//
// Ordering matters: the audit middleware sits before rate limiting and
// auth so denied requests are still chained, and rate limiting sits
// before auth so unauthenticated floods cannot buy token verification
// work.
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.Use(middleware.RecoveryMiddleware(deps.Logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.BodyLimitMiddleware(middleware.DefaultMaxBodyBytes))
	if deps.Metrics != nil {
		router.Use(observability.Middleware(deps.Metrics))
	}
	router.Use(audit.Middleware(deps.Audit))

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound,
			datatypes.NewError(datatypes.ErrKindNotFound, "route not found"))
	})

	// Public surface: no rate limiting, no auth.
	router.GET("/health", handlers.HandleHealth(deps.Providers, deps.Version, deps.StartedAt))
	router.GET("/ready", handlers.HandleReady())
	router.GET("/openapi.json", handlers.HandleOpenAPI())

	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	router.GET("/metrics", gin.WrapH(metricsHandler))

	limited := func(class string) gin.HandlerFunc {
		return middleware.RateLimitMiddleware(deps.Limiter, class)
	}
	authed := middleware.AuthMiddleware(deps.Auth)

	v1 := router.Group("/v1", limited(middleware.ClassChat), authed)
	{
		v1.POST("/chat", handlers.HandleChat(deps.Providers, deps.Metrics))
		v1.GET("/chat/ws", handlers.HandleChatWS(deps.Providers, deps.Metrics))
		v1.POST("/generate", handlers.HandleGenerate(deps.Providers, deps.Metrics))
		v1.GET("/models", handlers.HandleModels(deps.Providers))
	}

	memory := router.Group("/memory", limited(middleware.ClassMemory), authed)
	{
		memory.GET("", handlers.HandleListMemory(deps.Memory))
		memory.POST("", handlers.HandleAppendMemory(deps.Memory, deps.Metrics))
		memory.GET("/verify", handlers.HandleVerifyMemory(deps.Memory))
		memory.GET("/:key", handlers.HandleGetMemory(deps.Memory))
		memory.DELETE("/:key", handlers.HandleEraseMemory(deps.Memory, deps.Metrics))
	}

	agents := router.Group("/agents", limited(middleware.ClassAgents), authed)
	{
		agents.GET("", handlers.HandleAgents(deps.Agents))
	}

	taskGroup := router.Group("/tasks", limited(middleware.ClassGlobal), authed)
	{
		taskGroup.GET("", handlers.HandleListTasks(deps.Tasks))
		taskGroup.POST("", handlers.HandleCreateTask(deps.Tasks, deps.Metrics))
		taskGroup.POST("/:id/claim", handlers.HandleClaimTask(deps.Tasks, deps.Metrics))
		taskGroup.POST("/:id/complete", handlers.HandleCompleteTask(deps.Tasks, deps.Metrics))
	}

	auditGroup := router.Group("/audit", limited(middleware.ClassGlobal), authed)
	{
		auditGroup.GET("", handlers.HandleListAudit(deps.Audit))
		auditGroup.GET("/verify", handlers.HandleVerifyAudit(deps.Audit))
	}
}
