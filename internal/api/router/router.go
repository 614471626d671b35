// Package router sets up the API routes for the application.
package router

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/myk-org/hooktrail/consts"
	"github.com/myk-org/hooktrail/internal/api/handler"
	"github.com/myk-org/hooktrail/internal/api/middleware"
	"github.com/myk-org/hooktrail/internal/config"
	"github.com/myk-org/hooktrail/internal/flow"
	"github.com/myk-org/hooktrail/internal/query"
	"github.com/myk-org/hooktrail/internal/stream"
	"github.com/myk-org/hooktrail/internal/trace"
)

// Deps carries the service dependencies the routes are built on.
type Deps struct {
	Engine   *query.Engine
	Broker   *stream.Broker
	Flows    *flow.Service
	Recorder *trace.Recorder
}

// Setup configures all API routes
func Setup(r *gin.Engine, cfg *config.Config, deps Deps) {
	// Apply global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger(&middleware.LoggerConfig{
		AccessLog: cfg.Logging.AccessLog,
	}))
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))
	r.Use(middleware.RequestID())
	r.Use(middleware.ErrorHandler(cfg.Server.Debug))

	// Apply OpenTelemetry tracing middleware
	r.Use(otelgin.Middleware(consts.ServiceName))

	// Health check endpoint (public)
	r.GET("/health", handler.Health)

	v1 := r.Group("/api/v1")

	v1.GET("/version", handler.Version)

	// ============== Auth routes ==============

	authHandler := handler.NewAuthHandler(&cfg.Auth)

	auth := v1.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.GET("/me", middleware.JWTAuth(authHandler), authHandler.Me)
	}

	// ============== API routes (protected) ==============

	logsHandler := handler.NewLogsHandler(deps.Engine)
	tailHandler := handler.NewTailHandler(deps.Broker, cfg.Server.CORSOrigins)
	flowHandler := handler.NewFlowHandler(deps.Flows, deps.Recorder)

	logs := v1.Group("/logs")
	logs.Use(middleware.JWTAuth(authHandler))
	{
		logs.GET("", logsHandler.Query)
		logs.GET("/export", logsHandler.Export)
		logs.GET("/tail", tailHandler.Tail)
	}

	hooks := v1.Group("/hooks")
	hooks.Use(middleware.JWTAuth(authHandler))
	{
		hooks.GET("/active", flowHandler.GetActive)
		hooks.GET("/:id/flow", flowHandler.GetFlow)
		hooks.GET("/:id/steps/:name/logs", flowHandler.GetStepLogs)
	}
}
