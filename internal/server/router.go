package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/studyflow-backend/internal/handlers"
	"github.com/yungbote/studyflow-backend/internal/logger"
	"github.com/yungbote/studyflow-backend/internal/middleware"
	"github.com/yungbote/studyflow-backend/internal/utils"
)

type RouterConfig struct {
	Log                *logger.Logger
	AuthHandler        *handlers.AuthHandler
	AuthMiddleware     *middleware.AuthMiddleware
	HealthcheckHandler *handlers.HealthcheckHandler
	IngestHandler      *handlers.IngestHandler
	UsageHandler       *handlers.UsageHandler
	ContentHandler     *handlers.ContentHandler
	SSEHandler         *handlers.SSEHandler
	AdminHandler       *handlers.AdminHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware("studyflow-backend"))

	allowOrigins := strings.Split(utils.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000,http://localhost:5173", cfg.Log), ",")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// public
	router.GET("/healthcheck", cfg.HealthcheckHandler.Healthcheck)
	router.POST("/register", cfg.AuthHandler.Register)
	router.POST("/login", cfg.AuthHandler.Login)
	router.POST("/refresh", cfg.AuthHandler.Refresh)

	// protected
	api := router.Group("/api")
	api.Use(cfg.AuthMiddleware.RequireAuth())
	{
		api.POST("/logout", cfg.AuthHandler.Logout)

		api.POST("/ingest", cfg.IngestHandler.Ingest)

		api.GET("/features", cfg.UsageHandler.ListFeatures)
		api.GET("/usage/:feature", cfg.UsageHandler.GetFeatureUsage)

		api.GET("/content", cfg.ContentHandler.List)
		api.GET("/content/:id", cfg.ContentHandler.Get)
		api.DELETE("/content/:id", cfg.ContentHandler.Delete)

		api.GET("/sse/stream", cfg.SSEHandler.Stream)

		api.POST("/admin/cache/invalidate", cfg.AdminHandler.InvalidateCache)
	}

	return router
}
