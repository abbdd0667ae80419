package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/api/handlers"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/api/middleware"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/logger"
)

// SetupRoutes 配置所有路由
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, log logger.Logger) {
	// 全局中间件
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS())

	// 健康检查
	r.GET("/healthz", handlers.HealthCheck)

	// API 版本组
	v1 := r.Group("/api/v1")
	{
		v1.POST("/documents", h.Document.UploadDocument)
		v1.GET("/jobs/:jobId", h.Document.GetJobStatus)
	}
}
