package router

import (
	"github.com/gin-gonic/gin"

	"ai-gateway-api/internal/interfaces/http/handler"
	"ai-gateway-api/internal/interfaces/http/middleware"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(v1 *gin.RouterGroup, aiHandler *handler.AIHandler, rateHeaders gin.HandlerFunc) {
	ai := v1.Group("/ai")
	{
		// 调用类接口附带限流响应头
		invoke := ai.Group("", middleware.RequirePermission(middleware.PermAnalyze), rateHeaders)
		{
			invoke.POST("/analyze", aiHandler.Analyze)
			invoke.POST("/recommendations", aiHandler.Recommendations)
		}

		ai.POST("/estimate-cost", middleware.RequirePermission(middleware.PermAnalyze), aiHandler.EstimateCost)
		ai.GET("/providers", aiHandler.Providers)
		ai.GET("/rate-limit", aiHandler.RateLimit)

		usage := ai.Group("/usage")
		{
			usage.GET("", middleware.RequirePermission(middleware.PermUsageReadAll), aiHandler.Usage)
			usage.GET("/me", middleware.RequirePermission(middleware.PermUsageRead), aiHandler.MyUsage)
		}

		conversations := ai.Group("/conversations", middleware.RequirePermission(middleware.PermAnalyze))
		{
			conversations.GET("/:id", aiHandler.GetConversation)
			conversations.DELETE("/:id", aiHandler.DeleteConversation)
		}
	}
}
