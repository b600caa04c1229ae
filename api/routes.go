package api

import (
	"github.com/gin-gonic/gin"
	"github.com/ivanfit-health/kbju-bot-backend/internal/dialog"
	"github.com/ivanfit-health/kbju-bot-backend/internal/platform/health"
)

// SetupRoutes 注册项目的所有API路由
func SetupRoutes(router *gin.Engine, h *dialog.Handler) {
	api := router.Group("/api")
	{
		// 对话相关的路由组 /api/dialog
		dialogRoutes := api.Group("/dialog")
		{
			dialogRoutes.GET("/:user_id/view", h.GetView)
			dialogRoutes.POST("/:user_id/answer", h.PostAnswer)
			dialogRoutes.POST("/:user_id/action", h.PostAction)
		}

		api.GET("/healthz", health.Handler())
	}
}
