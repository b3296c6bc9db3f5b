package admin

import (
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, r KeyRegistry) {
	handler := NewHandler(r)

	api := router.Group("/api")
	{
		keys := api.Group("/api-keys")
		{
			keys.GET("", handler.ListKeysHandler)
			keys.POST("", handler.CreateKeyHandler)
			keys.GET("/:id", handler.GetKeyHandler)
			keys.PUT("/:id", handler.UpdateKeyHandler)
			keys.DELETE("/:id", handler.DeleteKeyHandler)
		}

		api.POST("/validate-key", handler.ValidateKeyHandler)
	}
}
