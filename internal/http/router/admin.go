package router

import (
	"github.com/gin-gonic/gin"

	"courier.chat/relay/internal/http/handler"
)

func AdminRouter(router *gin.RouterGroup, handler *handler.AdminHandler) {
	router.GET("/conversations/:id/session", handler.Session)
	router.POST("/conversations/:id/compact", handler.Compact)
}
