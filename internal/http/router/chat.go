package router

import (
	"github.com/gin-gonic/gin"

	"courier.chat/relay/internal/http/handler"
)

func ChatRouter(router *gin.RouterGroup, handler *handler.TurnHandler) {
	router.POST("/turn", handler.Stream)
}
