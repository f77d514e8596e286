package router

import (
	"github.com/gin-gonic/gin"

	"courier.chat/relay/internal/http/handler"
)

func ConversationRouter(router *gin.RouterGroup, conversations *handler.ConversationHandler, sessions *handler.SessionHandler, compaction *handler.CompactionHandler) {
	router.POST("", conversations.Create)
	router.GET("", conversations.List)
	router.GET("/:id", conversations.Get)
	router.DELETE("/:id", conversations.Delete)
	router.POST("/:id/clear-context", conversations.ClearContext)

	router.GET("/:id/session", sessions.Get)
	router.PATCH("/:id/session", sessions.Patch)

	router.POST("/:id/compact", compaction.Trigger)
}
