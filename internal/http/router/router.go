package router

import (
	"github.com/gin-gonic/gin"

	"courier.chat/relay/internal/chat"
	"courier.chat/relay/internal/http/handler"
	"courier.chat/relay/internal/http/middleware"
	"courier.chat/relay/internal/session"
	"courier.chat/relay/internal/store"
	"courier.chat/relay/internal/worker"
)

type Dependencies struct {
	Orchestrator  *chat.Orchestrator
	Conversations *chat.ConversationService
	Sessions      *session.Store
	Compactor     *worker.Compactor
	ConvStore     store.ConversationStore
	MsgStore      store.MessageStore
	AdminAPIKey   string
}

func SetupRoutes(router *gin.Engine, deps Dependencies) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RequireUser())
	{
		turnHandler := handler.NewTurnHandler(deps.Orchestrator)
		ChatRouter(v1.Group("/chat"), turnHandler)

		convHandler := handler.NewConversationHandler(deps.Conversations)
		sessionHandler := handler.NewSessionHandler(deps.Conversations, deps.Sessions)
		compactionHandler := handler.NewCompactionHandler(deps.Conversations, deps.Compactor)
		ConversationRouter(v1.Group("/conversations"), convHandler, sessionHandler, compactionHandler)
	}

	admin := router.Group("/admin")
	admin.Use(middleware.RequireAdminKey(deps.AdminAPIKey))
	{
		adminHandler := handler.NewAdminHandler(deps.ConvStore, deps.MsgStore, deps.Sessions, deps.Compactor)
		AdminRouter(admin, adminHandler)
	}
}
