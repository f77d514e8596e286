package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"courier.chat/relay/internal/chat"
	"courier.chat/relay/internal/http/dto"
	"courier.chat/relay/internal/http/middleware"
	"courier.chat/relay/internal/model"
	"courier.chat/relay/internal/store"
)

// ConversationService is the conversation lifecycle surface the handler
// exposes over HTTP.
type ConversationService interface {
	Create(ctx context.Context, userID, projectID int64, provider, modelName string) (*model.Conversation, error)
	List(ctx context.Context, userID, projectID int64) ([]model.Conversation, error)
	Get(ctx context.Context, userID, conversationID int64) (*model.Conversation, []model.Message, error)
	ClearContext(ctx context.Context, userID, conversationID int64) (*model.Conversation, error)
	Delete(ctx context.Context, userID, conversationID int64) error
}

type ConversationHandler struct {
	service ConversationService
}

func NewConversationHandler(service ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

func (h *ConversationHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Provider != "" && !model.KnownProvider(req.Provider) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown provider"})
		return
	}

	conv, err := h.service.Create(ctx, middleware.GetUserID(ctx), middleware.GetProjectID(ctx), req.Provider, req.Model)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create conversation", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create conversation"})
		return
	}

	c.JSON(http.StatusCreated, dto.ToConversationResponse(conv))
}

func (h *ConversationHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	convs, err := h.service.List(ctx, middleware.GetUserID(ctx), middleware.GetProjectID(ctx))
	if err != nil {
		slog.ErrorContext(ctx, "failed to list conversations", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": dto.ToConversationList(convs)})
}

func (h *ConversationHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	conversationID, ok := pathID(c)
	if !ok {
		return
	}

	conv, messages, err := h.service.Get(ctx, middleware.GetUserID(ctx), conversationID)
	if err != nil {
		respondConversationError(c, err, "failed to load conversation")
		return
	}

	c.JSON(http.StatusOK, dto.ConversationDetailResponse{
		Conversation: dto.ToConversationResponse(conv),
		Messages:     dto.ToMessageResponses(messages),
	})
}

func (h *ConversationHandler) ClearContext(c *gin.Context) {
	ctx := c.Request.Context()

	conversationID, ok := pathID(c)
	if !ok {
		return
	}

	conv, err := h.service.ClearContext(ctx, middleware.GetUserID(ctx), conversationID)
	if err != nil {
		respondConversationError(c, err, "failed to clear context")
		return
	}

	c.JSON(http.StatusOK, dto.ToConversationResponse(conv))
}

func (h *ConversationHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()

	conversationID, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(ctx, middleware.GetUserID(ctx), conversationID); err != nil {
		respondConversationError(c, err, "failed to delete conversation")
		return
	}

	c.Status(http.StatusNoContent)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return 0, false
	}
	return id, true
}

func respondConversationError(c *gin.Context, err error, fallback string) {
	ctx := c.Request.Context()
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
	case errors.Is(err, chat.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "conversation belongs to another user"})
	default:
		slog.ErrorContext(ctx, fallback, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
