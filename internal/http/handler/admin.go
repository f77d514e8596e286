package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"courier.chat/relay/internal/http/dto"
	"courier.chat/relay/internal/model"
	"courier.chat/relay/internal/store"
	"courier.chat/relay/internal/worker"
)

// ConversationGetter loads a conversation without ownership checks, for the
// admin-keyed operational surface.
type ConversationGetter interface {
	GetByID(ctx context.Context, id int64) (*model.Conversation, error)
}

// MessageCounter reports how many messages a conversation holds.
type MessageCounter interface {
	CountByConversation(ctx context.Context, conversationID int64) (int, error)
}

type AdminHandler struct {
	convs      ConversationGetter
	messages   MessageCounter
	sessions   SessionService
	compaction CompactionService
}

func NewAdminHandler(convs ConversationGetter, messages MessageCounter, sessions SessionService, compaction CompactionService) *AdminHandler {
	return &AdminHandler{convs: convs, messages: messages, sessions: sessions, compaction: compaction}
}

// Session exposes any conversation's session state for debugging.
func (h *AdminHandler) Session(c *gin.Context) {
	ctx := c.Request.Context()

	conversationID, ok := pathID(c)
	if !ok {
		return
	}

	conv, err := h.convs.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to load conversation", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return
	}

	state, err := h.sessions.GetOrBootstrap(ctx, conv)
	if err != nil {
		slog.ErrorContext(ctx, "failed to resolve session state", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve session state"})
		return
	}

	count, err := h.messages.CountByConversation(ctx, conversationID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count messages", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count messages"})
		return
	}

	c.JSON(http.StatusOK, dto.AdminSessionResponse{OK: true, State: state, MessageCount: count})
}

// Compact force-compacts any conversation.
func (h *AdminHandler) Compact(c *gin.Context) {
	ctx := c.Request.Context()

	conversationID, ok := pathID(c)
	if !ok {
		return
	}

	result, err := h.compaction.CompactNow(ctx, conversationID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		case errors.Is(err, worker.ErrNothingToCompact):
			c.String(http.StatusBadRequest, "No messages to compact")
		default:
			slog.ErrorContext(ctx, "manual compaction failed", "error", err)
			c.String(http.StatusBadGateway, "Failed to generate summary")
		}
		return
	}

	c.JSON(http.StatusOK, dto.CompactionResponse{
		OK:                  true,
		Summary:             result.Summary,
		SummaryUpdatedAt:    result.UpdatedAt,
		SummaryMessageCount: result.MessageCount,
	})
}
