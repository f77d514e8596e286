package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"courier.chat/relay/internal/http/dto"
	"courier.chat/relay/internal/http/middleware"
	"courier.chat/relay/internal/worker"
)

// CompactionService compacts a conversation on demand.
type CompactionService interface {
	CompactNow(ctx context.Context, conversationID int64) (*worker.CompactionResult, error)
}

type CompactionHandler struct {
	convs   ConversationResolver
	service CompactionService
}

func NewCompactionHandler(convs ConversationResolver, service CompactionService) *CompactionHandler {
	return &CompactionHandler{convs: convs, service: service}
}

// Trigger compacts immediately, bypassing the background trigger policy.
// Error bodies are plain text so clients can show them verbatim.
func (h *CompactionHandler) Trigger(c *gin.Context) {
	ctx := c.Request.Context()

	conversationID, ok := pathID(c)
	if !ok {
		return
	}

	if _, err := h.convs.Resolve(ctx, middleware.GetUserID(ctx), conversationID); err != nil {
		respondConversationError(c, err, "failed to load conversation")
		return
	}

	result, err := h.service.CompactNow(ctx, conversationID)
	if err != nil {
		if errors.Is(err, worker.ErrNothingToCompact) {
			c.String(http.StatusBadRequest, "No messages to compact")
			return
		}
		slog.ErrorContext(ctx, "manual compaction failed", "error", err)
		c.String(http.StatusBadGateway, "Failed to generate summary")
		return
	}

	c.JSON(http.StatusOK, dto.CompactionResponse{
		OK:                  true,
		Summary:             result.Summary,
		SummaryUpdatedAt:    result.UpdatedAt,
		SummaryMessageCount: result.MessageCount,
	})
}
