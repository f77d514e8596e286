package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"courier.chat/relay/internal/http/dto"
	"courier.chat/relay/internal/http/middleware"
	"courier.chat/relay/internal/model"
	"courier.chat/relay/internal/session"
)

// ConversationResolver loads a conversation with ownership enforced.
type ConversationResolver interface {
	Resolve(ctx context.Context, userID, conversationID int64) (*model.Conversation, error)
}

// SessionService reads and patches per-conversation session state.
type SessionService interface {
	GetOrBootstrap(ctx context.Context, conv *model.Conversation) (model.SessionState, error)
	Patch(ctx context.Context, conv *model.Conversation, patch session.Patch) (model.SessionState, error)
}

type SessionHandler struct {
	convs    ConversationResolver
	sessions SessionService
}

func NewSessionHandler(convs ConversationResolver, sessions SessionService) *SessionHandler {
	return &SessionHandler{convs: convs, sessions: sessions}
}

func (h *SessionHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	conversationID, ok := pathID(c)
	if !ok {
		return
	}

	conv, err := h.convs.Resolve(ctx, middleware.GetUserID(ctx), conversationID)
	if err != nil {
		respondConversationError(c, err, "failed to load conversation")
		return
	}

	state, err := h.sessions.GetOrBootstrap(ctx, conv)
	if err != nil {
		slog.ErrorContext(ctx, "failed to resolve session state", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve session state"})
		return
	}

	c.JSON(http.StatusOK, dto.SessionStateResponse{OK: true, State: state})
}

func (h *SessionHandler) Patch(c *gin.Context) {
	ctx := c.Request.Context()

	conversationID, ok := pathID(c)
	if !ok {
		return
	}

	var patch session.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		slog.WarnContext(ctx, "invalid session patch", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv, err := h.convs.Resolve(ctx, middleware.GetUserID(ctx), conversationID)
	if err != nil {
		respondConversationError(c, err, "failed to load conversation")
		return
	}

	state, err := h.sessions.Patch(ctx, conv, patch)
	if err != nil {
		if errors.Is(err, session.ErrInvalidPatch) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		slog.ErrorContext(ctx, "failed to patch session state", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to patch session state"})
		return
	}

	c.JSON(http.StatusOK, dto.SessionStateResponse{OK: true, State: state})
}
