package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"courier.chat/relay/common/logger"
	"courier.chat/relay/internal/chat"
	"courier.chat/relay/internal/http/middleware"
	"courier.chat/relay/internal/stream"
)

// TurnStarter dispatches a validated turn and hands back the live stream
// branch.
type TurnStarter interface {
	StartTurn(ctx context.Context, req chat.TurnRequest) (*chat.Turn, *chat.TurnError)
}

type TurnHandler struct {
	orchestrator TurnStarter
}

func NewTurnHandler(orchestrator TurnStarter) *TurnHandler {
	return &TurnHandler{orchestrator: orchestrator}
}

// Stream runs one conversation turn and relays the event stream to the
// client as it arrives. Rejections are plain-text with a meaningful status;
// once streaming starts, failures travel in-band as error events.
func (h *TurnHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()

	var req chat.TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid turn request", "error", err)
		c.String(http.StatusBadRequest, "Malformed turn request")
		return
	}
	req.UserID = middleware.GetUserID(ctx)
	if req.ProjectID == 0 {
		req.ProjectID = middleware.GetProjectID(ctx)
	}
	if req.UserMessageID != "" {
		ctx = logger.WithLogFields(ctx, logger.LogFields{TurnID: logger.Ptr(req.UserMessageID)})
	}

	turn, terr := h.orchestrator.StartTurn(ctx, req)
	if terr != nil {
		c.String(terr.Status, terr.Reason)
		return
	}

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	header.Set("X-Conversation-Id", strconv.FormatInt(turn.Conversation.ID, 10))
	header.Set("X-Summary-Injected", strconv.FormatBool(turn.SummaryInjected))
	header.Set("X-Context-Messages", strconv.Itoa(turn.ContextMessages))
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	for {
		ev, ok := turn.Client.Next()
		if !ok {
			break
		}
		if err := stream.WriteEvent(c.Writer, ev); err != nil {
			// Client went away; upstream and persistence keep running on
			// their detached context.
			slog.DebugContext(ctx, "client disconnected mid-stream", "error", err)
			return
		}
		c.Writer.Flush()
	}

	if err := stream.WriteDone(c.Writer); err == nil {
		c.Writer.Flush()
	}
}
