package chat

import (
	"fmt"
	"net/http"

	"courier.chat/relay/core/config"
	"courier.chat/relay/internal/model"
	"courier.chat/relay/internal/provider"
)

// TurnError is a turn rejected before (or instead of) streaming. Reason is
// the plain-text response body.
type TurnError struct {
	Status int
	Reason string
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("turn rejected (%d): %s", e.Status, e.Reason)
}

func reject(status int, format string, args ...any) *TurnError {
	return &TurnError{Status: status, Reason: fmt.Sprintf(format, args...)}
}

// validateTurn enforces every precondition that must hold before any
// upstream call is made.
func validateTurn(req TurnRequest, limits config.LimitsConfig, adapter provider.Adapter) *TurnError {
	if req.UserID == 0 {
		return reject(http.StatusUnauthorized, "Missing user identity")
	}
	if req.UserMessageID == "" || req.AssistantMessageID == "" {
		return reject(http.StatusBadRequest, "Missing message identifiers")
	}
	if req.Model == "" {
		return reject(http.StatusBadRequest, "Missing model")
	}
	if !model.KnownProvider(req.Provider) {
		return reject(http.StatusBadRequest, "Unknown provider %q", req.Provider)
	}
	if adapter == nil {
		return reject(http.StatusBadRequest, "Provider %q is not configured", req.Provider)
	}
	if len(req.Messages) == 0 {
		return reject(http.StatusBadRequest, "No messages")
	}
	if len(req.Messages) > limits.MaxMessages {
		return reject(http.StatusRequestEntityTooLarge, "Too many messages (%d > %d)", len(req.Messages), limits.MaxMessages)
	}

	total := 0
	for i, m := range req.Messages {
		switch m.Role {
		case model.RoleUser, model.RoleAssistant, model.RoleSystem:
		default:
			return reject(http.StatusBadRequest, "Invalid role %q at message %d", m.Role, i)
		}
		if len(m.Content) > limits.MaxMessageChars {
			return reject(http.StatusRequestEntityTooLarge, "Message %d exceeds %d characters", i, limits.MaxMessageChars)
		}
		total += len(m.Content)

		if len(m.Attachments) > 0 {
			if i != len(req.Messages)-1 {
				return reject(http.StatusBadRequest, "Attachments are only allowed on the final message")
			}
			if !adapter.SupportsAttachments() {
				return reject(http.StatusBadRequest, "Provider %q does not support attachments", req.Provider)
			}
			var aggregate int64
			for _, a := range m.Attachments {
				size := int64(len(a.Data))
				if size > limits.MaxAttachmentBytes {
					return reject(http.StatusRequestEntityTooLarge, "Attachment %q exceeds %d bytes", a.Name, limits.MaxAttachmentBytes)
				}
				aggregate += size
			}
			if aggregate > limits.MaxAttachmentsBytes {
				return reject(http.StatusRequestEntityTooLarge, "Attachments exceed %d bytes in total", limits.MaxAttachmentsBytes)
			}
		}
	}
	if total > limits.MaxPayloadChars {
		return reject(http.StatusRequestEntityTooLarge, "Payload exceeds %d characters", limits.MaxPayloadChars)
	}

	if last := req.Messages[len(req.Messages)-1]; last.Role != model.RoleUser {
		return reject(http.StatusBadRequest, "Final message must be from the user")
	}
	return nil
}
