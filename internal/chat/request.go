package chat

import (
	"courier.chat/relay/internal/model"
	"courier.chat/relay/internal/provider"
)

// TurnRequest is one inbound conversation turn. The client sends the context
// window it wants replayed (possibly pre-trimmed) plus per-turn generation
// overrides; durable history and the rolling summary stay server-side.
type TurnRequest struct {
	ConversationID int64 `json:"conversation_id,omitempty"`
	ProjectID      int64 `json:"project_id,omitempty"`
	// UserID comes from the authenticated caller, never the body.
	UserID int64 `json:"-"`

	Messages        []TurnMessage `json:"messages"`
	MessagesTrimmed bool          `json:"messages_trimmed,omitempty"`

	Provider           string `json:"provider"`
	Model              string `json:"model"`
	UserMessageID      string `json:"user_message_id"`
	AssistantMessageID string `json:"assistant_message_id"`

	ReasoningEffort *string `json:"reasoning_effort,omitempty"`
	EnableThinking  *bool   `json:"enable_thinking,omitempty"`
	ThinkingBudget  *int    `json:"thinking_budget,omitempty"`
	ThinkingLevel   *string `json:"thinking_level,omitempty"`
	OutputTokens    *int    `json:"output_tokens,omitempty"`
	OutputEffort    *string `json:"output_effort,omitempty"`
	WebSearch       *bool   `json:"web_search,omitempty"`
	XAISearchMode   *string `json:"xai_search_mode,omitempty"`
	EnableTools     *bool   `json:"enable_tools,omitempty"`
}

type TurnMessage struct {
	Role        string           `json:"role"`
	Content     string           `json:"content"`
	Attachments []TurnAttachment `json:"attachments,omitempty"`
}

// TurnAttachment is an inline upload on the final user message. Data is
// base64 in transit (encoding/json handles []byte that way).
type TurnAttachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// contextMessages converts the wire messages into the model shape the
// context builder and adapters consume.
func (r TurnRequest) contextMessages() []model.Message {
	out := make([]model.Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		out = append(out, model.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// options resolves the effective generation knobs: a request override wins,
// otherwise the session value applies.
func (r TurnRequest) options(state model.SessionState) provider.Options {
	return provider.Options{
		ReasoningEffort: pick(r.ReasoningEffort, state.ReasoningEffort),
		EnableThinking:  pick(r.EnableThinking, state.EnableThinking),
		ThinkingBudget:  pick(r.ThinkingBudget, state.ThinkingBudget),
		ThinkingLevel:   pick(r.ThinkingLevel, state.ThinkingLevel),
		OutputTokens:    pick(r.OutputTokens, state.OutputTokens),
		OutputEffort:    pick(r.OutputEffort, state.OutputEffort),
		WebSearch:       pick(r.WebSearch, state.WebSearch),
		XAISearchMode:   pick(r.XAISearchMode, state.XAISearchMode),
		EnableTools:     pick(r.EnableTools, state.EnableTools),
	}
}

func pick[T any](override, fallback *T) T {
	if override != nil {
		return *override
	}
	if fallback != nil {
		return *fallback
	}
	var zero T
	return zero
}
