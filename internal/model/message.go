package model

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// EventContextCleared marks the active context boundary: messages before the
// most recent marker are excluded from resend and summarization.
const EventContextCleared = "context_cleared"

// Message is one immutable entry in a conversation. A turn always appends
// exactly one user message and one assistant message atomically.
type Message struct {
	ID             int64        `json:"id"`
	ConversationID int64        `json:"conversation_id"`
	Role           string       `json:"role"`
	Content        string       `json:"content"`
	CreatedAt      time.Time    `json:"created_at"`
	Meta           *MessageMeta `json:"meta,omitempty"`
}

// MessageMeta carries per-message provenance. All fields are optional.
type MessageMeta struct {
	Provider    string        `json:"provider,omitempty"`
	Model       string        `json:"model,omitempty"`
	Usage       *Usage        `json:"usage,omitempty"`
	Credits     *float64      `json:"credits,omitempty"`
	Reasoning   string        `json:"reasoning,omitempty"`
	ThinkingMs  int64         `json:"thinking_ms,omitempty"`
	FirstByteMs int64         `json:"first_byte_ms,omitempty"`
	StopReason  string        `json:"stop_reason,omitempty"`
	Attachments []Attachment  `json:"attachments,omitempty"`
	Search      *SearchBundle `json:"search,omitempty"`
	// Event tags internal marker messages (currently only context_cleared).
	Event string `json:"event,omitempty"`
}

// Usage is the canonical token accounting shape. Estimated is set when the
// upstream never reported usage and the values come from the chars-per-token
// heuristic instead.
type Usage struct {
	PromptTokens     int  `json:"prompt_tokens"`
	CompletionTokens int  `json:"completion_tokens"`
	TotalTokens      int  `json:"total_tokens"`
	Estimated        bool `json:"estimated,omitempty"`
}

// Attachment records a blob persisted alongside a user message.
type Attachment struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

// SearchBundle is the web-search result set attached to an assistant message.
type SearchBundle struct {
	Provider string         `json:"provider"`
	Query    string         `json:"query"`
	Results  []SearchResult `json:"results"`
}

type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// IsContextClear reports whether the message is a context-clear marker.
func (m *Message) IsContextClear() bool {
	return m.Meta != nil && m.Meta.Event == EventContextCleared
}

// ActiveContext returns the suffix of messages at or after the most recent
// context-clear marker, with the marker itself excluded.
func ActiveContext(messages []Message) []Message {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].IsContextClear() {
			return messages[i+1:]
		}
	}
	return messages
}
