package model

import "time"

// PlaceholderTitle is the title a conversation is created with before the
// first turn completes.
const PlaceholderTitle = "New chat"

// Conversation owns an ordered, append-only sequence of messages plus the
// last durable snapshot of its session-managed settings. The snapshot is the
// bootstrap source for the session actor and the fallback read path when the
// actor is unreachable.
type Conversation struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	ProjectID int64     `json:"project_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Provider            string     `json:"provider"`
	Model               string     `json:"model"`
	Summary             *string    `json:"summary,omitempty"`
	SummaryUpdatedAt    *time.Time `json:"summary_updated_at,omitempty"`
	SummaryMessageCount *int       `json:"summary_message_count,omitempty"`
}
