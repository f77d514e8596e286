package store

import (
	"context"
	"errors"
	"time"

	"courier.chat/relay/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ConversationStore defines the contract for conversation data access.
type ConversationStore interface {
	GetByID(ctx context.Context, id int64) (*model.Conversation, error)
	Create(ctx context.Context, conv *model.Conversation) error
	ListByOwnerProject(ctx context.Context, userID, projectID int64) ([]model.Conversation, error)
	// UpdateTitleIfPlaceholder sets the title only when the stored title is
	// still the creation placeholder; returns whether it changed.
	UpdateTitleIfPlaceholder(ctx context.Context, id int64, title string) (bool, error)
	// UpdateSummary writes the rolling summary snapshot to the durable record.
	UpdateSummary(ctx context.Context, id int64, summary string, messageCount int, updatedAt time.Time) error
	// ClearSummary nulls the summary snapshot fields.
	ClearSummary(ctx context.Context, id int64) error
	// UpdateSettings writes the provider/model snapshot used for bootstrap
	// and the actor-unavailable fallback.
	UpdateSettings(ctx context.Context, id int64, provider, model string) error
	Touch(ctx context.Context, id int64, at time.Time) error
	Delete(ctx context.Context, id int64) error
}

// MessageStore defines the contract for the append-only message log.
type MessageStore interface {
	ListByConversation(ctx context.Context, conversationID int64) ([]model.Message, error)
	// Append writes a single message (used for context-clear markers).
	Append(ctx context.Context, msg *model.Message) error
	// AppendPair writes the user+assistant pair of one turn. Callers wanting
	// atomicity run it through a transaction-bound Stores.
	AppendPair(ctx context.Context, user, assistant *model.Message) error
	CountByConversation(ctx context.Context, conversationID int64) (int, error)
}
