package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"courier.chat/relay/common/id"
	"courier.chat/relay/common/logger"
	"courier.chat/relay/core/db"
	"courier.chat/relay/internal/cache"
	"courier.chat/relay/internal/model"
	"courier.chat/relay/internal/provider"
	"courier.chat/relay/internal/queue"
	"courier.chat/relay/internal/store"
	"courier.chat/relay/internal/stream"
)

const titleMaxChars = 80

// Persister consumes the persistence copy of a turn's stream and records the
// exchange. It runs detached from the HTTP response; its failures are logged,
// never surfaced to the client.
type Persister struct {
	db       *db.DB
	cache    *cache.ConversationCache
	producer queue.Producer
}

func NewPersister(database *db.DB, convCache *cache.ConversationCache, producer queue.Producer) *Persister {
	return &Persister{db: database, cache: convCache, producer: producer}
}

// persistInput carries everything the writer needs besides the stream itself.
type persistInput struct {
	conv        *model.Conversation
	userText    string
	attachments []model.Attachment
	provider    string
	model       string
	// promptChars is the character size of the upstream context, used for
	// the estimated-usage fallback.
	promptChars int
	traceID     string
}

// PersistTurn drains the branch to completion, then appends the user and
// assistant messages atomically, updates the placeholder title on a first
// turn, invalidates the owner's conversation-list cache, and enqueues a
// compaction job.
func (p *Persister) PersistTurn(ctx context.Context, branch *stream.Branch, in persistInput) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component:      "relay.chat.persister",
		ConversationID: logger.Ptr(in.conv.ID),
	})

	var acc stream.Accumulator
	for {
		ev, ok := branch.Next()
		if !ok {
			break
		}
		acc.Add(ev)
	}

	content := acc.Content()
	if content == "" {
		// Nothing usable arrived (immediate upstream failure). The turn is
		// not recorded; the client already saw the error event.
		if err := branch.Err(); err != nil {
			slog.WarnContext(ctx, "turn produced no content, skipping persistence", "error", err)
		} else {
			slog.WarnContext(ctx, "turn produced empty content, skipping persistence")
		}
		return nil
	}

	usage := acc.Usage
	if usage == nil {
		usage = &model.Usage{
			PromptTokens:     in.promptChars / 4,
			CompletionTokens: provider.EstimateTokens(content),
			Estimated:        true,
		}
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	now := time.Now()
	userMsg := &model.Message{
		ID:             id.New(),
		ConversationID: in.conv.ID,
		Role:           model.RoleUser,
		Content:        in.userText,
		CreatedAt:      now,
	}
	if len(in.attachments) > 0 {
		userMsg.Meta = &model.MessageMeta{Attachments: in.attachments}
	}

	assistantMsg := &model.Message{
		ID:             id.New(),
		ConversationID: in.conv.ID,
		Role:           model.RoleAssistant,
		Content:        content,
		CreatedAt:      now.Add(time.Millisecond),
		Meta: &model.MessageMeta{
			Provider:    in.provider,
			Model:       in.model,
			Usage:       usage,
			Credits:     acc.Credits,
			Reasoning:   acc.Reasoning(),
			ThinkingMs:  acc.ThinkingMs,
			FirstByteMs: acc.FirstByteMs,
			StopReason:  acc.StopReason,
			Search:      acc.Search,
		},
	}

	err := p.db.WithTx(ctx, func(tx pgx.Tx) error {
		stores := store.NewStores(tx)
		if err := stores.Messages().AppendPair(ctx, userMsg, assistantMsg); err != nil {
			return err
		}
		return stores.Conversations().Touch(ctx, in.conv.ID, now)
	})
	if err != nil {
		return fmt.Errorf("persist turn: %w", err)
	}

	if in.conv.Title == model.PlaceholderTitle {
		title := deriveTitle(in.userText)
		if _, err := store.NewStores(p.db.Pool()).Conversations().UpdateTitleIfPlaceholder(ctx, in.conv.ID, title); err != nil {
			slog.WarnContext(ctx, "title update failed", "error", err)
		}
	}

	p.cache.Invalidate(ctx, in.conv.UserID, in.conv.ProjectID)

	if p.producer != nil {
		job := queue.CompactionJob{
			ConversationID:     in.conv.ID,
			AssistantMessageID: assistantMsg.ID,
			TraceID:            in.traceID,
		}
		if err := p.producer.Enqueue(ctx, job); err != nil {
			// Best-effort: compaction is not required for turn success.
			slog.WarnContext(ctx, "compaction enqueue failed", "error", err)
		}
	}
	return nil
}

// deriveTitle turns the first user message into a short conversation title.
func deriveTitle(userText string) string {
	title := strings.TrimSpace(userText)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	if len(title) > titleMaxChars {
		title = strings.TrimSpace(title[:titleMaxChars])
	}
	if title == "" {
		title = model.PlaceholderTitle
	}
	return title
}
