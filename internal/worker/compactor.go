// Package worker consumes queued compaction jobs and folds eligible
// conversations into an updated rolling summary. Jobs are delivered
// at-least-once; every step re-reads durable state so replays and stale jobs
// degrade to no-ops instead of double-writes.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"courier.chat/relay/internal/model"
	"courier.chat/relay/internal/queue"
	"courier.chat/relay/internal/session"
	"courier.chat/relay/internal/store"
	"courier.chat/relay/internal/summary"
)

// ErrNothingToCompact is returned by CompactNow when the active context is
// empty or the summary already covers it.
var ErrNothingToCompact = errors.New("nothing to compact")

// Outcome classifies what a compaction job did. Every outcome except
// OutcomeCompacted leaves the stored summary untouched.
type Outcome string

const (
	OutcomeCompacted        Outcome = "compacted"
	OutcomeConversationGone Outcome = "conversation_gone"
	OutcomeTurnNotVisible   Outcome = "turn_not_visible"
	OutcomeUpToDate         Outcome = "up_to_date"
	OutcomeBelowThreshold   Outcome = "below_threshold"
	OutcomeEmptySummary     Outcome = "empty_summary"
)

// SessionPatcher is the slice of the session store the compactor needs to
// keep the actor aligned with the durable summary write.
type SessionPatcher interface {
	Patch(ctx context.Context, conv *model.Conversation, patch session.Patch) (model.SessionState, error)
}

// Compactor evaluates one queued job against fresh conversation state and,
// when the trigger policy fires, regenerates the rolling summary.
type Compactor struct {
	convs      store.ConversationStore
	msgs       store.MessageStore
	sessions   SessionPatcher
	summarizer summary.Summarizer
	policy     summary.TriggerPolicy
	now        func() time.Time
}

func NewCompactor(convs store.ConversationStore, msgs store.MessageStore, sessions SessionPatcher, summarizer summary.Summarizer, policy summary.TriggerPolicy) *Compactor {
	return &Compactor{
		convs:      convs,
		msgs:       msgs,
		sessions:   sessions,
		summarizer: summarizer,
		policy:     policy,
		now:        time.Now,
	}
}

// Process runs one compaction job to completion. A nil error means the job is
// settled and must be acked, whatever the outcome; an error means the durable
// state could not be read or written and the job should be retried.
func (c *Compactor) Process(ctx context.Context, msg queue.Message) (Outcome, error) {
	conv, err := c.convs.GetByID(ctx, msg.ConversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Deleted between enqueue and delivery.
			slog.InfoContext(ctx, "conversation gone, dropping compaction job")
			return OutcomeConversationGone, nil
		}
		return "", fmt.Errorf("loading conversation: %w", err)
	}

	messages, err := c.msgs.ListByConversation(ctx, msg.ConversationID)
	if err != nil {
		return "", fmt.Errorf("loading messages: %w", err)
	}

	active := model.ActiveContext(messages)

	// The triggering turn must still be inside the active window. A context
	// clear after enqueue moves the boundary past it; the job is then about
	// messages the summary must never cover again.
	if !containsMessage(active, msg.AssistantMessageID) {
		slog.InfoContext(ctx, "triggering turn outside active context, dropping compaction job",
			"assistant_message_id", msg.AssistantMessageID)
		return OutcomeTurnNotVisible, nil
	}

	covered := 0
	if conv.SummaryMessageCount != nil {
		covered = *conv.SummaryMessageCount
	}
	if covered > len(active) {
		covered = 0
	}
	if covered == len(active) {
		// A replay of an already-applied job, or a concurrent worker won.
		slog.InfoContext(ctx, "summary already covers active context", "covered", covered)
		return OutcomeUpToDate, nil
	}

	if !c.policy.ShouldCompact(active, covered) {
		slog.DebugContext(ctx, "conversation below compaction thresholds",
			"active_messages", len(active), "covered", covered)
		return OutcomeBelowThreshold, nil
	}

	result, err := c.compact(ctx, conv, active, covered)
	if err != nil {
		if errors.Is(err, summary.ErrEmptySummary) {
			// Never replace an existing summary with nothing.
			slog.WarnContext(ctx, "summarizer produced empty summary, keeping existing")
			return OutcomeEmptySummary, nil
		}
		return "", err
	}

	slog.InfoContext(ctx, "conversation compacted",
		"covered_messages", result.MessageCount,
		"summary_chars", len(result.Summary))
	return OutcomeCompacted, nil
}

// CompactionResult is the summary state after a successful compaction.
type CompactionResult struct {
	Summary      string
	UpdatedAt    time.Time
	MessageCount int
}

// CompactNow compacts a conversation on demand, bypassing the trigger
// thresholds. It returns ErrNothingToCompact when the active window is empty
// or already covered, and store.ErrNotFound for an unknown conversation.
func (c *Compactor) CompactNow(ctx context.Context, conversationID int64) (*CompactionResult, error) {
	conv, err := c.convs.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	messages, err := c.msgs.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}

	active := model.ActiveContext(messages)

	covered := 0
	if conv.SummaryMessageCount != nil {
		covered = *conv.SummaryMessageCount
	}
	if covered > len(active) {
		covered = 0
	}
	if len(active) == 0 || covered == len(active) {
		return nil, ErrNothingToCompact
	}

	return c.compact(ctx, conv, active, covered)
}

// compact summarizes the uncovered suffix and writes the result to both the
// durable record and the session actor.
func (c *Compactor) compact(ctx context.Context, conv *model.Conversation, active []model.Message, covered int) (*CompactionResult, error) {
	if c.summarizer == nil {
		return nil, errors.New("summarizer not configured")
	}

	prior := ""
	if conv.Summary != nil {
		prior = *conv.Summary
	}

	text, err := c.summarizer.Summarize(ctx, prior, active[covered:])
	if err != nil {
		if errors.Is(err, summary.ErrEmptySummary) {
			return nil, err
		}
		return nil, fmt.Errorf("summarizing conversation: %w", err)
	}

	updatedAt := c.now().UTC()
	messageCount := len(active)

	if err := c.convs.UpdateSummary(ctx, conv.ID, text, messageCount, updatedAt); err != nil {
		return nil, fmt.Errorf("writing summary: %w", err)
	}

	// Propagate to the session actor so the next turn builds context from the
	// new summary. The durable row is already written; an actor failure here
	// only delays convergence until the next bootstrap.
	if _, err := c.sessions.Patch(ctx, conv, session.Patch{
		Summary:             &text,
		SummaryUpdatedAt:    &updatedAt,
		SummaryMessageCount: &messageCount,
	}); err != nil {
		slog.WarnContext(ctx, "session actor summary update failed", "error", err)
	}

	return &CompactionResult{Summary: text, UpdatedAt: updatedAt, MessageCount: messageCount}, nil
}

func containsMessage(messages []model.Message, id int64) bool {
	for i := range messages {
		if messages[i].ID == id {
			return true
		}
	}
	return false
}
