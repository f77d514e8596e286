// Package session manages per-conversation mutable settings: the provider,
// model, generation knobs and rolling summary that every turn reads and
// patches. The authoritative copy lives in a per-conversation consistency
// actor; when the actor is unreachable the store derives an equivalent state
// from the conversation's last durable snapshot, trading consistency for
// availability (concurrent actor updates may be lost on that path).
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"courier.chat/relay/internal/model"
	"courier.chat/relay/internal/store"
)

// ErrInvalidPatch wraps sanitization failures so callers can map them to a
// client error.
var ErrInvalidPatch = errors.New("invalid session patch")

// Store resolves and mutates session state for one conversation at a time.
type Store struct {
	actor *Actor
	convs store.ConversationStore
}

func NewStore(actor *Actor, convs store.ConversationStore) *Store {
	return &Store{actor: actor, convs: convs}
}

// GetOrBootstrap returns the session state, installing the conversation's
// durable snapshot into the actor the first time it is needed.
func (s *Store) GetOrBootstrap(ctx context.Context, conv *model.Conversation) (model.SessionState, error) {
	state, err := s.actor.Get(ctx, conv.ID)
	if err == nil {
		return state, nil
	}
	if errors.Is(err, ErrNotBootstrapped) {
		return s.actor.Bootstrap(ctx, conv.ID, DeriveFromConversation(conv))
	}
	if errors.Is(err, ErrActorUnavailable) {
		slog.WarnContext(ctx, "session actor unreachable, serving snapshot-derived state",
			"conversation_id", conv.ID, "error", err)
		return s.fallback(conv, Patch{})
	}
	return model.SessionState{}, err
}

// Patch sanitizes and applies a patch through the actor. When the actor is
// unreachable the patched state is recomputed from the durable snapshot, a
// weaker-consistency result that is logged rather than hidden.
func (s *Store) Patch(ctx context.Context, conv *model.Conversation, patch Patch) (model.SessionState, error) {
	sanitized, err := Sanitize(patch)
	if err != nil {
		return model.SessionState{}, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}

	state, err := s.actor.Patch(ctx, conv.ID, sanitized)
	if errors.Is(err, ErrNotBootstrapped) {
		if _, err := s.actor.Bootstrap(ctx, conv.ID, DeriveFromConversation(conv)); err == nil {
			state, err = s.actor.Patch(ctx, conv.ID, sanitized)
			if err == nil {
				return s.persistSettings(ctx, conv, state)
			}
		}
		// fall through to the availability path below
		err = ErrActorUnavailable
	}
	if errors.Is(err, ErrActorUnavailable) {
		slog.WarnContext(ctx, "session actor unreachable, applying patch against snapshot; concurrent updates may be lost",
			"conversation_id", conv.ID)
		return s.fallback(conv, sanitized)
	}
	if err != nil {
		return model.SessionState{}, err
	}
	return s.persistSettings(ctx, conv, state)
}

// persistSettings keeps the durable provider/model snapshot aligned with the
// actor so bootstrap and fallback start from current values.
func (s *Store) persistSettings(ctx context.Context, conv *model.Conversation, state model.SessionState) (model.SessionState, error) {
	if state.Provider != conv.Provider || state.Model != conv.Model {
		if err := s.convs.UpdateSettings(ctx, conv.ID, state.Provider, state.Model); err != nil {
			slog.WarnContext(ctx, "session snapshot write failed", "conversation_id", conv.ID, "error", err)
		}
	}
	return state, nil
}

func (s *Store) fallback(conv *model.Conversation, patch Patch) (model.SessionState, error) {
	state, _ := Apply(DeriveFromConversation(conv), patch)
	EnforceInvariants(&state)
	return state, nil
}

// DeriveFromConversation builds session state from the conversation's last
// durable values.
func DeriveFromConversation(conv *model.Conversation) model.SessionState {
	state := model.SessionState{
		Provider:            conv.Provider,
		Model:               conv.Model,
		Summary:             conv.Summary,
		SummaryUpdatedAt:    conv.SummaryUpdatedAt,
		SummaryMessageCount: conv.SummaryMessageCount,
	}
	EnforceInvariants(&state)
	return state
}
