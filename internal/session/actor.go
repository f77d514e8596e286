package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"courier.chat/relay/internal/model"
)

// ErrActorUnavailable marks failures of the consistency actor itself, as
// opposed to invalid input; callers switch to the snapshot fallback on it.
var ErrActorUnavailable = errors.New("session actor unavailable")

const patchRetries = 5

// Actor is the single mutation authority for one conversation's session
// state. All patches for the same conversation are serialized through an
// optimistic read-modify-write on one Redis key, so version strictly
// increases and no patch is lost.
type Actor struct {
	rdb *redis.Client
}

func NewActor(rdb *redis.Client) *Actor {
	return &Actor{rdb: rdb}
}

func sessionKey(conversationID int64) string {
	return fmt.Sprintf("relay:session:%d", conversationID)
}

// Get returns the actor's state, ErrNotBootstrapped when the key is absent,
// or ErrActorUnavailable on transport failure.
func (a *Actor) Get(ctx context.Context, conversationID int64) (model.SessionState, error) {
	raw, err := a.rdb.Get(ctx, sessionKey(conversationID)).Bytes()
	if err == redis.Nil {
		return model.SessionState{}, ErrNotBootstrapped
	}
	if err != nil {
		return model.SessionState{}, fmt.Errorf("%w: %v", ErrActorUnavailable, err)
	}
	var state model.SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return model.SessionState{}, fmt.Errorf("decode session state: %w", err)
	}
	EnforceInvariants(&state)
	return state, nil
}

// Bootstrap installs the initial state only if the key is still absent, then
// returns whatever the actor holds. Safe under concurrent bootstrap attempts.
func (a *Actor) Bootstrap(ctx context.Context, conversationID int64, initial model.SessionState) (model.SessionState, error) {
	EnforceInvariants(&initial)
	raw, err := json.Marshal(initial)
	if err != nil {
		return model.SessionState{}, fmt.Errorf("encode session state: %w", err)
	}
	if err := a.rdb.SetNX(ctx, sessionKey(conversationID), raw, 0).Err(); err != nil {
		return model.SessionState{}, fmt.Errorf("%w: %v", ErrActorUnavailable, err)
	}
	return a.Get(ctx, conversationID)
}

// Patch applies a sanitized patch transactionally. An empty effective patch
// leaves state and version untouched. Concurrent writers are retried through
// the optimistic WATCH loop.
func (a *Actor) Patch(ctx context.Context, conversationID int64, patch Patch) (model.SessionState, error) {
	key := sessionKey(conversationID)
	var out model.SessionState

	apply := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrNotBootstrapped
		}
		if err != nil {
			return err
		}
		var current model.SessionState
		if err := json.Unmarshal(raw, &current); err != nil {
			return fmt.Errorf("decode session state: %w", err)
		}

		next, changed := Apply(current, patch)
		if !changed {
			EnforceInvariants(&current)
			out = current
			return nil
		}
		next.Version = current.Version + 1
		EnforceInvariants(&next)

		encoded, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode session state: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			return nil
		})
		if err != nil {
			return err
		}
		out = next
		return nil
	}

	for attempt := 0; attempt < patchRetries; attempt++ {
		err := a.rdb.Watch(ctx, apply, key)
		switch {
		case err == nil:
			return out, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrNotBootstrapped):
			return model.SessionState{}, err
		default:
			return model.SessionState{}, fmt.Errorf("%w: %v", ErrActorUnavailable, err)
		}
	}
	return model.SessionState{}, fmt.Errorf("%w: patch contention persisted after %d retries", ErrActorUnavailable, patchRetries)
}

// ErrNotBootstrapped is returned when the actor has no state for the
// conversation yet.
var ErrNotBootstrapped = errors.New("session not bootstrapped")
