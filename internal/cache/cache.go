// Package cache provides a read-through Redis cache for hot query paths.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"courier.chat/relay/internal/model"
)

const (
	conversationListTTL = 5 * time.Minute
)

// ConversationCache caches per-owner conversation listings. All methods are
// best-effort: a Redis failure degrades to the underlying store, never to an
// error surfaced to the caller.
type ConversationCache struct {
	rdb *redis.Client
}

func NewConversationCache(rdb *redis.Client) *ConversationCache {
	return &ConversationCache{rdb: rdb}
}

func listKey(userID, projectID int64) string {
	return fmt.Sprintf("relay:convlist:%d:%d", userID, projectID)
}

// GetList returns the cached listing, or (nil, false) on miss or any Redis error.
func (c *ConversationCache) GetList(ctx context.Context, userID, projectID int64) ([]model.Conversation, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, listKey(userID, projectID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.WarnContext(ctx, "conversation list cache read failed", "error", err)
		}
		return nil, false
	}
	var convs []model.Conversation
	if err := json.Unmarshal(raw, &convs); err != nil {
		slog.WarnContext(ctx, "conversation list cache entry corrupt, dropping", "error", err)
		c.Invalidate(ctx, userID, projectID)
		return nil, false
	}
	return convs, true
}

// SetList stores the listing with a short TTL.
func (c *ConversationCache) SetList(ctx context.Context, userID, projectID int64, convs []model.Conversation) {
	if c == nil || c.rdb == nil {
		return
	}
	raw, err := json.Marshal(convs)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, listKey(userID, projectID), raw, conversationListTTL).Err(); err != nil {
		slog.WarnContext(ctx, "conversation list cache write failed", "error", err)
	}
}

// Invalidate drops the cached listing after any mutation to the owner's
// conversations.
func (c *ConversationCache) Invalidate(ctx context.Context, userID, projectID int64) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, listKey(userID, projectID)).Err(); err != nil {
		slog.WarnContext(ctx, "conversation list cache invalidation failed", "error", err)
	}
}
