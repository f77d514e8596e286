package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"courier.chat/relay/common/id"
	"courier.chat/relay/internal/cache"
	"courier.chat/relay/internal/model"
	"courier.chat/relay/internal/session"
	"courier.chat/relay/internal/store"
)

// ErrForbidden is returned when a conversation exists but belongs to a
// different user.
var ErrForbidden = errors.New("conversation belongs to another user")

// SessionResolver is the slice of the session store the conversation surface
// needs: state reads and the clear-summary patch.
type SessionResolver interface {
	GetOrBootstrap(ctx context.Context, conv *model.Conversation) (model.SessionState, error)
	Patch(ctx context.Context, conv *model.Conversation, patch session.Patch) (model.SessionState, error)
}

// ConversationService owns the conversation lifecycle outside of turns:
// create, list, fetch, context clear and delete.
type ConversationService struct {
	convs    store.ConversationStore
	msgs     store.MessageStore
	cache    *cache.ConversationCache
	sessions SessionResolver

	// listFlight collapses concurrent list loads for the same owner after a
	// cache miss so an invalidation does not stampede the database.
	listFlight singleflight.Group
}

func NewConversationService(convs store.ConversationStore, msgs store.MessageStore, convCache *cache.ConversationCache, sessions SessionResolver) *ConversationService {
	return &ConversationService{
		convs:    convs,
		msgs:     msgs,
		cache:    convCache,
		sessions: sessions,
	}
}

// Create makes an empty conversation with the placeholder title. The first
// completed turn replaces the title and may also be the creation path; this
// exists for clients that open the conversation before sending anything.
func (s *ConversationService) Create(ctx context.Context, userID, projectID int64, provider, modelName string) (*model.Conversation, error) {
	if provider != "" && !model.KnownProvider(provider) {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}

	conv := &model.Conversation{
		ID:        id.New(),
		UserID:    userID,
		ProjectID: projectID,
		Title:     model.PlaceholderTitle,
		Provider:  provider,
		Model:     modelName,
	}
	if err := s.convs.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	s.cache.Invalidate(ctx, userID, projectID)
	return conv, nil
}

// List returns the owner's conversations for one project, read through the
// cache.
func (s *ConversationService) List(ctx context.Context, userID, projectID int64) ([]model.Conversation, error) {
	if convs, ok := s.cache.GetList(ctx, userID, projectID); ok {
		return convs, nil
	}

	key := strconv.FormatInt(userID, 10) + ":" + strconv.FormatInt(projectID, 10)
	v, err, _ := s.listFlight.Do(key, func() (any, error) {
		convs, err := s.convs.ListByOwnerProject(ctx, userID, projectID)
		if err != nil {
			return nil, fmt.Errorf("listing conversations: %w", err)
		}
		s.cache.SetList(ctx, userID, projectID, convs)
		return convs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.Conversation), nil
}

// Resolve loads a conversation and enforces ownership.
func (s *ConversationService) Resolve(ctx context.Context, userID, conversationID int64) (*model.Conversation, error) {
	conv, err := s.convs.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, ErrForbidden
	}
	return conv, nil
}

// Get returns a conversation with its full message log.
func (s *ConversationService) Get(ctx context.Context, userID, conversationID int64) (*model.Conversation, []model.Message, error) {
	conv, err := s.Resolve(ctx, userID, conversationID)
	if err != nil {
		return nil, nil, err
	}

	messages, err := s.msgs.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading messages: %w", err)
	}
	return conv, messages, nil
}

// ClearContext appends a context-clear marker and resets the rolling summary
// in both the durable record and the session actor. Turns after this point
// never see or re-summarize the earlier messages.
func (s *ConversationService) ClearContext(ctx context.Context, userID, conversationID int64) (*model.Conversation, error) {
	conv, err := s.Resolve(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	marker := &model.Message{
		ID:             id.New(),
		ConversationID: conv.ID,
		Role:           model.RoleSystem,
		CreatedAt:      time.Now().UTC(),
		Meta:           &model.MessageMeta{Event: model.EventContextCleared},
	}
	if err := s.msgs.Append(ctx, marker); err != nil {
		return nil, fmt.Errorf("appending context-clear marker: %w", err)
	}

	if err := s.convs.ClearSummary(ctx, conv.ID); err != nil {
		return nil, fmt.Errorf("clearing summary: %w", err)
	}
	conv.Summary = nil
	conv.SummaryUpdatedAt = nil
	conv.SummaryMessageCount = nil

	// The durable record is already cleared; an actor failure here converges
	// on the next bootstrap.
	if _, err := s.sessions.Patch(ctx, conv, session.Patch{ClearSummary: true}); err != nil {
		slog.WarnContext(ctx, "session summary clear failed", "conversation_id", conv.ID, "error", err)
	}

	s.cache.Invalidate(ctx, userID, conv.ProjectID)
	return conv, nil
}

// Delete soft-deletes a conversation.
func (s *ConversationService) Delete(ctx context.Context, userID, conversationID int64) error {
	conv, err := s.Resolve(ctx, userID, conversationID)
	if err != nil {
		return err
	}

	if err := s.convs.Delete(ctx, conv.ID); err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}

	s.cache.Invalidate(ctx, userID, conv.ProjectID)
	return nil
}
