package handler_test

import (
	"context"

	"courier.chat/relay/internal/chat"
	"courier.chat/relay/internal/model"
	"courier.chat/relay/internal/session"
	"courier.chat/relay/internal/store"
	"courier.chat/relay/internal/worker"
)

type mockTurnStarter struct {
	startFn  func(ctx context.Context, req chat.TurnRequest) (*chat.Turn, *chat.TurnError)
	captured *chat.TurnRequest
}

func (m *mockTurnStarter) StartTurn(ctx context.Context, req chat.TurnRequest) (*chat.Turn, *chat.TurnError) {
	m.captured = &req
	if m.startFn != nil {
		return m.startFn(ctx, req)
	}
	return nil, &chat.TurnError{Status: 500, Reason: "not stubbed"}
}

type mockConversationService struct {
	createFn       func(ctx context.Context, userID, projectID int64, provider, modelName string) (*model.Conversation, error)
	listFn         func(ctx context.Context, userID, projectID int64) ([]model.Conversation, error)
	getFn          func(ctx context.Context, userID, conversationID int64) (*model.Conversation, []model.Message, error)
	clearContextFn func(ctx context.Context, userID, conversationID int64) (*model.Conversation, error)
	deleteFn       func(ctx context.Context, userID, conversationID int64) error
	resolveFn      func(ctx context.Context, userID, conversationID int64) (*model.Conversation, error)
}

func (m *mockConversationService) Create(ctx context.Context, userID, projectID int64, provider, modelName string) (*model.Conversation, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, projectID, provider, modelName)
	}
	return nil, nil
}

func (m *mockConversationService) List(ctx context.Context, userID, projectID int64) ([]model.Conversation, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID, projectID)
	}
	return nil, nil
}

func (m *mockConversationService) Get(ctx context.Context, userID, conversationID int64) (*model.Conversation, []model.Message, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID, conversationID)
	}
	return nil, nil, store.ErrNotFound
}

func (m *mockConversationService) ClearContext(ctx context.Context, userID, conversationID int64) (*model.Conversation, error) {
	if m.clearContextFn != nil {
		return m.clearContextFn(ctx, userID, conversationID)
	}
	return nil, store.ErrNotFound
}

func (m *mockConversationService) Delete(ctx context.Context, userID, conversationID int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, conversationID)
	}
	return nil
}

func (m *mockConversationService) Resolve(ctx context.Context, userID, conversationID int64) (*model.Conversation, error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, userID, conversationID)
	}
	return nil, store.ErrNotFound
}

type mockSessionService struct {
	getFn   func(ctx context.Context, conv *model.Conversation) (model.SessionState, error)
	patchFn func(ctx context.Context, conv *model.Conversation, patch session.Patch) (model.SessionState, error)
}

func (m *mockSessionService) GetOrBootstrap(ctx context.Context, conv *model.Conversation) (model.SessionState, error) {
	if m.getFn != nil {
		return m.getFn(ctx, conv)
	}
	return model.SessionState{}, nil
}

func (m *mockSessionService) Patch(ctx context.Context, conv *model.Conversation, patch session.Patch) (model.SessionState, error) {
	if m.patchFn != nil {
		return m.patchFn(ctx, conv, patch)
	}
	return model.SessionState{}, nil
}

type mockCompactionService struct {
	compactFn func(ctx context.Context, conversationID int64) (*worker.CompactionResult, error)
}

func (m *mockCompactionService) CompactNow(ctx context.Context, conversationID int64) (*worker.CompactionResult, error) {
	if m.compactFn != nil {
		return m.compactFn(ctx, conversationID)
	}
	return nil, worker.ErrNothingToCompact
}

type mockConversationGetter struct {
	getByIDFn func(ctx context.Context, id int64) (*model.Conversation, error)
}

func (m *mockConversationGetter) GetByID(ctx context.Context, id int64) (*model.Conversation, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, store.ErrNotFound
}

type mockMessageCounter struct {
	countFn func(ctx context.Context, conversationID int64) (int, error)
}

func (m *mockMessageCounter) CountByConversation(ctx context.Context, conversationID int64) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx, conversationID)
	}
	return 0, nil
}
