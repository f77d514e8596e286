package chat

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"courier.chat/relay/internal/model"
	"courier.chat/relay/internal/session"
	"courier.chat/relay/internal/store"
)

type mockConvStore struct {
	getByIDFn            func(ctx context.Context, id int64) (*model.Conversation, error)
	createFn             func(ctx context.Context, conv *model.Conversation) error
	listByOwnerProjectFn func(ctx context.Context, userID, projectID int64) ([]model.Conversation, error)
	clearSummaryFn       func(ctx context.Context, id int64) error
	deleteFn             func(ctx context.Context, id int64) error

	clearSummaryCalls int
	deleteCalls       int
}

func (m *mockConvStore) GetByID(ctx context.Context, id int64) (*model.Conversation, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, store.ErrNotFound
}

func (m *mockConvStore) Create(ctx context.Context, conv *model.Conversation) error {
	if m.createFn != nil {
		return m.createFn(ctx, conv)
	}
	return nil
}

func (m *mockConvStore) ListByOwnerProject(ctx context.Context, userID, projectID int64) ([]model.Conversation, error) {
	if m.listByOwnerProjectFn != nil {
		return m.listByOwnerProjectFn(ctx, userID, projectID)
	}
	return nil, nil
}

func (m *mockConvStore) UpdateTitleIfPlaceholder(ctx context.Context, id int64, title string) (bool, error) {
	return false, nil
}

func (m *mockConvStore) UpdateSummary(ctx context.Context, id int64, summary string, messageCount int, updatedAt time.Time) error {
	return nil
}

func (m *mockConvStore) ClearSummary(ctx context.Context, id int64) error {
	m.clearSummaryCalls++
	if m.clearSummaryFn != nil {
		return m.clearSummaryFn(ctx, id)
	}
	return nil
}

func (m *mockConvStore) UpdateSettings(ctx context.Context, id int64, provider, modelName string) error {
	return nil
}

func (m *mockConvStore) Touch(ctx context.Context, id int64, at time.Time) error { return nil }

func (m *mockConvStore) Delete(ctx context.Context, id int64) error {
	m.deleteCalls++
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

type mockMsgStore struct {
	listFn   func(ctx context.Context, conversationID int64) ([]model.Message, error)
	appendFn func(ctx context.Context, msg *model.Message) error

	appended []*model.Message
}

func (m *mockMsgStore) ListByConversation(ctx context.Context, conversationID int64) ([]model.Message, error) {
	if m.listFn != nil {
		return m.listFn(ctx, conversationID)
	}
	return nil, nil
}

func (m *mockMsgStore) Append(ctx context.Context, msg *model.Message) error {
	m.appended = append(m.appended, msg)
	if m.appendFn != nil {
		return m.appendFn(ctx, msg)
	}
	return nil
}

func (m *mockMsgStore) AppendPair(ctx context.Context, user, assistant *model.Message) error {
	return nil
}

func (m *mockMsgStore) CountByConversation(ctx context.Context, conversationID int64) (int, error) {
	return 0, nil
}

type mockSessions struct {
	patchFn func(ctx context.Context, conv *model.Conversation, patch session.Patch) (model.SessionState, error)

	capturedPatch *session.Patch
}

func (m *mockSessions) GetOrBootstrap(ctx context.Context, conv *model.Conversation) (model.SessionState, error) {
	return model.SessionState{}, nil
}

func (m *mockSessions) Patch(ctx context.Context, conv *model.Conversation, patch session.Patch) (model.SessionState, error) {
	m.capturedPatch = &patch
	if m.patchFn != nil {
		return m.patchFn(ctx, conv, patch)
	}
	return model.SessionState{}, nil
}

var _ = Describe("ConversationService", func() {
	var (
		convs    *mockConvStore
		msgs     *mockMsgStore
		sessions *mockSessions
		svc      *ConversationService
		ctx      context.Context
	)

	owned := func(id, userID int64) *model.Conversation {
		summary := "the story so far"
		at := time.Now().UTC()
		count := 8
		return &model.Conversation{
			ID:                  id,
			UserID:              userID,
			ProjectID:           7,
			Title:               "Debugging session",
			Provider:            "xai",
			Model:               "grok-3",
			Summary:             &summary,
			SummaryUpdatedAt:    &at,
			SummaryMessageCount: &count,
		}
	}

	BeforeEach(func() {
		convs = &mockConvStore{}
		msgs = &mockMsgStore{}
		sessions = &mockSessions{}
		svc = NewConversationService(convs, msgs, nil, sessions)
		ctx = context.Background()
	})

	Describe("Create", func() {
		It("creates an empty conversation with the placeholder title", func() {
			var created *model.Conversation
			convs.createFn = func(_ context.Context, conv *model.Conversation) error {
				created = conv
				return nil
			}

			conv, err := svc.Create(ctx, 42, 7, "xai", "grok-3")
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.ID).NotTo(BeZero())
			Expect(conv.Title).To(Equal(model.PlaceholderTitle))
			Expect(created).To(Equal(conv))
		})

		It("rejects a provider the registry does not know", func() {
			_, err := svc.Create(ctx, 42, 7, "claude", "opus")
			Expect(err).To(MatchError(ContainSubstring("unknown provider")))
		})
	})

	Describe("List", func() {
		It("loads from the store on a cache miss", func() {
			convs.listByOwnerProjectFn = func(_ context.Context, userID, projectID int64) ([]model.Conversation, error) {
				Expect(userID).To(Equal(int64(42)))
				Expect(projectID).To(Equal(int64(7)))
				return []model.Conversation{*owned(1, 42), *owned(2, 42)}, nil
			}

			list, err := svc.List(ctx, 42, 7)
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(2))
		})
	})

	Describe("Get", func() {
		It("returns the conversation with its message log", func() {
			convs.getByIDFn = func(_ context.Context, id int64) (*model.Conversation, error) {
				return owned(id, 42), nil
			}
			msgs.listFn = func(_ context.Context, conversationID int64) ([]model.Message, error) {
				return []model.Message{{ID: 100, Role: model.RoleUser}, {ID: 101, Role: model.RoleAssistant}}, nil
			}

			conv, log, err := svc.Get(ctx, 42, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.ID).To(Equal(int64(1)))
			Expect(log).To(HaveLen(2))
		})

		It("refuses another user's conversation", func() {
			convs.getByIDFn = func(_ context.Context, id int64) (*model.Conversation, error) {
				return owned(id, 99), nil
			}

			_, _, err := svc.Get(ctx, 42, 1)
			Expect(err).To(MatchError(ErrForbidden))
		})

		It("passes through not-found", func() {
			_, _, err := svc.Get(ctx, 42, 1)
			Expect(err).To(MatchError(store.ErrNotFound))
		})
	})

	Describe("ClearContext", func() {
		BeforeEach(func() {
			convs.getByIDFn = func(_ context.Context, id int64) (*model.Conversation, error) {
				return owned(id, 42), nil
			}
		})

		It("appends a marker and resets the summary everywhere", func() {
			conv, err := svc.ClearContext(ctx, 42, 1)
			Expect(err).NotTo(HaveOccurred())

			Expect(msgs.appended).To(HaveLen(1))
			marker := msgs.appended[0]
			Expect(marker.Role).To(Equal(model.RoleSystem))
			Expect(marker.Meta).NotTo(BeNil())
			Expect(marker.Meta.Event).To(Equal(model.EventContextCleared))

			Expect(convs.clearSummaryCalls).To(Equal(1))
			Expect(conv.Summary).To(BeNil())
			Expect(conv.SummaryMessageCount).To(BeNil())

			Expect(sessions.capturedPatch).NotTo(BeNil())
			Expect(sessions.capturedPatch.ClearSummary).To(BeTrue())
		})

		It("still succeeds when the session actor is unavailable", func() {
			sessions.patchFn = func(context.Context, *model.Conversation, session.Patch) (model.SessionState, error) {
				return model.SessionState{}, errors.New("actor unavailable")
			}

			conv, err := svc.ClearContext(ctx, 42, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Summary).To(BeNil())
		})

		It("fails when the marker cannot be appended", func() {
			msgs.appendFn = func(context.Context, *model.Message) error {
				return errors.New("db down")
			}

			_, err := svc.ClearContext(ctx, 42, 1)
			Expect(err).To(HaveOccurred())
			Expect(convs.clearSummaryCalls).To(BeZero())
		})
	})

	Describe("Delete", func() {
		It("deletes an owned conversation", func() {
			convs.getByIDFn = func(_ context.Context, id int64) (*model.Conversation, error) {
				return owned(id, 42), nil
			}

			Expect(svc.Delete(ctx, 42, 1)).To(Succeed())
			Expect(convs.deleteCalls).To(Equal(1))
		})

		It("never deletes across owners", func() {
			convs.getByIDFn = func(_ context.Context, id int64) (*model.Conversation, error) {
				return owned(id, 99), nil
			}

			Expect(svc.Delete(ctx, 42, 1)).To(MatchError(ErrForbidden))
			Expect(convs.deleteCalls).To(BeZero())
		})
	})
})
