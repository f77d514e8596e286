package worker_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"courier.chat/relay/internal/model"
	"courier.chat/relay/internal/queue"
	"courier.chat/relay/internal/session"
	"courier.chat/relay/internal/store"
	"courier.chat/relay/internal/summary"
	"courier.chat/relay/internal/worker"
)

// Mock ConversationStore
type mockConversationStore struct {
	getByIDFn       func(ctx context.Context, id int64) (*model.Conversation, error)
	updateSummaryFn func(ctx context.Context, id int64, summary string, messageCount int, updatedAt time.Time) error

	updateSummaryCalls int
}

func (m *mockConversationStore) GetByID(ctx context.Context, id int64) (*model.Conversation, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, store.ErrNotFound
}

func (m *mockConversationStore) Create(ctx context.Context, conv *model.Conversation) error {
	return nil
}

func (m *mockConversationStore) ListByOwnerProject(ctx context.Context, userID, projectID int64) ([]model.Conversation, error) {
	return nil, nil
}

func (m *mockConversationStore) UpdateTitleIfPlaceholder(ctx context.Context, id int64, title string) (bool, error) {
	return false, nil
}

func (m *mockConversationStore) UpdateSummary(ctx context.Context, id int64, summary string, messageCount int, updatedAt time.Time) error {
	m.updateSummaryCalls++
	if m.updateSummaryFn != nil {
		return m.updateSummaryFn(ctx, id, summary, messageCount, updatedAt)
	}
	return nil
}

func (m *mockConversationStore) ClearSummary(ctx context.Context, id int64) error {
	return nil
}

func (m *mockConversationStore) UpdateSettings(ctx context.Context, id int64, provider, model string) error {
	return nil
}

func (m *mockConversationStore) Touch(ctx context.Context, id int64, at time.Time) error {
	return nil
}

func (m *mockConversationStore) Delete(ctx context.Context, id int64) error {
	return nil
}

// Mock MessageStore
type mockMessageStore struct {
	listFn func(ctx context.Context, conversationID int64) ([]model.Message, error)
}

func (m *mockMessageStore) ListByConversation(ctx context.Context, conversationID int64) ([]model.Message, error) {
	if m.listFn != nil {
		return m.listFn(ctx, conversationID)
	}
	return nil, nil
}

func (m *mockMessageStore) Append(ctx context.Context, msg *model.Message) error {
	return nil
}

func (m *mockMessageStore) AppendPair(ctx context.Context, user, assistant *model.Message) error {
	return nil
}

func (m *mockMessageStore) CountByConversation(ctx context.Context, conversationID int64) (int, error) {
	return 0, nil
}

// Mock SessionPatcher
type mockSessionPatcher struct {
	patchFn       func(ctx context.Context, conv *model.Conversation, patch session.Patch) (model.SessionState, error)
	capturedPatch *session.Patch
}

func (m *mockSessionPatcher) Patch(ctx context.Context, conv *model.Conversation, patch session.Patch) (model.SessionState, error) {
	m.capturedPatch = &patch
	if m.patchFn != nil {
		return m.patchFn(ctx, conv, patch)
	}
	return model.SessionState{}, nil
}

// Mock Summarizer
type mockSummarizer struct {
	summarizeFn    func(ctx context.Context, priorSummary string, messages []model.Message) (string, error)
	summarizeCalls int
	capturedPrior  string
	capturedWindow []model.Message
}

func (m *mockSummarizer) Summarize(ctx context.Context, priorSummary string, messages []model.Message) (string, error) {
	m.summarizeCalls++
	m.capturedPrior = priorSummary
	m.capturedWindow = messages
	if m.summarizeFn != nil {
		return m.summarizeFn(ctx, priorSummary, messages)
	}
	return "updated summary", nil
}

func turnMessages(start int64, turns int) []model.Message {
	var msgs []model.Message
	for i := 0; i < turns; i++ {
		msgs = append(msgs,
			model.Message{ID: start + int64(2*i), Role: model.RoleUser, Content: fmt.Sprintf("question %d", i)},
			model.Message{ID: start + int64(2*i) + 1, Role: model.RoleAssistant, Content: fmt.Sprintf("answer %d", i)},
		)
	}
	return msgs
}

func clearMarker(id int64) model.Message {
	return model.Message{
		ID:      id,
		Role:    model.RoleSystem,
		Content: "",
		Meta:    &model.MessageMeta{Event: model.EventContextCleared},
	}
}

var _ = Describe("Compactor", func() {
	var (
		ctx        context.Context
		convs      *mockConversationStore
		msgs       *mockMessageStore
		sessions   *mockSessionPatcher
		summarizer *mockSummarizer
		compactor  *worker.Compactor
		job        queue.Message
	)

	policy := summary.TriggerPolicy{
		MessageThreshold: 6,
		TokenThreshold:   100000,
		MinNewMessages:   2,
	}

	BeforeEach(func() {
		ctx = context.Background()
		convs = &mockConversationStore{}
		msgs = &mockMessageStore{}
		sessions = &mockSessionPatcher{}
		summarizer = &mockSummarizer{}
		compactor = worker.NewCompactor(convs, msgs, sessions, summarizer, policy)

		convs.getByIDFn = func(ctx context.Context, id int64) (*model.Conversation, error) {
			return &model.Conversation{ID: id, Provider: model.ProviderDeepSeek, Model: "deepseek-chat"}, nil
		}

		job = queue.Message{
			ID:                 "1-0",
			ConversationID:     42,
			AssistantMessageID: 107, // last assistant message of turnMessages(100, 4)
			Attempt:            1,
		}
	})

	Describe("Process", func() {
		Context("when the conversation crosses the message threshold", func() {
			BeforeEach(func() {
				msgs.listFn = func(ctx context.Context, conversationID int64) ([]model.Message, error) {
					return turnMessages(100, 4), nil // 8 active messages, nothing covered
				}
			})

			It("writes the new summary covering the whole active window", func() {
				outcome, err := compactor.Process(ctx, job)

				Expect(err).NotTo(HaveOccurred())
				Expect(outcome).To(Equal(worker.OutcomeCompacted))
				Expect(summarizer.summarizeCalls).To(Equal(1))
				Expect(summarizer.capturedWindow).To(HaveLen(8))
				Expect(convs.updateSummaryCalls).To(Equal(1))
			})

			It("propagates the same values to the session actor", func() {
				var storedText string
				var storedCount int
				convs.updateSummaryFn = func(ctx context.Context, id int64, text string, count int, at time.Time) error {
					storedText = text
					storedCount = count
					return nil
				}

				_, err := compactor.Process(ctx, job)

				Expect(err).NotTo(HaveOccurred())
				Expect(sessions.capturedPatch).NotTo(BeNil())
				Expect(*sessions.capturedPatch.Summary).To(Equal(storedText))
				Expect(*sessions.capturedPatch.SummaryMessageCount).To(Equal(storedCount))
				Expect(storedCount).To(Equal(8))
			})

			It("settles the job even when the session actor fails", func() {
				sessions.patchFn = func(ctx context.Context, conv *model.Conversation, patch session.Patch) (model.SessionState, error) {
					return model.SessionState{}, errors.New("actor down")
				}

				outcome, err := compactor.Process(ctx, job)

				Expect(err).NotTo(HaveOccurred())
				Expect(outcome).To(Equal(worker.OutcomeCompacted))
			})
		})

		Context("with an existing summary", func() {
			BeforeEach(func() {
				prior := "earlier discussion"
				covered := 4
				convs.getByIDFn = func(ctx context.Context, id int64) (*model.Conversation, error) {
					return &model.Conversation{
						ID:                  id,
						Summary:             &prior,
						SummaryMessageCount: &covered,
					}, nil
				}
				msgs.listFn = func(ctx context.Context, conversationID int64) ([]model.Message, error) {
					return turnMessages(100, 4), nil
				}
			})

			It("summarizes only the uncovered suffix with the prior summary as context", func() {
				outcome, err := compactor.Process(ctx, job)

				Expect(err).NotTo(HaveOccurred())
				Expect(outcome).To(Equal(worker.OutcomeCompacted))
				Expect(summarizer.capturedPrior).To(Equal("earlier discussion"))
				Expect(summarizer.capturedWindow).To(HaveLen(4))
				Expect(summarizer.capturedWindow[0].ID).To(Equal(int64(104)))
			})
		})

		Context("when the conversation was deleted after enqueue", func() {
			BeforeEach(func() {
				convs.getByIDFn = func(ctx context.Context, id int64) (*model.Conversation, error) {
					return nil, store.ErrNotFound
				}
			})

			It("settles as a no-op without summarizing", func() {
				outcome, err := compactor.Process(ctx, job)

				Expect(err).NotTo(HaveOccurred())
				Expect(outcome).To(Equal(worker.OutcomeConversationGone))
				Expect(summarizer.summarizeCalls).To(BeZero())
			})
		})

		Context("when a context clear moved the boundary past the triggering turn", func() {
			BeforeEach(func() {
				msgs.listFn = func(ctx context.Context, conversationID int64) ([]model.Message, error) {
					history := turnMessages(100, 4)
					history = append(history, clearMarker(120))
					history = append(history, turnMessages(121, 1)...)
					return history, nil
				}
			})

			It("drops the job without touching the summary", func() {
				outcome, err := compactor.Process(ctx, job)

				Expect(err).NotTo(HaveOccurred())
				Expect(outcome).To(Equal(worker.OutcomeTurnNotVisible))
				Expect(summarizer.summarizeCalls).To(BeZero())
				Expect(convs.updateSummaryCalls).To(BeZero())
			})
		})

		Context("when the summary already covers the active context", func() {
			BeforeEach(func() {
				prior := "all caught up"
				covered := 8
				convs.getByIDFn = func(ctx context.Context, id int64) (*model.Conversation, error) {
					return &model.Conversation{ID: id, Summary: &prior, SummaryMessageCount: &covered}, nil
				}
				msgs.listFn = func(ctx context.Context, conversationID int64) ([]model.Message, error) {
					return turnMessages(100, 4), nil
				}
			})

			It("settles a redelivered job as a no-op", func() {
				outcome, err := compactor.Process(ctx, job)

				Expect(err).NotTo(HaveOccurred())
				Expect(outcome).To(Equal(worker.OutcomeUpToDate))
				Expect(summarizer.summarizeCalls).To(BeZero())
			})
		})

		Context("when coverage exceeds the active window after a clear", func() {
			BeforeEach(func() {
				prior := "pre-clear summary"
				covered := 20
				convs.getByIDFn = func(ctx context.Context, id int64) (*model.Conversation, error) {
					return &model.Conversation{ID: id, Summary: &prior, SummaryMessageCount: &covered}, nil
				}
				msgs.listFn = func(ctx context.Context, conversationID int64) ([]model.Message, error) {
					history := []model.Message{clearMarker(90)}
					return append(history, turnMessages(100, 4)...), nil
				}
			})

			It("treats the whole active window as uncovered", func() {
				outcome, err := compactor.Process(ctx, job)

				Expect(err).NotTo(HaveOccurred())
				Expect(outcome).To(Equal(worker.OutcomeCompacted))
				Expect(summarizer.capturedWindow).To(HaveLen(8))
			})
		})

		Context("when the conversation is below every threshold", func() {
			BeforeEach(func() {
				msgs.listFn = func(ctx context.Context, conversationID int64) ([]model.Message, error) {
					return turnMessages(100, 2), nil // 4 active messages
				}
				job.AssistantMessageID = 103
			})

			It("leaves the summary alone", func() {
				outcome, err := compactor.Process(ctx, job)

				Expect(err).NotTo(HaveOccurred())
				Expect(outcome).To(Equal(worker.OutcomeBelowThreshold))
				Expect(summarizer.summarizeCalls).To(BeZero())
			})
		})

		Context("when the summarizer returns an empty result", func() {
			BeforeEach(func() {
				msgs.listFn = func(ctx context.Context, conversationID int64) ([]model.Message, error) {
					return turnMessages(100, 4), nil
				}
				summarizer.summarizeFn = func(ctx context.Context, prior string, window []model.Message) (string, error) {
					return "", summary.ErrEmptySummary
				}
			})

			It("never overwrites the stored summary", func() {
				outcome, err := compactor.Process(ctx, job)

				Expect(err).NotTo(HaveOccurred())
				Expect(outcome).To(Equal(worker.OutcomeEmptySummary))
				Expect(convs.updateSummaryCalls).To(BeZero())
				Expect(sessions.capturedPatch).To(BeNil())
			})
		})

		Context("when the summarizer fails outright", func() {
			BeforeEach(func() {
				msgs.listFn = func(ctx context.Context, conversationID int64) ([]model.Message, error) {
					return turnMessages(100, 4), nil
				}
				summarizer.summarizeFn = func(ctx context.Context, prior string, window []model.Message) (string, error) {
					return "", errors.New("upstream timeout")
				}
			})

			It("returns the error so the job is retried", func() {
				_, err := compactor.Process(ctx, job)

				Expect(err).To(HaveOccurred())
				Expect(convs.updateSummaryCalls).To(BeZero())
			})
		})

		Context("when the summary write fails", func() {
			BeforeEach(func() {
				msgs.listFn = func(ctx context.Context, conversationID int64) ([]model.Message, error) {
					return turnMessages(100, 4), nil
				}
				convs.updateSummaryFn = func(ctx context.Context, id int64, text string, count int, at time.Time) error {
					return errors.New("db down")
				}
			})

			It("returns the error and skips the actor patch", func() {
				_, err := compactor.Process(ctx, job)

				Expect(err).To(HaveOccurred())
				Expect(sessions.capturedPatch).To(BeNil())
			})
		})
	})
})
