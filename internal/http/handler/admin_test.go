package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"courier.chat/relay/internal/http/handler"
	"courier.chat/relay/internal/http/middleware"
	"courier.chat/relay/internal/model"
	"courier.chat/relay/internal/store"
	"courier.chat/relay/internal/worker"
)

var _ = Describe("AdminHandler", func() {
	const adminKey = "test-admin-key"

	var (
		router     *gin.Engine
		convs      *mockConversationGetter
		messages   *mockMessageCounter
		sessions   *mockSessionService
		compaction *mockCompactionService
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		convs = &mockConversationGetter{}
		messages = &mockMessageCounter{}
		sessions = &mockSessionService{}
		compaction = &mockCompactionService{}
		h := handler.NewAdminHandler(convs, messages, sessions, compaction)

		admin := router.Group("/admin")
		admin.Use(middleware.RequireAdminKey(adminKey))
		admin.GET("/conversations/:id/session", h.Session)
		admin.POST("/conversations/:id/compact", h.Compact)
	})

	do := func(method, path, key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		if key != "" {
			req.Header.Set("X-Admin-Key", key)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	Describe("Session", func() {
		It("returns session state with the stored message count", func() {
			convs.getByIDFn = func(_ context.Context, id int64) (*model.Conversation, error) {
				return &model.Conversation{ID: id, UserID: 7}, nil
			}
			sessions.getFn = func(_ context.Context, conv *model.Conversation) (model.SessionState, error) {
				return model.SessionState{Provider: model.ProviderDeepSeek, Model: "deepseek-chat", Version: 2}, nil
			}
			var countedID int64
			messages.countFn = func(_ context.Context, conversationID int64) (int, error) {
				countedID = conversationID
				return 17, nil
			}

			w := do(http.MethodGet, "/admin/conversations/99/session", adminKey)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(countedID).To(Equal(int64(99)))

			var resp struct {
				OK           bool               `json:"ok"`
				State        model.SessionState `json:"state"`
				MessageCount int                `json:"message_count"`
			}
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.OK).To(BeTrue())
			Expect(resp.State.Provider).To(Equal(model.ProviderDeepSeek))
			Expect(resp.MessageCount).To(Equal(17))
		})

		It("returns 404 for an unknown conversation", func() {
			w := do(http.MethodGet, "/admin/conversations/99/session", adminKey)
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})

		It("returns 500 when the message count cannot be read", func() {
			convs.getByIDFn = func(_ context.Context, id int64) (*model.Conversation, error) {
				return &model.Conversation{ID: id}, nil
			}
			messages.countFn = func(_ context.Context, _ int64) (int, error) {
				return 0, errors.New("connection closed")
			}

			w := do(http.MethodGet, "/admin/conversations/99/session", adminKey)
			Expect(w.Code).To(Equal(http.StatusInternalServerError))
		})

		It("rejects requests without the admin key", func() {
			w := do(http.MethodGet, "/admin/conversations/99/session", "")
			Expect(w.Code).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("Compact", func() {
		It("returns the compaction result", func() {
			now := time.Now().UTC().Truncate(time.Second)
			compaction.compactFn = func(_ context.Context, conversationID int64) (*worker.CompactionResult, error) {
				return &worker.CompactionResult{Summary: "condensed", UpdatedAt: now, MessageCount: 30}, nil
			}

			w := do(http.MethodPost, "/admin/conversations/99/compact", adminKey)

			Expect(w.Code).To(Equal(http.StatusOK))

			var resp struct {
				OK                  bool   `json:"ok"`
				Summary             string `json:"summary"`
				SummaryMessageCount int    `json:"summary_message_count"`
			}
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.OK).To(BeTrue())
			Expect(resp.Summary).To(Equal("condensed"))
			Expect(resp.SummaryMessageCount).To(Equal(30))
		})

		It("returns 404 when the conversation does not exist", func() {
			compaction.compactFn = func(_ context.Context, _ int64) (*worker.CompactionResult, error) {
				return nil, store.ErrNotFound
			}

			w := do(http.MethodPost, "/admin/conversations/99/compact", adminKey)
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})

		It("returns 400 when there is nothing to compact", func() {
			w := do(http.MethodPost, "/admin/conversations/99/compact", adminKey)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(w.Body.String()).To(Equal("No messages to compact"))
		})
	})
})
