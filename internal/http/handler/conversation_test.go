package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"courier.chat/relay/internal/chat"
	"courier.chat/relay/internal/http/handler"
	"courier.chat/relay/internal/http/middleware"
	"courier.chat/relay/internal/model"
	"courier.chat/relay/internal/store"
)

var _ = Describe("ConversationHandler", func() {
	var (
		router *gin.Engine
		svc    *mockConversationService
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		svc = &mockConversationService{}
		h := handler.NewConversationHandler(svc)

		v1 := router.Group("/api/v1")
		v1.Use(middleware.RequireUser())
		{
			v1.POST("/conversations", h.Create)
			v1.GET("/conversations", h.List)
			v1.GET("/conversations/:id", h.Get)
			v1.DELETE("/conversations/:id", h.Delete)
			v1.POST("/conversations/:id/clear-context", h.ClearContext)
		}
	})

	do := func(method, path string, body []byte) *httptest.ResponseRecorder {
		var req *http.Request
		if body != nil {
			req = httptest.NewRequest(method, path, bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
		} else {
			req = httptest.NewRequest(method, path, nil)
		}
		req.Header.Set("X-User-Id", "42")
		req.Header.Set("X-Project-Id", "7")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	Describe("Create", func() {
		It("returns 201 with the new conversation", func() {
			svc.createFn = func(_ context.Context, userID, projectID int64, provider, modelName string) (*model.Conversation, error) {
				Expect(userID).To(Equal(int64(42)))
				Expect(projectID).To(Equal(int64(7)))
				return &model.Conversation{ID: 5, UserID: userID, ProjectID: projectID, Title: model.PlaceholderTitle, Provider: provider, Model: modelName}, nil
			}

			body, _ := json.Marshal(map[string]string{"provider": "deepseek", "model": "deepseek-chat"})
			w := do(http.MethodPost, "/api/v1/conversations", body)

			Expect(w.Code).To(Equal(http.StatusCreated))

			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["title"]).To(Equal(model.PlaceholderTitle))
			Expect(resp["id"]).To(Equal("5"))
		})

		It("returns 400 for an unknown provider", func() {
			body, _ := json.Marshal(map[string]string{"provider": "claude"})
			w := do(http.MethodPost, "/api/v1/conversations", body)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("List", func() {
		It("returns the owner's conversations", func() {
			svc.listFn = func(_ context.Context, userID, projectID int64) ([]model.Conversation, error) {
				return []model.Conversation{{ID: 1, Title: "First"}, {ID: 2, Title: "Second"}}, nil
			}

			w := do(http.MethodGet, "/api/v1/conversations", nil)

			Expect(w.Code).To(Equal(http.StatusOK))

			var resp struct {
				Conversations []map[string]any `json:"conversations"`
			}
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Conversations).To(HaveLen(2))
		})
	})

	Describe("Get", func() {
		It("returns the conversation with its messages", func() {
			svc.getFn = func(_ context.Context, userID, conversationID int64) (*model.Conversation, []model.Message, error) {
				return &model.Conversation{ID: conversationID, Title: "Chat", UpdatedAt: time.Now()},
					[]model.Message{
						{ID: 10, Role: model.RoleUser, Content: "hi"},
						{ID: 11, Role: model.RoleAssistant, Content: "hello"},
					}, nil
			}

			w := do(http.MethodGet, "/api/v1/conversations/33", nil)

			Expect(w.Code).To(Equal(http.StatusOK))

			var resp struct {
				Messages []map[string]any `json:"messages"`
			}
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Messages).To(HaveLen(2))
		})

		It("returns 404 when the conversation does not exist", func() {
			svc.getFn = func(_ context.Context, _, _ int64) (*model.Conversation, []model.Message, error) {
				return nil, nil, store.ErrNotFound
			}

			w := do(http.MethodGet, "/api/v1/conversations/33", nil)

			Expect(w.Code).To(Equal(http.StatusNotFound))
		})

		It("returns 403 for another user's conversation", func() {
			svc.getFn = func(_ context.Context, _, _ int64) (*model.Conversation, []model.Message, error) {
				return nil, nil, chat.ErrForbidden
			}

			w := do(http.MethodGet, "/api/v1/conversations/33", nil)

			Expect(w.Code).To(Equal(http.StatusForbidden))
		})

		It("returns 400 for a malformed id", func() {
			w := do(http.MethodGet, "/api/v1/conversations/abc", nil)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("ClearContext", func() {
		It("returns the conversation with the summary reset", func() {
			svc.clearContextFn = func(_ context.Context, userID, conversationID int64) (*model.Conversation, error) {
				return &model.Conversation{ID: conversationID, Title: "Chat"}, nil
			}

			w := do(http.MethodPost, "/api/v1/conversations/33/clear-context", nil)

			Expect(w.Code).To(Equal(http.StatusOK))

			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp).NotTo(HaveKey("summary"))
		})
	})

	Describe("Delete", func() {
		It("returns 204 on success", func() {
			svc.deleteFn = func(_ context.Context, _, _ int64) error { return nil }

			w := do(http.MethodDelete, "/api/v1/conversations/33", nil)

			Expect(w.Code).To(Equal(http.StatusNoContent))
		})

		It("returns 404 when already gone", func() {
			svc.deleteFn = func(_ context.Context, _, _ int64) error { return store.ErrNotFound }

			w := do(http.MethodDelete, "/api/v1/conversations/33", nil)

			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})
})
