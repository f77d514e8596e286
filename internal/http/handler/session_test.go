package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"courier.chat/relay/internal/http/handler"
	"courier.chat/relay/internal/http/middleware"
	"courier.chat/relay/internal/model"
	"courier.chat/relay/internal/session"
)

var _ = Describe("SessionHandler", func() {
	var (
		router   *gin.Engine
		convs    *mockConversationService
		sessions *mockSessionService
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		convs = &mockConversationService{}
		sessions = &mockSessionService{}
		h := handler.NewSessionHandler(convs, sessions)

		v1 := router.Group("/api/v1")
		v1.Use(middleware.RequireUser())
		v1.GET("/conversations/:id/session", h.Get)
		v1.PATCH("/conversations/:id/session", h.Patch)

		convs.resolveFn = func(_ context.Context, userID, conversationID int64) (*model.Conversation, error) {
			return &model.Conversation{ID: conversationID, UserID: userID}, nil
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
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	Describe("Get", func() {
		It("returns the resolved session state", func() {
			sessions.getFn = func(_ context.Context, conv *model.Conversation) (model.SessionState, error) {
				return model.SessionState{Provider: model.ProviderXAI, Model: "grok-3", Version: 4}, nil
			}

			w := do(http.MethodGet, "/api/v1/conversations/33/session", nil)

			Expect(w.Code).To(Equal(http.StatusOK))

			var resp struct {
				OK    bool               `json:"ok"`
				State model.SessionState `json:"state"`
			}
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.OK).To(BeTrue())
			Expect(resp.State.Provider).To(Equal(model.ProviderXAI))
			Expect(resp.State.Version).To(Equal(int64(4)))
		})
	})

	Describe("Patch", func() {
		It("applies the patch and returns the new state", func() {
			var got session.Patch
			sessions.patchFn = func(_ context.Context, conv *model.Conversation, patch session.Patch) (model.SessionState, error) {
				got = patch
				return model.SessionState{Provider: *patch.Provider, Model: *patch.Model, Version: 5}, nil
			}

			body, _ := json.Marshal(map[string]string{"provider": "deepseek", "model": "deepseek-reasoner"})
			w := do(http.MethodPatch, "/api/v1/conversations/33/session", body)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(got.Provider).NotTo(BeNil())
			Expect(*got.Provider).To(Equal("deepseek"))

			var resp struct {
				OK    bool               `json:"ok"`
				State model.SessionState `json:"state"`
			}
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.OK).To(BeTrue())
			Expect(resp.State.Version).To(Equal(int64(5)))
		})

		It("returns 400 when sanitization rejects the patch", func() {
			sessions.patchFn = func(_ context.Context, _ *model.Conversation, _ session.Patch) (model.SessionState, error) {
				return model.SessionState{}, fmt.Errorf("%w: unknown provider %q", session.ErrInvalidPatch, "claude")
			}

			body, _ := json.Marshal(map[string]string{"provider": "claude"})
			w := do(http.MethodPatch, "/api/v1/conversations/33/session", body)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})
})
