package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"courier.chat/relay/internal/chat"
	"courier.chat/relay/internal/http/handler"
	"courier.chat/relay/internal/http/middleware"
	"courier.chat/relay/internal/model"
	"courier.chat/relay/internal/stream"
)

func turnBody() []byte {
	body, _ := json.Marshal(map[string]any{
		"provider":             "deepseek",
		"model":                "deepseek-chat",
		"user_message_id":      "11111111-1111-1111-1111-111111111111",
		"assistant_message_id": "22222222-2222-2222-2222-222222222222",
		"messages": []map[string]string{
			{"role": "user", "content": "hello"},
		},
	})
	return body
}

var _ = Describe("TurnHandler", func() {
	var (
		router       *gin.Engine
		orchestrator *mockTurnStarter
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		orchestrator = &mockTurnStarter{}
		h := handler.NewTurnHandler(orchestrator)

		v1 := router.Group("/api/v1")
		v1.Use(middleware.RequireUser())
		v1.POST("/chat/turn", h.Stream)
	})

	post := func(body []byte, authenticated bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/turn", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		if authenticated {
			req.Header.Set("X-User-Id", "42")
			req.Header.Set("X-Project-Id", "7")
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	Context("when the turn streams successfully", func() {
		BeforeEach(func() {
			orchestrator.startFn = func(_ context.Context, req chat.TurnRequest) (*chat.Turn, *chat.TurnError) {
				tee, client, persist := stream.NewTee()
				go func() {
					// Drain the persistence branch so the tee's contract holds.
					for {
						if _, ok := persist.Next(); !ok {
							return
						}
					}
				}()
				tee.Publish(stream.Event{Type: stream.TypeMeta, Meta: &stream.Meta{FirstByteMs: 12}})
				tee.Publish(stream.Delta("Hel"))
				tee.Publish(stream.Delta("lo"))
				tee.Close(nil)
				return &chat.Turn{
					Conversation:    &model.Conversation{ID: 99},
					Client:          client,
					SummaryInjected: true,
					ContextMessages: 5,
				}, nil
			}
		})

		It("relays events and terminates with the done sentinel", func() {
			w := post(turnBody(), true)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Type")).To(Equal("text/event-stream"))
			Expect(w.Header().Get("X-Conversation-Id")).To(Equal("99"))
			Expect(w.Header().Get("X-Summary-Injected")).To(Equal("true"))
			Expect(w.Header().Get("X-Context-Messages")).To(Equal("5"))

			body := w.Body.String()
			Expect(body).To(ContainSubstring(`"type":"meta"`))
			Expect(body).To(ContainSubstring(`"type":"delta"`))
			Expect(body).To(HaveSuffix("data: [DONE]\n\n"))
		})

		It("fills the caller identity from the auth context, never the body", func() {
			post(turnBody(), true)

			Expect(orchestrator.captured).NotTo(BeNil())
			Expect(orchestrator.captured.UserID).To(Equal(int64(42)))
			Expect(orchestrator.captured.ProjectID).To(Equal(int64(7)))
		})
	})

	Context("when the turn is rejected", func() {
		BeforeEach(func() {
			orchestrator.startFn = func(_ context.Context, _ chat.TurnRequest) (*chat.Turn, *chat.TurnError) {
				return nil, &chat.TurnError{Status: http.StatusTooManyRequests, Reason: "Too many turns, slow down"}
			}
		})

		It("returns the rejection status with a plain-text body", func() {
			w := post(turnBody(), true)

			Expect(w.Code).To(Equal(http.StatusTooManyRequests))
			Expect(w.Body.String()).To(Equal("Too many turns, slow down"))
		})
	})

	It("returns 400 on a malformed body", func() {
		w := post([]byte("{not json"), true)

		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("returns 401 without a caller identity", func() {
		w := post(turnBody(), false)

		Expect(w.Code).To(Equal(http.StatusUnauthorized))
	})
})
