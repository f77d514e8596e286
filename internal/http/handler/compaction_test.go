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
	"courier.chat/relay/internal/worker"
)

var _ = Describe("CompactionHandler", func() {
	var (
		router     *gin.Engine
		convs      *mockConversationService
		compaction *mockCompactionService
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		convs = &mockConversationService{}
		compaction = &mockCompactionService{}
		h := handler.NewCompactionHandler(convs, compaction)

		v1 := router.Group("/api/v1")
		v1.Use(middleware.RequireUser())
		v1.POST("/conversations/:id/compact", h.Trigger)

		convs.resolveFn = func(_ context.Context, userID, conversationID int64) (*model.Conversation, error) {
			return &model.Conversation{ID: conversationID, UserID: userID}, nil
		}
	})

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/33/compact", nil)
		req.Header.Set("X-User-Id", "42")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	It("returns the fresh summary on success", func() {
		compaction.compactFn = func(_ context.Context, conversationID int64) (*worker.CompactionResult, error) {
			return &worker.CompactionResult{
				Summary:      "the story so far",
				UpdatedAt:    time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC),
				MessageCount: 12,
			}, nil
		}

		w := post()

		Expect(w.Code).To(Equal(http.StatusOK))

		var resp struct {
			OK                  bool   `json:"ok"`
			Summary             string `json:"summary"`
			SummaryMessageCount int    `json:"summary_message_count"`
		}
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.OK).To(BeTrue())
		Expect(resp.Summary).To(Equal("the story so far"))
		Expect(resp.SummaryMessageCount).To(Equal(12))
	})

	It("returns plain text 400 when there is nothing to compact", func() {
		compaction.compactFn = func(_ context.Context, _ int64) (*worker.CompactionResult, error) {
			return nil, worker.ErrNothingToCompact
		}

		w := post()

		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(w.Body.String()).To(Equal("No messages to compact"))
	})

	It("returns plain text 502 when summarization fails", func() {
		compaction.compactFn = func(_ context.Context, _ int64) (*worker.CompactionResult, error) {
			return nil, errors.New("summarizer timeout")
		}

		w := post()

		Expect(w.Code).To(Equal(http.StatusBadGateway))
		Expect(w.Body.String()).To(Equal("Failed to generate summary"))
	})
})
