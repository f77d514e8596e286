package dto

import (
	"time"

	"courier.chat/relay/internal/model"
)

type CreateConversationRequest struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty" binding:"omitempty,max=255"`
}

type ConversationResponse struct {
	ID                  int64      `json:"id,string"`
	ProjectID           int64      `json:"project_id,string"`
	Title               string     `json:"title"`
	Provider            string     `json:"provider,omitempty"`
	Model               string     `json:"model,omitempty"`
	Summary             *string    `json:"summary,omitempty"`
	SummaryUpdatedAt    *time.Time `json:"summary_updated_at,omitempty"`
	SummaryMessageCount *int       `json:"summary_message_count,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func ToConversationResponse(conv *model.Conversation) *ConversationResponse {
	return &ConversationResponse{
		ID:                  conv.ID,
		ProjectID:           conv.ProjectID,
		Title:               conv.Title,
		Provider:            conv.Provider,
		Model:               conv.Model,
		Summary:             conv.Summary,
		SummaryUpdatedAt:    conv.SummaryUpdatedAt,
		SummaryMessageCount: conv.SummaryMessageCount,
		CreatedAt:           conv.CreatedAt,
		UpdatedAt:           conv.UpdatedAt,
	}
}

func ToConversationList(convs []model.Conversation) []ConversationResponse {
	out := make([]ConversationResponse, 0, len(convs))
	for i := range convs {
		out = append(out, *ToConversationResponse(&convs[i]))
	}
	return out
}

type ConversationDetailResponse struct {
	Conversation *ConversationResponse `json:"conversation"`
	Messages     []MessageResponse     `json:"messages"`
}

type MessageResponse struct {
	ID        int64              `json:"id,string"`
	Role      string             `json:"role"`
	Content   string             `json:"content"`
	CreatedAt time.Time          `json:"created_at"`
	Meta      *model.MessageMeta `json:"meta,omitempty"`
}

func ToMessageResponses(messages []model.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, MessageResponse{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
			Meta:      m.Meta,
		})
	}
	return out
}
