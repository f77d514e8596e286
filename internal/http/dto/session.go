package dto

import (
	"time"

	"courier.chat/relay/internal/model"
)

type SessionStateResponse struct {
	OK    bool               `json:"ok"`
	State model.SessionState `json:"state"`
}

// AdminSessionResponse augments the session state with storage-level counters
// for the admin debugging surface.
type AdminSessionResponse struct {
	OK           bool               `json:"ok"`
	State        model.SessionState `json:"state"`
	MessageCount int                `json:"message_count"`
}

type CompactionResponse struct {
	OK                  bool      `json:"ok"`
	Summary             string    `json:"summary"`
	SummaryUpdatedAt    time.Time `json:"summary_updated_at"`
	SummaryMessageCount int       `json:"summary_message_count"`
}
