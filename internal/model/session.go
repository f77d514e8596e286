package model

import "time"

// Providers the relay can dispatch to.
const (
	ProviderDeepSeek = "deepseek"
	ProviderXAI      = "xai"
	ProviderPoe      = "poe"
	ProviderLocal    = "local"
)

// KnownProvider reports whether name is a dispatchable provider.
func KnownProvider(name string) bool {
	switch name {
	case ProviderDeepSeek, ProviderXAI, ProviderPoe, ProviderLocal:
		return true
	}
	return false
}

// xAI search modes.
const (
	XAISearchAuto = "auto"
	XAISearchOn   = "on"
	XAISearchOff  = "off"
)

// Reasoning effort / thinking level / output effort enum values shared by
// several providers.
const (
	EffortLow    = "low"
	EffortMedium = "medium"
	EffortHigh   = "high"
)

// SessionState is the authoritative, versioned set of per-conversation
// settings independent of the message log. The primary copy lives in the
// session actor; the conversation row carries the last durable snapshot.
type SessionState struct {
	Provider            string     `json:"provider"`
	Model               string     `json:"model"`
	Summary             *string    `json:"summary,omitempty"`
	SummaryUpdatedAt    *time.Time `json:"summary_updated_at,omitempty"`
	SummaryMessageCount *int       `json:"summary_message_count,omitempty"`
	ReasoningEffort     *string    `json:"reasoning_effort,omitempty"`
	EnableThinking      *bool      `json:"enable_thinking,omitempty"`
	ThinkingBudget      *int       `json:"thinking_budget,omitempty"`
	ThinkingLevel       *string    `json:"thinking_level,omitempty"`
	OutputTokens        *int       `json:"output_tokens,omitempty"`
	OutputEffort        *string    `json:"output_effort,omitempty"`
	WebSearch           *bool      `json:"web_search,omitempty"`
	XAISearchMode       *string    `json:"xai_search_mode,omitempty"`
	EnableTools         *bool      `json:"enable_tools,omitempty"`
	Version             int64      `json:"version"`
}

// Clone returns a deep copy so patches never alias a caller-held state.
func (s SessionState) Clone() SessionState {
	out := s
	out.Summary = clonePtr(s.Summary)
	out.SummaryUpdatedAt = clonePtr(s.SummaryUpdatedAt)
	out.SummaryMessageCount = clonePtr(s.SummaryMessageCount)
	out.ReasoningEffort = clonePtr(s.ReasoningEffort)
	out.EnableThinking = clonePtr(s.EnableThinking)
	out.ThinkingBudget = clonePtr(s.ThinkingBudget)
	out.ThinkingLevel = clonePtr(s.ThinkingLevel)
	out.OutputTokens = clonePtr(s.OutputTokens)
	out.OutputEffort = clonePtr(s.OutputEffort)
	out.WebSearch = clonePtr(s.WebSearch)
	out.XAISearchMode = clonePtr(s.XAISearchMode)
	out.EnableTools = clonePtr(s.EnableTools)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
