package session

import (
	"fmt"
	"time"

	"courier.chat/relay/internal/model"
)

// Numeric clamps applied during patch sanitization.
const (
	thinkingBudgetMin = 1024
	thinkingBudgetMax = 32768
	outputTokensMin   = 256
	outputTokensMax   = 32768
)

// Patch is a partial update to session state. Nil fields are untouched.
// ClearSummary atomically nulls all three summary fields in the same patch.
type Patch struct {
	Provider        *string `json:"provider,omitempty"`
	Model           *string `json:"model,omitempty"`
	ReasoningEffort *string `json:"reasoning_effort,omitempty"`
	EnableThinking  *bool   `json:"enable_thinking,omitempty"`
	ThinkingBudget  *int    `json:"thinking_budget,omitempty"`
	ThinkingLevel   *string `json:"thinking_level,omitempty"`
	OutputTokens    *int    `json:"output_tokens,omitempty"`
	OutputEffort    *string `json:"output_effort,omitempty"`
	WebSearch       *bool   `json:"web_search,omitempty"`
	XAISearchMode   *string `json:"xai_search_mode,omitempty"`
	EnableTools     *bool   `json:"enable_tools,omitempty"`

	Summary             *string    `json:"summary,omitempty"`
	SummaryUpdatedAt    *time.Time `json:"summary_updated_at,omitempty"`
	SummaryMessageCount *int       `json:"summary_message_count,omitempty"`
	ClearSummary        bool       `json:"clear_summary,omitempty"`
}

// Sanitize rejects unknown enum values and clamps numeric ranges. It returns
// a copy; the input patch is not modified.
func Sanitize(p Patch) (Patch, error) {
	if p.Provider != nil && !model.KnownProvider(*p.Provider) {
		return Patch{}, fmt.Errorf("unknown provider %q", *p.Provider)
	}
	if err := checkEffort("reasoning_effort", p.ReasoningEffort); err != nil {
		return Patch{}, err
	}
	if err := checkEffort("thinking_level", p.ThinkingLevel); err != nil {
		return Patch{}, err
	}
	if err := checkEffort("output_effort", p.OutputEffort); err != nil {
		return Patch{}, err
	}
	if p.XAISearchMode != nil {
		switch *p.XAISearchMode {
		case model.XAISearchAuto, model.XAISearchOn, model.XAISearchOff:
		default:
			return Patch{}, fmt.Errorf("unknown xai search mode %q", *p.XAISearchMode)
		}
	}
	if p.ThinkingBudget != nil {
		v := clamp(*p.ThinkingBudget, thinkingBudgetMin, thinkingBudgetMax)
		p.ThinkingBudget = &v
	}
	if p.OutputTokens != nil {
		v := clamp(*p.OutputTokens, outputTokensMin, outputTokensMax)
		p.OutputTokens = &v
	}
	if p.SummaryMessageCount != nil && *p.SummaryMessageCount < 0 {
		return Patch{}, fmt.Errorf("negative summary message count")
	}
	return p, nil
}

func checkEffort(field string, v *string) error {
	if v == nil {
		return nil
	}
	switch *v {
	case model.EffortLow, model.EffortMedium, model.EffortHigh:
		return nil
	}
	return fmt.Errorf("unknown %s %q", field, *v)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Apply folds a sanitized patch into state and reports whether anything
// changed. Version is not touched here; callers bump it only on change.
func Apply(state model.SessionState, p Patch) (model.SessionState, bool) {
	next := state.Clone()
	changed := false

	if p.Provider != nil && *p.Provider != next.Provider {
		next.Provider = *p.Provider
		changed = true
	}
	if p.Model != nil && *p.Model != next.Model {
		next.Model = *p.Model
		changed = true
	}
	changed = setPtr(&next.ReasoningEffort, p.ReasoningEffort) || changed
	changed = setPtr(&next.EnableThinking, p.EnableThinking) || changed
	changed = setPtr(&next.ThinkingBudget, p.ThinkingBudget) || changed
	changed = setPtr(&next.ThinkingLevel, p.ThinkingLevel) || changed
	changed = setPtr(&next.OutputTokens, p.OutputTokens) || changed
	changed = setPtr(&next.OutputEffort, p.OutputEffort) || changed
	changed = setPtr(&next.WebSearch, p.WebSearch) || changed
	changed = setPtr(&next.XAISearchMode, p.XAISearchMode) || changed
	changed = setPtr(&next.EnableTools, p.EnableTools) || changed

	if p.ClearSummary {
		if next.Summary != nil || next.SummaryUpdatedAt != nil || next.SummaryMessageCount != nil {
			changed = true
		}
		next.Summary = nil
		next.SummaryUpdatedAt = nil
		next.SummaryMessageCount = nil
	} else {
		changed = setPtr(&next.Summary, p.Summary) || changed
		changed = setPtr(&next.SummaryUpdatedAt, p.SummaryUpdatedAt) || changed
		changed = setPtr(&next.SummaryMessageCount, p.SummaryMessageCount) || changed
	}

	return next, changed
}

// setPtr assigns src into dst when src is set and differs; reports change.
func setPtr[T comparable](dst **T, src *T) bool {
	if src == nil {
		return false
	}
	if *dst != nil && **dst == *src {
		return false
	}
	v := *src
	*dst = &v
	return true
}

// EnforceInvariants normalizes provider-coupled fields. It runs on every
// read and after every patch application.
func EnforceInvariants(s *model.SessionState) {
	if s.Provider == model.ProviderXAI {
		if s.XAISearchMode == nil {
			mode := model.XAISearchAuto
			s.XAISearchMode = &mode
		}
	} else {
		s.XAISearchMode = nil
	}
	if searchCapable(s.Provider) && s.WebSearch == nil {
		enabled := true
		s.WebSearch = &enabled
	}
}

// searchCapable reports whether the provider can surface web results, either
// natively (xai) or through pre-fetch injection (poe).
func searchCapable(provider string) bool {
	return provider == model.ProviderXAI || provider == model.ProviderPoe
}
