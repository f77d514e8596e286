package summary

import (
	"courier.chat/relay/core/config"
	"courier.chat/relay/internal/model"
	"courier.chat/relay/internal/provider"
)

// TriggerPolicy decides when a conversation is worth compacting. The same
// policy runs client-side before a turn is sent and server-side against every
// queued job.
type TriggerPolicy struct {
	// MessageThreshold and TokenThreshold gate on active-context size;
	// crossing either one makes the conversation eligible.
	MessageThreshold int
	TokenThreshold   int
	// MinNewMessages messages must have accrued since the last summary
	// regardless of size, so back-to-back turns don't re-summarize.
	MinNewMessages int
}

func PolicyFromConfig(cfg config.CompactionConfig) TriggerPolicy {
	return TriggerPolicy{
		MessageThreshold: cfg.MessageThreshold,
		TokenThreshold:   cfg.TokenThreshold,
		MinNewMessages:   cfg.MinNewMessages,
	}
}

// ShouldCompact evaluates the policy over the active context. coveredCount is
// the number of active messages the existing summary already accounts for.
func (p TriggerPolicy) ShouldCompact(active []model.Message, coveredCount int) bool {
	if coveredCount > len(active) {
		// A summary computed before a context clear can claim more coverage
		// than the active window holds; treat everything as uncovered.
		coveredCount = 0
	}
	if len(active)-coveredCount < p.MinNewMessages {
		return false
	}
	if len(active) >= p.MessageThreshold {
		return true
	}
	return EstimateContextTokens(active) >= p.TokenThreshold
}

// EstimateContextTokens applies the shared chars-per-token heuristic over a
// message window.
func EstimateContextTokens(messages []model.Message) int {
	total := 0
	for _, m := range messages {
		total += provider.EstimateTokens(m.Content)
	}
	return total
}
